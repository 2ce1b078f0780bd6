package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/perfcycle/pms-backend/pkg/config"
	"github.com/perfcycle/pms-backend/pkg/logger"
)

// newOpsHandler exposes the liveness probe and the Prometheus scrape endpoint.
func newOpsHandler(cfg *config.Config) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthzHandler(cfg))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func healthzHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-PMS-Env", cfg.App.Env)
		response := map[string]string{"status": "ok"}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		}
	}
}

// startOpsServer runs the ops listener in the background and shuts it down
// when the context is canceled.
func startOpsServer(ctx context.Context, cfg *config.Config, logg *logger.Logger) {
	server := &http.Server{
		Addr:              ":" + cfg.Ops.Port,
		Handler:           newOpsHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logg.Info(ctx, "ops server listening on :"+cfg.Ops.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops server stopped unexpectedly", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Warn(shutdownCtx, "ops server shutdown error: "+err.Error())
		}
	}()
}
