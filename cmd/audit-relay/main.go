package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/perfcycle/pms-backend/pkg/config"
	"github.com/perfcycle/pms-backend/pkg/db"
	"github.com/perfcycle/pms-backend/pkg/lock"
	"github.com/perfcycle/pms-backend/pkg/logger"
	"github.com/perfcycle/pms-backend/pkg/metrics"
	"github.com/perfcycle/pms-backend/pkg/migrate"
	"github.com/perfcycle/pms-backend/pkg/outbox"
	"github.com/perfcycle/pms-backend/pkg/pubsub"
	"github.com/perfcycle/pms-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "audit-relay"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "audit-relay"

	logg = logger.New(logger.Options{
		ServiceName: "audit-relay",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	relayLock, err := lock.NewRedisLock(redisClient, redisClient.LockKey("audit-relay"), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create relay lock", err)
		os.Exit(1)
	}

	outboxMetrics := metrics.NewOutboxMetrics(prometheus.DefaultRegisterer)
	repo := outbox.NewRepository(dbClient.DB())
	dlqRepo := outbox.NewDLQRepository(dbClient.DB())

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    repo,
		DLQRepository: dlqRepo,
		Lock:          relayLock,
		Redis:         redisClient,
		Metrics:       outboxMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create audit relay", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	startOpsServer(ctx, cfg, logg)

	logg.Info(ctx, "starting audit relay")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "audit relay stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "audit relay shutting down gracefully")
}
