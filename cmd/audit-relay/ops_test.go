package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/perfcycle/pms-backend/pkg/config"
)

func TestOpsHandlerHealthz(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	handler := newOpsHandler(cfg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if got := rec.Header().Get("X-PMS-Env"); got != "test" {
		t.Fatalf("unexpected env header: %q", got)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestOpsHandlerServesMetrics(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	handler := newOpsHandler(cfg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected scrape output")
	}
}
