package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/seedman/internal/metrics"
)

type mockPinger struct {
	pingFunc func(ctx context.Context) error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.pingFunc(ctx)
}

func newTestRouter(t *testing.T, pinger Pinger) (http.Handler, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	router := NewRouter(&RouterDeps{
		DB:       pinger,
		Gatherer: registry,
		Logger:   logger,
	})
	return router, registry
}

func TestRouter_Health(t *testing.T) {
	pinger := &mockPinger{
		pingFunc: func(ctx context.Context) error { return nil },
	}
	router, _ := newTestRouter(t, pinger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want %q", body["status"], "ok")
	}
	if body["database"] != "ok" {
		t.Errorf("database field = %q, want %q", body["database"], "ok")
	}
}

func TestRouter_Health_DatabaseDown(t *testing.T) {
	pinger := &mockPinger{
		pingFunc: func(ctx context.Context) error { return errors.New("connection refused") },
	}
	router, _ := newTestRouter(t, pinger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "degraded" {
		t.Errorf("status field = %q, want %q", body["status"], "degraded")
	}
	if body["database"] != "unreachable" {
		t.Errorf("database field = %q, want %q", body["database"], "unreachable")
	}
}

func TestRouter_Metrics(t *testing.T) {
	pinger := &mockPinger{
		pingFunc: func(ctx context.Context) error { return nil },
	}
	router, registry := newTestRouter(t, pinger)

	collector := metrics.NewCollector(registry)
	collector.RecordAdmission()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "seedman_admissions_total 1") {
		t.Errorf("metrics output does not contain seedman_admissions_total: %s", rec.Body.String())
	}
}

func TestRouter_NotFound(t *testing.T) {
	pinger := &mockPinger{
		pingFunc: func(ctx context.Context) error { return nil },
	}
	router, _ := newTestRouter(t, pinger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unknown", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
