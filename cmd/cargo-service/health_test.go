package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/circuitbreaker"
	"github.com/jogardn/cargo-lifecycle/internal/logging"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/internal/store/memstore"
	"github.com/jogardn/cargo-lifecycle/internal/websocket"
)

type downStore struct{ store.Store }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func checkHealth(t *testing.T, st store.Store, breakers *circuitbreaker.Manager) (int, healthStatus) {
	t.Helper()
	hub := websocket.NewHub(logging.Discard())
	rec := httptest.NewRecorder()
	healthCheck(st, breakers, hub)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	return rec.Code, body
}

func TestHealthReportsDegradedBreaker(t *testing.T) {
	logger := logging.Discard()
	breakers := circuitbreaker.NewManager(logger)

	code, body := checkHealth(t, memstore.New(), breakers)
	if code != http.StatusOK || body.Status != "healthy" {
		t.Fatalf("expected healthy, got %d %+v", code, body)
	}

	cb := breakers.GetOrCreate("sms-gateway", circuitbreaker.Config{MaxFailures: 1, Timeout: time.Minute})
	cb.Execute(context.Background(), func(context.Context) error { return errors.New("gateway down") })

	code, body = checkHealth(t, memstore.New(), breakers)
	if code != http.StatusOK || body.Status != "degraded" || len(body.CircuitBreakers) != 1 {
		t.Errorf("expected degraded with one breaker, got %d %+v", code, body)
	}
}

func TestHealthFailsWithoutDatabase(t *testing.T) {
	code, body := checkHealth(t, downStore{}, circuitbreaker.NewManager(logging.Discard()))
	if code != http.StatusServiceUnavailable || body.Status != "unhealthy" {
		t.Errorf("expected unhealthy, got %d %+v", code, body)
	}
}
