package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jogardn/cargo-lifecycle/internal/circuitbreaker"
	"github.com/jogardn/cargo-lifecycle/internal/httpx"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/internal/websocket"
)

type healthStatus struct {
	Status           string                    `json:"status"`
	Service          string                    `json:"service"`
	Database         string                    `json:"database"`
	WebSocketClients int                       `json:"websocket_clients"`
	CircuitBreakers  []circuitbreaker.Snapshot `json:"circuit_breakers"`
}

// healthCheck reports unhealthy when the store is unreachable. An open
// breaker only degrades the service: signings still commit and their
// documents wait for the retry worker.
func healthCheck(st store.Store, breakers *circuitbreaker.Manager, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := healthStatus{
			Status:           "healthy",
			Service:          "cargo-service",
			Database:         "ok",
			WebSocketClients: hub.ClientCount(),
			CircuitBreakers:  breakers.Snapshots(),
		}
		code := http.StatusOK
		if err := st.Ping(ctx); err != nil {
			status.Status, status.Database = "unhealthy", err.Error()
			code = http.StatusServiceUnavailable
		} else if !breakers.Healthy() {
			status.Status = "degraded"
		}
		httpx.RespondWithJSON(w, code, status)
	}
}
