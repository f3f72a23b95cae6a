package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthChecker probes one dependency for the readiness report.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to the HealthChecker interface.
type CheckerFunc struct {
	CheckerName string
	Fn          func(ctx context.Context) error
}

func (c CheckerFunc) Name() string                    { return c.CheckerName }
func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

type healthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// handleHealth reports the aggregated state of the configured dependency
// checks. Any failing component degrades the whole report but still
// returns 200: degraded is operational information, not an outage signal.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := healthStatus{
		Status:     "healthy",
		Components: make(map[string]string, len(h.checkers)),
	}

	for _, checker := range h.checkers {
		if err := checker.Check(ctx); err != nil {
			status.Status = "degraded"
			status.Components[checker.Name()] = err.Error()
			continue
		}
		status.Components[checker.Name()] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (h *Handler) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthStatus{Status: "alive"})
}

// handleHealthReady fails closed: any failing dependency makes the gateway
// not ready, so orchestrators hold traffic until the backends come back.
func (h *Handler) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, checker := range h.checkers {
		if err := checker.Check(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(healthStatus{
				Status:     "not ready",
				Components: map[string]string{checker.Name(): err.Error()},
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthStatus{Status: "ready"})
}
