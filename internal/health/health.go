// Package health provides liveness and readiness endpoints for the sync
// service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pinger reports whether a backing dependency is reachable. The in-memory
// store has no failure mode and passes a nil Pinger.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck manages the health endpoints.
type HealthCheck struct {
	store  Pinger
	logger *zap.Logger

	mu        sync.RWMutex
	ready     bool
	lastCheck time.Time
}

// NewHealthCheck creates a new HealthCheck instance.
func NewHealthCheck(store Pinger, logger *zap.Logger) *HealthCheck {
	return &HealthCheck{
		store:  store,
		logger: logger,
		ready:  store == nil,
	}
}

// LivenessResponse represents the response for the liveness check.
type LivenessResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the response for the readiness check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// LivenessHandler handles GET /healthz requests. Returns 200 OK while the
// process is running.
func (hc *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LivenessResponse{Status: "healthy"})
}

// ReadinessHandler handles GET /ready requests. Returns 200 OK once the
// backing store answers.
func (hc *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if hc.store == nil {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(ReadinessResponse{Status: "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := hc.store.Ping(ctx); err != nil {
		hc.setReady(false)
		hc.logger.Warn("Store readiness check failed", zap.Error(err))

		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(ReadinessResponse{
			Status: "not_ready",
			Checks: map[string]string{"store": "unhealthy"},
			Error:  err.Error(),
		})
		return
	}

	hc.setReady(true)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ReadinessResponse{
		Status: "ready",
		Checks: map[string]string{"store": "healthy"},
	})
}

// IsReady returns the last observed readiness status.
func (hc *HealthCheck) IsReady() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.ready
}

func (hc *HealthCheck) setReady(ready bool) {
	hc.mu.Lock()
	hc.ready = ready
	hc.lastCheck = time.Now()
	hc.mu.Unlock()
}
