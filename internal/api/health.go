package api

import (
	"context"
	"net/http"
	"time"
)

// HealthStore is the subset of the audit store the health check pings.
type HealthStore interface {
	HealthCheck(ctx context.Context) error
}

// HealthResponse is the body returned by GET /api/v1/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	store     HealthStore
	version   string
	startTime time.Time
}

func NewHealthHandler(store HealthStore, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{store: store, version: version, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.HealthCheck(r.Context()); err != nil {
		checks["audit_store"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["audit_store"] = "ok"
	}

	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}
