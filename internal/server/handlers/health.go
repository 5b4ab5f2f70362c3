package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	apperrors "github.com/wingmanhq/dispatch/internal/errors"
	"github.com/wingmanhq/dispatch/internal/health"
)

// HealthResponse is the aggregate health check response.
type HealthResponse struct {
	Status    string                        `json:"status"`
	Version   string                        `json:"version"`
	Timestamp string                        `json:"timestamp"`
	Checks    map[string]health.CheckResult `json:"checks,omitempty"`
}

// ProbeResponse is the body for individual probes.
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Health serves the health endpoints from a monitor.
type Health struct {
	Monitor *health.Monitor
	Version string
}

// HealthHandler runs every check and reports the aggregate with per-check
// detail.
func (h *Health) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checkCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report := h.Monitor.RunChecks(checkCtx)
	if report.Status == health.StatusUnhealthy {
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "aggregate health check failed")
		envelope = envelope.WithDetails(map[string]interface{}{
			"status": string(report.Status),
			"checks": report.Checks,
		})
		apperrors.RespondWithEnvelope(w, r, envelope)
		return
	}

	response := HealthResponse{
		Status:    string(report.Status),
		Version:   h.Version,
		Timestamp: report.Time.Format(time.RFC3339),
		Checks:    report.Checks,
	}
	writeJSON(w, http.StatusOK, response)
}

// LivenessHandler reports that the process is up. It never runs checks; a
// wedged dependency must not get the process restarted.
func (h *Health) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProbeResponse{Status: string(health.StatusHealthy), Timestamp: time.Now().UTC()})
}

// ReadinessHandler reports whether the service should receive traffic, based
// on the cached background report.
func (h *Health) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	report, ok := h.Monitor.LastReport()
	if !ok {
		checkCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report = h.Monitor.RunChecks(checkCtx)
	}

	if report.Status == health.StatusUnhealthy {
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "readiness probe failed")
		envelope = envelope.WithDetails(map[string]interface{}{
			"status": string(report.Status),
		})
		apperrors.RespondWithEnvelope(w, r, envelope)
		return
	}
	writeJSON(w, http.StatusOK, ProbeResponse{Status: string(report.Status), Timestamp: time.Now().UTC()})
}

// StartupHandler reports whether initialization completed, i.e. the first
// background pass has run.
func (h *Health) StartupHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.Monitor.LastReport(); !ok {
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "startup probe: first health pass pending")
		apperrors.RespondWithEnvelope(w, r, envelope)
		return
	}
	writeJSON(w, http.StatusOK, ProbeResponse{Status: string(health.StatusHealthy), Timestamp: time.Now().UTC()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
