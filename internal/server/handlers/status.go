package handlers

import (
	"net/http"
	"sort"

	"github.com/wingmanhq/dispatch/internal/dispatch"
	"github.com/wingmanhq/dispatch/internal/ratelimit"
)

// Status serves the operational status endpoints.
type Status struct {
	Dispatcher *dispatch.Dispatcher
	Limiter    *ratelimit.Limiter
}

// ProvidersResponse maps each logical model to its endpoint snapshots.
type ProvidersResponse struct {
	Models map[string][]dispatch.EndpointStatus `json:"models"`
}

// ProvidersHandler reports circuit state and per-endpoint counters.
func (h *Status) ProvidersHandler(w http.ResponseWriter, r *http.Request) {
	response := ProvidersResponse{Models: make(map[string][]dispatch.EndpointStatus)}
	for _, model := range h.Dispatcher.Models() {
		response.Models[model] = h.Dispatcher.Status(model)
	}
	writeJSON(w, http.StatusOK, response)
}

// RateLimitEntry is the status view of one configured rate-limit key.
type RateLimitEntry struct {
	Key         string  `json:"key"`
	Strategy    string  `json:"strategy"`
	MaxRequests int     `json:"max_requests"`
	WindowMS    int64   `json:"window_ms"`
	Tokens      float64 `json:"tokens,omitempty"`
	Capacity    int     `json:"capacity,omitempty"`
	InWindow    int     `json:"in_window,omitempty"`
}

// RateLimitsResponse lists the configured limits and their current state.
type RateLimitsResponse struct {
	Limits []RateLimitEntry `json:"limits"`
}

// RateLimitsHandler reports each configured limit. Reads are pure; hitting
// this endpoint never consumes capacity.
func (h *Status) RateLimitsHandler(w http.ResponseWriter, r *http.Request) {
	keys := h.Limiter.Keys()
	sort.Strings(keys)

	response := RateLimitsResponse{Limits: make([]RateLimitEntry, 0, len(keys))}
	for _, key := range keys {
		stats := h.Limiter.Stats(key)
		response.Limits = append(response.Limits, RateLimitEntry{
			Key:         key,
			Strategy:    string(stats.Strategy),
			MaxRequests: stats.MaxRequests,
			WindowMS:    stats.Window.Milliseconds(),
			Tokens:      stats.Tokens,
			Capacity:    stats.Capacity,
			InWindow:    stats.InWindow,
		})
	}
	writeJSON(w, http.StatusOK, response)
}
