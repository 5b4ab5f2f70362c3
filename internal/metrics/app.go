package metrics

import (
	"time"

	"github.com/wingmanhq/dispatch/internal/observability"
)

// Metric names following Prometheus conventions. The same names are used for
// the in-memory collector and the gofulmen telemetry mirror.
var (
	DispatchRequestsTotal     = "dispatch_requests_total"
	DispatchLatency           = "dispatch_request_duration_ms"
	DispatchRetriesTotal      = "dispatch_retries_total"
	RateLimitRejectedTotal    = "dispatch_rate_limit_rejected_total"
	CircuitTransitionsTotal   = "dispatch_circuit_transitions_total"
	ProvidersUnavailableTotal = "dispatch_all_providers_unavailable_total"
	HealthCheckTotal          = "health_check_total"
	HealthCheckDuration       = "health_check_duration_ms"
)

// RecordDispatch records the outcome and latency of one provider call.
func RecordDispatch(c *Collector, endpoint string, success bool, latency time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	tags := map[string]string{"endpoint": endpoint, "status": status}

	if c != nil {
		c.Inc(DispatchRequestsTotal, 1, tags)
		c.Timing(DispatchLatency, latency, map[string]string{"endpoint": endpoint})
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(DispatchRequestsTotal, 1, tags)
		_ = observability.TelemetrySystem.Histogram(DispatchLatency, latency, map[string]string{"endpoint": endpoint})
	}
}

// RecordRetry counts a failover to another endpoint after a transient failure.
func RecordRetry(c *Collector, model string) {
	tags := map[string]string{"model": model}
	if c != nil {
		c.Inc(DispatchRetriesTotal, 1, tags)
	}
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(DispatchRetriesTotal, 1, tags)
	}
}

// RecordRateLimitRejected counts a rate-limit skip during endpoint selection.
func RecordRateLimitRejected(c *Collector, key string) {
	tags := map[string]string{"key": key}
	if c != nil {
		c.Inc(RateLimitRejectedTotal, 1, tags)
	}
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(RateLimitRejectedTotal, 1, tags)
	}
}

// RecordCircuitTransition counts a circuit state change for an endpoint.
func RecordCircuitTransition(c *Collector, endpoint, to string) {
	tags := map[string]string{"endpoint": endpoint, "to": to}
	if c != nil {
		c.Inc(CircuitTransitionsTotal, 1, tags)
	}
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(CircuitTransitionsTotal, 1, tags)
	}
}

// RecordAllUnavailable counts a dispatch that exhausted every endpoint.
func RecordAllUnavailable(c *Collector, model string) {
	tags := map[string]string{"model": model}
	if c != nil {
		c.Inc(ProvidersUnavailableTotal, 1, tags)
	}
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(ProvidersUnavailableTotal, 1, tags)
	}
}

// RecordHealthCheck records a health check execution.
func RecordHealthCheck(c *Collector, checkName, status string, duration time.Duration) {
	tags := map[string]string{"check": checkName, "status": status}
	if c != nil {
		c.Inc(HealthCheckTotal, 1, tags)
		c.Timing(HealthCheckDuration, duration, map[string]string{"check": checkName})
	}
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, tags)
		_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{"check": checkName})
	}
}
