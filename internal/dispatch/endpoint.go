package dispatch

import (
	"sync"
	"time"
)

// CircuitState is the failure-isolation state of an endpoint.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// EndpointConfig describes one provider endpoint at registration time.
// BaseURL and Credential are opaque to the dispatcher.
type EndpointConfig struct {
	ID         string
	BaseURL    string
	Model      string
	Credential string
}

// EndpointStatus is a point-in-time view of an endpoint for the status
// surface. Credentials are never included.
type EndpointStatus struct {
	ID                  string    `json:"id"`
	Circuit             string    `json:"circuit"`
	Requests            uint64    `json:"requests"`
	Successes           uint64    `json:"successes"`
	Failures            uint64    `json:"failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	BackoffAttempt      int       `json:"backoff_attempt,omitempty"`
	OpenUntil           time.Time `json:"open_until,omitzero"`
}

// Endpoint is owned exclusively by the dispatcher. All stats and circuit
// state are mutated only under its lock; other components see it through
// Status() snapshots.
type Endpoint struct {
	id         string
	baseURL    string
	model      string
	credential string

	mu             sync.Mutex
	requests       uint64
	successes      uint64
	failures       uint64
	consecutive    int
	state          CircuitState
	openUntil      time.Time
	backoffAttempt int
	probeInFlight  bool
}

func newEndpoint(cfg EndpointConfig) *Endpoint {
	return &Endpoint{
		id:         cfg.ID,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		credential: cfg.Credential,
		state:      CircuitClosed,
	}
}

func (e *Endpoint) info() EndpointInfo {
	return EndpointInfo{
		ID:         e.id,
		BaseURL:    e.baseURL,
		Model:      e.model,
		Credential: e.credential,
	}
}

// selectable reports whether the endpoint may receive traffic at now. An
// OPEN endpoint past its cooldown is selectable as a half-open probe.
func (e *Endpoint) selectable(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case CircuitClosed:
		return true
	case CircuitHalfOpen:
		return !e.probeInFlight
	case CircuitOpen:
		return !now.Before(e.openUntil)
	}
	return false
}

// acquireSlot claims the endpoint for one attempt. Exactly one probe is
// permitted per half-open window; a second caller arriving while the probe is
// in flight is turned away.
func (e *Endpoint) acquireSlot(now time.Time) (probe, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case CircuitClosed:
		return false, true
	case CircuitOpen:
		if now.Before(e.openUntil) {
			return false, false
		}
		e.state = CircuitHalfOpen
		e.probeInFlight = true
		return true, true
	case CircuitHalfOpen:
		if e.probeInFlight {
			return false, false
		}
		e.probeInFlight = true
		return true, true
	}
	return false, false
}

// releaseProbe returns an unused probe slot, e.g. when the attempt was
// rate-limited before reaching the provider.
func (e *Endpoint) releaseProbe() {
	e.mu.Lock()
	e.probeInFlight = false
	e.mu.Unlock()
}

// recordSuccess resets the failure streak and closes a half-open circuit.
// It reports whether a closed transition happened.
func (e *Endpoint) recordSuccess() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.requests++
	e.successes++
	e.consecutive = 0
	e.probeInFlight = false

	if e.state != CircuitClosed {
		e.state = CircuitClosed
		e.openUntil = time.Time{}
		e.backoffAttempt = 0
		return true
	}
	return false
}

// recordFailure updates stats and trips the circuit when warranted: at
// threshold consecutive failures, on a failed half-open probe, or
// immediately for permanent faults. It reports whether the circuit opened
// and for how long.
func (e *Endpoint) recordFailure(now time.Time, threshold int, base, cap time.Duration, probe, permanent bool) (opened bool, cooldown time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.requests++
	e.failures++
	e.consecutive++
	e.probeInFlight = false

	if !permanent && !probe && e.consecutive < threshold {
		return false, 0
	}

	cooldown = backoffDelay(base, cap, e.backoffAttempt)
	e.state = CircuitOpen
	e.openUntil = now.Add(cooldown)
	e.backoffAttempt++
	return true, cooldown
}

// Status returns a snapshot for the status surface.
func (e *Endpoint) Status() EndpointStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	return EndpointStatus{
		ID:                  e.id,
		Circuit:             string(e.state),
		Requests:            e.requests,
		Successes:           e.successes,
		Failures:            e.failures,
		ConsecutiveFailures: e.consecutive,
		BackoffAttempt:      e.backoffAttempt,
		OpenUntil:           e.openUntil,
	}
}

// backoffDelay computes the exponential cooldown base<<attempt capped at max.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt > 30 {
		attempt = 30
	}
	d := base << uint(attempt)
	if max > 0 && d > max {
		d = max
	}
	return d
}
