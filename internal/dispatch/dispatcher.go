// Package dispatch routes outbound model calls across redundant provider
// endpoints. It composes the rate limiter and metrics collector, keeps a
// circuit breaker per endpoint, and retries across endpoints with
// exponential backoff on the failing ones.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wingmanhq/dispatch/internal/metrics"
	"github.com/wingmanhq/dispatch/internal/ratelimit"
)

// Options tune the failure-isolation behavior. Zero values take the
// defaults below.
type Options struct {
	// FailureThreshold is the consecutive-failure count that opens a
	// circuit. Default 3.
	FailureThreshold int

	// BackoffBase and BackoffCap bound the exponential cooldown schedule
	// (base, 2*base, 4*base, ... capped). Defaults 1s and 60s.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// MaxAttempts bounds executor invocations per dispatch. Zero means the
	// number of endpoints configured for the model.
	MaxAttempts int

	// CallTimeout bounds a single provider call in addition to the caller's
	// deadline. Zero means the deadline alone governs.
	CallTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = time.Minute
	}
	return o
}

// Dispatcher owns the endpoint sets and their circuit state. Endpoints are
// registered once at startup and referenced by stable position; their state
// is only ever touched through synchronized Endpoint methods.
type Dispatcher struct {
	limiter   *ratelimit.Limiter
	collector *metrics.Collector
	exec      Executor
	sink      EventSink
	opts      Options

	// Clock overrides time.Now for tests.
	Clock func() time.Time

	mu     sync.RWMutex
	models map[string]*rotation
}

// rotation is the ordered endpoint set for one logical model with its shared
// round-robin cursor. The cursor advances atomically across all concurrent
// callers.
type rotation struct {
	cursor    atomic.Uint64
	endpoints []*Endpoint
}

// New creates a dispatcher. limiter, collector and sink may be nil for
// callers that do not need them.
func New(exec Executor, limiter *ratelimit.Limiter, collector *metrics.Collector, sink EventSink, opts Options) *Dispatcher {
	if sink == nil {
		sink = NopSink{}
	}
	return &Dispatcher{
		limiter:   limiter,
		collector: collector,
		exec:      exec,
		sink:      sink,
		opts:      opts.withDefaults(),
		models:    make(map[string]*rotation),
	}
}

// RegisterModel registers the ordered endpoint list for a logical model.
// Registration happens once at startup; re-registering is an error.
func (d *Dispatcher) RegisterModel(model string, endpoints []EndpointConfig) error {
	if model == "" {
		return fmt.Errorf("model name is required")
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("model %q: at least one endpoint is required", model)
	}

	rot := &rotation{endpoints: make([]*Endpoint, 0, len(endpoints))}
	seen := make(map[string]struct{}, len(endpoints))
	for _, cfg := range endpoints {
		if cfg.ID == "" {
			return fmt.Errorf("model %q: endpoint id is required", model)
		}
		if _, dup := seen[cfg.ID]; dup {
			return fmt.Errorf("model %q: duplicate endpoint id %q", model, cfg.ID)
		}
		seen[cfg.ID] = struct{}{}
		rot.endpoints = append(rot.endpoints, newEndpoint(cfg))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.models[model]; exists {
		return fmt.Errorf("model %q already registered", model)
	}
	d.models[model] = rot
	return nil
}

// Dispatch routes one request for a logical model. Rate limiting, circuit
// state and retries are resolved here; callers only ever see a response or
// *AllUnavailableError.
func (d *Dispatcher) Dispatch(ctx context.Context, model string, req *Request) (*Response, error) {
	rot := d.rotation(model)
	if rot == nil {
		return nil, d.unavailable(model, 0, fmt.Errorf("no endpoints configured for model %q", model))
	}

	maxAttempts := d.opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = len(rot.endpoints)
	}

	var (
		attempts int
		lastErr  error
		skipped  = make(map[string]struct{})
	)

	for attempts < maxAttempts {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		now := d.now()
		ep, probe := d.selectEndpoint(rot, skipped, now)
		if ep == nil {
			if next := d.earliestReopen(rot, now); next != nil {
				lastErr = next
			}
			break
		}

		if err := d.limiter.Acquire(ctx, ep.id); err != nil {
			if probe {
				ep.releaseProbe()
			}
			var exceeded *ratelimit.LimitExceededError
			if !errors.As(err, &exceeded) {
				return nil, err
			}
			// Rate-limited endpoints are skipped without counting as a
			// provider failure.
			skipped[ep.id] = struct{}{}
			lastErr = err
			d.sink.Emit(Event{Type: EventRateLimitRejected, Model: model, Endpoint: ep.id, Time: now})
			metrics.RecordRateLimitRejected(d.collector, ep.id)
			continue
		}

		resp, latency, err := d.execute(ctx, ep, req)
		if err == nil {
			metrics.RecordDispatch(d.collector, ep.id, true, latency)
			if ep.recordSuccess() {
				d.sink.Emit(Event{Type: EventCircuitClosed, Model: model, Endpoint: ep.id, Time: d.now()})
				metrics.RecordCircuitTransition(d.collector, ep.id, string(CircuitClosed))
			}
			if resp != nil {
				resp.Endpoint = ep.id
				resp.Latency = latency
			}
			return resp, nil
		}

		lastErr = err
		permanent := IsPermanent(err)
		metrics.RecordDispatch(d.collector, ep.id, false, latency)
		d.sink.Emit(Event{Type: EventRequestFailed, Model: model, Endpoint: ep.id, Error: err.Error(), Time: d.now()})

		opened, cooldown := ep.recordFailure(d.now(), d.opts.FailureThreshold, d.opts.BackoffBase, d.opts.BackoffCap, probe, permanent)
		if opened {
			d.sink.Emit(Event{Type: EventCircuitOpened, Model: model, Endpoint: ep.id, Cooldown: cooldown, Error: err.Error(), Time: d.now()})
			metrics.RecordCircuitTransition(d.collector, ep.id, string(CircuitOpen))
		}

		if permanent {
			// Permanent faults isolate the endpoint immediately without
			// consuming the transient retry budget.
			skipped[ep.id] = struct{}{}
			continue
		}
		attempts++
		if attempts < maxAttempts {
			metrics.RecordRetry(d.collector, model)
		}
	}

	return nil, d.unavailable(model, attempts, lastErr)
}

// execute runs one provider call bounded by the caller deadline and the
// per-call timeout.
func (d *Dispatcher) execute(ctx context.Context, ep *Endpoint, req *Request) (*Response, time.Duration, error) {
	callCtx := ctx
	if d.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.opts.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := d.exec.Execute(callCtx, ep.info(), req)
	return resp, time.Since(start), err
}

// selectEndpoint advances the shared cursor over the currently eligible
// endpoints and claims the first one that accepts the slot. At most one
// half-open probe is ever claimed per endpoint.
func (d *Dispatcher) selectEndpoint(rot *rotation, skipped map[string]struct{}, now time.Time) (*Endpoint, bool) {
	eligible := make([]*Endpoint, 0, len(rot.endpoints))
	for _, ep := range rot.endpoints {
		if _, skip := skipped[ep.id]; skip {
			continue
		}
		if ep.selectable(now) {
			eligible = append(eligible, ep)
		}
	}
	if len(eligible) == 0 {
		return nil, false
	}

	for range eligible {
		idx := rot.cursor.Add(1) - 1
		ep := eligible[idx%uint64(len(eligible))]
		if probe, ok := ep.acquireSlot(now); ok {
			return ep, probe
		}
	}
	return nil, false
}

// earliestReopen reports the open endpoint that will become eligible first,
// so the terminal error explains when service may recover.
func (d *Dispatcher) earliestReopen(rot *rotation, now time.Time) *CircuitOpenError {
	var next *CircuitOpenError
	for _, ep := range rot.endpoints {
		st := ep.Status()
		if st.Circuit != string(CircuitOpen) || !now.Before(st.OpenUntil) {
			continue
		}
		if next == nil || st.OpenUntil.Before(next.Until) {
			next = &CircuitOpenError{Endpoint: st.ID, Until: st.OpenUntil}
		}
	}
	return next
}

func (d *Dispatcher) unavailable(model string, attempts int, lastErr error) error {
	d.sink.Emit(Event{Type: EventAllUnavailable, Model: model, Time: d.now()})
	metrics.RecordAllUnavailable(d.collector, model)
	return &AllUnavailableError{Model: model, Attempts: attempts, Err: lastErr}
}

// Models lists the registered logical models, sorted.
func (d *Dispatcher) Models() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.models))
	for name := range d.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status returns endpoint snapshots for a model in registration order.
func (d *Dispatcher) Status(model string) []EndpointStatus {
	rot := d.rotation(model)
	if rot == nil {
		return nil
	}
	out := make([]EndpointStatus, 0, len(rot.endpoints))
	for _, ep := range rot.endpoints {
		out = append(out, ep.Status())
	}
	return out
}

func (d *Dispatcher) rotation(model string) *rotation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.models[model]
}

func (d *Dispatcher) now() time.Time {
	if d != nil && d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}
