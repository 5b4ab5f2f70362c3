// Package health runs registered component checks and aggregates their
// results into a single service status. The monitor runs checks on demand for
// the probe handlers and periodically in the background for the cached report.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/wingmanhq/dispatch/internal/metrics"
)

// Status is a three-level component health status. Aggregation takes the
// worst status across all checks.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// rank orders statuses for worst-of aggregation.
func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// CheckResult is the outcome of one check execution.
type CheckResult struct {
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency_ns"`
}

// CheckFunc probes one component. Returning an error marks the component
// unhealthy regardless of the returned result.
type CheckFunc func(ctx context.Context) (Status, string, error)

// Report is an aggregate view across all registered checks.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
	Time   time.Time              `json:"time"`
}

// DefaultInterval is the background check cadence when none is configured.
const DefaultInterval = 60 * time.Second

// Monitor owns the registered checks. Checks are registered at startup and
// executed either on demand or by the background loop started with Start.
type Monitor struct {
	collector *metrics.Collector
	logger    *logging.Logger
	interval  time.Duration

	mu     sync.RWMutex
	names  []string
	checks map[string]CheckFunc
	last   *Report

	running atomic.Bool
	done    chan struct{}
	stopped chan struct{}
}

// NewMonitor creates a monitor. collector and logger may be nil; interval
// zero means DefaultInterval.
func NewMonitor(collector *metrics.Collector, logger *logging.Logger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		collector: collector,
		logger:    logger,
		interval:  interval,
		checks:    make(map[string]CheckFunc),
	}
}

// RegisterCheck registers a named check. Registering a duplicate name is an
// error; checks run in registration order.
func (m *Monitor) RegisterCheck(name string, fn CheckFunc) error {
	if name == "" {
		return fmt.Errorf("check name is required")
	}
	if fn == nil {
		return fmt.Errorf("check %q: func is required", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checks[name]; exists {
		return fmt.Errorf("check %q already registered", name)
	}
	m.names = append(m.names, name)
	m.checks[name] = fn
	return nil
}

// RunChecks executes every registered check and returns the aggregate report.
// A panicking check is reported unhealthy; it never takes the monitor down.
func (m *Monitor) RunChecks(ctx context.Context) Report {
	m.mu.RLock()
	names := make([]string, len(m.names))
	copy(names, m.names)
	checks := make(map[string]CheckFunc, len(m.checks))
	for name, fn := range m.checks {
		checks[name] = fn
	}
	m.mu.RUnlock()

	report := Report{
		Status: StatusHealthy,
		Checks: make(map[string]CheckResult, len(names)),
		Time:   time.Now().UTC(),
	}

	for _, name := range names {
		result := m.runOne(ctx, name, checks[name])
		report.Checks[name] = result
		if result.Status.rank() > report.Status.rank() {
			report.Status = result.Status
		}
	}

	m.mu.Lock()
	m.last = &report
	m.mu.Unlock()
	return report
}

func (m *Monitor) runOne(ctx context.Context, name string, fn CheckFunc) (result CheckResult) {
	start := time.Now()
	defer func() {
		result.Latency = time.Since(start)
		if r := recover(); r != nil {
			result = CheckResult{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("check panicked: %v", r),
				Latency: time.Since(start),
			}
			if m.logger != nil {
				m.logger.Error("health check panicked",
					zap.String("check", name),
					zap.Any("panic", r))
			}
		}
		metrics.RecordHealthCheck(m.collector, name, string(result.Status), result.Latency)
	}()

	status, message, err := fn(ctx)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	if status == "" {
		status = StatusHealthy
	}
	return CheckResult{Status: status, Message: message}
}

// LastReport returns the most recent report, or ok=false before the first
// run.
func (m *Monitor) LastReport() (Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return Report{}, false
	}
	return *m.last, true
}

// CheckNames lists the registered checks, sorted.
func (m *Monitor) CheckNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.names))
	copy(out, m.names)
	sort.Strings(out)
	return out
}

// Start launches the background check loop. It runs one pass immediately and
// then on every interval tick. Starting an already running monitor is a
// no-op.
func (m *Monitor) Start(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	m.done = make(chan struct{})
	m.stopped = make(chan struct{})

	go func() {
		defer close(m.stopped)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.runPass(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case <-ticker.C:
				m.runPass(ctx)
			}
		}
	}()
}

// runPass executes one background pass bounded to the tick interval, so a
// stuck check cannot stack passes on top of each other.
func (m *Monitor) runPass(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	report := m.RunChecks(passCtx)
	if m.logger != nil && report.Status != StatusHealthy {
		m.logger.Warn("periodic health check",
			zap.String("status", string(report.Status)),
			zap.Int("checks", len(report.Checks)))
	}
}

// Stop halts the background loop and waits for the in-flight pass to finish.
func (m *Monitor) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	close(m.done)
	<-m.stopped
}
