// Package ratelimit provides per-key admission control for outbound provider
// calls. Two strategies are supported: a continuously refilled token bucket
// and a trailing-interval sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Strategy selects the admission algorithm for a key.
type Strategy string

const (
	StrategyTokenBucket   Strategy = "token_bucket"
	StrategySlidingWindow Strategy = "sliding_window"
)

// DefaultMaxWait bounds how long Acquire will suspend a caller waiting for
// admission when the context carries no earlier deadline.
const DefaultMaxWait = 30 * time.Second

// Config describes the limit for a single key. Configs are immutable after
// registration.
type Config struct {
	MaxRequests int
	Window      time.Duration
	BurstSize   int // token bucket capacity; defaults to MaxRequests
	Strategy    Strategy
}

// LimitExceededError reports that admission could not be granted within the
// allowed wait.
type LimitExceededError struct {
	Key  string
	Wait time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q: retry in %s", e.Key, e.Wait)
}

// Stats is a point-in-time view of a key's limiter state. Reads are pure and
// never mutate limiter state.
type Stats struct {
	Configured bool
	Strategy   Strategy

	// Token bucket
	Tokens     float64
	Capacity   int
	RefillRate float64

	// Sliding window
	InWindow    int
	MaxRequests int
	Window      time.Duration
}

// Limiter enforces per-key rate limits. Keys without a registered Config are
// fail-open: Acquire admits them unconditionally rather than rejecting, so an
// unconfigured provider is never blocked by accident.
type Limiter struct {
	mu      sync.RWMutex
	configs map[string]Config
	buckets map[string]*tokenBucket
	windows map[string]*slidingWindow

	// MaxWait caps the suspension of a single Acquire call. Zero means
	// DefaultMaxWait.
	MaxWait time.Duration

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// New returns an empty limiter.
func New() *Limiter {
	return &Limiter{
		configs: make(map[string]Config),
		buckets: make(map[string]*tokenBucket),
		windows: make(map[string]*slidingWindow),
	}
}

// Configure registers the limit for a key. Configs are immutable: registering
// the same key twice is an error.
func (l *Limiter) Configure(key string, cfg Config) error {
	if key == "" {
		return fmt.Errorf("rate limit key is required")
	}
	if cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		return fmt.Errorf("rate limit for %q: max_requests and window must be positive", key)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.configs[key]; exists {
		return fmt.Errorf("rate limit for %q already configured", key)
	}

	switch cfg.Strategy {
	case StrategyTokenBucket, "":
		cfg.Strategy = StrategyTokenBucket
		burst := cfg.BurstSize
		if burst <= 0 {
			burst = cfg.MaxRequests
		}
		cfg.BurstSize = burst
		l.buckets[key] = newTokenBucket(burst, float64(burst)/cfg.Window.Seconds(), l.now())
	case StrategySlidingWindow:
		l.windows[key] = newSlidingWindow(cfg.MaxRequests, cfg.Window)
	default:
		return fmt.Errorf("rate limit for %q: unknown strategy %q", key, cfg.Strategy)
	}

	l.configs[key] = cfg
	return nil
}

// Acquire admits one unit of work for key, suspending the caller until
// admission or until the wait budget elapses.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	return l.AcquireN(ctx, key, 1)
}

// AcquireN admits cost units of work for key. The wait budget is the smaller
// of the limiter's MaxWait and the context deadline. When the budget cannot
// cover the required wait it fails with *LimitExceededError without sleeping.
func (l *Limiter) AcquireN(ctx context.Context, key string, cost int) error {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	cfg, ok := l.configs[key]
	bucket := l.buckets[key]
	window := l.windows[key]
	l.mu.RUnlock()

	if !ok {
		// Fail-open for unconfigured keys.
		return nil
	}

	budget := l.MaxWait
	if budget <= 0 {
		budget = DefaultMaxWait
	}
	if deadline, has := ctx.Deadline(); has {
		if remaining := deadline.Sub(l.now()); remaining < budget {
			budget = remaining
		}
	}

	// Admit immediately when possible, otherwise wait once and retry. A
	// second miss after the computed wait means contention consumed the
	// freed capacity; surface that as exceeded rather than looping.
	for attempt := 0; attempt < 2; attempt++ {
		var (
			admitted bool
			wait     time.Duration
		)
		now := l.now()
		switch cfg.Strategy {
		case StrategyTokenBucket:
			admitted, wait = bucket.take(now, float64(cost))
		case StrategySlidingWindow:
			admitted, wait = window.take(now)
		}
		if admitted {
			return nil
		}
		if attempt == 1 || wait > budget {
			return &LimitExceededError{Key: key, Wait: wait}
		}
		if err := sleep(ctx, wait); err != nil {
			return &LimitExceededError{Key: key, Wait: wait}
		}
		budget -= wait
	}
	return &LimitExceededError{Key: key}
}

// Stats returns the current state for a key. It is a pure read: two
// consecutive calls with no intervening Acquire return identical values.
func (l *Limiter) Stats(key string) Stats {
	l.mu.RLock()
	cfg, ok := l.configs[key]
	bucket := l.buckets[key]
	window := l.windows[key]
	l.mu.RUnlock()

	if !ok {
		return Stats{}
	}

	now := l.now()
	stats := Stats{
		Configured:  true,
		Strategy:    cfg.Strategy,
		MaxRequests: cfg.MaxRequests,
		Window:      cfg.Window,
	}
	switch cfg.Strategy {
	case StrategyTokenBucket:
		stats.Tokens = bucket.level(now)
		stats.Capacity = cfg.BurstSize
		stats.RefillRate = bucket.refillRate
	case StrategySlidingWindow:
		stats.InWindow = window.occupancy(now)
	}
	return stats
}

// Keys returns the configured keys, for the status surface.
func (l *Limiter) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.configs))
	for key := range l.configs {
		keys = append(keys, key)
	}
	return keys
}

func (l *Limiter) now() time.Time {
	if l != nil && l.Clock != nil {
		return l.Clock()
	}
	return time.Now()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
