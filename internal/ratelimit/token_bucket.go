package ratelimit

import (
	"sync"
	"time"
)

// tokenBucket holds capacity tokens refilled continuously at refillRate
// tokens per second. All mutation happens under mu.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
}

func newTokenBucket(capacity int, refillRate float64, now time.Time) *tokenBucket {
	return &tokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: now,
	}
}

// take refills the bucket and debits cost tokens if available. When the
// bucket cannot cover the cost it reports the wait until enough tokens
// accumulate.
func (b *tokenBucket) take(now time.Time, cost float64) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	if b.tokens >= cost {
		b.tokens -= cost
		return true, 0
	}

	needed := cost - b.tokens
	wait := time.Duration(needed / b.refillRate * float64(time.Second))
	return false, wait
}

// level reports the token count as of now without mutating bucket state.
func (b *tokenBucket) level(now time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return b.tokens
	}
	tokens := b.tokens + elapsed*b.refillRate
	if tokens > b.capacity {
		tokens = b.capacity
	}
	return tokens
}

func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}
