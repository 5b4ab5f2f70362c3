package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLimiter(start time.Time) (*Limiter, *time.Time) {
	now := start
	limiter := New()
	limiter.Clock = func() time.Time { return now }
	return limiter, &now
}

func TestTokenBucketBurstThenRefill(t *testing.T) {
	limiter, now := newTestLimiter(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter.MaxWait = time.Millisecond

	require.NoError(t, limiter.Configure("openai", Config{
		MaxRequests: 10,
		Window:      10 * time.Second,
		Strategy:    StrategyTokenBucket,
	}))

	// Full burst admits instantly.
	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.Acquire(context.Background(), "openai"))
	}

	// The 11th call needs one refill interval and the wait budget is too
	// small to cover it.
	err := limiter.Acquire(context.Background(), "openai")
	var exceeded *LimitExceededError
	require.ErrorAs(t, err, &exceeded)
	require.Equal(t, "openai", exceeded.Key)
	require.InDelta(t, time.Second, exceeded.Wait, float64(10*time.Millisecond))

	// After one second a single token is back.
	*now = now.Add(time.Second)
	require.NoError(t, limiter.Acquire(context.Background(), "openai"))
	require.ErrorAs(t, limiter.Acquire(context.Background(), "openai"), &exceeded)
}

func TestTokenBucketAdmissionBound(t *testing.T) {
	limiter, now := newTestLimiter(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter.MaxWait = time.Microsecond

	require.NoError(t, limiter.Configure("k", Config{
		MaxRequests: 10,
		Window:      10 * time.Second, // 1 token/sec
	}))

	// Hammer the limiter over a simulated 5s span. Admissions within the
	// span must never exceed capacity + rate*span.
	admitted := 0
	for i := 0; i < 500; i++ {
		if limiter.Acquire(context.Background(), "k") == nil {
			admitted++
		}
		*now = now.Add(10 * time.Millisecond)
	}
	require.LessOrEqual(t, admitted, 10+5)
}

func TestSlidingWindowOccupancy(t *testing.T) {
	limiter, now := newTestLimiter(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter.MaxWait = time.Millisecond

	require.NoError(t, limiter.Configure("gemini", Config{
		MaxRequests: 3,
		Window:      time.Second,
		Strategy:    StrategySlidingWindow,
	}))

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Acquire(context.Background(), "gemini"))
	}
	require.Equal(t, 3, limiter.Stats("gemini").InWindow)

	var exceeded *LimitExceededError
	require.ErrorAs(t, limiter.Acquire(context.Background(), "gemini"), &exceeded)
	require.InDelta(t, time.Second, exceeded.Wait, float64(10*time.Millisecond))

	// Once the oldest admission leaves the window capacity returns.
	*now = now.Add(1100 * time.Millisecond)
	require.Equal(t, 0, limiter.Stats("gemini").InWindow)
	require.NoError(t, limiter.Acquire(context.Background(), "gemini"))
	require.Equal(t, 1, limiter.Stats("gemini").InWindow)
}

func TestStatsIsPureRead(t *testing.T) {
	limiter, now := newTestLimiter(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, limiter.Configure("bucket", Config{MaxRequests: 5, Window: 5 * time.Second}))
	require.NoError(t, limiter.Configure("window", Config{
		MaxRequests: 5,
		Window:      time.Minute,
		Strategy:    StrategySlidingWindow,
	}))

	require.NoError(t, limiter.Acquire(context.Background(), "bucket"))
	require.NoError(t, limiter.Acquire(context.Background(), "window"))
	*now = now.Add(500 * time.Millisecond)

	first := limiter.Stats("bucket")
	second := limiter.Stats("bucket")
	require.Equal(t, first, second)
	require.InDelta(t, 4.5, first.Tokens, 0.001)

	require.Equal(t, limiter.Stats("window"), limiter.Stats("window"))
	require.Equal(t, 1, limiter.Stats("window").InWindow)
}

func TestUnconfiguredKeyFailsOpen(t *testing.T) {
	limiter := New()
	limiter.MaxWait = time.Millisecond

	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Acquire(context.Background(), "unknown"))
	}
	require.False(t, limiter.Stats("unknown").Configured)
}

func TestConfigureValidation(t *testing.T) {
	limiter := New()

	require.Error(t, limiter.Configure("", Config{MaxRequests: 1, Window: time.Second}))
	require.Error(t, limiter.Configure("k", Config{MaxRequests: 0, Window: time.Second}))
	require.Error(t, limiter.Configure("k", Config{MaxRequests: 1, Window: time.Second, Strategy: "leaky_bucket"}))

	require.NoError(t, limiter.Configure("k", Config{MaxRequests: 1, Window: time.Second}))
	require.Error(t, limiter.Configure("k", Config{MaxRequests: 2, Window: time.Second}))
}

func TestAcquireWaitsForCapacity(t *testing.T) {
	limiter := New()
	require.NoError(t, limiter.Configure("fast", Config{
		MaxRequests: 2,
		Window:      100 * time.Millisecond, // 20 tokens/sec
	}))

	require.NoError(t, limiter.Acquire(context.Background(), "fast"))
	require.NoError(t, limiter.Acquire(context.Background(), "fast"))

	start := time.Now()
	require.NoError(t, limiter.Acquire(context.Background(), "fast"))
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestAcquireHonorsContextDeadline(t *testing.T) {
	limiter := New()
	require.NoError(t, limiter.Configure("slow", Config{
		MaxRequests: 1,
		Window:      10 * time.Second,
	}))
	require.NoError(t, limiter.Acquire(context.Background(), "slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := limiter.Acquire(ctx, "slow")
	var exceeded *LimitExceededError
	require.ErrorAs(t, err, &exceeded)
	require.Less(t, time.Since(start), time.Second)
}
