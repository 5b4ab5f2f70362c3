package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelaySchedule(t *testing.T) {
	base := time.Second
	max := time.Minute

	require.Equal(t, 1*time.Second, backoffDelay(base, max, 0))
	require.Equal(t, 2*time.Second, backoffDelay(base, max, 1))
	require.Equal(t, 4*time.Second, backoffDelay(base, max, 2))
	require.Equal(t, 32*time.Second, backoffDelay(base, max, 5))
	require.Equal(t, time.Minute, backoffDelay(base, max, 6))
	require.Equal(t, time.Minute, backoffDelay(base, max, 40))
}

func TestCircuitOpensAtThreshold(t *testing.T) {
	ep := newEndpoint(EndpointConfig{ID: "ep-1"})
	now := time.Now()

	for i := 0; i < 2; i++ {
		opened, _ := ep.recordFailure(now, 3, time.Second, time.Minute, false, false)
		require.False(t, opened)
	}
	require.Equal(t, string(CircuitClosed), ep.Status().Circuit)

	opened, cooldown := ep.recordFailure(now, 3, time.Second, time.Minute, false, false)
	require.True(t, opened)
	require.Equal(t, time.Second, cooldown)

	st := ep.Status()
	require.Equal(t, string(CircuitOpen), st.Circuit)
	require.Equal(t, 3, st.ConsecutiveFailures)
	require.Equal(t, now.Add(time.Second), st.OpenUntil)
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	ep := newEndpoint(EndpointConfig{ID: "ep-1"})
	now := time.Now()

	ep.recordFailure(now, 3, time.Second, time.Minute, false, false)
	ep.recordFailure(now, 3, time.Second, time.Minute, false, false)
	require.False(t, ep.recordSuccess())

	// Two stale failures plus two fresh ones must not trip a threshold of 3.
	opened, _ := ep.recordFailure(now, 3, time.Second, time.Minute, false, false)
	require.False(t, opened)
	opened, _ = ep.recordFailure(now, 3, time.Second, time.Minute, false, false)
	require.False(t, opened)
	require.Equal(t, string(CircuitClosed), ep.Status().Circuit)
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	ep := newEndpoint(EndpointConfig{ID: "ep-1"})
	now := time.Now()

	for i := 0; i < 3; i++ {
		ep.recordFailure(now, 3, time.Second, time.Minute, false, false)
	}

	_, ok := ep.acquireSlot(now)
	require.False(t, ok, "open circuit must reject before cooldown")

	after := now.Add(1500 * time.Millisecond)
	probe, ok := ep.acquireSlot(after)
	require.True(t, ok)
	require.True(t, probe)
	require.Equal(t, string(CircuitHalfOpen), ep.Status().Circuit)

	_, ok = ep.acquireSlot(after)
	require.False(t, ok, "only one probe may be in flight")
}

func TestProbeFailureReopensWithLargerCooldown(t *testing.T) {
	ep := newEndpoint(EndpointConfig{ID: "ep-1"})
	now := time.Now()

	for i := 0; i < 3; i++ {
		ep.recordFailure(now, 3, time.Second, time.Minute, false, false)
	}

	after := now.Add(2 * time.Second)
	_, ok := ep.acquireSlot(after)
	require.True(t, ok)

	opened, cooldown := ep.recordFailure(after, 3, time.Second, time.Minute, true, false)
	require.True(t, opened)
	require.Equal(t, 2*time.Second, cooldown)
}

func TestProbeSuccessClosesCircuit(t *testing.T) {
	ep := newEndpoint(EndpointConfig{ID: "ep-1"})
	now := time.Now()

	for i := 0; i < 3; i++ {
		ep.recordFailure(now, 3, time.Second, time.Minute, false, false)
	}

	after := now.Add(2 * time.Second)
	_, ok := ep.acquireSlot(after)
	require.True(t, ok)
	require.True(t, ep.recordSuccess())

	st := ep.Status()
	require.Equal(t, string(CircuitClosed), st.Circuit)
	require.Zero(t, st.ConsecutiveFailures)
	require.Zero(t, st.BackoffAttempt)
	require.True(t, st.OpenUntil.IsZero())
}

func TestPermanentFailureTripsImmediately(t *testing.T) {
	ep := newEndpoint(EndpointConfig{ID: "ep-1"})
	now := time.Now()

	opened, _ := ep.recordFailure(now, 3, time.Second, time.Minute, false, true)
	require.True(t, opened)
	require.Equal(t, string(CircuitOpen), ep.Status().Circuit)
}

func TestReleaseProbeFreesSlot(t *testing.T) {
	ep := newEndpoint(EndpointConfig{ID: "ep-1"})
	now := time.Now()

	for i := 0; i < 3; i++ {
		ep.recordFailure(now, 3, time.Second, time.Minute, false, false)
	}

	after := now.Add(2 * time.Second)
	_, ok := ep.acquireSlot(after)
	require.True(t, ok)

	ep.releaseProbe()
	probe, ok := ep.acquireSlot(after)
	require.True(t, ok)
	require.True(t, probe)
}
