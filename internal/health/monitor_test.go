package health

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wingmanhq/dispatch/internal/metrics"
)

func staticCheck(status Status, message string) CheckFunc {
	return func(context.Context) (Status, string, error) {
		return status, message, nil
	}
}

func TestRunChecksAggregatesWorstStatus(t *testing.T) {
	m := NewMonitor(nil, nil, 0)
	require.NoError(t, m.RegisterCheck("a", staticCheck(StatusHealthy, "")))
	require.NoError(t, m.RegisterCheck("b", staticCheck(StatusDegraded, "getting slow")))
	require.NoError(t, m.RegisterCheck("c", staticCheck(StatusHealthy, "")))

	report := m.RunChecks(context.Background())
	require.Equal(t, StatusDegraded, report.Status)
	require.Len(t, report.Checks, 3)
	require.Equal(t, "getting slow", report.Checks["b"].Message)

	require.NoError(t, m.RegisterCheck("d", staticCheck(StatusUnhealthy, "down")))
	report = m.RunChecks(context.Background())
	require.Equal(t, StatusUnhealthy, report.Status)
}

func TestCheckErrorIsUnhealthy(t *testing.T) {
	m := NewMonitor(nil, nil, 0)
	require.NoError(t, m.RegisterCheck("db", func(context.Context) (Status, string, error) {
		return StatusHealthy, "", fmt.Errorf("connection refused")
	}))

	report := m.RunChecks(context.Background())
	require.Equal(t, StatusUnhealthy, report.Status)
	require.Equal(t, "connection refused", report.Checks["db"].Message)
}

func TestPanickingCheckIsIsolated(t *testing.T) {
	m := NewMonitor(nil, nil, 0)
	require.NoError(t, m.RegisterCheck("boom", func(context.Context) (Status, string, error) {
		panic("kaput")
	}))
	require.NoError(t, m.RegisterCheck("ok", staticCheck(StatusHealthy, "")))

	report := m.RunChecks(context.Background())
	require.Equal(t, StatusUnhealthy, report.Status)
	require.Equal(t, StatusUnhealthy, report.Checks["boom"].Status)
	require.Contains(t, report.Checks["boom"].Message, "kaput")
	require.Equal(t, StatusHealthy, report.Checks["ok"].Status)
}

func TestRegisterCheckValidation(t *testing.T) {
	m := NewMonitor(nil, nil, 0)
	require.Error(t, m.RegisterCheck("", staticCheck(StatusHealthy, "")))
	require.Error(t, m.RegisterCheck("a", nil))
	require.NoError(t, m.RegisterCheck("a", staticCheck(StatusHealthy, "")))
	require.Error(t, m.RegisterCheck("a", staticCheck(StatusHealthy, "")))
	require.Equal(t, []string{"a"}, m.CheckNames())
}

func TestLastReportBeforeFirstRun(t *testing.T) {
	m := NewMonitor(nil, nil, 0)
	_, ok := m.LastReport()
	require.False(t, ok)

	m.RunChecks(context.Background())
	report, ok := m.LastReport()
	require.True(t, ok)
	require.Equal(t, StatusHealthy, report.Status)
}

func TestCheckLatencyRecorded(t *testing.T) {
	collector := metrics.NewCollector(0)
	m := NewMonitor(collector, nil, 0)
	require.NoError(t, m.RegisterCheck("slow", func(context.Context) (Status, string, error) {
		time.Sleep(5 * time.Millisecond)
		return StatusHealthy, "", nil
	}))

	report := m.RunChecks(context.Background())
	require.GreaterOrEqual(t, report.Checks["slow"].Latency, 5*time.Millisecond)

	stats := collector.GetStats(metrics.HealthCheckTotal, map[string]string{"check": "slow", "status": "healthy"})
	require.Equal(t, float64(1), stats.Value)
}

func TestBackgroundLoopRunsAndStops(t *testing.T) {
	var runs atomic.Int64
	m := NewMonitor(nil, nil, 10*time.Millisecond)
	require.NoError(t, m.RegisterCheck("tick", func(context.Context) (Status, string, error) {
		runs.Add(1)
		return StatusHealthy, "", nil
	}))

	m.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	m.Stop()

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, runs.Load())

	_, ok := m.LastReport()
	require.True(t, ok)
}

func TestErrorRateCheckThresholds(t *testing.T) {
	collector := metrics.NewCollector(0)
	check := ErrorRateCheck(collector, 10, 0.10, 0.50)

	status, _, err := check(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusHealthy, status, "no traffic means no signal")

	for i := 0; i < 16; i++ {
		metrics.RecordDispatch(collector, "ep-1", true, time.Millisecond)
	}
	for i := 0; i < 4; i++ {
		metrics.RecordDispatch(collector, "ep-1", false, time.Millisecond)
	}

	status, msg, err := check(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusDegraded, status)
	require.Contains(t, msg, "20.0%")

	for i := 0; i < 20; i++ {
		metrics.RecordDispatch(collector, "ep-1", false, time.Millisecond)
	}
	status, _, err = check(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusUnhealthy, status)
}
