package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/wingmanhq/dispatch/internal/metrics"
)

// Default resource thresholds as used-percent values, applied when a
// threshold argument is zero or negative.
const (
	MemoryDegradedPercent  = 80.0
	MemoryUnhealthyPercent = 90.0
	DiskDegradedPercent    = 85.0
	DiskUnhealthyPercent   = 95.0
)

// MemoryCheck reports system memory pressure against the given used-percent
// thresholds.
func MemoryCheck(degraded, unhealthy float64) CheckFunc {
	if degraded <= 0 {
		degraded = MemoryDegradedPercent
	}
	if unhealthy <= 0 {
		unhealthy = MemoryUnhealthyPercent
	}
	return func(ctx context.Context) (Status, string, error) {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return StatusUnhealthy, "", fmt.Errorf("read memory stats: %w", err)
		}

		switch {
		case vm.UsedPercent >= unhealthy:
			return StatusUnhealthy, fmt.Sprintf("memory usage critical: %.1f%%", vm.UsedPercent), nil
		case vm.UsedPercent >= degraded:
			return StatusDegraded, fmt.Sprintf("memory usage high: %.1f%%", vm.UsedPercent), nil
		}
		return StatusHealthy, fmt.Sprintf("memory usage: %.1f%%", vm.UsedPercent), nil
	}
}

// DiskCheck reports disk pressure for the filesystem at path against the
// given used-percent thresholds.
func DiskCheck(path string, degraded, unhealthy float64) CheckFunc {
	if path == "" {
		path = "/"
	}
	if degraded <= 0 {
		degraded = DiskDegradedPercent
	}
	if unhealthy <= 0 {
		unhealthy = DiskUnhealthyPercent
	}
	return func(ctx context.Context) (Status, string, error) {
		usage, err := disk.UsageWithContext(ctx, path)
		if err != nil {
			return StatusUnhealthy, "", fmt.Errorf("read disk stats for %s: %w", path, err)
		}

		switch {
		case usage.UsedPercent >= unhealthy:
			return StatusUnhealthy, fmt.Sprintf("disk usage critical: %.1f%%", usage.UsedPercent), nil
		case usage.UsedPercent >= degraded:
			return StatusDegraded, fmt.Sprintf("disk usage high: %.1f%%", usage.UsedPercent), nil
		}
		return StatusHealthy, fmt.Sprintf("disk usage: %.1f%%", usage.UsedPercent), nil
	}
}

// ErrorRateCheck reports the dispatch failure rate observed by the collector.
// Below minSamples total requests the check stays healthy; a fresh process
// has no signal yet.
func ErrorRateCheck(collector *metrics.Collector, minSamples int, degraded, unhealthy float64) CheckFunc {
	if minSamples <= 0 {
		minSamples = 10
	}
	if degraded <= 0 {
		degraded = 0.10
	}
	if unhealthy <= 0 {
		unhealthy = 0.50
	}
	return func(ctx context.Context) (Status, string, error) {
		total, failures := dispatchTotals(collector)
		if total < float64(minSamples) {
			return StatusHealthy, fmt.Sprintf("insufficient traffic: %d requests", int(total)), nil
		}

		rate := failures / total
		msg := fmt.Sprintf("error rate %.1f%% over %d requests", rate*100, int(total))
		switch {
		case rate >= unhealthy:
			return StatusUnhealthy, msg, nil
		case rate >= degraded:
			return StatusDegraded, msg, nil
		}
		return StatusHealthy, msg, nil
	}
}

// dispatchTotals sums the request counter across all endpoint series.
func dispatchTotals(collector *metrics.Collector) (total, failures float64) {
	if collector == nil {
		return 0, 0
	}
	prefix := metrics.DispatchRequestsTotal + "["
	for key, stats := range collector.Snapshot() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		total += stats.Value
		if strings.Contains(key, "status=failure") {
			failures += stats.Value
		}
	}
	return total, failures
}
