package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryCheckHonorsThresholds(t *testing.T) {
	// Any running process uses more than a thousandth of a percent.
	status, msg, err := MemoryCheck(0.0001, 0.0002)(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusUnhealthy, status)
	require.Contains(t, msg, "memory usage critical")

	status, _, err = MemoryCheck(100, 101)(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusHealthy, status)
}

func TestDiskCheckHonorsThresholds(t *testing.T) {
	status, _, err := DiskCheck("/", 100, 101)(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusHealthy, status)
}

func TestDiskCheckUnknownPathIsUnhealthy(t *testing.T) {
	status, _, err := DiskCheck("/definitely/not/a/mount", 0, 0)(context.Background())
	require.Error(t, err)
	require.Equal(t, StatusUnhealthy, status)
}
