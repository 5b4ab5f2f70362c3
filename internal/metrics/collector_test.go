package metrics

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCounterAccumulates(t *testing.T) {
	c := NewCollector(0)

	c.Inc("requests", 1, nil)
	c.Inc("requests", 1, nil)
	c.Inc("requests", 3, nil)

	stats := c.GetStats("requests", nil)
	require.Equal(t, KindCounter, stats.Kind)
	require.Equal(t, 5.0, stats.Value)
}

func TestGaugeOverwrites(t *testing.T) {
	c := NewCollector(0)

	c.SetGauge("tokens", 10, nil)
	c.SetGauge("tokens", 4.5, nil)

	require.Equal(t, 4.5, c.GetStats("tokens", nil).Value)
}

func TestHistogramPercentiles(t *testing.T) {
	c := NewCollector(0)

	for _, v := range []float64{10, 20, 30, 40, 50} {
		c.Observe("latency", v, nil)
	}

	stats := c.GetStats("latency", nil)
	require.Equal(t, 5, stats.Count)
	require.Equal(t, 150.0, stats.Sum)
	require.Equal(t, 30.0, stats.Avg)
	require.Equal(t, 10.0, stats.Min)
	require.Equal(t, 50.0, stats.Max)
	require.Equal(t, 30.0, stats.P50)
	require.Equal(t, 50.0, stats.P95)
	require.Equal(t, 50.0, stats.P99)
}

func TestTimerRecordsMilliseconds(t *testing.T) {
	c := NewCollector(0)

	c.Timing("call", 250*time.Millisecond, nil)
	c.Timing("call", 750*time.Millisecond, nil)

	stats := c.GetStats("call", nil)
	require.Equal(t, KindTimer, stats.Kind)
	require.Equal(t, 2, stats.Count)
	require.Equal(t, 250.0, stats.Min)
	require.Equal(t, 750.0, stats.Max)
}

func TestRingBufferBoundsRetention(t *testing.T) {
	c := NewCollector(10)

	for i := 0; i < 100; i++ {
		c.Observe("bounded", float64(i), nil)
	}

	stats := c.GetStats("bounded", nil)
	require.Equal(t, 10, stats.Count)
	// Only the most recent 10 samples survive.
	require.Equal(t, 90.0, stats.Min)
	require.Equal(t, 99.0, stats.Max)
}

func TestTagsSeparateSeries(t *testing.T) {
	c := NewCollector(0)

	c.Inc("requests", 1, map[string]string{"endpoint": "a", "status": "success"})
	c.Inc("requests", 2, map[string]string{"status": "success", "endpoint": "a"})
	c.Inc("requests", 7, map[string]string{"endpoint": "b", "status": "failure"})

	require.Equal(t, 3.0, c.GetStats("requests", map[string]string{"endpoint": "a", "status": "success"}).Value)
	require.Equal(t, 7.0, c.GetStats("requests", map[string]string{"endpoint": "b", "status": "failure"}).Value)

	snapshot := c.Snapshot()
	require.Len(t, snapshot, 2)
	require.Contains(t, snapshot, "requests[endpoint=a,status=success]")
}

func TestMixedRecordKindsKeepFirstKind(t *testing.T) {
	c := NewCollector(4)
	tags := map[string]string{"endpoint": "ep-1"}

	c.Inc("mixed", 2, tags)
	c.Observe("mixed", 10, tags)
	c.Timing("mixed", time.Millisecond, tags)

	stats := c.GetStats("mixed", tags)
	require.Equal(t, KindCounter, stats.Kind)
	require.Equal(t, 2.0, stats.Value)
}

func TestUnknownSeries(t *testing.T) {
	c := NewCollector(0)
	require.Equal(t, Stats{}, c.GetStats("missing", nil))
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector(0)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			name := fmt.Sprintf("series_%d", g%4)
			for i := 0; i < 200; i++ {
				c.Inc(name, 1, nil)
				c.Observe(name+"_hist", float64(i), nil)
			}
		}(g)
	}
	wg.Wait()

	total := 0.0
	for g := 0; g < 4; g++ {
		total += c.GetStats(fmt.Sprintf("series_%d", g), nil).Value
	}
	require.Equal(t, 1600.0, total)
}
