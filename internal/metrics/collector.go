// Package metrics provides an in-memory metrics collector for the dispatch
// layer: counters, gauges, histograms and timers with percentile queries.
// Histogram and timer series are retained in bounded ring buffers so memory
// never grows without bound.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Kind identifies how a series accumulates samples.
type Kind string

const (
	KindCounter   Kind = "counter"
	KindGauge     Kind = "gauge"
	KindHistogram Kind = "histogram"
	KindTimer     Kind = "timer"
)

// DefaultMaxSamples is the per-series ring buffer size for histograms and
// timers.
const DefaultMaxSamples = 1000

// Stats summarizes a series. Distribution fields are computed over the
// currently retained samples using nearest-rank percentiles.
type Stats struct {
	Kind  Kind    `json:"kind"`
	Value float64 `json:"value,omitempty"` // counter total or gauge level

	Count int     `json:"count,omitempty"`
	Sum   float64 `json:"sum,omitempty"`
	Avg   float64 `json:"avg,omitempty"`
	Min   float64 `json:"min,omitempty"`
	Max   float64 `json:"max,omitempty"`
	P50   float64 `json:"p50,omitempty"`
	P95   float64 `json:"p95,omitempty"`
	P99   float64 `json:"p99,omitempty"`
}

// Collector accumulates metric series keyed by name and tags. Each series
// carries its own lock so concurrent dispatch paths recording different
// metrics never contend on a global lock.
type Collector struct {
	mu         sync.RWMutex
	series     map[string]*series
	maxSamples int
}

type series struct {
	mu      sync.Mutex
	kind    Kind
	counter float64
	gauge   float64
	samples []float64
	next    int
	full    bool
}

// NewCollector returns a collector retaining at most maxSamples histogram and
// timer samples per series. Zero or negative means DefaultMaxSamples.
func NewCollector(maxSamples int) *Collector {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Collector{
		series:     make(map[string]*series),
		maxSamples: maxSamples,
	}
}

// Inc adds value to a counter. Counters accumulate monotonically.
func (c *Collector) Inc(name string, value float64, tags map[string]string) {
	s := c.get(KindCounter, name, tags)
	s.mu.Lock()
	s.counter += value
	s.mu.Unlock()
}

// SetGauge overwrites a gauge level.
func (c *Collector) SetGauge(name string, value float64, tags map[string]string) {
	s := c.get(KindGauge, name, tags)
	s.mu.Lock()
	s.gauge = value
	s.mu.Unlock()
}

// Observe appends a histogram sample, evicting the oldest when the ring is
// full.
func (c *Collector) Observe(name string, value float64, tags map[string]string) {
	c.append(KindHistogram, name, tags, value)
}

// Timing records a timer sample in milliseconds.
func (c *Collector) Timing(name string, d time.Duration, tags map[string]string) {
	c.append(KindTimer, name, tags, float64(d)/float64(time.Millisecond))
}

// GetStats computes the summary for a series. The zero Stats is returned for
// unknown series.
func (c *Collector) GetStats(name string, tags map[string]string) Stats {
	c.mu.RLock()
	s := c.series[seriesKey(name, tags)]
	c.mu.RUnlock()
	if s == nil {
		return Stats{}
	}
	return s.stats()
}

// Snapshot summarizes every known series, for the status surface.
func (c *Collector) Snapshot() map[string]Stats {
	c.mu.RLock()
	all := make(map[string]*series, len(c.series))
	for key, s := range c.series {
		all[key] = s
	}
	c.mu.RUnlock()

	out := make(map[string]Stats, len(all))
	for key, s := range all {
		out[key] = s.stats()
	}
	return out
}

func (c *Collector) append(kind Kind, name string, tags map[string]string, value float64) {
	s := c.get(kind, name, tags)
	s.mu.Lock()
	if cap(s.samples) == 0 {
		// The series was first created as a counter or gauge under the same
		// key. Keep its kind but allocate the ring so samples never panic.
		s.samples = make([]float64, 0, c.maxSamples)
	}
	if len(s.samples) < cap(s.samples) {
		s.samples = append(s.samples, value)
	} else {
		s.samples[s.next] = value
		s.full = true
	}
	s.next = (s.next + 1) % cap(s.samples)
	s.mu.Unlock()
}

func (c *Collector) get(kind Kind, name string, tags map[string]string) *series {
	key := seriesKey(name, tags)

	c.mu.RLock()
	s, ok := c.series[key]
	c.mu.RUnlock()
	if ok {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.series[key]; ok {
		return s
	}
	s = &series{kind: kind}
	if kind == KindHistogram || kind == KindTimer {
		s.samples = make([]float64, 0, c.maxSamples)
	}
	c.series[key] = s
	return s
}

func (s *series) stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Stats{Kind: s.kind}
	switch s.kind {
	case KindCounter:
		out.Value = s.counter
	case KindGauge:
		out.Value = s.gauge
	case KindHistogram, KindTimer:
		if len(s.samples) == 0 {
			return out
		}
		values := make([]float64, len(s.samples))
		copy(values, s.samples)
		sort.Float64s(values)

		out.Count = len(values)
		out.Min = values[0]
		out.Max = values[len(values)-1]
		for _, v := range values {
			out.Sum += v
		}
		out.Avg = out.Sum / float64(len(values))
		out.P50 = percentile(values, 0.50)
		out.P95 = percentile(values, 0.95)
		out.P99 = percentile(values, 0.99)
	}
	return out
}

// percentile is nearest-rank over sorted values.
func percentile(sorted []float64, p float64) float64 {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// seriesKey renders "name[k1=v1,k2=v2]" with sorted tag keys so the same
// name+tags always map to the same series.
func seriesKey(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%s", k, tags[k])
	}
	b.WriteByte(']')
	return b.String()
}
