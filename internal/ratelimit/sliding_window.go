package ratelimit

import (
	"sync"
	"time"
)

// slidingWindow tracks admitted-request timestamps within a trailing
// interval. At most maxRequests timestamps ever fall inside any trailing
// window-sized interval.
type slidingWindow struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	stamps      []time.Time
}

func newSlidingWindow(maxRequests int, window time.Duration) *slidingWindow {
	return &slidingWindow{
		maxRequests: maxRequests,
		window:      window,
	}
}

// take prunes expired timestamps and admits the request if capacity remains,
// recording now. Otherwise it reports the wait until the oldest admitted
// timestamp leaves the window.
func (w *slidingWindow) take(now time.Time) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	if len(w.stamps) < w.maxRequests {
		w.stamps = append(w.stamps, now)
		return true, 0
	}

	wait := w.stamps[0].Add(w.window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return false, wait
}

// occupancy counts the admitted timestamps still inside the window without
// mutating state.
func (w *slidingWindow) occupancy(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.window)
	count := 0
	for _, stamp := range w.stamps {
		if stamp.After(cutoff) {
			count++
		}
	}
	return count
}

func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	idx := 0
	for idx < len(w.stamps) && !w.stamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[idx:]...)
	}
}
