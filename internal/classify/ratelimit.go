package classify

import (
	"sync"
	"time"
)

// RateWindow admits at most quota calls in any rolling window. It is
// safe for concurrent use; the ingest worker and the sync scheduler
// both draw from the same window so the authoritative backend sees one
// combined budget.
type RateWindow struct {
	mu     sync.Mutex
	quota  int
	window time.Duration
	calls  []time.Time
	now    func() time.Time
}

// NewRateWindow creates a window admitting quota calls per window
// duration.
func NewRateWindow(quota int, window time.Duration) *RateWindow {
	return &RateWindow{quota: quota, window: window, now: time.Now}
}

// Reserve consumes one slot if the window has room. When the window is
// exhausted it reports false and how long until the oldest counted
// call ages out.
func (r *RateWindow) Reserve() (ok bool, retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)
	kept := r.calls[:0]
	for _, c := range r.calls {
		if c.After(cutoff) {
			kept = append(kept, c)
		}
	}
	r.calls = kept

	if len(r.calls) >= r.quota {
		return false, r.calls[0].Add(r.window).Sub(now)
	}
	r.calls = append(r.calls, now)
	return true, 0
}

// Remaining reports how many slots are currently free.
func (r *RateWindow) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	n := 0
	for _, c := range r.calls {
		if c.After(cutoff) {
			n++
		}
	}
	return max(r.quota-n, 0)
}
