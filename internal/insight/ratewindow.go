package insight

import (
	"sync"
	"time"
)

const (
	DefaultRatePerMinute = 60
	rateWindowSpan       = 60 * time.Second
)

// RateWindow admits at most quota calls in any trailing 60s window.
type RateWindow struct {
	mu    sync.Mutex
	quota int
	now   func() time.Time
	calls []time.Time
}

func NewRateWindow(quota int, now func() time.Time) *RateWindow {
	if quota <= 0 {
		quota = DefaultRatePerMinute
	}
	if now == nil {
		now = time.Now
	}
	return &RateWindow{quota: quota, now: now}
}

// Allow records a call and returns true, or returns false without recording
// when the quota is exhausted.
func (w *RateWindow) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.prune(now)
	if len(w.calls) >= w.quota {
		return false
	}
	w.calls = append(w.calls, now)
	return true
}

func (w *RateWindow) Limited() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.calls) >= w.quota
}

func (w *RateWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.calls)
}

func (w *RateWindow) Quota() int { return w.quota }

func (w *RateWindow) prune(now time.Time) {
	i := 0
	for i < len(w.calls) && now.Sub(w.calls[i]) > rateWindowSpan {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
}
