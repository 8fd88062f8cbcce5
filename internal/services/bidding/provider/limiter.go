package provider

import (
	"sync"
	"time"
)

const rateWindow = time.Minute

// slidingWindow admits at most limit events per rolling minute.
type slidingWindow struct {
	mu     sync.Mutex
	limit  int
	events []time.Time
}

func newSlidingWindow(limit int) *slidingWindow {
	return &slidingWindow{limit: limit}
}

// allow records an event at now when the window has room.
func (w *slidingWindow) allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	if w.limit > 0 && len(w.events) >= w.limit {
		return false
	}
	w.events = append(w.events, now)
	return true
}

// hasRoom reports whether allow would succeed without recording anything.
func (w *slidingWindow) hasRoom(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	return w.limit <= 0 || len(w.events) < w.limit
}

func (w *slidingWindow) used(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	return len(w.events)
}

func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-rateWindow)
	keep := 0
	for keep < len(w.events) && !w.events[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		w.events = append(w.events[:0], w.events[keep:]...)
	}
}
