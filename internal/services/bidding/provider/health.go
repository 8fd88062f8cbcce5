package provider

import (
	"sync"
	"time"
)

// healthRegistry tracks when each failed provider becomes usable again.
// A provider without an entry is healthy.
type healthRegistry struct {
	mu       sync.Mutex
	recovery time.Duration
	until    map[ID]time.Time
}

func newHealthRegistry(recovery time.Duration) *healthRegistry {
	return &healthRegistry{recovery: recovery, until: make(map[ID]time.Time)}
}

func (h *healthRegistry) usable(provider ID, now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	until, ok := h.until[provider]
	if !ok {
		return true
	}
	if now.Before(until) {
		return false
	}
	delete(h.until, provider)
	return true
}

func (h *healthRegistry) markFailed(provider ID, now time.Time) time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	until := now.Add(h.recovery)
	h.until[provider] = until
	return until
}

func (h *healthRegistry) recoversAt(provider ID) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	until, ok := h.until[provider]
	return until, ok
}
