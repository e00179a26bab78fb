package fanout

import "sync"

// Throttle enforces the broadcast cadence ceiling (spec.md §4.10
// "bounded cadence, default >= 4 Hz, <= 20 Hz per symbol"). The floor
// is a property of how often the Symbol Coordinator calls in, not
// something this package can enforce on its own; Throttle only ever
// holds a tick back, never forces one out.
type Throttle struct {
	mu            sync.Mutex
	minIntervalMs int64
	lastSentMs    map[string]int64
}

// NewThrottle builds a cadence gate with the given minimum spacing
// between broadcasts for the same symbol.
func NewThrottle(minIntervalMs int64) *Throttle {
	return &Throttle{minIntervalMs: minIntervalMs, lastSentMs: make(map[string]int64)}
}

// Allow reports whether a broadcast for symbol at nowMs is far enough
// past the last one to go out; if so it records nowMs as the new
// baseline.
func (t *Throttle) Allow(symbol string, nowMs int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastSentMs[symbol]
	if ok && nowMs-last < t.minIntervalMs {
		return false
	}
	t.lastSentMs[symbol] = nowMs
	return true
}
