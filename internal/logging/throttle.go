package logging

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultThrottleInterval is the minimum spacing between coalesced
// non-critical log lines, per spec.md §4.5 ("Log throttling").
const DefaultThrottleInterval = 80 * time.Millisecond

// ThrottledHook wraps another logrus.Hook and rate-limits how often it fires
// for Info/Debug/Trace entries, so a tight loop over thousands of TL entries
// doesn't flood a UI consumer. Warnings and errors always bypass the
// throttle and fire immediately.
type ThrottledHook struct {
	next     log.Hook
	interval time.Duration

	mu       sync.Mutex
	lastFire time.Time
	pending  *log.Entry
	dropped  int
}

// NewThrottledHook wraps next with the given coalescing interval. If
// interval is <= 0, DefaultThrottleInterval is used.
func NewThrottledHook(next log.Hook, interval time.Duration) *ThrottledHook {
	if interval <= 0 {
		interval = DefaultThrottleInterval
	}
	return &ThrottledHook{next: next, interval: interval}
}

// Levels implements logrus.Hook.
func (h *ThrottledHook) Levels() []log.Level {
	return log.AllLevels
}

// Fire implements logrus.Hook. Errors and warnings always pass through;
// everything else is coalesced to at most one entry per interval, with a
// "suppressed N log lines" note merged into the next entry that does fire.
func (h *ThrottledHook) Fire(entry *log.Entry) error {
	if entry.Level <= log.WarnLevel {
		return h.next.Fire(entry)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := entry.Time
	if now.IsZero() {
		now = time.Now()
	}

	if now.Sub(h.lastFire) < h.interval {
		h.dropped++
		h.pending = entry
		return nil
	}

	h.lastFire = now
	toFire := entry
	if h.dropped > 0 {
		clone := entry.WithField("suppressed_log_lines", h.dropped)
		toFire = clone
	}
	h.dropped = 0
	h.pending = nil
	return h.next.Fire(toFire)
}
