// Package ratelimit implements per-key sliding-window throttling for
// public endpoints. State is process-local and best-effort: resetting
// on restart is acceptable because this guards against abuse, not a
// security boundary.
package ratelimit

import (
	"sync" // Lock-guarded bucket map
	"time" // Window arithmetic
)

// Limiter admits up to limit events per key within a moving window
type Limiter struct {
	mu      sync.Mutex             // Guards buckets
	limit   int                    // Maximum events inside the window
	window  time.Duration          // Window length
	now     func() time.Time       // Clock, injectable for tests
	buckets map[string][]time.Time // Recent event timestamps per key
}

// New creates a limiter using the wall clock
func New(limit int, window time.Duration) *Limiter {
	return NewWithClock(limit, window, time.Now)
}

// NewWithClock creates a limiter with an explicit clock
func NewWithClock(limit int, window time.Duration, now func() time.Time) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		now:     now,
		buckets: make(map[string][]time.Time),
	}
}

// Allow records an event for the key and reports whether it is
// admitted. Entries older than now-window are purged first; the event
// is admitted while the remaining count is below the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cutoff := now.Add(-l.window)
	bucket := l.buckets[key]
	// Purge entries that slid out of the window
	kept := bucket[:0]
	for _, t := range bucket {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.limit {
		l.buckets[key] = kept
		return false
	}
	l.buckets[key] = append(kept, now)
	return true
}
