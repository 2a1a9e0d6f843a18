package signal

import (
	"sync"
	"time"
)

// RateLimiter caps the inbound relay events (every decoded envelope, valid
// or not) a single connection may send within a sliding window. The gateway
// owns one per connection and closes the connection with a rate_limited
// error once Allow returns false.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	seen   []time.Time // accepted event times, oldest first
}

// NewRateLimiter uses rateLimitEvents per rateLimitWindow for non-positive inputs.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{limit: limit, window: window, seen: make([]time.Time, 0, limit)}
}

// Allow records an event at now and reports whether it fits in the window.
// Rejected events are not recorded.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictBefore(now.Add(-r.window))
	if len(r.seen) == r.limit {
		return false
	}
	r.seen = append(r.seen, now)
	return true
}

// evictBefore drops events at or before cut.
func (r *RateLimiter) evictBefore(cut time.Time) {
	keep := 0
	for keep < len(r.seen) && !r.seen[keep].After(cut) {
		keep++
	}
	if keep > 0 {
		r.seen = append(r.seen[:0], r.seen[keep:]...)
	}
}
