// Package ratelimit gates outbound upstream calls with a fixed-window
// counter. Coarse on purpose: a burst straddling a window boundary can
// briefly exceed the nominal rate, an accepted imprecision at this
// throughput.
package ratelimit

import (
	"sync"
	"time"
)

const (
	defaultLimit  = 60
	defaultWindow = time.Minute
)

// Limiter allows a fixed number of acquisitions per window. Guarded by a
// mutex; every operation is a single critical section.
type Limiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	windowStart time.Time
	count       int
	now         func() time.Time
}

// New creates a Limiter allowing limit acquisitions per window.
// Non-positive arguments fall back to 60 per minute.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = defaultLimit
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &Limiter{limit: limit, window: window, now: time.Now}
}

// TryAcquire consumes one slot if the current window has capacity.
// A refusal leaves the count untouched.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollLocked(l.now())
	if l.count >= l.limit {
		return false
	}
	l.count++
	return true
}

// RetryAfter reports how long until the current window rolls over. Attached
// as the retry hint to rate-limit refusals.
func (l *Limiter) RetryAfter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.windowStart.IsZero() {
		return 0
	}
	remaining := l.window - l.now().Sub(l.windowStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Usage reports the consumed and total slots of the current window. The
// caller uses it to tell the endpoint scorer when the budget is nearly
// spent.
func (l *Limiter) Usage() (count, limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollLocked(l.now())
	return l.count, l.limit
}

func (l *Limiter) rollLocked(now time.Time) {
	if l.windowStart.IsZero() || now.Sub(l.windowStart) > l.window {
		l.windowStart = now
		l.count = 0
	}
}
