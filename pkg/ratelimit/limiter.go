// Package ratelimit is a per-client sliding-window rate limiter for the
// HTTP surface.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults for the HTTP surface: 100 requests per rolling minute.
const (
	DefaultMaxRequests = 100
	DefaultWindow      = time.Minute
)

// Result reports one admission decision.
type Result struct {
	Allowed    bool
	Current    int
	Limit      int
	RetryAfter time.Duration
}

// Limiter admits up to maxRequests per identifier within a sliding
// window. Timestamps are pruned lazily on each check.
type Limiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time // replaced in tests

	mu      sync.Mutex
	history map[string][]time.Time
}

// NewLimiter creates a limiter; non-positive arguments use the defaults.
func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		history:     make(map[string][]time.Time),
	}
}

// Allow records one request for the identifier and reports whether it is
// within the limit. The request at exactly maxRequests within the window
// passes; the next one fails.
func (l *Limiter) Allow(identifier string) Result {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := prune(l.history[identifier], cutoff)
	if len(recent) >= l.maxRequests {
		l.history[identifier] = recent
		return Result{
			Allowed:    false,
			Current:    len(recent),
			Limit:      l.maxRequests,
			RetryAfter: recent[0].Add(l.window).Sub(now),
		}
	}

	recent = append(recent, now)
	l.history[identifier] = recent
	return Result{Allowed: true, Current: len(recent), Limit: l.maxRequests}
}

// Reset forgets the identifier's history.
func (l *Limiter) Reset(identifier string) {
	l.mu.Lock()
	delete(l.history, identifier)
	l.mu.Unlock()
}

// Prune drops identifiers whose entire history has aged out. Call
// periodically to bound memory.
func (l *Limiter) Prune() {
	cutoff := l.now().Add(-l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, timestamps := range l.history {
		recent := prune(timestamps, cutoff)
		if len(recent) == 0 {
			delete(l.history, id)
		} else {
			l.history[id] = recent
		}
	}
}

func prune(timestamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(timestamps) && !timestamps[i].After(cutoff) {
		i++
	}
	return timestamps[i:]
}
