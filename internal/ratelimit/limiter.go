// Package ratelimit caps recon requests per caller with a sliding one-minute
// window and a concurrency limit.
package ratelimit

import (
	"sync"
	"time"
)

const window = time.Minute

const (
	// ReasonConcurrent is returned when the caller already runs the maximum.
	ReasonConcurrent = "too many concurrent requests"
	// ReasonRate is returned when the caller used up its window.
	ReasonRate = "rate limit exceeded"
)

// callerWindow is the sliding window of one caller.
type callerWindow struct {
	requests []time.Time
	active   int
}

// Limiter implements per-caller sliding window rate limiting. K identifies a
// caller: a Telegram user id or a client address. A limit of zero or less
// disables that check. A nil *Limiter allows everything.
type Limiter[K comparable] struct {
	mu                sync.Mutex
	requestsPerMinute int
	maxConcurrent     int
	callers           map[K]*callerWindow
	now               func() time.Time
}

// New creates a limiter with the given per-caller limits
func New[K comparable](requestsPerMinute, maxConcurrent int) *Limiter[K] {
	return &Limiter[K]{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		callers:           make(map[K]*callerWindow),
		now:               time.Now,
	}
}

// Acquire records the start of a request for key if it is allowed. When it is
// not, the returned reason says why. Every successful Acquire must be matched
// by a Release.
func (l *Limiter[K]) Acquire(key K) (bool, string) {
	if l == nil {
		return true, ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.window(key)

	if l.maxConcurrent > 0 && w.active >= l.maxConcurrent {
		return false, ReasonConcurrent
	}

	if l.requestsPerMinute > 0 && len(w.requests) >= l.requestsPerMinute {
		return false, ReasonRate
	}

	w.requests = append(w.requests, l.now())
	w.active++
	return true, ""
}

// Release records the end of a request
func (l *Limiter[K]) Release(key K) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if w, ok := l.callers[key]; ok && w.active > 0 {
		w.active--
	}
}

// UpdateLimits updates the rate limits
func (l *Limiter[K]) UpdateLimits(requestsPerMinute, maxConcurrent int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.requestsPerMinute = requestsPerMinute
	l.maxConcurrent = maxConcurrent
}

// GetStats returns the request count in the current window and the number of
// running requests of key
func (l *Limiter[K]) GetStats(key K) (requestCount, concurrentCount int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.window(key)
	return len(w.requests), w.active
}

// window prunes and returns key's window. Idle callers are dropped. Callers
// hold l.mu.
func (l *Limiter[K]) window(key K) *callerWindow {
	w, ok := l.callers[key]
	if !ok {
		w = &callerWindow{}
		l.callers[key] = w
	}

	cutoff := l.now().Add(-window)
	valid := w.requests[:0]
	for _, t := range w.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	w.requests = valid

	for k, other := range l.callers {
		if k != key && other.active == 0 && len(other.requests) > 0 && !other.requests[len(other.requests)-1].After(cutoff) {
			delete(l.callers, k)
		}
	}

	return w
}
