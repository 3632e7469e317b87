package embedding

import (
	"fmt"
	"sync"
	"time"

	"github.com/kailas-cloud/trialfinder/internal/domain"
)

// RateLimiter is a sliding-window limiter: at most max calls are allowed
// in any window-long interval. Safe for concurrent use.
type RateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	calls  []time.Time // admitted call times, oldest first
	now    func() time.Time
}

// NewRateLimiter creates a limiter admitting max calls per window.
// A non-positive max or window disables limiting.
func NewRateLimiter(maxCalls int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		max:    maxCalls,
		window: window,
		now:    time.Now,
	}
}

// Allow records a call and returns nil, or returns domain.ErrRateLimited
// without recording when the window is full.
func (l *RateLimiter) Allow() error {
	if l == nil || l.max <= 0 || l.window <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	drop := 0
	for drop < len(l.calls) && l.calls[drop].Before(cutoff) {
		drop++
	}
	l.calls = l.calls[drop:]

	if len(l.calls) >= l.max {
		return fmt.Errorf("%w: max %d requests per %s", domain.ErrRateLimited, l.max, l.window)
	}
	l.calls = append(l.calls, now)
	return nil
}

// InWindow returns the number of calls admitted in the current window.
func (l *RateLimiter) InWindow() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	n := 0
	for _, t := range l.calls {
		if !t.Before(cutoff) {
			n++
		}
	}
	return n
}
