package spotify

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a sliding window rate limiter in front of every
// provider request.
type RateLimiter struct {
	mu           sync.Mutex
	requestTimes []time.Time
	maxRequests  int
	windowSize   time.Duration
	enabled      bool
	now          func() time.Time
}

// NewRateLimiter creates a new rate limiter allowing maxRequests per windowSeconds.
func NewRateLimiter(enabled bool, maxRequests int, windowSeconds float64) *RateLimiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	return &RateLimiter{
		maxRequests: maxRequests,
		windowSize:  time.Duration(windowSeconds * float64(time.Second)),
		enabled:     enabled,
		now:         time.Now,
	}
}

// reserve records a request when the window has room, otherwise it returns
// how long to wait before trying again.
func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.windowSize)

	valid := rl.requestTimes[:0]
	for _, t := range rl.requestTimes {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	rl.requestTimes = valid

	if len(rl.requestTimes) < rl.maxRequests {
		rl.requestTimes = append(rl.requestTimes, now)
		return 0
	}
	return rl.windowSize - now.Sub(rl.requestTimes[0])
}

// WaitIfNeeded blocks until a request can be made or ctx is done.
func (rl *RateLimiter) WaitIfNeeded(ctx context.Context) error {
	if !rl.enabled {
		return nil
	}

	for {
		wait := rl.reserve()
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
