package spotify

import (
	"context"
	"sync"
	"time"
)

// RateLimitInfo holds information about an active provider rate limit.
type RateLimitInfo struct {
	Active     bool
	RetryAfter time.Duration
	Until      time.Time
	DetectedAt time.Time
}

// RateLimitTracker remembers the last 429 so later requests hold off until
// the provider's Retry-After has passed.
type RateLimitTracker struct {
	mu   sync.Mutex
	info *RateLimitInfo
	now  func() time.Time
}

// NewRateLimitTracker creates a new rate limit tracker.
func NewRateLimitTracker() *RateLimitTracker {
	return &RateLimitTracker{now: time.Now}
}

// Update records a rate limit lasting retryAfterSeconds from now.
func (t *RateLimitTracker) Update(retryAfterSeconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	d := time.Duration(retryAfterSeconds) * time.Second
	t.info = &RateLimitInfo{
		Active:     true,
		RetryAfter: d,
		Until:      now.Add(d),
		DetectedAt: now,
	}
}

// GetInfo returns a copy of the active rate limit, or nil once it has expired.
func (t *RateLimitTracker) GetInfo() *RateLimitInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.info == nil {
		return nil
	}
	if !t.now().Before(t.info.Until) {
		t.info = nil
		return nil
	}
	info := *t.info
	return &info
}

// Wait blocks until any active rate limit has expired or ctx is done.
func (t *RateLimitTracker) Wait(ctx context.Context) error {
	info := t.GetInfo()
	if info == nil {
		return nil
	}
	timer := time.NewTimer(info.Until.Sub(t.now()))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
