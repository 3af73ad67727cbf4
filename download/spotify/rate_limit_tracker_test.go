package spotify

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitTracker_Update(t *testing.T) {
	clock := &fakeClock{t: time.Unix(5000, 0)}
	tracker := NewRateLimitTracker()
	tracker.now = clock.now

	tracker.Update(10)
	info := tracker.GetInfo()
	if info == nil {
		t.Fatal("Expected rate limit info, got nil")
	}
	if !info.Active {
		t.Error("Expected Active to be true")
	}
	if info.RetryAfter != 10*time.Second {
		t.Errorf("Expected RetryAfter 10s, got %v", info.RetryAfter)
	}
	if !info.Until.Equal(time.Unix(5010, 0)) {
		t.Errorf("Expected Until 5010, got %v", info.Until)
	}
}

func TestRateLimitTracker_Expiration(t *testing.T) {
	clock := &fakeClock{t: time.Unix(5000, 0)}
	tracker := NewRateLimitTracker()
	tracker.now = clock.now

	tracker.Update(1)
	if tracker.GetInfo() == nil {
		t.Fatal("Expected rate limit info, got nil")
	}

	clock.t = clock.t.Add(time.Second)
	if tracker.GetInfo() != nil {
		t.Error("Expected nil after expiration, got info")
	}
}

func TestRateLimitTracker_GetInfo_ReturnsCopy(t *testing.T) {
	tracker := NewRateLimitTracker()

	tracker.Update(10)
	info1 := tracker.GetInfo()
	info2 := tracker.GetInfo()
	if info1 == info2 {
		t.Error("GetInfo should return copies, not same pointer")
	}
	if info1.RetryAfter != info2.RetryAfter {
		t.Error("Copies should have same values")
	}
}

func TestRateLimitTracker_WaitHonoursContext(t *testing.T) {
	tracker := NewRateLimitTracker()
	tracker.Update(30)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tracker.Wait(ctx); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	if err := NewRateLimitTracker().Wait(context.Background()); err != nil {
		t.Errorf("Wait without active limit should return immediately, got %v", err)
	}
}
