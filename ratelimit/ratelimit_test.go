package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/mkuhlmann/streamwatch/ratelimit"
	"github.com/mkuhlmann/streamwatch/testutil"
)

func TestFixedWindow(t *testing.T) {
	limiter := ratelimit.NewLimiter(testutil.SetupTestDB(t), 5, 30*time.Second)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	limiter.Now = func() time.Time { return now }

	// maxRequests calls inside one window all succeed.
	for i := 0; i < 5; i++ {
		ok, _, err := limiter.Allow(ctx, "chat1", "track")
		if err != nil {
			t.Fatalf("Allow() #%d error = %v", i+1, err)
		}
		if !ok {
			t.Fatalf("Allow() #%d = false, want true", i+1)
		}
		now = now.Add(time.Second)
	}

	// The (max+1)-th call within the window is rejected with a wait.
	ok, wait, err := limiter.Allow(ctx, "chat1", "track")
	if err != nil {
		t.Fatalf("Allow() #6 error = %v", err)
	}
	if ok {
		t.Fatal("Allow() #6 = true, want false")
	}
	if wait <= 0 || wait > 30*time.Second {
		t.Fatalf("retry wait = %v, want within (0, 30s]", wait)
	}

	// After the window elapses, the next call succeeds and resets the window.
	now = base.Add(31 * time.Second)
	ok, _, err = limiter.Allow(ctx, "chat1", "track")
	if err != nil {
		t.Fatalf("Allow() after window error = %v", err)
	}
	if !ok {
		t.Fatal("Allow() after window = false, want true")
	}
}

func TestCountersAreIndependentPerChatAndCommand(t *testing.T) {
	limiter := ratelimit.NewLimiter(testutil.SetupTestDB(t), 1, 30*time.Second)
	ctx := context.Background()

	ok, _, err := limiter.Allow(ctx, "chat1", "track")
	if err != nil || !ok {
		t.Fatalf("Allow(chat1, track) = %v, %v", ok, err)
	}
	// chat1/track is now exhausted; other keys are not.
	if ok, _, _ := limiter.Allow(ctx, "chat1", "track"); ok {
		t.Fatal("Allow(chat1, track) second call = true, want false")
	}
	if ok, _, _ := limiter.Allow(ctx, "chat1", "untrack"); !ok {
		t.Fatal("Allow(chat1, untrack) = false, want true")
	}
	if ok, _, _ := limiter.Allow(ctx, "chat2", "track"); !ok {
		t.Fatal("Allow(chat2, track) = false, want true")
	}
}
