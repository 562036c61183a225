package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration, failOpen bool) (*Limiter, *time.Time) {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cur := t0
	l := New(client, limit, window, failOpen, WithClock(func() time.Time { return cur }))
	return l, &cur
}

func TestAllow_DeniesBeyondWindowLimit(t *testing.T) {
	l, _ := newTestLimiter(t, 3, time.Minute, true)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "alice")
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d denied, want allowed", i)
		}
		if res.Remaining != 3-i {
			t.Errorf("request %d remaining = %d, want %d", i, res.Remaining, 3-i)
		}
	}

	res, err := l.Allow(ctx, "alice")
	if err != nil {
		t.Fatalf("4th request: %v", err)
	}
	if res.Allowed {
		t.Fatalf("4th request in window should be denied")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within (0, window]", res.RetryAfter)
	}
}

func TestAllow_UsersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute, true)
	ctx := context.Background()

	if res, _ := l.Allow(ctx, "alice"); !res.Allowed {
		t.Fatalf("alice's first request denied")
	}
	if res, _ := l.Allow(ctx, "alice"); res.Allowed {
		t.Fatalf("alice's second request allowed")
	}
	if res, _ := l.Allow(ctx, "bob"); !res.Allowed {
		t.Fatalf("bob throttled by alice's quota")
	}
}

func TestAllow_FreshWindowAdmitsRegardlessOfPriorCount(t *testing.T) {
	l, clock := newTestLimiter(t, 2, time.Minute, true)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "alice")
	_, _ = l.Allow(ctx, "alice")
	if res, _ := l.Allow(ctx, "alice"); res.Allowed {
		t.Fatalf("over-quota request allowed in same window")
	}

	*clock = clock.Add(time.Minute)
	res, err := l.Allow(ctx, "alice")
	if err != nil {
		t.Fatalf("fresh window: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("fresh window request denied")
	}
}

func TestAllow_StoreDownHonorsPolicy(t *testing.T) {
	// Point at a closed server so every command errors.
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	addr := srv.Addr()
	srv.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer client.Close()
	ctx := context.Background()

	open := New(client, 5, time.Minute, true)
	res, err := open.Allow(ctx, "alice")
	if err == nil {
		t.Fatalf("expected store error")
	}
	if !res.Allowed {
		t.Fatalf("fail-open limiter denied during outage")
	}

	closed := New(client, 5, time.Minute, false)
	res, err = closed.Allow(ctx, "alice")
	if err == nil {
		t.Fatalf("expected store error")
	}
	if res.Allowed {
		t.Fatalf("fail-closed limiter admitted during outage")
	}
}
