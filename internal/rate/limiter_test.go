package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, New(client, cfg)
}

func TestLimiterBlocksAfterBudget(t *testing.T) {
	mr, l := newTestLimiter(t, Config{MaxFailures: 3, Window: time.Minute, Prefix: "t"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Check(ctx, "198.51.100.9"); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if err := l.Fail(ctx, "198.51.100.9"); err != nil {
			t.Fatalf("fail %d: %v", i, err)
		}
	}

	wait, err := l.Check(ctx, "198.51.100.9")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if wait <= 0 || wait > time.Minute {
		t.Fatalf("retry after = %v", wait)
	}

	if _, err := l.Check(ctx, "203.0.113.7"); err != nil {
		t.Fatalf("other key must be unaffected: %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if _, err := l.Check(ctx, "198.51.100.9"); err != nil {
		t.Fatalf("window should have expired: %v", err)
	}
}

func TestLimiterWindowIsFixed(t *testing.T) {
	mr, l := newTestLimiter(t, Config{MaxFailures: 5, Window: time.Minute, Prefix: "t"})
	ctx := context.Background()

	_ = l.Fail(ctx, "k")
	mr.FastForward(40 * time.Second)
	_ = l.Fail(ctx, "k")

	if ttl := mr.TTL("t:lf:k"); ttl > 20*time.Second {
		t.Fatalf("later hits must not extend the window, ttl=%v", ttl)
	}
}

func TestLimiterReset(t *testing.T) {
	_, l := newTestLimiter(t, Config{MaxFailures: 1, Window: time.Minute})
	ctx := context.Background()

	_ = l.Fail(ctx, "k")
	if _, err := l.Check(ctx, "k"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limit, got %v", err)
	}
	if err := l.Reset(ctx, "k"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := l.Check(ctx, "k"); err != nil {
		t.Fatalf("expected reset key to pass, got %v", err)
	}
}

func TestLimiterRedisDown(t *testing.T) {
	mr, l := newTestLimiter(t, Config{})
	mr.Close()

	if _, err := l.Check(context.Background(), "k"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if err := l.Fail(context.Background(), "k"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestLimiterKeyWithoutExpiryWaitsFullWindow(t *testing.T) {
	mr, l := newTestLimiter(t, Config{MaxFailures: 2, Window: time.Minute, Prefix: "t"})
	if err := mr.Set("t:lf:k", "5"); err != nil {
		t.Fatal(err)
	}

	wait, err := l.Check(context.Background(), "k")
	if !errors.Is(err, ErrRateLimited) || wait != time.Minute {
		t.Fatalf("Check = (%v, %v), want (1m, ErrRateLimited)", wait, err)
	}
}
