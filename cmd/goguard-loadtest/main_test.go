package main

import (
	"context"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/userstore"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, 0); got != 1 {
		t.Fatalf("p0 = %v", got)
	}
	if got := percentile(samples, 50); got != 5 {
		t.Fatalf("p50 = %v", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Fatalf("p100 = %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty = %v", got)
	}
}

func TestRunPhaseAgainstMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := userstore.NewMemory()
	if err := seedUsers(ctx, store, 8); err != nil {
		t.Fatal(err)
	}
	engine, err := newEngine(store)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	pool, err := openSessions(ctx, engine, 4)
	if err != nil {
		t.Fatal(err)
	}
	stats := runPhase(pool, 8, 200, 8, func(s *goGuard.Session, user string) error {
		_, err := engine.Login(ctx, s, user, loadPassword)
		return err
	})
	if stats.ops != 200 || stats.failures != 0 {
		t.Fatalf("ops=%d failures=%d", stats.ops, stats.failures)
	}
}

func TestRunRejectsNonPositiveOptions(t *testing.T) {
	err := run(context.Background(), options{users: 1, sessions: 1, concurrency: 0, ops: 1})
	if err == nil {
		t.Fatal("expected an error for zero concurrency")
	}
}

func TestRunAgainstMiniredis(t *testing.T) {
	err := run(context.Background(), options{users: 4, sessions: 2, concurrency: 2, ops: 20, prefix: "t"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}
