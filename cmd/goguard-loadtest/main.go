// Command goguard-loadtest drives concurrent logins against an engine backed
// by Redis and reports throughput and latency percentiles.
//
// Without -redis-addr (or REDIS_ADDR) an in-process miniredis is used.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/ipresolve"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/userstore"
	"github.com/MrEthical07/goGuard/userstore/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	loadPassword = "Abcd123!"
	loadIP       = "203.0.113.7"
)

type options struct {
	users       int
	sessions    int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
}

func main() {
	var o options
	flag.IntVar(&o.users, "users", 1000, "users to seed")
	flag.IntVar(&o.sessions, "sessions", 256, "client sessions shared by the workers")
	flag.IntVar(&o.concurrency, "concurrency", 64, "concurrent workers")
	flag.IntVar(&o.ops, "ops", 20000, "operations per phase")
	flag.StringVar(&o.redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "redis address; empty starts miniredis")
	flag.StringVar(&o.prefix, "prefix", "gglt", "user key prefix")
	flag.Parse()

	if err := run(context.Background(), o); err != nil {
		fmt.Fprintln(os.Stderr, "goguard-loadtest:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	if o.users <= 0 || o.sessions <= 0 || o.concurrency <= 0 || o.ops <= 0 {
		return errors.New("users, sessions, concurrency and ops must be positive")
	}

	client, closeRedis, err := connect(o.redisAddr)
	if err != nil {
		return err
	}
	defer closeRedis()

	store := redisstore.New(client, o.prefix)
	engine, err := newEngine(store)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	started := time.Now()
	if err := seedUsers(ctx, store, o.users); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	fmt.Printf("seeded %d users in %s\n", o.users, time.Since(started).Round(time.Millisecond))

	pool, err := openSessions(ctx, engine, o.sessions)
	if err != nil {
		return fmt.Errorf("open sessions: %w", err)
	}

	phases := []struct {
		name string
		op   func(*goGuard.Session, string) error
	}{
		{"login", func(s *goGuard.Session, user string) error {
			_, err := engine.Login(ctx, s, user, loadPassword)
			return err
		}},
		{"wrong-password", func(s *goGuard.Session, user string) error {
			_, err := engine.Login(ctx, s, user, "Wrong123!")
			if k := goGuard.KindOf(err); k == goGuard.KindAuth || k == goGuard.KindLockout {
				return nil
			}
			return err
		}},
	}
	for _, p := range phases {
		fmt.Println(runPhase(pool, o.users, o.ops, o.concurrency, p.op).format(p.name))
	}

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine: success=%d wrong_password=%d banned=%d\n",
		snap.Counters[goGuard.MetricLoginSuccess],
		snap.Counters[goGuard.MetricLoginFailure],
		snap.Counters[goGuard.MetricLoginBanned])
	return nil
}

// connect dials addr, or starts miniredis when addr is empty.
func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

type nopNotifier struct{}

func (nopNotifier) SendOTP(context.Context, string, string) error { return nil }
func (nopNotifier) SendIPConfirmation(context.Context, string, string, string, string) error {
	return nil
}

func newEngine(store goGuard.UserStore) (*goGuard.Engine, error) {
	cfg := goGuard.DefaultConfig()
	cfg.Metrics.Enabled = true
	return goGuard.New().
		WithConfig(cfg).
		WithStore(store).
		WithNotifier(nopNotifier{}).
		WithIPResolver(ipresolve.Static(loadIP)).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
}

func userName(i int) string { return fmt.Sprintf("load%05d", i) }

// seedUsers inserts n users sharing one digest. Existing users are kept.
func seedUsers(ctx context.Context, store goGuard.UserStore, n int) error {
	digest, err := password.SHA256{}.Hash(loadPassword)
	if err != nil {
		return err
	}
	for i := range n {
		rec := userstore.Record{
			Username:       userName(i),
			PasswordDigest: digest,
			Email:          userName(i) + "@example.com",
			AllowedIPs:     []string{loadIP},
		}
		if err := store.Insert(ctx, rec); err != nil && !errors.Is(err, userstore.ErrDuplicate) {
			return err
		}
	}
	return nil
}

func openSessions(ctx context.Context, engine *goGuard.Engine, n int) ([]*goGuard.Session, error) {
	pool := make([]*goGuard.Session, 0, n)
	for range n {
		s, err := engine.OpenSession(ctx)
		if err != nil {
			return nil, err
		}
		pool = append(pool, s)
	}
	return pool, nil
}

// runPhase spreads ops calls over concurrency workers, each picking a random
// session and user. Sessions serialize their own calls.
func runPhase(pool []*goGuard.Session, users, ops, concurrency int, op func(*goGuard.Session, string) error) phaseStats {
	var (
		next     atomic.Int64
		failures atomic.Int64
		wg       sync.WaitGroup
	)
	perWorker := make([][]time.Duration, concurrency)

	started := time.Now()
	for w := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			samples := make([]time.Duration, 0, ops/concurrency+1)
			for next.Add(1) <= int64(ops) {
				s := pool[rand.IntN(len(pool))]
				t0 := time.Now()
				if err := op(s, userName(rand.IntN(users))); err != nil {
					failures.Add(1)
				}
				samples = append(samples, time.Since(t0))
			}
			perWorker[w] = samples
		}()
	}
	wg.Wait()

	return newPhaseStats(time.Since(started), slices.Concat(perWorker...), failures.Load())
}

type phaseStats struct {
	elapsed       time.Duration
	ops           int
	failures      int64
	p50, p95, p99 time.Duration
}

func newPhaseStats(elapsed time.Duration, samples []time.Duration, failures int64) phaseStats {
	slices.Sort(samples)
	return phaseStats{
		elapsed:  elapsed,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
	}
}

// percentile uses the nearest-rank method on sorted samples.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	return sorted[min(max(rank-1, 0), len(sorted)-1)]
}

func (s phaseStats) format(name string) string {
	rate := 0.0
	if s.elapsed > 0 {
		rate = float64(s.ops) / s.elapsed.Seconds()
	}
	return fmt.Sprintf("%-15s ops=%d failures=%d elapsed=%s ops/s=%.0f p50=%s p95=%s p99=%s",
		name, s.ops, s.failures, s.elapsed.Round(time.Millisecond), rate,
		s.p50.Round(time.Microsecond), s.p95.Round(time.Microsecond), s.p99.Round(time.Microsecond))
}
