package goGuard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/userstore"
)

const (
	testPassword = "Abcd123!"
	homeIP       = "203.0.113.7"
	travelIP     = "198.51.100.9"
)

type sentCode struct {
	email string
	ip    string
	code  string
}

// fakeNotifier records every delivered code.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentCode
	fail error
}

func (n *fakeNotifier) SendOTP(_ context.Context, email, code string) error {
	return n.record(sentCode{email: email, code: code})
}

func (n *fakeNotifier) SendIPConfirmation(_ context.Context, email, _ string, ip, code string) error {
	return n.record(sentCode{email: email, ip: ip, code: code})
}

func (n *fakeNotifier) record(c sentCode) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.sent = append(n.sent, c)
	return nil
}

func (n *fakeNotifier) setFail(err error) {
	n.mu.Lock()
	n.fail = err
	n.mu.Unlock()
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *fakeNotifier) last(t *testing.T) sentCode {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("no code was delivered")
	}
	return n.sent[len(n.sent)-1]
}

// testResolver reports a settable address.
type testResolver struct {
	mu  sync.Mutex
	ip  string
	err error
}

func (r *testResolver) CurrentPublicIP(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ip, r.err
}

func (r *testResolver) set(ip string) {
	r.mu.Lock()
	r.ip = ip
	r.mu.Unlock()
}

func (r *testResolver) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// countingStore counts lookups and can be switched to fail.
type countingStore struct {
	*userstore.Memory

	finds     atomic.Int64
	failFind  atomic.Bool
	failWrite atomic.Bool
}

var errStoreDown = errors.New("store down")

func (s *countingStore) FindByUsername(ctx context.Context, username string) (UserRecord, error) {
	s.finds.Add(1)
	if s.failFind.Load() {
		return UserRecord{}, errStoreDown
	}
	return s.Memory.FindByUsername(ctx, username)
}

func (s *countingStore) AppendIP(ctx context.Context, username, ip string) (bool, error) {
	if s.failWrite.Load() {
		return false, errStoreDown
	}
	return s.Memory.AppendIP(ctx, username, ip)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine   *Engine
	store    *countingStore
	notifier *fakeNotifier
	resolver *testResolver
	clock    *testClock
}

func digestOf(t testing.TB, pass string) string {
	t.Helper()
	d, err := password.SHA256{}.Hash(pass)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return d
}

func aliceRecord(t testing.TB) UserRecord {
	return UserRecord{
		Username:       "alice",
		PasswordDigest: digestOf(t, testPassword),
		AllowedIPs:     []string{homeIP},
		Email:          "alice@example.com",
	}
}

// newTestEnv builds an engine over a store seeded with alice, reachable from
// homeIP. mutate may adjust the config before Build.
func newTestEnv(t testing.TB, mutate func(*Config), opts ...func(*Builder)) *testEnv {
	t.Helper()

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		store:    &countingStore{Memory: userstore.NewMemory(aliceRecord(t))},
		notifier: &fakeNotifier{},
		resolver: &testResolver{ip: homeIP},
		clock:    newTestClock(),
	}

	b := New().
		WithConfig(cfg).
		WithStore(env.store).
		WithNotifier(env.notifier).
		WithIPResolver(env.resolver)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	engine.now = env.clock.Now
	env.engine = engine
	t.Cleanup(engine.Close)
	return env
}

func (env *testEnv) open(t *testing.T) *Session {
	t.Helper()
	s, err := env.engine.OpenSession(context.Background())
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	return s
}

func (env *testEnv) record(t *testing.T, username string) UserRecord {
	t.Helper()
	rec, err := env.store.Memory.FindByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("find %s: %v", username, err)
	}
	return rec
}

func mustState(t *testing.T, s *Session) SessionState {
	t.Helper()
	st, err := s.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	return st
}

// wrongCode returns a code of the same length that differs from code.
func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}
