package goGuard

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.open(t)

	res, err := env.engine.Login(context.Background(), s, "alice", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Status != LoginSuccess || res.Username != "alice" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Ticket != "" {
		t.Fatal("tickets are disabled, expected no ticket")
	}
	if st := mustState(t, s); st.Login != LoginAuthenticated {
		t.Fatalf("login state = %s, want %s", st.Login, LoginAuthenticated)
	}
}

func TestLoginPasswordIsTrimmed(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.open(t)

	if _, err := env.engine.Login(context.Background(), s, " alice ", "  "+testPassword+"\t"); err != nil {
		t.Fatalf("expected trimmed credentials to pass, got %v", err)
	}
}

func TestLoginEmptyInputSkipsStore(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.open(t)

	for _, tc := range []struct{ user, pass, field string }{
		{"", testPassword, "username"},
		{"   ", testPassword, "username"},
		{"alice", "", "password"},
		{"alice", "  ", "password"},
	} {
		_, err := env.engine.Login(context.Background(), s, tc.user, tc.pass)
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != tc.field || !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("Login(%q, %q) = %v, want empty %s", tc.user, tc.pass, err, tc.field)
		}
	}
	if n := env.store.finds.Load(); n != 0 {
		t.Fatalf("store consulted %d times for empty input", n)
	}
	if st := mustState(t, s); st.AttemptsLeft != 4 {
		t.Fatalf("attempts left = %d, want 4", st.AttemptsLeft)
	}
}

func TestLoginUnknownUserKeepsAttempts(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.open(t)

	_, err := env.engine.Login(context.Background(), s, "ghost", testPassword)
	if !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
	if KindOf(err) != KindAuth {
		t.Fatalf("kind = %s, want auth", KindOf(err))
	}
	if st := mustState(t, s); st.AttemptsLeft != 4 {
		t.Fatalf("attempts left = %d, want 4", st.AttemptsLeft)
	}
}

func TestLoginWrongPasswordBansAfterFourAttempts(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.open(t)
	ctx := context.Background()

	for want := 3; want >= 1; want-- {
		_, err := env.engine.Login(ctx, s, "alice", "Wrong123!")
		if !errors.Is(err, ErrWrongPassword) {
			t.Fatalf("expected ErrWrongPassword, got %v", err)
		}
		if left, ok := AttemptsLeft(err); !ok || left != want {
			t.Fatalf("attempts left = %d (%v), want %d", left, ok, want)
		}
	}

	_, err := env.engine.Login(ctx, s, "alice", "Wrong123!")
	if !errors.Is(err, ErrBanned) || !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ban caused by wrong password, got %v", err)
	}
	if d, ok := RetryAfter(err); !ok || d != 15*time.Second {
		t.Fatalf("retry after = %v (%v), want 15s", d, ok)
	}
	if KindOf(err) != KindLockout {
		t.Fatalf("kind = %s, want lockout", KindOf(err))
	}

	finds := env.store.finds.Load()
	env.clock.Advance(5 * time.Second)
	_, err = env.engine.Login(ctx, s, "alice", testPassword)
	if !errors.Is(err, ErrBanned) || errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected plain ban, got %v", err)
	}
	if d, _ := RetryAfter(err); d != 10*time.Second {
		t.Fatalf("retry after = %v, want 10s", d)
	}
	if env.store.finds.Load() != finds {
		t.Fatal("store consulted while banned")
	}
}

func TestLoginBanExpires(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.open(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = env.engine.Login(ctx, s, "alice", "Wrong123!")
	}
	env.clock.Advance(15 * time.Second)

	if _, err := env.engine.Login(ctx, s, "alice", testPassword); err != nil {
		t.Fatalf("expected login after ban, got %v", err)
	}
	if st := mustState(t, s); st.AttemptsLeft != 4 || st.BanRemaining != 0 {
		t.Fatalf("unexpected state after ban %+v", st)
	}
}

func TestLoginSuccessResetsAttempts(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.open(t)
	ctx := context.Background()

	_, _ = env.engine.Login(ctx, s, "alice", "Wrong123!")
	_, _ = env.engine.Login(ctx, s, "alice", "Wrong123!")
	if _, err := env.engine.Login(ctx, s, "alice", testPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if st := mustState(t, s); st.AttemptsLeft != 4 {
		t.Fatalf("attempts left = %d, want 4", st.AttemptsLeft)
	}
}

func TestLoginConcurrentWrongPasswordsNeverExceedBudget(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.open(t)

	const workers = 16
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.Login(context.Background(), s, "alice", "Wrong123!")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wrong, banned int
	for err := range errs {
		if errors.Is(err, ErrWrongPassword) {
			wrong++
		}
		if errors.Is(err, ErrBanned) {
			banned++
		}
	}
	if wrong != 4 {
		t.Fatalf("wrong password checks = %d, want 4", wrong)
	}
	if banned != workers-3 {
		t.Fatalf("banned = %d, want %d", banned, workers-3)
	}
}

func TestLoginUnrecognizedIPStartsConfirmation(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.open(t)
	env.resolver.set(travelIP)

	res, err := env.engine.Login(context.Background(), s, "alice", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Status != LoginIPConfirmationRequired || res.Challenge == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Challenge.Purpose != "ip_confirm" || res.Challenge.Email != "a****@example.com" {
		t.Fatalf("unexpected challenge %+v", res.Challenge)
	}
	if res.Challenge.AttemptsLeft != 3 {
		t.Fatalf("attempts left = %d, want 3", res.Challenge.AttemptsLeft)
	}

	sent := env.notifier.last(t)
	if sent.email != "alice@example.com" || sent.ip != travelIP || len(sent.code) != 6 {
		t.Fatalf("unexpected delivery %+v", sent)
	}

	st := mustState(t, s)
	if st.Login != LoginAwaitingIPConfirmation {
		t.Fatalf("login state = %s", st.Login)
	}
	if len(st.PendingConfirmations) != 1 || st.PendingConfirmations[0] != "alice" {
		t.Fatalf("pending = %v, want [alice]", st.PendingConfirmations)
	}
	if st.AttemptsLeft != 4 {
		t.Fatalf("attempts left = %d, want 4", st.AttemptsLeft)
	}
}

func TestLoginUnrecognizedIPDeliveryFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.open(t)
	env.resolver.set(travelIP)
	env.notifier.setFail(errors.New("smtp down"))

	_, err := env.engine.Login(context.Background(), s, "alice", testPassword)
	if !errors.Is(err, ErrNotifierUnavailable) {
		t.Fatalf("expected ErrNotifierUnavailable, got %v", err)
	}
	st := mustState(t, s)
	if len(st.PendingConfirmations) != 0 || st.Login != LoginIdle {
		t.Fatalf("expected nothing pending, got %+v", st)
	}
}

func TestLoginResolverFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.open(t)
	env.resolver.setErr(errors.New("offline"))

	_, err := env.engine.Login(context.Background(), s, "alice", testPassword)
	if !errors.Is(err, ErrIPResolverUnavailable) || KindOf(err) != KindCollaborator {
		t.Fatalf("expected ErrIPResolverUnavailable, got %v", err)
	}
	if st := mustState(t, s); st.AttemptsLeft != 4 {
		t.Fatalf("attempts left = %d, want 4", st.AttemptsLeft)
	}
}

func TestLoginStoreFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.open(t)
	env.store.failFind.Store(true)

	_, err := env.engine.Login(context.Background(), s, "alice", testPassword)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestCollaboratorCauseStaysOutOfMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.open(t)
	env.resolver.setErr(errors.New("dial tcp 10.0.0.5:443: connection refused"))

	_, err := env.engine.Login(context.Background(), s, "alice", testPassword)
	if err == nil || strings.Contains(err.Error(), "10.0.0.5") {
		t.Fatalf("backend detail surfaced: %v", err)
	}
	var ce *CollaboratorError
	if !errors.As(err, &ce) || ce.Cause == nil || !strings.Contains(ce.Cause.Error(), "10.0.0.5") {
		t.Fatalf("cause not kept for callers: %#v", err)
	}

	env.resolver.setErr(nil)
	env.store.failFind.Store(true)
	_, err = env.engine.Login(context.Background(), s, "alice", testPassword)
	if err.Error() != ErrStoreUnavailable.Error() || !errors.Is(err, errStoreDown) {
		t.Fatalf("store failure = %q", err)
	}
}

// brokenSigner fails every Issue.
type brokenSigner struct{}

var errSignerDown = errors.New("hsm offline")

func (brokenSigner) Issue(string, string, string) (string, error) { return "", errSignerDown }
func (brokenSigner) Parse(string) (*TicketClaims, error)          { return nil, ErrInvalidTicket }

func TestTicketFailureKeepsLoginResult(t *testing.T) {
	env := newTestEnv(t, nil)
	env.engine.tickets = brokenSigner{}
	ctx := context.Background()

	s := env.open(t)
	res, err := env.engine.Login(ctx, s, "alice", testPassword)
	if !errors.Is(err, ErrTicketUnavailable) || KindOf(err) != KindCollaborator {
		t.Fatalf("expected ErrTicketUnavailable, got %v", err)
	}
	if res.Status != LoginSuccess || res.Username != "alice" || res.Ticket != "" {
		t.Fatalf("result = %+v", res)
	}
	if st := mustState(t, s); st.Login != LoginAuthenticated {
		t.Fatalf("login state = %s, want authenticated", st.Login)
	}

	s2 := env.open(t)
	code := loginFromTravel(t, env, s2)
	res, err = env.engine.RequestIPConfirmation(ctx, s2, "alice", code)
	if !errors.Is(err, ErrTicketUnavailable) {
		t.Fatalf("expected ErrTicketUnavailable, got %v", err)
	}
	if res.Status != LoginSuccess || res.Username != "alice" {
		t.Fatalf("result = %+v", res)
	}
}

func TestLoginIssuesTicket(t *testing.T) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, func(c *Config) {
		c.Ticket.Enabled = true
		c.Ticket.SigningMethod = "hs256"
		c.Ticket.PrivateKey = key
	})
	s := env.open(t)

	res, err := env.engine.Login(context.Background(), s, "alice", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := env.engine.ParseTicket(res.Ticket)
	if err != nil {
		t.Fatalf("ParseTicket: %v", err)
	}
	if claims.Username() != "alice" || claims.SID != s.ID() || claims.Via != "login" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := env.engine.ParseTicket("not-a-ticket"); !errors.Is(err, ErrInvalidTicket) {
		t.Fatalf("expected ErrInvalidTicket, got %v", err)
	}
}

func TestParseTicketDisabled(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.engine.ParseTicket("x"); !errors.Is(err, ErrTicketsDisabled) {
		t.Fatalf("expected ErrTicketsDisabled, got %v", err)
	}
}
