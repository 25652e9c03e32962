package goGuard

import (
	"context"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goGuard/internal/fsm"
	"github.com/MrEthical07/goGuard/internal/lockout"
	"github.com/MrEthical07/goGuard/internal/otp"
	"github.com/MrEthical07/goGuard/internal/resend"
	"github.com/google/uuid"
)

// pendingConfirmation is a login from an unrecognized address waiting for
// its emailed code. The code itself lives in the session's otp.Manager.
type pendingConfirmation struct {
	ip string
}

type registrationDraft struct {
	username string
	email    string
}

// Session is one client's authentication state: login lockout, active codes,
// resend cooldown, pending IP confirmations and the three workflow cursors.
// Nothing in it is shared with other sessions.
//
// Engine operations on the same Session run one at a time. Close stops the
// resend countdown and discards everything pending.
type Session struct {
	id       string
	clock    func() time.Time
	lastSeen atomic.Int64

	mu     sync.Mutex
	closed atomic.Bool

	guard *lockout.Guard
	timer *resend.Timer
	otp   *otp.Manager

	login        *fsm.Machine
	registration *fsm.Machine
	reset        *fsm.Machine

	pending   map[string]pendingConfirmation
	draft     registrationDraft
	resetUser string
}

func newSession(cfg Config, clock func() time.Time) *Session {
	timer := resend.New(cfg.OTP.TickInterval, nil)
	s := &Session{
		id:    uuid.NewString(),
		clock: clock,
		guard: lockout.New(lockout.Config{
			MaxAttempts: cfg.Login.MaxAttempts,
			BanDuration: cfg.Login.BanDuration,
		}),
		timer: timer,
		otp: otp.NewManager(otp.Config{
			VerificationDigits:   cfg.OTP.VerificationDigits,
			IPConfirmationDigits: cfg.OTP.IPConfirmationDigits,
			MaxAttempts:          cfg.OTP.MaxAttempts,
			ResendCooldown:       cfg.OTP.ResendCooldown,
			CodeTTL:              cfg.OTP.CodeTTL,
		}, timer),
		login:        loginWorkflow.New(),
		registration: registrationWorkflow.New(),
		reset:        resetWorkflow.New(),
		pending:      make(map[string]pendingConfirmation, 1),
	}
	s.touch(clock())
	return s
}

func (s *Session) ID() string { return s.id }

// ResendEligible receives once each time a resend cooldown runs out.
func (s *Session) ResendEligible() <-chan struct{} {
	return s.timer.Eligible()
}

// ResendRemaining is the cooldown left, in whole seconds.
func (s *Session) ResendRemaining() int {
	return int(math.Ceil(s.timer.Remaining().Seconds()))
}

// State returns a snapshot for presenters. It lifts an expired ban.
func (s *Session) State() (SessionState, error) {
	if err := s.acquire(); err != nil {
		return SessionState{}, err
	}
	defer s.mu.Unlock()

	d := s.guard.Check(s.clock())
	pending := make([]string, 0, len(s.pending))
	for name := range s.pending {
		pending = append(pending, name)
	}
	slices.Sort(pending)

	return SessionState{
		ID:                   s.id,
		Login:                s.login.State(),
		Registration:         s.registration.State(),
		Reset:                s.reset.State(),
		AttemptsLeft:         d.AttemptsLeft,
		BanRemaining:         d.BanRemaining,
		ResendRemaining:      s.otp.ResendRemaining(),
		PendingConfirmations: pending,
	}, nil
}

// Close abandons the session. It is idempotent. Prefer Engine.CloseSession
// for registered sessions so the registry forgets it too.
func (s *Session) Close() {
	s.shutdown()
}

// shutdown reports whether this call closed the session.
func (s *Session) shutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.closed.Store(true)
	s.otp.Close()
	clear(s.pending)
	s.draft = registrationDraft{}
	s.resetUser = ""
	return true
}

// acquire locks the session for one operation. On success the caller must
// unlock s.mu.
func (s *Session) acquire() error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.touch(s.clock())
	return nil
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

func (s *Session) isClosed() bool {
	return s.closed.Load()
}

// clearPending drops every pending IP confirmation and its code.
func (s *Session) clearPending() {
	clear(s.pending)
	s.otp.Discard(otp.IPConfirm)
}

/*
====================================
REGISTRY
====================================
*/

// OpenSession starts a session and registers it for lookup by ID. Sessions
// idle longer than Session.IdleTimeout are closed first.
func (e *Engine) OpenSession(ctx context.Context) (*Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	now := e.now()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineNotReady
	}
	idle := e.sweepLocked(now)
	if limit := e.config.Session.MaxSessions; limit > 0 && len(e.sessions) >= limit {
		e.mu.Unlock()
		e.closeSessions(ctx, idle)
		return nil, ErrSessionLimitExceeded
	}
	s := newSession(e.config, e.now)
	e.sessions[s.id] = s
	e.mu.Unlock()

	e.closeSessions(ctx, idle)
	e.metricInc(MetricSessionOpened)
	e.emitAudit(ctx, s, auditEventSessionOpened, "", nil, nil)
	return s, nil
}

// Session looks up an open session. An idle-expired session is closed and
// reported as ErrSessionNotFound.
func (e *Engine) Session(ctx context.Context, id string) (*Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	e.mu.Lock()
	s, ok := e.sessions[id]
	if !ok {
		e.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if e.expired(s, e.now()) || s.isClosed() {
		delete(e.sessions, id)
		e.mu.Unlock()
		e.closeSessions(ctx, []*Session{s})
		return nil, ErrSessionNotFound
	}
	e.mu.Unlock()
	return s, nil
}

// CloseSession abandons and unregisters id.
func (e *Engine) CloseSession(ctx context.Context, id string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	e.mu.Lock()
	s, ok := e.sessions[id]
	delete(e.sessions, id)
	e.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	e.closeSessions(ctx, []*Session{s})
	return nil
}

// ActiveSessions is the number of registered sessions, including idle ones
// not yet swept.
func (e *Engine) ActiveSessions() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

func (e *Engine) expired(s *Session, now time.Time) bool {
	timeout := e.config.Session.IdleTimeout
	return timeout > 0 && s.idleSince(now) >= timeout
}

// sweepLocked unregisters idle sessions and returns them for closing
// outside e.mu.
func (e *Engine) sweepLocked(now time.Time) []*Session {
	if e.config.Session.IdleTimeout <= 0 {
		return nil
	}
	var idle []*Session
	for id, s := range e.sessions {
		if e.expired(s, now) {
			delete(e.sessions, id)
			idle = append(idle, s)
		}
	}
	return idle
}

func (e *Engine) closeSessions(ctx context.Context, sessions []*Session) {
	for _, s := range sessions {
		if !s.shutdown() {
			continue
		}
		e.metricInc(MetricSessionClosed)
		e.emitAudit(ctx, s, auditEventSessionClosed, "", nil, nil)
	}
}
