// Package otp tracks one-time-code challenges for a single session.
//
// A Manager holds at most one challenge per Purpose. Issuing replaces any
// previous challenge of the same purpose, and a challenge is only committed
// once its code has been delivered. Verification consumes attempts and clears
// the challenge on success or exhaustion.
//
// Manager is not safe for concurrent use; the owning session serializes calls.
package otp

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/internal/resend"
)

// Purpose names what a challenge proves.
type Purpose int

const (
	SignupVerify Purpose = iota
	IPConfirm
	PasswordReset
)

func (p Purpose) String() string {
	switch p {
	case SignupVerify:
		return "signup_verify"
	case IPConfirm:
		return "ip_confirm"
	case PasswordReset:
		return "password_reset"
	}
	return "unknown"
}

// Outcome is the result of Verify.
type Outcome int

const (
	Accepted Outcome = iota
	Rejected
	Exhausted
	NoActiveChallenge
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Exhausted:
		return "exhausted"
	case NoActiveChallenge:
		return "no_active_challenge"
	}
	return "unknown"
}

var (
	// ErrResendCooldown is returned by Issue while the resend timer runs.
	ErrResendCooldown = errors.New("otp resend cooldown active")
)

// Config holds challenge parameters.
type Config struct {
	VerificationDigits   int
	IPConfirmationDigits int
	MaxAttempts          int
	ResendCooldown       time.Duration
	// CodeTTL expires challenges; 0 keeps them until used or discarded.
	CodeTTL time.Duration
}

// Deliver sends code to its recipient. A non-nil error aborts the issue.
type Deliver func(ctx context.Context, code string) error

// Info describes an issued challenge without revealing the code.
type Info struct {
	Purpose      Purpose
	Email        string
	IssuedAt     time.Time
	AttemptsLeft int
	ExpiresAt    time.Time
}

type challenge struct {
	code         string
	purpose      Purpose
	email        string
	issuedAt     time.Time
	attemptsLeft int
}

// Manager owns the challenges and resend timer of one session.
type Manager struct {
	cfg        Config
	timer      *resend.Timer
	now        func() time.Time
	generate   func(digits int) (string, error)
	challenges map[Purpose]*challenge
	sent       map[Purpose]bool
}

// NewManager returns a Manager gated by timer. timer may be nil, in which
// case resends are never throttled.
func NewManager(cfg Config, timer *resend.Timer) *Manager {
	return &Manager{
		cfg:        cfg,
		timer:      timer,
		now:        time.Now,
		generate:   internal.NewOTP,
		challenges: make(map[Purpose]*challenge, 3),
		sent:       make(map[Purpose]bool, 3),
	}
}

// throttled reports whether purpose is subject to the resend cooldown. IP
// confirmation codes are issued by the login flow itself, not on user request.
func throttled(p Purpose) bool {
	return p != IPConfirm
}

func (m *Manager) digits(p Purpose) int {
	if p == IPConfirm {
		return m.cfg.IPConfirmationDigits
	}
	return m.cfg.VerificationDigits
}

// CanResend reports whether a throttled challenge may be issued now.
func (m *Manager) CanResend() bool {
	return m.timer == nil || !m.timer.Active()
}

// ResendRemaining is the time left before CanResend turns true.
func (m *Manager) ResendRemaining() time.Duration {
	if m.timer == nil {
		return 0
	}
	return m.timer.Remaining()
}

// Issue generates a code for purpose, hands it to deliver and, only if
// delivery succeeds, replaces the active challenge for purpose. Throttled
// purposes are rejected with ErrResendCooldown before any code is generated,
// and restart the cooldown once committed.
func (m *Manager) Issue(ctx context.Context, purpose Purpose, email string, deliver Deliver) (Info, error) {
	if throttled(purpose) && !m.CanResend() {
		return Info{}, ErrResendCooldown
	}

	code, err := m.generate(m.digits(purpose))
	if err != nil {
		return Info{}, err
	}
	if err := deliver(ctx, code); err != nil {
		return Info{}, err
	}

	ch := &challenge{
		code:         code,
		purpose:      purpose,
		email:        email,
		issuedAt:     m.now(),
		attemptsLeft: m.cfg.MaxAttempts,
	}
	m.challenges[purpose] = ch
	m.sent[purpose] = true

	if throttled(purpose) && m.timer != nil {
		m.timer.Start(m.cfg.ResendCooldown)
	}
	return m.info(ch), nil
}

func (m *Manager) info(ch *challenge) Info {
	info := Info{
		Purpose:      ch.purpose,
		Email:        ch.email,
		IssuedAt:     ch.issuedAt,
		AttemptsLeft: ch.attemptsLeft,
	}
	if m.cfg.CodeTTL > 0 {
		info.ExpiresAt = ch.issuedAt.Add(m.cfg.CodeTTL)
	}
	return info
}

// Sent reports whether a code for purpose has been delivered since the last
// Discard. It stays true after the challenge is consumed.
func (m *Manager) Sent(purpose Purpose) bool {
	return m.sent[purpose]
}

// Active returns the live challenge for purpose, if any.
func (m *Manager) Active(purpose Purpose) (Info, bool) {
	ch, ok := m.challenges[purpose]
	if !ok || m.expired(ch) {
		return Info{}, false
	}
	return m.info(ch), true
}

func (m *Manager) expired(ch *challenge) bool {
	return m.cfg.CodeTTL > 0 && !m.now().Before(ch.issuedAt.Add(m.cfg.CodeTTL))
}

// Verify checks code against the active challenge for purpose and returns the
// outcome with the attempts left afterwards.
func (m *Manager) Verify(purpose Purpose, code string) (Outcome, int) {
	ch, ok := m.challenges[purpose]
	if !ok {
		return NoActiveChallenge, 0
	}
	if m.expired(ch) {
		delete(m.challenges, purpose)
		return NoActiveChallenge, 0
	}
	if ch.attemptsLeft <= 0 {
		delete(m.challenges, purpose)
		return Exhausted, 0
	}

	if !internal.EqualCode(code, ch.code) {
		ch.attemptsLeft--
		// The wrong code that spends the last attempt already exhausts.
		if ch.attemptsLeft <= 0 {
			delete(m.challenges, purpose)
			return Exhausted, 0
		}
		return Rejected, ch.attemptsLeft
	}

	delete(m.challenges, purpose)
	return Accepted, m.cfg.MaxAttempts
}

// Discard drops the challenge and sent flag for purpose.
func (m *Manager) Discard(purpose Purpose) {
	delete(m.challenges, purpose)
	delete(m.sent, purpose)
}

// Close stops the resend timer and drops every challenge.
func (m *Manager) Close() {
	if m.timer != nil {
		m.timer.Stop()
	}
	clear(m.challenges)
	clear(m.sent)
}
