package goGuard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/credential"
	"github.com/MrEthical07/goGuard/internal/otp"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/ticket"
)

// ticketSigner is satisfied by *ticket.Manager.
type ticketSigner interface {
	Issue(username, sessionID, via string) (string, error)
	Parse(raw string) (*ticket.Claims, error)
}

// Engine runs the login, IP confirmation, registration and password reset
// workflows against caller-owned Sessions. It is safe for concurrent use;
// calls on one Session are serialized.
type Engine struct {
	config   Config
	store    UserStore
	verifier *credential.Verifier
	hasher   password.Hasher
	notifier Notifier
	resolver IPResolver
	tickets  ticketSigner
	audit    *audit.Dispatcher
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	closed   bool
	sessions map[string]*Session
}

// TicketClaims is the verified content of a ticket.
type TicketClaims = ticket.Claims

// Close closes every registered session and flushes the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	open := make([]*Session, 0, len(e.sessions))
	for id, s := range e.sessions {
		open = append(open, s)
		delete(e.sessions, id)
	}
	e.mu.Unlock()

	e.closeSessions(context.Background(), open)
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// ParseTicket verifies a ticket issued by this engine.
func (e *Engine) ParseTicket(raw string) (*TicketClaims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.tickets == nil {
		return nil, ErrTicketsDisabled
	}
	claims, err := e.tickets.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}
	return claims, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// begin locks s for one workflow step. On success the caller must unlock s.mu.
func (e *Engine) begin(s *Session) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if s == nil {
		return ErrSessionNotFound
	}
	return s.acquire()
}

func (e *Engine) resolveIP(ctx context.Context, s *Session) (string, error) {
	ip, err := e.resolver.CurrentPublicIP(ctx)
	if err == nil && strings.TrimSpace(ip) == "" {
		err = errors.New("empty address")
	}
	if err != nil {
		e.logger.WarnContext(ctx, "client ip lookup failed", "session_id", s.id, "error", err)
		return "", collaborator(ErrIPResolverUnavailable, err)
	}
	return strings.TrimSpace(ip), nil
}

func (e *Engine) storeError(ctx context.Context, s *Session, op string, err error) error {
	e.logger.WarnContext(ctx, "user store call failed", "op", op, "session_id", s.id, "error", err)
	return collaborator(ErrStoreUnavailable, err)
}

// sendOTP and sendIPConfirmation adapt the notifier to otp.Deliver.
func (e *Engine) sendOTP(email string) otp.Deliver {
	return func(ctx context.Context, code string) error {
		defer e.observeDelivery(time.Now())
		if err := e.notifier.SendOTP(ctx, email, code); err != nil {
			return collaborator(ErrNotifierUnavailable, err)
		}
		return nil
	}
}

func (e *Engine) sendIPConfirmation(email, username, ip string) otp.Deliver {
	return func(ctx context.Context, code string) error {
		defer e.observeDelivery(time.Now())
		if err := e.notifier.SendIPConfirmation(ctx, email, username, ip, code); err != nil {
			return collaborator(ErrNotifierUnavailable, err)
		}
		return nil
	}
}

func (e *Engine) observeDelivery(start time.Time) {
	e.metrics.Observe(MetricDeliveryLatency, time.Since(start))
}

// issueError maps an otp.Manager.Issue failure.
func (e *Engine) issueError(ctx context.Context, s *Session, purpose otp.Purpose, err error) error {
	switch {
	case errors.Is(err, otp.ErrResendCooldown):
		e.metricInc(MetricOTPResendRejected)
		return &CooldownError{Remaining: s.otp.ResendRemaining()}
	case errors.Is(err, ErrNotifierUnavailable):
		e.metricInc(MetricOTPDeliveryFailure)
		e.logger.WarnContext(ctx, "code delivery failed", "purpose", purpose.String(), "session_id", s.id, "error", causeOf(err))
		return err
	default:
		return fmt.Errorf("issue %s code: %w", purpose, err)
	}
}

func (e *Engine) issueTicket(ctx context.Context, s *Session, username, via string) (string, error) {
	if e.tickets == nil {
		return "", nil
	}
	raw, err := e.tickets.Issue(username, s.id, via)
	if err != nil {
		e.logger.ErrorContext(ctx, "ticket signing failed", "via", via, "session_id", s.id, "error", err)
		return "", collaborator(ErrTicketUnavailable, err)
	}
	return raw, nil
}

func (e *Engine) challengeInfo(s *Session, info otp.Info) ChallengeInfo {
	return ChallengeInfo{
		Purpose:      info.Purpose.String(),
		Email:        maskEmail(info.Email),
		AttemptsLeft: info.AttemptsLeft,
		ExpiresAt:    info.ExpiresAt,
		ResendAfter:  s.otp.ResendRemaining(),
	}
}

// maskEmail keeps the first character of the local part and the domain.
func maskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at:]
	_, size := utf8.DecodeRuneInString(local)
	return local[:size] + strings.Repeat("*", utf8.RuneCountInString(local)-1) + domain
}

func purposeMeta(p otp.Purpose) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"purpose": p.String()}
	}
}
