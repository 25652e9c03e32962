package goGuard

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goGuard/internal/otp"
)

// RequestIPConfirmation completes a login that stopped at
// LoginIPConfirmationRequired. The right code adds the login's address to
// the user's allow-list and authenticates. Running out of attempts drops the
// pending confirmation and the login must start over.
func (e *Engine) RequestIPConfirmation(ctx context.Context, s *Session, username, code string) (LoginResult, error) {
	if err := e.begin(s); err != nil {
		return LoginResult{}, err
	}
	defer s.mu.Unlock()

	username = strings.TrimSpace(username)
	if username == "" {
		return LoginResult{}, invalid("username", ErrEmptyInput)
	}

	p, ok := s.pending[username]
	if !ok {
		e.metricInc(MetricIPConfirmationFailure)
		e.emitAudit(ctx, s, auditEventIPConfirmationFailure, username, ErrNoPendingConfirmation, nil)
		return LoginResult{}, ErrNoPendingConfirmation
	}

	if err := e.verifyCode(ctx, s, otp.IPConfirm, username, code); err != nil {
		if errors.Is(err, ErrChallengeExhausted) || errors.Is(err, ErrNoActiveChallenge) {
			e.abandonIPConfirmation(s)
		}
		if !errors.Is(err, ErrCodeRequired) {
			e.metricInc(MetricIPConfirmationFailure)
			e.emitAudit(ctx, s, auditEventIPConfirmationFailure, username, err, nil)
		}
		return LoginResult{}, err
	}

	delete(s.pending, username)
	// AppendIP reports false when the address is already listed; that is fine.
	if _, err := e.store.AppendIP(ctx, username, p.ip); err != nil {
		e.abandonIPConfirmation(s)
		err = e.storeError(ctx, s, "append_ip", err)
		e.metricInc(MetricIPConfirmationFailure)
		e.emitAudit(ctx, s, auditEventIPConfirmationFailure, username, err, nil)
		return LoginResult{}, err
	}

	s.guard.Reset()
	_ = s.login.Fire(evIPConfirmed)
	e.metricInc(MetricIPConfirmationSuccess)
	e.emitAudit(ctx, s, auditEventIPConfirmationSuccess, username, nil, func() map[string]string {
		return map[string]string{"source_ip": p.ip}
	})

	res := LoginResult{Status: LoginSuccess, Username: username}
	var err error
	res.Ticket, err = e.issueTicket(ctx, s, username, "ip_confirm")
	return res, err
}

// abandonIPConfirmation returns the login workflow to idle.
func (e *Engine) abandonIPConfirmation(s *Session) {
	s.clearPending()
	if s.login.Can(evIPAbandoned) {
		_ = s.login.Fire(evIPAbandoned)
	}
}
