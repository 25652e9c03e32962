package goGuard

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goGuard/internal/otp"
	"github.com/MrEthical07/goGuard/userstore"
)

// ResetRequest emails a reset code to the address on record for username
// and moves the reset workflow to the code step. The state is untouched when
// the user is unknown, the cooldown is running or delivery fails.
func (e *Engine) ResetRequest(ctx context.Context, s *Session, username string) (ChallengeInfo, error) {
	if err := e.begin(s); err != nil {
		return ChallengeInfo{}, err
	}
	defer s.mu.Unlock()

	username = strings.TrimSpace(username)
	fail := func(err error) (ChallengeInfo, error) {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, s, auditEventPasswordResetFailure, username, err, nil)
		return ChallengeInfo{}, err
	}

	if username == "" {
		return fail(invalid("username", ErrEmptyInput))
	}
	rec, err := e.store.FindByUsername(ctx, username)
	if errors.Is(err, userstore.ErrNotFound) {
		return fail(ErrUnknownUser)
	}
	if err != nil {
		return fail(e.storeError(ctx, s, "find_user", err))
	}

	info, err := s.otp.Issue(ctx, otp.PasswordReset, rec.Email, e.sendOTP(rec.Email))
	if err != nil {
		err = e.issueError(ctx, s, otp.PasswordReset, err)
		e.emitAudit(ctx, s, auditEventOTPIssueFailure, username, err, purposeMeta(otp.PasswordReset))
		return fail(err)
	}

	s.resetUser = rec.Username
	restart(s.reset, evIdentityAccepted)

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, s, auditEventPasswordResetRequested, username, nil, nil)
	return e.challengeInfo(s, info), nil
}

func (e *Engine) ResetVerifyOTP(ctx context.Context, s *Session, code string) error {
	if err := e.begin(s); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := expect(s.reset, evOTPVerified); err != nil {
		return err
	}
	if err := e.verifyCode(ctx, s, otp.PasswordReset, s.resetUser, code); err != nil {
		return err
	}
	_ = s.reset.Fire(evOTPVerified)
	return nil
}

// ResetFinish replaces the stored digest. The session's login lockout is
// lifted on success.
func (e *Engine) ResetFinish(ctx context.Context, s *Session, newPassword, confirm string) (ResetResult, error) {
	if err := e.begin(s); err != nil {
		return ResetResult{}, err
	}
	defer s.mu.Unlock()

	if err := expect(s.reset, evCommitted); err != nil {
		return ResetResult{}, err
	}

	username := s.resetUser
	fail := func(err error) (ResetResult, error) {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, s, auditEventPasswordResetFailure, username, err, nil)
		return ResetResult{}, err
	}

	digest, err := e.newDigest(newPassword, confirm)
	if err != nil {
		return fail(err)
	}
	updated, err := e.store.UpdatePassword(ctx, username, digest)
	if err != nil {
		return fail(e.storeError(ctx, s, "update_password", err))
	}
	if !updated {
		_ = s.reset.Fire(evIdentityRejected)
		s.resetUser = ""
		return fail(ErrUnknownUser)
	}

	_ = s.reset.Fire(evCommitted)
	s.otp.Discard(otp.PasswordReset)
	s.resetUser = ""
	s.guard.Reset()

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, s, auditEventPasswordResetSuccess, username, nil, nil)

	result := ResetResult{Username: username}
	tk, err := e.issueTicket(ctx, s, username, "reset")
	if err != nil {
		return result, err
	}
	result.Ticket = tk
	return result, nil
}
