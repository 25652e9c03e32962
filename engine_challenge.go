package goGuard

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrEthical07/goGuard/internal/otp"
	"github.com/MrEthical07/goGuard/validate"
)

// verifyCode checks code against the session's challenge for purpose.
// A code submitted before any was sent is ErrChallengeNotSent, which is
// distinct from a wrong code.
func (e *Engine) verifyCode(ctx context.Context, s *Session, purpose otp.Purpose, username, code string) error {
	if !s.otp.Sent(purpose) {
		e.emitAudit(ctx, s, auditEventOTPRejected, username, ErrChallengeNotSent, purposeMeta(purpose))
		return ErrChallengeNotSent
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrCodeRequired
	}

	outcome, left := s.otp.Verify(purpose, code)

	var err error
	switch outcome {
	case otp.Accepted:
		e.emitAudit(ctx, s, auditEventOTPVerified, username, nil, purposeMeta(purpose))
		return nil
	case otp.Rejected:
		e.metricInc(MetricOTPRejected)
		err = &AttemptsError{Err: ErrWrongCode, AttemptsLeft: left}
	case otp.Exhausted:
		e.metricInc(MetricOTPExhausted)
		err = ErrChallengeExhausted
	default:
		err = ErrNoActiveChallenge
	}
	e.emitAudit(ctx, s, auditEventOTPRejected, username, err, purposeMeta(purpose))
	return err
}

// newDigest checks a new password and its confirmation and returns the
// digest to store. Both are compared trimmed, the way logins compare them.
func (e *Engine) newDigest(pass, confirm string) (string, error) {
	pass = strings.TrimSpace(pass)
	if pass != strings.TrimSpace(confirm) {
		return "", ErrPasswordMismatch
	}
	if err := validate.Password(pass); err != nil {
		return "", invalid("password", err)
	}
	digest, err := e.hasher.Hash(pass)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return digest, nil
}
