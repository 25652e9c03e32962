package goGuard

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goGuard/internal/otp"
	"github.com/MrEthical07/goGuard/userstore"
	"github.com/MrEthical07/goGuard/validate"
)

// RegisterStart validates a new username and email and (re)starts the
// registration workflow at the code step. It may be called from any step.
func (e *Engine) RegisterStart(ctx context.Context, s *Session, username, email string) error {
	if err := e.begin(s); err != nil {
		return err
	}
	defer s.mu.Unlock()

	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	s.otp.Discard(otp.SignupVerify)
	if err := e.checkIdentity(ctx, s, username, email); err != nil {
		s.registration.Reset()
		s.draft = registrationDraft{}
		e.metricInc(MetricRegistrationFailure)
		e.emitAudit(ctx, s, auditEventRegistrationFailure, username, err, nil)
		return err
	}

	s.draft = registrationDraft{username: username, email: email}
	restart(s.registration, evIdentityAccepted)
	e.emitAudit(ctx, s, auditEventRegistrationStarted, username, nil, nil)
	return nil
}

// checkIdentity runs the username checks, then the email checks. Syntax is
// checked before the store is asked for the existing names and addresses.
func (e *Engine) checkIdentity(ctx context.Context, s *Session, username, email string) error {
	rules := e.config.Registration

	if err := validate.Username(username, nil); err != nil {
		return invalid("username", err)
	}
	if err := validate.UsernameLength(username, rules.MaxUsernameLength); err != nil {
		return invalid("username", err)
	}
	names, err := e.store.AllUsernames(ctx)
	if err != nil {
		return e.storeError(ctx, s, "all_usernames", err)
	}
	if err := validate.Username(username, names); err != nil {
		return invalid("username", err)
	}

	if err := validate.EmailSyntax(email); err != nil {
		return invalid("email", err)
	}
	if err := validate.EmailDomain(email, rules.AllowedEmailDomains); err != nil {
		return invalid("email", err)
	}
	emails, err := e.store.AllEmails(ctx)
	if err != nil {
		return e.storeError(ctx, s, "all_emails", err)
	}
	if err := validate.EmailQuota(email, emails, rules.MaxAccountsPerEmail); err != nil {
		return invalid("email", err)
	}
	return nil
}

// RegisterRequestOTP emails a verification code to the address given at
// RegisterStart. Repeat requests are refused while the resend cooldown runs.
func (e *Engine) RegisterRequestOTP(ctx context.Context, s *Session) (ChallengeInfo, error) {
	if err := e.begin(s); err != nil {
		return ChallengeInfo{}, err
	}
	defer s.mu.Unlock()

	if err := expect(s.registration, evOTPVerified); err != nil {
		return ChallengeInfo{}, err
	}

	email := s.draft.email
	info, err := s.otp.Issue(ctx, otp.SignupVerify, email, e.sendOTP(email))
	if err != nil {
		err = e.issueError(ctx, s, otp.SignupVerify, err)
		e.emitAudit(ctx, s, auditEventOTPIssueFailure, s.draft.username, err, purposeMeta(otp.SignupVerify))
		return ChallengeInfo{}, err
	}

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, s, auditEventOTPIssued, s.draft.username, nil, purposeMeta(otp.SignupVerify))
	return e.challengeInfo(s, info), nil
}

// RegisterVerifyOTP checks the emailed code. It fails with
// ErrChallengeNotSent until RegisterRequestOTP has delivered one.
func (e *Engine) RegisterVerifyOTP(ctx context.Context, s *Session, code string) error {
	if err := e.begin(s); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := expect(s.registration, evOTPVerified); err != nil {
		return err
	}
	if err := e.verifyCode(ctx, s, otp.SignupVerify, s.draft.username, code); err != nil {
		return err
	}
	_ = s.registration.Fire(evOTPVerified)
	return nil
}

// RegisterFinish stores the new account with the caller's current address as
// its first allowed IP.
func (e *Engine) RegisterFinish(ctx context.Context, s *Session, password, confirm string) (RegistrationResult, error) {
	if err := e.begin(s); err != nil {
		return RegistrationResult{}, err
	}
	defer s.mu.Unlock()

	if err := expect(s.registration, evCommitted); err != nil {
		return RegistrationResult{}, err
	}

	fail := func(err error) (RegistrationResult, error) {
		e.metricInc(MetricRegistrationFailure)
		e.emitAudit(ctx, s, auditEventRegistrationFailure, s.draft.username, err, nil)
		return RegistrationResult{}, err
	}

	digest, err := e.newDigest(password, confirm)
	if err != nil {
		return fail(err)
	}
	ip, err := e.resolveIP(ctx, s)
	if err != nil {
		return fail(err)
	}

	rec := UserRecord{
		Username:       s.draft.username,
		PasswordDigest: digest,
		AllowedIPs:     []string{ip},
		Email:          s.draft.email,
	}
	if err := e.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, userstore.ErrDuplicate) {
			_ = s.registration.Fire(evIdentityRejected)
			s.otp.Discard(otp.SignupVerify)
			return fail(invalid("username", ErrUsernameTaken))
		}
		return fail(e.storeError(ctx, s, "insert", err))
	}
	if inv, ok := e.store.(userstore.Invalidator); ok {
		inv.InvalidateUsernames()
	}

	_ = s.registration.Fire(evCommitted)
	s.otp.Discard(otp.SignupVerify)

	result := RegistrationResult{Username: rec.Username, Email: rec.Email}
	e.metricInc(MetricRegistrationSuccess)
	e.emitAudit(ctx, s, auditEventRegistrationSuccess, rec.Username, nil, nil)

	tk, err := e.issueTicket(ctx, s, rec.Username, "registration")
	if err != nil {
		return result, err
	}
	result.Ticket = tk
	return result, nil
}
