package goGuard

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal/credential"
	"github.com/MrEthical07/goGuard/internal/lockout"
	"github.com/MrEthical07/goGuard/internal/otp"
)

// Login checks username and password from the caller's address.
//
// A running ban short-circuits before the store is consulted. A wrong
// password consumes one attempt and the last one starts the ban. Correct
// credentials from an address not on record return
// LoginIPConfirmationRequired and email a confirmation code; finish with
// RequestIPConfirmation.
func (e *Engine) Login(ctx context.Context, s *Session, username, password string) (LoginResult, error) {
	if err := e.begin(s); err != nil {
		return LoginResult{}, err
	}
	defer s.mu.Unlock()

	start := time.Now()
	defer func() { e.metrics.Observe(MetricLoginLatency, time.Since(start)) }()

	username = strings.TrimSpace(username)
	if username == "" {
		return LoginResult{}, invalid("username", ErrEmptyInput)
	}
	if strings.TrimSpace(password) == "" {
		return LoginResult{}, invalid("password", ErrEmptyInput)
	}

	now := e.now()
	if d := s.guard.Check(now); d.State == lockout.Banned {
		err := &BanError{Remaining: d.BanRemaining}
		e.metricInc(MetricLoginBanned)
		e.emitAudit(ctx, s, auditEventLoginBanned, username, err, nil)
		return LoginResult{}, err
	}

	ip, err := e.resolveIP(ctx, s)
	if err != nil {
		e.emitAudit(ctx, s, auditEventLoginFailure, username, err, nil)
		return LoginResult{}, err
	}

	outcome, rec, err := e.verifier.Verify(ctx, username, password, ip)
	if err != nil {
		err = e.storeError(ctx, s, "login", err)
		e.emitAudit(ctx, s, auditEventLoginFailure, username, err, nil)
		return LoginResult{}, err
	}

	switch outcome {
	case credential.UnknownUser:
		s.guard.Record(lockout.Neutral, now)
		e.metricInc(MetricLoginUnknownUser)
		e.emitAudit(ctx, s, auditEventLoginFailure, username, ErrUnknownUser, nil)
		return LoginResult{}, ErrUnknownUser

	case credential.WrongPassword:
		d := s.guard.Record(lockout.Failure, now)
		e.metricInc(MetricLoginFailure)
		if d.State == lockout.Banned {
			err := &BanError{Remaining: d.BanRemaining, Cause: ErrWrongPassword}
			e.metricInc(MetricLoginBanned)
			e.emitAudit(ctx, s, auditEventLoginBanned, username, err, nil)
			return LoginResult{}, err
		}
		err := &AttemptsError{Err: ErrWrongPassword, AttemptsLeft: d.AttemptsLeft}
		e.emitAudit(ctx, s, auditEventLoginFailure, username, err, func() map[string]string {
			return map[string]string{"attempts_left": strconv.Itoa(d.AttemptsLeft)}
		})
		return LoginResult{}, err

	case credential.UnrecognizedIP:
		s.guard.Record(lockout.Neutral, now)
		return e.challengeIP(ctx, s, rec.Username, rec.Email, ip)
	}

	s.guard.Record(lockout.Success, now)
	s.clearPending()
	_ = s.login.Fire(evLoginSucceeded)

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, s, auditEventLoginSuccess, rec.Username, nil, nil)

	res := LoginResult{Status: LoginSuccess, Username: rec.Username}
	// A signing failure still leaves the user logged in.
	res.Ticket, err = e.issueTicket(ctx, s, rec.Username, "login")
	return res, err
}

// challengeIP emails an IP confirmation code and records the pending
// confirmation. It replaces any confirmation already pending in s.
func (e *Engine) challengeIP(ctx context.Context, s *Session, username, email, ip string) (LoginResult, error) {
	info, err := s.otp.Issue(ctx, otp.IPConfirm, email, e.sendIPConfirmation(email, username, ip))
	if err != nil {
		err = e.issueError(ctx, s, otp.IPConfirm, err)
		e.emitAudit(ctx, s, auditEventOTPIssueFailure, username, err, purposeMeta(otp.IPConfirm))
		return LoginResult{}, err
	}

	clear(s.pending)
	s.pending[username] = pendingConfirmation{ip: ip}
	_ = s.login.Fire(evIPChallenged)

	e.metricInc(MetricLoginUnrecognizedIP)
	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, s, auditEventLoginUnrecognizedIP, username, ErrUnrecognizedIP, func() map[string]string {
		return map[string]string{"source_ip": ip}
	})

	ci := e.challengeInfo(s, info)
	return LoginResult{
		Status:    LoginIPConfirmationRequired,
		Username:  username,
		Challenge: &ci,
	}, nil
}
