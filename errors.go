package goGuard

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MrEthical07/goGuard/validate"
)

// Validation failures. The username, password and email policy sentinels are
// the ones from package validate; they are re-exported here for convenience.
var (
	ErrEmptyInput            = validate.ErrEmpty
	ErrTooShort              = validate.ErrTooShort
	ErrTooLong               = validate.ErrTooLong
	ErrContainsSpace         = validate.ErrContainsSpace
	ErrInvalidCharacter      = validate.ErrInvalidCharacter
	ErrUsernameTaken         = validate.ErrAlreadyTaken
	ErrInvalidEmail          = validate.ErrInvalidEmail
	ErrEmailQuotaExceeded    = validate.ErrQuotaExceeded
	ErrEmailDomainNotAllowed = validate.ErrDomainNotAllowed

	// ErrPasswordMismatch means the password and its confirmation differ.
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrCodeRequired means an empty verification code was submitted.
	ErrCodeRequired = errors.New("verification code required")
)

// Authentication failures.
var (
	ErrUnknownUser    = errors.New("unknown username")
	ErrWrongPassword  = errors.New("incorrect password")
	ErrUnrecognizedIP = errors.New("login from unrecognized ip address")
	ErrInvalidTicket  = errors.New("invalid ticket")
)

// Challenge failures.
var (
	// ErrChallengeNotSent means a code was submitted before any was issued.
	ErrChallengeNotSent = errors.New("no verification code has been sent")
	// ErrNoActiveChallenge means the challenge was consumed, exhausted or expired.
	ErrNoActiveChallenge  = errors.New("no active verification code")
	ErrWrongCode          = errors.New("incorrect verification code")
	ErrChallengeExhausted = errors.New("verification attempts exhausted")
	// ErrNoPendingConfirmation means no login is awaiting IP confirmation for that username.
	ErrNoPendingConfirmation = errors.New("no pending ip confirmation")
)

// Lockout and throttling.
var (
	ErrBanned         = errors.New("login temporarily banned")
	ErrResendCooldown = errors.New("verification code resend cooldown active")
)

// Collaborator failures.
var (
	ErrStoreUnavailable      = errors.New("user store unavailable")
	ErrNotifierUnavailable   = errors.New("verification code delivery failed")
	ErrIPResolverUnavailable = errors.New("client ip unavailable")
	ErrTicketUnavailable     = errors.New("ticket issuance failed")
)

// Workflow and lifecycle failures.
var (
	// ErrWorkflowState means the operation does not fit the workflow's current step.
	ErrWorkflowState   = errors.New("operation not allowed in current workflow state")
	ErrSessionClosed   = errors.New("session closed")
	ErrSessionNotFound = errors.New("session not found")
	ErrTicketsDisabled = errors.New("tickets disabled")
	ErrEngineNotReady  = errors.New("engine not initialized")

	// ErrSessionLimitExceeded means the registry already holds Session.MaxSessions sessions.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")
)

// ValidationError reports which input field failed policy.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// AttemptsError is a rejected password or code with attempts still left.
type AttemptsError struct {
	Err          error
	AttemptsLeft int
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("%v (%d attempts left)", e.Err, e.AttemptsLeft)
}

func (e *AttemptsError) Unwrap() error { return e.Err }

// BanError reports an active login ban. Cause is the failure that started the
// ban, or nil when the login was refused because a ban was already running.
type BanError struct {
	Remaining time.Duration
	Cause     error
}

func (e *BanError) Error() string {
	return fmt.Sprintf("%v: retry in %ds", ErrBanned, ceilSeconds(e.Remaining))
}

func (e *BanError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrBanned}
	}
	return []error{ErrBanned, e.Cause}
}

// CooldownError reports an active resend cooldown.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%v: retry in %ds", ErrResendCooldown, ceilSeconds(e.Remaining))
}

func (e *CooldownError) Unwrap() error { return ErrResendCooldown }

// CollaboratorError is a store, notifier, resolver or signer failure. Error
// reports only the sentinel; Cause keeps the backend error for logs and
// errors.As, and never reaches the message.
type CollaboratorError struct {
	Err   error
	Cause error
}

func (e *CollaboratorError) Error() string { return e.Err.Error() }

func (e *CollaboratorError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func collaborator(sentinel, cause error) error {
	return &CollaboratorError{Err: sentinel, Cause: cause}
}

// causeOf returns the backend error behind a CollaboratorError, or err itself.
func causeOf(err error) error {
	var ce *CollaboratorError
	if errors.As(err, &ce) && ce.Cause != nil {
		return ce.Cause
	}
	return err
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// ErrorKind groups engine errors by how a caller should react.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindValidation: fix the input and retry.
	KindValidation
	// KindAuth: credentials rejected.
	KindAuth
	// KindChallenge: a verification code problem.
	KindChallenge
	// KindLockout: wait RetryAfter before retrying.
	KindLockout
	// KindCollaborator: a store, notifier or resolver failed; retry is the caller's call.
	KindCollaborator
	// KindWorkflow: the operation is out of order for the session.
	KindWorkflow
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindChallenge:
		return "challenge"
	case KindLockout:
		return "lockout"
	case KindCollaborator:
		return "collaborator"
	case KindWorkflow:
		return "workflow"
	}
	return "unknown"
}

// KindOf classifies err. Lockout is checked first because a BanError also
// wraps the failure that caused it.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var verr *ValidationError
	switch {
	case errors.Is(err, ErrBanned), errors.Is(err, ErrResendCooldown):
		return KindLockout
	case errors.As(err, &verr), errors.Is(err, ErrPasswordMismatch), errors.Is(err, ErrCodeRequired):
		return KindValidation
	case errors.Is(err, ErrUnknownUser), errors.Is(err, ErrWrongPassword),
		errors.Is(err, ErrUnrecognizedIP), errors.Is(err, ErrInvalidTicket):
		return KindAuth
	case errors.Is(err, ErrChallengeNotSent), errors.Is(err, ErrNoActiveChallenge),
		errors.Is(err, ErrWrongCode), errors.Is(err, ErrChallengeExhausted),
		errors.Is(err, ErrNoPendingConfirmation):
		return KindChallenge
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrNotifierUnavailable),
		errors.Is(err, ErrIPResolverUnavailable), errors.Is(err, ErrTicketUnavailable):
		return KindCollaborator
	case errors.Is(err, ErrWorkflowState), errors.Is(err, ErrSessionClosed),
		errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionLimitExceeded),
		errors.Is(err, ErrTicketsDisabled),
		errors.Is(err, ErrEngineNotReady):
		return KindWorkflow
	}
	return KindUnknown
}

// RetryAfter returns how long a lockout or cooldown error asks the caller to wait.
func RetryAfter(err error) (time.Duration, bool) {
	var ban *BanError
	if errors.As(err, &ban) {
		return ban.Remaining, true
	}
	var cd *CooldownError
	if errors.As(err, &cd) {
		return cd.Remaining, true
	}
	return 0, false
}

// AttemptsLeft returns the attempt budget carried by err, if any.
func AttemptsLeft(err error) (int, bool) {
	var ae *AttemptsError
	if errors.As(err, &ae) {
		return ae.AttemptsLeft, true
	}
	return 0, false
}
