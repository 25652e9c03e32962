package goGuard

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/internal/audit"
)

const (
	auditEventSessionOpened          = "session_opened"
	auditEventSessionClosed          = "session_closed"
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventLoginBanned            = "login_banned"
	auditEventLoginUnrecognizedIP    = "login_unrecognized_ip"
	auditEventIPConfirmationSuccess  = "ip_confirmation_success"
	auditEventIPConfirmationFailure  = "ip_confirmation_failure"
	auditEventOTPIssued              = "otp_issued"
	auditEventOTPIssueFailure        = "otp_issue_failure"
	auditEventOTPVerified            = "otp_verified"
	auditEventOTPRejected            = "otp_rejected"
	auditEventRegistrationStarted    = "registration_started"
	auditEventRegistrationSuccess    = "registration_success"
	auditEventRegistrationFailure    = "registration_failure"
	auditEventPasswordResetRequested = "password_reset_requested"
	auditEventPasswordResetSuccess   = "password_reset_success"
	auditEventPasswordResetFailure   = "password_reset_failure"
)

// AuditErrorCode is the stable, secret-free failure label carried in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrValidation        AuditErrorCode = "validation"
	auditErrUnknownUser       AuditErrorCode = "unknown_user"
	auditErrWrongPassword     AuditErrorCode = "wrong_password"
	auditErrUnrecognizedIP    AuditErrorCode = "unrecognized_ip"
	auditErrBanned            AuditErrorCode = "banned"
	auditErrCooldown          AuditErrorCode = "resend_cooldown"
	auditErrNotSent           AuditErrorCode = "challenge_not_sent"
	auditErrNoChallenge       AuditErrorCode = "no_active_challenge"
	auditErrWrongCode         AuditErrorCode = "wrong_code"
	auditErrExhausted         AuditErrorCode = "attempts_exhausted"
	auditErrNoPending         AuditErrorCode = "no_pending_confirmation"
	auditErrStoreUnavailable  AuditErrorCode = "store_unavailable"
	auditErrDeliveryFailed    AuditErrorCode = "delivery_failed"
	auditErrResolverFailed    AuditErrorCode = "ip_unavailable"
	auditErrTicketUnavailable AuditErrorCode = "ticket_unavailable"
	auditErrWorkflow          AuditErrorCode = "workflow_state"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	s *Session,
	eventType string,
	username string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Username:  username,
		IP:        clientIPFromContext(ctx),
		Success:   err == nil,
		Metadata:  metadata,
	}
	if s != nil {
		event.SessionID = s.id
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var verr *ValidationError
	switch {
	// A BanError also wraps the wrong password that triggered it.
	case errors.Is(err, ErrBanned):
		return auditErrBanned
	case errors.Is(err, ErrResendCooldown):
		return auditErrCooldown
	case errors.As(err, &verr), errors.Is(err, ErrPasswordMismatch), errors.Is(err, ErrCodeRequired):
		return auditErrValidation
	case errors.Is(err, ErrUnknownUser):
		return auditErrUnknownUser
	case errors.Is(err, ErrWrongPassword):
		return auditErrWrongPassword
	case errors.Is(err, ErrUnrecognizedIP):
		return auditErrUnrecognizedIP
	case errors.Is(err, ErrChallengeNotSent):
		return auditErrNotSent
	case errors.Is(err, ErrNoActiveChallenge):
		return auditErrNoChallenge
	case errors.Is(err, ErrWrongCode):
		return auditErrWrongCode
	case errors.Is(err, ErrChallengeExhausted):
		return auditErrExhausted
	case errors.Is(err, ErrNoPendingConfirmation):
		return auditErrNoPending
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrStoreUnavailable
	case errors.Is(err, ErrNotifierUnavailable):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrIPResolverUnavailable):
		return auditErrResolverFailed
	case errors.Is(err, ErrTicketUnavailable):
		return auditErrTicketUnavailable
	case errors.Is(err, ErrWorkflowState):
		return auditErrWorkflow
	default:
		return auditErrInternal
	}
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *audit.Dispatcher {
	overflow := audit.OverflowBlock
	if cfg.DropIfFull {
		overflow = audit.OverflowDrop
	}
	return audit.NewDispatcher(audit.Config{
		Enabled:  cfg.Enabled,
		Buffer:   cfg.BufferSize,
		Overflow: overflow,
	}, sink)
}
