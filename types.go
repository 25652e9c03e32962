package goGuard

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/userstore"
)

// UserRecord is one stored account: username, password digest, allowed
// source addresses and email.
type UserRecord = userstore.Record

// UserStore persists user records. See package userstore for the contract
// and the bundled implementations.
type UserStore = userstore.Store

// Notifier delivers codes by email. A non-nil error means the code was not
// delivered and the engine discards it.
type Notifier interface {
	SendOTP(ctx context.Context, email, code string) error
	SendIPConfirmation(ctx context.Context, email, username, ip, code string) error
}

// IPResolver reports the address a login or registration comes from.
type IPResolver interface {
	CurrentPublicIP(ctx context.Context) (string, error)
}

// LoginStatus is the non-error outcome of a login step.
type LoginStatus int

const (
	// LoginSuccess means the user is authenticated.
	LoginSuccess LoginStatus = iota + 1
	// LoginIPConfirmationRequired means the credentials were right but the
	// source address is new; a code was emailed to the account owner.
	LoginIPConfirmationRequired
)

func (s LoginStatus) String() string {
	switch s {
	case LoginSuccess:
		return "success"
	case LoginIPConfirmationRequired:
		return "ip_confirmation_required"
	}
	return "unknown"
}

// LoginResult is returned by Login and RequestIPConfirmation.
type LoginResult struct {
	Status   LoginStatus
	Username string
	// Ticket is set on LoginSuccess when tickets are enabled.
	Ticket string
	// Challenge describes the emailed code on LoginIPConfirmationRequired.
	Challenge *ChallengeInfo
}

// ChallengeInfo describes an issued code without revealing it.
type ChallengeInfo struct {
	Purpose string
	// Email is the recipient with the local part masked.
	Email        string
	AttemptsLeft int
	// ExpiresAt is zero when codes do not expire.
	ExpiresAt time.Time
	// ResendAfter is how long until another code may be requested.
	ResendAfter time.Duration
}

type RegistrationResult struct {
	Username string
	Email    string
	Ticket   string
}

type ResetResult struct {
	Username string
	Ticket   string
}

// SessionState is a presenter's view of one session.
type SessionState struct {
	ID           string
	Login        WorkflowState
	Registration WorkflowState
	Reset        WorkflowState

	AttemptsLeft int
	// BanRemaining is zero when no ban is running.
	BanRemaining time.Duration
	// ResendRemaining is zero when a new code may be requested.
	ResendRemaining time.Duration
	// PendingConfirmations lists usernames awaiting IP confirmation.
	PendingConfirmations []string
}
