// Package credential classifies a login attempt against the stored record.
//
// The check order is fixed: record lookup, then password digest, then source
// IP. A later check never runs once an earlier one has failed, so the outcome
// only reveals the first field that did not match.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/userstore"
)

// Outcome is the classification of one credential check.
type Outcome int

const (
	Success Outcome = iota
	UnknownUser
	WrongPassword
	UnrecognizedIP
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case UnknownUser:
		return "unknown_user"
	case WrongPassword:
		return "wrong_password"
	case UnrecognizedIP:
		return "unrecognized_ip"
	}
	return "unknown"
}

// ErrDigestUnreadable is returned when the stored digest cannot be parsed by
// the configured hasher.
var ErrDigestUnreadable = errors.New("stored password digest unreadable")

// Verifier checks credentials against a Store.
type Verifier struct {
	store  userstore.Store
	hasher password.Hasher
}

func NewVerifier(store userstore.Store, hasher password.Hasher) *Verifier {
	return &Verifier{store: store, hasher: hasher}
}

// Verify fetches username and checks password and sourceIP against it. All
// three inputs are compared trimmed. The record is returned for every outcome
// except UnknownUser. A non-nil error means the check could not complete.
func (v *Verifier) Verify(ctx context.Context, username, pass, sourceIP string) (Outcome, userstore.Record, error) {
	rec, err := v.store.FindByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, userstore.ErrNotFound) {
		return UnknownUser, userstore.Record{}, nil
	}
	if err != nil {
		return 0, userstore.Record{}, err
	}

	ok, err := v.hasher.Verify(strings.TrimSpace(pass), rec.PasswordDigest)
	if err != nil {
		return 0, userstore.Record{}, fmt.Errorf("%w: %v", ErrDigestUnreadable, err)
	}
	if !ok {
		return WrongPassword, rec, nil
	}

	if !rec.HasIP(sourceIP) {
		return UnrecognizedIP, rec, nil
	}
	return Success, rec, nil
}
