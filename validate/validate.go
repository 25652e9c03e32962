// Package validate holds the input policy checks for usernames, passwords and
// email addresses.
//
// Every function is pure: no I/O, no clock, no shared state. Checks that need
// existing data (username uniqueness, accounts-per-email quota) take that data
// as an argument; fetching it is the caller's job.
//
// Each check reports the first violation found, in the documented order, as
// one of the sentinel errors below. It never aggregates.
package validate

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MinUsernameLength is the shortest accepted username, in characters.
	MinUsernameLength = 4
	// MinPasswordLength is the shortest accepted password, in characters.
	MinPasswordLength = 8
	// DefaultAccountsPerEmail caps how many accounts may share one address.
	DefaultAccountsPerEmail = 5
	// PasswordSpecialChars is the fixed punctuation set a password must draw from.
	PasswordSpecialChars = "!@#$%^&*()"
)

var (
	ErrEmpty            = errors.New("input is empty")
	ErrTooShort         = errors.New("input is too short")
	ErrTooLong          = errors.New("input is too long")
	ErrContainsSpace    = errors.New("input contains whitespace")
	ErrInvalidCharacter = errors.New("input contains a disallowed character")
	ErrAlreadyTaken     = errors.New("username is already taken")

	ErrMissingUpper   = errors.New("password needs an uppercase letter")
	ErrMissingLower   = errors.New("password needs a lowercase letter")
	ErrMissingDigit   = errors.New("password needs a digit")
	ErrMissingSpecial = errors.New("password needs one of " + PasswordSpecialChars)

	ErrInvalidEmail     = errors.New("invalid email format")
	ErrQuotaExceeded    = errors.New("email has reached the account limit")
	ErrDomainNotAllowed = errors.New("email domain is not allowed")
)

// Username checks syntax and uniqueness. existing is the full username set;
// comparison is case-sensitive.
//
// Order: empty or blank, too short, whitespace, character set, already taken.
func Username(u string, existing []string) error {
	if strings.TrimSpace(u) == "" {
		return ErrEmpty
	}
	if utf8.RuneCountInString(u) < MinUsernameLength {
		return ErrTooShort
	}
	if strings.IndexFunc(u, unicode.IsSpace) >= 0 {
		return ErrContainsSpace
	}
	for _, r := range u {
		if !isUsernameRune(r) {
			return ErrInvalidCharacter
		}
	}
	for _, name := range existing {
		if name == u {
			return ErrAlreadyTaken
		}
	}
	return nil
}

// UsernameLength rejects names longer than limit characters. limit <= 0 disables the check.
func UsernameLength(u string, limit int) error {
	if limit > 0 && utf8.RuneCountInString(u) > limit {
		return ErrTooLong
	}
	return nil
}

func isUsernameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '.', r == '-':
		return true
	}
	return false
}

// Password checks the strength policy.
//
// Order: empty, too short, uppercase, lowercase, digit, special character.
func Password(p string) error {
	if p == "" {
		return ErrEmpty
	}
	if utf8.RuneCountInString(p) < MinPasswordLength {
		return ErrTooShort
	}

	var upper, lower, digit, special bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
		if strings.ContainsRune(PasswordSpecialChars, r) {
			special = true
		}
	}

	switch {
	case !upper:
		return ErrMissingUpper
	case !lower:
		return ErrMissingLower
	case !digit:
		return ErrMissingDigit
	case !special:
		return ErrMissingSpecial
	}
	return nil
}

// EmailSyntax is a purely syntactic address check. It never resolves the
// domain or talks to a mail server.
func EmailSyntax(e string) error {
	if strings.TrimSpace(e) == "" {
		return ErrEmpty
	}
	if !strings.Contains(e, "@") || !strings.Contains(e, ".") {
		return ErrInvalidEmail
	}

	parts := strings.Split(e, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ErrInvalidEmail
	}

	labels := strings.Split(parts[1], ".")
	if len(labels) < 2 {
		return ErrInvalidEmail
	}
	for _, label := range labels {
		if label == "" {
			return ErrInvalidEmail
		}
	}
	return nil
}

// EmailDomain restricts addresses to the allowed domains (case-insensitive).
// An empty allow-list accepts every domain. e must already pass EmailSyntax.
func EmailDomain(e string, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}
	at := strings.LastIndexByte(e, '@')
	if at < 0 {
		return ErrInvalidEmail
	}
	domain := e[at+1:]
	for _, d := range allowed {
		if strings.EqualFold(strings.TrimPrefix(d, "@"), domain) {
			return nil
		}
	}
	return ErrDomainNotAllowed
}

// EmailQuota fails once e appears limit or more times in existing.
// limit <= 0 falls back to DefaultAccountsPerEmail.
func EmailQuota(e string, existing []string, limit int) error {
	if limit <= 0 {
		limit = DefaultAccountsPerEmail
	}
	count := 0
	for _, addr := range existing {
		if addr == e {
			count++
		}
	}
	if count >= limit {
		return ErrQuotaExceeded
	}
	return nil
}
