// Package userstore defines the user record store consumed by the engine and
// ships an in-memory implementation plus a caching decorator.
//
// The store exclusively owns record persistence. The engine only reads records
// and asks for two mutations: a password digest update and an IP append.
// Records are never deleted through this interface.
//
// Concurrent writers to the same record are not coordinated here: callers get
// fetch-then-act convenience, not transactions.
package userstore

import (
	"context"
	"errors"
	"slices"
	"strings"
)

var (
	// ErrNotFound is returned by FindByUsername when no record matches.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate is returned by Insert when the username already exists.
	ErrDuplicate = errors.New("user already exists")
)

// Record is one user row.
type Record struct {
	Username       string
	PasswordDigest string
	AllowedIPs     []string
	Email          string
}

// HasIP reports whether ip is on the allow-list. ip is compared trimmed.
func (r Record) HasIP(ip string) bool {
	return slices.Contains(r.AllowedIPs, strings.TrimSpace(ip))
}

// Clone returns a deep copy so callers cannot alias store internals.
func (r Record) Clone() Record {
	r.AllowedIPs = slices.Clone(r.AllowedIPs)
	return r
}

// Store is the persistence contract for user records.
//
// UpdatePassword and AppendIP report false when nothing changed: the user does
// not exist, or (for AppendIP) the address is already present.
type Store interface {
	FindByUsername(ctx context.Context, username string) (Record, error)
	AllUsernames(ctx context.Context) ([]string, error)
	AllEmails(ctx context.Context) ([]string, error)
	Insert(ctx context.Context, rec Record) error
	UpdatePassword(ctx context.Context, username, digest string) (bool, error)
	AppendIP(ctx context.Context, username, ip string) (bool, error)
}

// Invalidator is implemented by stores that cache the username enumeration.
type Invalidator interface {
	InvalidateUsernames()
}

// Normalize trims the fields the way every Store implementation stores them.
func Normalize(rec Record) Record {
	rec.Username = strings.TrimSpace(rec.Username)
	rec.PasswordDigest = strings.TrimSpace(rec.PasswordDigest)
	rec.Email = strings.TrimSpace(rec.Email)

	ips := make([]string, 0, len(rec.AllowedIPs))
	for _, ip := range rec.AllowedIPs {
		ip = strings.TrimSpace(ip)
		if ip != "" && !slices.Contains(ips, ip) {
			ips = append(ips, ip)
		}
	}
	rec.AllowedIPs = ips
	return rec
}
