package userstore

import (
	"context"
	"strings"
	"sync"
)

// Memory is a process-local Store. Insertion order is preserved for the
// enumerations. Safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	order []string
	users map[string]*Record
}

// NewMemory returns a store seeded with recs. Duplicate usernames keep the first record.
func NewMemory(recs ...Record) *Memory {
	m := &Memory{users: make(map[string]*Record, len(recs))}
	for _, rec := range recs {
		_ = m.Insert(context.Background(), rec)
	}
	return m
}

func (m *Memory) FindByUsername(ctx context.Context, username string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.users[strings.TrimSpace(username)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) AllUsernames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.order))
	copy(out, m.order)
	return out, nil
}

func (m *Memory) AllEmails(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.users[name].Email)
	}
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec = Normalize(rec)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[rec.Username]; exists {
		return ErrDuplicate
	}
	stored := rec.Clone()
	m.users[rec.Username] = &stored
	m.order = append(m.order, rec.Username)
	return nil
}

func (m *Memory) UpdatePassword(ctx context.Context, username, digest string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.users[strings.TrimSpace(username)]
	if !ok {
		return false, nil
	}
	rec.PasswordDigest = strings.TrimSpace(digest)
	return true, nil
}

func (m *Memory) AppendIP(ctx context.Context, username, ip string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ip = strings.TrimSpace(ip)

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.users[strings.TrimSpace(username)]
	if !ok || ip == "" || rec.HasIP(ip) {
		return false, nil
	}
	rec.AllowedIPs = append(rec.AllowedIPs, ip)
	return true, nil
}
