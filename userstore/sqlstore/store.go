// Package sqlstore persists user records in a SQL database.
//
// Postgres is reached through the pgx stdlib driver and SQLite through the
// pure Go modernc.org/sqlite driver. Both share one schema, applied by goose
// from embedded migrations:
//
//	users     (username PK, password_digest, email, seq)
//	user_ips  (username, ip, position)  PK (username, ip)
//
// seq and position keep insertion order for the enumerations and the IP list.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/MrEthical07/goGuard/userstore"
	"github.com/MrEthical07/goGuard/userstore/sqlstore/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// ErrUnavailable wraps every driver or connection failure.
var ErrUnavailable = errors.New("user store database unavailable")

// Dialect selects the driver and placeholder style.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func (d Dialect) driver() string {
	switch d {
	case Postgres:
		return "pgx"
	case SQLite:
		return "sqlite"
	}
	return ""
}

func (d Dialect) gooseDialect() string {
	if d == SQLite {
		return "sqlite3"
	}
	return "postgres"
}

// DBTX is the subset of database/sql used by the store.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements userstore.Store on a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ userstore.Store = (*Store)(nil)

// New wraps an open database. The schema must already be migrated.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Open connects to dsn, checks the connection and applies the migrations.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	driver := dialect.driver()
	if driver == "" {
		return nil, fmt.Errorf("sqlstore: unsupported dialect %q", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, unavailable(err)
	}
	if dialect == SQLite {
		// One writer at a time.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable(err)
	}

	s := New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

// gooseUp is a seam for testing goose.UpContext.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Migrate applies every pending embedded migration.
func (s *Store) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect(s.dialect.gooseDialect()); err != nil {
		return err
	}
	if err := gooseUp(ctx, s.db, "."); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) FindByUsername(ctx context.Context, username string) (userstore.Record, error) {
	username = strings.TrimSpace(username)
	rec := userstore.Record{Username: username}

	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT password_digest, email FROM users WHERE username = ?`),
		username,
	).Scan(&rec.PasswordDigest, &rec.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return userstore.Record{}, userstore.ErrNotFound
	}
	if err != nil {
		return userstore.Record{}, unavailable(err)
	}

	ips, err := s.column(ctx,
		`SELECT ip FROM user_ips WHERE username = ? ORDER BY position`, username)
	if err != nil {
		return userstore.Record{}, err
	}
	rec.AllowedIPs = ips
	return rec, nil
}

func (s *Store) AllUsernames(ctx context.Context) ([]string, error) {
	return s.column(ctx, `SELECT username FROM users ORDER BY seq, username`)
}

func (s *Store) AllEmails(ctx context.Context) ([]string, error) {
	return s.column(ctx, `SELECT email FROM users ORDER BY seq, username`)
}

// column runs a single-column query and collects the values.
func (s *Store) column(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// Insert adds rec with its addresses in one transaction.
func (s *Store) Insert(ctx context.Context, rec userstore.Record) error {
	rec = userstore.Normalize(rec)

	return s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		// SQLite needs the WHERE to parse ON CONFLICT after INSERT ... SELECT.
		res, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO users (username, password_digest, email, seq)
			SELECT ?, ?, ?, COALESCE(MAX(seq), 0) + 1 FROM users WHERE true
			ON CONFLICT (username) DO NOTHING`),
			rec.Username, rec.PasswordDigest, rec.Email,
		)
		if err != nil {
			return unavailable(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return unavailable(err)
		} else if n == 0 {
			return userstore.ErrDuplicate
		}

		for i, ip := range rec.AllowedIPs {
			if _, err := tx.ExecContext(ctx,
				s.rebind(`INSERT INTO user_ips (username, ip, position) VALUES (?, ?, ?)`),
				rec.Username, ip, i+1,
			); err != nil {
				return unavailable(err)
			}
		}
		return nil
	})
}

func (s *Store) UpdatePassword(ctx context.Context, username, digest string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE users SET password_digest = ? WHERE username = ?`),
		strings.TrimSpace(digest), strings.TrimSpace(username),
	)
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// AppendIP adds ip after the existing addresses. It reports false when the
// user is missing or already has ip.
func (s *Store) AppendIP(ctx context.Context, username, ip string) (bool, error) {
	username = strings.TrimSpace(username)
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return false, nil
	}

	var added bool
	err := s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		var one int
		err := tx.QueryRowContext(ctx,
			s.rebind(`SELECT 1 FROM users WHERE username = ?`), username,
		).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return unavailable(err)
		}

		res, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO user_ips (username, ip, position)
			SELECT ?, ?, COALESCE(MAX(position), 0) + 1 FROM user_ips WHERE username = ?
			ON CONFLICT (username, ip) DO NOTHING`),
			username, ip, username,
		)
		if err != nil {
			return unavailable(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return unavailable(err)
		}
		added = n > 0
		return nil
	})
	return added, err
}

// withTx runs fn in a transaction, committing on success and rolling back
// on error or panic. Panics are rethrown.
func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = unavailable(cerr)
		}
	}()

	return fn(ctx, tx)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
