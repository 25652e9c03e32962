package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MrEthical07/goGuard/userstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T, path string) *Store {
	t.Helper()

	s, err := Open(context.Background(), SQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, filepath.Join(t.TempDir(), "users.db"))

	require.NoError(t, s.Insert(ctx, userstore.Record{
		Username:       "zed1",
		PasswordDigest: "digest-z",
		AllowedIPs:     []string{"10.0.0.2", "10.0.0.1"},
		Email:          "z@gmail.com",
	}))
	require.NoError(t, s.Insert(ctx, userstore.Record{
		Username:       "amy1",
		PasswordDigest: "digest-a",
		Email:          "a@gmail.com",
	}))
	assert.ErrorIs(t, s.Insert(ctx, userstore.Record{Username: "amy1"}), userstore.ErrDuplicate)

	rec, err := s.FindByUsername(ctx, "zed1")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.1"}, rec.AllowedIPs)
	assert.Equal(t, "digest-z", rec.PasswordDigest)

	names, err := s.AllUsernames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"zed1", "amy1"}, names)

	emails, err := s.AllEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"z@gmail.com", "a@gmail.com"}, emails)

	_, err = s.FindByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, userstore.ErrNotFound)
}

func TestSQLiteMutations(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, s.Insert(ctx, userstore.Record{Username: "amy1", AllowedIPs: []string{"10.0.0.1"}}))

	ok, err := s.AppendIP(ctx, "amy1", "10.0.0.9")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AppendIP(ctx, "amy1", "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.AppendIP(ctx, "ghost", "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.UpdatePassword(ctx, "amy1", "digest-2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UpdatePassword(ctx, "ghost", "digest-2")
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := s.FindByUsername(ctx, "amy1")
	require.NoError(t, err)
	assert.Equal(t, "digest-2", rec.PasswordDigest)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.9"}, rec.AllowedIPs)
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.db")

	first, err := Open(ctx, SQLite, path)
	require.NoError(t, err)
	require.NoError(t, first.Insert(ctx, userstore.Record{Username: "amy1", Email: "a@gmail.com"}))
	require.NoError(t, first.Close())

	second := openSQLite(t, path)
	rec, err := second.FindByUsername(ctx, "amy1")
	require.NoError(t, err)
	assert.Equal(t, "a@gmail.com", rec.Email)
	assert.Empty(t, rec.AllowedIPs)
}
