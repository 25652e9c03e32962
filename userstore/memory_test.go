package userstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryInsertAndFind(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Insert(ctx, Record{
		Username:       " alice ",
		PasswordDigest: "d1",
		AllowedIPs:     []string{"1.1.1.1", " 1.1.1.1", ""},
		Email:          "a@gmail.com",
	}))

	rec, err := m.FindByUsername(ctx, "alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, []string{"1.1.1.1"}, rec.AllowedIPs)

	_, err = m.FindByUsername(ctx, "Alice")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, m.Insert(ctx, Record{Username: "alice"}), ErrDuplicate)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(Record{Username: "alice", AllowedIPs: []string{"1.1.1.1"}})

	rec, err := m.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	rec.AllowedIPs[0] = "6.6.6.6"

	again, err := m.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1.1.1"}, again.AllowedIPs)
}

func TestMemoryEnumerations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(
		Record{Username: "alice", Email: "x@gmail.com"},
		Record{Username: "bob", Email: "x@gmail.com"},
		Record{Username: "carol", Email: "c@gmail.com"},
	)

	names, err := m.AllUsernames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, names)

	emails, err := m.AllEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x@gmail.com", "x@gmail.com", "c@gmail.com"}, emails)
}

func TestMemoryMutations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(Record{Username: "alice", PasswordDigest: "old", AllowedIPs: []string{"1.1.1.1"}})

	ok, err := m.UpdatePassword(ctx, "alice", "new")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.UpdatePassword(ctx, "ghost", "new")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.AppendIP(ctx, "alice", "2.2.2.2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.AppendIP(ctx, "alice", " 2.2.2.2 ")
	require.NoError(t, err)
	assert.False(t, ok, "duplicate IP must not be appended twice")

	rec, _ := m.FindByUsername(ctx, "alice")
	assert.Equal(t, "new", rec.PasswordDigest)
	assert.Equal(t, []string{"1.1.1.1", "2.2.2.2"}, rec.AllowedIPs)
}

func TestMemoryHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory().AllUsernames(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type countingStore struct {
	Store
	usernameCalls int
}

func (c *countingStore) AllUsernames(ctx context.Context) ([]string, error) {
	c.usernameCalls++
	return c.Store.AllUsernames(ctx)
}

func TestCachedUsernamesTTL(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{Store: NewMemory(Record{Username: "alice"})}
	c := NewCached(inner, time.Minute)

	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		names, err := c.AllUsernames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, names)
	}
	assert.Equal(t, 1, inner.usernameCalls)

	now = now.Add(time.Minute)
	_, err := c.AllUsernames(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.usernameCalls)
}

func TestCachedInsertInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory(Record{Username: "alice"})
	c := NewCached(inner, time.Hour)

	_, err := c.AllUsernames(ctx)
	require.NoError(t, err)

	// A write that bypasses the wrapper stays invisible until invalidation.
	require.NoError(t, inner.Insert(ctx, Record{Username: "bob"}))
	names, _ := c.AllUsernames(ctx)
	assert.Equal(t, []string{"alice"}, names)

	c.InvalidateUsernames()
	names, _ = c.AllUsernames(ctx)
	assert.Equal(t, []string{"alice", "bob"}, names)

	require.NoError(t, c.Insert(ctx, Record{Username: "carol"}))
	names, _ = c.AllUsernames(ctx)
	assert.Equal(t, []string{"alice", "bob", "carol"}, names)
}

// gatedStore takes its username snapshot, signals, then waits for release.
type gatedStore struct {
	Store
	taken   chan struct{}
	release chan struct{}
}

func (g *gatedStore) AllUsernames(ctx context.Context) ([]string, error) {
	names, err := g.Store.AllUsernames(ctx)
	close(g.taken)
	<-g.release
	return names, err
}

func TestCachedDropsFetchOverlappingInvalidation(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	gated := &gatedStore{Store: inner, taken: make(chan struct{}), release: make(chan struct{})}
	c := NewCached(gated, time.Hour)

	done := make(chan []string)
	go func() {
		names, _ := c.AllUsernames(ctx)
		done <- names
	}()

	<-gated.taken
	require.NoError(t, inner.Insert(ctx, Record{Username: "alice"}))
	c.InvalidateUsernames()
	close(gated.release)
	assert.Empty(t, <-done, "the in-flight fetch saw the old snapshot")

	// Later fetches go back to the inner store; swap in the plain one so
	// they do not block again.
	c.Store = inner
	names, err := c.AllUsernames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, names)
}
