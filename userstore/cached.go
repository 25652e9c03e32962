package userstore

import (
	"context"
	"sync"
	"time"
)

// DefaultUsernameCacheTTL is how long Cached serves a username enumeration.
const DefaultUsernameCacheTTL = 60 * time.Second

// Cached wraps a Store and memoizes AllUsernames for a TTL. All other calls
// pass through. Insert through the wrapper invalidates the cache.
type Cached struct {
	Store

	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	usernames []string
	fetchedAt time.Time
	// gen moves on every invalidation; a fetch that started under an older
	// gen is returned to its caller but not cached.
	gen uint64
}

// NewCached wraps next. ttl <= 0 uses DefaultUsernameCacheTTL.
func NewCached(next Store, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultUsernameCacheTTL
	}
	return &Cached{Store: next, ttl: ttl, now: time.Now}
}

func (c *Cached) AllUsernames(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	if c.usernames != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		out := append([]string(nil), c.usernames...)
		c.mu.Unlock()
		return out, nil
	}
	gen := c.gen
	c.mu.Unlock()

	names, err := c.Store.AllUsernames(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.usernames = append([]string{}, names...)
		c.fetchedAt = c.now()
	}
	c.mu.Unlock()
	return names, nil
}

func (c *Cached) Insert(ctx context.Context, rec Record) error {
	err := c.Store.Insert(ctx, rec)
	c.InvalidateUsernames()
	return err
}

// InvalidateUsernames drops the memoized enumeration.
func (c *Cached) InvalidateUsernames() {
	c.mu.Lock()
	c.usernames = nil
	c.fetchedAt = time.Time{}
	c.gen++
	c.mu.Unlock()
}
