package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	MaxFailures int
	Window      time.Duration
	Prefix      string
}

// failScript bumps the counter and starts the window on the first failure.
var failScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// checkScript returns {failures, remaining ms}; the TTL is read only once
// the budget is spent.
var checkScript = redis.NewScript(`
local n = tonumber(redis.call('GET', KEYS[1]) or '0')
if n < tonumber(ARGV[1]) then
  return {n, 0}
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// Limiter enforces a failure budget per key. Check and Fail are single
// atomic script calls.
type Limiter struct {
	rdb redis.UniversalClient
	cfg Config
}

// New creates a Limiter. Zero values default to 20 failures per 15 minutes
// under prefix "gg".
func New(rdb redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 20
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "gg"
	}
	return &Limiter{rdb: rdb, cfg: cfg}
}

// Check returns ErrRateLimited, with the time left in the window, once key
// has MaxFailures failures.
func (l *Limiter) Check(ctx context.Context, key string) (time.Duration, error) {
	res, err := checkScript.Run(ctx, l.rdb, []string{l.key(key)}, l.cfg.MaxFailures).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 || res[0] < int64(l.cfg.MaxFailures) {
		return 0, nil
	}
	wait := time.Duration(res[1]) * time.Millisecond
	if wait <= 0 {
		// Key without expiry: treat as a fresh window.
		wait = l.cfg.Window
	}
	return wait, ErrRateLimited
}

// Fail records one failure for key.
func (l *Limiter) Fail(ctx context.Context, key string) error {
	if err := failScript.Run(ctx, l.rdb, []string{l.key(key)}, l.cfg.Window.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Reset clears key's failures.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(k string) string {
	return l.cfg.Prefix + ":lf:" + k
}
