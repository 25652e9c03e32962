package rate

import "errors"

// ErrRateLimited means the key has spent its failure budget for the window.
var ErrRateLimited = errors.New("rate limited")

// ErrRedisUnavailable wraps any Redis error; callers decide whether to fail open.
var ErrRedisUnavailable = errors.New("redis unavailable")
