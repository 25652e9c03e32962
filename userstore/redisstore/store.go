// Package redisstore persists user records in Redis.
//
// Layout, for prefix p:
//
//	p:u:<username>    HASH  {digest, email}
//	p:ips:<username>  SET   allowed IP addresses
//	p:names           LIST  usernames in insertion order
//
// Writes that must check existence first run as Lua scripts so the check and
// the write are atomic on the server.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MrEthical07/goGuard/userstore"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps every Redis transport or protocol failure.
var ErrUnavailable = errors.New("user store redis unavailable")

// KEYS[1] = user hash, KEYS[2] = ip set, KEYS[3] = names list
// ARGV[1] = username, ARGV[2] = digest, ARGV[3] = email, ARGV[4..] = ips
var insertLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'digest', ARGV[2], 'email', ARGV[3])
for i = 4, #ARGV do
  redis.call('SADD', KEYS[2], ARGV[i])
end
redis.call('RPUSH', KEYS[3], ARGV[1])
return 1
`)

// KEYS[1] = user hash, ARGV[1] = digest
var updatePasswordLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'digest', ARGV[1])
return 1
`)

// KEYS[1] = user hash, KEYS[2] = ip set, ARGV[1] = ip
var appendIPLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
return redis.call('SADD', KEYS[2], ARGV[1])
`)

// Store implements userstore.Store on a Redis client.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New returns a Store. An empty prefix defaults to "gg".
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "gg"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) userKey(name string) string { return s.prefix + ":u:" + name }
func (s *Store) ipsKey(name string) string  { return s.prefix + ":ips:" + name }
func (s *Store) namesKey() string           { return s.prefix + ":names" }

func (s *Store) FindByUsername(ctx context.Context, username string) (userstore.Record, error) {
	name := strings.TrimSpace(username)

	pipe := s.redis.Pipeline()
	fields := pipe.HGetAll(ctx, s.userKey(name))
	ips := pipe.SMembers(ctx, s.ipsKey(name))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return userstore.Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	values := fields.Val()
	if len(values) == 0 {
		return userstore.Record{}, userstore.ErrNotFound
	}

	allowed := ips.Val()
	sort.Strings(allowed)
	return userstore.Record{
		Username:       name,
		PasswordDigest: values["digest"],
		AllowedIPs:     allowed,
		Email:          values["email"],
	}, nil
}

func (s *Store) AllUsernames(ctx context.Context) ([]string, error) {
	names, err := s.redis.LRange(ctx, s.namesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return names, nil
}

func (s *Store) AllEmails(ctx context.Context) ([]string, error) {
	names, err := s.AllUsernames(ctx)
	if err != nil || len(names) == 0 {
		return nil, err
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(names))
	for i, name := range names {
		cmds[i] = pipe.HGet(ctx, s.userKey(name), "email")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	emails := make([]string, 0, len(names))
	for _, cmd := range cmds {
		if email, err := cmd.Result(); err == nil {
			emails = append(emails, email)
		}
	}
	return emails, nil
}

func (s *Store) Insert(ctx context.Context, rec userstore.Record) error {
	rec = userstore.Normalize(rec)

	args := make([]interface{}, 0, 3+len(rec.AllowedIPs))
	args = append(args, rec.Username, rec.PasswordDigest, rec.Email)
	for _, ip := range rec.AllowedIPs {
		args = append(args, ip)
	}

	inserted, err := insertLua.Run(ctx, s.redis,
		[]string{s.userKey(rec.Username), s.ipsKey(rec.Username), s.namesKey()},
		args...,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if inserted == 0 {
		return userstore.ErrDuplicate
	}
	return nil
}

func (s *Store) UpdatePassword(ctx context.Context, username, digest string) (bool, error) {
	name := strings.TrimSpace(username)
	updated, err := updatePasswordLua.Run(ctx, s.redis,
		[]string{s.userKey(name)},
		strings.TrimSpace(digest),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return updated == 1, nil
}

func (s *Store) AppendIP(ctx context.Context, username, ip string) (bool, error) {
	name := strings.TrimSpace(username)
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return false, nil
	}

	added, err := appendIPLua.Run(ctx, s.redis,
		[]string{s.userKey(name), s.ipsKey(name)},
		ip,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return added == 1, nil
}
