package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkScript performs the whole fixed-window check-and-update atomically.
// A separate read-then-write would let two concurrent requests race past
// the threshold; the script is the mutual-exclusion boundary.
//
// KEYS[1] = counter key (rl:<type>:<identifier>)
// ARGV[1] = now (unix ms)
// ARGV[2] = max requests
// ARGV[3] = window ms
// ARGV[4] = lockout ms
//
// Returns {allowed, locked_until_ms, just_locked, remaining}.
var checkScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local window_ms = tonumber(ARGV[3])
local lockout_ms = tonumber(ARGV[4])

local locked_until = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
if locked_until > now then
  return {0, locked_until, 0, 0}
end

local window_end = tonumber(redis.call('HGET', KEYS[1], 'window_end') or '0')
-- An expired lockout resets the window even if window_end is still ahead,
-- otherwise the next request would re-trip the threshold immediately.
if window_end == 0 or now >= window_end or locked_until > 0 then
  redis.call('HSET', KEYS[1],
    'count', 1,
    'window_start', now,
    'window_end', now + window_ms,
    'locked_until', 0)
  redis.call('PEXPIRE', KEYS[1], math.max(window_ms, lockout_ms))
  return {1, 0, 0, max - 1}
end

local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
if count > max then
  local lu = now + lockout_ms
  redis.call('HSET', KEYS[1], 'locked_until', lu)
  redis.call('PEXPIRE', KEYS[1], lockout_ms)
  return {0, lu, 1, 0}
end
return {1, 0, 0, max - count}
`)

// RedisStore keeps counters in Redis so all gateway processes share one
// view of every identifier.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

func (s *RedisStore) Check(ctx context.Context, key string, p Policy, now time.Time) (Decision, error) {
	if s.rdb == nil {
		return Decision{}, fmt.Errorf("ratelimit: redis client is nil")
	}

	res, err := checkScript.Run(ctx, s.rdb, []string{"rl:" + key},
		now.UnixMilli(), p.MaxRequests, p.Window.Milliseconds(), p.Lockout.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 4 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script result %v", res)
	}

	d := Decision{
		Allowed:    res[0] == 1,
		JustLocked: res[2] == 1,
		Remaining:  int(res[3]),
	}
	if res[1] > 0 {
		d.RetryAfter = time.UnixMilli(res[1])
	}
	return d, nil
}

// Status reads the lockout field without touching the counter. Plain
// HGET; there is no write to race with.
func (s *RedisStore) Status(ctx context.Context, key string, now time.Time) (Decision, error) {
	if s.rdb == nil {
		return Decision{}, fmt.Errorf("ratelimit: redis client is nil")
	}

	lockedUntil, err := s.rdb.HGet(ctx, "rl:"+key, "locked_until").Int64()
	if err == redis.Nil {
		return Decision{Allowed: true}, nil
	}
	if err != nil {
		return Decision{}, err
	}
	if lockedUntil > now.UnixMilli() {
		return Decision{Allowed: false, RetryAfter: time.UnixMilli(lockedUntil)}, nil
	}
	return Decision{Allowed: true}, nil
}
