package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript mirrors apply() server-side so concurrent processes share one window.
// KEYS[1] = counter hash; ARGV = now(ms), window(ms), max.
var hitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local vals = redis.call('HMGET', KEYS[1], 'count', 'reset')
local count = tonumber(vals[1])
local reset = tonumber(vals[2])
if (not count) or (not reset) or now >= reset then
  count = 0
  reset = now + window
  redis.call('HSET', KEYS[1], 'count', 0, 'reset', reset)
  redis.call('PEXPIRE', KEYS[1], window)
end
if count >= max then
  return {0, 0, reset}
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {1, max - count, reset}
`)

// RedisStore shares windows between processes. Keys expire with their window,
// so no sweeper is needed.
type RedisStore struct {
	rdb    redis.Scripter
	keyFor func(identifier string) string
}

// NewRedisStore returns a RedisStore; keyFor maps identifiers to Redis keys.
func NewRedisStore(rdb redis.Scripter, keyFor func(identifier string) string) *RedisStore {
	if keyFor == nil {
		keyFor = func(id string) string { return "ratelimit:" + id }
	}
	return &RedisStore{rdb: rdb, keyFor: keyFor}
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, identifier string, cfg Config, now time.Time) (Result, error) {
	res, err := hitScript.Run(ctx, s.rdb,
		[]string{s.keyFor(identifier)},
		now.UnixMilli(), cfg.Window.Milliseconds(), cfg.Max,
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit script: %w", err)
	}
	if len(res) != 3 {
		return Result{}, fmt.Errorf("ratelimit script: unexpected reply length %d", len(res))
	}

	return Result{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
		ResetTime: time.UnixMilli(res[2]).UTC(),
	}, nil
}
