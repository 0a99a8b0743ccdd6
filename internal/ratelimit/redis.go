package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "switchboard:ratelimit:"

// takeScript returns {count, pttl, allowed}. At the ceiling it reads without
// incrementing so a denied caller never extends its own count.
var takeScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local allowed = 0
if current < tonumber(ARGV[1]) then
  current = redis.call('INCR', KEYS[1])
  allowed = 1
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
return {current, ttl, allowed}
`)

// RedisStore shares counters between processes through Redis. Windows expire
// through key TTLs, so no sweep is needed.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore. An empty prefix selects the default.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// OpenRedis connects to the Redis server at redisURL and verifies it with PING.
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Take implements Store.
func (s *RedisStore) Take(ctx context.Context, identifier string, limit int, window time.Duration, now time.Time) (Result, error) {
	vals, err := takeScript.Run(ctx, s.client, []string{s.prefix + identifier}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis take: %w", err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("ratelimit: unexpected script reply %v", vals)
	}

	count, ttl, allowed := int(vals[0]), time.Duration(vals[1])*time.Millisecond, vals[2] == 1
	res := Result{Allowed: allowed, ResetTime: now.Add(ttl)}
	if allowed {
		res.Remaining = limit - count
	}
	return res, nil
}
