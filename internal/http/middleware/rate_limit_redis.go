package middleware

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// One round trip decides both limits: a token bucket for bursts and a
// sorted-set sliding window for the sustained budget. The script owns
// all bookkeeping so concurrent instances never race on the counters.
//
// KEYS[1] bucket hash, KEYS[2] window zset, KEYS[3] member sequence.
// ARGV: now_ms, burst capacity, refill per ms, sustained limit,
// window ms. Returns {allowed, retry_ms, remaining, reset_ms}.
var redisRateLimitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill = tonumber(ARGV[3])
local limit = tonumber(ARGV[4])
local window = tonumber(ARGV[5])
if refill <= 0 then
  refill = 0.001
end

-- Refill the bucket from the elapsed time since the last decision. A
-- clock that moved backwards is treated as no elapsed time.
local state = redis.call("HMGET", KEYS[1], "tk", "at")
local tokens = capacity
local seen = now
if state[1] then
  tokens = tonumber(state[1])
end
if state[2] then
  seen = tonumber(state[2])
end
if seen > now then
  seen = now
end
tokens = math.min(capacity, tokens + (now - seen) * refill)

-- Trim the sliding window before counting it.
redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", now - window)
local used = redis.call("ZCARD", KEYS[2])

local allowed = 0
if tokens >= 1 and used < limit then
  allowed = 1
  tokens = tokens - 1
  local seq = redis.call("INCR", KEYS[3])
  redis.call("ZADD", KEYS[2], now, now .. "." .. seq)
  used = used + 1
end

-- Retry hint: whichever exhausted budget recovers later wins.
local wait = 0
if tokens < 1 then
  wait = math.ceil((1 - tokens) / refill)
end
if used >= limit then
  local oldest = redis.call("ZRANGE", KEYS[2], 0, 0, "WITHSCORES")
  if oldest and oldest[2] then
    local until_slot = math.ceil(tonumber(oldest[2]) + window - now)
    if until_slot > wait then
      wait = until_slot
    end
  end
end
if wait <= 0 then
  wait = 1
end

local remaining = math.floor(tokens)
if limit - used < remaining then
  remaining = limit - used
end
if remaining < 0 then
  remaining = 0
end

redis.call("HSET", KEYS[1], "tk", tostring(tokens), "at", tostring(now))
local bucket_ttl = math.ceil(capacity / refill)
if bucket_ttl < window then
  bucket_ttl = window
end
redis.call("PEXPIRE", KEYS[1], bucket_ttl)
redis.call("PEXPIRE", KEYS[2], window)
redis.call("PEXPIRE", KEYS[3], window)

local reset = now + window
if allowed == 0 then
  reset = now + wait
end
return {allowed, wait, remaining, reset}
`)

// RedisRateLimiter shares one view of every client's budget across all
// service instances. Used for the auth scope, where a local limiter
// would multiply the effective limit by the replica count.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

var _ Limiter = (*RedisRateLimiter)(nil)

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error) {
	if l.client == nil {
		return Decision{}, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		key = "unknown"
	}
	policy = normalizePolicy(policy)

	windowMS := int64(policy.SustainedWindow / time.Millisecond)
	if windowMS <= 0 {
		windowMS = 1000
	}
	now := time.Now().UnixMilli()

	// Hash tag keeps the three keys in one cluster slot.
	base := fmt.Sprintf("%s:{%s}", l.prefix, key)
	raw, err := redisRateLimitScript.Run(ctx, l.client,
		[]string{base, base + ":win", base + ":seq"},
		now,
		policy.BurstCapacity,
		policy.BurstRefillPerSec/1000.0,
		policy.SustainedLimit,
		windowMS,
	).Result()
	if err != nil {
		return Decision{}, err
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 4 {
		return Decision{}, fmt.Errorf("unexpected redis script response type")
	}
	var fields [4]int64
	for i, v := range reply {
		if fields[i], err = parseRedisInt64(v); err != nil {
			return Decision{}, err
		}
	}

	retryMS := fields[1]
	if retryMS <= 0 {
		retryMS = 1
	}
	resetMS := fields[3]
	if resetMS <= now {
		resetMS = now + retryMS
	}
	return Decision{
		Allowed:    fields[0] == 1,
		RetryAfter: time.Duration(retryMS) * time.Millisecond,
		Remaining:  int(max(fields[2], 0)),
		ResetAt:    time.UnixMilli(resetMS),
	}, nil
}

func parseRedisInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("redis response overflows int64")
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case string:
		return 0, fmt.Errorf("unexpected string redis response: %s", n)
	default:
		return 0, fmt.Errorf("unexpected redis response type %T", v)
	}
}
