package ratelimit

import (
	"context"
	"log/slog"
	"opshop/internal/clock"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript keeps one sorted set per client, scored by request time
// in milliseconds. It returns {allowed, count, oldest}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
	oldest = tonumber(first[2])
end

if count >= limit then
	return {0, count, oldest}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1, oldest}
`)

// RedisLimiter is a sliding window limiter whose request logs live in Redis,
// so every instance behind a load balancer shares the same budget.
// When Redis is unreachable requests are allowed and the failure is logged.
type RedisLimiter struct {
	rdb     *redis.Client
	prefix  string
	max     int
	window  time.Duration
	timeout time.Duration
	clock   clock.Clock
}

// RedisOption configures a RedisLimiter.
type RedisOption func(*RedisLimiter)

// WithRedisPrefix sets the key prefix. Defaults to "ratelimit".
func WithRedisPrefix(prefix string) RedisOption {
	return func(l *RedisLimiter) { l.prefix = strings.Trim(prefix, ":") }
}

// WithRedisTimeout bounds each round trip. Defaults to 100ms.
func WithRedisTimeout(d time.Duration) RedisOption {
	return func(l *RedisLimiter) { l.timeout = d }
}

// WithRedisClock sets the time source used for scores.
func WithRedisClock(c clock.Clock) RedisOption {
	return func(l *RedisLimiter) { l.clock = c }
}

func NewRedisLimiter(rdb *redis.Client, max int, window time.Duration, opts ...RedisOption) *RedisLimiter {
	l := &RedisLimiter{
		rdb:     rdb,
		prefix:  "ratelimit",
		max:     max,
		window:  window,
		timeout: 100 * time.Millisecond,
		clock:   clock.Real(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow checks whether a request from the given key should be allowed.
func (l *RedisLimiter) Allow(key string) (bool, Info) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	now := l.clock.Now()
	nowMs := now.UnixMilli()
	windowMs := l.window.Milliseconds()

	res, err := slidingWindowScript.Run(ctx, l.rdb,
		[]string{l.prefix + ":" + key},
		nowMs, windowMs, l.max, uuid.NewString(),
	).Int64Slice()
	if err != nil || len(res) != 3 {
		slog.Warn("Redis rate limiter unavailable, allowing request",
			"key", key,
			"error", err,
		)
		return true, Info{Limit: l.max, Remaining: l.max, ResetAt: now.Add(l.window), ResetIn: l.window}
	}

	allowed := res[0] == 1
	count := int(res[1])
	resetAt := time.UnixMilli(res[2] + windowMs)

	info := Info{
		Limit:   l.max,
		ResetAt: resetAt,
		ResetIn: resetAt.Sub(now),
	}
	if allowed {
		info.Remaining = l.max - count
	} else {
		info.RetryAfter = resetAt.Sub(now)
	}
	return allowed, info
}

// Close is a no-op; the Redis client is owned by the caller.
func (l *RedisLimiter) Close() {}
