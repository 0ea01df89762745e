package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills at rate tokens per second up to capacity and takes one token per call.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local rate = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local requested = tonumber(ARGV[4])

	local info = redis.call("HMGET", key, "tokens", "last_refill")
	local tokens = tonumber(info[1])
	local last_refill = tonumber(info[2])

	if tokens == nil then
		tokens = capacity
		last_refill = now
	end

	local delta = math.max(0, now - last_refill)
	local filled_tokens = math.min(capacity, tokens + (delta / 1000 * rate))

	local allowed = 0
	if filled_tokens >= requested then
		filled_tokens = filled_tokens - requested
		allowed = 1
		redis.call("HMSET", key, "tokens", filled_tokens, "last_refill", now)
		redis.call("EXPIRE", key, math.ceil(capacity / rate) * 2)
	end

	return allowed
`)

// Limiter is a Redis token bucket shared by every instance.
type Limiter struct {
	client   redis.Scripter
	prefix   string
	capacity int
	rate     float64
	now      func() time.Time
}

func NewLimiter(client redis.Scripter, prefix string, rate float64, burst int) *Limiter {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		client:   client,
		prefix:   prefix,
		capacity: burst,
		rate:     rate,
		now:      time.Now,
	}
}

// Allow takes one token from the bucket of key.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	keys := []string{l.bucketKey(key)}
	args := []interface{}{l.capacity, l.rate, l.now().UnixMilli(), 1}

	allowed, err := tokenBucketScript.Run(ctx, l.client, keys, args...).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return allowed == 1, nil
}

func (l *Limiter) bucketKey(key string) string {
	return fmt.Sprintf("rate_limit:%s:%s", l.prefix, key)
}
