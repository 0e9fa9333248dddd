package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateLimitAPIPrefix = "rl:key:"
	rateLimitIPPrefix  = "rl:ip:"
)

// bucket describes one token bucket: refill rate in tokens per second and
// capacity.
type bucket struct {
	rate  float64
	burst int
}

// ttl keeps an idle bucket around just long enough to refill completely.
func (b bucket) ttl() int {
	return int(math.Ceil(float64(b.burst)/b.rate)) + 1
}

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// tokenBucketScript refills and consumes in one atomic step. Time is passed
// in milliseconds so sub-second refill rates are exact.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now_ms = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local state = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(state[1]) or burst
	local ts = tonumber(state[2]) or now_ms

	tokens = math.min(burst, tokens + ((now_ms - ts) / 1000.0) * rate)

	local allowed = 0
	local retry_ms = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_ms = math.ceil(((1 - tokens) / rate) * 1000)
	end

	redis.call('HSET', key, 'tokens', tokens, 'ts', now_ms)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_ms, math.floor(tokens)}
`)

// CheckAPIRateLimit consumes one token from the bucket of an API key.
// A zero rate disables the limit.
func (c *Cache) CheckAPIRateLimit(ctx context.Context, keyID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst)}, nil
	}
	return c.take(ctx, rateLimitAPIPrefix+keyID, bucket{rate: float64(ratePerMinute) / 60, burst: burst})
}

// CheckIPRateLimit consumes one token from the bucket of a client IP. Sign-in
// and sign-up are limited this way since they run before any credential.
// The IP is hashed so raw addresses never reach Redis.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst)}, nil
	}
	return c.take(ctx, rateLimitIPPrefix+hashIP(ip), bucket{rate: float64(ratePerSecond), burst: burst})
}

func (c *Cache) take(ctx context.Context, key string, b bucket) (*RateLimitResult, error) {
	res, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		b.rate, b.burst, time.Now().UnixMilli(), b.ttl(),
	).Int64Slice()
	if err != nil || len(res) != 3 {
		// Fail open: a Redis outage must not lock users out.
		return &RateLimitResult{Allowed: true, Remaining: int64(b.burst)}, nil
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		Remaining:  res[2],
	}, nil
}

// hashIP returns 16 hex chars of SHA-256.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
