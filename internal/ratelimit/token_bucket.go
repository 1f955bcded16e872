package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// KEYS[1] bucket; ARGV rate (tokens/s), burst, ttl (ms), cost.
// Tokens are returned as a string: redis truncates Lua numbers to integers
// on the way out.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local clock = redis.call("TIME")
local now = (clock[1] * 1000) + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])

if tokens == nil then
  tokens = burst
else
  local elapsed = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (elapsed / 1000) * rate)
end

local allowed = 0
if tokens >= cost then
  allowed = 1
  tokens = tokens - cost
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), now}
`

var (
	ErrBucketNotConfigured = errors.New("token_bucket_not_configured")
	ErrInvalidBucketLimit  = errors.New("invalid_token_bucket_limit")
)

// Limit is a refill rate in tokens per second and the bucket capacity.
type Limit struct {
	Rate  float64
	Burst int
}

func (l Limit) valid() bool {
	return l.Rate > 0 && l.Burst > 0
}

// TokenBucket is a redis-backed bucket shared by every API replica.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Take removes cost tokens from the bucket at key. A cost above the burst is
// clamped so an oversized request can still pass once the bucket is full.
func (t *TokenBucket) Take(ctx context.Context, key string, limit Limit, cost int) (*RateLimitResult, error) {
	denied := &RateLimitResult{Limit: limit.Burst}
	if t == nil || t.client == nil {
		return denied, ErrBucketNotConfigured
	}
	if key == "" || !limit.valid() {
		return denied, ErrInvalidBucketLimit
	}
	cost = clampCost(cost, limit.Burst)

	ttl := bucketTTL(limit)
	res, err := t.script.Run(ctx, t.client, []string{key},
		limit.Rate, limit.Burst, ttl.Milliseconds(), cost,
	).Slice()
	if err != nil {
		return denied, err
	}
	if len(res) < 3 {
		return denied, errors.New("token bucket script returned a short reply")
	}

	allowed := asInt(res[0]) == 1
	tokens := asFloat(res[1])
	now := time.UnixMilli(asInt(res[2]))

	var retryAfter time.Duration
	if !allowed {
		retryAfter = refillTime(float64(cost)-tokens, limit.Rate)
	}

	return &RateLimitResult{
		Allowed:    allowed,
		Limit:      limit.Burst,
		Remaining:  int(math.Floor(tokens)),
		ResetTime:  now.Add(refillTime(float64(limit.Burst)-tokens, limit.Rate)),
		RetryAfter: retryAfter,
	}, nil
}

func clampCost(cost, burst int) int {
	if cost < 1 {
		return 1
	}
	if cost > burst {
		return burst
	}
	return cost
}

// refillTime is how long the bucket needs to gain missing tokens.
func refillTime(missing, rate float64) time.Duration {
	if missing <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(missing / rate * float64(time.Second))
}

// bucketTTL keeps an idle bucket for twice the time it takes to refill.
func bucketTTL(limit Limit) time.Duration {
	if !limit.valid() {
		return time.Second
	}
	seconds := math.Ceil(float64(limit.Burst) / limit.Rate * 2)
	return time.Duration(math.Max(seconds, 1)) * time.Second
}

func asInt(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		parsed, _ := strconv.ParseInt(val, 10, 64)
		return parsed
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
