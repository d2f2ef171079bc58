package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const KeyPrefix = "registry:rl"

// Scopes used by the relay's HTTP surface.
const (
	ScopeWebhook = "webhook"
	ScopeAdmin   = "admin"
)

// Bucket sizes one limiter scope. A zero bucket disables limiting.
type Bucket struct {
	RequestsPerMinute int
	BurstSize         int
}

func (b Bucket) Enabled() bool {
	return b.RequestsPerMinute > 0 && b.BurstSize > 0
}

func (b Bucket) perSecond() float64 { return float64(b.RequestsPerMinute) / 60.0 }

// Decision is the outcome of one Allow call. Remaining is the whole number of
// tokens left after the call; RetryAfter is set only when Allowed is false.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, scope string, subject string, bucket Bucket) (Decision, error)
}

// TokenBucketLimiter keeps one bucket per (scope, subject) in a redis hash so
// every relay replica shares the same budget.
type TokenBucketLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

func NewTokenBucketLimiter(rdb *redis.Client) *TokenBucketLimiter {
	return &TokenBucketLimiter{rdb: rdb, now: time.Now}
}

// KEYS[1] bucket hash
// ARGV rate (tokens/ms), capacity, now (ms), ttl (ms)
// returns {allowed, remaining, retry_after_ms}
var takeScript = redis.NewScript(`
local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now
if ts > now then ts = now end

tokens = math.min(capacity, tokens + (now - ts) * rate)

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
elseif rate > 0 then
  wait = math.ceil((1 - tokens) / rate)
else
  wait = 60000
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return {allowed, math.floor(tokens), wait}
`)

func (l *TokenBucketLimiter) Allow(ctx context.Context, scope string, subject string, bucket Bucket) (Decision, error) {
	if l == nil || l.rdb == nil || !bucket.Enabled() {
		return Decision{Allowed: true, Remaining: bucket.BurstSize}, nil
	}

	rate := bucket.perSecond() / 1000.0
	capacity := float64(bucket.BurstSize)
	args := []interface{}{rate, capacity, l.now().UnixMilli(), bucketTTL(bucket).Milliseconds()}

	res, err := takeScript.Run(ctx, l.rdb, []string{Key(scope, subject)}, args...).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit %s: %w", scope, err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return Decision{}, fmt.Errorf("ratelimit %s: unexpected reply %T", scope, res)
	}
	allowed, _ := vals[0].(int64)
	remaining, _ := vals[1].(int64)
	waitMS, _ := vals[2].(int64)

	dec := Decision{Allowed: allowed == 1, Remaining: int(remaining)}
	if !dec.Allowed {
		dec.RetryAfter = time.Duration(waitMS) * time.Millisecond
		if dec.RetryAfter < time.Second {
			dec.RetryAfter = time.Second
		}
	}
	return dec, nil
}

// Key is the redis key holding the bucket state for subject within scope.
// Subjects are hashed so caller addresses and tokens never appear in key names.
func Key(scope, subject string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "unknown"
	}
	sum := sha256.Sum256([]byte(subject))
	return KeyPrefix + ":" + scope + ":" + hex.EncodeToString(sum[:])
}

// bucketTTL keeps an idle bucket around for two full refills, within [30s, 1h].
func bucketTTL(b Bucket) time.Duration {
	const (
		minTTL = 30 * time.Second
		maxTTL = time.Hour
	)
	rate := b.perSecond()
	if rate <= 0 || b.BurstSize <= 0 {
		return 2 * time.Minute
	}
	ttl := time.Duration(math.Ceil(2*float64(b.BurstSize)/rate))*time.Second + 5*time.Second
	switch {
	case ttl < minTTL:
		return minTTL
	case ttl > maxTTL:
		return maxTTL
	}
	return ttl
}
