package ratelimit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupLimiter(t *testing.T) (*miniredis.Miniredis, *TokenBucketLimiter) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewTokenBucketLimiter(rdb)
}

func TestAllowDisabledBucket(t *testing.T) {
	_, lim := setupLimiter(t)

	dec, err := lim.Allow(context.Background(), ScopeWebhook, "10.0.0.1", Bucket{})
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowed when bucket disabled")
	}
}

func TestAllowNilLimiter(t *testing.T) {
	var lim *TokenBucketLimiter
	dec, err := lim.Allow(context.Background(), ScopeWebhook, "10.0.0.1", Bucket{RequestsPerMinute: 1, BurstSize: 1})
	if err != nil || !dec.Allowed {
		t.Fatalf("nil limiter must allow, got %+v %v", dec, err)
	}
}

func TestAllowBlocksAfterBurst(t *testing.T) {
	mr, lim := setupLimiter(t)
	ctx := context.Background()
	bucket := Bucket{RequestsPerMinute: 60, BurstSize: 2}

	for i := 0; i < 2; i++ {
		dec, err := lim.Allow(ctx, ScopeWebhook, "10.0.0.1", bucket)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !dec.Allowed {
			t.Fatalf("request %d should fit in the burst", i)
		}
	}

	dec, err := lim.Allow(ctx, ScopeWebhook, "10.0.0.1", bucket)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expected third request to be limited")
	}
	if dec.RetryAfter < time.Second {
		t.Fatalf("expected retry-after of at least 1s, got %s", dec.RetryAfter)
	}

	other, err := lim.Allow(ctx, ScopeWebhook, "10.0.0.2", bucket)
	if err != nil {
		t.Fatalf("allow other: %v", err)
	}
	if !other.Allowed {
		t.Fatalf("buckets are per subject")
	}

	admin, err := lim.Allow(ctx, ScopeAdmin, "10.0.0.1", bucket)
	if err != nil {
		t.Fatalf("allow admin: %v", err)
	}
	if !admin.Allowed {
		t.Fatalf("buckets are per scope")
	}

	key := Key(ScopeWebhook, "10.0.0.1")
	if !mr.Exists(key) {
		t.Fatalf("expected bucket state under %s", key)
	}
	if ttl := mr.TTL(key); ttl <= 0 {
		t.Fatalf("expected bucket state to expire, ttl=%s", ttl)
	}
}

func TestKeyHashesSubject(t *testing.T) {
	key := Key(" webhook ", "192.168.1.7")
	if !strings.HasPrefix(key, KeyPrefix+":webhook:") {
		t.Fatalf("unexpected key %q", key)
	}
	if strings.Contains(key, "192.168.1.7") {
		t.Fatalf("subject leaked into key %q", key)
	}
	if Key("", "") != Key("default", "unknown") {
		t.Fatalf("blank scope and subject must fall back to defaults")
	}
}

func TestAllowRefillsWithClock(t *testing.T) {
	_, lim := setupLimiter(t)
	now := time.UnixMilli(1_700_000_000_000)
	lim.now = func() time.Time { return now }
	ctx := context.Background()
	bucket := Bucket{RequestsPerMinute: 60, BurstSize: 2}

	first, err := lim.Allow(ctx, ScopeWebhook, "10.0.0.9", bucket)
	if err != nil || !first.Allowed || first.Remaining != 1 {
		t.Fatalf("first = %+v, %v", first, err)
	}
	second, _ := lim.Allow(ctx, ScopeWebhook, "10.0.0.9", bucket)
	if !second.Allowed || second.Remaining != 0 {
		t.Fatalf("second = %+v", second)
	}
	denied, _ := lim.Allow(ctx, ScopeWebhook, "10.0.0.9", bucket)
	if denied.Allowed || denied.RetryAfter != time.Second {
		t.Fatalf("denied = %+v", denied)
	}

	now = now.Add(time.Second)
	again, err := lim.Allow(ctx, ScopeWebhook, "10.0.0.9", bucket)
	if err != nil || !again.Allowed {
		t.Fatalf("expected a token after one second, got %+v %v", again, err)
	}
}

func TestBucketTTLBounds(t *testing.T) {
	tests := []struct {
		name   string
		bucket Bucket
		want   time.Duration
	}{
		{"invalid", Bucket{}, 2 * time.Minute},
		{"fast refill floors", Bucket{RequestsPerMinute: 6000, BurstSize: 1}, 30 * time.Second},
		{"slow refill caps", Bucket{RequestsPerMinute: 1, BurstSize: 100}, time.Hour},
		{"one per second", Bucket{RequestsPerMinute: 60, BurstSize: 60}, 125 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bucketTTL(tt.bucket); got != tt.want {
				t.Fatalf("bucketTTL = %s, want %s", got, tt.want)
			}
		})
	}
}
