package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NEAR-Edu/contract-registry/internal/ratelimit"
	"github.com/NEAR-Edu/contract-registry/pkg/config"

	"github.com/gin-gonic/gin"
)

// mockLimiter implements ratelimit.Limiter for testing
type mockLimiter struct {
	decision ratelimit.Decision
	err      error
	calls    int
	subject  string
}

func (m *mockLimiter) Allow(ctx context.Context, scope string, subject string, bucket ratelimit.Bucket) (ratelimit.Decision, error) {
	m.calls++
	m.subject = subject
	return m.decision, m.err
}

func limitConfig(rpm, burst int) *config.Config {
	b := config.RateLimitBucketConfig{RequestsPerMinute: rpm, BurstSize: burst}
	return &config.Config{RateLimit: config.RateLimitConfig{Webhook: b, Admin: b}}
}

func webhookContext(rec *httptest.ResponseRecorder) *gin.Context {
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/webhook", nil)
	ctx.Request.RemoteAddr = "203.0.113.7:41000"
	return ctx
}

func TestRateLimitWebhook_DisabledBucket(t *testing.T) {
	limiter := &mockLimiter{decision: ratelimit.Decision{Allowed: false}}
	rec := httptest.NewRecorder()
	ctx := webhookContext(rec)

	RateLimitWebhook(limiter, limitConfig(0, 0))(ctx)

	if ctx.IsAborted() || limiter.calls != 0 {
		t.Fatal("expected request to pass through for disabled bucket")
	}
}

func TestRateLimitWebhook_AllowedByClientIP(t *testing.T) {
	limiter := &mockLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 9}}
	rec := httptest.NewRecorder()
	ctx := webhookContext(rec)

	RateLimitWebhook(limiter, limitConfig(100, 10))(ctx)

	if ctx.IsAborted() {
		t.Fatal("expected request to pass through when rate limit allows")
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "9" {
		t.Fatalf("expected remaining header 9, got %q", got)
	}
	if limiter.subject != "203.0.113.7" {
		t.Fatalf("expected client ip subject, got %q", limiter.subject)
	}
}

func TestRateLimitWebhook_DeniedDecision(t *testing.T) {
	limiter := &mockLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 5 * time.Second}}
	rec := httptest.NewRecorder()
	ctx := webhookContext(rec)

	RateLimitWebhook(limiter, limitConfig(100, 10))(ctx)

	if !ctx.IsAborted() {
		t.Fatal("expected request to be aborted when rate limited")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 status, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "5" {
		t.Fatalf("expected Retry-After: 5, got %s", got)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal JSON response: %v", err)
	}
	if body["scope"] != "webhook" || body["operation"] != "job_completed" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["retryAfterSeconds"] != float64(5) {
		t.Fatalf("expected retryAfterSeconds=5, got %v", body["retryAfterSeconds"])
	}
}

func TestRateLimitWebhook_LimiterErrorFailsOpen(t *testing.T) {
	limiter := &mockLimiter{err: errors.New("redis down")}
	rec := httptest.NewRecorder()
	ctx := webhookContext(rec)

	RateLimitWebhook(limiter, limitConfig(100, 10))(ctx)

	if ctx.IsAborted() {
		t.Fatal("expected fail open on limiter error")
	}
}

func TestRateLimitWebhook_NilLimiter(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx := webhookContext(rec)

	RateLimitWebhook(nil, limitConfig(100, 10))(ctx)

	if ctx.IsAborted() {
		t.Fatal("expected pass through with nil limiter")
	}
}

func TestRateLimitAdmin_NoAuthHeader(t *testing.T) {
	limiter := &mockLimiter{decision: ratelimit.Decision{Allowed: false}}
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/v1/registry/requests/1/failure", nil)

	RateLimitAdmin(limiter, limitConfig(100, 10))(ctx)

	if ctx.IsAborted() || limiter.calls != 0 {
		t.Fatal("unauthenticated requests are left to auth")
	}
}

func TestRateLimitAdmin_DeniedWithRetryAfterLessThanOne(t *testing.T) {
	limiter := &mockLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 100 * time.Millisecond}}
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/v1/registry/requests/1/failure", nil)
	ctx.Request.Header.Set("Authorization", "Bearer op-token")

	RateLimitAdmin(limiter, limitConfig(100, 10))(ctx)

	if limiter.subject != "op-token" {
		t.Fatalf("expected token subject, got %q", limiter.subject)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After: 1 (minimum), got %s", got)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "valid bearer token", header: "Bearer abc123", want: "abc123"},
		{name: "valid with extra spaces", header: "  Bearer   def456  ", want: "def456"},
		{name: "case insensitive bearer", header: "bearer xyz789", want: "xyz789"},
		{name: "empty header", header: "", want: ""},
		{name: "missing token", header: "Bearer", want: ""},
		{name: "wrong scheme", header: "Basic abc123", want: ""},
		{name: "no scheme", header: "justtoken", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bearerToken(tt.header)
			if got != tt.want {
				t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
