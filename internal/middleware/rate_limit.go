package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/NEAR-Edu/contract-registry/internal/metrics"
	"github.com/NEAR-Edu/contract-registry/internal/ratelimit"
	"github.com/NEAR-Edu/contract-registry/pkg/config"

	"github.com/gin-gonic/gin"
)

// RateLimitWebhook limits webhook deliveries per client address. It runs before
// the body is read so a flood costs no signature checks.
func RateLimitWebhook(lim ratelimit.Limiter, cfg *config.Config) gin.HandlerFunc {
	return rateLimit(lim, ratelimit.ScopeWebhook, "job_completed", cfg.RateLimit.Webhook, func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// RateLimitAdmin limits operator calls per bearer token.
func RateLimitAdmin(lim ratelimit.Limiter, cfg *config.Config) gin.HandlerFunc {
	return rateLimit(lim, ratelimit.ScopeAdmin, "operator", cfg.RateLimit.Admin, func(c *gin.Context) string {
		return bearerToken(c.GetHeader("Authorization"))
	})
}

func rateLimit(lim ratelimit.Limiter, scope, operation string, bcfg config.RateLimitBucketConfig, subject func(*gin.Context) string) gin.HandlerFunc {
	bucket := ratelimit.Bucket{RequestsPerMinute: bcfg.RequestsPerMinute, BurstSize: bcfg.BurstSize}
	return func(c *gin.Context) {
		if lim == nil || !bucket.Enabled() {
			c.Next()
			return
		}

		sub := subject(c)
		if sub == "" {
			// rejected later by auth
			c.Next()
			return
		}

		dec, err := lim.Allow(c.Request.Context(), scope, sub, bucket)
		if err != nil {
			Logger(c).Warn("rate limit check failed", "scope", scope, "op", operation, "err", err)
			c.Next()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
		if dec.Allowed {
			c.Next()
			return
		}

		retryAfterSeconds := int(dec.RetryAfter.Seconds())
		if retryAfterSeconds <= 0 {
			retryAfterSeconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		metrics.RateLimitHitsTotal.WithLabelValues(scope, operation).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":             "rate limit exceeded",
			"scope":             scope,
			"operation":         operation,
			"retryAfterSeconds": retryAfterSeconds,
		})
	}
}

func bearerToken(authHeader string) string {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
