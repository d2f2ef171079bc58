package middleware

import (
	"errors"
	"io"
	"net/http"

	"github.com/NEAR-Edu/contract-registry/internal/circleci"
	"github.com/NEAR-Edu/contract-registry/internal/metrics"

	"github.com/gin-gonic/gin"
)

const rawBodyKey = "raw_body"

// WebhookSignature reads at most maxBytes of the body and rejects the request
// unless the circleci-signature header authenticates exactly those bytes. The
// verified bytes are kept for RawBody; the body is never re-encoded.
func WebhookSignature(secret []byte, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBytes+1))
		if err != nil {
			metrics.WebhooksTotal.WithLabelValues("bad_body").Inc()
			reject(c, http.StatusBadRequest, "unable to read body")
			return
		}
		if int64(len(body)) > maxBytes {
			metrics.WebhooksTotal.WithLabelValues("too_large").Inc()
			reject(c, http.StatusRequestEntityTooLarge, "body exceeds limit")
			return
		}

		ok, err := circleci.Verify(secret, c.GetHeader(circleci.SignatureHeader), body)
		switch {
		case errors.Is(err, circleci.ErrIncompatibleSignatureVersion):
			metrics.WebhooksTotal.WithLabelValues("incompatible_signature").Inc()
			Logger(c).Warn("webhook rejected", "reason", err.Error())
			reject(c, http.StatusUnauthorized, err.Error())
			return
		case err != nil || !ok:
			metrics.WebhooksTotal.WithLabelValues("invalid_signature").Inc()
			Logger(c).Warn("webhook rejected", "reason", "invalid signature")
			reject(c, http.StatusUnauthorized, "invalid signature")
			return
		}

		c.Set(rawBodyKey, body)
		c.Next()
	}
}

// RawBody returns the verified request body.
func RawBody(c *gin.Context) []byte {
	v, _ := c.Get(rawBodyKey)
	b, _ := v.([]byte)
	return b
}

func reject(c *gin.Context, status int, msg string) {
	c.Abort()
	c.String(status, msg)
}
