package middleware

import (
	"fmt"
	"net/http"

	"github.com/NEAR-Edu/contract-registry/internal/tracing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// TracingMiddleware continues an incoming W3C trace, or starts one, around the
// handler chain. Spans are renamed to the matched route once it is known and
// carry the request id for matching against access logs.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracing.Start(ctx, "http", c.Request.Method,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.path", c.Request.URL.Path),
			attribute.String("http.request_id", c.GetString("request_id")),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		if route := c.FullPath(); route != "" {
			span.SetName(c.Request.Method + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
		}
		span.SetAttributes(attribute.Int("http.status_code", status))

		var err error
		if status >= http.StatusInternalServerError {
			err = fmt.Errorf("%d %s", status, http.StatusText(status))
		}
		tracing.End(span, err)
	}
}
