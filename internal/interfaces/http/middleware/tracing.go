package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/logger"
)

// Tracing opens a server span per request on tp.
func Tracing(serviceName string, tp trace.TracerProvider) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, otelgin.WithTracerProvider(tp))
}

// SpanAttributes tags the span opened by Tracing with the request id, the session user
// and an error status for 5xx responses. It must be registered after Tracing.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if id := GetRequestID(c); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}

		c.Next()

		if u := logger.Username(c.Request.Context()); u != "" {
			span.SetAttributes(attribute.String("username", u))
		}
		if status := c.Writer.Status(); status >= 500 {
			span.SetStatus(codes.Error, c.Errors.String())
		}
	}
}
