// Package middleware provides HTTP middleware components for modelmux.
package middleware

import (
	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request correlation id.
const RequestIDHeader = "X-Request-ID"

// TelemetryMiddleware creates Gin middleware for Sentry tracing.
// Initializes a Sentry hub per request to enable error tracking.
func TelemetryMiddleware() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{
		Repanic: true,
	})
}

// HealthCheckTelemetryMiddleware tags health probe transactions so they
// can be filtered from regular traffic in monitoring.
func HealthCheckTelemetryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.Scope().SetTag("transaction_type", "health_check")
		}
		c.Next()
	}
}

// RequestIDMiddleware assigns each request a correlation id, honoring one
// the caller already sent, and echoes it on the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.Scope().SetTag("request_id", requestID)
		}
		c.Next()
	}
}

// RecordError reports an error on the current Sentry hub and marks the
// active transaction failed.
func RecordError(c *gin.Context, err error) {
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		hub.CaptureException(err)
		if span := sentry.TransactionFromContext(c.Request.Context()); span != nil {
			span.Status = sentry.SpanStatusInternalError
		}
	}
}
