// Package observability wires the Sentry SDK into the service lifecycle.
// Initialisation is optional; without a DSN every call here is a no-op so
// the router runs identically in development and production.
package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/irfndi/modelmux/internal/config"
)

// flushBudget bounds how long shutdown waits for buffered events.
const flushBudget = 2 * time.Second

// InitSentry initialises the global Sentry client. It returns nil without
// doing anything when no DSN is configured.
func InitSentry(cfg config.SentryConfig, version, environment string) error {
	if !cfg.Enabled() {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      environment,
		Release:          version,
		TracesSampleRate: cfg.TracesSampleRate,
		EnableTracing:    cfg.TracesSampleRate > 0,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return nil
}

// Flush drains buffered events before the process exits. Safe to call even
// when InitSentry was never run.
func Flush(ctx context.Context) {
	deadline := flushBudget
	if d, ok := ctx.Deadline(); ok {
		if remaining := time.Until(d); remaining < deadline {
			deadline = remaining
		}
	}
	sentry.Flush(deadline)
}

// CaptureError reports an error with optional key/value tags. Callers use
// this for failures that should page but must not fail the request.
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}
