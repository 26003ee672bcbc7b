// Package logging builds the application's structured zap logger and the
// field conventions shared across subsystems.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StandardLogger wraps the root zap logger with the field helpers the rest
// of the service logs through.
type StandardLogger struct {
	logger *zap.Logger
}

// NewStandardLogger builds the root logger. Environment "production"
// selects the JSON production config; anything else gets the development
// console encoder. Unknown levels fall back to info.
func NewStandardLogger(level, environment string) *StandardLogger {
	var config zap.Config
	if environment == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(getZapLevel(level))

	logger, err := config.Build()
	if err != nil {
		// Building only fails on bad output paths; keep the process alive.
		logger = zap.NewNop()
	}
	return &StandardLogger{logger: logger}
}

// getZapLevel maps a level string to a zap level, defaulting to info.
func getZapLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger returns the underlying zap logger for subsystems that take one
// directly.
func (s *StandardLogger) Logger() *zap.Logger {
	return s.logger
}

// Sync flushes buffered entries. Call on shutdown.
func (s *StandardLogger) Sync() {
	_ = s.logger.Sync()
}

// WithService returns a logger tagged with the service name.
func (s *StandardLogger) WithService(service string) *zap.Logger {
	return s.logger.With(zap.String("service", service))
}

// WithComponent returns a logger tagged with a subsystem name.
func (s *StandardLogger) WithComponent(component string) *zap.Logger {
	return s.logger.With(zap.String("component", component))
}

// WithOperation returns a logger tagged with the operation in flight.
func (s *StandardLogger) WithOperation(operation string) *zap.Logger {
	return s.logger.With(zap.String("operation", operation))
}

// WithRequestID returns a logger carrying the request correlation id.
func (s *StandardLogger) WithRequestID(requestID string) *zap.Logger {
	return s.logger.With(zap.String("request_id", requestID))
}

// WithUserID returns a logger tagged with the caller's user id.
func (s *StandardLogger) WithUserID(userID string) *zap.Logger {
	return s.logger.With(zap.String("user_id", userID))
}

// WithModel returns a logger tagged with a catalog model key.
func (s *StandardLogger) WithModel(model string) *zap.Logger {
	return s.logger.With(zap.String("model", model))
}

// WithProvider returns a logger tagged with a backend provider.
func (s *StandardLogger) WithProvider(provider string) *zap.Logger {
	return s.logger.With(zap.String("provider", provider))
}

// WithError returns a logger carrying the error under the standard key.
func (s *StandardLogger) WithError(err error) *zap.Logger {
	return s.logger.With(zap.Error(err))
}

// WithFields returns a logger carrying arbitrary fields.
func (s *StandardLogger) WithFields(fields map[string]interface{}) *zap.Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return s.logger.With(zapFields...)
}

// LogStartup emits the standard startup event.
func (s *StandardLogger) LogStartup(service, version string, port int) {
	s.logger.Info("Service starting",
		zap.String("event", "startup"),
		zap.String("service", service),
		zap.String("version", version),
		zap.Int("port", port),
	)
}

// LogShutdown emits the standard shutdown event.
func (s *StandardLogger) LogShutdown(service, reason string) {
	s.logger.Info("Service stopping",
		zap.String("event", "shutdown"),
		zap.String("service", service),
		zap.String("reason", reason),
	)
}

// LogAPIRequest emits one access-log line for a handled request.
func (s *StandardLogger) LogAPIRequest(method, path string, statusCode int, durationMs int64, requestID string) {
	s.logger.Info("API request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", statusCode),
		zap.Int64("duration_ms", durationMs),
		zap.String("request_id", requestID),
	)
}

// LogRoutingOutcome emits the standard per-route accounting line.
func (s *StandardLogger) LogRoutingOutcome(model, category string, costUsd, latencyMs float64) {
	s.logger.Info("Routing outcome",
		zap.String("event", "routing_outcome"),
		zap.String("model", model),
		zap.String("category", category),
		zap.Float64("cost_usd", costUsd),
		zap.Float64("latency_ms", latencyMs),
	)
}
