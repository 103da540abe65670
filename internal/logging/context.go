package logging

import (
	"context"
	"log/slog"
)

// Shared structured logging field names.
const (
	FieldComponent   = "component"
	FieldUserID      = "user_id"
	FieldCaseID      = "case_id"
	FieldSessionID   = "session_id"
	FieldScope       = "scope"
	FieldCorrelation = "correlation_id"
	FieldError       = "error"
)

type contextKey string

const loggerKey contextKey = "caseflow.logger"

// WithContext stores a logger on the context.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger carried by ctx, or a no-op logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return NewNop()
}

// WithCorrelation attaches a correlation identifier to every record the
// returned logger emits.
func WithCorrelation(logger *slog.Logger, correlationID string) *slog.Logger {
	if logger == nil || correlationID == "" {
		return logger
	}
	return logger.With(slog.String(FieldCorrelation, correlationID))
}
