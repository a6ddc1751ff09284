package http

import (
	"context"
	"log/slog"

	"github.com/example/autoscaler-scheduler/internal/logging"
)

type contextKey string

const appIDContextKey contextKey = "app_id"

// ContextWithAppID injects the application identifier resolved from the request path.
func ContextWithAppID(ctx context.Context, appID string) context.Context {
	return context.WithValue(ctx, appIDContextKey, appID)
}

// AppIDFromContext extracts an application identifier previously associated with the context.
func AppIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(appIDContextKey).(string)
	return id, ok
}

// ContextWithLogger attaches the request-scoped logger. Services read it back
// through the logging package.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request-scoped logger, if any.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
