package http

import (
	"context"
	"log/slog"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// handlerLogger prefers the request-scoped logger and tags it with the
// handler, the operation and the routed application id.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string) *slog.Logger {
	logger := LoggerFromContext(ctx)
	if logger == nil {
		logger = defaultLogger(fallback)
	}
	pairs := []any{"handler", handlerName, "operation", operation}
	if appID, ok := AppIDFromContext(ctx); ok {
		pairs = append(pairs, "app_id", appID)
	}
	return logger.With(pairs...)
}
