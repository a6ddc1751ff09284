package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/autoscaler-scheduler/internal/application"
	"github.com/example/autoscaler-scheduler/internal/messages"
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}
	if payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeMessages renders validation failures: a JSON array of strings.
func (r responder) writeMessages(ctx context.Context, w http.ResponseWriter, status int, msgs []string) {
	if msgs == nil {
		msgs = []string{}
	}
	r.writeJSON(ctx, w, status, msgs)
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps service errors onto statuses: validation 400,
// not found 404, everything else 500. Validation messages are rendered in
// the request language.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, l messages.Lookup, err error) {
	var vErr *application.ValidationError
	switch {
	case errors.As(err, &vErr):
		r.writeMessages(ctx, w, http.StatusBadRequest, messages.Render(l, vErr.Violations))
	case errors.Is(err, application.ErrNotFound):
		appID, _ := AppIDFromContext(ctx)
		r.writeError(ctx, w, http.StatusNotFound, l.Lookup(messages.KeyPolicyNotFound, appID))
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "request failed",
			"status", http.StatusInternalServerError,
			"error", err,
			"error_kind", application.ErrorKind(err),
		)
		r.writeError(ctx, w, http.StatusInternalServerError, l.Lookup(messages.KeyInternalError))
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	Message string `json:"message"`
}
