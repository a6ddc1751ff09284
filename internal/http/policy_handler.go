package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/autoscaler-scheduler/internal/application"
	"github.com/example/autoscaler-scheduler/internal/messages"
	"github.com/example/autoscaler-scheduler/internal/schedule"
)

const maxPolicyBytes = 1 << 20

type policyService interface {
	Apply(ctx context.Context, p schedule.Policy) (application.ApplyResult, error)
	Delete(ctx context.Context, appID string) error
	Get(ctx context.Context, appID string) (application.PolicyView, error)
}

// PolicyHandler serves /v2/schedules/{appId}.
type PolicyHandler struct {
	service   policyService
	catalog   *messages.Catalog
	responder responder
	logger    *slog.Logger
}

func NewPolicyHandler(service policyService, catalog *messages.Catalog, logger *slog.Logger) *PolicyHandler {
	logger = defaultLogger(logger)
	return &PolicyHandler{service: service, catalog: catalog, responder: newResponder(logger), logger: logger}
}

func (h *PolicyHandler) localizer(r *http.Request) messages.Lookup {
	return h.catalog.For(r.Header.Get("Accept-Language"))
}

// Put replaces the policy of the routed application. The body is decoded
// leniently: unknown fields are ignored, but anything that is not a JSON
// object of the expected shape is rejected as a whole.
func (h *PolicyHandler) Put(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	l := h.localizer(r)

	appID, ok := AppIDFromContext(ctx)
	if !ok || strings.TrimSpace(appID) == "" {
		http.NotFound(w, r)
		return
	}

	policy, err := DecodePolicy(r.Body, appID)
	if err != nil {
		handlerLogger(ctx, h.logger, "PolicyHandler", "Put").WarnContext(ctx, "malformed policy body", "error", err)
		h.responder.writeMessages(ctx, w, http.StatusBadRequest, []string{l.Lookup(messages.KeyInvalidJSON)})
		return
	}

	if _, err := h.service.Apply(ctx, policy); err != nil {
		h.responder.handleServiceError(ctx, w, l, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, nil)
}

// Delete removes the policy and every trigger of the routed application.
func (h *PolicyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	appID, ok := AppIDFromContext(ctx)
	if !ok || strings.TrimSpace(appID) == "" {
		http.NotFound(w, r)
		return
	}
	if err := h.service.Delete(ctx, appID); err != nil {
		h.responder.handleServiceError(ctx, w, h.localizer(r), err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, nil)
}

// Get renders the stored policy with its triggers and active schedule.
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	appID, ok := AppIDFromContext(ctx)
	if !ok || strings.TrimSpace(appID) == "" {
		http.NotFound(w, r)
		return
	}
	view, err := h.service.Get(ctx, appID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, h.localizer(r), err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, newPolicyResponse(view))
}
