package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"revenda/internal/core"
	"revenda/internal/saas"
	"revenda/internal/types"
)

// maxWebhookBodySize caps the Stripe payload read. Stripe events are
// small; anything larger is not a legitimate event.
const maxWebhookBodySize = 1 << 20

// WebhookProcessor applies a verified Stripe event to local state.
type WebhookProcessor interface {
	Process(ctx context.Context, event *saas.WebhookEvent) error
}

// StripeWebhookHandler receives Stripe billing events. The route is
// mounted outside the authenticated /v1 group; the Stripe-Signature
// header is the sole authentication.
//
// Once the signature verifies, the handler always answers 200. A
// processing failure is logged and retried via Stripe's own redelivery;
// answering 4xx/5xx would only make Stripe disable the endpoint after
// enough failures.
type StripeWebhookHandler struct {
	verifier  saas.WebhookVerifier
	processor WebhookProcessor
	secret    types.SecretString
	logger    *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(verifier saas.WebhookVerifier, processor WebhookProcessor, secret types.SecretString, logger *slog.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:  verifier,
		processor: processor,
		secret:    secret,
		logger:    logger,
	}
}

// RegisterRoutes mounts the webhook endpoint at the router root.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes POST /webhooks/stripe.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "failed to read webhook payload", err))
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if err := h.verifier.Verify(payload, sig, h.secret.Unmask()); err != nil {
		h.logger.WarnContext(r.Context(), "stripe webhook signature rejected", slog.Any("error", err))
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid webhook signature", err))
		return
	}

	event, err := saas.ParseWebhookEvent(payload)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stripe webhook payload unparseable", slog.Any("error", err))
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"received": true}})
		return
	}

	if err := h.processor.Process(r.Context(), event); err != nil {
		h.logger.ErrorContext(r.Context(), "stripe webhook processing failed",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type),
			slog.Any("error", err),
		)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"received": true}})
}
