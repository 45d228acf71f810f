package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"revenda/internal/core"
	"revenda/internal/saas"
	"revenda/internal/types"
)

// BillingService is the payment provider subset used by the billing
// endpoints. Implemented by saas.StripeClient.
type BillingService interface {
	CreateCheckoutSession(ctx context.Context, customerID, orgID string, plan types.PlanTier, successURL, cancelURL string) (checkoutURL string, sessionID string, err error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	GetSubscription(ctx context.Context, customerID string) (*types.SubscriptionDetails, error)
}

// BillingOrgRepo loads the tenant and its payment customer reference.
type BillingOrgRepo interface {
	GetByID(ctx context.Context, orgID string) (*types.Organization, error)
}

// CheckoutRequest is the request body for POST /v1/billing/checkout.
type CheckoutRequest struct {
	Plan       string `json:"plan" validate:"required,oneof=starter pro business"`
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

// PortalRequest is the request body for POST /v1/billing/portal.
type PortalRequest struct {
	ReturnURL string `json:"return_url" validate:"required,url"`
}

// CheckoutResponse returns the hosted checkout session to redirect to.
type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// PortalResponse returns the hosted billing portal URL.
type PortalResponse struct {
	PortalURL string `json:"portal_url"`
}

// SubscriptionResponse combines the local tenant state with the payment
// provider's view of the subscription.
type SubscriptionResponse struct {
	Plan       types.PlanTier             `json:"plan"`
	Status     types.SubscriptionStatus   `json:"status"`
	PlanLimits types.PlanLimits           `json:"plan_limits"`
	Provider   *types.SubscriptionDetails `json:"provider,omitempty"`
}

// BillingHandler exposes the tenant's SaaS subscription management.
type BillingHandler struct {
	billing   BillingService
	orgs      BillingOrgRepo
	validator *core.Validator
	logger    *slog.Logger
}

// NewBillingHandler creates a BillingHandler with the provided dependencies.
func NewBillingHandler(billing BillingService, orgs BillingOrgRepo, validator *core.Validator, logger *slog.Logger) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{billing: billing, orgs: orgs, validator: validator, logger: logger}
}

// RegisterRoutes mounts the billing endpoints.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Get("/subscription", h.GetSubscription)
		r.Post("/checkout", h.CreateCheckout)
		r.Post("/portal", h.CreatePortal)
	})
}

// GetSubscription handles GET /v1/billing/subscription. Tenants that
// never checked out have no payment customer; they see the free tier
// from local state alone.
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	org, err := h.orgs.GetByID(r.Context(), types.GetOrganizationID(r.Context()))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := SubscriptionResponse{
		Plan:       org.Plan,
		Status:     org.SubscriptionStatus,
		PlanLimits: saas.LimitsFor(org.Plan),
	}

	if org.StripeCustomerID != "" {
		details, err := h.billing.GetSubscription(r.Context(), org.StripeCustomerID)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		resp.Provider = details
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// CreateCheckout handles POST /v1/billing/checkout.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	orgID := types.GetOrganizationID(r.Context())
	org, err := h.orgs.GetByID(r.Context(), orgID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	checkoutURL, sessionID, err := h.billing.CreateCheckoutSession(
		r.Context(), org.StripeCustomerID, org.ID,
		types.PlanTier(req.Plan), req.SuccessURL, req.CancelURL,
	)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "checkout session created",
		slog.String("organization_id", orgID),
		slog.String("plan", req.Plan),
		slog.String("session_id", sessionID),
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: CheckoutResponse{
		CheckoutURL: checkoutURL,
		SessionID:   sessionID,
	}})
}

// CreatePortal handles POST /v1/billing/portal.
func (h *BillingHandler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	var req PortalRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	org, err := h.orgs.GetByID(r.Context(), types.GetOrganizationID(r.Context()))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if org.StripeCustomerID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "organization has no billing account yet", nil))
		return
	}

	portalURL, err := h.billing.CreatePortalSession(r.Context(), org.StripeCustomerID, req.ReturnURL)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: PortalResponse{PortalURL: portalURL}})
}
