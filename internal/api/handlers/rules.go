package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"revenda/internal/billingrules"
	"revenda/internal/core"
	"revenda/internal/types"
)

// --- Service Interfaces ---

// RuleRepo defines the data access contract for billing rule operations.
type RuleRepo interface {
	GetByID(ctx context.Context, orgID, ruleID string) (*types.BillingRule, error)
	ListAll(ctx context.Context, orgID string) ([]types.BillingRule, error)
	Create(ctx context.Context, rule *types.BillingRule) error
	Update(ctx context.Context, rule *types.BillingRule) error
	Delete(ctx context.Context, orgID, ruleID string) error
}

// RuleTemplateRepo verifies that the referenced message template exists.
type RuleTemplateRepo interface {
	GetByID(ctx context.Context, orgID, templateID string) (*types.MessageTemplate, error)
}

// RuleOrgRepo loads the tenant for plan limit checks.
type RuleOrgRepo interface {
	GetByID(ctx context.Context, orgID string) (*types.Organization, error)
}

// RuleQuotaGate enforces the tenant's automatic rule limit on create.
type RuleQuotaGate interface {
	CheckRuleCreate(ctx context.Context, org *types.Organization, rule *types.BillingRule) error
}

// --- Request/Response Models ---

// RuleRequest is the request body for POST /v1/rules and PUT
// /v1/rules/{id}. Rules are replaced whole; the panel's rule form always
// submits the full configuration.
type RuleRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	ClientStatus string `json:"client_status" validate:"required,oneof=TODOS ATIVO VENCE_HOJE VENCIDO"`
	Type         string `json:"type" validate:"required,oneof=manual automatic"`

	PlanIDs          []string `json:"plan_ids,omitempty"`
	ServerIDs        []string `json:"server_ids,omitempty"`
	ApplicationIDs   []string `json:"application_ids,omitempty"`
	DeviceIDs        []string `json:"device_ids,omitempty"`
	LeadSourceIDs    []string `json:"lead_source_ids,omitempty"`
	PaymentMethodIDs []string `json:"payment_method_ids,omitempty"`

	MessageTemplateID string `json:"message_template_id" validate:"required"`

	AutomaticType string `json:"automatic_type,omitempty" validate:"omitempty,oneof=days_before_expiration monthly_day_range"`
	Days          *int   `json:"days,omitempty"`
	StartDay      *int   `json:"start_day,omitempty"`
	EndDay        *int   `json:"end_day,omitempty"`

	Enabled bool `json:"enabled"`
}

// --- Handler ---

// RuleHandler manages billing rule configuration. Structural validation
// happens via tags; the coupling rules (automatic fields, VENCE_HOJE
// normalization, day ranges) are delegated to the billingrules package so
// the API rejects exactly what the runner would refuse to evaluate.
type RuleHandler struct {
	repo      RuleRepo
	templates RuleTemplateRepo
	orgs      RuleOrgRepo
	gate      RuleQuotaGate
	validator *core.Validator
	logger    *slog.Logger
}

// NewRuleHandler creates a RuleHandler with the provided dependencies.
func NewRuleHandler(repo RuleRepo, templates RuleTemplateRepo, orgs RuleOrgRepo, gate RuleQuotaGate, validator *core.Validator, logger *slog.Logger) *RuleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleHandler{
		repo:      repo,
		templates: templates,
		orgs:      orgs,
		gate:      gate,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the rule endpoints.
func (h *RuleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/rules", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Route("/{ruleID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
		})
	})
}

// List handles GET /v1/rules. The rule catalog is small (plan-capped);
// no pagination.
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := types.GetOrganizationID(r.Context())

	rules, err := h.repo.ListAll(r.Context(), orgID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if rules == nil {
		rules = []types.BillingRule{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: rules})
}

// Get handles GET /v1/rules/{id}.
func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := types.GetOrganizationID(r.Context())

	rule, err := h.repo.GetByID(r.Context(), orgID, chi.URLParam(r, "ruleID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: rule})
}

// Create handles POST /v1/rules.
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := types.GetOrganizationID(r.Context())

	rule, err := h.decodeRule(w, r, orgID, "rule_"+uuid.New().String())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	org, err := h.orgs.GetByID(r.Context(), orgID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.gate.CheckRuleCreate(r.Context(), org, rule); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.repo.Create(r.Context(), rule); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "billing rule created",
		slog.String("organization_id", orgID),
		slog.String("rule_id", rule.ID),
		slog.String("type", string(rule.Type)),
	)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: rule})
}

// Update handles PUT /v1/rules/{id}. The rule is replaced whole and
// revalidated; a rule can never be updated into a shape the runner would
// flag as misconfigured.
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := types.GetOrganizationID(r.Context())
	ruleID := chi.URLParam(r, "ruleID")

	existing, err := h.repo.GetByID(r.Context(), orgID, ruleID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	rule, err := h.decodeRule(w, r, orgID, ruleID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	rule.CreatedAt = existing.CreatedAt

	if err := h.repo.Update(r.Context(), rule); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: rule})
}

// Delete handles DELETE /v1/rules/{id}.
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := types.GetOrganizationID(r.Context())

	if err := h.repo.Delete(r.Context(), orgID, chi.URLParam(r, "ruleID")); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "billing rule deleted",
		slog.String("organization_id", orgID),
		slog.String("rule_id", chi.URLParam(r, "ruleID")),
	)
	w.WriteHeader(http.StatusNoContent)
}

// decodeRule decodes, validates, and normalizes a rule payload into a
// domain rule. The referenced template must exist in the tenant.
func (h *RuleHandler) decodeRule(w http.ResponseWriter, r *http.Request, orgID, ruleID string) (*types.BillingRule, error) {
	var req RuleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	if _, err := h.templates.GetByID(r.Context(), orgID, req.MessageTemplateID); err != nil {
		return nil, err
	}

	rule := &types.BillingRule{
		ID:             ruleID,
		OrganizationID: orgID,
		Name:           req.Name,
		ClientStatus:   types.RuleClientStatus(req.ClientStatus),
		Type:           types.RuleType(req.Type),

		PlanIDs:          req.PlanIDs,
		ServerIDs:        req.ServerIDs,
		ApplicationIDs:   req.ApplicationIDs,
		DeviceIDs:        req.DeviceIDs,
		LeadSourceIDs:    req.LeadSourceIDs,
		PaymentMethodIDs: req.PaymentMethodIDs,

		MessageTemplateID: req.MessageTemplateID,

		AutomaticType: types.AutomaticType(req.AutomaticType),
		Days:          req.Days,
		StartDay:      req.StartDay,
		EndDay:        req.EndDay,

		Enabled: req.Enabled,
	}

	billingrules.NormalizeVenceHoje(rule)
	if err := billingrules.ValidateRule(rule); err != nil {
		return nil, err
	}
	return rule, nil
}
