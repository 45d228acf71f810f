package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"revenda/internal/core"
	"revenda/internal/messaging"
	"revenda/internal/types"
)

// TemplateRepo defines the data access contract for message templates.
type TemplateRepo interface {
	GetByID(ctx context.Context, orgID, templateID string) (*types.MessageTemplate, error)
	List(ctx context.Context, orgID string) ([]types.MessageTemplate, error)
	Create(ctx context.Context, t *types.MessageTemplate) error
	Update(ctx context.Context, t *types.MessageTemplate) error
	Delete(ctx context.Context, orgID, templateID string) error
}

// TemplateRequest is the request body for template create and update.
type TemplateRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Body string `json:"body" validate:"required,max=4096"`
}

// TemplateHandler manages message templates. Placeholder validation runs
// at write time so a typo like {{clienteName}} never reaches a dispatch.
type TemplateHandler struct {
	repo      TemplateRepo
	validator *core.Validator
	logger    *slog.Logger
}

// NewTemplateHandler creates a TemplateHandler with the provided dependencies.
func NewTemplateHandler(repo TemplateRepo, validator *core.Validator, logger *slog.Logger) *TemplateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplateHandler{repo: repo, validator: validator, logger: logger}
}

// RegisterRoutes mounts the template endpoints.
func (h *TemplateHandler) RegisterRoutes(r chi.Router) {
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Route("/{templateID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
		})
	})
}

// List handles GET /v1/templates.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := types.GetOrganizationID(r.Context())

	templates, err := h.repo.List(r.Context(), orgID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if templates == nil {
		templates = []types.MessageTemplate{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: templates})
}

// Get handles GET /v1/templates/{id}.
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := types.GetOrganizationID(r.Context())

	tpl, err := h.repo.GetByID(r.Context(), orgID, chi.URLParam(r, "templateID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: tpl})
}

// Create handles POST /v1/templates.
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeTemplate(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	orgID := types.GetOrganizationID(r.Context())
	tpl := &types.MessageTemplate{
		ID:             "tpl_" + uuid.New().String(),
		OrganizationID: orgID,
		Name:           req.Name,
		Body:           req.Body,
	}

	if err := h.repo.Create(r.Context(), tpl); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "message template created",
		slog.String("organization_id", orgID),
		slog.String("template_id", tpl.ID),
	)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: tpl})
}

// Update handles PUT /v1/templates/{id}.
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeTemplate(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	orgID := types.GetOrganizationID(r.Context())
	tpl, err := h.repo.GetByID(r.Context(), orgID, chi.URLParam(r, "templateID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	tpl.Name = req.Name
	tpl.Body = req.Body

	if err := h.repo.Update(r.Context(), tpl); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: tpl})
}

// Delete handles DELETE /v1/templates/{id}.
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := types.GetOrganizationID(r.Context())

	if err := h.repo.Delete(r.Context(), orgID, chi.URLParam(r, "templateID")); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeTemplate decodes and validates a template payload, including the
// placeholder check against the renderer's variable set.
func (h *TemplateHandler) decodeTemplate(w http.ResponseWriter, r *http.Request) (*TemplateRequest, error) {
	var req TemplateRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := messaging.ValidateTemplateBody(req.Body); err != nil {
		return nil, err
	}
	return &req, nil
}
