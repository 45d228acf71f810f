// Package handlers contains the HTTP handler implementations for the
// panel API. Each file covers one resource: handlers declare the narrow
// repository interfaces they need, decode and validate their payloads,
// and delegate domain decisions to the billingrules and saas packages.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"revenda/internal/core"
	"revenda/internal/types"
)

// --- Service Interfaces ---

// ClientRepo defines the data access contract for client operations.
// Mirrors the concrete db.ClientRepo methods used by this handler.
type ClientRepo interface {
	GetByID(ctx context.Context, orgID, clientID string) (*types.Client, error)
	List(ctx context.Context, orgID string, page types.PageInfo) ([]types.Client, int, error)
	Create(ctx context.Context, c *types.Client) error
	Update(ctx context.Context, c *types.Client) error
	Delete(ctx context.Context, orgID, clientID string) error
}

// ClientOrgRepo loads the tenant for plan limit checks.
type ClientOrgRepo interface {
	GetByID(ctx context.Context, orgID string) (*types.Organization, error)
}

// ClientQuotaGate enforces the tenant's client count limit on create.
type ClientQuotaGate interface {
	CheckClientCreate(ctx context.Context, org *types.Organization) error
}

// --- Request/Response Models ---

// CreateClientRequest is the request body for POST /v1/clients.
// ExpiresAt uses the panel's date-only format; time-of-day is never
// meaningful for expiration.
type CreateClientRequest struct {
	Name      string  `json:"name" validate:"required,max=200"`
	Phone     string  `json:"phone" validate:"omitempty,e164"`
	Status    string  `json:"status" validate:"required,oneof=active inactive"`
	ExpiresAt *string `json:"expires_at,omitempty" validate:"omitempty,datetime=2006-01-02"`

	PlanID          *string `json:"plan_id,omitempty"`
	ServerID        *string `json:"server_id,omitempty"`
	DeviceID        *string `json:"device_id,omitempty"`
	ApplicationID   *string `json:"application_id,omitempty"`
	PaymentMethodID *string `json:"payment_method_id,omitempty"`
	LeadSourceID    *string `json:"lead_source_id,omitempty"`
}

// UpdateClientRequest is the request body for PATCH /v1/clients/{id}.
// Absent fields keep their current value; catalog references can be
// cleared by sending an empty string.
type UpdateClientRequest struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,e164"`
	Status    *string `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
	ExpiresAt *string `json:"expires_at,omitempty" validate:"omitempty,datetime=2006-01-02"`

	PlanID          *string `json:"plan_id,omitempty"`
	ServerID        *string `json:"server_id,omitempty"`
	DeviceID        *string `json:"device_id,omitempty"`
	ApplicationID   *string `json:"application_id,omitempty"`
	PaymentMethodID *string `json:"payment_method_id,omitempty"`
	LeadSourceID    *string `json:"lead_source_id,omitempty"`
}

// --- Handler ---

// ClientHandler manages the tenant's client base.
type ClientHandler struct {
	repo      ClientRepo
	orgs      ClientOrgRepo
	gate      ClientQuotaGate
	validator *core.Validator
	logger    *slog.Logger
}

// NewClientHandler creates a ClientHandler with the provided dependencies.
func NewClientHandler(repo ClientRepo, orgs ClientOrgRepo, gate ClientQuotaGate, validator *core.Validator, logger *slog.Logger) *ClientHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientHandler{
		repo:      repo,
		orgs:      orgs,
		gate:      gate,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the client endpoints.
func (h *ClientHandler) RegisterRoutes(r chi.Router) {
	r.Route("/clients", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Route("/{clientID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
		})
	})
}

// List handles GET /v1/clients with page/per_page query parameters.
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := types.GetOrganizationID(r.Context())
	page := pageFromQuery(r)

	clients, total, err := h.repo.List(r.Context(), orgID, page)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if clients == nil {
		clients = []types.Client{}
	}

	norm := page.Normalize()
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: types.Paginated[types.Client]{
		Items:      clients,
		Page:       norm.Page,
		PerPage:    norm.PerPage,
		TotalItems: total,
	}})
}

// Get handles GET /v1/clients/{id}.
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := types.GetOrganizationID(r.Context())

	client, err := h.repo.GetByID(r.Context(), orgID, chi.URLParam(r, "clientID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: client})
}

// Create handles POST /v1/clients. The tenant's plan limit is checked
// before anything is written.
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
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
	if err := h.gate.CheckClientCreate(r.Context(), org); err != nil {
		core.Error(w, r, err)
		return
	}

	client := &types.Client{
		ID:              "cli_" + uuid.New().String(),
		OrganizationID:  orgID,
		Name:            req.Name,
		Phone:           req.Phone,
		Status:          types.ClientStatus(req.Status),
		ExpiresAt:       parseOptionalDate(req.ExpiresAt),
		PlanID:          req.PlanID,
		ServerID:        req.ServerID,
		DeviceID:        req.DeviceID,
		ApplicationID:   req.ApplicationID,
		PaymentMethodID: req.PaymentMethodID,
		LeadSourceID:    req.LeadSourceID,
	}

	if err := h.repo.Create(r.Context(), client); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "client created",
		slog.String("organization_id", orgID),
		slog.String("client_id", client.ID),
	)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: client})
}

// Update handles PATCH /v1/clients/{id}.
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateClientRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	orgID := types.GetOrganizationID(r.Context())
	client, err := h.repo.GetByID(r.Context(), orgID, chi.URLParam(r, "clientID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	applyClientUpdate(client, &req)

	if err := h.repo.Update(r.Context(), client); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: client})
}

// Delete handles DELETE /v1/clients/{id}.
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := types.GetOrganizationID(r.Context())

	if err := h.repo.Delete(r.Context(), orgID, chi.URLParam(r, "clientID")); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "client deleted",
		slog.String("organization_id", orgID),
		slog.String("client_id", chi.URLParam(r, "clientID")),
	)
	w.WriteHeader(http.StatusNoContent)
}

// applyClientUpdate copies the set fields of a partial update onto the
// stored client. An empty string on a catalog reference clears it.
func applyClientUpdate(client *types.Client, req *UpdateClientRequest) {
	if req.Name != nil {
		client.Name = *req.Name
	}
	if req.Phone != nil {
		client.Phone = *req.Phone
	}
	if req.Status != nil {
		client.Status = types.ClientStatus(*req.Status)
	}
	if req.ExpiresAt != nil {
		client.ExpiresAt = parseOptionalDate(req.ExpiresAt)
	}

	client.PlanID = applyRef(client.PlanID, req.PlanID)
	client.ServerID = applyRef(client.ServerID, req.ServerID)
	client.DeviceID = applyRef(client.DeviceID, req.DeviceID)
	client.ApplicationID = applyRef(client.ApplicationID, req.ApplicationID)
	client.PaymentMethodID = applyRef(client.PaymentMethodID, req.PaymentMethodID)
	client.LeadSourceID = applyRef(client.LeadSourceID, req.LeadSourceID)
}

func applyRef(current, update *string) *string {
	if update == nil {
		return current
	}
	if *update == "" {
		return nil
	}
	return update
}

// parseOptionalDate parses a YYYY-MM-DD string already validated by the
// datetime tag. Empty strings clear the date.
func parseOptionalDate(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.ParseInLocation("2006-01-02", *s, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

// pageFromQuery reads the page/per_page query parameters. Values are
// normalized downstream; garbage parses as zero and gets the defaults.
func pageFromQuery(r *http.Request) types.PageInfo {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return types.PageInfo{Page: page, PerPage: perPage}
}
