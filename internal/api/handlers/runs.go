package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"revenda/internal/core"
	"revenda/internal/runner"
	"revenda/internal/types"
)

// RunService is the billing runner subset exposed over HTTP. The daily
// schedule invokes the runner Lambda directly; these endpoints exist for
// operators to re-run a day or apply a manual rule from the panel.
type RunService interface {
	Run(ctx context.Context, params runner.RunParams) (*types.RunReport, error)
	ApplyManualRule(ctx context.Context, orgID, ruleID string) (*types.RunReport, error)
}

// TriggerRunRequest is the request body for POST /v1/runs. Date defaults
// to today; dry runs evaluate and report without writing dispatches.
type TriggerRunRequest struct {
	Date   string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DryRun bool   `json:"dry_run"`
}

// RunHandler exposes on-demand billing evaluation.
type RunHandler struct {
	runs      RunService
	validator *core.Validator
	clock     types.Clock
	logger    *slog.Logger
}

// NewRunHandler creates a RunHandler with the provided dependencies.
func NewRunHandler(runs RunService, validator *core.Validator, clock types.Clock, logger *slog.Logger) *RunHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunHandler{runs: runs, validator: validator, clock: clock, logger: logger}
}

// RegisterRoutes mounts the run endpoints.
func (h *RunHandler) RegisterRoutes(r chi.Router) {
	r.Post("/runs", h.Trigger)
	r.Post("/rules/{ruleID}/apply", h.ApplyRule)
}

// Trigger handles POST /v1/runs, evaluating the calling tenant only.
func (h *RunHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRunRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	today := h.clock.Now().UTC()
	if req.Date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
		if err != nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidDate, "date must be YYYY-MM-DD", err))
			return
		}
		today = parsed
	}

	orgID := types.GetOrganizationID(r.Context())
	report, err := h.runs.Run(r.Context(), runner.RunParams{
		OrganizationID: orgID,
		Today:          today,
		DryRun:         req.DryRun,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "billing run triggered",
		slog.String("organization_id", orgID),
		slog.String("run_id", report.RunID),
		slog.Bool("dry_run", report.DryRun),
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report})
}

// ApplyRule handles POST /v1/rules/{id}/apply, dispatching a manual rule
// to every matching client now.
func (h *RunHandler) ApplyRule(w http.ResponseWriter, r *http.Request) {
	orgID := types.GetOrganizationID(r.Context())
	ruleID := chi.URLParam(r, "ruleID")

	report, err := h.runs.ApplyManualRule(r.Context(), orgID, ruleID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "manual rule applied",
		slog.String("organization_id", orgID),
		slog.String("rule_id", ruleID),
		slog.Int("dispatches_created", report.DispatchesCreated),
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report})
}
