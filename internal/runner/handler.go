package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"revenda/internal/types"
)

// RunInput is the invocation payload of the billing-runner Lambda. The
// scheduled EventBridge rule sends an empty object; operators can invoke
// the function directly with a tenant, date, or dry-run override.
type RunInput struct {
	OrganizationID string `json:"organization_id,omitempty"`

	// Date is the evaluation day in YYYY-MM-DD. Empty means today.
	Date string `json:"date,omitempty"`

	DryRun bool `json:"dry_run,omitempty"`
}

// Handler adapts a BillingRunner to the Lambda invocation contract.
type Handler struct {
	runner *BillingRunner
	logger *slog.Logger
}

// NewHandler creates a Lambda handler around the runner.
func NewHandler(r *BillingRunner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{runner: r, logger: logger}
}

// Handle parses the invocation payload and executes the run.
func (h *Handler) Handle(ctx context.Context, input RunInput) (*types.RunReport, error) {
	params := RunParams{
		OrganizationID: input.OrganizationID,
		DryRun:         input.DryRun,
	}

	if input.Date != "" {
		day, err := time.ParseInLocation("2006-01-02", input.Date, time.UTC)
		if err != nil {
			return nil, types.NewAppError(
				types.ErrCodeValidationMissingField,
				fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", input.Date),
				err,
			)
		}
		params.Today = day
	}

	report, err := h.runner.Run(ctx, params)
	if err != nil {
		h.logger.ErrorContext(ctx, "billing run failed", slog.Any("error", err))
		return report, err
	}
	return report, nil
}
