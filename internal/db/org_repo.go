package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"revenda/internal/types"
)

// OrgRepo manages reseller organizations and their local SaaS billing
// state.
//
// Key invariants:
//   - UpdateSubscriptionStatus uses optimistic locking via
//     last_subscription_event_at so out-of-order Stripe webhooks cannot
//     regress the local state. Stale events are silently ignored.
//   - Webhooks for soft-deleted organizations are rejected and logged so
//     Ops can cancel the provider-side subscription manually.
type OrgRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewOrgRepo creates an OrgRepo backed by the given connection.
func NewOrgRepo(db DBTX, logger *slog.Logger) *OrgRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrgRepo{db: db, logger: logger}
}

// GetByID loads an organization.
func (r *OrgRepo) GetByID(ctx context.Context, orgID string) (*types.Organization, error) {
	var o types.Organization
	err := r.db.QueryRow(ctx,
		`SELECT id, name, plan, subscription_status,
		        COALESCE(stripe_customer_id, ''),
		        last_subscription_event_at, payment_failed_at,
		        created_at, updated_at, deleted_at
		 FROM organizations
		 WHERE id = $1 AND deleted_at IS NULL`,
		orgID,
	).Scan(
		&o.ID, &o.Name, &o.Plan, &o.SubscriptionStatus,
		&o.StripeCustomerID,
		&o.LastSubscriptionEventAt, &o.PaymentFailedAt,
		&o.CreatedAt, &o.UpdatedAt, &o.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load organization", err)
	}
	return &o, nil
}

// ListActive returns every non-deleted organization. The billing runner
// iterates these when invoked without an explicit tenant.
func (r *OrgRepo) ListActive(ctx context.Context) ([]types.Organization, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, plan, subscription_status,
		        COALESCE(stripe_customer_id, ''),
		        last_subscription_event_at, payment_failed_at,
		        created_at, updated_at, deleted_at
		 FROM organizations
		 WHERE deleted_at IS NULL
		 ORDER BY id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list organizations", err)
	}
	defer rows.Close()

	var orgs []types.Organization
	for rows.Next() {
		var o types.Organization
		err := rows.Scan(
			&o.ID, &o.Name, &o.Plan, &o.SubscriptionStatus,
			&o.StripeCustomerID,
			&o.LastSubscriptionEventAt, &o.PaymentFailedAt,
			&o.CreatedAt, &o.UpdatedAt, &o.DeletedAt,
		)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan organization row", err)
		}
		orgs = append(orgs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "organization iteration failed", err)
	}

	return orgs, nil
}

// UpdateSubscriptionStatus atomically applies a provider subscription event.
//
// Invariants enforced:
//  1. Deleted-org check: fails if the organization is soft-deleted and
//     logs an alert for Ops to cancel the provider subscription.
//  2. Optimistic locking: the update only applies if the event is newer
//     than the last processed one. Older/duplicate events are an
//     idempotent no-op.
func (r *OrgRepo) UpdateSubscriptionStatus(
	ctx context.Context,
	orgID string,
	newPlan types.PlanTier,
	status types.SubscriptionStatus,
	eventTimestamp time.Time,
) error {
	var deletedAt *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT deleted_at FROM organizations WHERE id = $1`,
		orgID,
	).Scan(&deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to check organization status", err)
	}

	if deletedAt != nil {
		r.logger.Error("subscription event received for deleted organization",
			slog.String("org_id", orgID),
			slog.String("new_plan", string(newPlan)),
			slog.String("status", string(status)),
			slog.Time("event_timestamp", eventTimestamp),
		)
		return types.NewAppError(
			types.ErrCodeConflictConcurrent,
			fmt.Sprintf("organization %s is deleted; subscription update rejected", orgID),
			nil,
		)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE organizations
		 SET plan = $1,
		     subscription_status = $2,
		     last_subscription_event_at = $3,
		     updated_at = NOW()
		 WHERE id = $4
		   AND deleted_at IS NULL
		   AND (last_subscription_event_at IS NULL OR last_subscription_event_at < $3)`,
		newPlan, status, eventTimestamp, orgID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription status", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Info("stale subscription event ignored (optimistic lock)",
			slog.String("org_id", orgID),
			slog.Time("event_timestamp", eventTimestamp),
		)
		return nil
	}

	return nil
}

// UpdatePaymentFailure records the dunning state when an invoice payment
// fails. The subscription gate uses payment_failed_at to track the grace
// period before automation is blocked.
func (r *OrgRepo) UpdatePaymentFailure(ctx context.Context, orgID string, failedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE organizations
		 SET payment_failed_at = $1, updated_at = NOW()
		 WHERE id = $2 AND deleted_at IS NULL`,
		failedAt, orgID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update payment failure state", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found or deleted", nil)
	}
	return nil
}

// ClearPaymentFailure resets the dunning state after a successful payment.
func (r *OrgRepo) ClearPaymentFailure(ctx context.Context, orgID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE organizations
		 SET payment_failed_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`,
		orgID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear payment failure state", err)
	}
	return nil
}
