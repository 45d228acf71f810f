package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"revenda/internal/types"
)

// DispatchRepo tracks message dispatches and carries the dedup contract of
// the billing runner.
//
// Key invariants:
//   - (rule_id, client_id, window_key) is unique. InsertPending uses
//     ON CONFLICT DO NOTHING so that re-running the daily job, or a
//     monthly-window rule matching on consecutive days, never creates a
//     second send.
//   - Delivery state transitions are worker-driven and idempotent; a
//     retried SQS message that was already marked sent is a no-op.
type DispatchRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewDispatchRepo creates a DispatchRepo backed by the given connection.
func NewDispatchRepo(db DBTX, logger *slog.Logger) *DispatchRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchRepo{db: db, logger: logger}
}

// InsertPending records a new pending dispatch. Returns created=false when
// the (rule, client, window) triple already exists, which is the dedup
// signal the runner counts as skipped.
func (r *DispatchRepo) InsertPending(ctx context.Context, d *types.DispatchRecord) (created bool, err error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO dispatches (
			id, organization_id, client_id, rule_id, template_id,
			window_key, reason, status, attempt_count, created_at
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,NOW())
		 ON CONFLICT (rule_id, client_id, window_key) DO NOTHING`,
		d.ID, d.OrganizationID, d.ClientID, d.RuleID, d.TemplateID,
		d.WindowKey, d.Reason,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert dispatch", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetByID loads a dispatch record.
func (r *DispatchRepo) GetByID(ctx context.Context, dispatchID string) (*types.DispatchRecord, error) {
	var d types.DispatchRecord
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, client_id, rule_id, template_id,
		        window_key, reason, status, attempt_count,
		        COALESCE(provider_message_id, ''), COALESCE(failure_reason, ''),
		        created_at, delivered_at
		 FROM dispatches
		 WHERE id = $1`,
		dispatchID,
	).Scan(
		&d.ID, &d.OrganizationID, &d.ClientID, &d.RuleID, &d.TemplateID,
		&d.WindowKey, &d.Reason, &d.Status, &d.AttemptCount,
		&d.ProviderMsgID, &d.FailureReason,
		&d.CreatedAt, &d.DeliveredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundDispatch, "dispatch not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load dispatch", err)
	}
	return &d, nil
}

// RecordAttempt increments the attempt counter before a delivery try.
func (r *DispatchRepo) RecordAttempt(ctx context.Context, dispatchID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE dispatches SET attempt_count = attempt_count + 1 WHERE id = $1`,
		dispatchID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record dispatch attempt", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundDispatch, "dispatch not found", nil)
	}
	return nil
}

// MarkSent transitions a dispatch to sent. Only pending/failed rows are
// updated, so a duplicate SQS delivery after success is a no-op.
func (r *DispatchRepo) MarkSent(ctx context.Context, dispatchID, providerMsgID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE dispatches
		 SET status = 'sent', provider_message_id = $1, failure_reason = NULL, delivered_at = NOW()
		 WHERE id = $2 AND status IN ('pending', 'failed')`,
		providerMsgID, dispatchID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark dispatch sent", err)
	}
	return nil
}

// MarkFailed records a delivery failure.
func (r *DispatchRepo) MarkFailed(ctx context.Context, dispatchID, reason string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE dispatches
		 SET status = 'failed', failure_reason = $1
		 WHERE id = $2 AND status = 'pending'`,
		reason, dispatchID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark dispatch failed", err)
	}
	return nil
}

// MarkSkipped records that delivery was intentionally not attempted
// (e.g., client with no phone number).
func (r *DispatchRepo) MarkSkipped(ctx context.Context, dispatchID, reason string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE dispatches
		 SET status = 'skipped', failure_reason = $1
		 WHERE id = $2 AND status = 'pending'`,
		reason, dispatchID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark dispatch skipped", err)
	}
	return nil
}

// ListOlderThan pages dispatch records created before the cutoff, for the
// history exporter. Keyset pagination on id keeps pages stable; pass the
// last id of the previous page as afterID, or "" for the first page.
func (r *DispatchRepo) ListOlderThan(ctx context.Context, orgID string, cutoff time.Time, afterID string, limit int) ([]types.DispatchRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, organization_id, client_id, rule_id, template_id,
		        window_key, reason, status, attempt_count,
		        COALESCE(provider_message_id, ''), COALESCE(failure_reason, ''),
		        created_at, delivered_at
		 FROM dispatches
		 WHERE organization_id = $1 AND created_at < $2 AND id > $3
		 ORDER BY id
		 LIMIT $4`,
		orgID, cutoff, afterID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list old dispatches", err)
	}
	defer rows.Close()

	var records []types.DispatchRecord
	for rows.Next() {
		var d types.DispatchRecord
		err := rows.Scan(
			&d.ID, &d.OrganizationID, &d.ClientID, &d.RuleID, &d.TemplateID,
			&d.WindowKey, &d.Reason, &d.Status, &d.AttemptCount,
			&d.ProviderMsgID, &d.FailureReason,
			&d.CreatedAt, &d.DeliveredAt,
		)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan dispatch row", err)
		}
		records = append(records, d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "dispatch iteration failed", err)
	}

	return records, nil
}
