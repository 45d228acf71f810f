package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"revenda/internal/types"
)

// ClientRepo provides access to the clients table.
type ClientRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewClientRepo creates a ClientRepo backed by the given connection
// (pool or transaction).
func NewClientRepo(db DBTX, logger *slog.Logger) *ClientRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientRepo{db: db, logger: logger}
}

const clientColumns = `id, organization_id, name, phone, status, expires_at,
	plan_id, server_id, device_id, application_id, payment_method_id, lead_source_id,
	created_at, updated_at`

// scanClient reads one client row in clientColumns order.
func scanClient(row pgx.Row) (*types.Client, error) {
	var c types.Client
	err := row.Scan(
		&c.ID, &c.OrganizationID, &c.Name, &c.Phone, &c.Status, &c.ExpiresAt,
		&c.PlanID, &c.ServerID, &c.DeviceID, &c.ApplicationID, &c.PaymentMethodID, &c.LeadSourceID,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID returns one client scoped to the organization, or a
// not_found_client AppError.
func (r *ClientRepo) GetByID(ctx context.Context, orgID, clientID string) (*types.Client, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+clientColumns+`
		 FROM clients
		 WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL`,
		clientID, orgID,
	)
	c, err := scanClient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundClient, "client not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load client", err)
	}
	return c, nil
}

// List returns a page of the organization's clients ordered by name.
func (r *ClientRepo) List(ctx context.Context, orgID string, page types.PageInfo) ([]types.Client, int, error) {
	page = page.Normalize()

	var total int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM clients WHERE organization_id = $1 AND deleted_at IS NULL`,
		orgID,
	).Scan(&total)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count clients", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+clientColumns+`
		 FROM clients
		 WHERE organization_id = $1 AND deleted_at IS NULL
		 ORDER BY name, id
		 LIMIT $2 OFFSET $3`,
		orgID, page.PerPage, page.Offset(),
	)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to list clients", err)
	}
	defer rows.Close()

	var clients []types.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to scan client row", err)
		}
		clients = append(clients, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "client row iteration failed", err)
	}

	return clients, total, nil
}

// ListForEvaluation pages through every non-deleted client of the
// organization in a stable order. The billing runner walks these pages;
// keyset ordering by id keeps pages consistent while the run is active.
func (r *ClientRepo) ListForEvaluation(ctx context.Context, orgID string, afterID string, limit int) ([]types.Client, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+clientColumns+`
		 FROM clients
		 WHERE organization_id = $1 AND deleted_at IS NULL AND id > $2
		 ORDER BY id
		 LIMIT $3`,
		orgID, afterID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to page clients for evaluation", err)
	}
	defer rows.Close()

	var clients []types.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan client row", err)
		}
		clients = append(clients, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "client row iteration failed", err)
	}

	return clients, nil
}

// Create inserts a new client.
func (r *ClientRepo) Create(ctx context.Context, c *types.Client) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO clients (
			id, organization_id, name, phone, status, expires_at,
			plan_id, server_id, device_id, application_id, payment_method_id, lead_source_id,
			created_at, updated_at
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())`,
		c.ID, c.OrganizationID, c.Name, c.Phone, c.Status, c.ExpiresAt,
		c.PlanID, c.ServerID, c.DeviceID, c.ApplicationID, c.PaymentMethodID, c.LeadSourceID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create client", err)
	}
	return nil
}

// Update rewrites the mutable fields of a client.
func (r *ClientRepo) Update(ctx context.Context, c *types.Client) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE clients
		 SET name = $1, phone = $2, status = $3, expires_at = $4,
		     plan_id = $5, server_id = $6, device_id = $7, application_id = $8,
		     payment_method_id = $9, lead_source_id = $10, updated_at = NOW()
		 WHERE id = $11 AND organization_id = $12 AND deleted_at IS NULL`,
		c.Name, c.Phone, c.Status, c.ExpiresAt,
		c.PlanID, c.ServerID, c.DeviceID, c.ApplicationID,
		c.PaymentMethodID, c.LeadSourceID,
		c.ID, c.OrganizationID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update client", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundClient, "client not found", nil)
	}
	return nil
}

// Delete soft-deletes a client. Dispatch history is kept.
func (r *ClientRepo) Delete(ctx context.Context, orgID, clientID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE clients SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL`,
		clientID, orgID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete client", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundClient, "client not found", nil)
	}
	return nil
}

// CountActive returns the number of non-deleted clients for plan-limit
// enforcement.
func (r *ClientRepo) CountActive(ctx context.Context, orgID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM clients WHERE organization_id = $1 AND deleted_at IS NULL`,
		orgID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count clients", err)
	}
	return count, nil
}
