package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"revenda/internal/types"
)

// TemplateRepo provides access to the message_templates table.
type TemplateRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewTemplateRepo creates a TemplateRepo backed by the given connection.
func NewTemplateRepo(db DBTX, logger *slog.Logger) *TemplateRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplateRepo{db: db, logger: logger}
}

// GetByID returns one template scoped to the organization.
func (r *TemplateRepo) GetByID(ctx context.Context, orgID, templateID string) (*types.MessageTemplate, error) {
	var t types.MessageTemplate
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, name, body, created_at, updated_at
		 FROM message_templates
		 WHERE id = $1 AND organization_id = $2`,
		templateID, orgID,
	).Scan(&t.ID, &t.OrganizationID, &t.Name, &t.Body, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTemplate, "message template not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load message template", err)
	}
	return &t, nil
}

// List returns all of the organization's templates ordered by name.
// Template catalogs are small; no pagination.
func (r *TemplateRepo) List(ctx context.Context, orgID string) ([]types.MessageTemplate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, organization_id, name, body, created_at, updated_at
		 FROM message_templates
		 WHERE organization_id = $1
		 ORDER BY name, id`,
		orgID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list message templates", err)
	}
	defer rows.Close()

	var templates []types.MessageTemplate
	for rows.Next() {
		var t types.MessageTemplate
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.Name, &t.Body, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan template row", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "template iteration failed", err)
	}

	return templates, nil
}

// Create inserts a new template.
func (r *TemplateRepo) Create(ctx context.Context, t *types.MessageTemplate) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO message_templates (id, organization_id, name, body, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		t.ID, t.OrganizationID, t.Name, t.Body,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create message template", err)
	}
	return nil
}

// Update rewrites a template's name and body.
func (r *TemplateRepo) Update(ctx context.Context, t *types.MessageTemplate) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE message_templates
		 SET name = $1, body = $2, updated_at = NOW()
		 WHERE id = $3 AND organization_id = $4`,
		t.Name, t.Body, t.ID, t.OrganizationID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update message template", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTemplate, "message template not found", nil)
	}
	return nil
}

// Delete removes a template permanently.
func (r *TemplateRepo) Delete(ctx context.Context, orgID, templateID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM message_templates WHERE id = $1 AND organization_id = $2`,
		templateID, orgID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete message template", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTemplate, "message template not found", nil)
	}
	return nil
}
