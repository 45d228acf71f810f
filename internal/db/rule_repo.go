package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"revenda/internal/types"
)

// RuleRepo provides access to the billing_rules table. Filter sets are
// stored as text[] columns; pgx maps them to []string directly.
type RuleRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewRuleRepo creates a RuleRepo backed by the given connection.
func NewRuleRepo(db DBTX, logger *slog.Logger) *RuleRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleRepo{db: db, logger: logger}
}

const ruleColumns = `id, organization_id, name, client_status, type,
	plan_ids, server_ids, application_ids, device_ids, lead_source_ids, payment_method_ids,
	message_template_id, automatic_type, days, start_day, end_day, enabled,
	created_at, updated_at`

func scanRule(row pgx.Row) (*types.BillingRule, error) {
	var rule types.BillingRule
	var automaticType *string
	err := row.Scan(
		&rule.ID, &rule.OrganizationID, &rule.Name, &rule.ClientStatus, &rule.Type,
		&rule.PlanIDs, &rule.ServerIDs, &rule.ApplicationIDs, &rule.DeviceIDs,
		&rule.LeadSourceIDs, &rule.PaymentMethodIDs,
		&rule.MessageTemplateID, &automaticType, &rule.Days, &rule.StartDay, &rule.EndDay,
		&rule.Enabled, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if automaticType != nil {
		rule.AutomaticType = types.AutomaticType(*automaticType)
	}
	return &rule, nil
}

// GetByID returns one rule scoped to the organization.
func (r *RuleRepo) GetByID(ctx context.Context, orgID, ruleID string) (*types.BillingRule, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+ruleColumns+`
		 FROM billing_rules
		 WHERE id = $1 AND organization_id = $2`,
		ruleID, orgID,
	)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRule, "billing rule not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load billing rule", err)
	}
	return rule, nil
}

// ListAll returns the organization's full rule catalog in creation order.
// The runner evaluates rules in this order, so it is part of the
// first-match-wins contract with the dispatcher.
func (r *RuleRepo) ListAll(ctx context.Context, orgID string) ([]types.BillingRule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+ruleColumns+`
		 FROM billing_rules
		 WHERE organization_id = $1
		 ORDER BY created_at, id`,
		orgID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list billing rules", err)
	}
	defer rows.Close()

	var rules []types.BillingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan billing rule row", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "billing rule iteration failed", err)
	}

	return rules, nil
}

// Create inserts a new rule. Callers must run billingrules.ValidateRule
// first; the repository does not re-validate.
func (r *RuleRepo) Create(ctx context.Context, rule *types.BillingRule) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO billing_rules (
			id, organization_id, name, client_status, type,
			plan_ids, server_ids, application_ids, device_ids, lead_source_ids, payment_method_ids,
			message_template_id, automatic_type, days, start_day, end_day, enabled,
			created_at, updated_at
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,NOW(),NOW())`,
		rule.ID, rule.OrganizationID, rule.Name, rule.ClientStatus, rule.Type,
		rule.PlanIDs, rule.ServerIDs, rule.ApplicationIDs, rule.DeviceIDs,
		rule.LeadSourceIDs, rule.PaymentMethodIDs,
		rule.MessageTemplateID, nullableString(string(rule.AutomaticType)),
		rule.Days, rule.StartDay, rule.EndDay, rule.Enabled,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create billing rule", err)
	}
	return nil
}

// Update rewrites a rule in place.
func (r *RuleRepo) Update(ctx context.Context, rule *types.BillingRule) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE billing_rules
		 SET name = $1, client_status = $2, type = $3,
		     plan_ids = $4, server_ids = $5, application_ids = $6, device_ids = $7,
		     lead_source_ids = $8, payment_method_ids = $9,
		     message_template_id = $10, automatic_type = $11,
		     days = $12, start_day = $13, end_day = $14, enabled = $15,
		     updated_at = NOW()
		 WHERE id = $16 AND organization_id = $17`,
		rule.Name, rule.ClientStatus, rule.Type,
		rule.PlanIDs, rule.ServerIDs, rule.ApplicationIDs, rule.DeviceIDs,
		rule.LeadSourceIDs, rule.PaymentMethodIDs,
		rule.MessageTemplateID, nullableString(string(rule.AutomaticType)),
		rule.Days, rule.StartDay, rule.EndDay, rule.Enabled,
		rule.ID, rule.OrganizationID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update billing rule", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRule, "billing rule not found", nil)
	}
	return nil
}

// Delete removes a rule permanently. Dispatch records reference rules by
// id without a foreign key, so history survives rule deletion.
func (r *RuleRepo) Delete(ctx context.Context, orgID, ruleID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM billing_rules WHERE id = $1 AND organization_id = $2`,
		ruleID, orgID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete billing rule", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRule, "billing rule not found", nil)
	}
	return nil
}

// CountAutomatic returns the number of enabled automatic rules for
// plan-limit enforcement.
func (r *RuleRepo) CountAutomatic(ctx context.Context, orgID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM billing_rules
		 WHERE organization_id = $1 AND type = 'automatic' AND enabled`,
		orgID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count automatic rules", err)
	}
	return count, nil
}

// nullableString maps "" to NULL for optional enum columns.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
