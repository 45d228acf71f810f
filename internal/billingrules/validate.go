package billingrules

import (
	"fmt"

	"revenda/internal/types"
)

// ValidateRule checks a billing rule at the authoring boundary. The admin
// UI disables inconsistent form fields, but the backend does not trust
// that: direct API calls must satisfy the same invariants.
//
// Invariants enforced:
//   - Name and MessageTemplateID are non-empty.
//   - ClientStatus and Type are known values.
//   - Automatic rules carry the fields their trigger type requires
//     (days >= 0, or 1 <= start_day <= end_day <= 31).
//   - VENCE_HOJE coupling: a rule selecting clients that expire today is
//     by definition automatic, days-before-expiration, days=0. Any other
//     combination is rejected rather than silently corrected.
//
// Returns a *types.AppError describing the first violation found.
func ValidateRule(rule *types.BillingRule) error {
	if rule.Name == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "rule name is required", nil)
	}
	if rule.MessageTemplateID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "message_template_id is required", nil)
	}

	switch rule.ClientStatus {
	case types.RuleStatusTodos, types.RuleStatusAtivo, types.RuleStatusVenceHoje, types.RuleStatusVencido:
	default:
		return types.NewAppError(
			types.ErrCodeValidationInvalidStatus,
			fmt.Sprintf("unknown client_status %q", rule.ClientStatus),
			nil,
		)
	}

	switch rule.Type {
	case types.RuleManual, types.RuleAutomatic:
	default:
		return types.NewAppError(
			types.ErrCodeValidationInvalidStatus,
			fmt.Sprintf("unknown rule type %q", rule.Type),
			nil,
		)
	}

	if rule.ClientStatus == types.RuleStatusVenceHoje {
		if err := validateVenceHojeCoupling(rule); err != nil {
			return err
		}
	}

	if rule.Type == types.RuleAutomatic {
		if err := checkAutomaticConfig(rule); err != nil {
			// At the authoring boundary this is a validation failure, not
			// an evaluation-time diagnostic.
			appErr := err.(*types.AppError)
			return types.NewAppError(types.ErrCodeValidationMissingField, appErr.Message, appErr)
		}
	}

	return nil
}

// validateVenceHojeCoupling enforces the derived combination for
// expires-today rules: AUTOMATIC / days_before_expiration / days=0.
func validateVenceHojeCoupling(rule *types.BillingRule) error {
	if rule.Type != types.RuleAutomatic {
		return types.NewAppError(
			types.ErrCodeValidationRuleCoupling,
			"VENCE_HOJE rules must be automatic",
			nil,
		)
	}
	if rule.AutomaticType != types.TriggerDaysBeforeExpiration {
		return types.NewAppError(
			types.ErrCodeValidationRuleCoupling,
			"VENCE_HOJE rules must use days_before_expiration",
			nil,
		)
	}
	if rule.Days == nil || *rule.Days != 0 {
		return types.NewAppError(
			types.ErrCodeValidationRuleCoupling,
			"VENCE_HOJE rules must have days=0",
			nil,
		)
	}
	return nil
}

// NormalizeVenceHoje fills in the derived automatic fields for a
// VENCE_HOJE rule whose trigger fields were omitted entirely. This mirrors
// the admin form, which hides those fields; a request that *sets* them to
// conflicting values still fails ValidateRule.
func NormalizeVenceHoje(rule *types.BillingRule) {
	if rule.ClientStatus != types.RuleStatusVenceHoje {
		return
	}
	if rule.Type == "" {
		rule.Type = types.RuleAutomatic
	}
	if rule.AutomaticType == "" {
		rule.AutomaticType = types.TriggerDaysBeforeExpiration
	}
	if rule.Days == nil && rule.AutomaticType == types.TriggerDaysBeforeExpiration {
		zero := 0
		rule.Days = &zero
	}
}
