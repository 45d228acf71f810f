// Package billingrules implements the billing rule engine: the component
// that decides, given a client snapshot and the configured rule catalog,
// which automated billing/reminder messages should fire on a given day.
//
// The matcher is a pure function of (client, rule, today). It never sends
// messages, never mutates its inputs, and keeps no "already sent" state;
// dedup of repeat sends belongs to the dispatch layer (internal/runner).
package billingrules

import (
	"fmt"
	"time"

	"revenda/internal/types"
)

// Matcher evaluates billing rules against client snapshots. It is stateless
// and safe for concurrent use.
type Matcher struct {
	logger types.Logger
}

// NewMatcher creates a Matcher. The logger may be nil for pure library use;
// diagnostics are still returned to the caller either way.
func NewMatcher(logger types.Logger) *Matcher {
	return &Matcher{logger: logger}
}

// RuleDiagnostic reports a configuration problem found while evaluating a
// rule. A diagnosed rule is treated as non-matching; it never aborts the
// evaluation of the rest of the catalog.
type RuleDiagnostic struct {
	RuleID   string
	RuleName string
	Err      *types.AppError
}

// MatchResult is the outcome of evaluating one client against a catalog.
// Matched preserves catalog order, since the dispatcher may apply
// first-match-wins policies on top of it.
type MatchResult struct {
	Matched     []types.BillingRule
	Diagnostics []RuleDiagnostic
}

// Matches reports whether the rule fires for the client on the given day.
//
// Gate chain (all must pass):
//  1. Type: only enabled automatic rules fire; manual rules never do.
//  2. Status: TODOS / ATIVO / VENCE_HOJE / VENCIDO against the client's
//     status and expiration date.
//  3. Filters: every non-empty filter set must contain the client's
//     corresponding identifier; a missing identifier fails the gate.
//  4. Automatic type: days-before-expiration or monthly day range.
//
// A non-nil error is always a *types.AppError with code
// rule_configuration_invalid and means the rule's automatic fields are
// inconsistent; the boolean is false in that case.
func (m *Matcher) Matches(client *types.Client, rule *types.BillingRule, today time.Time) (bool, error) {
	if rule.Type != types.RuleAutomatic || !rule.Enabled {
		return false, nil
	}

	if err := checkAutomaticConfig(rule); err != nil {
		return false, err
	}

	if !statusMatches(client, rule.ClientStatus, today) {
		return false, nil
	}

	for _, gate := range rule.FilterSets(client) {
		if !filterPasses(gate) {
			return false, nil
		}
	}

	return automaticMatches(client, rule, today), nil
}

// MatchAll evaluates every rule in the catalog against one client,
// preserving catalog order. Misconfigured rules are collected as
// diagnostics instead of failing the batch.
func (m *Matcher) MatchAll(client *types.Client, rules []types.BillingRule, today time.Time) MatchResult {
	result := MatchResult{}

	for i := range rules {
		rule := &rules[i]
		ok, err := m.Matches(client, rule, today)
		if err != nil {
			var appErr *types.AppError
			if ae, isApp := err.(*types.AppError); isApp {
				appErr = ae
			} else {
				appErr = types.NewAppError(types.ErrCodeRuleConfigInvalid, err.Error(), err)
			}
			result.Diagnostics = append(result.Diagnostics, RuleDiagnostic{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Err:      appErr,
			})
			if m.logger != nil {
				m.logger.Warn("skipping misconfigured billing rule",
					"rule_id", rule.ID,
					"rule_name", rule.Name,
					"error", appErr.Error(),
				)
			}
			continue
		}
		if ok {
			result.Matched = append(result.Matched, *rule)
		}
	}

	return result
}

// MatchesManual reports whether a manually applied rule selects the
// client. Manual application skips the type and automatic gates; only the
// status selector and filter sets apply.
func (m *Matcher) MatchesManual(client *types.Client, rule *types.BillingRule, today time.Time) bool {
	if !statusMatches(client, rule.ClientStatus, today) {
		return false
	}
	for _, gate := range rule.FilterSets(client) {
		if !filterPasses(gate) {
			return false
		}
	}
	return true
}

// statusMatches evaluates the rule's client-status selector.
//
// VENCIDO and VENCE_HOJE need an expiration date; a client without one
// (lifetime plan) simply fails the gate rather than erroring.
func statusMatches(client *types.Client, status types.RuleClientStatus, today time.Time) bool {
	switch status {
	case types.RuleStatusTodos:
		return true
	case types.RuleStatusAtivo:
		return client.Status == types.ClientActive
	case types.RuleStatusVencido:
		if client.Status != types.ClientInactive || client.ExpiresAt == nil {
			return false
		}
		// Expiration strictly in the past.
		return DaysBetween(today, *client.ExpiresAt) < 0
	case types.RuleStatusVenceHoje:
		if client.Status != types.ClientActive || client.ExpiresAt == nil {
			return false
		}
		return DaysBetween(today, *client.ExpiresAt) == 0
	default:
		return false
	}
}

// filterPasses applies one filter-set gate. An empty set is unrestricted;
// a configured set requires the client's identifier to be present in it.
func filterPasses(gate types.FilterGate) bool {
	if len(gate.Allowed) == 0 {
		return true
	}
	if gate.ClientValue == nil {
		return false
	}
	for _, id := range gate.Allowed {
		if id == *gate.ClientValue {
			return true
		}
	}
	return false
}

// automaticMatches applies the automatic-type gate. Config completeness is
// verified by checkAutomaticConfig before this runs.
func automaticMatches(client *types.Client, rule *types.BillingRule, today time.Time) bool {
	switch rule.AutomaticType {
	case types.TriggerDaysBeforeExpiration:
		if client.ExpiresAt == nil {
			return false
		}
		return DaysBetween(today, *client.ExpiresAt) == *rule.Days
	case types.TriggerMonthlyDayRange:
		// Pure calendar window; intentionally independent of ExpiresAt.
		dom := DayOfMonth(today)
		return dom >= *rule.StartDay && dom <= *rule.EndDay
	default:
		return false
	}
}

// checkAutomaticConfig verifies that an automatic rule carries the fields
// its trigger type requires, including the derived VENCE_HOJE combination
// (days_before_expiration with days=0). Returns a
// rule_configuration_invalid AppError on any inconsistency.
func checkAutomaticConfig(rule *types.BillingRule) error {
	switch rule.AutomaticType {
	case types.TriggerDaysBeforeExpiration:
		if rule.Days == nil {
			return configErr(rule, "days is required for days_before_expiration")
		}
		if *rule.Days < 0 {
			return configErr(rule, fmt.Sprintf("days must be non-negative, got %d", *rule.Days))
		}
	case types.TriggerMonthlyDayRange:
		if rule.StartDay == nil || rule.EndDay == nil {
			return configErr(rule, "start_day and end_day are required for monthly_day_range")
		}
		if *rule.StartDay < 1 || *rule.EndDay > 31 || *rule.StartDay > *rule.EndDay {
			return configErr(rule, fmt.Sprintf("invalid day range [%d, %d]", *rule.StartDay, *rule.EndDay))
		}
	case "":
		return configErr(rule, "automatic_type is required for automatic rules")
	default:
		return configErr(rule, fmt.Sprintf("unknown automatic_type %q", rule.AutomaticType))
	}

	// The authoring boundary rejects these, but rules can reach the engine
	// without passing through it (direct writes, legacy rows).
	if rule.ClientStatus == types.RuleStatusVenceHoje {
		if rule.AutomaticType != types.TriggerDaysBeforeExpiration {
			return configErr(rule, "VENCE_HOJE rules must use days_before_expiration")
		}
		if *rule.Days != 0 {
			return configErr(rule, fmt.Sprintf("VENCE_HOJE rules must have days=0, got %d", *rule.Days))
		}
	}
	return nil
}

func configErr(rule *types.BillingRule, msg string) *types.AppError {
	return types.NewAppErrorWithDetails(
		types.ErrCodeRuleConfigInvalid,
		msg,
		nil,
		map[string]any{"rule_id": rule.ID},
	)
}

// DedupWindowKey returns the dispatch dedup key for a rule fired on the
// given day. Days-before rules (and manual applications) are keyed by the
// calendar date; monthly-window rules are keyed by the month plus the
// configured window, so every day inside one window shares a key and
// repeat sends collapse to a single dispatch per window per month.
func DedupWindowKey(rule *types.BillingRule, today time.Time) string {
	d := truncateUTC(today)
	if rule.Type == types.RuleAutomatic &&
		rule.AutomaticType == types.TriggerMonthlyDayRange &&
		rule.StartDay != nil && rule.EndDay != nil {
		return fmt.Sprintf("%s:%d-%d", d.Format("2006-01"), *rule.StartDay, *rule.EndDay)
	}
	return d.Format("2006-01-02")
}
