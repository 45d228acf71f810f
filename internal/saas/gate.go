package saas

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"revenda/internal/types"
)

// PaymentGracePeriod is how long after a failed payment a past-due tenant
// keeps its automation before the gate blocks it.
const PaymentGracePeriod = 7 * 24 * time.Hour

// ClientCounter counts a tenant's clients for plan-limit checks.
type ClientCounter interface {
	CountActive(ctx context.Context, orgID string) (int, error)
}

// RuleCounter counts a tenant's automatic rules for plan-limit checks.
type RuleCounter interface {
	CountAutomatic(ctx context.Context, orgID string) (int, error)
}

// SubscriptionGate enforces plan limits and subscription health at the
// write boundaries (client/rule creation) and before automation runs.
type SubscriptionGate struct {
	clients ClientCounter
	rules   RuleCounter
	logger  *slog.Logger
}

// NewSubscriptionGate creates a gate over the given counters.
func NewSubscriptionGate(clients ClientCounter, rules RuleCounter, logger *slog.Logger) *SubscriptionGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionGate{clients: clients, rules: rules, logger: logger}
}

// CheckAutomation reports whether the tenant's automation may run.
//
// Blocked when:
//   - the plan tier does not include automation (free tier), or
//   - the subscription is unpaid or canceled, or
//   - the subscription is past due and the payment grace period has
//     elapsed since the recorded payment failure.
//
// A past-due tenant inside the grace period keeps running; dunning is the
// payment provider's job, not ours.
func (g *SubscriptionGate) CheckAutomation(org *types.Organization, now time.Time) error {
	limits := LimitsFor(org.Plan)
	if !limits.AllowAutomation {
		return types.NewAppError(
			types.ErrCodeLimitAutomation,
			fmt.Sprintf("plan %s does not include automated billing rules", org.Plan),
			nil,
		)
	}

	switch org.SubscriptionStatus {
	case types.SubStatusActive, types.SubStatusTrialing:
		return nil
	case types.SubStatusPastDue:
		if org.PaymentFailedAt == nil || now.Sub(*org.PaymentFailedAt) <= PaymentGracePeriod {
			return nil
		}
		return types.NewAppError(
			types.ErrCodeLimitAutomation,
			"subscription past due beyond the payment grace period",
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeLimitAutomation,
			fmt.Sprintf("subscription is %s; automation disabled", org.SubscriptionStatus),
			nil,
		)
	}
}

// CheckClientCreate verifies the tenant may add one more client.
func (g *SubscriptionGate) CheckClientCreate(ctx context.Context, org *types.Organization) error {
	limits := LimitsFor(org.Plan)
	if limits.MaxClients == 0 {
		return nil
	}

	count, err := g.clients.CountActive(ctx, org.ID)
	if err != nil {
		return err
	}
	if count >= limits.MaxClients {
		return types.NewAppErrorWithDetails(
			types.ErrCodeLimitClients,
			fmt.Sprintf("plan %s allows at most %d clients", org.Plan, limits.MaxClients),
			nil,
			map[string]any{"limit": limits.MaxClients, "current": count},
		)
	}
	return nil
}

// CheckRuleCreate verifies the tenant may add the given rule. Manual rules
// are always allowed; automatic rules count against the plan's rule limit
// and require a tier with automation.
func (g *SubscriptionGate) CheckRuleCreate(ctx context.Context, org *types.Organization, rule *types.BillingRule) error {
	if rule.Type != types.RuleAutomatic {
		return nil
	}

	limits := LimitsFor(org.Plan)
	if !limits.AllowAutomation {
		return types.NewAppError(
			types.ErrCodeLimitAutomation,
			fmt.Sprintf("plan %s does not include automated billing rules", org.Plan),
			nil,
		)
	}
	if limits.MaxActiveRules == 0 {
		return nil
	}

	count, err := g.rules.CountAutomatic(ctx, org.ID)
	if err != nil {
		return err
	}
	if count >= limits.MaxActiveRules {
		return types.NewAppErrorWithDetails(
			types.ErrCodeLimitRules,
			fmt.Sprintf("plan %s allows at most %d automatic rules", org.Plan, limits.MaxActiveRules),
			nil,
			map[string]any{"limit": limits.MaxActiveRules, "current": count},
		)
	}
	return nil
}
