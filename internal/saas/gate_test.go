package saas

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"revenda/internal/types"
)

type mockCounter struct {
	mock.Mock
}

func (m *mockCounter) CountActive(ctx context.Context, orgID string) (int, error) {
	args := m.Called(ctx, orgID)
	return args.Int(0), args.Error(1)
}

func (m *mockCounter) CountAutomatic(ctx context.Context, orgID string) (int, error) {
	args := m.Called(ctx, orgID)
	return args.Int(0), args.Error(1)
}

var gateNow = time.Date(2026, 7, 7, 12, 0, 0, 0, time.UTC)

func orgOnPlan(plan types.PlanTier, status types.SubscriptionStatus) *types.Organization {
	return &types.Organization{
		ID:                 "org_1",
		Plan:               plan,
		SubscriptionStatus: status,
	}
}

func assertCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, code, appErr.Code)
}

func TestCheckAutomation_ActivePaidPlanAllowed(t *testing.T) {
	g := NewSubscriptionGate(nil, nil, nil)
	assert.NoError(t, g.CheckAutomation(orgOnPlan(types.PlanPro, types.SubStatusActive), gateNow))
	assert.NoError(t, g.CheckAutomation(orgOnPlan(types.PlanStarter, types.SubStatusTrialing), gateNow))
}

func TestCheckAutomation_FreeTierBlocked(t *testing.T) {
	g := NewSubscriptionGate(nil, nil, nil)
	err := g.CheckAutomation(orgOnPlan(types.PlanFree, types.SubStatusActive), gateNow)
	require.Error(t, err)
	assertCode(t, err, types.ErrCodeLimitAutomation)
}

func TestCheckAutomation_PastDueWithinGraceAllowed(t *testing.T) {
	g := NewSubscriptionGate(nil, nil, nil)

	org := orgOnPlan(types.PlanPro, types.SubStatusPastDue)
	failedAt := gateNow.Add(-3 * 24 * time.Hour)
	org.PaymentFailedAt = &failedAt

	assert.NoError(t, g.CheckAutomation(org, gateNow))
}

func TestCheckAutomation_PastDueBeyondGraceBlocked(t *testing.T) {
	g := NewSubscriptionGate(nil, nil, nil)

	org := orgOnPlan(types.PlanPro, types.SubStatusPastDue)
	failedAt := gateNow.Add(-8 * 24 * time.Hour)
	org.PaymentFailedAt = &failedAt

	err := g.CheckAutomation(org, gateNow)
	require.Error(t, err)
	assertCode(t, err, types.ErrCodeLimitAutomation)
}

func TestCheckAutomation_UnpaidAndCanceledBlocked(t *testing.T) {
	g := NewSubscriptionGate(nil, nil, nil)

	for _, status := range []types.SubscriptionStatus{types.SubStatusUnpaid, types.SubStatusCanceled} {
		err := g.CheckAutomation(orgOnPlan(types.PlanPro, status), gateNow)
		require.Error(t, err, string(status))
		assertCode(t, err, types.ErrCodeLimitAutomation)
	}
}

func TestCheckClientCreate_UnderLimitAllowed(t *testing.T) {
	clients := new(mockCounter)
	clients.On("CountActive", mock.Anything, "org_1").Return(49, nil)

	g := NewSubscriptionGate(clients, nil, nil)
	assert.NoError(t, g.CheckClientCreate(context.Background(), orgOnPlan(types.PlanFree, types.SubStatusActive)))
}

func TestCheckClientCreate_AtLimitBlocked(t *testing.T) {
	clients := new(mockCounter)
	clients.On("CountActive", mock.Anything, "org_1").Return(50, nil)

	g := NewSubscriptionGate(clients, nil, nil)
	err := g.CheckClientCreate(context.Background(), orgOnPlan(types.PlanFree, types.SubStatusActive))
	require.Error(t, err)
	assertCode(t, err, types.ErrCodeLimitClients)
}

func TestCheckClientCreate_UnlimitedPlanSkipsCount(t *testing.T) {
	g := NewSubscriptionGate(nil, nil, nil)
	// Business tier is unlimited; the counter must not be consulted.
	assert.NoError(t, g.CheckClientCreate(context.Background(), orgOnPlan(types.PlanBusiness, types.SubStatusActive)))
}

func TestCheckRuleCreate_ManualRuleAlwaysAllowed(t *testing.T) {
	g := NewSubscriptionGate(nil, nil, nil)
	rule := &types.BillingRule{Type: types.RuleManual}
	assert.NoError(t, g.CheckRuleCreate(context.Background(), orgOnPlan(types.PlanFree, types.SubStatusActive), rule))
}

func TestCheckRuleCreate_AutomaticOnFreeTierBlocked(t *testing.T) {
	g := NewSubscriptionGate(nil, nil, nil)
	rule := &types.BillingRule{Type: types.RuleAutomatic}
	err := g.CheckRuleCreate(context.Background(), orgOnPlan(types.PlanFree, types.SubStatusActive), rule)
	require.Error(t, err)
	assertCode(t, err, types.ErrCodeLimitAutomation)
}

func TestCheckRuleCreate_RuleLimitEnforced(t *testing.T) {
	rules := new(mockCounter)
	rules.On("CountAutomatic", mock.Anything, "org_1").Return(5, nil)

	g := NewSubscriptionGate(nil, rules, nil)
	rule := &types.BillingRule{Type: types.RuleAutomatic}
	err := g.CheckRuleCreate(context.Background(), orgOnPlan(types.PlanStarter, types.SubStatusActive), rule)
	require.Error(t, err)
	assertCode(t, err, types.ErrCodeLimitRules)
}

func TestCheckRuleCreate_CounterErrorPropagates(t *testing.T) {
	rules := new(mockCounter)
	dbErr := types.NewAppError(types.ErrCodeInternalDB, "connection lost", nil)
	rules.On("CountAutomatic", mock.Anything, "org_1").Return(0, dbErr)

	g := NewSubscriptionGate(nil, rules, nil)
	rule := &types.BillingRule{Type: types.RuleAutomatic}
	err := g.CheckRuleCreate(context.Background(), orgOnPlan(types.PlanStarter, types.SubStatusActive), rule)
	assertCode(t, err, types.ErrCodeInternalDB)
}

func TestCheckRuleCreate_FreeTierNeverConsultsCounter(t *testing.T) {
	rules := new(mockCounter)
	g := NewSubscriptionGate(nil, rules, nil)

	rule := &types.BillingRule{Type: types.RuleAutomatic}
	err := g.CheckRuleCreate(context.Background(), orgOnPlan(types.PlanFree, types.SubStatusActive), rule)
	require.Error(t, err)
	assertCode(t, err, types.ErrCodeLimitAutomation)
	rules.AssertNotCalled(t, "CountAutomatic", mock.Anything, mock.Anything)
}

func TestLimitsFor_UnknownPlanFallsBackToFree(t *testing.T) {
	limits := LimitsFor(types.PlanTier("enterprise"))
	assert.Equal(t, LimitsFor(types.PlanFree), limits)
	assert.False(t, limits.AllowAutomation)
}
