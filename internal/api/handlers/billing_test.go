package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revenda/internal/core"
	"revenda/internal/types"
)

type mockBillingService struct {
	checkoutFn func(ctx context.Context, customerID, orgID string, plan types.PlanTier, successURL, cancelURL string) (string, string, error)
	portalFn   func(ctx context.Context, customerID, returnURL string) (string, error)
	getSubFn   func(ctx context.Context, customerID string) (*types.SubscriptionDetails, error)

	getSubCalled bool
}

func (m *mockBillingService) CreateCheckoutSession(ctx context.Context, customerID, orgID string, plan types.PlanTier, successURL, cancelURL string) (string, string, error) {
	if m.checkoutFn != nil {
		return m.checkoutFn(ctx, customerID, orgID, plan, successURL, cancelURL)
	}
	return "https://checkout.stripe.com/cs_1", "cs_1", nil
}

func (m *mockBillingService) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if m.portalFn != nil {
		return m.portalFn(ctx, customerID, returnURL)
	}
	return "https://billing.stripe.com/p_1", nil
}

func (m *mockBillingService) GetSubscription(ctx context.Context, customerID string) (*types.SubscriptionDetails, error) {
	m.getSubCalled = true
	if m.getSubFn != nil {
		return m.getSubFn(ctx, customerID)
	}
	return &types.SubscriptionDetails{Plan: types.PlanPro, Status: types.SubStatusActive}, nil
}

func newTestBillingHandler(org *types.Organization) (*BillingHandler, *mockBillingService) {
	svc := &mockBillingService{}
	h := NewBillingHandler(svc, &mockOrgGetter{org: org}, core.NewValidator(), nil)
	return h, svc
}

func paidOrg() *types.Organization {
	return &types.Organization{
		ID:                 testOrgID,
		Name:               "Test Org",
		Plan:               types.PlanPro,
		SubscriptionStatus: types.SubStatusActive,
		StripeCustomerID:   "cus_1",
	}
}

func TestBillingHandler_GetSubscription(t *testing.T) {
	h, svc := newTestBillingHandler(paidOrg())

	periodEnd := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	svc.getSubFn = func(_ context.Context, customerID string) (*types.SubscriptionDetails, error) {
		assert.Equal(t, "cus_1", customerID)
		return &types.SubscriptionDetails{
			Plan:             types.PlanPro,
			Status:           types.SubStatusActive,
			CurrentPeriodEnd: periodEnd,
		}, nil
	}

	w := serve(t, h, httptest.NewRequest(http.MethodGet, "/billing/subscription", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp SubscriptionResponse
	decodeData(t, w, &resp)
	assert.Equal(t, types.PlanPro, resp.Plan)
	assert.Equal(t, 1500, resp.PlanLimits.MaxClients)
	require.NotNil(t, resp.Provider)
	assert.Equal(t, periodEnd, resp.Provider.CurrentPeriodEnd)
}

func TestBillingHandler_GetSubscription_FreeTierSkipsProvider(t *testing.T) {
	h, svc := newTestBillingHandler(&types.Organization{
		ID:                 testOrgID,
		Plan:               types.PlanFree,
		SubscriptionStatus: types.SubStatusActive,
	})

	w := serve(t, h, httptest.NewRequest(http.MethodGet, "/billing/subscription", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, svc.getSubCalled)

	var resp SubscriptionResponse
	decodeData(t, w, &resp)
	assert.Equal(t, types.PlanFree, resp.Plan)
	assert.False(t, resp.PlanLimits.AllowAutomation)
	assert.Nil(t, resp.Provider)
}

func TestBillingHandler_CreateCheckout(t *testing.T) {
	h, svc := newTestBillingHandler(paidOrg())

	var gotPlan types.PlanTier
	svc.checkoutFn = func(_ context.Context, customerID, orgID string, plan types.PlanTier, successURL, cancelURL string) (string, string, error) {
		assert.Equal(t, "cus_1", customerID)
		assert.Equal(t, testOrgID, orgID)
		gotPlan = plan
		return "https://checkout.stripe.com/cs_9", "cs_9", nil
	}

	w := serve(t, h, jsonRequest(t, http.MethodPost, "/billing/checkout", CheckoutRequest{
		Plan:       "business",
		SuccessURL: "https://painel.example/ok",
		CancelURL:  "https://painel.example/cancel",
	}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.PlanBusiness, gotPlan)

	var resp CheckoutResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "https://checkout.stripe.com/cs_9", resp.CheckoutURL)
	assert.Equal(t, "cs_9", resp.SessionID)
}

func TestBillingHandler_CreateCheckout_RejectsFreePlan(t *testing.T) {
	h, _ := newTestBillingHandler(paidOrg())

	w := serve(t, h, jsonRequest(t, http.MethodPost, "/billing/checkout", CheckoutRequest{
		Plan:       "free",
		SuccessURL: "https://painel.example/ok",
		CancelURL:  "https://painel.example/cancel",
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBillingHandler_CreatePortal(t *testing.T) {
	h, _ := newTestBillingHandler(paidOrg())

	w := serve(t, h, jsonRequest(t, http.MethodPost, "/billing/portal", PortalRequest{
		ReturnURL: "https://painel.example",
	}))

	require.Equal(t, http.StatusOK, w.Code)

	var resp PortalResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "https://billing.stripe.com/p_1", resp.PortalURL)
}

func TestBillingHandler_CreatePortal_NoBillingAccount(t *testing.T) {
	h, _ := newTestBillingHandler(&types.Organization{
		ID:   testOrgID,
		Plan: types.PlanFree,
	})

	w := serve(t, h, jsonRequest(t, http.MethodPost, "/billing/portal", PortalRequest{
		ReturnURL: "https://painel.example",
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
