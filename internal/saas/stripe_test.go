package saas

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revenda/internal/config"
	"revenda/internal/types"
)

func newTestStripeClient(serverURL string) *StripeClient {
	return NewStripeClient(config.BillingConfig{
		StripeSecretKey: types.SecretString("sk_test_123"),
	}, nil, WithStripeBaseURL(serverURL))
}

func TestStripeClient_CreateCheckoutSession(t *testing.T) {
	var gotForm map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "cs_1", "url": "https://checkout.stripe.com/cs_1"}`))
	}))
	defer server.Close()

	c := newTestStripeClient(server.URL)
	checkoutURL, sessionID, err := c.CreateCheckoutSession(
		context.Background(), "cus_1", "org_1", types.PlanPro,
		"https://painel.example/ok", "https://painel.example/cancel",
	)
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.stripe.com/cs_1", checkoutURL)
	assert.Equal(t, "cs_1", sessionID)
	assert.Equal(t, "org_1", gotForm["client_reference_id"][0])
	assert.Equal(t, "price_pro", gotForm["line_items[0][price]"][0])
	assert.Equal(t, "pro", gotForm["metadata[plan]"][0])
}

func TestStripeClient_CreateCheckoutSession_UnknownPlan(t *testing.T) {
	c := newTestStripeClient("http://unused")
	_, _, err := c.CreateCheckoutSession(
		context.Background(), "cus_1", "org_1", types.PlanFree, "s", "c",
	)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
}

func TestStripeClient_GetSubscription_MapsPlanAndPeriod(t *testing.T) {
	periodStart := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cus_1", r.URL.Query().Get("customer"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [{
			"status": "active",
			"cancel_at_period_end": true,
			"current_period_start": 1782864000,
			"current_period_end": 1785542400,
			"items": {"data": [{"price": {"id": "price_business"}}]}
		}]}`))
	}))
	defer server.Close()

	c := newTestStripeClient(server.URL)
	details, err := c.GetSubscription(context.Background(), "cus_1")
	require.NoError(t, err)

	assert.Equal(t, types.PlanBusiness, details.Plan)
	assert.Equal(t, types.SubStatusActive, details.Status)
	assert.True(t, details.CancelAtPeriodEnd)
	assert.Equal(t, periodStart, details.CurrentPeriodStart)
	assert.Equal(t, periodEnd, details.CurrentPeriodEnd)
}

func TestStripeClient_GetSubscription_NoSubscriptionMeansFreeTier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	c := newTestStripeClient(server.URL)
	details, err := c.GetSubscription(context.Background(), "cus_1")
	require.NoError(t, err)

	assert.Equal(t, types.PlanFree, details.Plan)
	assert.Equal(t, types.SubStatusActive, details.Status)
}

func TestStripeClient_ErrorResponseMapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"type": "invalid_request_error", "code": "resource_missing", "message": "No such customer"}}`))
	}))
	defer server.Close()

	c := newTestStripeClient(server.URL)
	_, err := c.CreatePortalSession(context.Background(), "cus_missing", "https://painel.example")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamStripe, appErr.Code)
	assert.Contains(t, appErr.Message, "No such customer")
}
