package saas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"revenda/internal/config"
	"revenda/internal/messaging"
	"revenda/internal/types"
)

// stripeAPIBase is the default Stripe API base URL, overridable in tests.
const stripeAPIBase = "https://api.stripe.com"

// StripeClient talks to the Stripe REST API directly over a
// ResilientClient, so Stripe outages hit the same circuit breaker and
// retry policy as the message gateway. The stripe-go library is used for
// its API version pin and webhook verification, not its transport.
type StripeClient struct {
	client    *messaging.ResilientClient
	secretKey types.SecretString
	baseURL   string
	logger    *slog.Logger
}

// StripeOption customizes a StripeClient.
type StripeOption func(*StripeClient)

// WithStripeBaseURL overrides the API base URL, for httptest servers.
func WithStripeBaseURL(baseURL string) StripeOption {
	return func(c *StripeClient) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// NewStripeClient creates a Stripe API client from billing configuration.
func NewStripeClient(cfg config.BillingConfig, logger *slog.Logger, opts ...StripeOption) *StripeClient {
	if logger == nil {
		logger = slog.Default()
	}

	c := &StripeClient{
		client: messaging.NewResilientClient(
			&http.Client{Timeout: 20 * time.Second},
			"stripe",
			messaging.RetryPolicy{
				MaxRetries: 2,
				MinWait:    500 * time.Millisecond,
				MaxWait:    5 * time.Second,
			},
		),
		secretKey: cfg.StripeSecretKey,
		baseURL:   stripeAPIBase,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateCheckoutSession builds a subscription checkout session for the
// tenant. The org ID travels as client_reference_id and metadata so the
// webhook can correlate the completed session back to the tenant.
func (c *StripeClient) CreateCheckoutSession(
	ctx context.Context,
	customerID, orgID string,
	plan types.PlanTier,
	successURL, cancelURL string,
) (checkoutURL string, sessionID string, err error) {
	priceID, ok := PlanToPrice[plan]
	if !ok {
		return "", "", types.NewAppError(
			types.ErrCodeValidationMissingField,
			fmt.Sprintf("plan %s has no checkout price", plan),
			nil,
		)
	}

	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("mode", "subscription")
	params.Set("client_reference_id", orgID)
	params.Set("success_url", successURL)
	params.Set("cancel_url", cancelURL)
	params.Set("metadata[org_id]", orgID)
	params.Set("metadata[plan]", string(plan))
	params.Set("line_items[0][price]", priceID)
	params.Set("line_items[0][quantity]", "1")

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := c.doPost(ctx, "/v1/checkout/sessions", params, &session); err != nil {
		return "", "", err
	}
	return session.URL, session.ID, nil
}

// CreatePortalSession builds a billing portal session for subscription
// self-management.
func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("return_url", returnURL)

	var session struct {
		URL string `json:"url"`
	}
	if err := c.doPost(ctx, "/v1/billing_portal/sessions", params, &session); err != nil {
		return "", err
	}
	return session.URL, nil
}

// GetSubscription fetches the tenant's current subscription. A customer
// with no subscription maps to an active free tier.
func (c *StripeClient) GetSubscription(ctx context.Context, customerID string) (*types.SubscriptionDetails, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("limit", "1")

	var list struct {
		Data []struct {
			Status             string   `json:"status"`
			CancelAtPeriodEnd  bool     `json:"cancel_at_period_end"`
			CurrentPeriodStart int64    `json:"current_period_start"`
			CurrentPeriodEnd   int64    `json:"current_period_end"`
			Items              subItems `json:"items"`
		} `json:"data"`
	}
	if err := c.doGet(ctx, "/v1/subscriptions", params, &list); err != nil {
		return nil, err
	}

	if len(list.Data) == 0 {
		return &types.SubscriptionDetails{
			Plan:   types.PlanFree,
			Status: types.SubStatusActive,
		}, nil
	}

	sub := list.Data[0]
	details := &types.SubscriptionDetails{
		Plan:               types.PlanFree,
		Status:             mapSubscriptionStatus(sub.Status),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	}
	if len(sub.Items.Data) > 0 {
		if plan, ok := PriceToPlan[sub.Items.Data[0].Price.ID]; ok {
			details.Plan = plan
		}
	}
	return details, nil
}

func (c *StripeClient) doGet(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build Stripe request", err)
	}
	return c.do(req, out)
}

func (c *StripeClient) doPost(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build Stripe request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *StripeClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.secretKey.Unmask())
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe, "failed to read Stripe response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return mapStripeErrorResponse(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode Stripe response", err)
	}
	return nil
}

// mapStripeErrorResponse translates a non-200 Stripe reply into an
// AppError. 429 and 5xx never reach here; the ResilientClient retries and
// maps those itself.
func mapStripeErrorResponse(statusCode int, body []byte) error {
	var parsed struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &parsed)

	msg := parsed.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("Stripe returned status %d", statusCode)
	}

	if statusCode == http.StatusNotFound {
		return types.NewAppError(types.ErrCodeNotFoundOrg, msg, nil)
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamStripe,
		msg,
		nil,
		map[string]any{"stripe_code": parsed.Error.Code, "status": statusCode},
	)
}
