package saas

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"revenda/internal/types"
)

// Stripe webhook event types the processor handles.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventSubUpdated        = "customer.subscription.updated"
	EventSubDeleted        = "customer.subscription.deleted"
	EventInvoicePaid       = "invoice.paid"
	EventPaymentFailed     = "invoice.payment_failed"
)

// WebhookVerifier checks a webhook payload against its signature header.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}

// StripeVerifier verifies webhook signatures with stripe-go's HMAC-SHA256
// validation, including timestamp tolerance.
type StripeVerifier struct{}

// Verify validates the payload against the Stripe-Signature header.
func (StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}

// SubscriptionStateStore is the subset of the organization repository the
// event processor writes through.
type SubscriptionStateStore interface {
	UpdateSubscriptionStatus(ctx context.Context, orgID string, newPlan types.PlanTier, status types.SubscriptionStatus, eventTimestamp time.Time) error
	UpdatePaymentFailure(ctx context.Context, orgID string, failedAt time.Time) error
	ClearPaymentFailure(ctx context.Context, orgID string) error
}

// EventProcessor applies verified Stripe webhook events to local billing
// state. Ordering and duplicates are handled by the store's optimistic
// lock, so the processor itself stays stateless.
type EventProcessor struct {
	orgs   SubscriptionStateStore
	logger *slog.Logger
}

// NewEventProcessor creates an EventProcessor.
func NewEventProcessor(orgs SubscriptionStateStore, logger *slog.Logger) *EventProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventProcessor{orgs: orgs, logger: logger}
}

// WebhookEvent is a minimal view of a Stripe event: just the fields needed
// to route it and resolve the tenant. Keeping our own struct instead of
// stripe.Event makes the handler testable with plain JSON fixtures.
type WebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

// ParseWebhookEvent decodes a raw (already verified) webhook payload.
func ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "invalid webhook event JSON", err)
	}
	return &event, nil
}

// Timestamp returns the event creation time.
func (e *WebhookEvent) Timestamp() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

// Process routes one event to its handler. Unknown event types are logged
// and acknowledged; the webhook endpoint must not make Stripe retry them.
func (p *EventProcessor) Process(ctx context.Context, event *WebhookEvent) error {
	switch event.Type {
	case EventCheckoutCompleted:
		return p.handleCheckoutCompleted(ctx, event)
	case EventSubUpdated, EventSubDeleted:
		return p.handleSubscriptionChange(ctx, event)
	case EventInvoicePaid:
		return p.handleInvoicePaid(ctx, event)
	case EventPaymentFailed:
		return p.handlePaymentFailed(ctx, event)
	default:
		p.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			slog.String("event_type", event.Type),
		)
		return nil
	}
}

func (p *EventProcessor) handleCheckoutCompleted(ctx context.Context, event *WebhookEvent) error {
	session, err := decodeObject[checkoutSessionObj](event)
	if err != nil {
		return err
	}

	orgID := session.ClientReferenceID
	if orgID == "" {
		orgID = session.Metadata["org_id"]
	}
	if orgID == "" {
		return fmt.Errorf("%s: missing org_id in event %s", event.Type, event.ID)
	}

	plan := types.PlanTier(session.Metadata["plan"])
	if _, known := planRegistry[plan]; !known {
		plan = types.PlanFree
	}

	p.logger.InfoContext(ctx, "checkout completed",
		slog.String("event_id", event.ID),
		slog.String("org_id", orgID),
		slog.String("plan", string(plan)),
	)

	return p.orgs.UpdateSubscriptionStatus(ctx, orgID, plan, types.SubStatusActive, event.Timestamp())
}

func (p *EventProcessor) handleSubscriptionChange(ctx context.Context, event *WebhookEvent) error {
	sub, err := decodeObject[subscriptionObj](event)
	if err != nil {
		return err
	}

	orgID := sub.Metadata["org_id"]
	if orgID == "" {
		return fmt.Errorf("%s: missing org_id in event %s", event.Type, event.ID)
	}

	plan := types.PlanFree
	status := types.SubStatusCanceled
	if event.Type == EventSubUpdated {
		status = mapSubscriptionStatus(sub.Status)
		if len(sub.Items.Data) > 0 {
			if mapped, ok := PriceToPlan[sub.Items.Data[0].Price.ID]; ok {
				plan = mapped
			}
		}
	}

	p.logger.InfoContext(ctx, "subscription state changed",
		slog.String("event_id", event.ID),
		slog.String("org_id", orgID),
		slog.String("plan", string(plan)),
		slog.String("status", string(status)),
	)

	return p.orgs.UpdateSubscriptionStatus(ctx, orgID, plan, status, event.Timestamp())
}

func (p *EventProcessor) handleInvoicePaid(ctx context.Context, event *WebhookEvent) error {
	invoice, err := decodeObject[invoiceObj](event)
	if err != nil {
		return err
	}

	orgID := invoice.orgID()
	if orgID == "" {
		return fmt.Errorf("%s: missing org_id in event %s", event.Type, event.ID)
	}

	p.logger.InfoContext(ctx, "invoice paid; clearing dunning state",
		slog.String("event_id", event.ID),
		slog.String("org_id", orgID),
	)

	return p.orgs.ClearPaymentFailure(ctx, orgID)
}

func (p *EventProcessor) handlePaymentFailed(ctx context.Context, event *WebhookEvent) error {
	invoice, err := decodeObject[invoiceObj](event)
	if err != nil {
		return err
	}

	orgID := invoice.orgID()
	if orgID == "" {
		return fmt.Errorf("%s: missing org_id in event %s", event.Type, event.ID)
	}

	p.logger.WarnContext(ctx, "invoice payment failed; recording dunning state",
		slog.String("event_id", event.ID),
		slog.String("org_id", orgID),
	)

	return p.orgs.UpdatePaymentFailure(ctx, orgID, event.Timestamp())
}

// --- event payload shapes ---

type eventData struct {
	Object json.RawMessage `json:"object"`
}

func decodeObject[T any](event *WebhookEvent) (*T, error) {
	var data eventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, fmt.Errorf("%s: malformed event data in %s: %w", event.Type, event.ID, err)
	}
	var obj T
	if err := json.Unmarshal(data.Object, &obj); err != nil {
		return nil, fmt.Errorf("%s: malformed event object in %s: %w", event.Type, event.ID, err)
	}
	return &obj, nil
}

type checkoutSessionObj struct {
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type subscriptionObj struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	Items    subItems          `json:"items"`
}

type subItems struct {
	Data []subItem `json:"data"`
}

type subItem struct {
	Price subPrice `json:"price"`
}

type subPrice struct {
	ID string `json:"id"`
}

type invoiceObj struct {
	Metadata            map[string]string `json:"metadata"`
	SubscriptionDetails *subDetails       `json:"subscription_details"`
}

type subDetails struct {
	Metadata map[string]string `json:"metadata"`
}

func (i *invoiceObj) orgID() string {
	if i.SubscriptionDetails != nil {
		if orgID := i.SubscriptionDetails.Metadata["org_id"]; orgID != "" {
			return orgID
		}
	}
	return i.Metadata["org_id"]
}

// mapSubscriptionStatus converts a Stripe status string to the domain enum.
// Stripe's incomplete states collapse to unpaid; the gate treats both the
// same way.
func mapSubscriptionStatus(status string) types.SubscriptionStatus {
	switch status {
	case "active":
		return types.SubStatusActive
	case "trialing":
		return types.SubStatusTrialing
	case "past_due":
		return types.SubStatusPastDue
	case "canceled":
		return types.SubStatusCanceled
	case "unpaid", "incomplete", "incomplete_expired":
		return types.SubStatusUnpaid
	default:
		return types.SubscriptionStatus(status)
	}
}
