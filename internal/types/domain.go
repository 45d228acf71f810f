package types

import "time"

// Client is a snapshot of one IPTV subscriber as the rule engine sees it.
// The matcher treats it as read-only; mutation happens only through the
// client repository.
type Client struct {
	ID             string       `json:"id" db:"id"`
	OrganizationID string       `json:"organization_id" db:"organization_id"`
	Name           string       `json:"name" db:"name"`
	Phone          string       `json:"phone" db:"phone"`
	Status         ClientStatus `json:"status" db:"status"`

	// ExpiresAt is the subscription expiration date. Only the calendar day
	// is meaningful; time-of-day is truncated before any comparison.
	// Nil is a legitimate state (lifetime plans) and makes every gate that
	// needs an expiration fail quietly.
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`

	// Catalog references. Each may be absent.
	PlanID          *string `json:"plan_id,omitempty" db:"plan_id"`
	ServerID        *string `json:"server_id,omitempty" db:"server_id"`
	DeviceID        *string `json:"device_id,omitempty" db:"device_id"`
	ApplicationID   *string `json:"application_id,omitempty" db:"application_id"`
	PaymentMethodID *string `json:"payment_method_id,omitempty" db:"payment_method_id"`
	LeadSourceID    *string `json:"lead_source_id,omitempty" db:"lead_source_id"`

	// Hydrated display names for template rendering (joined, not stored).
	PlanName string `json:"plan_name,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BillingRule is an administrator-configured rule that decides when a
// billing or reminder message is sent to a client.
type BillingRule struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	Name           string `json:"name" db:"name"`

	ClientStatus RuleClientStatus `json:"client_status" db:"client_status"`
	Type         RuleType         `json:"type" db:"type"`

	// Filter sets. An empty or nil set means the dimension is unrestricted.
	PlanIDs          []string `json:"plan_ids,omitempty" db:"plan_ids"`
	ServerIDs        []string `json:"server_ids,omitempty" db:"server_ids"`
	ApplicationIDs   []string `json:"application_ids,omitempty" db:"application_ids"`
	DeviceIDs        []string `json:"device_ids,omitempty" db:"device_ids"`
	LeadSourceIDs    []string `json:"lead_source_ids,omitempty" db:"lead_source_ids"`
	PaymentMethodIDs []string `json:"payment_method_ids,omitempty" db:"payment_method_ids"`

	MessageTemplateID string `json:"message_template_id" db:"message_template_id"`

	// Automatic-only fields. Required when Type is RuleAutomatic.
	AutomaticType AutomaticType `json:"automatic_type,omitempty" db:"automatic_type"`
	Days          *int          `json:"days,omitempty" db:"days"`
	StartDay      *int          `json:"start_day,omitempty" db:"start_day"`
	EndDay        *int          `json:"end_day,omitempty" db:"end_day"`

	Enabled   bool      `json:"enabled" db:"enabled"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FilterSets returns the configured filter dimensions paired with the
// client field they constrain. Order is stable and matches the panel's
// rule form.
func (r *BillingRule) FilterSets(c *Client) []FilterGate {
	return []FilterGate{
		{Dimension: FilterPlans, Allowed: r.PlanIDs, ClientValue: c.PlanID},
		{Dimension: FilterServers, Allowed: r.ServerIDs, ClientValue: c.ServerID},
		{Dimension: FilterApplications, Allowed: r.ApplicationIDs, ClientValue: c.ApplicationID},
		{Dimension: FilterDevices, Allowed: r.DeviceIDs, ClientValue: c.DeviceID},
		{Dimension: FilterLeadSources, Allowed: r.LeadSourceIDs, ClientValue: c.LeadSourceID},
		{Dimension: FilterPaymentMethods, Allowed: r.PaymentMethodIDs, ClientValue: c.PaymentMethodID},
	}
}

// FilterGate pairs one rule filter set with the client identifier it gates.
type FilterGate struct {
	Dimension   FilterDimension
	Allowed     []string
	ClientValue *string
}

// MessageTemplate is the text sent when a rule fires. The body uses
// {{variable}} placeholders resolved from the client snapshot at dispatch
// time.
type MessageTemplate struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	Body           string    `json:"body" db:"body"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// DispatchRecord tracks one send instruction from creation through delivery.
// The (rule, client, window_key) triple is unique and is what makes repeat
// evaluation of monthly-window rules idempotent.
type DispatchRecord struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organization_id" db:"organization_id"`
	ClientID       string         `json:"client_id" db:"client_id"`
	RuleID         string         `json:"rule_id" db:"rule_id"`
	TemplateID     string         `json:"template_id" db:"template_id"`
	WindowKey      string         `json:"window_key" db:"window_key"`
	Reason         DispatchReason `json:"reason" db:"reason"`
	Status         DispatchStatus `json:"status" db:"status"`
	AttemptCount   int            `json:"attempt_count" db:"attempt_count"`
	ProviderMsgID  string         `json:"provider_message_id,omitempty" db:"provider_message_id"`
	FailureReason  string         `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty" db:"delivered_at"`
}

// Organization is a reseller tenant of the panel.
type Organization struct {
	ID                      string             `json:"id" db:"id"`
	Name                    string             `json:"name" db:"name"`
	Plan                    PlanTier           `json:"plan" db:"plan"`
	SubscriptionStatus      SubscriptionStatus `json:"subscription_status" db:"subscription_status"`
	StripeCustomerID        string             `json:"-" db:"stripe_customer_id"`
	LastSubscriptionEventAt *time.Time         `json:"-" db:"last_subscription_event_at"`
	PaymentFailedAt         *time.Time         `json:"-" db:"payment_failed_at"`
	CreatedAt               time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at" db:"updated_at"`
	DeletedAt               *time.Time         `json:"-" db:"deleted_at"`
}

// PlanLimits defines what a SaaS tier allows.
type PlanLimits struct {
	MaxClients      int  `json:"max_clients"`       // 0 = unlimited
	MaxActiveRules  int  `json:"max_active_rules"`  // 0 = unlimited
	AllowAutomation bool `json:"allow_automation"`
}

// SubscriptionDetails abstracts the payment provider's subscription object.
type SubscriptionDetails struct {
	Plan               PlanTier           `json:"plan"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
}

// DispatchMessage is the SQS payload sent from the billing runner to the
// message worker. This is the contract between the two Lambdas; change it
// only with both sides in the same deploy.
type DispatchMessage struct {
	DispatchID     string         `json:"dispatch_id"`
	OrganizationID string         `json:"organization_id"`
	ClientID       string         `json:"client_id"`
	RuleID         string         `json:"rule_id"`
	TemplateID     string         `json:"template_id"`
	Reason         DispatchReason `json:"reason"`
	TraceID        string         `json:"trace_id"`
	RetryCount     int            `json:"retry_count"`
	EnqueuedAt     time.Time      `json:"enqueued_at"`
}

// DeliveryResult is the outcome of one gateway send attempt.
type DeliveryResult struct {
	ProviderMessageID string
	Status            string
	FailureReason     string
	Retryable         bool
}

// RunReport summarizes one billing run for logging and the run-trigger API.
type RunReport struct {
	RunID             string    `json:"run_id"`
	Date              time.Time `json:"date"`
	ClientsEvaluated  int       `json:"clients_evaluated"`
	RulesMatched      int       `json:"rules_matched"`
	DispatchesCreated int       `json:"dispatches_created"`
	SkippedDedup      int       `json:"skipped_dedup"`
	RuleConfigErrors  int       `json:"rule_config_errors"`
	DryRun            bool      `json:"dry_run"`
}
