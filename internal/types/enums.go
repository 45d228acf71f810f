package types

// ClientStatus represents the subscription state of a client.
type ClientStatus string

const (
	ClientActive   ClientStatus = "active"
	ClientInactive ClientStatus = "inactive"
)

// RuleClientStatus is the status selector configured on a billing rule.
// The values are kept in the panel's original Portuguese form because they
// are persisted and exchanged with the admin UI as-is.
type RuleClientStatus string

const (
	// RuleStatusTodos matches every client regardless of status.
	RuleStatusTodos RuleClientStatus = "TODOS"
	// RuleStatusAtivo matches clients with an active subscription.
	RuleStatusAtivo RuleClientStatus = "ATIVO"
	// RuleStatusVenceHoje matches active clients whose subscription expires today.
	RuleStatusVenceHoje RuleClientStatus = "VENCE_HOJE"
	// RuleStatusVencido matches inactive clients whose expiration is in the past.
	RuleStatusVencido RuleClientStatus = "VENCIDO"
)

// RuleType distinguishes operator-applied rules from scheduled ones.
type RuleType string

const (
	// RuleManual rules are applied on demand by an operator and never
	// fire automatically.
	RuleManual RuleType = "manual"
	// RuleAutomatic rules are evaluated by the daily billing run.
	RuleAutomatic RuleType = "automatic"
)

// AutomaticType selects the trigger model for automatic rules.
type AutomaticType string

const (
	// TriggerDaysBeforeExpiration fires exactly Days calendar days before
	// the client's expiration date. Days=0 fires on the expiration date.
	TriggerDaysBeforeExpiration AutomaticType = "days_before_expiration"
	// TriggerMonthlyDayRange fires on every day of the month within
	// [StartDay, EndDay], independent of the client's expiration date.
	TriggerMonthlyDayRange AutomaticType = "monthly_day_range"
)

// DispatchStatus enumerates the states of a dispatch record.
// These values MUST match the CHECK constraint in the dispatches table.
type DispatchStatus string

const (
	DispatchPending DispatchStatus = "pending"
	DispatchSent    DispatchStatus = "sent"
	DispatchFailed  DispatchStatus = "failed"
	DispatchSkipped DispatchStatus = "skipped"
)

// DispatchReason records why a dispatch was created.
type DispatchReason string

const (
	// DispatchReasonScheduled is the daily automatic billing run.
	DispatchReasonScheduled DispatchReason = "scheduled"
	// DispatchReasonManual is an operator applying a manual rule.
	DispatchReasonManual DispatchReason = "manual"
)

// PlanTier identifies the SaaS plan for a reseller organization.
type PlanTier string

const (
	PlanFree     PlanTier = "free"
	PlanStarter  PlanTier = "starter"
	PlanPro      PlanTier = "pro"
	PlanBusiness PlanTier = "business"
)

// SubscriptionStatus represents the state of the organization's SaaS
// subscription with the payment provider.
type SubscriptionStatus string

const (
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusTrialing SubscriptionStatus = "trialing"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusUnpaid   SubscriptionStatus = "unpaid"
	SubStatusCanceled SubscriptionStatus = "canceled"
)

// FilterDimension names one of the rule's optional filter sets. Used in
// diagnostics and API validation messages.
type FilterDimension string

const (
	FilterPlans          FilterDimension = "plan_ids"
	FilterServers        FilterDimension = "server_ids"
	FilterApplications   FilterDimension = "application_ids"
	FilterDevices        FilterDimension = "device_ids"
	FilterLeadSources    FilterDimension = "lead_source_ids"
	FilterPaymentMethods FilterDimension = "payment_method_ids"
)
