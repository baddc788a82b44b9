package audithook

// Action constants for audit events.
const (
	// Catalog actions
	ActionPlanCreated = "plan.created"
	ActionPlanRetired = "plan.retired"

	// Customer actions
	ActionCustomerRegistered = "customer.registered"

	// Subscription actions
	ActionSubscriptionCreated    = "subscription.created"
	ActionSubscriptionSuperseded = "subscription.superseded"

	// Usage actions
	ActionUsageRecorded = "usage.recorded"

	// Invoice actions
	ActionInvoiceGenerated = "invoice.generated"
	ActionInvoicePaid      = "invoice.paid"
	ActionInvoiceFailed    = "invoice.failed"
)

// Resource constants for audit events.
const (
	ResourcePlan         = "plan"
	ResourceCustomer     = "customer"
	ResourceSubscription = "subscription"
	ResourceUsage        = "usage"
	ResourceInvoice      = "invoice"
)

// Category constants for audit events.
const (
	CategoryCatalog      = "catalog"
	CategoryAccount      = "account"
	CategorySubscription = "subscription"
	CategoryUsage        = "usage"
	CategoryPayment      = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
