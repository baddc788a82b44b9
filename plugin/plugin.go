// Package plugin lets extensions observe billing lifecycle events.
// Hooks run after the triggering operation has committed; a failing or slow
// hook is logged and never changes the operation's result.
package plugin

import (
	"context"
	"io"

	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/usage"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *telstar.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Catalog hooks
// ──────────────────────────────────────────────────

type OnPlanCreated interface {
	Plugin
	OnPlanCreated(ctx context.Context, p *plan.Plan) error
}

// OnPlanRetired is called when a plan is replaced by a new plan of the same name.
type OnPlanRetired interface {
	Plugin
	OnPlanRetired(ctx context.Context, retired, replacement *plan.Plan) error
}

// ──────────────────────────────────────────────────
// Customer and subscription hooks
// ──────────────────────────────────────────────────

type OnCustomerRegistered interface {
	Plugin
	OnCustomerRegistered(ctx context.Context, c *customer.Customer) error
}

type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionChanged is called when an enrollment supersedes an active
// subscription. previous is the superseded record.
type OnSubscriptionChanged interface {
	Plugin
	OnSubscriptionChanged(ctx context.Context, previous, current *subscription.Subscription) error
}

type OnUsageRecorded interface {
	Plugin
	OnUsageRecorded(ctx context.Context, r *usage.Record) error
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

type OnInvoiceGenerated interface {
	Plugin
	OnInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoicePaid fires for settled postpaid invoices and for prepaid
// invoices, which are created paid.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceFailed is called when invoice generation is rejected, e.g. for
// an insufficient prepaid balance.
type OnInvoiceFailed interface {
	Plugin
	OnInvoiceFailed(ctx context.Context, sub *subscription.Subscription, err error) error
}

// ──────────────────────────────────────────────────
// Extension points
// ──────────────────────────────────────────────────

// InvoiceFormatter renders an invoice statement into a document format.
type InvoiceFormatter interface {
	Plugin
	Format() string
	ContentType() string
	Render(ctx context.Context, st *invoice.Statement, w io.Writer) error
}
