// Package store defines the persistence contract the billing engine runs on.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/usage"
)

// Store is the unified storage interface for all TELSTAR records.
// Methods are declared explicitly rather than by embedding the per-record
// interfaces so that every backend's method set reads in one place.
//
// Not-found lookups return the matching telstar sentinel (ErrPlanNotFound,
// ErrCustomerNotFound, ...). Unique violations return telstar.ErrAlreadyExists.
// Any other failure is returned as the driver reported it.
type Store interface {
	// Plan methods
	CreatePlan(ctx context.Context, p *plan.Plan) error
	GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error)
	GetActivePlanByName(ctx context.Context, name string) (*plan.Plan, error)
	ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error)
	RetirePlan(ctx context.Context, planID id.PlanID) error

	// Customer methods
	CreateCustomer(ctx context.Context, c *customer.Customer) error
	GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*customer.Customer, error)
	LockCustomer(ctx context.Context, customerID id.CustomerID) error

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	GetActiveSubscription(ctx context.Context, customerID id.CustomerID) (*subscription.Subscription, error)
	ListSubscriptions(ctx context.Context, customerID id.CustomerID, opts subscription.ListOpts) ([]*subscription.Subscription, error)
	SupersedeSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error
	UpdateSubscriptionBalance(ctx context.Context, s *subscription.Subscription) error

	// Invoice methods
	CreateInvoice(ctx context.Context, inv *invoice.Invoice) error
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error)
	ListInvoices(ctx context.Context, customerID id.CustomerID, opts invoice.ListOpts) ([]*invoice.Invoice, error)
	MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time) error

	// Usage methods
	RecordUsage(ctx context.Context, r *usage.Record) error
	SumUsage(ctx context.Context, subID id.SubscriptionID, from, to time.Time) (decimal.Decimal, error)

	// Transaction runs fn atomically. The transaction travels in the context
	// passed to fn; store calls made with that context join it. A nested call
	// with a context that already carries a transaction runs fn inline.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time checks that the per-record contracts stay in sync.
var (
	_ plan.Store         = Store(nil)
	_ customer.Store     = Store(nil)
	_ subscription.Store = Store(nil)
	_ invoice.Store      = Store(nil)
	_ usage.Store        = Store(nil)
)
