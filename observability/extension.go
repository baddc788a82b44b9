// Package observability provides a metrics extension for TELSTAR that records
// billing lifecycle counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/plugin"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/usage"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnPlanCreated         = (*MetricsExtension)(nil)
	_ plugin.OnPlanRetired         = (*MetricsExtension)(nil)
	_ plugin.OnCustomerRegistered  = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionChanged = (*MetricsExtension)(nil)
	_ plugin.OnUsageRecorded       = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceGenerated    = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid         = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceFailed       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records billing lifecycle metrics.
// Register it as an engine plugin to track catalog, enrollment and invoice
// activity.
type MetricsExtension struct {
	factory MetricFactory

	// Catalog metrics
	PlanCreated Counter
	PlanRetired Counter

	// Customer metrics
	CustomerRegistered Counter

	// Subscription metrics
	SubscriptionCreated  Counter
	SubscriptionChanged  Counter
	SubscriptionPrepaid  Counter
	SubscriptionPostpaid Counter
	UsageRecorded        Counter
	UsageUnits           Histogram

	// Invoice metrics
	InvoiceGenerated Counter
	InvoicePaid      Counter
	InvoiceFailed    Counter
	InvoiceAmount    Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		PlanCreated: factory.Counter("telstar.plan.created"),
		PlanRetired: factory.Counter("telstar.plan.retired"),

		CustomerRegistered: factory.Counter("telstar.customer.registered"),

		SubscriptionCreated:  factory.Counter("telstar.subscription.created"),
		SubscriptionChanged:  factory.Counter("telstar.subscription.changed"),
		SubscriptionPrepaid:  factory.Counter("telstar.subscription.prepaid"),
		SubscriptionPostpaid: factory.Counter("telstar.subscription.postpaid"),
		UsageRecorded:        factory.Counter("telstar.usage.recorded"),
		UsageUnits:           factory.Histogram("telstar.usage.units"),

		InvoiceGenerated: factory.Counter("telstar.invoice.generated"),
		InvoicePaid:      factory.Counter("telstar.invoice.paid"),
		InvoiceFailed:    factory.Counter("telstar.invoice.failed"),
		InvoiceAmount:    factory.Histogram("telstar.invoice.amount"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Catalog hooks
// ──────────────────────────────────────────────────

// OnPlanCreated implements plugin.OnPlanCreated.
func (m *MetricsExtension) OnPlanCreated(_ context.Context, _ *plan.Plan) error {
	m.PlanCreated.Inc()
	return nil
}

// OnPlanRetired implements plugin.OnPlanRetired.
func (m *MetricsExtension) OnPlanRetired(_ context.Context, _, _ *plan.Plan) error {
	m.PlanRetired.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Customer and subscription hooks
// ──────────────────────────────────────────────────

// OnCustomerRegistered implements plugin.OnCustomerRegistered.
func (m *MetricsExtension) OnCustomerRegistered(_ context.Context, _ *customer.Customer) error {
	m.CustomerRegistered.Inc()
	return nil
}

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, sub *subscription.Subscription) error {
	m.SubscriptionCreated.Inc()
	if sub.PlanType == plan.TypePrepaid {
		m.SubscriptionPrepaid.Inc()
	} else {
		m.SubscriptionPostpaid.Inc()
	}
	return nil
}

// OnSubscriptionChanged implements plugin.OnSubscriptionChanged.
func (m *MetricsExtension) OnSubscriptionChanged(_ context.Context, _, _ *subscription.Subscription) error {
	m.SubscriptionChanged.Inc()
	return nil
}

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (m *MetricsExtension) OnUsageRecorded(_ context.Context, r *usage.Record) error {
	m.UsageRecorded.Inc()
	m.UsageUnits.Observe(r.Units.InexactFloat64())
	return nil
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceGenerated implements plugin.OnInvoiceGenerated.
func (m *MetricsExtension) OnInvoiceGenerated(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceGenerated.Inc()
	m.InvoiceAmount.Observe(inv.Amount.Amount.InexactFloat64())
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, _ *invoice.Invoice) error {
	m.InvoicePaid.Inc()
	return nil
}

// OnInvoiceFailed implements plugin.OnInvoiceFailed.
func (m *MetricsExtension) OnInvoiceFailed(_ context.Context, _ *subscription.Subscription, _ error) error {
	m.InvoiceFailed.Inc()
	return nil
}
