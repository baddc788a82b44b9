package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/plugin"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/usage"
)

// Routing keys for published events.
const (
	KeyPlanCreated         = "billing.plan.created"
	KeyPlanRetired         = "billing.plan.retired"
	KeyCustomerRegistered  = "billing.customer.registered"
	KeySubscriptionCreated = "billing.subscription.created"
	KeySubscriptionChanged = "billing.subscription.changed"
	KeyUsageRecorded       = "billing.usage.recorded"
	KeyInvoiceGenerated    = "billing.invoice.generated"
	KeyInvoicePaid         = "billing.invoice.paid"
	KeyInvoiceFailed       = "billing.invoice.failed"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*EventPlugin)(nil)
	_ plugin.OnShutdown            = (*EventPlugin)(nil)
	_ plugin.OnPlanCreated         = (*EventPlugin)(nil)
	_ plugin.OnPlanRetired         = (*EventPlugin)(nil)
	_ plugin.OnCustomerRegistered  = (*EventPlugin)(nil)
	_ plugin.OnSubscriptionCreated = (*EventPlugin)(nil)
	_ plugin.OnSubscriptionChanged = (*EventPlugin)(nil)
	_ plugin.OnUsageRecorded       = (*EventPlugin)(nil)
	_ plugin.OnInvoiceGenerated    = (*EventPlugin)(nil)
	_ plugin.OnInvoicePaid         = (*EventPlugin)(nil)
	_ plugin.OnInvoiceFailed       = (*EventPlugin)(nil)
)

// Event is the envelope published for every lifecycle hook.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	CustomerID string    `json:"customer_id,omitempty"`
	Data       any       `json:"data"`
}

// SubscriptionChange is the payload of billing.subscription.changed.
type SubscriptionChange struct {
	Previous *subscription.Subscription `json:"previous"`
	Current  *subscription.Subscription `json:"current"`
}

// PlanRetirement is the payload of billing.plan.retired.
type PlanRetirement struct {
	Retired     *plan.Plan `json:"retired"`
	Replacement *plan.Plan `json:"replacement"`
}

// InvoiceFailure is the payload of billing.invoice.failed.
type InvoiceFailure struct {
	SubscriptionID string `json:"subscription_id"`
	PlanID         string `json:"plan_id"`
	Reason         string `json:"reason"`
}

// EventPlugin publishes engine lifecycle events as JSON.
type EventPlugin struct {
	publisher Publisher
	logger    *slog.Logger
	clock     func() time.Time
}

// PluginOption configures an EventPlugin.
type PluginOption func(*EventPlugin)

// WithLogger sets the plugin logger.
func WithLogger(logger *slog.Logger) PluginOption {
	return func(p *EventPlugin) { p.logger = logger }
}

// WithClock overrides the event timestamp source.
func WithClock(clock func() time.Time) PluginOption {
	return func(p *EventPlugin) { p.clock = clock }
}

// NewEventPlugin creates a plugin publishing through pub.
func NewEventPlugin(pub Publisher, opts ...PluginOption) *EventPlugin {
	p := &EventPlugin{
		publisher: pub,
		logger:    slog.Default(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *EventPlugin) Name() string { return "eventbus" }

// OnShutdown closes the publisher.
func (p *EventPlugin) OnShutdown(_ context.Context) error {
	return p.publisher.Close()
}

func (p *EventPlugin) OnPlanCreated(ctx context.Context, pl *plan.Plan) error {
	return p.publish(ctx, KeyPlanCreated, "", pl)
}

func (p *EventPlugin) OnPlanRetired(ctx context.Context, retired, replacement *plan.Plan) error {
	return p.publish(ctx, KeyPlanRetired, "", PlanRetirement{Retired: retired, Replacement: replacement})
}

func (p *EventPlugin) OnCustomerRegistered(ctx context.Context, c *customer.Customer) error {
	return p.publish(ctx, KeyCustomerRegistered, c.ID.String(), c)
}

func (p *EventPlugin) OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error {
	return p.publish(ctx, KeySubscriptionCreated, sub.CustomerID.String(), sub)
}

func (p *EventPlugin) OnSubscriptionChanged(ctx context.Context, previous, current *subscription.Subscription) error {
	return p.publish(ctx, KeySubscriptionChanged, current.CustomerID.String(),
		SubscriptionChange{Previous: previous, Current: current})
}

func (p *EventPlugin) OnUsageRecorded(ctx context.Context, r *usage.Record) error {
	return p.publish(ctx, KeyUsageRecorded, r.CustomerID.String(), r)
}

func (p *EventPlugin) OnInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) error {
	return p.publish(ctx, KeyInvoiceGenerated, inv.CustomerID.String(), inv)
}

func (p *EventPlugin) OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error {
	return p.publish(ctx, KeyInvoicePaid, inv.CustomerID.String(), inv)
}

func (p *EventPlugin) OnInvoiceFailed(ctx context.Context, sub *subscription.Subscription, cause error) error {
	failure := InvoiceFailure{
		SubscriptionID: sub.ID.String(),
		PlanID:         sub.PlanID.String(),
	}
	if cause != nil {
		failure.Reason = cause.Error()
	}
	return p.publish(ctx, KeyInvoiceFailed, sub.CustomerID.String(), failure)
}

func (p *EventPlugin) publish(ctx context.Context, key, customerID string, data any) error {
	payload, err := json.Marshal(Event{
		ID:         uuid.New(),
		Type:       key,
		OccurredAt: p.clock().UTC(),
		CustomerID: customerID,
		Data:       data,
	})
	if err != nil {
		return fmt.Errorf("eventbus: encode %s: %w", key, err)
	}
	if err := p.publisher.Publish(ctx, key, payload); err != nil {
		p.logger.Warn("event publish failed", "routing_key", key, "error", err)
		return err
	}
	return nil
}
