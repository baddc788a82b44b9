// Package audithook bridges TELSTAR lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/plugin"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/usage"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnPlanCreated         = (*Extension)(nil)
	_ plugin.OnPlanRetired         = (*Extension)(nil)
	_ plugin.OnCustomerRegistered  = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated = (*Extension)(nil)
	_ plugin.OnSubscriptionChanged = (*Extension)(nil)
	_ plugin.OnUsageRecorded       = (*Extension)(nil)
	_ plugin.OnInvoiceGenerated    = (*Extension)(nil)
	_ plugin.OnInvoicePaid         = (*Extension)(nil)
	_ plugin.OnInvoiceFailed       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry in the audit trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges TELSTAR lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Catalog hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnPlanCreated(ctx context.Context, p *plan.Plan) error {
	return e.record(ctx, ActionPlanCreated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, p.ID.String(), CategoryCatalog, nil,
		"name", p.Name,
		"type", string(p.Type),
		"rate_per_unit", p.RatePerUnit.String(),
	)
}

func (e *Extension) OnPlanRetired(ctx context.Context, retired, replacement *plan.Plan) error {
	return e.record(ctx, ActionPlanRetired, SeverityInfo, OutcomeSuccess,
		ResourcePlan, retired.ID.String(), CategoryCatalog, nil,
		"name", retired.Name,
		"replaced_by", replacement.ID.String(),
	)
}

// ──────────────────────────────────────────────────
// Customer and subscription hooks
// ──────────────────────────────────────────────────

// OnCustomerRegistered records the registration. The email is deliberately
// left out of the trail.
func (e *Extension) OnCustomerRegistered(ctx context.Context, c *customer.Customer) error {
	return e.record(ctx, ActionCustomerRegistered, SeverityInfo, OutcomeSuccess,
		ResourceCustomer, c.ID.String(), CategoryAccount, nil,
	)
}

func (e *Extension) OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"customer_id", sub.CustomerID.String(),
		"plan_id", sub.PlanID.String(),
		"plan_type", string(sub.PlanType),
	)
}

func (e *Extension) OnSubscriptionChanged(ctx context.Context, previous, current *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionSuperseded, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, previous.ID.String(), CategorySubscription, nil,
		"customer_id", previous.CustomerID.String(),
		"from_plan_id", previous.PlanID.String(),
		"to_plan_id", current.PlanID.String(),
		"superseded_by", current.ID.String(),
	)
}

func (e *Extension) OnUsageRecorded(ctx context.Context, r *usage.Record) error {
	return e.record(ctx, ActionUsageRecorded, SeverityInfo, OutcomeSuccess,
		ResourceUsage, r.ID.String(), CategoryUsage, nil,
		"subscription_id", r.SubscriptionID.String(),
		"units", r.Units.String(),
	)
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceGenerated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"customer_id", inv.CustomerID.String(),
		"amount", inv.Amount.String(),
		"units", inv.Units.String(),
		"status", string(inv.Status),
	)
}

func (e *Extension) OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoicePaid, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"customer_id", inv.CustomerID.String(),
		"amount", inv.Amount.String(),
		"plan_type", string(inv.PlanType),
	)
}

func (e *Extension) OnInvoiceFailed(ctx context.Context, sub *subscription.Subscription, err error) error {
	meta := []any{"customer_id", sub.CustomerID.String()}
	if sub.Balance != nil {
		meta = append(meta, "balance", sub.Balance.String())
	}
	return e.record(ctx, ActionInvoiceFailed, SeverityWarning, OutcomeFailure,
		ResourceSubscription, sub.ID.String(), CategoryPayment, err,
		meta...,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
