package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/usage"
)

// DefaultHookTimeout bounds a single hook invocation.
const DefaultHookTimeout = 5 * time.Second

// Registry holds registered plugins and dispatches events to them.
// Hook implementations are discovered once at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                []OnInit
	onShutdown            []OnShutdown
	onPlanCreated         []OnPlanCreated
	onPlanRetired         []OnPlanRetired
	onCustomerRegistered  []OnCustomerRegistered
	onSubscriptionCreated []OnSubscriptionCreated
	onSubscriptionChanged []OnSubscriptionChanged
	onUsageRecorded       []OnUsageRecorded
	onInvoiceGenerated    []OnInvoiceGenerated
	onInvoicePaid         []OnInvoicePaid
	onInvoiceFailed       []OnInvoiceFailed
	invoiceFormatters     map[string]InvoiceFormatter
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:            slog.Default(),
		timeout:           DefaultHookTimeout,
		invoiceFormatters: make(map[string]InvoiceFormatter),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its hooks.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnPlanCreated); ok {
		r.onPlanCreated = append(r.onPlanCreated, v)
		hooks = append(hooks, "OnPlanCreated")
	}
	if v, ok := p.(OnPlanRetired); ok {
		r.onPlanRetired = append(r.onPlanRetired, v)
		hooks = append(hooks, "OnPlanRetired")
	}
	if v, ok := p.(OnCustomerRegistered); ok {
		r.onCustomerRegistered = append(r.onCustomerRegistered, v)
		hooks = append(hooks, "OnCustomerRegistered")
	}
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
		hooks = append(hooks, "OnSubscriptionCreated")
	}
	if v, ok := p.(OnSubscriptionChanged); ok {
		r.onSubscriptionChanged = append(r.onSubscriptionChanged, v)
		hooks = append(hooks, "OnSubscriptionChanged")
	}
	if v, ok := p.(OnUsageRecorded); ok {
		r.onUsageRecorded = append(r.onUsageRecorded, v)
		hooks = append(hooks, "OnUsageRecorded")
	}
	if v, ok := p.(OnInvoiceGenerated); ok {
		r.onInvoiceGenerated = append(r.onInvoiceGenerated, v)
		hooks = append(hooks, "OnInvoiceGenerated")
	}
	if v, ok := p.(OnInvoicePaid); ok {
		r.onInvoicePaid = append(r.onInvoicePaid, v)
		hooks = append(hooks, "OnInvoicePaid")
	}
	if v, ok := p.(OnInvoiceFailed); ok {
		r.onInvoiceFailed = append(r.onInvoiceFailed, v)
		hooks = append(hooks, "OnInvoiceFailed")
	}
	if v, ok := p.(InvoiceFormatter); ok {
		r.invoiceFormatters[v.Format()] = v
		hooks = append(hooks, "InvoiceFormatter")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// InvoiceFormatter returns the formatter registered for format, or nil.
func (r *Registry) InvoiceFormatter(format string) InvoiceFormatter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.invoiceFormatters[format]
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(r, ctx, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, ctx, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

func (r *Registry) EmitPlanCreated(ctx context.Context, p *plan.Plan) {
	emit(r, ctx, "OnPlanCreated", snapshot(r, &r.onPlanCreated), func(h OnPlanCreated) error {
		return h.OnPlanCreated(ctx, p)
	})
}

func (r *Registry) EmitPlanRetired(ctx context.Context, retired, replacement *plan.Plan) {
	emit(r, ctx, "OnPlanRetired", snapshot(r, &r.onPlanRetired), func(h OnPlanRetired) error {
		return h.OnPlanRetired(ctx, retired, replacement)
	})
}

func (r *Registry) EmitCustomerRegistered(ctx context.Context, c *customer.Customer) {
	emit(r, ctx, "OnCustomerRegistered", snapshot(r, &r.onCustomerRegistered), func(h OnCustomerRegistered) error {
		return h.OnCustomerRegistered(ctx, c)
	})
}

func (r *Registry) EmitSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) {
	emit(r, ctx, "OnSubscriptionCreated", snapshot(r, &r.onSubscriptionCreated), func(h OnSubscriptionCreated) error {
		return h.OnSubscriptionCreated(ctx, sub)
	})
}

func (r *Registry) EmitSubscriptionChanged(ctx context.Context, previous, current *subscription.Subscription) {
	emit(r, ctx, "OnSubscriptionChanged", snapshot(r, &r.onSubscriptionChanged), func(h OnSubscriptionChanged) error {
		return h.OnSubscriptionChanged(ctx, previous, current)
	})
}

func (r *Registry) EmitUsageRecorded(ctx context.Context, rec *usage.Record) {
	emit(r, ctx, "OnUsageRecorded", snapshot(r, &r.onUsageRecorded), func(h OnUsageRecorded) error {
		return h.OnUsageRecorded(ctx, rec)
	})
}

func (r *Registry) EmitInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) {
	emit(r, ctx, "OnInvoiceGenerated", snapshot(r, &r.onInvoiceGenerated), func(h OnInvoiceGenerated) error {
		return h.OnInvoiceGenerated(ctx, inv)
	})
}

func (r *Registry) EmitInvoicePaid(ctx context.Context, inv *invoice.Invoice) {
	emit(r, ctx, "OnInvoicePaid", snapshot(r, &r.onInvoicePaid), func(h OnInvoicePaid) error {
		return h.OnInvoicePaid(ctx, inv)
	})
}

func (r *Registry) EmitInvoiceFailed(ctx context.Context, sub *subscription.Subscription, cause error) {
	emit(r, ctx, "OnInvoiceFailed", snapshot(r, &r.onInvoiceFailed), func(h OnInvoiceFailed) error {
		return h.OnInvoiceFailed(ctx, sub, cause)
	})
}

func snapshot[T any](r *Registry, list *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

func emit[T Plugin](r *Registry, ctx context.Context, hook string, plugins []T, call func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
