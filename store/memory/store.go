// Package memory is an in-process store for tests and single-node demos.
// Transactions hold the store's write lock for their whole duration and roll
// back by restoring a snapshot, so they are fully serialized.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	telstar "github.com/Nityam-7/TELSTAR"
	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/store"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/usage"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	closed bool

	customers     map[string]*customer.Customer
	emails        map[string]string
	plans         map[string]*plan.Plan
	subscriptions map[string]*subscription.Subscription
	invoices      map[string]*invoice.Invoice
	usage         []usage.Record

	planSeq    int64
	subSeq     int64
	invoiceSeq int64
}

func New() *Store {
	return &Store{
		customers:     make(map[string]*customer.Customer),
		emails:        make(map[string]string),
		plans:         make(map[string]*plan.Plan),
		subscriptions: make(map[string]*subscription.Subscription),
		invoices:      make(map[string]*invoice.Invoice),
	}
}

// ──────────────────────────────────────────────────
// Locking and transactions
// ──────────────────────────────────────────────────

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

func (s *Store) rlock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	customers     map[string]*customer.Customer
	emails        map[string]string
	plans         map[string]*plan.Plan
	subscriptions map[string]*subscription.Subscription
	invoices      map[string]*invoice.Invoice
	usageLen      int
	planSeq       int64
	subSeq        int64
	invoiceSeq    int64
}

// take copies the maps shallowly. Stored records are replaced, never
// mutated, so sharing the pointers is safe.
func (s *Store) take() snapshot {
	return snapshot{
		customers:     copyMap(s.customers),
		emails:        copyMap(s.emails),
		plans:         copyMap(s.plans),
		subscriptions: copyMap(s.subscriptions),
		invoices:      copyMap(s.invoices),
		usageLen:      len(s.usage),
		planSeq:       s.planSeq,
		subSeq:        s.subSeq,
		invoiceSeq:    s.invoiceSeq,
	}
}

func (s *Store) restore(snap snapshot) {
	s.customers = snap.customers
	s.emails = snap.emails
	s.plans = snap.plans
	s.subscriptions = snap.subscriptions
	s.invoices = snap.invoices
	s.usage = s.usage[:snap.usageLen]
	s.planSeq = snap.planSeq
	s.subSeq = snap.subSeq
	s.invoiceSeq = snap.invoiceSeq
}

func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return telstar.ErrStoreClosed
	}

	snap := s.take()
	defer func() {
		if r := recover(); r != nil {
			s.restore(snap)
			panic(r)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s))
}

// ──────────────────────────────────────────────────
// Plan Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	defer s.lock(ctx)()

	if _, exists := s.plans[p.ID.String()]; exists {
		return telstar.ErrAlreadyExists
	}
	if p.Status == plan.StatusActive {
		for _, other := range s.plans {
			if other.Status == plan.StatusActive && other.Name == p.Name {
				return telstar.ErrAlreadyExists
			}
		}
	}

	s.planSeq++
	p.Seq = s.planSeq
	s.plans[p.ID.String()] = clonePlan(p)
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	defer s.rlock(ctx)()

	if p, ok := s.plans[planID.String()]; ok {
		return clonePlan(p), nil
	}
	return nil, telstar.ErrPlanNotFound
}

func (s *Store) GetActivePlanByName(ctx context.Context, name string) (*plan.Plan, error) {
	defer s.rlock(ctx)()

	for _, p := range s.plans {
		if p.Status == plan.StatusActive && p.Name == name {
			return clonePlan(p), nil
		}
	}
	return nil, telstar.ErrPlanNotFound
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	defer s.rlock(ctx)()

	result := make([]*plan.Plan, 0)
	for _, p := range s.plans {
		if opts.Type != "" && p.Type != opts.Type {
			continue
		}
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		result = append(result, clonePlan(p))
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })

	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) RetirePlan(ctx context.Context, planID id.PlanID) error {
	defer s.lock(ctx)()

	p, ok := s.plans[planID.String()]
	if !ok {
		return telstar.ErrPlanNotFound
	}
	updated := clonePlan(p)
	updated.Status = plan.StatusRetired
	updated.UpdatedAt = time.Now().UTC()
	s.plans[planID.String()] = updated
	return nil
}

// ──────────────────────────────────────────────────
// Customer Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	defer s.lock(ctx)()

	if _, exists := s.customers[c.ID.String()]; exists {
		return telstar.ErrAlreadyExists
	}
	if _, taken := s.emails[c.Email]; taken {
		return telstar.ErrAlreadyExists
	}

	stored := *c
	stored.CurrentPlanID = id.Nil
	s.customers[c.ID.String()] = &stored
	s.emails[c.Email] = c.ID.String()
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	defer s.rlock(ctx)()

	if c, ok := s.customers[customerID.String()]; ok {
		out := *c
		return &out, nil
	}
	return nil, telstar.ErrCustomerNotFound
}

func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	defer s.rlock(ctx)()

	if key, ok := s.emails[email]; ok {
		out := *s.customers[key]
		return &out, nil
	}
	return nil, telstar.ErrCustomerNotFound
}

// LockCustomer is a no-op check: Transaction already serializes all writers.
func (s *Store) LockCustomer(ctx context.Context, customerID id.CustomerID) error {
	defer s.rlock(ctx)()

	if _, ok := s.customers[customerID.String()]; !ok {
		return telstar.ErrCustomerNotFound
	}
	return nil
}

// ──────────────────────────────────────────────────
// Subscription Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	defer s.lock(ctx)()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return telstar.ErrAlreadyExists
	}
	if sub.Status == subscription.StatusActive {
		for _, other := range s.subscriptions {
			if other.IsActive() && other.CustomerID.Equal(sub.CustomerID) {
				return telstar.ErrAlreadyExists
			}
		}
	}

	s.subSeq++
	sub.Seq = s.subSeq
	s.subscriptions[sub.ID.String()] = cloneSubscription(sub)
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	defer s.rlock(ctx)()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return cloneSubscription(sub), nil
	}
	return nil, telstar.ErrSubscriptionNotFound
}

func (s *Store) GetActiveSubscription(ctx context.Context, customerID id.CustomerID) (*subscription.Subscription, error) {
	defer s.rlock(ctx)()

	for _, sub := range s.subscriptions {
		if sub.IsActive() && sub.CustomerID.Equal(customerID) {
			return cloneSubscription(sub), nil
		}
	}
	return nil, telstar.ErrNoActiveSubscription
}

func (s *Store) ListSubscriptions(ctx context.Context, customerID id.CustomerID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	defer s.rlock(ctx)()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if !sub.CustomerID.Equal(customerID) {
			continue
		}
		if opts.Status != "" && sub.Status != opts.Status {
			continue
		}
		result = append(result, cloneSubscription(sub))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.After(result[j].StartedAt)
		}
		return result[i].Seq > result[j].Seq
	})

	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) SupersedeSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error {
	defer s.lock(ctx)()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return telstar.ErrSubscriptionNotFound
	}
	if !sub.IsActive() {
		return telstar.ErrInvalidState
	}

	updated := cloneSubscription(sub)
	updated.Status = subscription.StatusSuperseded
	updated.SupersededAt = &at
	updated.UpdatedAt = at
	s.subscriptions[subID.String()] = updated
	return nil
}

func (s *Store) UpdateSubscriptionBalance(ctx context.Context, sub *subscription.Subscription) error {
	defer s.lock(ctx)()

	existing, ok := s.subscriptions[sub.ID.String()]
	if !ok {
		return telstar.ErrSubscriptionNotFound
	}

	updated := cloneSubscription(existing)
	if sub.Balance != nil {
		balance := *sub.Balance
		updated.Balance = &balance
	}
	updated.UpdatedAt = sub.UpdatedAt
	s.subscriptions[sub.ID.String()] = updated
	return nil
}

// ──────────────────────────────────────────────────
// Invoice Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	defer s.lock(ctx)()

	if _, exists := s.invoices[inv.ID.String()]; exists {
		return telstar.ErrAlreadyExists
	}

	s.invoiceSeq++
	inv.Number = s.invoiceSeq
	s.invoices[inv.ID.String()] = cloneInvoice(inv)
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	defer s.rlock(ctx)()

	if inv, ok := s.invoices[invID.String()]; ok {
		return cloneInvoice(inv), nil
	}
	return nil, telstar.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(ctx context.Context, customerID id.CustomerID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	defer s.rlock(ctx)()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if !inv.CustomerID.Equal(customerID) {
			continue
		}
		if opts.Status != "" && inv.Status != opts.Status {
			continue
		}
		result = append(result, cloneInvoice(inv))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].IssuedAt.Equal(result[j].IssuedAt) {
			return result[i].IssuedAt.After(result[j].IssuedAt)
		}
		return result[i].Number > result[j].Number
	})

	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time) error {
	defer s.lock(ctx)()

	inv, ok := s.invoices[invID.String()]
	if !ok {
		return telstar.ErrInvoiceNotFound
	}
	if inv.IsPaid() {
		return telstar.ErrAlreadyPaid
	}

	updated := cloneInvoice(inv)
	updated.Status = invoice.StatusPaid
	updated.PaidAt = &paidAt
	updated.UpdatedAt = paidAt
	s.invoices[invID.String()] = updated
	return nil
}

// ──────────────────────────────────────────────────
// Usage Store implementation
// ──────────────────────────────────────────────────

func (s *Store) RecordUsage(ctx context.Context, r *usage.Record) error {
	defer s.lock(ctx)()

	s.usage = append(s.usage, *r)
	return nil
}

func (s *Store) SumUsage(ctx context.Context, subID id.SubscriptionID, from, to time.Time) (decimal.Decimal, error) {
	defer s.rlock(ctx)()

	total := decimal.Zero
	for _, r := range s.usage {
		if !r.SubscriptionID.Equal(subID) {
			continue
		}
		if r.RecordedAt.Before(from) || !r.RecordedAt.Before(to) {
			continue
		}
		total = total.Add(r.Units)
	}
	return total, nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	defer s.rlock(ctx)()

	if s.closed {
		return telstar.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func page[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func clonePlan(p *plan.Plan) *plan.Plan {
	out := *p
	if p.Prepaid != nil {
		terms := *p.Prepaid
		out.Prepaid = &terms
	}
	return &out
}

func cloneSubscription(sub *subscription.Subscription) *subscription.Subscription {
	out := *sub
	if sub.Balance != nil {
		balance := *sub.Balance
		out.Balance = &balance
	}
	if sub.SupersededAt != nil {
		at := *sub.SupersededAt
		out.SupersededAt = &at
	}
	return &out
}

func cloneInvoice(inv *invoice.Invoice) *invoice.Invoice {
	out := *inv
	if inv.PaidAt != nil {
		at := *inv.PaidAt
		out.PaidAt = &at
	}
	return &out
}
