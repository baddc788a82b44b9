// Package storetest is a conformance suite shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	telstar "github.com/Nityam-7/TELSTAR"
	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/store"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/types"
	"github.com/Nityam-7/TELSTAR/usage"
)

// Factory returns an empty, migrated store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Plans", testPlans},
		{"PlanNameUniqueAmongActive", testPlanNameUnique},
		{"Customers", testCustomers},
		{"Subscriptions", testSubscriptions},
		{"SingleActiveSubscription", testSingleActive},
		{"Invoices", testInvoices},
		{"Usage", testUsage},
		{"TransactionRollback", testTransactionRollback},
		{"TransactionCommit", testTransactionCommit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// NewPlan builds an unsaved plan fixture.
func NewPlan(name string, t plan.Type, rate string) *plan.Plan {
	p := &plan.Plan{
		Entity:           types.NewEntity(now()),
		ID:               id.NewPlanID(),
		Name:             name,
		Type:             t,
		Status:           plan.StatusActive,
		RatePerUnit:      types.MustParse(rate, "usd"),
		BillingCycleDays: 30,
		Description:      name + " plan",
	}
	if t == plan.TypePrepaid {
		p.Prepaid = &plan.PrepaidTerms{Balance: types.USD(10000)}
	}
	return p
}

// NewCustomer builds an unsaved customer fixture.
func NewCustomer(email string) *customer.Customer {
	return &customer.Customer{
		Entity:       types.NewEntity(now()),
		ID:           id.NewCustomerID(),
		Name:         "Test Customer",
		Email:        email,
		Phone:        "+15550100",
		PasswordHash: "$2a$04$hash",
	}
}

// NewSubscription builds an unsaved active subscription fixture.
func NewSubscription(c *customer.Customer, p *plan.Plan, started time.Time) *subscription.Subscription {
	sub := &subscription.Subscription{
		Entity:     types.NewEntity(started),
		ID:         id.NewSubscriptionID(),
		CustomerID: c.ID,
		PlanID:     p.ID,
		PlanType:   p.Type,
		Status:     subscription.StatusActive,
		StartedAt:  started,
	}
	if p.Prepaid != nil {
		balance := p.Prepaid.Balance
		sub.Balance = &balance
	}
	return sub
}

// NewInvoice builds an unsaved pending invoice fixture.
func NewInvoice(sub *subscription.Subscription, issued time.Time) *invoice.Invoice {
	units := decimal.NewFromInt(100)
	rate := types.MustParse("0.05", "usd")
	return &invoice.Invoice{
		Entity:         types.NewEntity(issued),
		ID:             id.NewInvoiceID(),
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		PlanID:         sub.PlanID,
		PlanType:       sub.PlanType,
		Units:          units,
		RatePerUnit:    rate,
		Amount:         rate.Multiply(units).Round(),
		Status:         invoice.StatusPending,
		PeriodStart:    issued,
		PeriodEnd:      issued.Add(30 * 24 * time.Hour),
		IssuedAt:       issued,
	}
}

func testPlans(t *testing.T, s store.Store) {
	ctx := context.Background()

	pre := NewPlan("Talk 100", plan.TypePrepaid, "0.005")
	post1 := NewPlan("Unlimited", plan.TypePostpaid, "0.05")
	post2 := NewPlan("Family", plan.TypePostpaid, "0.04")

	for _, p := range []*plan.Plan{pre, post1, post2} {
		require.NoError(t, s.CreatePlan(ctx, p))
	}
	assert.Less(t, pre.Seq, post1.Seq)
	assert.Less(t, post1.Seq, post2.Seq)

	got, err := s.GetPlan(ctx, pre.ID)
	require.NoError(t, err)
	assert.Equal(t, "Talk 100", got.Name)
	assert.Equal(t, plan.TypePrepaid, got.Type)
	assert.True(t, got.RatePerUnit.Equal(types.MustParse("0.005", "usd")), "rate %s", got.RatePerUnit)
	require.NotNil(t, got.Prepaid)
	assert.True(t, got.Prepaid.Balance.Equal(types.USD(10000)))

	postpaid, err := s.ListPlans(ctx, plan.ListOpts{Type: plan.TypePostpaid, Status: plan.StatusActive})
	require.NoError(t, err)
	require.Len(t, postpaid, 2)
	assert.Equal(t, post1.ID.String(), postpaid[0].ID.String())
	assert.Equal(t, post2.ID.String(), postpaid[1].ID.String())
	assert.Nil(t, postpaid[0].Prepaid)

	byName, err := s.GetActivePlanByName(ctx, "Family")
	require.NoError(t, err)
	assert.Equal(t, post2.ID.String(), byName.ID.String())

	_, err = s.GetPlan(ctx, id.NewPlanID())
	assert.ErrorIs(t, err, telstar.ErrPlanNotFound)
	_, err = s.GetActivePlanByName(ctx, "missing")
	assert.ErrorIs(t, err, telstar.ErrPlanNotFound)
}

func testPlanNameUnique(t *testing.T, s store.Store) {
	ctx := context.Background()

	first := NewPlan("Basic", plan.TypePostpaid, "0.10")
	require.NoError(t, s.CreatePlan(ctx, first))

	dup := NewPlan("Basic", plan.TypePostpaid, "0.20")
	assert.ErrorIs(t, s.CreatePlan(ctx, dup), telstar.ErrAlreadyExists)

	require.NoError(t, s.RetirePlan(ctx, first.ID))
	replacement := NewPlan("Basic", plan.TypePostpaid, "0.20")
	require.NoError(t, s.CreatePlan(ctx, replacement))

	active, err := s.GetActivePlanByName(ctx, "Basic")
	require.NoError(t, err)
	assert.Equal(t, replacement.ID.String(), active.ID.String())

	retired, err := s.GetPlan(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusRetired, retired.Status)

	listed, err := s.ListPlans(ctx, plan.ListOpts{Type: plan.TypePostpaid, Status: plan.StatusActive})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	assert.ErrorIs(t, s.RetirePlan(ctx, id.NewPlanID()), telstar.ErrPlanNotFound)
}

func testCustomers(t *testing.T, s store.Store) {
	ctx := context.Background()

	c := NewCustomer("alice@example.com")
	require.NoError(t, s.CreateCustomer(ctx, c))

	byID, err := s.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)
	assert.Equal(t, c.PasswordHash, byID.PasswordHash)

	byEmail, err := s.GetCustomerByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, c.ID.String(), byEmail.ID.String())

	assert.ErrorIs(t, s.CreateCustomer(ctx, NewCustomer("alice@example.com")), telstar.ErrAlreadyExists)

	_, err = s.GetCustomerByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, telstar.ErrCustomerNotFound)
	_, err = s.GetCustomer(ctx, id.NewCustomerID())
	assert.ErrorIs(t, err, telstar.ErrCustomerNotFound)
}

func testSubscriptions(t *testing.T, s store.Store) {
	ctx := context.Background()

	c := NewCustomer("bob@example.com")
	require.NoError(t, s.CreateCustomer(ctx, c))
	p := NewPlan("Prepaid Lite", plan.TypePrepaid, "0.05")
	require.NoError(t, s.CreatePlan(ctx, p))

	_, err := s.GetActiveSubscription(ctx, c.ID)
	assert.ErrorIs(t, err, telstar.ErrNoActiveSubscription)

	start := now()
	first := NewSubscription(c, p, start)
	require.NoError(t, s.CreateSubscription(ctx, first))

	active, err := s.GetActiveSubscription(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID.String(), active.ID.String())
	require.NotNil(t, active.Balance)
	assert.True(t, active.Balance.Equal(types.USD(10000)))

	remaining := types.USD(9000)
	active.Balance = &remaining
	active.UpdatedAt = start.Add(time.Minute)
	require.NoError(t, s.UpdateSubscriptionBalance(ctx, active))

	reloaded, err := s.GetSubscription(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(types.USD(9000)))

	supersededAt := start.Add(time.Hour)
	require.NoError(t, s.SupersedeSubscription(ctx, first.ID, supersededAt))
	assert.ErrorIs(t, s.SupersedeSubscription(ctx, first.ID, supersededAt), telstar.ErrInvalidState)

	second := NewSubscription(c, p, supersededAt)
	require.NoError(t, s.CreateSubscription(ctx, second))
	assert.Greater(t, second.Seq, first.Seq)

	history, err := s.ListSubscriptions(ctx, c.ID, subscription.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID.String(), history[0].ID.String())
	assert.Equal(t, subscription.StatusActive, history[0].Status)
	assert.Equal(t, subscription.StatusSuperseded, history[1].Status)
	require.NotNil(t, history[1].SupersededAt)
	assert.True(t, history[1].SupersededAt.Equal(supersededAt))

	_, err = s.GetSubscription(ctx, id.NewSubscriptionID())
	assert.ErrorIs(t, err, telstar.ErrSubscriptionNotFound)
}

func testSingleActive(t *testing.T, s store.Store) {
	ctx := context.Background()

	c := NewCustomer("carol@example.com")
	require.NoError(t, s.CreateCustomer(ctx, c))
	p := NewPlan("Postpaid Max", plan.TypePostpaid, "0.05")
	require.NoError(t, s.CreatePlan(ctx, p))

	require.NoError(t, s.CreateSubscription(ctx, NewSubscription(c, p, now())))
	err := s.CreateSubscription(ctx, NewSubscription(c, p, now()))
	assert.ErrorIs(t, err, telstar.ErrAlreadyExists)
}

func testInvoices(t *testing.T, s store.Store) {
	ctx := context.Background()

	c := NewCustomer("dave@example.com")
	require.NoError(t, s.CreateCustomer(ctx, c))
	p := NewPlan("Postpaid Basic", plan.TypePostpaid, "0.05")
	require.NoError(t, s.CreatePlan(ctx, p))
	sub := NewSubscription(c, p, now())
	require.NoError(t, s.CreateSubscription(ctx, sub))

	issued := now()
	invs := make([]*invoice.Invoice, 3)
	for i := range invs {
		// Two invoices share an issue time so the Number tie-break is exercised.
		at := issued
		if i == 2 {
			at = issued.Add(time.Second)
		}
		invs[i] = NewInvoice(sub, at)
		require.NoError(t, s.CreateInvoice(ctx, invs[i]))
	}
	assert.Less(t, invs[0].Number, invs[1].Number)
	assert.Less(t, invs[1].Number, invs[2].Number)

	got, err := s.GetInvoice(ctx, invs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, got.Status)
	assert.True(t, got.Amount.Equal(types.USD(500)), "amount %s", got.Amount)
	assert.True(t, got.Units.Equal(decimal.NewFromInt(100)))
	assert.Nil(t, got.PaidAt)

	list, err := s.ListInvoices(ctx, c.ID, invoice.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, invs[2].ID.String(), list[0].ID.String())
	assert.Equal(t, invs[1].ID.String(), list[1].ID.String())
	assert.Equal(t, invs[0].ID.String(), list[2].ID.String())

	paidAt := issued.Add(time.Hour)
	require.NoError(t, s.MarkInvoicePaid(ctx, invs[0].ID, paidAt))
	assert.ErrorIs(t, s.MarkInvoicePaid(ctx, invs[0].ID, paidAt), telstar.ErrAlreadyPaid)

	paid, err := s.GetInvoice(ctx, invs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.True(t, paid.PaidAt.Equal(paidAt))

	pending, err := s.ListInvoices(ctx, c.ID, invoice.ListOpts{Status: invoice.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = s.GetInvoice(ctx, id.NewInvoiceID())
	assert.ErrorIs(t, err, telstar.ErrInvoiceNotFound)
	assert.ErrorIs(t, s.MarkInvoicePaid(ctx, id.NewInvoiceID(), paidAt), telstar.ErrInvoiceNotFound)
}

func testUsage(t *testing.T, s store.Store) {
	ctx := context.Background()

	c := NewCustomer("erin@example.com")
	require.NoError(t, s.CreateCustomer(ctx, c))
	p := NewPlan("Metered", plan.TypePostpaid, "0.05")
	require.NoError(t, s.CreatePlan(ctx, p))
	sub := NewSubscription(c, p, now())
	require.NoError(t, s.CreateSubscription(ctx, sub))

	base := now()
	for i, units := range []string{"10", "2.5", "7"} {
		require.NoError(t, s.RecordUsage(ctx, &usage.Record{
			ID:             id.NewUsageID(),
			CustomerID:     c.ID,
			SubscriptionID: sub.ID,
			Units:          decimal.RequireFromString(units),
			RecordedAt:     base.Add(time.Duration(i) * time.Hour),
		}))
	}

	total, err := s.SumUsage(ctx, sub.ID, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("12.5")), "total %s", total)

	none, err := s.SumUsage(ctx, id.NewSubscriptionID(), base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

var errAbort = errors.New("abort")

func testTransactionRollback(t *testing.T, s store.Store) {
	ctx := context.Background()

	c := NewCustomer("frank@example.com")
	err := s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.CreateCustomer(ctx, c); err != nil {
			return err
		}
		if _, err := s.GetCustomerByEmail(ctx, c.Email); err != nil {
			return err
		}
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	_, err = s.GetCustomerByEmail(ctx, c.Email)
	assert.ErrorIs(t, err, telstar.ErrCustomerNotFound)
}

func testTransactionCommit(t *testing.T, s store.Store) {
	ctx := context.Background()

	c := NewCustomer("grace@example.com")
	p := NewPlan("Committed", plan.TypePostpaid, "0.05")
	err := s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.CreateCustomer(ctx, c); err != nil {
			return err
		}
		if err := s.LockCustomer(ctx, c.ID); err != nil {
			return err
		}
		if err := s.CreatePlan(ctx, p); err != nil {
			return err
		}
		// Nested transactions join the outer one.
		return s.Transaction(ctx, func(ctx context.Context) error {
			return s.CreateSubscription(ctx, NewSubscription(c, p, now()))
		})
	})
	require.NoError(t, err)

	_, err = s.GetActiveSubscription(ctx, c.ID)
	assert.NoError(t, err)
}
