package telstar_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	telstar "github.com/Nityam-7/TELSTAR"
	"github.com/Nityam-7/TELSTAR/auth"
	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/store/memory"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/types"
	"github.com/Nityam-7/TELSTAR/usage"
)

func newEngine(t *testing.T, opts ...telstar.Option) (*telstar.Engine, *memory.Store) {
	t.Helper()

	s := memory.New()
	base := []telstar.Option{telstar.WithHasher(auth.NewBcryptHasher(4))}
	e := telstar.New(s, append(base, opts...)...)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop(context.Background()) })
	return e, s
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func postpaidSpec(name, rate string) plan.Spec {
	return plan.Spec{Name: name, Type: plan.TypePostpaid, RatePerUnit: dec(rate), BillingCycleDays: 30}
}

func prepaidSpec(name, rate, balance string) plan.Spec {
	return plan.Spec{Name: name, Type: plan.TypePrepaid, RatePerUnit: dec(rate), BillingCycleDays: 30, PrepaidBalance: dec(balance)}
}

func register(t *testing.T, e *telstar.Engine, email string) *customer.Customer {
	t.Helper()
	c, err := e.RegisterCustomer(context.Background(), customer.Registration{
		Name: "Test Customer", Email: email, Phone: "5550100", Password: "pw",
	})
	require.NoError(t, err)
	return c
}

// unitsSource bills whatever value it currently holds.
type unitsSource struct {
	mu    sync.Mutex
	units decimal.Decimal
}

func (u *unitsSource) set(s string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.units = decimal.RequireFromString(s)
}

func (u *unitsSource) BilledUnits(context.Context, usage.Request) (decimal.Decimal, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.units, nil
}

// ──────────────────────────────────────────────────
// Catalog
// ──────────────────────────────────────────────────

func TestAddPlanValidation(t *testing.T) {
	e, _ := newEngine(t)

	tests := []struct {
		name  string
		spec  plan.Spec
		field string
	}{
		{"missing name", plan.Spec{Type: plan.TypePostpaid, RatePerUnit: dec("1"), BillingCycleDays: 30}, "planName"},
		{"blank name", plan.Spec{Name: "   ", Type: plan.TypePostpaid, RatePerUnit: dec("1"), BillingCycleDays: 30}, "planName"},
		{"unknown type", plan.Spec{Name: "X", Type: "HYBRID", RatePerUnit: dec("1"), BillingCycleDays: 30}, "planType"},
		{"missing rate", plan.Spec{Name: "X", Type: plan.TypePostpaid, BillingCycleDays: 30}, "ratePerUnit"},
		{"negative rate", plan.Spec{Name: "X", Type: plan.TypePostpaid, RatePerUnit: dec("-0.01"), BillingCycleDays: 30}, "ratePerUnit"},
		{"zero cycle", plan.Spec{Name: "X", Type: plan.TypePostpaid, RatePerUnit: dec("1")}, "billingCycleDays"},
		{"cycle too long", plan.Spec{Name: "X", Type: plan.TypePostpaid, RatePerUnit: dec("1"), BillingCycleDays: plan.MaxBillingCycleDays + 1}, "billingCycleDays"},
		{"overflowing cycle", plan.Spec{Name: "X", Type: plan.TypePostpaid, RatePerUnit: dec("1"), BillingCycleDays: 200000}, "billingCycleDays"},
		{"prepaid without balance", plan.Spec{Name: "X", Type: plan.TypePrepaid, RatePerUnit: dec("1"), BillingCycleDays: 30}, "prepaidBalance"},
		{"prepaid negative balance", prepaidSpec("X", "1", "-5"), "prepaidBalance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.AddPlan(context.Background(), tt.spec)
			require.Error(t, err)

			var verr telstar.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, telstar.ErrInvalidInput)
			assert.Equal(t, telstar.KindValidation, telstar.KindOf(err))
		})
	}
}

func TestAddPlanAcceptsLowercaseType(t *testing.T) {
	e, _ := newEngine(t)

	p, err := e.AddPlan(context.Background(), plan.Spec{
		Name: "Lower", Type: "postpaid", RatePerUnit: dec("0.1"), BillingCycleDays: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, plan.TypePostpaid, p.Type)
	assert.Nil(t, p.Prepaid)
}

func TestAddPlanDuplicateName(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	original, err := e.AddPlan(ctx, postpaidSpec("Gold", "0.05"))
	require.NoError(t, err)

	_, err = e.AddPlan(ctx, postpaidSpec("Gold", "0.04"))
	assert.ErrorIs(t, err, telstar.ErrDuplicatePlan)
	assert.Equal(t, telstar.KindConflict, telstar.KindOf(err))

	spec := postpaidSpec("Gold", "0.04")
	spec.Replace = true
	replacement, err := e.AddPlan(ctx, spec)
	require.NoError(t, err)
	assert.NotEqual(t, original.ID.String(), replacement.ID.String())

	old, err := e.GetPlan(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusRetired, old.Status)

	plans, err := e.ListPlans(ctx, plan.TypePostpaid)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.True(t, plans[0].RatePerUnit.Equal(types.MustParse("0.04", "usd")))
}

func TestListPlans(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	empty, err := e.ListPlans(ctx, plan.TypePrepaid)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	var want []string
	for i := 0; i < 3; i++ {
		p, err := e.AddPlan(ctx, prepaidSpec(fmt.Sprintf("Prepaid %d", i), "0.01", "10"))
		require.NoError(t, err)
		want = append(want, p.ID.String())
	}
	_, err = e.AddPlan(ctx, postpaidSpec("Postpaid", "0.02"))
	require.NoError(t, err)

	prepaid, err := e.ListPlans(ctx, plan.TypePrepaid)
	require.NoError(t, err)
	require.Len(t, prepaid, 3)
	for i, p := range prepaid {
		assert.Equal(t, want[i], p.ID.String())
		assert.Equal(t, plan.TypePrepaid, p.Type)
	}

	_, err = e.ListPlans(ctx, "BOGUS")
	assert.ErrorIs(t, err, telstar.ErrInvalidInput)
}

// ──────────────────────────────────────────────────
// Customers
// ──────────────────────────────────────────────────

func TestRegisterCustomer(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	c := register(t, e, "Alice@Example.com ")
	assert.Equal(t, "alice@example.com", c.Email)
	assert.NotEqual(t, "pw", c.PasswordHash)

	_, err := e.RegisterCustomer(ctx, customer.Registration{Name: "Other", Email: "alice@example.com", Password: "x"})
	assert.ErrorIs(t, err, telstar.ErrDuplicateEmail)

	tests := []struct {
		name  string
		reg   customer.Registration
		field string
	}{
		{"missing name", customer.Registration{Email: "a@b.co", Password: "x"}, "name"},
		{"bad email", customer.Registration{Name: "A", Email: "not-an-email", Password: "x"}, "email"},
		{"missing password", customer.Registration{Name: "A", Email: "a@b.co"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.RegisterCustomer(ctx, tt.reg)
			var verr telstar.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	issuer, err := auth.NewJWTIssuer([]byte("a-test-secret-of-enough-length"), 0)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e, _ := newEngine(t, telstar.WithTokenIssuer(issuer), telstar.WithClock(func() time.Time { return now }))

	c := register(t, e, "a@example.com")

	tok, err := e.Authenticate(ctx, "A@example.com", "pw")
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Value)
	assert.Equal(t, now.Add(24*time.Hour), tok.ExpiresAt)

	verified, err := e.VerifyToken(ctx, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, c.ID.String(), verified.ID.String())

	_, err = e.Authenticate(ctx, "a@example.com", "wrong")
	assert.ErrorIs(t, err, telstar.ErrInvalidCredentials)

	_, err = e.Authenticate(ctx, "ghost@example.com", "pw")
	assert.ErrorIs(t, err, telstar.ErrInvalidCredentials)

	_, err = e.Authenticate(ctx, "", "pw")
	assert.ErrorIs(t, err, telstar.ErrInvalidInput)

	_, err = e.VerifyToken(ctx, "garbage")
	assert.Equal(t, telstar.KindInvalidCredentials, telstar.KindOf(err))
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

func TestEnrollSupersedesActiveSubscription(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	register(t, e, "a@example.com")
	gold, err := e.AddPlan(ctx, postpaidSpec("Gold", "0.05"))
	require.NoError(t, err)
	silver, err := e.AddPlan(ctx, prepaidSpec("Silver", "0.05", "20"))
	require.NoError(t, err)

	first, err := e.Enroll(ctx, "a@example.com", "Gold", plan.TypePostpaid)
	require.NoError(t, err)
	assert.Nil(t, first.Balance)

	second, err := e.Enroll(ctx, "a@example.com", "Silver", plan.TypePrepaid)
	require.NoError(t, err)
	require.NotNil(t, second.Balance)
	assert.True(t, second.Balance.Equal(types.USD(2000)))

	history, err := e.ListSubscriptionHistory(ctx, "a@example.com")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID.String(), history[0].ID.String())
	assert.Equal(t, subscription.StatusSuperseded, history[1].Status)

	active := 0
	for _, s := range history {
		if s.IsActive() {
			active++
		}
	}
	assert.Equal(t, 1, active)

	c, err := e.GetCustomer(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, silver.ID.String(), c.CurrentPlanID.String())
	assert.NotEqual(t, gold.ID.String(), c.CurrentPlanID.String())
}

func TestConcurrentEnrollKeepsSingleActive(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	register(t, e, "busy@example.com")
	for _, name := range []string{"A", "B", "C"} {
		_, err := e.AddPlan(ctx, postpaidSpec(name, "0.01"))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.Enroll(ctx, "busy@example.com", []string{"A", "B", "C"}[i%3], plan.TypePostpaid)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := e.ListSubscriptionHistory(ctx, "busy@example.com")
	require.NoError(t, err)
	require.Len(t, history, 30)

	active := 0
	for _, s := range history {
		if s.IsActive() {
			active++
		}
	}
	assert.Equal(t, 1, active)
	assert.True(t, history[0].IsActive())
}

func TestEnrollErrors(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	register(t, e, "a@example.com")
	_, err := e.AddPlan(ctx, postpaidSpec("Gold", "0.05"))
	require.NoError(t, err)
	_, err = e.AddPlan(ctx, prepaidSpec("Tiny", "0.50", "0.10"))
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		planName string
		planType plan.Type
		want     error
	}{
		{"unknown customer", "ghost@example.com", "Gold", plan.TypePostpaid, telstar.ErrCustomerNotFound},
		{"unknown plan", "a@example.com", "Platinum", plan.TypePostpaid, telstar.ErrPlanNotFound},
		{"type mismatch", "a@example.com", "Gold", plan.TypePrepaid, telstar.ErrPlanNotFound},
		{"prepaid balance below rate", "a@example.com", "Tiny", plan.TypePrepaid, telstar.ErrInsufficientBalance},
		{"missing plan name", "a@example.com", "", plan.TypePostpaid, telstar.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Enroll(ctx, tt.email, tt.planName, tt.planType)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	history, err := e.ListSubscriptionHistory(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Empty(t, history)
}

// ──────────────────────────────────────────────────
// Invoices
// ──────────────────────────────────────────────────

func TestPostpaidInvoiceLifecycle(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, telstar.WithUsageSource(usage.Fixed(decimal.NewFromInt(100))))

	register(t, e, "a@example.com")
	_, err := e.AddPlan(ctx, postpaidSpec("Gold", "0.05"))
	require.NoError(t, err)
	_, err = e.Enroll(ctx, "a@example.com", "Gold", plan.TypePostpaid)
	require.NoError(t, err)

	inv, err := e.GenerateInvoice(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, inv.Status)
	assert.Equal(t, "$5.00", inv.Amount.String())
	assert.True(t, inv.Units.Equal(decimal.NewFromInt(100)))
	assert.Nil(t, inv.PaidAt)

	res, err := e.PayPostpaidInvoice(ctx, telstar.Payment{CustomerEmail: "a@example.com", InvoiceID: inv.ID})
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, res.Invoice.Status)
	assert.Equal(t, telstar.MessagePaidSamePlan, res.Message)
	assert.False(t, res.PlanChanged)
	require.NotNil(t, res.Subscription)

	_, err = e.PayPostpaidInvoice(ctx, telstar.Payment{CustomerEmail: "a@example.com", InvoiceID: inv.ID})
	assert.ErrorIs(t, err, telstar.ErrAlreadyPaid)
	assert.ErrorIs(t, err, telstar.ErrInvalidState)

	stored, err := e.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
}

func TestPrepaidInvoiceSettlement(t *testing.T) {
	ctx := context.Background()
	src := &unitsSource{}
	e, _ := newEngine(t, telstar.WithUsageSource(src))

	register(t, e, "p@example.com")
	_, err := e.AddPlan(ctx, prepaidSpec("Pre", "0.05", "1.00"))
	require.NoError(t, err)
	_, err = e.Enroll(ctx, "p@example.com", "Pre", plan.TypePrepaid)
	require.NoError(t, err)

	// 30 units cost 1.50 against a 1.00 balance.
	src.set("30")
	_, err = e.GenerateInvoice(ctx, "p@example.com")
	assert.ErrorIs(t, err, telstar.ErrInsufficientBalance)
	assert.Equal(t, telstar.KindInsufficientBalance, telstar.KindOf(err))

	sub, err := e.CurrentSubscription(ctx, "p@example.com")
	require.NoError(t, err)
	assert.True(t, sub.Balance.Equal(types.USD(100)), "balance %s", sub.Balance)

	invs, err := e.ListInvoiceHistory(ctx, "p@example.com")
	require.NoError(t, err)
	assert.Empty(t, invs)

	// 10 units cost 0.50, leaving 0.50.
	src.set("10")
	inv, err := e.GenerateInvoice(ctx, "p@example.com")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, inv.Status)
	require.NotNil(t, inv.PaidAt)
	assert.True(t, inv.Amount.Equal(types.USD(50)))

	sub, err = e.CurrentSubscription(ctx, "p@example.com")
	require.NoError(t, err)
	assert.True(t, sub.Balance.Equal(types.USD(50)), "balance %s", sub.Balance)

	// Exactly the remaining balance is allowed.
	inv, err = e.GenerateInvoice(ctx, "p@example.com")
	require.NoError(t, err)
	assert.True(t, inv.IsPaid())

	sub, err = e.CurrentSubscription(ctx, "p@example.com")
	require.NoError(t, err)
	assert.True(t, sub.Balance.IsZero())
}

func TestReenrollSamePlanKeepsBalance(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, telstar.WithUsageSource(usage.Fixed(decimal.NewFromInt(20))))

	register(t, e, "p@example.com")
	_, err := e.AddPlan(ctx, prepaidSpec("Pre", "0.05", "1.00"))
	require.NoError(t, err)
	_, err = e.AddPlan(ctx, prepaidSpec("Other", "0.05", "3.00"))
	require.NoError(t, err)

	_, err = e.Enroll(ctx, "p@example.com", "Pre", plan.TypePrepaid)
	require.NoError(t, err)
	// 20 units cost 1.00, draining the wallet.
	_, err = e.GenerateInvoice(ctx, "p@example.com")
	require.NoError(t, err)

	again, err := e.Enroll(ctx, "p@example.com", "Pre", plan.TypePrepaid)
	require.NoError(t, err)
	require.NotNil(t, again.Balance)
	assert.True(t, again.Balance.IsZero(), "balance %s", again.Balance)

	_, err = e.GenerateInvoice(ctx, "p@example.com")
	assert.ErrorIs(t, err, telstar.ErrInsufficientBalance)

	// A different plan starts from its own balance.
	other, err := e.Enroll(ctx, "p@example.com", "Other", plan.TypePrepaid)
	require.NoError(t, err)
	assert.True(t, other.Balance.Equal(types.USD(300)), "balance %s", other.Balance)
}

func TestConcurrentPayoffSettlesOnce(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, telstar.WithUsageSource(usage.Fixed(decimal.NewFromInt(10))))

	register(t, e, "a@example.com")
	_, err := e.AddPlan(ctx, postpaidSpec("Post", "0.05"))
	require.NoError(t, err)
	_, err = e.Enroll(ctx, "a@example.com", "Post", plan.TypePostpaid)
	require.NoError(t, err)
	inv, err := e.GenerateInvoice(ctx, "a@example.com")
	require.NoError(t, err)
	require.Equal(t, invoice.StatusPending, inv.Status)

	const payers = 20
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		succeeded   int
		alreadyPaid int
	)
	for i := 0; i < payers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.PayPostpaidInvoice(ctx, telstar.Payment{CustomerEmail: "a@example.com", InvoiceID: inv.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, telstar.ErrAlreadyPaid):
				alreadyPaid++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, payers-1, alreadyPaid)

	got, err := e.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPaid())
}

func TestPayWithFailedPlanChangeRollsBack(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, telstar.WithUsageSource(usage.Fixed(decimal.NewFromInt(10))))

	register(t, e, "a@example.com")
	_, err := e.AddPlan(ctx, postpaidSpec("Gold", "0.05"))
	require.NoError(t, err)
	before, err := e.Enroll(ctx, "a@example.com", "Gold", plan.TypePostpaid)
	require.NoError(t, err)

	inv, err := e.GenerateInvoice(ctx, "a@example.com")
	require.NoError(t, err)

	_, err = e.PayPostpaidInvoice(ctx, telstar.Payment{
		CustomerEmail: "a@example.com",
		InvoiceID:     inv.ID,
		ChangePlan:    true,
		NewPlanName:   "Does Not Exist",
	})
	assert.ErrorIs(t, err, telstar.ErrPlanNotFound)

	stored, err := e.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, stored.Status)
	assert.Nil(t, stored.PaidAt)

	current, err := e.CurrentSubscription(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, before.ID.String(), current.ID.String())
}

func TestPayWithPlanChange(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, telstar.WithUsageSource(usage.Fixed(decimal.NewFromInt(10))))

	register(t, e, "a@example.com")
	_, err := e.AddPlan(ctx, postpaidSpec("Gold", "0.05"))
	require.NoError(t, err)
	platinum, err := e.AddPlan(ctx, prepaidSpec("Platinum", "0.02", "50"))
	require.NoError(t, err)
	_, err = e.Enroll(ctx, "a@example.com", "Gold", plan.TypePostpaid)
	require.NoError(t, err)

	inv, err := e.GenerateInvoice(ctx, "a@example.com")
	require.NoError(t, err)

	res, err := e.PayPostpaidInvoice(ctx, telstar.Payment{
		CustomerEmail: "a@example.com",
		InvoiceID:     inv.ID,
		ChangePlan:    true,
		NewPlanName:   "Platinum",
		NewPlanType:   plan.TypePrepaid,
	})
	require.NoError(t, err)
	assert.True(t, res.PlanChanged)
	assert.Equal(t, telstar.MessagePaidNewPlan, res.Message)
	assert.Equal(t, platinum.ID.String(), res.Subscription.PlanID.String())

	current, err := e.CurrentSubscription(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, res.Subscription.ID.String(), current.ID.String())
}

func TestPayErrors(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, telstar.WithUsageSource(usage.Fixed(decimal.NewFromInt(1))))

	register(t, e, "a@example.com")
	register(t, e, "b@example.com")
	_, err := e.AddPlan(ctx, postpaidSpec("Post", "0.05"))
	require.NoError(t, err)
	_, err = e.AddPlan(ctx, prepaidSpec("Pre", "0.05", "10"))
	require.NoError(t, err)

	_, err = e.Enroll(ctx, "a@example.com", "Post", plan.TypePostpaid)
	require.NoError(t, err)
	postInv, err := e.GenerateInvoice(ctx, "a@example.com")
	require.NoError(t, err)

	_, err = e.Enroll(ctx, "b@example.com", "Pre", plan.TypePrepaid)
	require.NoError(t, err)
	preInv, err := e.GenerateInvoice(ctx, "b@example.com")
	require.NoError(t, err)

	tests := []struct {
		name  string
		email string
		invID id.InvoiceID
		want  error
	}{
		{"someone else's invoice", "b@example.com", postInv.ID, telstar.ErrInvoiceNotFound},
		{"unknown invoice", "a@example.com", id.NewInvoiceID(), telstar.ErrInvoiceNotFound},
		{"prepaid invoice", "b@example.com", preInv.ID, telstar.ErrInvalidState},
		{"unknown customer", "ghost@example.com", postInv.ID, telstar.ErrCustomerNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.PayPostpaidInvoice(ctx, telstar.Payment{CustomerEmail: tt.email, InvoiceID: tt.invID})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// A prepaid invoice is already settled; it reports the same kind as a double pay.
	_, err = e.PayPostpaidInvoice(ctx, telstar.Payment{CustomerEmail: "b@example.com", InvoiceID: preInv.ID})
	assert.NotErrorIs(t, err, telstar.ErrAlreadyPaid)
	assert.Equal(t, telstar.KindInvalidState, telstar.KindOf(err))
}

func TestGenerateInvoiceWithoutSubscription(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	register(t, e, "a@example.com")
	_, err := e.GenerateInvoice(ctx, "a@example.com")
	assert.ErrorIs(t, err, telstar.ErrNoActiveSubscription)
	assert.True(t, telstar.IsNotFound(err))

	_, err = e.GenerateInvoice(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, telstar.ErrCustomerNotFound)
}

func TestGenerateInvoiceDefaultsToZeroUnits(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	register(t, e, "a@example.com")
	_, err := e.AddPlan(ctx, postpaidSpec("Gold", "0.05"))
	require.NoError(t, err)
	_, err = e.Enroll(ctx, "a@example.com", "Gold", "")
	require.NoError(t, err)

	inv, err := e.GenerateInvoice(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, inv.Amount.IsZero())
	assert.True(t, inv.Units.IsZero())
}

func TestGenerateInvoiceRejectsNegativeUnits(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, telstar.WithUsageSource(usage.Fixed(decimal.NewFromInt(-1))))

	register(t, e, "a@example.com")
	_, err := e.AddPlan(ctx, postpaidSpec("Gold", "0.05"))
	require.NoError(t, err)
	_, err = e.Enroll(ctx, "a@example.com", "Gold", plan.TypePostpaid)
	require.NoError(t, err)

	_, err = e.GenerateInvoice(ctx, "a@example.com")
	assert.ErrorIs(t, err, telstar.ErrInvalidInput)
}

func TestUsageSourceFailureIsStorageError(t *testing.T) {
	ctx := context.Background()
	src := usage.SourceFunc(func(context.Context, usage.Request) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("rating backend unavailable")
	})
	e, _ := newEngine(t, telstar.WithUsageSource(src))

	register(t, e, "a@example.com")
	_, err := e.AddPlan(ctx, postpaidSpec("Gold", "0.05"))
	require.NoError(t, err)
	_, err = e.Enroll(ctx, "a@example.com", "Gold", plan.TypePostpaid)
	require.NoError(t, err)

	_, err = e.GenerateInvoice(ctx, "a@example.com")
	var serr *telstar.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "generate invoice", serr.Op)
}

func TestRecordedUsageIsBilled(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(d)
	}

	s := memory.New()
	e := telstar.New(s,
		telstar.WithHasher(auth.NewBcryptHasher(4)),
		telstar.WithClock(now),
		telstar.WithUsageSource(usage.NewStoreSource(s)),
	)
	require.NoError(t, e.Start(ctx))

	register(t, e, "a@example.com")
	_, err := e.AddPlan(ctx, postpaidSpec("Gold", "0.05"))
	require.NoError(t, err)
	_, err = e.Enroll(ctx, "a@example.com", "Gold", plan.TypePostpaid)
	require.NoError(t, err)

	advance(time.Hour)
	_, err = e.RecordUsage(ctx, "a@example.com", decimal.NewFromInt(40))
	require.NoError(t, err)
	advance(time.Hour)
	_, err = e.RecordUsage(ctx, "a@example.com", decimal.NewFromInt(60))
	require.NoError(t, err)

	inv, err := e.GenerateInvoice(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, inv.Units.Equal(decimal.NewFromInt(100)))
	assert.True(t, inv.Amount.Equal(types.USD(500)))
	assert.True(t, inv.PeriodStart.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	// The next cycle starts empty.
	advance(30 * 24 * time.Hour)
	next, err := e.GenerateInvoice(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, next.Units.IsZero())
	assert.True(t, next.PeriodStart.Equal(time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)))

	_, err = e.RecordUsage(ctx, "a@example.com", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, telstar.ErrInvalidInput)
}

func TestLongestCycleBillsRecordedUsage(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}

	s := memory.New()
	e := telstar.New(s,
		telstar.WithHasher(auth.NewBcryptHasher(4)),
		telstar.WithClock(now),
		telstar.WithUsageSource(usage.NewStoreSource(s)),
	)
	require.NoError(t, e.Start(ctx))

	register(t, e, "a@example.com")
	spec := postpaidSpec("Decade", "0.05")
	spec.BillingCycleDays = plan.MaxBillingCycleDays
	_, err := e.AddPlan(ctx, spec)
	require.NoError(t, err)
	_, err = e.Enroll(ctx, "a@example.com", "Decade", plan.TypePostpaid)
	require.NoError(t, err)

	mu.Lock()
	clock = clock.Add(time.Hour)
	mu.Unlock()
	_, err = e.RecordUsage(ctx, "a@example.com", decimal.NewFromInt(10))
	require.NoError(t, err)

	inv, err := e.GenerateInvoice(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, inv.Units.Equal(decimal.NewFromInt(10)))
	assert.True(t, inv.Amount.Equal(types.USD(50)))
	assert.True(t, inv.PeriodEnd.After(inv.PeriodStart))
	assert.True(t, inv.PeriodEnd.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, plan.MaxBillingCycleDays)))
}

// ──────────────────────────────────────────────────
// History
// ──────────────────────────────────────────────────

func TestInvoiceHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, telstar.WithUsageSource(usage.Fixed(decimal.NewFromInt(3))))

	register(t, e, "a@example.com")
	_, err := e.AddPlan(ctx, postpaidSpec("Gold", "0.05"))
	require.NoError(t, err)
	_, err = e.Enroll(ctx, "a@example.com", "Gold", plan.TypePostpaid)
	require.NoError(t, err)

	const n = 5
	var ids []string
	for i := 0; i < n; i++ {
		inv, err := e.GenerateInvoice(ctx, "a@example.com")
		require.NoError(t, err)
		ids = append(ids, inv.ID.String())
	}

	history, err := e.ListInvoiceHistory(ctx, "a@example.com")
	require.NoError(t, err)
	require.Len(t, history, n)
	for i, inv := range history {
		assert.Equal(t, ids[n-1-i], inv.ID.String())
	}

	padded, err := e.ListInvoiceHistory(ctx, "a@example.com ")
	require.NoError(t, err)
	assert.Len(t, padded, n)

	_, err = e.ListInvoiceHistory(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, telstar.ErrCustomerNotFound)
}

// ──────────────────────────────────────────────────
// Storage failures and plugins
// ──────────────────────────────────────────────────

type brokenStore struct {
	*memory.Store
}

func (brokenStore) GetCustomerByEmail(context.Context, string) (*customer.Customer, error) {
	return nil, errors.New("connection reset")
}

func TestStoreFailureIsStorageError(t *testing.T) {
	e := telstar.New(brokenStore{memory.New()})

	_, err := e.ListInvoiceHistory(context.Background(), "a@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, telstar.ErrStorage)
	assert.Equal(t, telstar.KindStorage, telstar.KindOf(err))
	assert.Contains(t, err.Error(), "connection reset")
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) OnPlanCreated(context.Context, *plan.Plan) error {
	r.add("plan.created")
	return nil
}
func (r *recorder) OnSubscriptionCreated(context.Context, *subscription.Subscription) error {
	r.add("subscription.created")
	return nil
}
func (r *recorder) OnSubscriptionChanged(context.Context, *subscription.Subscription, *subscription.Subscription) error {
	r.add("subscription.changed")
	return nil
}
func (r *recorder) OnInvoiceGenerated(context.Context, *invoice.Invoice) error {
	r.add("invoice.generated")
	return nil
}
func (r *recorder) OnInvoicePaid(context.Context, *invoice.Invoice) error {
	r.add("invoice.paid")
	return nil
}
func (r *recorder) OnInvoiceFailed(context.Context, *subscription.Subscription, error) error {
	r.add("invoice.failed")
	return errors.New("hook errors are ignored")
}

func TestPluginHooks(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	src := &unitsSource{}
	e, _ := newEngine(t, telstar.WithPlugin(rec), telstar.WithUsageSource(src))

	register(t, e, "a@example.com")
	_, err := e.AddPlan(ctx, prepaidSpec("Pre", "1", "1"))
	require.NoError(t, err)
	_, err = e.Enroll(ctx, "a@example.com", "Pre", plan.TypePrepaid)
	require.NoError(t, err)
	_, err = e.Enroll(ctx, "a@example.com", "Pre", plan.TypePrepaid)
	require.NoError(t, err)

	src.set("1")
	_, err = e.GenerateInvoice(ctx, "a@example.com")
	require.NoError(t, err)
	src.set("5")
	_, err = e.GenerateInvoice(ctx, "a@example.com")
	require.ErrorIs(t, err, telstar.ErrInsufficientBalance)

	assert.Equal(t, []string{
		"plan.created",
		"subscription.created",
		"subscription.changed",
		"subscription.created",
		"invoice.generated",
		"invoice.paid",
		"invoice.failed",
	}, rec.events)
}

type textFormatter struct{}

func (textFormatter) Name() string        { return "text-formatter" }
func (textFormatter) Format() string      { return "text" }
func (textFormatter) ContentType() string { return "text/plain" }
func (textFormatter) Render(_ context.Context, st *invoice.Statement, w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s %s %s", st.CustomerName, st.PlanName, st.Invoice.Amount)
	return err
}

func TestRenderInvoice(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, telstar.WithPlugin(textFormatter{}), telstar.WithUsageSource(usage.Fixed(decimal.NewFromInt(100))))

	register(t, e, "a@example.com")
	_, err := e.AddPlan(ctx, postpaidSpec("Gold", "0.05"))
	require.NoError(t, err)
	_, err = e.Enroll(ctx, "a@example.com", "Gold", plan.TypePostpaid)
	require.NoError(t, err)
	inv, err := e.GenerateInvoice(ctx, "a@example.com")
	require.NoError(t, err)

	var out strings.Builder
	contentType, err := e.RenderInvoice(ctx, inv.ID, "text", &out)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", contentType)
	assert.Equal(t, "Test Customer Gold $5.00", out.String())

	_, err = e.RenderInvoice(ctx, inv.ID, "docx", io.Discard)
	assert.ErrorIs(t, err, telstar.ErrFormatterNotFound)

	_, err = e.RenderInvoice(ctx, id.NewInvoiceID(), "text", io.Discard)
	assert.ErrorIs(t, err, telstar.ErrInvoiceNotFound)
}
