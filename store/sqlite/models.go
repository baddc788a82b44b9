package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/types"
)

// Timestamps are stored as fixed-width UTC text so that string order is
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("telstar/sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// ==================== Plan rows ====================

const planColumns = `seq, id, name, type, status, rate_per_unit, currency, billing_cycle_days,
    description, prepaid_balance, created_at, updated_at`

func scanPlan(row scanner) (*plan.Plan, error) {
	var (
		p                    plan.Plan
		rawID, status, typ   string
		rate                 decimal.Decimal
		currency             string
		prepaid              decimal.NullDecimal
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.Seq, &rawID, &p.Name, &typ, &status, &rate, &currency,
		&p.BillingCycleDays, &p.Description, &prepaid, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if p.ID, err = id.ParsePlanID(rawID); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	p.Type = plan.Type(typ)
	p.Status = plan.Status(status)
	p.RatePerUnit = types.FromDecimal(rate, currency)
	if prepaid.Valid {
		p.Prepaid = &plan.PrepaidTerms{Balance: types.FromDecimal(prepaid.Decimal, currency)}
	}
	return &p, nil
}

func prepaidBalance(p *plan.Plan) decimal.NullDecimal {
	if p.Prepaid == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(p.Prepaid.Balance.Amount)
}

// ==================== Customer rows ====================

const customerColumns = `id, name, email, phone, password_hash, created_at, updated_at`

func scanCustomer(row scanner) (*customer.Customer, error) {
	var (
		c                    customer.Customer
		rawID                string
		createdAt, updatedAt string
	)
	if err := row.Scan(&rawID, &c.Name, &c.Email, &c.Phone, &c.PasswordHash, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if c.ID, err = id.ParseCustomerID(rawID); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// ==================== Subscription rows ====================

const subscriptionColumns = `seq, id, customer_id, plan_id, plan_type, status, started_at,
    superseded_at, balance, currency, created_at, updated_at`

func scanSubscription(row scanner) (*subscription.Subscription, error) {
	var (
		s                          subscription.Subscription
		rawID, rawCust, rawPlan    string
		planType, status, currency string
		startedAt                  string
		supersededAt               sql.NullString
		balance                    decimal.NullDecimal
		createdAt, updatedAt       string
	)
	if err := row.Scan(&s.Seq, &rawID, &rawCust, &rawPlan, &planType, &status, &startedAt,
		&supersededAt, &balance, &currency, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if s.ID, err = id.ParseSubscriptionID(rawID); err != nil {
		return nil, err
	}
	if s.CustomerID, err = id.ParseCustomerID(rawCust); err != nil {
		return nil, err
	}
	if s.PlanID, err = id.ParsePlanID(rawPlan); err != nil {
		return nil, err
	}
	if s.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if s.SupersededAt, err = parseNullTime(supersededAt); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	s.PlanType = plan.Type(planType)
	s.Status = subscription.Status(status)
	if balance.Valid {
		m := types.FromDecimal(balance.Decimal, currency)
		s.Balance = &m
	}
	return &s, nil
}

func subscriptionBalance(s *subscription.Subscription) (decimal.NullDecimal, string) {
	if s.Balance == nil {
		return decimal.NullDecimal{}, ""
	}
	return decimal.NewNullDecimal(s.Balance.Amount), s.Balance.Currency
}

// ==================== Invoice rows ====================

const invoiceColumns = `number, id, customer_id, subscription_id, plan_id, plan_type, units,
    rate_per_unit, amount, currency, status, period_start, period_end, issued_at, paid_at,
    created_at, updated_at`

func scanInvoice(row scanner) (*invoice.Invoice, error) {
	var (
		inv                              invoice.Invoice
		rawID, rawCust, rawSub, rawPlan  string
		planType, status, currency       string
		rate, amount                     decimal.Decimal
		periodStart, periodEnd, issuedAt string
		paidAt                           sql.NullString
		createdAt, updatedAt             string
	)
	if err := row.Scan(&inv.Number, &rawID, &rawCust, &rawSub, &rawPlan, &planType, &inv.Units,
		&rate, &amount, &currency, &status, &periodStart, &periodEnd, &issuedAt, &paidAt,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if inv.ID, err = id.ParseInvoiceID(rawID); err != nil {
		return nil, err
	}
	if inv.CustomerID, err = id.ParseCustomerID(rawCust); err != nil {
		return nil, err
	}
	if inv.SubscriptionID, err = id.ParseSubscriptionID(rawSub); err != nil {
		return nil, err
	}
	if inv.PlanID, err = id.ParsePlanID(rawPlan); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst *time.Time
		src string
	}{
		{&inv.PeriodStart, periodStart},
		{&inv.PeriodEnd, periodEnd},
		{&inv.IssuedAt, issuedAt},
		{&inv.CreatedAt, createdAt},
		{&inv.UpdatedAt, updatedAt},
	} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return nil, err
		}
	}
	if inv.PaidAt, err = parseNullTime(paidAt); err != nil {
		return nil, err
	}
	inv.PlanType = plan.Type(planType)
	inv.Status = invoice.Status(status)
	inv.RatePerUnit = types.FromDecimal(rate, currency)
	inv.Amount = types.FromDecimal(amount, currency)
	return &inv, nil
}
