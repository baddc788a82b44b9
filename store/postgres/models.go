package postgres

import (
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/types"
)

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// ==================== Plan rows ====================

const planColumns = `seq, id, name, type, status, rate_per_unit, currency, billing_cycle_days,
    description, prepaid_balance, created_at, updated_at`

func scanPlan(row pgx.Row) (*plan.Plan, error) {
	var (
		p                  plan.Plan
		rawID, typ, status string
		rate               decimal.Decimal
		currency           string
		prepaid            decimal.NullDecimal
	)
	if err := row.Scan(&p.Seq, &rawID, &p.Name, &typ, &status, &rate, &currency,
		&p.BillingCycleDays, &p.Description, &prepaid, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	planID, err := id.ParsePlanID(rawID)
	if err != nil {
		return nil, err
	}
	p.ID = planID
	p.Type = plan.Type(typ)
	p.Status = plan.Status(status)
	p.RatePerUnit = types.FromDecimal(rate, currency)
	if prepaid.Valid {
		p.Prepaid = &plan.PrepaidTerms{Balance: types.FromDecimal(prepaid.Decimal, currency)}
	}
	p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
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

func scanCustomer(row pgx.Row) (*customer.Customer, error) {
	var (
		c     customer.Customer
		rawID string
	)
	if err := row.Scan(&rawID, &c.Name, &c.Email, &c.Phone, &c.PasswordHash, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}

	customerID, err := id.ParseCustomerID(rawID)
	if err != nil {
		return nil, err
	}
	c.ID = customerID
	c.CreatedAt, c.UpdatedAt = c.CreatedAt.UTC(), c.UpdatedAt.UTC()
	return &c, nil
}

// ==================== Subscription rows ====================

const subscriptionColumns = `seq, id, customer_id, plan_id, plan_type, status, started_at,
    superseded_at, balance, currency, created_at, updated_at`

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		s                          subscription.Subscription
		rawID, rawCust, rawPlan    string
		planType, status, currency string
		balance                    decimal.NullDecimal
	)
	if err := row.Scan(&s.Seq, &rawID, &rawCust, &rawPlan, &planType, &status, &s.StartedAt,
		&s.SupersededAt, &balance, &currency, &s.CreatedAt, &s.UpdatedAt); err != nil {
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
	s.PlanType = plan.Type(planType)
	s.Status = subscription.Status(status)
	if balance.Valid {
		m := types.FromDecimal(balance.Decimal, currency)
		s.Balance = &m
	}
	s.StartedAt = s.StartedAt.UTC()
	s.SupersededAt = utcPtr(s.SupersededAt)
	s.CreatedAt, s.UpdatedAt = s.CreatedAt.UTC(), s.UpdatedAt.UTC()
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

func scanInvoice(row pgx.Row) (*invoice.Invoice, error) {
	var (
		inv                             invoice.Invoice
		rawID, rawCust, rawSub, rawPlan string
		planType, status, currency      string
		rate, amount                    decimal.Decimal
	)
	if err := row.Scan(&inv.Number, &rawID, &rawCust, &rawSub, &rawPlan, &planType, &inv.Units,
		&rate, &amount, &currency, &status, &inv.PeriodStart, &inv.PeriodEnd, &inv.IssuedAt,
		&inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
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
	inv.PlanType = plan.Type(planType)
	inv.Status = invoice.Status(status)
	inv.RatePerUnit = types.FromDecimal(rate, currency)
	inv.Amount = types.FromDecimal(amount, currency)
	inv.PeriodStart, inv.PeriodEnd = inv.PeriodStart.UTC(), inv.PeriodEnd.UTC()
	inv.IssuedAt = inv.IssuedAt.UTC()
	inv.PaidAt = utcPtr(inv.PaidAt)
	inv.CreatedAt, inv.UpdatedAt = inv.CreatedAt.UTC(), inv.UpdatedAt.UTC()
	return &inv, nil
}
