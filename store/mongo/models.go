package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/types"
	"github.com/Nityam-7/TELSTAR/usage"
)

func toDecimal128(d decimal.Decimal) bson.Decimal128 {
	// decimal.String never produces text ParseDecimal128 rejects.
	d128, _ := bson.ParseDecimal128(d.String()) //nolint:errcheck // see above
	return d128
}

func fromDecimal128(d bson.Decimal128) (decimal.Decimal, error) {
	out, err := decimal.NewFromString(d.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("telstar/mongo: decode decimal %s: %w", d, err)
	}
	return out, nil
}

func toNullDecimal128(m *types.Money) *bson.Decimal128 {
	if m == nil {
		return nil
	}
	d := toDecimal128(m.Amount)
	return &d
}

// ==================== Plan models ====================

type planModel struct {
	ID               string           `bson:"_id"`
	Seq              int64            `bson:"seq"`
	Name             string           `bson:"name"`
	Type             string           `bson:"type"`
	Status           string           `bson:"status"`
	RatePerUnit      bson.Decimal128  `bson:"rate_per_unit"`
	Currency         string           `bson:"currency"`
	BillingCycleDays int              `bson:"billing_cycle_days"`
	Description      string           `bson:"description"`
	PrepaidBalance   *bson.Decimal128 `bson:"prepaid_balance,omitempty"`
	CreatedAt        time.Time        `bson:"created_at"`
	UpdatedAt        time.Time        `bson:"updated_at"`
}

func toPlanModel(p *plan.Plan) *planModel {
	m := &planModel{
		ID:               p.ID.String(),
		Seq:              p.Seq,
		Name:             p.Name,
		Type:             string(p.Type),
		Status:           string(p.Status),
		RatePerUnit:      toDecimal128(p.RatePerUnit.Amount),
		Currency:         p.RatePerUnit.Currency,
		BillingCycleDays: p.BillingCycleDays,
		Description:      p.Description,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if p.Prepaid != nil {
		m.PrepaidBalance = toNullDecimal128(&p.Prepaid.Balance)
	}
	return m
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(m.ID)
	if err != nil {
		return nil, err
	}
	rate, err := fromDecimal128(m.RatePerUnit)
	if err != nil {
		return nil, err
	}

	p := &plan.Plan{
		Entity:           types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:               planID,
		Seq:              m.Seq,
		Name:             m.Name,
		Type:             plan.Type(m.Type),
		Status:           plan.Status(m.Status),
		RatePerUnit:      types.FromDecimal(rate, m.Currency),
		BillingCycleDays: m.BillingCycleDays,
		Description:      m.Description,
	}
	if m.PrepaidBalance != nil {
		balance, err := fromDecimal128(*m.PrepaidBalance)
		if err != nil {
			return nil, err
		}
		p.Prepaid = &plan.PrepaidTerms{Balance: types.FromDecimal(balance, m.Currency)}
	}
	return p, nil
}

// ==================== Customer models ====================

type customerModel struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	Phone        string    `bson:"phone"`
	PasswordHash string    `bson:"password_hash"`
	LockVersion  int64     `bson:"lock_version"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toCustomerModel(c *customer.Customer) *customerModel {
	return &customerModel{
		ID:           c.ID.String(),
		Name:         c.Name,
		Email:        c.Email,
		Phone:        c.Phone,
		PasswordHash: c.PasswordHash,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func fromCustomerModel(m *customerModel) (*customer.Customer, error) {
	customerID, err := id.ParseCustomerID(m.ID)
	if err != nil {
		return nil, err
	}
	return &customer.Customer{
		Entity:       types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:           customerID,
		Name:         m.Name,
		Email:        m.Email,
		Phone:        m.Phone,
		PasswordHash: m.PasswordHash,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	ID           string           `bson:"_id"`
	Seq          int64            `bson:"seq"`
	CustomerID   string           `bson:"customer_id"`
	PlanID       string           `bson:"plan_id"`
	PlanType     string           `bson:"plan_type"`
	Status       string           `bson:"status"`
	StartedAt    time.Time        `bson:"started_at"`
	SupersededAt *time.Time       `bson:"superseded_at,omitempty"`
	Balance      *bson.Decimal128 `bson:"balance,omitempty"`
	Currency     string           `bson:"currency"`
	CreatedAt    time.Time        `bson:"created_at"`
	UpdatedAt    time.Time        `bson:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	m := &subscriptionModel{
		ID:           s.ID.String(),
		Seq:          s.Seq,
		CustomerID:   s.CustomerID.String(),
		PlanID:       s.PlanID.String(),
		PlanType:     string(s.PlanType),
		Status:       string(s.Status),
		StartedAt:    s.StartedAt,
		SupersededAt: s.SupersededAt,
		Balance:      toNullDecimal128(s.Balance),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.Balance != nil {
		m.Currency = s.Balance.Currency
	}
	return m
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParsePlanID(m.PlanID)
	if err != nil {
		return nil, err
	}

	s := &subscription.Subscription{
		Entity:       types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:           subID,
		Seq:          m.Seq,
		CustomerID:   customerID,
		PlanID:       planID,
		PlanType:     plan.Type(m.PlanType),
		Status:       subscription.Status(m.Status),
		StartedAt:    m.StartedAt,
		SupersededAt: m.SupersededAt,
	}
	if m.Balance != nil {
		balance, err := fromDecimal128(*m.Balance)
		if err != nil {
			return nil, err
		}
		money := types.FromDecimal(balance, m.Currency)
		s.Balance = &money
	}
	return s, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	ID             string          `bson:"_id"`
	Number         int64           `bson:"number"`
	CustomerID     string          `bson:"customer_id"`
	SubscriptionID string          `bson:"subscription_id"`
	PlanID         string          `bson:"plan_id"`
	PlanType       string          `bson:"plan_type"`
	Units          bson.Decimal128 `bson:"units"`
	RatePerUnit    bson.Decimal128 `bson:"rate_per_unit"`
	Amount         bson.Decimal128 `bson:"amount"`
	Currency       string          `bson:"currency"`
	Status         string          `bson:"status"`
	PeriodStart    time.Time       `bson:"period_start"`
	PeriodEnd      time.Time       `bson:"period_end"`
	IssuedAt       time.Time       `bson:"issued_at"`
	PaidAt         *time.Time      `bson:"paid_at,omitempty"`
	CreatedAt      time.Time       `bson:"created_at"`
	UpdatedAt      time.Time       `bson:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	return &invoiceModel{
		ID:             inv.ID.String(),
		Number:         inv.Number,
		CustomerID:     inv.CustomerID.String(),
		SubscriptionID: inv.SubscriptionID.String(),
		PlanID:         inv.PlanID.String(),
		PlanType:       string(inv.PlanType),
		Units:          toDecimal128(inv.Units),
		RatePerUnit:    toDecimal128(inv.RatePerUnit.Amount),
		Amount:         toDecimal128(inv.Amount.Amount),
		Currency:       inv.Amount.Currency,
		Status:         string(inv.Status),
		PeriodStart:    inv.PeriodStart,
		PeriodEnd:      inv.PeriodEnd,
		IssuedAt:       inv.IssuedAt,
		PaidAt:         inv.PaidAt,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParsePlanID(m.PlanID)
	if err != nil {
		return nil, err
	}

	var units, rate, amount decimal.Decimal
	for _, f := range []struct {
		dst *decimal.Decimal
		src bson.Decimal128
	}{
		{&units, m.Units},
		{&rate, m.RatePerUnit},
		{&amount, m.Amount},
	} {
		if *f.dst, err = fromDecimal128(f.src); err != nil {
			return nil, err
		}
	}

	return &invoice.Invoice{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             invID,
		Number:         m.Number,
		CustomerID:     customerID,
		SubscriptionID: subID,
		PlanID:         planID,
		PlanType:       plan.Type(m.PlanType),
		Units:          units,
		RatePerUnit:    types.FromDecimal(rate, m.Currency),
		Amount:         types.FromDecimal(amount, m.Currency),
		Status:         invoice.Status(m.Status),
		PeriodStart:    m.PeriodStart,
		PeriodEnd:      m.PeriodEnd,
		IssuedAt:       m.IssuedAt,
		PaidAt:         m.PaidAt,
	}, nil
}

// ==================== Usage models ====================

type usageModel struct {
	ID             string          `bson:"_id"`
	CustomerID     string          `bson:"customer_id"`
	SubscriptionID string          `bson:"subscription_id"`
	Units          bson.Decimal128 `bson:"units"`
	RecordedAt     time.Time       `bson:"recorded_at"`
}

func toUsageModel(r *usage.Record) *usageModel {
	return &usageModel{
		ID:             r.ID.String(),
		CustomerID:     r.CustomerID.String(),
		SubscriptionID: r.SubscriptionID.String(),
		Units:          toDecimal128(r.Units),
		RecordedAt:     r.RecordedAt,
	}
}
