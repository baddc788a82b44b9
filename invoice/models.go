package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/types"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// Invoice is the record of one billing event. Everything except the
// pending to paid transition is fixed at creation.
type Invoice struct {
	types.Entity
	ID             id.InvoiceID      `json:"id"`
	Number         int64             `json:"number"`
	CustomerID     id.CustomerID     `json:"customer_id"`
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	PlanID         id.PlanID         `json:"plan_id"`
	PlanType       plan.Type         `json:"plan_type"`
	Units          decimal.Decimal   `json:"units"`
	RatePerUnit    types.Money       `json:"rate_per_unit"`
	Amount         types.Money       `json:"amount"`
	Status         Status            `json:"status"`
	PeriodStart    time.Time         `json:"period_start"`
	PeriodEnd      time.Time         `json:"period_end"`
	IssuedAt       time.Time         `json:"issued_at"`
	PaidAt         *time.Time        `json:"paid_at,omitempty"`
}

func (inv *Invoice) IsPaid() bool { return inv.Status == StatusPaid }

// Statement is an invoice joined with the names a rendered document shows.
type Statement struct {
	Invoice       *Invoice
	CustomerName  string
	CustomerEmail string
	PlanName      string
	Currency      string
}
