package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/usage"
)

// ──────────────────────────────────────────────────
// Requests
// ──────────────────────────────────────────────────

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// addPlanRequest accepts numbers or numeric strings for every amount;
// decimal.Decimal unmarshals both. billingCycle and billingCycleDays are
// aliases.
type addPlanRequest struct {
	PlanName         string           `json:"planName"`
	RatePerUnit      *decimal.Decimal `json:"ratePerUnit"`
	PlanType         string           `json:"planType"`
	PrepaidBalance   *decimal.Decimal `json:"prepaidBalance"`
	BillingCycle     *decimal.Decimal `json:"billingCycle"`
	BillingCycleDays *decimal.Decimal `json:"billingCycleDays"`
	Description      string           `json:"description"`
	Replace          *bool            `json:"replace"`
}

type choosePlanRequest struct {
	CustomerMail string `json:"customerMail"`
	PlanName     string `json:"planName"`
	PlanType     string `json:"planType"`
}

type customerRequest struct {
	CustomerMail string `json:"customerMail"`
}

type payRequest struct {
	CustomerMail string `json:"customerMail"`
	InvoiceID    string `json:"invoiceId"`
	ChangePlan   bool   `json:"changePlan"`
	NewPlanName  string `json:"newPlanName"`
	NewPlanType  string `json:"newPlanType"`
}

type usageRequest struct {
	CustomerMail string           `json:"customerMail"`
	Units        *decimal.Decimal `json:"units"`
}

// ──────────────────────────────────────────────────
// Responses
// ──────────────────────────────────────────────────

type planDTO struct {
	PlanID         string     `json:"planId"`
	PlanName       string     `json:"planName"`
	PlanType       plan.Type  `json:"planType"`
	RatePerUnit    string     `json:"ratePerUnit"`
	Currency       string     `json:"currency"`
	BillingCycle   int        `json:"billingCycle"`
	PrepaidBalance *string    `json:"prepaidBalance,omitempty"`
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	RetiredAt      *time.Time `json:"retiredAt,omitempty"`
}

func newPlanDTO(p *plan.Plan) planDTO {
	out := planDTO{
		PlanID:       p.ID.String(),
		PlanName:     p.Name,
		PlanType:     p.Type,
		RatePerUnit:  p.RatePerUnit.FormatMajor(),
		Currency:     p.RatePerUnit.Currency,
		BillingCycle: p.BillingCycleDays,
		Description:  p.Description,
		Status:       string(p.Status),
		CreatedAt:    p.CreatedAt,
	}
	if p.Prepaid != nil {
		balance := p.Prepaid.Balance.FormatMajor()
		out.PrepaidBalance = &balance
	}
	if !p.IsActive() {
		retired := p.UpdatedAt
		out.RetiredAt = &retired
	}
	return out
}

func newPlanDTOs(plans []*plan.Plan) []planDTO {
	out := make([]planDTO, 0, len(plans))
	for _, p := range plans {
		out = append(out, newPlanDTO(p))
	}
	return out
}

type invoiceDTO struct {
	InvoiceID      string     `json:"invoiceId"`
	Number         int64      `json:"invoiceNumber"`
	CustomerID     string     `json:"customerId"`
	SubscriptionID string     `json:"subscriptionId"`
	PlanID         string     `json:"planId"`
	PlanType       plan.Type  `json:"planType"`
	Units          string     `json:"units"`
	RatePerUnit    string     `json:"ratePerUnit"`
	Amount         string     `json:"amount"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	PeriodStart    time.Time  `json:"periodStart"`
	PeriodEnd      time.Time  `json:"periodEnd"`
	IssuedAt       time.Time  `json:"date"`
	PaidAt         *time.Time `json:"paidAt,omitempty"`
}

func newInvoiceDTO(inv *invoice.Invoice) invoiceDTO {
	return invoiceDTO{
		InvoiceID:      inv.ID.String(),
		Number:         inv.Number,
		CustomerID:     inv.CustomerID.String(),
		SubscriptionID: inv.SubscriptionID.String(),
		PlanID:         inv.PlanID.String(),
		PlanType:       inv.PlanType,
		Units:          inv.Units.String(),
		RatePerUnit:    inv.RatePerUnit.FormatMajor(),
		Amount:         inv.Amount.FormatMajor(),
		Currency:       inv.Amount.Currency,
		Status:         string(inv.Status),
		PeriodStart:    inv.PeriodStart,
		PeriodEnd:      inv.PeriodEnd,
		IssuedAt:       inv.IssuedAt,
		PaidAt:         inv.PaidAt,
	}
}

type subscriptionDTO struct {
	SubscriptionID string     `json:"subscriptionId"`
	CustomerID     string     `json:"customerId"`
	PlanID         string     `json:"planId"`
	PlanName       string     `json:"planName,omitempty"`
	PlanType       plan.Type  `json:"planType"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"datePurchased"`
	SupersededAt   *time.Time `json:"supersededAt,omitempty"`
	Balance        *string    `json:"balance,omitempty"`
}

func newSubscriptionDTO(sub *subscription.Subscription, planName string) subscriptionDTO {
	out := subscriptionDTO{
		SubscriptionID: sub.ID.String(),
		CustomerID:     sub.CustomerID.String(),
		PlanID:         sub.PlanID.String(),
		PlanName:       planName,
		PlanType:       sub.PlanType,
		Status:         string(sub.Status),
		StartedAt:      sub.StartedAt,
		SupersededAt:   sub.SupersededAt,
	}
	if sub.Balance != nil {
		b := sub.Balance.FormatMajor()
		out.Balance = &b
	}
	return out
}

type usageDTO struct {
	UsageID        string    `json:"usageId"`
	SubscriptionID string    `json:"subscriptionId"`
	Units          string    `json:"units"`
	RecordedAt     time.Time `json:"recordedAt"`
}

func newUsageDTO(r *usage.Record) usageDTO {
	return usageDTO{
		UsageID:        r.ID.String(),
		SubscriptionID: r.SubscriptionID.String(),
		Units:          r.Units.String(),
		RecordedAt:     r.RecordedAt,
	}
}
