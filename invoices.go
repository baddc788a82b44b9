package telstar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/types"
	"github.com/Nityam-7/TELSTAR/usage"
)

// Messages returned with a settled postpaid invoice.
const (
	MessagePaidSamePlan = "Invoice paid and same plan subscribed successfully"
	MessagePaidNewPlan  = "Invoice paid and new plan subscribed successfully"
)

// Payment is the input to PayPostpaidInvoice. NewPlanType may be empty to
// select the new plan by name alone.
type Payment struct {
	CustomerEmail string
	InvoiceID     id.InvoiceID
	ChangePlan    bool
	NewPlanName   string
	NewPlanType   plan.Type
}

// PaymentResult reports a settled invoice and the subscription that is
// active afterwards.
type PaymentResult struct {
	Invoice      *invoice.Invoice           `json:"invoice"`
	Subscription *subscription.Subscription `json:"subscription,omitempty"`
	PlanChanged  bool                       `json:"plan_changed"`
	Message      string                     `json:"message"`
}

// GenerateInvoice bills the current cycle of the customer's active
// subscription. Prepaid invoices settle against the subscription's balance
// and are created paid; postpaid invoices are created pending. Every call
// creates a new invoice.
func (e *Engine) GenerateInvoice(ctx context.Context, customerMail string) (*invoice.Invoice, error) {
	var (
		inv *invoice.Invoice
		sub *subscription.Subscription
	)

	err := e.store.Transaction(ctx, func(ctx context.Context) error {
		c, err := e.lockedCustomer(ctx, customerMail)
		if err != nil {
			return err
		}
		sub, err = e.store.GetActiveSubscription(ctx, c.ID)
		if err != nil {
			return err
		}
		p, err := e.store.GetPlan(ctx, sub.PlanID)
		if err != nil {
			return err
		}

		now := e.now()
		start, end := sub.CycleWindow(p.BillingCycleDays, now)

		units, err := e.usage.BilledUnits(ctx, usage.Request{
			CustomerID:     c.ID,
			SubscriptionID: sub.ID,
			PlanID:         p.ID,
			PeriodStart:    start,
			PeriodEnd:      end,
		})
		if err != nil {
			return fmt.Errorf("billed units: %w", err)
		}
		if units.IsNegative() {
			return ValidationError{Field: "billedUnits", Message: "must not be negative"}
		}

		inv = &invoice.Invoice{
			Entity:         types.NewEntity(now),
			ID:             id.NewInvoiceID(),
			CustomerID:     c.ID,
			SubscriptionID: sub.ID,
			PlanID:         p.ID,
			PlanType:       p.Type,
			Units:          units,
			RatePerUnit:    p.RatePerUnit,
			Amount:         p.RatePerUnit.Multiply(units).Round(),
			Status:         invoice.StatusPending,
			PeriodStart:    start,
			PeriodEnd:      end,
			IssuedAt:       now,
		}

		if p.IsPrepaid() {
			if err := e.settlePrepaid(ctx, sub, inv); err != nil {
				return err
			}
		}

		return e.store.CreateInvoice(ctx, inv)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) && sub != nil {
			e.logger.Info("prepaid invoice rejected",
				"subscription_id", sub.ID.String(),
				"balance", sub.Balance,
			)
			e.plugins.EmitInvoiceFailed(ctx, sub, err)
		}
		return nil, classify("generate invoice", err)
	}

	e.logger.Info("invoice generated",
		"invoice_id", inv.ID.String(),
		"customer_id", inv.CustomerID.String(),
		"amount", inv.Amount.String(),
		"status", inv.Status,
	)

	e.plugins.EmitInvoiceGenerated(ctx, inv)
	if inv.IsPaid() {
		e.plugins.EmitInvoicePaid(ctx, inv)
	}

	return inv, nil
}

// settlePrepaid debits the invoice amount from the subscription's balance
// and marks the invoice paid. A short balance leaves both untouched.
func (e *Engine) settlePrepaid(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice) error {
	balance := types.Zero(inv.Amount.Currency)
	if sub.Balance != nil {
		balance = *sub.Balance
	}
	if balance.LessThan(inv.Amount) {
		return ErrInsufficientBalance
	}

	remaining := balance.Subtract(inv.Amount)
	sub.Balance = &remaining
	sub.Touch(inv.IssuedAt)
	if err := e.store.UpdateSubscriptionBalance(ctx, sub); err != nil {
		return err
	}

	paidAt := inv.IssuedAt
	inv.Status = invoice.StatusPaid
	inv.PaidAt = &paidAt
	return nil
}

// PayPostpaidInvoice settles a pending postpaid invoice and, when asked,
// enrolls the customer in a new plan in the same transaction. If the
// enrollment fails the invoice stays pending.
//
// Prepaid invoices fail with ErrInvalidState rather than ErrAlreadyPaid even
// though they are always paid; both classify as KindInvalidState.
func (e *Engine) PayPostpaidInvoice(ctx context.Context, pay Payment) (*PaymentResult, error) {
	var (
		result = &PaymentResult{Message: MessagePaidSamePlan}
		change *enrollment
	)

	err := e.store.Transaction(ctx, func(ctx context.Context) error {
		c, err := e.lockedCustomer(ctx, pay.CustomerEmail)
		if err != nil {
			return err
		}

		inv, err := e.store.GetInvoice(ctx, pay.InvoiceID)
		if err != nil {
			return err
		}
		if !inv.CustomerID.Equal(c.ID) {
			return ErrInvoiceNotFound
		}
		if inv.PlanType != plan.TypePostpaid {
			return fmt.Errorf("%w: invoice %s is not postpaid", ErrInvalidState, inv.ID)
		}
		if inv.IsPaid() {
			return ErrAlreadyPaid
		}

		now := e.now()
		if err := e.store.MarkInvoicePaid(ctx, inv.ID, now); err != nil {
			return err
		}
		inv.Status = invoice.StatusPaid
		inv.PaidAt = &now
		inv.Touch(now)
		result.Invoice = inv

		if pay.ChangePlan {
			change, err = e.enrollLocked(ctx, c, pay.NewPlanName, pay.NewPlanType, now)
			if err != nil {
				return err
			}
			result.Subscription = change.sub
			result.PlanChanged = true
			result.Message = MessagePaidNewPlan
			return nil
		}

		current, err := e.store.GetActiveSubscription(ctx, c.ID)
		switch {
		case err == nil:
			result.Subscription = current
		case errors.Is(err, ErrNoActiveSubscription):
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return nil, classify("pay invoice", err)
	}

	e.logger.Info("postpaid invoice paid",
		"invoice_id", result.Invoice.ID.String(),
		"plan_changed", result.PlanChanged,
	)

	e.plugins.EmitInvoicePaid(ctx, result.Invoice)
	if change != nil {
		e.emitEnrollment(ctx, change)
	}

	return result, nil
}

// GetInvoice retrieves an invoice by ID.
func (e *Engine) GetInvoice(ctx context.Context, invoiceID id.InvoiceID) (*invoice.Invoice, error) {
	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, classify("get invoice", err)
	}
	return inv, nil
}

// RecordUsage appends already-aggregated billable units to the customer's
// active subscription.
func (e *Engine) RecordUsage(ctx context.Context, customerMail string, units decimal.Decimal) (*usage.Record, error) {
	if units.IsNegative() {
		return nil, ValidationError{Field: "units", Message: "must not be negative"}
	}

	var rec *usage.Record
	err := e.store.Transaction(ctx, func(ctx context.Context) error {
		c, err := e.lockedCustomer(ctx, customerMail)
		if err != nil {
			return err
		}
		sub, err := e.store.GetActiveSubscription(ctx, c.ID)
		if err != nil {
			return err
		}
		rec = &usage.Record{
			ID:             id.NewUsageID(),
			CustomerID:     c.ID,
			SubscriptionID: sub.ID,
			Units:          units,
			RecordedAt:     e.now(),
		}
		return e.store.RecordUsage(ctx, rec)
	})
	if err != nil {
		return nil, classify("record usage", err)
	}

	e.logger.Debug("usage recorded",
		"subscription_id", rec.SubscriptionID.String(),
		"units", rec.Units.String(),
	)
	e.plugins.EmitUsageRecorded(ctx, rec)

	return rec, nil
}

// RenderInvoice writes the invoice in the given format using a registered
// InvoiceFormatter and returns the document's content type.
func (e *Engine) RenderInvoice(ctx context.Context, invoiceID id.InvoiceID, format string, w io.Writer) (string, error) {
	formatter := e.plugins.InvoiceFormatter(format)
	if formatter == nil {
		return "", fmt.Errorf("%w: %q", ErrFormatterNotFound, format)
	}

	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return "", classify("render invoice", err)
	}
	c, err := e.store.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		return "", classify("render invoice", err)
	}
	p, err := e.store.GetPlan(ctx, inv.PlanID)
	if err != nil {
		return "", classify("render invoice", err)
	}

	st := &invoice.Statement{
		Invoice:       inv,
		CustomerName:  c.Name,
		CustomerEmail: c.Email,
		PlanName:      p.Name,
		Currency:      e.currency,
	}

	var buf bytes.Buffer
	if err := formatter.Render(ctx, st, &buf); err != nil {
		return "", fmt.Errorf("telstar: render invoice %s as %s: %w", inv.ID, format, err)
	}
	if _, err := buf.WriteTo(w); err != nil {
		return "", err
	}
	return formatter.ContentType(), nil
}
