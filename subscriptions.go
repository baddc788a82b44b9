package telstar

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/types"
)

// enrollment is the outcome of one enroll step, kept for post-commit hooks.
type enrollment struct {
	sub      *subscription.Subscription
	previous *subscription.Subscription
	plan     *plan.Plan
}

// Enroll subscribes the customer to the named plan, superseding the current
// active subscription. planType may be empty to match the name alone.
func (e *Engine) Enroll(ctx context.Context, customerMail, planName string, planType plan.Type) (*subscription.Subscription, error) {
	var out *enrollment
	err := e.store.Transaction(ctx, func(ctx context.Context) error {
		c, err := e.lockedCustomer(ctx, customerMail)
		if err != nil {
			return err
		}
		out, err = e.enrollLocked(ctx, c, planName, planType, e.now())
		return err
	})
	if err != nil {
		return nil, classify("enroll", err)
	}

	e.logger.Info("customer enrolled",
		"customer_id", out.sub.CustomerID.String(),
		"subscription_id", out.sub.ID.String(),
		"plan_id", out.plan.ID.String(),
	)
	e.emitEnrollment(ctx, out)

	return out.sub, nil
}

// enrollLocked runs inside a transaction holding the customer's lock.
func (e *Engine) enrollLocked(ctx context.Context, c *customer.Customer, planName string, planType plan.Type, now time.Time) (*enrollment, error) {
	planName = strings.TrimSpace(planName)
	if planName == "" {
		return nil, ValidationError{Field: "planName", Message: "is required"}
	}
	if planType != "" {
		parsed, ok := plan.ParseType(string(planType))
		if !ok {
			return nil, ValidationError{Field: "planType", Message: "must be one of PREPAID POSTPAID"}
		}
		planType = parsed
	}

	p, err := e.store.GetActivePlanByName(ctx, planName)
	if err != nil {
		return nil, err
	}
	if planType != "" && p.Type != planType {
		return nil, ErrPlanNotFound
	}
	if p.IsPrepaid() && p.Prepaid.Balance.LessThan(p.RatePerUnit) {
		return nil, ErrInsufficientBalance
	}

	previous, err := e.store.GetActiveSubscription(ctx, c.ID)
	switch {
	case err == nil:
		if err := e.store.SupersedeSubscription(ctx, previous.ID, now); err != nil {
			return nil, err
		}
		previous.Status = subscription.StatusSuperseded
		previous.SupersededAt = &now
		previous.Touch(now)
	case errors.Is(err, ErrNoActiveSubscription):
		previous = nil
	default:
		return nil, err
	}

	sub := &subscription.Subscription{
		Entity:     types.NewEntity(now),
		ID:         id.NewSubscriptionID(),
		CustomerID: c.ID,
		PlanID:     p.ID,
		PlanType:   p.Type,
		Status:     subscription.StatusActive,
		StartedAt:  now,
	}
	if p.IsPrepaid() {
		balance := p.Prepaid.Balance
		// Re-enrolling in the same plan keeps the wallet instead of refilling it.
		if previous != nil && previous.PlanID.Equal(p.ID) && previous.Balance != nil {
			balance = *previous.Balance
		}
		sub.Balance = &balance
	}

	if err := e.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return &enrollment{sub: sub, previous: previous, plan: p}, nil
}

func (e *Engine) emitEnrollment(ctx context.Context, out *enrollment) {
	if out.previous != nil {
		e.plugins.EmitSubscriptionChanged(ctx, out.previous, out.sub)
	}
	e.plugins.EmitSubscriptionCreated(ctx, out.sub)
}

// CurrentSubscription returns the customer's active subscription.
func (e *Engine) CurrentSubscription(ctx context.Context, customerMail string) (*subscription.Subscription, error) {
	c, err := e.store.GetCustomerByEmail(ctx, customer.NormalizeEmail(customerMail))
	if err != nil {
		return nil, classify("current subscription", err)
	}
	sub, err := e.store.GetActiveSubscription(ctx, c.ID)
	if err != nil {
		return nil, classify("current subscription", err)
	}
	return sub, nil
}
