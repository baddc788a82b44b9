package telstar

import (
	"context"
	"errors"
	"strings"

	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/types"
)

// AddPlan validates spec and adds it to the catalog. An active plan with the
// same name is retired and replaced when spec.Replace is set; otherwise the
// call fails with ErrDuplicatePlan.
func (e *Engine) AddPlan(ctx context.Context, spec plan.Spec) (*plan.Plan, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if t, ok := plan.ParseType(string(spec.Type)); ok {
		spec.Type = t
	}
	if err := e.validateStruct(spec); err != nil {
		return nil, err
	}
	if spec.RatePerUnit.IsNegative() {
		return nil, ValidationError{Field: "ratePerUnit", Message: "must not be negative"}
	}

	now := e.now()
	p := &plan.Plan{
		Entity:           types.NewEntity(now),
		ID:               id.NewPlanID(),
		Name:             spec.Name,
		Type:             spec.Type,
		Status:           plan.StatusActive,
		RatePerUnit:      types.FromDecimal(*spec.RatePerUnit, e.currency),
		BillingCycleDays: spec.BillingCycleDays,
		Description:      strings.TrimSpace(spec.Description),
	}
	if p.IsPrepaid() {
		if spec.PrepaidBalance.IsNegative() {
			return nil, ValidationError{Field: "prepaidBalance", Message: "must not be negative"}
		}
		p.Prepaid = &plan.PrepaidTerms{Balance: types.FromDecimal(*spec.PrepaidBalance, e.currency)}
	}

	var retired *plan.Plan
	err := e.store.Transaction(ctx, func(ctx context.Context) error {
		existing, err := e.store.GetActivePlanByName(ctx, p.Name)
		switch {
		case err == nil:
			if !spec.Replace {
				return ErrDuplicatePlan
			}
			if err := e.store.RetirePlan(ctx, existing.ID); err != nil {
				return err
			}
			existing.Status = plan.StatusRetired
			retired = existing
		case errors.Is(err, ErrPlanNotFound):
		default:
			return err
		}

		if err := e.store.CreatePlan(ctx, p); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				return ErrDuplicatePlan
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, classify("add plan", err)
	}

	e.logger.Info("plan added",
		"plan_id", p.ID.String(),
		"name", p.Name,
		"type", p.Type,
		"replaced", retired != nil,
	)

	if retired != nil {
		e.plugins.EmitPlanRetired(ctx, retired, p)
	}
	e.plugins.EmitPlanCreated(ctx, p)

	return p, nil
}

// ListPlans returns the active plans of the given type in catalog order.
func (e *Engine) ListPlans(ctx context.Context, t plan.Type) ([]*plan.Plan, error) {
	parsed, ok := plan.ParseType(string(t))
	if !ok {
		return nil, ValidationError{Field: "planType", Message: "must be one of PREPAID POSTPAID"}
	}

	plans, err := e.store.ListPlans(ctx, plan.ListOpts{Type: parsed, Status: plan.StatusActive})
	if err != nil {
		return nil, classify("list plans", err)
	}
	if plans == nil {
		plans = []*plan.Plan{}
	}
	return plans, nil
}

// GetPlan retrieves a plan by ID, including retired plans.
func (e *Engine) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	p, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, classify("get plan", err)
	}
	return p, nil
}
