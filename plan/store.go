package plan

import (
	"context"

	"github.com/Nityam-7/TELSTAR/id"
)

type Store interface {
	// CreatePlan assigns Seq. A second active plan with the same name
	// returns an already-exists error.
	CreatePlan(ctx context.Context, p *Plan) error
	GetPlan(ctx context.Context, planID id.PlanID) (*Plan, error)
	GetActivePlanByName(ctx context.Context, name string) (*Plan, error)
	// ListPlans returns plans ordered by Seq ascending.
	ListPlans(ctx context.Context, opts ListOpts) ([]*Plan, error)
	RetirePlan(ctx context.Context, planID id.PlanID) error
}

type ListOpts struct {
	Type   Type
	Status Status
	Limit  int
	Offset int
}
