package subscription

import (
	"time"

	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/types"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
)

// Subscription binds a customer to a plan. Balance is the prepaid wallet,
// seeded from the plan at enrollment and nil for postpaid subscriptions.
type Subscription struct {
	types.Entity
	ID           id.SubscriptionID `json:"id"`
	Seq          int64             `json:"seq"`
	CustomerID   id.CustomerID     `json:"customer_id"`
	PlanID       id.PlanID         `json:"plan_id"`
	PlanType     plan.Type         `json:"plan_type"`
	Status       Status            `json:"status"`
	StartedAt    time.Time         `json:"started_at"`
	SupersededAt *time.Time        `json:"superseded_at,omitempty"`
	Balance      *types.Money      `json:"balance,omitempty"`
}

func (s *Subscription) IsActive() bool { return s.Status == StatusActive }

// CycleWindow returns the billing cycle that contains at. Cycles start at
// StartedAt and repeat every cycleDays calendar days.
func (s *Subscription) CycleWindow(cycleDays int, at time.Time) (start, end time.Time) {
	if cycleDays <= 0 {
		cycleDays = 1
	}

	n := 0
	if at.After(s.StartedAt) {
		n = int(at.Sub(s.StartedAt)/(24*time.Hour)) / cycleDays
	}
	// Days are not always 24h long, so the estimate can be one cycle off.
	for n > 0 && s.cycleStart(cycleDays, n).After(at) {
		n--
	}
	for !at.Before(s.cycleStart(cycleDays, n+1)) {
		n++
	}
	return s.cycleStart(cycleDays, n), s.cycleStart(cycleDays, n+1)
}

func (s *Subscription) cycleStart(cycleDays, n int) time.Time {
	return s.StartedAt.AddDate(0, 0, n*cycleDays)
}
