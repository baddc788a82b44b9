package plan

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/types"
)

// Type is the billing variant of a plan.
type Type string

const (
	TypePrepaid  Type = "PREPAID"
	TypePostpaid Type = "POSTPAID"
)

// ParseType accepts the variant name in any case.
func ParseType(s string) (Type, bool) {
	switch Type(strings.ToUpper(strings.TrimSpace(s))) {
	case TypePrepaid:
		return TypePrepaid, true
	case TypePostpaid:
		return TypePostpaid, true
	default:
		return "", false
	}
}

type Status string

const (
	StatusActive  Status = "active"
	StatusRetired Status = "retired"
)

// Plan is an immutable catalog entry. Prepaid is set if and only if
// Type is TypePrepaid.
type Plan struct {
	types.Entity
	ID               id.PlanID     `json:"id"`
	Seq              int64         `json:"seq"`
	Name             string        `json:"name"`
	Type             Type          `json:"type"`
	Status           Status        `json:"status"`
	RatePerUnit      types.Money   `json:"rate_per_unit"`
	BillingCycleDays int           `json:"billing_cycle_days"`
	Description      string        `json:"description,omitempty"`
	Prepaid          *PrepaidTerms `json:"prepaid,omitempty"`
}

// PrepaidTerms is the payload carried only by prepaid plans.
type PrepaidTerms struct {
	Balance types.Money `json:"balance"`
}

func (p *Plan) IsPrepaid() bool { return p.Type == TypePrepaid }

func (p *Plan) IsActive() bool { return p.Status == StatusActive }

// MaxBillingCycleDays bounds a plan's billing cycle to ten years. It matches
// the max rule on Spec.BillingCycleDays.
const MaxBillingCycleDays = 3650

// Spec is the input to catalog creation. Pointer fields distinguish
// "missing" from zero.
type Spec struct {
	Name             string           `json:"planName" validate:"required,max=120"`
	Type             Type             `json:"planType" validate:"required,oneof=PREPAID POSTPAID"`
	RatePerUnit      *decimal.Decimal `json:"ratePerUnit" validate:"required"`
	BillingCycleDays int              `json:"billingCycleDays" validate:"gt=0,max=3650"`
	PrepaidBalance   *decimal.Decimal `json:"prepaidBalance" validate:"required_if=Type PREPAID"`
	Description      string           `json:"description" validate:"max=1000"`

	// Replace retires an existing active plan with the same name instead of
	// failing with a duplicate error.
	Replace bool `json:"replace"`
}
