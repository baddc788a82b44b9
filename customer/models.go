// Package customer holds the registered subscriber record.
package customer

import (
	"strings"

	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/types"
)

type Customer struct {
	types.Entity
	ID           id.CustomerID `json:"id"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	Phone        string        `json:"phone,omitempty"`
	PasswordHash string        `json:"-"`

	// CurrentPlanID is derived from the active subscription when the record
	// is read through the engine. Stores never persist it.
	CurrentPlanID id.PlanID `json:"current_plan_id,omitempty"`
}

// Registration is the input to customer registration.
type Registration struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	Password string `json:"password" validate:"required,max=72"`
}

// NormalizeEmail is the canonical form used for uniqueness and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
