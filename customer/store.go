package customer

import (
	"context"

	"github.com/Nityam-7/TELSTAR/id"
)

type Store interface {
	// CreateCustomer returns an already-exists error for a taken email.
	CreateCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, customerID id.CustomerID) (*Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	// LockCustomer serializes writers for one customer until the enclosing
	// transaction ends.
	LockCustomer(ctx context.Context, customerID id.CustomerID) error
}
