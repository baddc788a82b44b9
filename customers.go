package telstar

import (
	"context"
	"errors"
	"strings"

	"github.com/Nityam-7/TELSTAR/auth"
	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/types"
)

// RegisterCustomer creates a customer with a hashed password.
func (e *Engine) RegisterCustomer(ctx context.Context, reg customer.Registration) (*customer.Customer, error) {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = customer.NormalizeEmail(reg.Email)
	reg.Phone = strings.TrimSpace(reg.Phone)
	if err := e.validateStruct(reg); err != nil {
		return nil, err
	}

	if _, err := e.store.GetCustomerByEmail(ctx, reg.Email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrCustomerNotFound) {
		return nil, classify("register customer", err)
	}

	hash, err := e.hasher.Hash(reg.Password)
	if err != nil {
		return nil, err
	}

	c := &customer.Customer{
		Entity:       types.NewEntity(e.now()),
		ID:           id.NewCustomerID(),
		Name:         reg.Name,
		Email:        reg.Email,
		Phone:        reg.Phone,
		PasswordHash: hash,
	}

	// The unique index decides concurrent registrations of one email.
	if err := e.store.CreateCustomer(ctx, c); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, ErrDuplicateEmail
		}
		return nil, classify("register customer", err)
	}

	e.logger.Info("customer registered", "customer_id", c.ID.String())
	e.plugins.EmitCustomerRegistered(ctx, c)

	return c, nil
}

// Authenticate checks credentials and issues a session token.
// Unknown email and wrong password fail identically.
func (e *Engine) Authenticate(ctx context.Context, email, password string) (*auth.Token, error) {
	email = customer.NormalizeEmail(email)
	if email == "" {
		return nil, ValidationError{Field: "email", Message: "is required"}
	}
	if password == "" {
		return nil, ValidationError{Field: "password", Message: "is required"}
	}

	c, err := e.store.GetCustomerByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrCustomerNotFound) {
			return nil, classify("authenticate", err)
		}
		_ = e.hasher.Compare(e.timingHash(), password) //nolint:errcheck // equalizes response time only
		return nil, ErrInvalidCredentials
	}

	if err := e.hasher.Compare(c.PasswordHash, password); err != nil {
		e.logger.Debug("authentication failed", "customer_id", c.ID.String())
		return nil, ErrInvalidCredentials
	}

	tok, err := e.tokens.Issue(c.ID, e.now())
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// VerifyToken resolves a session token to the customer it was issued for.
func (e *Engine) VerifyToken(ctx context.Context, token string) (*customer.Customer, error) {
	customerID, err := e.tokens.Verify(token, e.now())
	if err != nil {
		return nil, errors.Join(ErrUnauthorized, err)
	}
	c, err := e.store.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, classify("verify token", err)
	}
	return c, nil
}

// GetCustomer returns the customer with CurrentPlanID derived from the
// active subscription.
func (e *Engine) GetCustomer(ctx context.Context, email string) (*customer.Customer, error) {
	c, err := e.store.GetCustomerByEmail(ctx, customer.NormalizeEmail(email))
	if err != nil {
		return nil, classify("get customer", err)
	}

	sub, err := e.store.GetActiveSubscription(ctx, c.ID)
	switch {
	case err == nil:
		c.CurrentPlanID = sub.PlanID
	case errors.Is(err, ErrNoActiveSubscription):
	default:
		return nil, classify("get customer", err)
	}
	return c, nil
}

func (e *Engine) timingHash() string {
	e.dummyOnce.Do(func() {
		e.dummyHash, _ = e.hasher.Hash("telstar-unknown-account") //nolint:errcheck // empty hash still fails Compare
	})
	return e.dummyHash
}

// lockedCustomer resolves email and takes the customer's write lock. It must
// run inside a store transaction.
func (e *Engine) lockedCustomer(ctx context.Context, email string) (*customer.Customer, error) {
	email = customer.NormalizeEmail(email)
	if email == "" {
		return nil, ValidationError{Field: "customerMail", Message: "is required"}
	}
	c, err := e.store.GetCustomerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := e.store.LockCustomer(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}
