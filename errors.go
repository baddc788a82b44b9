package telstar

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("telstar: not found")
	ErrAlreadyExists = errors.New("telstar: already exists")
	ErrInvalidInput  = errors.New("telstar: invalid input")
	ErrUnauthorized  = errors.New("telstar: unauthorized")

	// Catalog errors
	ErrPlanNotFound  = errors.New("telstar: plan not found")
	ErrDuplicatePlan = errors.New("telstar: plan name already exists")

	// Customer errors
	ErrCustomerNotFound   = errors.New("telstar: customer not found")
	ErrDuplicateEmail     = errors.New("telstar: email already registered")
	ErrInvalidCredentials = errors.New("telstar: invalid credentials")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("telstar: subscription not found")
	ErrNoActiveSubscription = errors.New("telstar: no active subscription")
	ErrInsufficientBalance  = errors.New("telstar: insufficient prepaid balance")

	// Invoice errors
	ErrInvoiceNotFound   = errors.New("telstar: invoice not found")
	ErrInvalidState      = errors.New("telstar: invalid state transition")
	ErrAlreadyPaid       = fmt.Errorf("%w: invoice already paid", ErrInvalidState)
	ErrFormatterNotFound = errors.New("telstar: invoice formatter not found")

	// Store errors
	ErrStorage     = errors.New("telstar: storage failure")
	ErrStoreClosed = errors.New("telstar: store is closed")
)

// ValidationError names the input field that failed validation.
// It matches ErrInvalidInput under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("telstar: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// StorageError wraps a failure of the record store that the engine could not
// classify. The engine never retries; callers decide.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("telstar: storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Kind is the coarse classification transports map to status codes.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindInvalidCredentials
	KindInsufficientBalance
	KindInvalidState
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindInvalidState:
		return "invalid_state"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// KindOf classifies err into exactly one Kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case IsValidation(err):
		return KindValidation
	case IsNotFound(err):
		return KindNotFound
	case IsConflict(err):
		return KindConflict
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnauthorized):
		return KindInvalidCredentials
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case IsInvalidState(err):
		return KindInvalidState
	case IsStorage(err):
		return KindStorage
	default:
		return KindUnknown
	}
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrNoActiveSubscription) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrFormatterNotFound)
}

// IsConflict returns true for uniqueness violations.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrDuplicateEmail) ||
		errors.Is(err, ErrDuplicatePlan)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsInvalidState includes ErrAlreadyPaid.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage) || errors.Is(err, ErrStoreClosed)
}

// classify passes taxonomy errors through and wraps anything else the store
// returned in a StorageError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
