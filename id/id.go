// Package id defines TypeID-based identifiers for every TELSTAR record.
//
// Each identifier carries a prefix naming the record kind, so a customer ID
// can never be passed where an invoice ID is expected without a parse error.
// IDs are UUIDv7-based and render as "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the record kind encoded in a TypeID.
type Prefix string

// Prefixes for TELSTAR records.
const (
	PrefixCustomer     Prefix = "cust" // Registered customer
	PrefixPlan         Prefix = "plan" // Rate plan
	PrefixSubscription Prefix = "sub"  // Customer-to-plan enrollment
	PrefixInvoice      Prefix = "inv"  // Billing invoice
	PrefixUsage        Prefix = "use"  // Aggregated usage record
)

// ID is the identifier type for all TELSTAR records.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "inv_01h2xcejqtf2nbrexx3vqjhp41").
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and checks its prefix.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Per-record aliases
// ──────────────────────────────────────────────────

// CustomerID identifies a customer (prefix: "cust").
type CustomerID = ID

// PlanID identifies a rate plan (prefix: "plan").
type PlanID = ID

// SubscriptionID identifies a subscription (prefix: "sub").
type SubscriptionID = ID

// InvoiceID identifies an invoice (prefix: "inv").
type InvoiceID = ID

// UsageID identifies a usage record (prefix: "use").
type UsageID = ID

func NewCustomerID() ID     { return New(PrefixCustomer) }
func NewPlanID() ID         { return New(PrefixPlan) }
func NewSubscriptionID() ID { return New(PrefixSubscription) }
func NewInvoiceID() ID      { return New(PrefixInvoice) }
func NewUsageID() ID        { return New(PrefixUsage) }

func ParseCustomerID(s string) (ID, error)     { return ParseWithPrefix(s, PrefixCustomer) }
func ParsePlanID(s string) (ID, error)         { return ParseWithPrefix(s, PrefixPlan) }
func ParseSubscriptionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixSubscription) }
func ParseInvoiceID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixInvoice) }
func ParseUsageID(s string) (ID, error)        { return ParseWithPrefix(s, PrefixUsage) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// Equal reports whether both IDs render to the same string.
func (i ID) Equal(other ID) bool {
	return i.String() == other.String()
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
