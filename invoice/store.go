package invoice

import (
	"context"
	"time"

	"github.com/Nityam-7/TELSTAR/id"
)

type Store interface {
	// CreateInvoice assigns Number, strictly increasing per store.
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*Invoice, error)
	// ListInvoices returns newest first: IssuedAt desc, then Number desc.
	ListInvoices(ctx context.Context, customerID id.CustomerID, opts ListOpts) ([]*Invoice, error)
	// MarkInvoicePaid only transitions a pending invoice; a paid one
	// yields an already-paid error.
	MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time) error
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
