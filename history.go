package telstar

import (
	"context"

	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/subscription"
)

// ListInvoiceHistory returns the customer's invoices, newest first.
func (e *Engine) ListInvoiceHistory(ctx context.Context, customerMail string) ([]*invoice.Invoice, error) {
	c, err := e.store.GetCustomerByEmail(ctx, customer.NormalizeEmail(customerMail))
	if err != nil {
		return nil, classify("invoice history", err)
	}

	invoices, err := e.store.ListInvoices(ctx, c.ID, invoice.ListOpts{})
	if err != nil {
		return nil, classify("invoice history", err)
	}
	if invoices == nil {
		invoices = []*invoice.Invoice{}
	}
	return invoices, nil
}

// ListSubscriptionHistory returns every subscription the customer has held,
// newest first. Superseded entries are included.
func (e *Engine) ListSubscriptionHistory(ctx context.Context, customerMail string) ([]*subscription.Subscription, error) {
	c, err := e.store.GetCustomerByEmail(ctx, customer.NormalizeEmail(customerMail))
	if err != nil {
		return nil, classify("subscription history", err)
	}

	subs, err := e.store.ListSubscriptions(ctx, c.ID, subscription.ListOpts{})
	if err != nil {
		return nil, classify("subscription history", err)
	}
	if subs == nil {
		subs = []*subscription.Subscription{}
	}
	return subs, nil
}
