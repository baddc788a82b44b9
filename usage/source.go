package usage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Nityam-7/TELSTAR/id"
)

// Request identifies the cycle an invoice is being generated for.
type Request struct {
	CustomerID     id.CustomerID
	SubscriptionID id.SubscriptionID
	PlanID         id.PlanID
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// Source supplies the billable quantity for a cycle. Implementations must
// return a non-negative quantity.
type Source interface {
	BilledUnits(ctx context.Context, req Request) (decimal.Decimal, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, req Request) (decimal.Decimal, error)

func (f SourceFunc) BilledUnits(ctx context.Context, req Request) (decimal.Decimal, error) {
	return f(ctx, req)
}

// None bills zero units for every cycle.
var None Source = Fixed(decimal.Zero)

// Fixed bills the same quantity for every cycle.
func Fixed(units decimal.Decimal) Source {
	return SourceFunc(func(context.Context, Request) (decimal.Decimal, error) {
		return units, nil
	})
}

// StoreSource sums the usage records stored for the cycle.
type StoreSource struct {
	store Store
}

func NewStoreSource(s Store) *StoreSource {
	return &StoreSource{store: s}
}

func (s *StoreSource) BilledUnits(ctx context.Context, req Request) (decimal.Decimal, error) {
	return s.store.SumUsage(ctx, req.SubscriptionID, req.PeriodStart, req.PeriodEnd)
}
