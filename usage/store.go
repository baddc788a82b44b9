package usage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Nityam-7/TELSTAR/id"
)

type Store interface {
	RecordUsage(ctx context.Context, r *Record) error
	// SumUsage totals units recorded for the subscription in [from, to).
	SumUsage(ctx context.Context, subID id.SubscriptionID, from, to time.Time) (decimal.Decimal, error)
}
