// Package usage holds aggregated billable quantities and the sources the
// invoice engine reads them from. Rating of raw call or session records
// happens upstream; a Record already carries billable units.
package usage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Nityam-7/TELSTAR/id"
)

type Record struct {
	ID             id.UsageID        `json:"id"`
	CustomerID     id.CustomerID     `json:"customer_id"`
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	Units          decimal.Decimal   `json:"units"`
	RecordedAt     time.Time         `json:"recorded_at"`
}
