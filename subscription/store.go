package subscription

import (
	"context"
	"time"

	"github.com/Nityam-7/TELSTAR/id"
)

type Store interface {
	// CreateSubscription assigns Seq.
	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	GetActiveSubscription(ctx context.Context, customerID id.CustomerID) (*Subscription, error)
	// ListSubscriptions returns newest first: StartedAt desc, then Seq desc.
	ListSubscriptions(ctx context.Context, customerID id.CustomerID, opts ListOpts) ([]*Subscription, error)
	// SupersedeSubscription only transitions an active subscription.
	SupersedeSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error
	UpdateSubscriptionBalance(ctx context.Context, s *Subscription) error
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
