package eventbus_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nityam-7/TELSTAR/eventbus"
	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/types"
)

type message struct {
	key     string
	payload []byte
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []message
	err      error
	calls    int
	closed   bool
}

func (p *recordingPublisher) Publish(_ context.Context, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message{key: key, payload: payload})
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestEventPluginPublishesInvoiceGenerated(t *testing.T) {
	pub := &recordingPublisher{}
	p := eventbus.NewEventPlugin(pub, eventbus.WithClock(func() time.Time { return fixedNow }))

	inv := &invoice.Invoice{
		ID:         id.NewInvoiceID(),
		CustomerID: id.NewCustomerID(),
		PlanType:   plan.TypePostpaid,
		Amount:     types.USD(1250),
		Status:     invoice.StatusPending,
	}
	require.NoError(t, p.OnInvoiceGenerated(context.Background(), inv))

	require.Len(t, pub.messages, 1)
	assert.Equal(t, eventbus.KeyInvoiceGenerated, pub.messages[0].key)

	var got struct {
		Type       string          `json:"type"`
		OccurredAt time.Time       `json:"occurred_at"`
		CustomerID string          `json:"customer_id"`
		Data       json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pub.messages[0].payload, &got))
	assert.Equal(t, eventbus.KeyInvoiceGenerated, got.Type)
	assert.True(t, fixedNow.Equal(got.OccurredAt))
	assert.Equal(t, inv.CustomerID.String(), got.CustomerID)

	var data invoice.Invoice
	require.NoError(t, json.Unmarshal(got.Data, &data))
	assert.Equal(t, inv.ID.String(), data.ID.String())
	assert.Equal(t, invoice.StatusPending, data.Status)
}

func TestEventPluginInvoiceFailedCarriesReason(t *testing.T) {
	pub := &recordingPublisher{}
	p := eventbus.NewEventPlugin(pub)

	sub := &subscription.Subscription{
		ID:         id.NewSubscriptionID(),
		CustomerID: id.NewCustomerID(),
		PlanID:     id.NewPlanID(),
	}
	require.NoError(t, p.OnInvoiceFailed(context.Background(), sub, errors.New("insufficient balance")))

	require.Len(t, pub.messages, 1)
	var got struct {
		Data eventbus.InvoiceFailure `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pub.messages[0].payload, &got))
	assert.Equal(t, sub.ID.String(), got.Data.SubscriptionID)
	assert.Equal(t, "insufficient balance", got.Data.Reason)
}

func TestEventPluginReturnsPublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	p := eventbus.NewEventPlugin(pub)

	err := p.OnPlanCreated(context.Background(), &plan.Plan{ID: id.NewPlanID()})
	assert.EqualError(t, err, "broker down")
}

func TestEventPluginShutdownClosesPublisher(t *testing.T) {
	pub := &recordingPublisher{}
	p := eventbus.NewEventPlugin(pub)
	require.NoError(t, p.OnShutdown(context.Background()))
	assert.True(t, pub.closed)
}

func TestBreakerPublisherOpensAfterFailures(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	b := eventbus.NewBreakerPublisher(pub, eventbus.BreakerConfig{
		MaxRequests:      1,
		Timeout:          time.Hour,
		FailureThreshold: 3,
	}, nil)

	ctx := context.Background()
	for range 3 {
		require.Error(t, b.Publish(ctx, "k", nil))
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Publish(ctx, "k", nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, pub.calls)
}

func TestBreakerPublisherPassesThrough(t *testing.T) {
	pub := &recordingPublisher{}
	b := eventbus.NewBreakerPublisher(pub, eventbus.DefaultBreakerConfig(), nil)

	require.NoError(t, b.Publish(context.Background(), eventbus.KeyInvoicePaid, []byte(`{}`)))
	require.Len(t, pub.messages, 1)
	assert.Equal(t, gobreaker.StateClosed, b.State())

	require.NoError(t, b.Close())
	assert.True(t, pub.closed)
}

func TestNoopPublisher(t *testing.T) {
	p := eventbus.NewNoopPublisher(nil)
	assert.NoError(t, p.Publish(context.Background(), "k", []byte("x")))
	assert.NoError(t, p.Close())
}
