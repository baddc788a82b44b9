package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	telstar "github.com/Nityam-7/TELSTAR"
	audithook "github.com/Nityam-7/TELSTAR/audit_hook"
	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/store/storetest"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/types"
)

type memRecorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (m *memRecorder) Record(_ context.Context, evt *audithook.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *memRecorder) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Action
	}
	return out
}

func TestPlanCreatedEvent(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)

	p := storetest.NewPlan("Gold", plan.TypePostpaid, "0.05")
	require.NoError(t, ext.OnPlanCreated(context.Background(), p))

	require.Len(t, rec.events, 1)
	evt := rec.events[0]
	assert.Equal(t, audithook.ActionPlanCreated, evt.Action)
	assert.Equal(t, audithook.ResourcePlan, evt.Resource)
	assert.Equal(t, p.ID.String(), evt.ResourceID)
	assert.Equal(t, "Gold", evt.Metadata["name"])
	assert.Equal(t, "$0.05", evt.Metadata["rate_per_unit"])
	assert.Equal(t, audithook.OutcomeSuccess, evt.Outcome)
}

func TestInvoiceFailedEvent(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)

	balance := types.USD(100)
	sub := &subscription.Subscription{ID: id.NewSubscriptionID(), CustomerID: id.NewCustomerID(), Balance: &balance}
	require.NoError(t, ext.OnInvoiceFailed(context.Background(), sub, telstar.ErrInsufficientBalance))

	require.Len(t, rec.events, 1)
	evt := rec.events[0]
	assert.Equal(t, audithook.OutcomeFailure, evt.Outcome)
	assert.Equal(t, audithook.SeverityWarning, evt.Severity)
	assert.Equal(t, telstar.ErrInsufficientBalance.Error(), evt.Reason)
	assert.Equal(t, "$1.00", evt.Metadata["balance"])
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	p := storetest.NewPlan("Gold", plan.TypePostpaid, "0.05")
	c := storetest.NewCustomer("a@example.com")

	rec := &memRecorder{}
	only := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionCustomerRegistered))
	require.NoError(t, only.OnPlanCreated(ctx, p))
	require.NoError(t, only.OnCustomerRegistered(ctx, c))
	assert.Equal(t, []string{audithook.ActionCustomerRegistered}, rec.actions())

	rec = &memRecorder{}
	without := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionCustomerRegistered))
	require.NoError(t, without.OnPlanCreated(ctx, p))
	require.NoError(t, without.OnCustomerRegistered(ctx, c))
	assert.Equal(t, []string{audithook.ActionPlanCreated}, rec.actions())
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	failing := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("audit store down")
	})
	ext := audithook.New(failing)

	p := storetest.NewPlan("Gold", plan.TypePostpaid, "0.05")
	assert.NoError(t, ext.OnPlanCreated(context.Background(), p))
}
