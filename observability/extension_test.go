package observability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/observability"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/types"
	"github.com/Nityam-7/TELSTAR/usage"
)

type fakeCounter struct{ n float64 }

func (c *fakeCounter) Inc()          { c.n++ }
func (c *fakeCounter) Add(v float64) { c.n += v }

type fakeHistogram struct{ obs []float64 }

func (h *fakeHistogram) Observe(v float64) { h.obs = append(h.obs, v) }

type fakeFactory struct {
	counters   map[string]*fakeCounter
	histograms map[string]*fakeHistogram
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{counters: map[string]*fakeCounter{}, histograms: map[string]*fakeHistogram{}}
}

func (f *fakeFactory) Counter(name string) observability.Counter {
	c := &fakeCounter{}
	f.counters[name] = c
	return c
}

func (f *fakeFactory) Histogram(name string) observability.Histogram {
	h := &fakeHistogram{}
	f.histograms[name] = h
	return h
}

func TestMetricsExtensionCountsLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFakeFactory()
	m := observability.NewMetricsExtension(f)
	assert.Equal(t, "observability-metrics", m.Name())

	require.NoError(t, m.OnPlanCreated(ctx, &plan.Plan{}))
	require.NoError(t, m.OnPlanRetired(ctx, &plan.Plan{}, &plan.Plan{}))
	require.NoError(t, m.OnSubscriptionCreated(ctx, &subscription.Subscription{PlanType: plan.TypePrepaid}))
	require.NoError(t, m.OnSubscriptionCreated(ctx, &subscription.Subscription{PlanType: plan.TypePostpaid}))
	require.NoError(t, m.OnUsageRecorded(ctx, &usage.Record{Units: decimal.NewFromInt(7)}))
	require.NoError(t, m.OnInvoiceGenerated(ctx, &invoice.Invoice{Amount: types.USD(1250)}))
	require.NoError(t, m.OnInvoiceFailed(ctx, &subscription.Subscription{}, errors.New("insufficient")))

	assert.Equal(t, 1.0, f.counters["telstar.plan.created"].n)
	assert.Equal(t, 1.0, f.counters["telstar.plan.retired"].n)
	assert.Equal(t, 2.0, f.counters["telstar.subscription.created"].n)
	assert.Equal(t, 1.0, f.counters["telstar.subscription.prepaid"].n)
	assert.Equal(t, 1.0, f.counters["telstar.subscription.postpaid"].n)
	assert.Equal(t, 1.0, f.counters["telstar.invoice.failed"].n)
	assert.Equal(t, []float64{7}, f.histograms["telstar.usage.units"].obs)
	assert.Equal(t, []float64{12.5}, f.histograms["telstar.invoice.amount"].obs)
}

func TestPrometheusFactory(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	ctx := context.Background()
	require.NoError(t, m.OnInvoicePaid(ctx, &invoice.Invoice{}))
	require.NoError(t, m.OnInvoicePaid(ctx, &invoice.Invoice{}))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.InvoicePaid.(prometheus.Counter)))

	// A second extension on the same registry shares the collectors.
	again := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
	require.NoError(t, again.OnInvoicePaid(ctx, &invoice.Invoice{}))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.InvoicePaid.(prometheus.Counter)))

	n, err := testutil.GatherAndCount(reg, "telstar_invoice_paid_total", "telstar_invoice_amount")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
