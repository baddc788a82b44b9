package observability

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultAmountBuckets are the histogram buckets used for money and unit
// observations, in major currency units.
var DefaultAmountBuckets = []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}

// PrometheusFactory is a MetricFactory backed by client_golang collectors
// registered on a Registerer. Dotted names become underscored metric names;
// counters get the conventional _total suffix.
type PrometheusFactory struct {
	reg     prometheus.Registerer
	buckets []float64
}

var _ MetricFactory = (*PrometheusFactory)(nil)

// NewPrometheusFactory creates a factory registering on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{reg: reg, buckets: DefaultAmountBuckets}
}

// WithBuckets overrides the histogram buckets for metrics created afterwards.
func (f *PrometheusFactory) WithBuckets(buckets []float64) *PrometheusFactory {
	f.buckets = buckets
	return f
}

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricName(name) + "_total",
		Help: "Total " + humanize(name) + " events",
	})
	if existing := f.register(c); existing != nil {
		if ec, ok := existing.(prometheus.Counter); ok {
			return ec
		}
	}
	return c
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    metricName(name),
		Help:    "Distribution of " + humanize(name),
		Buckets: f.buckets,
	})
	if existing := f.register(h); existing != nil {
		if eh, ok := existing.(prometheus.Histogram); ok {
			return eh
		}
	}
	return h
}

// register returns the already registered collector when c duplicates one.
func (f *PrometheusFactory) register(c prometheus.Collector) prometheus.Collector {
	err := f.reg.Register(c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector
	}
	panic(err)
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(name)
}

func humanize(name string) string {
	name = strings.TrimPrefix(name, "telstar.")
	return strings.ReplaceAll(name, ".", " ")
}
