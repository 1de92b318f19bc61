// Package metrics reports checkout and substitute activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/niksmo/storefront/internal/core/port"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ port.CheckoutObserver = (*Observer)(nil)

const namespace = "storefront"

type Observer struct {
	checkouts   *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	raceLost    prometheus.Counter
	substitutes prometheus.Histogram
	gatherer    prometheus.Gatherer
}

// New registers the collectors on a fresh registry along with the Go and
// process collectors.
func New() *Observer {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Observer {
	o := &Observer{
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkouts by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_seconds",
			Help:      "Checkout latency including race-lost retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		raceLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_stock_race_lost_total",
			Help:      "Checkout attempts that found the stock changed at commit.",
		}),
		substitutes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "substitutes_returned",
			Help:      "Substitutes offered per sold-out product view.",
			Buckets:   prometheus.LinearBuckets(0, 1, 6),
		}),
		gatherer: g,
	}
	reg.MustRegister(o.checkouts, o.latency, o.raceLost, o.substitutes)
	return o
}

func (o *Observer) OnCheckout(outcome string, d time.Duration) {
	o.checkouts.WithLabelValues(outcome).Inc()
	o.latency.WithLabelValues(outcome).Observe(d.Seconds())
}

func (o *Observer) OnStockRaceLost() {
	o.raceLost.Inc()
}

func (o *Observer) OnSubstitutes(n int) {
	o.substitutes.Observe(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})
}
