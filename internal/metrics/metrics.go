// Package metrics provides Prometheus metrics for quoting.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "zapquote"

// Metrics holds the collectors shared by the chain reader, the state cache and the quote service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	QuotesTotal   *prometheus.CounterVec
	QuoteDuration *prometheus.HistogramVec
	BatchSize     prometheus.Histogram
	BatchErrors   prometheus.Counter
	CacheLookups  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil registerer skips registration.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		QuotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "requests_total",
			Help:      "Total number of quotes by family, kind and outcome",
		}, []string{"family", "kind", "outcome"}),
		QuoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "duration_seconds",
			Help:      "Quote latency including state loading",
			Buckets:   prometheus.DefBuckets,
		}, []string{"family", "kind"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "batch_calls",
			Help:      "Number of eth_call elements per batch request",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
		BatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "batch_errors_total",
			Help:      "Batch requests that failed at the transport level",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "cache_lookups_total",
			Help:      "Factory cache lookups by result",
		}, []string{"result"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.QuotesTotal, m.QuoteDuration, m.BatchSize, m.BatchErrors, m.CacheLookups} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveQuote records the outcome and latency of one quote.
func (m *Metrics) ObserveQuote(family, kind string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.QuotesTotal.WithLabelValues(family, kind, outcome).Inc()
	m.QuoteDuration.WithLabelValues(family, kind).Observe(time.Since(started).Seconds())
}

// ObserveBatch records the size of one batch request and whether it failed.
func (m *Metrics) ObserveBatch(size int, err error) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(size))
	if err != nil {
		m.BatchErrors.Inc()
	}
}

// CacheHit counts a cache hit.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("hit").Inc()
}

// CacheMiss counts a cache miss.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}
