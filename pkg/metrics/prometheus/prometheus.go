package prometheus

import (
	"strconv"
	"time"

	"peachcash/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports metrics.Collector events to Prometheus
type Collector struct {
	exchanges       *prometheus.CounterVec
	exchangeLatency *prometheus.HistogramVec

	rateLookups *prometheus.CounterVec
	rateLatency *prometheus.HistogramVec
	cacheHits   *prometheus.CounterVec

	circuitState *prometheus.GaugeVec
	circuitOpens *prometheus.CounterVec

	reconciled *prometheus.CounterVec
}

var _ metrics.Collector = (*Collector)(nil)

func New(namespace string) *Collector {
	return &Collector{
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exchanges_total",
				Help:      "Exchanges by outcome",
			},
			[]string{"outcome"},
		),
		exchangeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "exchange_duration_seconds",
				Help:      "Exchange latency including the rate lookup",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"outcome"},
		),
		rateLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_lookups_total",
				Help:      "Rate oracle lookups by source and result",
			},
			[]string{"source", "ok"},
		),
		rateLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rate_lookup_duration_seconds",
				Help:      "Rate oracle lookup latency",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"source"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "price_cache_lookups_total",
				Help:      "Price cache lookups by hit",
			},
			[]string{"hit"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_opens_total",
				Help:      "Times the circuit breaker opened",
			},
			[]string{"name"},
		),
		reconciled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciled_entries_total",
				Help:      "Journal entries repaired by reconcile, by action",
			},
			[]string{"action"},
		),
	}
}

// Register registers all metrics with the given registry
func (c *Collector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.exchanges,
		c.exchangeLatency,
		c.rateLookups,
		c.rateLatency,
		c.cacheHits,
		c.circuitState,
		c.circuitOpens,
		c.reconciled,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) RecordExchange(outcome string, duration time.Duration) {
	c.exchanges.WithLabelValues(outcome).Inc()
	c.exchangeLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (c *Collector) RecordRate(source string, ok bool, duration time.Duration) {
	c.rateLookups.WithLabelValues(source, strconv.FormatBool(ok)).Inc()
	c.rateLatency.WithLabelValues(source).Observe(duration.Seconds())
}

func (c *Collector) RecordCacheLookup(hit bool) {
	c.cacheHits.WithLabelValues(strconv.FormatBool(hit)).Inc()
}

func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		c.circuitOpens.WithLabelValues(name).Inc()
	}
}

func (c *Collector) RecordReconcile(action string) {
	c.reconciled.WithLabelValues(action).Inc()
}
