package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront_collections"

// Outcome labels shared by the collection counters.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
	OutcomeFallback = "fallback"
)

// CollectionMetrics instruments reconciler operations.
type CollectionMetrics struct {
	operations *prometheus.CounterVec
	fallbacks  *prometheus.CounterVec
	ignored    *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewCollectionMetrics registers the collection metrics on the provided registerer.
func NewCollectionMetrics(reg prometheus.Registerer) *CollectionMetrics {
	if reg == nil {
		return &CollectionMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Reconciler operations by collection, operation and outcome.",
	}, []string{"kind", "op", "outcome"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "remote_fallbacks_total",
		Help:      "Remote writes that fell back to device storage.",
	}, []string{"kind", "op"})
	ignored := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ignored_toggles_total",
		Help:      "Toggles dropped because one for the same product was in flight.",
	}, []string{"kind"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "remote_request_duration_seconds",
		Help:      "Latency of storefront API calls.",
		Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"kind", "op", "outcome"})
	reg.MustRegister(operations, fallbacks, ignored, latency)
	return &CollectionMetrics{
		operations: operations,
		fallbacks:  fallbacks,
		ignored:    ignored,
		latency:    latency,
	}
}

// ObserveOperation counts one reconciler operation.
func (c *CollectionMetrics) ObserveOperation(kind, op, outcome string) {
	if c == nil || c.operations == nil {
		return
	}
	c.operations.WithLabelValues(normalizeLabel(kind), normalizeLabel(op), normalizeLabel(outcome)).Inc()
}

// ObserveFallback counts a remote write that was redirected to device storage.
func (c *CollectionMetrics) ObserveFallback(kind, op string) {
	if c == nil || c.fallbacks == nil {
		return
	}
	c.fallbacks.WithLabelValues(normalizeLabel(kind), normalizeLabel(op)).Inc()
}

// ObserveIgnoredToggle counts a toggle rejected by the in-flight guard.
func (c *CollectionMetrics) ObserveIgnoredToggle(kind string) {
	if c == nil || c.ignored == nil {
		return
	}
	c.ignored.WithLabelValues(normalizeLabel(kind)).Inc()
}

// ObserveRemote records the latency of one storefront API call.
func (c *CollectionMetrics) ObserveRemote(kind, op string, duration time.Duration, err error) {
	if c == nil || c.latency == nil {
		return
	}
	c.latency.WithLabelValues(normalizeLabel(kind), normalizeLabel(op), outcomeOf(err)).Observe(duration.Seconds())
}
