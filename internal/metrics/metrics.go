package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cart"

// Metrics groups the collectors of the cart order system.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Requests            *prometheus.CounterVec
	LatencyMS           *prometheus.HistogramVec
	PriceDeltas         *prometheus.CounterVec
	PriceAsymmetries    *prometheus.CounterVec
	AggregationFailures prometheus.Counter
	Reconciliations     *prometheus.CounterVec
	EventsPublished     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
// Passing a fresh prometheus.NewRegistry() keeps tests isolated.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		PriceDeltas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_deltas_total",
			Help:      "Incremental price updates applied to order snapshots.",
		}, []string{"kind", "direction", "result"}),
		PriceAsymmetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_asymmetry_total",
			Help:      "Removals whose looked-up price differs from the price applied on insert.",
		}, []string{"kind"}),
		AggregationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_aggregation_failures_total",
			Help:      "Full price computations that failed.",
		}),
		Reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_reconciliations_total",
			Help:      "Selected-order reconciliations by outcome.",
		}, []string{"outcome"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_events_published_total",
			Help:      "Order events handed to the event transport.",
		}, []string{"event", "result"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.Requests,
		m.LatencyMS,
		m.PriceDeltas,
		m.PriceAsymmetries,
		m.AggregationFailures,
		m.Reconciliations,
		m.EventsPublished,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(handler, status string, ms float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(handler, status).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(ms)
}

func (m *Metrics) PriceDelta(kind, direction, result string) {
	if m == nil {
		return
	}
	m.PriceDeltas.WithLabelValues(kind, direction, result).Inc()
}

func (m *Metrics) PriceAsymmetry(kind string) {
	if m == nil {
		return
	}
	m.PriceAsymmetries.WithLabelValues(kind).Inc()
}

func (m *Metrics) AggregationFailed() {
	if m == nil {
		return
	}
	m.AggregationFailures.Inc()
}

func (m *Metrics) Reconciled(outcome string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EventPublished(event, result string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(event, result).Inc()
}
