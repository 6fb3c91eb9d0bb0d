package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.PriceDelta("addon", "add", "ok")
	m.PriceDelta("addon", "add", "ok")
	m.PriceAsymmetry("charge")
	m.AggregationFailed()
	m.Reconciled("reselected")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PriceDeltas.WithLabelValues("addon", "add", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PriceAsymmetries.WithLabelValues("charge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AggregationFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciliations.WithLabelValues("reselected")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PriceDelta("product", "remove", "ok")
		m.ObserveRequest("/orders", "200", 3)
		m.Reconciled("kept")
	})
}

func TestHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRequest("GET /orders", "200", 12)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "cart_http_requests_total")
}
