package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.PriceRequest("TQQQ", "ok")
	m.Order("BUY", "submitted")
	m.SetState("", "INIT")
	assert.Nil(t, m.Registry())
}

func TestCountersAndState(t *testing.T) {
	m := New()
	m.PriceRequest("TQQQ", "ok")
	m.PriceRequest("TQQQ", "ok")
	m.SetState("", "INIT")
	m.SetState("INIT", "AWAIT_OPEN")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PriceRequests.WithLabelValues("TQQQ", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EngineState.WithLabelValues("INIT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineState.WithLabelValues("AWAIT_OPEN")))
}

func TestHandlerServesMetricsAndHealth(t *testing.T) {
	m := New()
	m.Order("BUY", "submitted")
	h := m.Handler(func() (string, bool) { return "CANCELLED", false })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "momentum_orders_total"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"CANCELLED"`)
}
