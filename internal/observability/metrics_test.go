package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestEngineCountersAreExposed(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveEvent("produce", "appended")
	metrics.ObserveEvent("", "rejected")
	metrics.ObserveProjectionRead("cache")
	metrics.ObserveDrift()

	body := scrape(t, metrics)
	assert.Contains(t, body, `rea_events_total{action="produce",outcome="appended"} 1`)
	assert.Contains(t, body, `rea_events_total{action="unknown",outcome="rejected"} 1`)
	assert.Contains(t, body, `rea_projection_reads_total{source="cache"} 1`)
	assert.Contains(t, body, `rea_projection_drift_total 1`)
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	metrics := NewMetrics()
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/resources/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/plain", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/resources/a", "/resources/b", "/plain"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	body := scrape(t, metrics)
	assert.Contains(t, body, `rea_http_requests_total{code="418",route="/resources/{id}"} 2`)
	assert.Contains(t, body, `rea_http_requests_total{code="200",route="/plain"} 1`)
	assert.Contains(t, body, `rea_http_request_duration_seconds_bucket{route="/resources/{id}"`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveEvent("consume", "failed")
	metrics.ObserveProjectionRead("fold")
	metrics.ObserveDrift()

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	assert.NotNil(t, metrics.Middleware(next))
}
