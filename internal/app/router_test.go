package app

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rea/internal/observability"
	observationhttp "github.com/odyssey-erp/odyssey-rea/internal/observation/http"
	"github.com/odyssey-erp/odyssey-rea/jobs"
)

func newTestRouter(t *testing.T) (http.Handler, *observability.Metrics) {
	t.Helper()
	cfg := &Config{EventStore: StoreMemory}
	metrics := observability.NewMetrics()
	engine, err := NewEngine(context.Background(), EngineParams{Config: cfg, Logger: quietLogger(), Metrics: metrics})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	return NewRouter(RouterParams{
		Logger:       quietLogger(),
		Config:       cfg,
		EventHandler: observationhttp.NewHandler(quietLogger(), engine.Service, 0),
		JobHandler:   jobs.NewHandler(nil, quietLogger()),
		Metrics:      metrics,
	}), metrics
}

func TestRouterHealthzAndSecurityHeaders(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
}

func TestRouterServesEventsJobsAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"event":{"action":"raise","resourceQuantity":{"numericValue":"2","unit":"each"}},"newInventoriedResource":{"name":"chairs"}}`
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `rea_events_total{action="raise",outcome="appended"} 1`)
	assert.Contains(t, rr.Body.String(), `rea_http_requests_total{code="201"`)
}

func TestRouterWithoutOptionalHandlers(t *testing.T) {
	router := NewRouter(RouterParams{Logger: quietLogger()})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRequestLogRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	router := NewRouter(RouterParams{Logger: logger})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	line := buf.String()
	assert.Contains(t, line, `"msg":"http request"`)
	assert.Contains(t, line, `"path":"/healthz"`)
	assert.Contains(t, line, `"status":200`)
	assert.Contains(t, line, `"request_id":`)
}
