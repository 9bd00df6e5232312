package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the HTTP layer and the projection engine.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
	projectionReads *prometheus.CounterVec
	projectionDrift prometheus.Counter
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rea_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rea_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rea_events_total",
		Help: "Economic events by action and outcome (appended, rejected, failed).",
	}, []string{"action", "outcome"})
	reads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rea_projection_reads_total",
		Help: "Resource projections served, by source (cache, fold).",
	}, []string{"source"})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rea_projection_drift_total",
		Help: "Snapshots found to disagree with a refold of their history.",
	})
	registry.MustRegister(requests, duration, events, reads, drift)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		eventsTotal:     events,
		projectionReads: reads,
		projectionDrift: drift,
	}
}

// Handler serves the registry in the Prometheus exposition format. A nil
// *Metrics serves 503 so the route can be mounted unconditionally.
func (m *Metrics) Handler() http.Handler {
	if m != nil {
		return m.handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
}

// Middleware counts requests and times them, labelled by chi route pattern
// so that resource identifiers do not explode the label space.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		began := time.Now()
		defer func() {
			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
			m.requestDuration.WithLabelValues(route).Observe(time.Since(began).Seconds())
		}()
		next.ServeHTTP(ww, r)
	})
}

// ObserveEvent counts an event outcome.
func (m *Metrics) ObserveEvent(action, outcome string) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	m.eventsTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveProjectionRead counts a projection served from source.
func (m *Metrics) ObserveProjectionRead(source string) {
	if m == nil {
		return
	}
	m.projectionReads.WithLabelValues(source).Inc()
}

// ObserveDrift counts a snapshot repaired by verification.
func (m *Metrics) ObserveDrift() {
	if m == nil {
		return
	}
	m.projectionDrift.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}
