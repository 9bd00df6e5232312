// Package jobmetrics instruments background projection jobs.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Verification results recorded by AddVerified.
const (
	ResultClean    = "clean"
	ResultRepaired = "repaired"
	ResultTampered = "tampered"
)

// Metrics holds the job collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	verified *prometheus.CounterVec
}

// NewMetrics registers the job collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rea_jobs_total",
			Help: "Job executions by task type and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rea_jobs_failures_total",
			Help: "Job executions that returned an error, by task type.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rea_job_duration_seconds",
			Help:    "Job execution time by task type.",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		verified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rea_projections_verified_total",
			Help: "Projections checked by verification jobs, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.runs, m.failures, m.duration, m.verified)
	return m
}

// Tracker times one job execution.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the outcome and passes err through so it can wrap a return value.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	m := t.metrics
	m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(t.job).Inc()
		m.runs.WithLabelValues(t.job, "failure").Inc()
		return err
	}
	m.runs.WithLabelValues(t.job, "success").Inc()
	return nil
}

// AddVerified counts count projections with the given result.
func (m *Metrics) AddVerified(result string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.verified.WithLabelValues(result).Add(float64(count))
}
