package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	require.NoError(t, metrics.Track("projection:rebuild").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, metrics.Track("projection:rebuild").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("projection:rebuild", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("projection:rebuild", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("projection:rebuild")))
}

func TestAddVerified(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.AddVerified("repaired", 2)
	metrics.AddVerified("clean", 0)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.verified.WithLabelValues("repaired")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.verified.WithLabelValues("clean")))
}

func TestNilMetricsTracker(t *testing.T) {
	var metrics *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, metrics.Track("projection:verify").End(boom), boom)
	metrics.AddVerified("clean", 3)
}
