package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/takbridge/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	r := NewMetricsRegistry()
	require.NotNil(t, r)
	require.NotNil(t, r.PrometheusRegistry())
	require.NotNil(t, r.CoreMetrics())
}

func TestRegisterCounter(t *testing.T) {
	r := NewMetricsRegistry()

	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "takbridge",
		Subsystem: "bridge",
		Name:      "test_total",
		Help:      "test counter",
	})

	require.NoError(t, r.RegisterCounter("bridge", "test", c))

	// Second registration under the same key must fail as invalid
	err := r.RegisterCounter("bridge", "test", c)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestUnregister(t *testing.T) {
	r := NewMetricsRegistry()

	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "takbridge",
		Subsystem: "bridge",
		Name:      "test_gauge",
		Help:      "test gauge",
	})

	require.NoError(t, r.RegisterGauge("bridge", "test_gauge", g))
	assert.True(t, r.Unregister("bridge", "test_gauge"))
	assert.False(t, r.Unregister("bridge", "test_gauge"))

	// After unregistering, the same metric can be registered again
	require.NoError(t, r.RegisterGauge("bridge", "test_gauge", g))
}

func TestCoreMetricsUsable(t *testing.T) {
	r := NewMetricsRegistry()

	r.Metrics.EventsReceived.WithLabelValues("bridge", "cot").Inc()
	r.Metrics.UpdateComponentStatus("bridge", 2)
	r.Metrics.RecordError("bridge", "parse")
	r.Metrics.UpdateHealthCheck("bridge", 0.5)

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestUpdateHealthCheckSetsGauge(t *testing.T) {
	r := NewMetricsRegistry()
	r.Metrics.UpdateHealthCheck("api", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.HealthCheckStatus.WithLabelValues("api")))

	r.Metrics.UpdateHealthCheck("api", 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.Metrics.HealthCheckStatus.WithLabelValues("api")))
}
