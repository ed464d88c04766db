package bridge

import (
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/takbridge/metric"
	"github.com/c360/takbridge/track"
)

func TestWithoutRegistryMetricsDisabled(t *testing.T) {
	assert.Nil(t, newMetrics(nil, "tak.example.local", 8087))
}

func TestCountersFeedPlatformVecs(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	b, err := New(Deps{
		Config:          testConfig(),
		Store:           track.NewMemoryStore(),
		Logger:          slog.New(slog.NewTextHandler(testWriter{t}, nil)),
		MetricsRegistry: registry,
	})
	require.NoError(t, err)
	require.NotNil(t, b.metrics)

	b.countReceived(2)
	b.countSent(1)
	b.metrics.recordError("parse")

	core := registry.CoreMetrics()
	name := b.metrics.name
	assert.Equal(t, "bridge_tak.example.local_8087", name)
	assert.Equal(t, 2.0, testutil.ToFloat64(core.EventsReceived.WithLabelValues(name, "cot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.EventsSent.WithLabelValues(name, "cot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.ErrorsTotal.WithLabelValues(name, "parse")))
}
