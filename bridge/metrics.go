package bridge

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/takbridge/metric"
)

// Metrics holds Prometheus metrics for the TAK bridge
type Metrics struct {
	name string
	core *metric.Metrics

	eventsReceived prometheus.Counter
	eventsSent     prometheus.Counter
	eventsSkipped  prometheus.Counter
	parseErrors    prometheus.Counter
	bytesReceived  prometheus.Counter
	reconnects     prometheus.Counter
	bufferDiscards prometheus.Counter
	connected      prometheus.Gauge
	lastConnectTs  prometheus.Gauge
}

// newMetrics creates and registers bridge metrics.
// Returns nil if no registry provided (nil input = nil feature pattern).
func newMetrics(registry *metric.MetricsRegistry, host string, port int) *Metrics {
	if registry == nil {
		return nil
	}

	componentName := fmt.Sprintf("bridge_%s_%d", host, port)
	metrics := &Metrics{
		name: componentName,
		core: registry.CoreMetrics(),
		eventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "takbridge",
			Subsystem: "bridge",
			Name:      "events_received_total",
			Help:      "Total CoT events parsed from the TAK server stream",
		}),
		eventsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "takbridge",
			Subsystem: "bridge",
			Name:      "events_sent_total",
			Help:      "Total CoT track events pushed to the TAK server",
		}),
		eventsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "takbridge",
			Subsystem: "bridge",
			Name:      "events_skipped_total",
			Help:      "Inbound events filtered out during classification",
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "takbridge",
			Subsystem: "bridge",
			Name:      "parse_errors_total",
			Help:      "Malformed CoT documents skipped",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "takbridge",
			Subsystem: "bridge",
			Name:      "bytes_received_total",
			Help:      "Total bytes read from the TAK server stream",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "takbridge",
			Subsystem: "bridge",
			Name:      "reconnects_total",
			Help:      "Connection failures followed by a reconnect attempt",
		}),
		bufferDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "takbridge",
			Subsystem: "bridge",
			Name:      "buffer_discards_total",
			Help:      "Oversized unparsed receive buffers discarded",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "takbridge",
			Subsystem: "bridge",
			Name:      "connected",
			Help:      "Whether the bridge is currently connected (0/1)",
		}),
		lastConnectTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "takbridge",
			Subsystem: "bridge",
			Name:      "last_connected_timestamp",
			Help:      "Unix timestamp of the last successful connect",
		}),
	}

	_ = registry.RegisterCounter(componentName, "events_received", metrics.eventsReceived)
	_ = registry.RegisterCounter(componentName, "events_sent", metrics.eventsSent)
	_ = registry.RegisterCounter(componentName, "events_skipped", metrics.eventsSkipped)
	_ = registry.RegisterCounter(componentName, "parse_errors", metrics.parseErrors)
	_ = registry.RegisterCounter(componentName, "bytes_received", metrics.bytesReceived)
	_ = registry.RegisterCounter(componentName, "reconnects", metrics.reconnects)
	_ = registry.RegisterCounter(componentName, "buffer_discards", metrics.bufferDiscards)
	_ = registry.RegisterGauge(componentName, "connected", metrics.connected)
	_ = registry.RegisterGauge(componentName, "last_connected", metrics.lastConnectTs)

	return metrics
}

// recordReceived counts parsed inbound events on the bridge counter and the
// shared platform vec.
func (m *Metrics) recordReceived(n int) {
	m.eventsReceived.Add(float64(n))
	m.core.EventsReceived.WithLabelValues(m.name, "cot").Add(float64(n))
}

// recordSent counts pushed track events on the bridge counter and the shared
// platform vec.
func (m *Metrics) recordSent(n int) {
	m.eventsSent.Add(float64(n))
	m.core.EventsSent.WithLabelValues(m.name, "cot").Add(float64(n))
}

// recordError feeds the shared platform error vec.
func (m *Metrics) recordError(errType string) {
	m.core.RecordError(m.name, errType)
}
