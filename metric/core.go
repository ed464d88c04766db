package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains platform-level metrics shared across takbridge components
type Metrics struct {
	ComponentStatus   *prometheus.GaugeVec
	EventsReceived    *prometheus.CounterVec
	EventsSent        *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	HealthCheckStatus *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "takbridge",
				Subsystem: "component",
				Name:      "status",
				Help:      "Component lifecycle state (0=created, 1=initialized, 2=started, 3=stopped, 4=failed)",
			},
			[]string{"component"},
		),

		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "takbridge",
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Total number of events received",
			},
			[]string{"component", "type"},
		),

		EventsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "takbridge",
				Subsystem: "events",
				Name:      "sent_total",
				Help:      "Total number of events sent",
			},
			[]string{"component", "type"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "takbridge",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "takbridge",
				Subsystem: "health",
				Name:      "check_status",
				Help:      "Health check status (1=healthy, 0.5=degraded, 0=unhealthy)",
			},
			[]string{"component"},
		),
	}
}

// UpdateComponentStatus sets the status gauge for a component
func (m *Metrics) UpdateComponentStatus(component string, status float64) {
	m.ComponentStatus.WithLabelValues(component).Set(status)
}

// RecordError increments the error counter for a component
func (m *Metrics) RecordError(component, errType string) {
	m.ErrorsTotal.WithLabelValues(component, errType).Inc()
}

// UpdateHealthCheck sets the health gauge for a component
// (1=healthy, 0.5=degraded, 0=unhealthy)
func (m *Metrics) UpdateHealthCheck(component string, value float64) {
	m.HealthCheckStatus.WithLabelValues(component).Set(value)
}
