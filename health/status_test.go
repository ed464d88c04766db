package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/takbridge/component"
)

func TestStatusPredicates(t *testing.T) {
	assert.True(t, NewHealthy("bridge", "ok").IsHealthy())
	assert.True(t, NewDegraded("bridge", "disconnected, retrying").IsDegraded())
	assert.True(t, NewUnhealthy("bridge", "stopped").IsUnhealthy())
	assert.False(t, NewDegraded("bridge", "x").IsHealthy())
}

func TestStatusGaugeValue(t *testing.T) {
	assert.Equal(t, 1.0, NewHealthy("bridge", "ok").GaugeValue())
	assert.Equal(t, 0.5, NewDegraded("bridge", "reconnecting").GaugeValue())
	assert.Equal(t, 0.0, NewUnhealthy("bridge", "stopped").GaugeValue())
}

func TestFromComponentHealth(t *testing.T) {
	ch := component.HealthStatus{
		Healthy:    false,
		LastCheck:  time.Now(),
		ErrorCount: 3,
		LastError:  "connection refused",
		Uptime:     time.Minute,
	}

	s := FromComponentHealth("tak-bridge", ch)
	assert.Equal(t, "tak-bridge", s.Component)
	assert.Equal(t, "unhealthy", s.Status)
	assert.Equal(t, "connection refused", s.Message)
	require.NotNil(t, s.Metrics)
	assert.Equal(t, 3, s.Metrics.ErrorCount)
	assert.Equal(t, time.Minute, s.Metrics.Uptime)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, "healthy"},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, "healthy"},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, "degraded"},
		{"one unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("system", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestWithSubStatusDoesNotShareSlice(t *testing.T) {
	base := NewHealthy("system", "ok")
	a := base.WithSubStatus(NewHealthy("a", ""))
	b := a.WithSubStatus(NewHealthy("b", ""))

	assert.Len(t, a.SubStatuses, 1)
	assert.Len(t, b.SubStatuses, 2)
}
