package auth

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink counts activity events per type
type MetricsSink struct {
	events *prometheus.CounterVec
}

// NewMetricsSink creates and registers the event counter on reg
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	m := &MetricsSink{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_events_total",
				Help: "Total number of authentication events by type",
			},
			[]string{"event"},
		),
	}

	reg.MustRegister(m.events)

	return m
}

// Record implements ActivitySink.
func (m *MetricsSink) Record(_ context.Context, event ActivityEvent) error {
	m.events.WithLabelValues(string(event.EventType)).Inc()
	return nil
}

// Collector exposes the underlying counter, mostly for tests
func (m *MetricsSink) Collector() *prometheus.CounterVec {
	return m.events
}
