package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"clobsettle/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured chain events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "clobsettle",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of emitted events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}

// MeteredEmitter counts every event by type before forwarding it.
type MeteredEmitter struct {
	Next events.Emitter
}

// Emit implements events.Emitter.
func (m MeteredEmitter) Emit(e events.Event) {
	if e == nil {
		return
	}
	Events().RecordEvent(e.EventType())
	if m.Next != nil {
		m.Next.Emit(e)
	}
}
