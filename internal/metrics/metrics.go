package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nidhogg/milgram/internal/message"
)

// Metrics holds all simulation counters. Collectors live on a private
// registry so independent instances never collide.
type Metrics struct {
	registry *prometheus.Registry

	MessagesDelivered prometheus.Counter
	MessagesDropped   prometheus.Counter
	BroadcastsTotal   prometheus.Counter
	MemoriesStored    prometheus.Counter
	MemoriesPruned    prometheus.Counter
	ReasoningTotal    *prometheus.CounterVec
	AgentsRegistered  prometheus.Gauge
	TicksTotal        prometheus.Counter
}

// New creates a metrics instance under the given namespace.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		MessagesDelivered: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_delivered_total",
				Help:      "Total messages delivered to a registered agent",
			},
		),
		MessagesDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_dropped_total",
				Help:      "Total messages addressed to unknown agents",
			},
		),
		BroadcastsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcasts_total",
				Help:      "Total broadcast operations",
			},
		),
		MemoriesStored: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "memories_stored_total",
				Help:      "Total memories written to storage",
			},
		),
		MemoriesPruned: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "memories_pruned_total",
				Help:      "Total memories removed by retention pruning",
			},
		),
		ReasoningTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reasoning_calls_total",
				Help:      "Total reasoning calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		AgentsRegistered: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "agents_registered",
				Help:      "Number of agents registered in the environment",
			},
		),
		TicksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clock_ticks_total",
				Help:      "Total world clock ticks",
			},
		),
	}
}

// OnMessage counts one routed message. Implements the environment
// observer contract.
func (m *Metrics) OnMessage(_ *message.Message, delivered bool) {
	if delivered {
		m.MessagesDelivered.Inc()
	} else {
		m.MessagesDropped.Inc()
	}
}

// OnTick counts one world clock tick. Implements the clock listener
// contract.
func (m *Metrics) OnTick(_ time.Time) {
	m.TicksTotal.Inc()
}

// RecordBroadcast counts one broadcast operation.
func (m *Metrics) RecordBroadcast() {
	m.BroadcastsTotal.Inc()
}

// RecordMemoryStored counts one stored memory.
func (m *Metrics) RecordMemoryStored() {
	m.MemoriesStored.Inc()
}

// RecordMemoriesPruned counts removed memories.
func (m *Metrics) RecordMemoriesPruned(removed int64) {
	if removed > 0 {
		m.MemoriesPruned.Add(float64(removed))
	}
}

// RecordReasoning counts one reasoning call.
func (m *Metrics) RecordReasoning(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ReasoningTotal.WithLabelValues(operation, outcome).Inc()
}

// SetAgents records the current population size.
func (m *Metrics) SetAgents(count int) {
	m.AgentsRegistered.Set(float64(count))
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
