// Package metrics exposes the server's Prometheus collectors. A Metrics value
// is constructed once and handed to the subsystems that record into it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the server records into.
type Metrics struct {
	registry *prometheus.Registry

	CommandsProcessed  *prometheus.CounterVec
	EngineRejections   *prometheus.CounterVec
	BotFallbacks       prometheus.Counter
	BotRemoteLatency   prometheus.Histogram
	PersistenceRetries prometheus.Counter
	ActiveRooms        prometheus.Gauge
	ActiveConnections  prometheus.Gauge
}

// New builds a Metrics value with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		CommandsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eldorado",
			Name:      "room_commands_processed_total",
			Help:      "Commands processed by rooms, by command kind.",
		}, []string{"command"}),
		EngineRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eldorado",
			Name:      "engine_rejections_total",
			Help:      "Actions rejected by the rules engine, by error code.",
		}, []string{"code"}),
		BotFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eldorado",
			Name:      "bot_remote_fallbacks_total",
			Help:      "Remote strategy failures that fell back to the baseline bot.",
		}),
		BotRemoteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eldorado",
			Name:      "bot_remote_request_seconds",
			Help:      "Remote strategy request latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		PersistenceRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eldorado",
			Name:      "persistence_retries_total",
			Help:      "Retried persistence writes.",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eldorado",
			Name:      "active_rooms",
			Help:      "Rooms currently registered.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eldorado",
			Name:      "active_connections",
			Help:      "Open game connections.",
		}),
	}
	reg.MustRegister(
		m.CommandsProcessed,
		m.EngineRejections,
		m.BotFallbacks,
		m.BotRemoteLatency,
		m.PersistenceRetries,
		m.ActiveRooms,
		m.ActiveConnections,
	)
	return m
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
