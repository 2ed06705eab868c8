/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tonelist"

// HTTP surface.
var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_active_connections",
		Help:      "In-flight HTTP requests.",
	})

	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_stream_subscribers",
		Help:      "Open websocket event streams.",
	})
)

// Playback core.
var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Dispatched commands by surface, command and outcome kind.",
	}, []string{"surface", "command", "outcome"})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "voice_connections_active",
		Help:      "Live voice connections.",
	})

	ConnectionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "voice_connection_transitions_total",
		Help:      "Voice connection state transitions.",
	}, []string{"from", "to"})

	ConnectionResets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "voice_connection_resets_total",
		Help:      "Full connection rebuilds after a handshake timeout.",
	})

	QueueAdvances = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_advances_total",
		Help:      "Queue advances after a track ended, by result.",
	}, []string{"result"})

	TrackResolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "track_resolve_duration_seconds",
		Help:      "Track resolver latency by result.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"result"})

	NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_failed_total",
		Help:      "Now-playing notifications that could not be delivered.",
	})
)

// Audio node.
var (
	LavalinkConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "lavalink_connected",
		Help:      "1 while the Lavalink websocket session is ready.",
	})

	LavalinkReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lavalink_reconnects_total",
		Help:      "Lavalink websocket reconnect attempts.",
	})

	LavalinkRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "lavalink_request_duration_seconds",
		Help:      "Lavalink REST latency by endpoint and result.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "result"})
)

// Persistence.
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "db_query_duration_seconds",
		Help:      "gorm operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "db_errors_total",
		Help:      "gorm operation failures.",
	}, []string{"operation", "type"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_active",
		Help:      "Open database connections.",
	})

	StoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_operations_total",
		Help:      "Session store operations by backend, operation and result.",
	}, []string{"backend", "operation", "result"})
)

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
