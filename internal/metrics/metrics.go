package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "staffchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "staffchat_messages_sent_total",
			Help: "Total direct messages accepted and persisted",
		},
	)

	MessagesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffchat_messages_delivered_total",
			Help: "Total live deliveries to individual connections",
		},
		[]string{"party"}, // "sender" (multi-device echo) or "recipient"
	)

	SendRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffchat_send_rejections_total",
			Help: "Total sends rejected before delivery",
		},
		[]string{"reason"}, // "validation", "rate_limit" or "persistence"
	)

	ConversationsCleared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "staffchat_conversations_cleared_total",
			Help: "Total per-viewer conversation clears",
		},
	)

	// Presence metrics
	ConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "staffchat_ws_connections_open",
			Help: "Currently open websocket connections",
		},
	)

	IdentitiesOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "staffchat_identities_online",
			Help: "Identities with at least one live connection",
		},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "staffchat_store_latency_seconds",
			Help:    "Message store operation latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
		[]string{"op"},
	)

	HeartbeatLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "staffchat_heartbeat_latency_seconds",
			Help:    "Heartbeat store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)
