package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Live sessions
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_active",
			Help: "Websocket sessions currently active",
		},
	)

	HandshakeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_handshake_failures_total",
			Help: "Websocket handshakes rejected by the identity verifier",
		},
	)

	// Relay
	MessagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_persisted_total",
			Help: "Messages that reached the durability point",
		},
		[]string{"source"}, // "ws" or "rest"
	)

	RelayRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_rejections_total",
			Help: "Sends aborted before the durability point",
		},
		[]string{"reason"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_deliveries_total",
			Help: "Per-session event hand-offs by outcome",
		},
		[]string{"outcome"}, // "delivered" or "dropped"
	)

	PersistLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_persist_latency_seconds",
			Help:    "Message append latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25},
		},
	)
)
