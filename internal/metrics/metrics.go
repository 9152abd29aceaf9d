package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transmit_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transmit_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	TransmissionsPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transmit_transmissions_posted_total",
			Help: "Total transmissions posted",
		},
		[]string{"surface"}, // "page" or "api"
	)

	TransmissionsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transmit_transmissions_deleted_total",
			Help: "Total transmissions deleted",
		},
		[]string{"surface"},
	)

	// Rejected actions, by alert kind
	ActionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transmit_actions_rejected_total",
			Help: "Total user actions rejected",
		},
		[]string{"kind"},
	)

	// Realtime metrics
	SnapshotsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transmit_snapshots_delivered_total",
			Help: "Total snapshots received from the store feed",
		},
	)

	FeedConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transmit_feed_connected",
			Help: "1 when the store feed is connected",
		},
	)

	WebSocketClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transmit_websocket_clients",
			Help: "Connected websocket clients",
		},
		[]string{"kind"}, // "page" or "stream"
	)
)
