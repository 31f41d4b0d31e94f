package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchatx_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quickchatx_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchatx_messages_sent_total",
			Help: "Total messages sent",
		},
		[]string{"kind"},
	)

	MessagesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quickchatx_messages_deleted_total",
			Help: "Total messages soft-deleted",
		},
	)

	CallsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchatx_calls_started_total",
			Help: "Total calls started",
		},
		[]string{"kind"},
	)

	PresenceUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchatx_presence_updates_total",
			Help: "Total presence status updates",
		},
		[]string{"status"},
	)

	// Event bus metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchatx_events_published_total",
			Help: "Events published to the shared broker channel",
		},
		[]string{"event"},
	)

	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchatx_events_delivered_total",
			Help: "Events delivered to local connections",
		},
		[]string{"event"},
	)

	// BrokerFailures makes degraded-broker operation observable: every
	// swallowed fire-and-forget broker error lands here.
	BrokerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchatx_broker_failures_total",
			Help: "Broker errors swallowed on fire-and-forget paths",
		},
		[]string{"op"},
	)

	// Connection metrics
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quickchatx_connections_active",
			Help: "Live connections registered on this process",
		},
		[]string{"channel"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchatx_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
