package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messaging lifecycle
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cofound_messages_sent_total",
			Help: "Total private messages persisted",
		},
	)

	MessagesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cofound_messages_delivered_total",
			Help: "Total delivered transitions applied",
		},
	)

	MessagesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cofound_messages_read_total",
			Help: "Total messages transitioned to read",
		},
	)

	// Rate limiting
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cofound_rate_limit_rejections_total",
			Help: "Rate limited operations by category",
		},
		[]string{"category"},
	)

	// Degraded-mode signals. 1 means the shared store is unreachable and
	// the process is running on its local fallback.
	LimiterDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cofound_limiter_degraded",
			Help: "1 when rate limiting has fallen back to process-local counters",
		},
	)

	FanoutDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cofound_fanout_degraded",
			Help: "1 when event fan-out is process-local only",
		},
	)

	// Connections
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cofound_ws_connections",
			Help: "Live websocket connections on this process",
		},
	)
)
