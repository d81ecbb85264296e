// Package metrics provides Prometheus metrics for the chat server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AI reply outcomes
const (
	OutcomeSent     = "sent"
	OutcomeFailed   = "failed"
	OutcomeDropped  = "dropped"
	OutcomeTimeout  = "timeout"
	OutcomeCanceled = "canceled"
)

var (
	// MessagesSent counts persisted messages by sender kind (human, ai).
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unichat_messages_sent_total",
			Help: "Total number of messages persisted",
		},
		[]string{"sender"},
	)

	// ChangesPublished counts change notifications by kind.
	ChangesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unichat_changes_published_total",
			Help: "Total number of change notifications published",
		},
		[]string{"kind"},
	)

	// FanoutDeliveries counts snapshots handed to subscribers.
	FanoutDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unichat_fanout_deliveries_total",
			Help: "Total number of snapshots delivered to subscribers",
		},
		[]string{"topic"},
	)

	// FanoutLoadErrors counts snapshot loads that failed.
	FanoutLoadErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unichat_fanout_load_errors_total",
			Help: "Total number of failed snapshot loads",
		},
		[]string{"topic"},
	)

	// ActiveSubscriptions tracks live subscriptions.
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "unichat_active_subscriptions",
			Help: "Number of currently active subscriptions",
		},
	)

	// WsConnections tracks open websocket connections.
	WsConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "unichat_ws_connections",
			Help: "Number of currently open websocket connections",
		},
	)

	// AIReplies counts AI reply attempts by outcome.
	AIReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unichat_ai_replies_total",
			Help: "Total number of AI reply attempts by outcome",
		},
		[]string{"outcome"},
	)

	// AIReplyDuration tracks end-to-end AI reply latency.
	AIReplyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "unichat_ai_reply_duration_seconds",
			Help:    "Duration from trigger to persisted AI reply",
			Buckets: []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)
)

// RecordAIReply records the outcome and latency of one AI reply
func RecordAIReply(outcome string, started time.Time) {
	AIReplies.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSent {
		AIReplyDuration.Observe(time.Since(started).Seconds())
	}
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
