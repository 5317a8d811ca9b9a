// Package metrics provides Prometheus metrics for climalert.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "climalert"
)

// HTTP metrics for the local control API.
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// Stream metrics
var (
	// StreamState exposes the connection state as its numeric value.
	StreamState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "state",
			Help:      "Connection state (0=disconnected 1=connecting 2=connected 3=reconnecting 4=failed)",
		},
	)

	// StreamConnectsTotal counts stream open attempts by result.
	StreamConnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connects_total",
			Help:      "Stream open attempts by result",
		},
		[]string{"result"},
	)

	// StreamReconnectsTotal counts scheduled reconnects.
	StreamReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total reconnects scheduled",
		},
	)

	// StreamFramesTotal counts inbound frames by event name.
	StreamFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Inbound stream frames by event name",
		},
		[]string{"event"},
	)

	// StreamDecodeFailuresTotal counts dropped malformed payloads.
	StreamDecodeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "decode_failures_total",
			Help:      "Malformed alert payloads dropped",
		},
	)

	// StreamHeartbeatStaleTotal counts connections dropped for silence.
	StreamHeartbeatStaleTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "heartbeat_stale_total",
			Help:      "Connections torn down after the heartbeat went stale",
		},
	)

	// AlertsPublishedTotal counts alerts published to the bus.
	AlertsPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "alerts_published_total",
			Help:      "Decoded alerts published to subscribers",
		},
	)
)

// History metrics
var (
	// HistoryEntries tracks the current history length.
	HistoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "entries",
			Help:      "Number of alerts currently kept in history",
		},
	)

	// HistoryPersistFailuresTotal counts failed history writes.
	HistoryPersistFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "persist_failures_total",
			Help:      "History persistence failures",
		},
	)
)

// Status update metrics
var (
	// StatusRequestsTotal counts status change intents received.
	StatusRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "requests_total",
			Help:      "Status change intents received",
		},
	)

	// StatusCoalescedTotal counts intents superseded inside the debounce window.
	StatusCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "coalesced_total",
			Help:      "Status intents superseded before being written",
		},
	)

	// StatusWritesTotal counts backend write attempts by result.
	StatusWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "writes_total",
			Help:      "Status write attempts by result",
		},
		[]string{"result"},
	)
)

// Notifier metrics
var (
	// NotificationsSentTotal counts forwarded alerts by notifier and status.
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "sent_total",
			Help:      "Total notifications sent",
		},
		[]string{"notifier", "status"},
	)

	// NotificationsRateLimitedTotal counts alerts dropped by rate limiting.
	NotificationsRateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "rate_limited_total",
			Help:      "Notifications dropped by the rate limiter",
		},
		[]string{"notifier"},
	)
)
