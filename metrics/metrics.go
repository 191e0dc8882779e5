package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Currently admitted realtime channels.",
	})

	WSRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_handshakes_rejected_total",
		Help: "Realtime handshakes rejected by the credential gate.",
	})

	Pushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_pushes_total",
		Help: "Frames queued to admitted channels by event name.",
	}, []string{"event"})

	PushesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_pushes_dropped_total",
		Help: "Pushes dropped before reaching a channel, by reason.",
	}, []string{"reason"})

	NotificationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Notification rows persisted.",
	})
)
