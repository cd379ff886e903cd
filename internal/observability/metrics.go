package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmchat_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dmchat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dmchat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmchat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmchat_messages_sent_total",
			Help: "Messages appended, by body kind.",
		},
		[]string{"kind"},
	)
	reconcileFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmchat_reconcile_partial_failures_total",
			Help: "Sends that stopped after the message was stored, by failed step.",
		},
		[]string{"step"},
	)
	pageLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmchat_page_loads_total",
			Help: "Older-message page loads, by result.",
		},
		[]string{"result"},
	)
	friendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmchat_friend_requests_total",
			Help: "Friend request transitions.",
		},
		[]string{"action"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dmchat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		messagesSentTotal,
		reconcileFailuresTotal,
		pageLoadsTotal,
		friendRequestsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncMessageSent(kind string) {
	messagesSentTotal.WithLabelValues(kind).Inc()
}

func IncReconcileFailure(step string) {
	reconcileFailuresTotal.WithLabelValues(step).Inc()
}

func IncPageLoad(result string) {
	pageLoadsTotal.WithLabelValues(result).Inc()
}

func IncFriendRequest(action string) {
	friendRequestsTotal.WithLabelValues(action).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
