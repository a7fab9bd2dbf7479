// Package telemetry exposes the service's Prometheus collectors and sets up
// OpenTelemetry tracing.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// IngestTotal counts ingestion attempts by outcome:
	// accepted, unknown_server, invalid, error.
	IngestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cmm",
		Name:      "ingest_total",
		Help:      "Metric ingestion attempts by result",
	}, []string{"result"})

	AlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cmm",
		Name:      "alerts_raised_total",
		Help:      "Alerts persisted by level",
	}, []string{"level"})

	// AuthEvents counts login and authorization outcomes.
	AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cmm",
		Name:      "auth_events_total",
		Help:      "Authentication and authorization outcomes",
	}, []string{"event"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cmm",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cmm",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"method", "route"})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware records request counts and latency per matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
