// Package metrics holds the Prometheus collectors for HTTP traffic and the
// attempt integrity pipeline.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate limiter decisions by action",
		},
		[]string{"action", "allowed"},
	)

	AutosaveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autosave_total",
			Help: "Autosave calls by result",
		},
		[]string{"result"},
	)

	AntiCheatEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anticheat_events_total",
			Help: "Recorded anti-cheat events",
		},
		[]string{"event_type", "severity"},
	)

	AttemptTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attempt_transitions_total",
			Help: "Attempt lifecycle transitions",
		},
		[]string{"from", "to"},
	)

	registerOnce sync.Once
)

// Register adds every collector to reg. Safe to call more than once.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			RequestCounter, RequestDuration,
			RateLimitDecisions, AutosaveTotal, AntiCheatEvents, AttemptTransitions,
		)
	})
}

// Middleware records request count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// ObserveRateLimit counts one limiter decision.
func ObserveRateLimit(action string, allowed bool) {
	RateLimitDecisions.WithLabelValues(action, strconv.FormatBool(allowed)).Inc()
}
