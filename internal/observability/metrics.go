// Package observability carries the relay's Prometheus metrics and the
// ops HTTP server that exposes them.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warelay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warelay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// LLM metrics
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warelay_llm_requests_total",
			Help: "Total number of completion requests",
		},
		[]string{"status"},
	)

	llmRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warelay_llm_request_duration_seconds",
			Help:    "Completion request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Session metrics
	messagesStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warelay_messages_total",
			Help: "Total number of conversation turns stored",
		},
		[]string{"role"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warelay_active_sessions",
			Help: "Number of active conversation sessions",
		},
	)

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warelay_rate_limited_total",
			Help: "Total number of webhook requests dropped by the per-sender rate limit",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the relay's Prometheus metrics.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			llmRequestsTotal,
			llmRequestDuration,
			messagesStoredTotal,
			activeSessions,
			rateLimitedTotal,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLLMRequest records a completion round-trip.
func RecordLLMRequest(status string, duration time.Duration) {
	llmRequestsTotal.WithLabelValues(status).Inc()
	llmRequestDuration.Observe(duration.Seconds())
}

// RecordMessageStored counts a stored conversation turn.
func RecordMessageStored(role string) {
	messagesStoredTotal.WithLabelValues(role).Inc()
}

// SetActiveSessions sets the active sessions gauge.
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// RecordRateLimited counts a dropped webhook request.
func RecordRateLimited() {
	rateLimitedTotal.Inc()
}
