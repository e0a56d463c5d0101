package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes application-level Prometheus instruments.
type Metrics struct {
	signAttempts  *prometheus.CounterVec
	signFailures  *prometheus.CounterVec
	fiscalCalls   *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
}

// New registers the fiskal instruments on the default registry.
func New() *Metrics {
	m := &Metrics{
		signAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fiskal_sign_attempts_total",
			Help: "Transaction signing attempts by outcome.",
		}, []string{"outcome"}),
		signFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fiskal_sign_failures_total",
			Help: "Transaction signing failures by stage.",
		}, []string{"stage"}),
		fiscalCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fiskal_api_call_duration_seconds",
			Help:    "Duration of calls against the fiscal API.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fiskal_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "method", "status"}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fiskal_http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	prometheus.MustRegister(
		m.signAttempts,
		m.signFailures,
		m.fiscalCalls,
		m.httpRequests,
		m.httpDurations,
	)
	return m
}

// RecordSignAttempt counts a signing attempt. Outcome is signed, skipped
// or failed.
func (m *Metrics) RecordSignAttempt(outcome string) {
	if m == nil {
		return
	}
	m.signAttempts.WithLabelValues(outcome).Inc()
}

// RecordSignFailure counts a signing failure at the given stage
// (start or finish).
func (m *Metrics) RecordSignFailure(stage string) {
	if m == nil {
		return
	}
	m.signFailures.WithLabelValues(stage).Inc()
}

// ObserveFiscalCall records the duration of one fiscal API round trip.
func (m *Metrics) ObserveFiscalCall(operation string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fiscalCalls.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// GinMiddleware records per-route request counters and durations.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDurations.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}
