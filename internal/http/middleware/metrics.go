// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Prometheus collectors for the user API. Route labels use the registered
// Gin template (e.g. /api/v1/users/:id) so user IDs never become label
// values; requests that matched no route share the "<unmatched>" label.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedPath labels requests that matched no route.
const unmatchedPath = "<unmatched>"

// sizeBuckets covers small JSON envelopes up to the 1 MiB body limit.
var sizeBuckets = []float64{64, 128, 256, 512, 1 << 10, 4 << 10, 16 << 10, 64 << 10, 256 << 10, 1 << 20}

var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "path", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_inflight",
		Help: "HTTP requests currently being served.",
	})

	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "HTTP response body size by method and route.",
		Buckets: sizeBuckets,
	}, []string{"method", "path"})

	// idemReplays counts requests answered from a stored idempotency record.
	idemReplays = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idempotent_replays_total",
		Help: "Requests answered by replaying an earlier result.",
	}, []string{"path"})

	apiErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_errors_total",
		Help: "Failed API operations by log event.",
	}, []string{"event"})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, idemReplays, apiErrors)
}

// CountAPIError increments api_errors_total for event, the same tag the
// failure is logged under (e.g. create_user_db_error).
func CountAPIError(event string) {
	apiErrors.WithLabelValues(event).Inc()
}

// Metrics instruments every request. Mount /metrics separately with
// promhttp.Handler().
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := routeLabel(c)
		method := c.Request.Method
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
		if IsReplay(c) {
			idemReplays.WithLabelValues(path).Inc()
		}
	}
}

func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedPath
}
