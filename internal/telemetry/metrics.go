package telemetry

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// StoreLatency records the latency of every store operation.
	StoreLatency *prometheus.HistogramVec

	// ParticipantsJoinedTotal counts membership records written on first message.
	ParticipantsJoinedTotal prometheus.Counter

	// DBPoolOpenConnections tracks the number of currently open SQL connections.
	DBPoolOpenConnections prometheus.Gauge

	// DBPoolMaxConnections tracks the configured maximum SQL connections.
	DBPoolMaxConnections prometheus.Gauge
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := strings.TrimSpace(pair[:idx]), strings.TrimSpace(pair[idx+1:])
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Only the first call registers; later calls are no-ops.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
		f := promauto.With(reg)

		httpRequestsTotal = f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unimsg_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		)

		httpRequestDuration = f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "unimsg_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)

		StoreLatency = f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "unimsg_store_latency_seconds",
				Help:    "Store operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		)

		ParticipantsJoinedTotal = f.NewCounter(prometheus.CounterOpts{
			Name: "unimsg_participants_joined_total",
			Help: "Membership records written when a participant first sends to a conversation",
		})

		DBPoolOpenConnections = f.NewGauge(prometheus.GaugeOpts{
			Name: "unimsg_db_pool_open_connections",
			Help: "Number of open database connections",
		})

		DBPoolMaxConnections = f.NewGauge(prometheus.GaugeOpts{
			Name: "unimsg_db_pool_max_connections",
			Help: "Maximum number of database connections",
		})
	})
}

// MetricsMiddleware records HTTP request metrics for Prometheus. Requests are
// labelled with the matched route template so ids do not explode cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(duration.Seconds())
	}
}

// ObserveStore records the latency of a store operation started at start.
func ObserveStore(op string, start time.Time) {
	if StoreLatency == nil {
		return
	}
	StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// CountJoin increments ParticipantsJoinedTotal when metrics are enabled.
func CountJoin() {
	if ParticipantsJoinedTotal != nil {
		ParticipantsJoinedTotal.Inc()
	}
}
