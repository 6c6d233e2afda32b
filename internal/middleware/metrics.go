package middleware

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec

	QueryTotal    *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryRowsRead *prometheus.CounterVec

	ModelCallsTotal    *prometheus.CounterVec
	ModelCallDuration  *prometheus.HistogramVec
	ExtractionScore    prometheus.Histogram
	WithheldExecutions prometheus.Counter

	ConnectionPoolOpen  prometheus.Gauge
	ConnectionPoolInUse prometheus.Gauge
	ConnectionPoolIdle  prometheus.Gauge
	ComponentUp         *prometheus.GaugeVec
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HttpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nl2sql_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		HttpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nl2sql_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		QueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nl2sql_query_total",
				Help: "Total number of executed SQL statements",
			},
			[]string{"database_type", "status"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nl2sql_query_duration_seconds",
				Help:    "SQL execution time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"database_type"},
		),
		QueryRowsRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nl2sql_query_rows_read_total",
				Help: "Total number of rows returned to callers",
			},
			[]string{"database_type"},
		),

		ModelCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nl2sql_model_calls_total",
				Help: "Total number of language model calls",
			},
			[]string{"operation", "status"},
		),
		ModelCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nl2sql_model_call_duration_seconds",
				Help:    "Language model call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"operation"},
		),
		ExtractionScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nl2sql_extraction_confidence",
				Help:    "Confidence of extracted SQL statements",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
		),
		WithheldExecutions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nl2sql_withheld_executions_total",
				Help: "Generated statements that were not executed by policy",
			},
		),

		ConnectionPoolOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nl2sql_connection_pool_open",
			Help: "Number of open connections in the pool",
		}),
		ConnectionPoolInUse: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nl2sql_connection_pool_in_use",
			Help: "Number of connections currently in use",
		}),
		ConnectionPoolIdle: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nl2sql_connection_pool_idle",
			Help: "Number of idle connections in the pool",
		}),
		ComponentUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nl2sql_component_up",
				Help: "Whether a dependency answered its last probe (1=up, 0=down)",
			},
			[]string{"component"},
		),
	}
}

// Middleware records request count and latency per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		method := c.Request.Method

		m.HttpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.HttpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) RecordQuery(databaseType, status string, duration time.Duration, rowsRead int) {
	if m == nil {
		return
	}

	m.QueryTotal.WithLabelValues(databaseType, status).Inc()
	m.QueryDuration.WithLabelValues(databaseType).Observe(duration.Seconds())
	if status == "success" && rowsRead > 0 {
		m.QueryRowsRead.WithLabelValues(databaseType).Add(float64(rowsRead))
	}
}

func (m *Metrics) RecordModelCall(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}

	m.ModelCallsTotal.WithLabelValues(operation, status).Inc()
	m.ModelCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) ObserveConfidence(confidence float64) {
	if m == nil {
		return
	}
	m.ExtractionScore.Observe(confidence)
}

func (m *Metrics) RecordWithheld() {
	if m == nil {
		return
	}
	m.WithheldExecutions.Inc()
}

func (m *Metrics) UpdateConnectionPool(stats sql.DBStats) {
	if m == nil {
		return
	}

	m.ConnectionPoolOpen.Set(float64(stats.OpenConnections))
	m.ConnectionPoolInUse.Set(float64(stats.InUse))
	m.ConnectionPoolIdle.Set(float64(stats.Idle))
}

func (m *Metrics) SetComponentUp(component string, up bool) {
	if m == nil {
		return
	}

	value := 0.0
	if up {
		value = 1.0
	}
	m.ComponentUp.WithLabelValues(component).Set(value)
}
