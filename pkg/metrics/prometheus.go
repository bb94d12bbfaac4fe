// Package metrics provides Prometheus metrics for the fighter stats API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	registry         prometheus.Registerer

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Request policy metrics
	rateLimitRejections *prometheus.CounterVec
	rateLimitBuckets    prometheus.Gauge
	authFailures        *prometheus.CounterVec
	credentialConflicts prometheus.Counter

	// Dataset and query metrics
	datasetRecords        prometheus.Gauge
	datasetColumns        prometheus.Gauge
	datasetLoadDuration   prometheus.Gauge
	queryLatency          *prometheus.HistogramVec
	aggregationUndefined  *prometheus.CounterVec
	aggregationExclusions *prometheus.CounterVec

	// Access log pipeline metrics
	accessLogQueueSize     prometheus.Gauge
	accessLogQueueCapacity prometheus.Gauge
	accessLogDropped       prometheus.Counter
	accessLogWritten       prometheus.Counter
	accessLogSinkErrors    prometheus.Counter
	accessLogSinkLatency   prometheus.Histogram

	// Enhanced Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "fighterstats",
		subsystem:        "api",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by endpoint, method and status",
			ConstLabels: constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.rateLimitRejections = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "rate_limit_rejections_total",
			Help:        "Requests rejected because the client exceeded the endpoint quota",
			ConstLabels: constLabels,
		},
		[]string{"endpoint"},
	)

	m.rateLimitBuckets = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rate_limit_buckets",
		Help:        "Live (client, endpoint) rate limit buckets",
		ConstLabels: constLabels,
	})

	m.authFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "auth_failures_total",
			Help:        "Requests rejected by the API key check",
			ConstLabels: constLabels,
		},
		[]string{"reason"},
	)

	m.credentialConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "credential_conflicts_total",
		Help:        "Requests carrying different header and query parameter API keys",
		ConstLabels: constLabels,
	})

	m.datasetRecords = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "dataset_records",
		Help:        "Number of fighter records loaded",
		ConstLabels: constLabels,
	})

	m.datasetColumns = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "dataset_columns",
		Help:        "Number of columns in the loaded dataset",
		ConstLabels: constLabels,
	})

	m.datasetLoadDuration = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "dataset_load_duration_milliseconds",
		Help:        "Time spent loading the dataset at startup",
		ConstLabels: constLabels,
	})

	m.queryLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "query_latency_milliseconds",
			Help:        "Query engine latency by operation",
			Buckets:     m.histogramBuckets,
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)

	m.aggregationUndefined = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "aggregation_undefined_total",
			Help:        "Mean aggregations that had no coercible values",
			ConstLabels: constLabels,
		},
		[]string{"column"},
	)

	m.aggregationExclusions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "aggregation_excluded_cells_total",
			Help:        "Cells skipped during mean aggregation because they were not numeric",
			ConstLabels: constLabels,
		},
		[]string{"column"},
	)

	m.accessLogQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "access_log_queue_size",
		Help:        "Access log entries waiting to be written",
		ConstLabels: constLabels,
	})

	m.accessLogQueueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "access_log_queue_capacity",
		Help:        "Maximum access log queue capacity",
		ConstLabels: constLabels,
	})

	m.accessLogDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "access_log_dropped_total",
		Help:        "Access log entries dropped because the queue was full or closed",
		ConstLabels: constLabels,
	})

	m.accessLogWritten = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "access_log_written_total",
		Help:        "Access log entries persisted by the sink",
		ConstLabels: constLabels,
	})

	m.accessLogSinkErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "access_log_sink_errors_total",
		Help:        "Failed access log sink writes",
		ConstLabels: constLabels,
	})

	m.accessLogSinkLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "access_log_sink_latency_milliseconds",
		Help:        "Access log batch write latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	})

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_component_total",
			Help:        "Total number of errors by component",
			ConstLabels: constLabels,
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_type_total",
			Help:        "Total number of errors by type and severity",
			ConstLabels: constLabels,
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_endpoint_total",
			Help:        "Total number of errors by HTTP endpoint",
			ConstLabels: constLabels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "error_latency_milliseconds",
			Help:        "Latency of failed operations in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: constLabels,
		},
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_memory_usage_bytes",
		Help:        "System memory usage in bytes",
		ConstLabels: constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_goroutine_count",
		Help:        "Number of goroutines",
		ConstLabels: constLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: constLabels,
	})
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRateLimitRejection counts a 429 for endpoint.
func RecordRateLimitRejection(endpoint string) {
	if !globalManager.enabled {
		return
	}
	globalManager.rateLimitRejections.WithLabelValues(endpoint).Inc()
}

// UpdateRateLimitBuckets sets the number of live rate limit buckets.
func UpdateRateLimitBuckets(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.rateLimitBuckets.Set(float64(count))
}

// RecordAuthFailure counts a rejected credential. reason is "missing" or "invalid".
func RecordAuthFailure(reason string) {
	if !globalManager.enabled {
		return
	}
	globalManager.authFailures.WithLabelValues(reason).Inc()
}

// RecordCredentialConflict counts requests whose header and query keys disagree.
func RecordCredentialConflict() {
	if !globalManager.enabled {
		return
	}
	globalManager.credentialConflicts.Inc()
}

// UpdateDataset records the shape of the loaded dataset.
func UpdateDataset(records, columns int, loadMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.datasetRecords.Set(float64(records))
	globalManager.datasetColumns.Set(float64(columns))
	globalManager.datasetLoadDuration.Set(loadMs)
}

// RecordQueryLatency records query engine latency in milliseconds.
func RecordQueryLatency(operation string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.queryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordAggregationUndefined counts a mean with no coercible values.
func RecordAggregationUndefined(column string) {
	if !globalManager.enabled {
		return
	}
	globalManager.aggregationUndefined.WithLabelValues(column).Inc()
}

// RecordAggregationExclusions counts cells skipped while averaging column.
func RecordAggregationExclusions(column string, n int) {
	if !globalManager.enabled || n <= 0 {
		return
	}
	globalManager.aggregationExclusions.WithLabelValues(column).Add(float64(n))
}

// UpdateAccessLogQueue records access log queue depth and capacity.
func UpdateAccessLogQueue(size, capacity int) {
	if !globalManager.enabled {
		return
	}
	globalManager.accessLogQueueSize.Set(float64(size))
	globalManager.accessLogQueueCapacity.Set(float64(capacity))
}

// RecordAccessLogDropped counts an entry that could not be queued.
func RecordAccessLogDropped() {
	if !globalManager.enabled {
		return
	}
	globalManager.accessLogDropped.Inc()
}

// RecordAccessLogWritten counts entries persisted by the sink.
func RecordAccessLogWritten(n int) {
	if !globalManager.enabled || n <= 0 {
		return
	}
	globalManager.accessLogWritten.Add(float64(n))
}

// RecordAccessLogSinkError counts a failed sink write.
func RecordAccessLogSinkError() {
	if !globalManager.enabled {
		return
	}
	globalManager.accessLogSinkErrors.Inc()
}

// RecordAccessLogSinkLatency records a sink batch write latency in milliseconds.
func RecordAccessLogSinkLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.accessLogSinkLatency.Observe(latencyMs)
}

// RecordErrorByComponent records an error by component and type.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error by HTTP endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of a failed operation.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// UpdateSystemMemoryUsage updates the system memory usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates the goroutine count gauge.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
