// Package metrics provides Prometheus metrics for the stance pose pipeline.
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
	registry         prometheus.Registerer

	// Sampling loop metrics
	ticksProcessed prometheus.Counter
	ticksSkipped   prometheus.Counter
	tickErrors     *prometheus.CounterVec
	tickLatency    prometheus.Histogram
	stageLatency   *prometheus.HistogramVec
	emptyFrames    prometheus.Counter
	staleFrames    prometheus.Counter
	activeLoops    prometheus.Gauge

	// Detection metrics
	detections          prometheus.Counter
	noDetections        prometheus.Counter
	detectionConfidence prometheus.Histogram

	// Publisher metrics
	snapshotsPublished prometheus.Counter
	subscriberDrops    *prometheus.CounterVec
	subscriberCount    prometheus.Gauge

	// Model lifecycle metrics
	modelStatus      prometheus.Gauge
	modelLoadLatency prometheus.Histogram
	modelLoadErrors  prometheus.Counter

	// Snapshot store metrics
	storeRowsWritten  prometheus.Counter
	storeErrors       prometheus.Counter
	storeFlushLatency prometheus.Histogram
	storeBufferSize   prometheus.Gauge

	// Session metrics
	activeSessions prometheus.Gauge

	// HTTP and WebSocket metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	wsClients           prometheus.Gauge
	wsMessages          prometheus.Counter

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// defaultLatencyBuckets cover per-stage pipeline latencies in milliseconds,
// from sub-millisecond math up to multi-second model loads.
var defaultLatencyBuckets = []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "stance",
		subsystem:        "pipeline",
		histogramBuckets: defaultLatencyBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Sampling loop metrics
	m.ticksProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ticks_processed_total",
		Help:      "Total number of sampling ticks that ran the full pipeline",
	})

	m.ticksSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ticks_skipped_total",
		Help:      "Total number of ticks skipped because the previous tick was still in flight",
	})

	m.tickErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "tick_errors_total",
			Help:      "Total number of failed ticks by pipeline stage",
		},
		[]string{"stage"},
	)

	m.tickLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tick_latency_milliseconds",
		Help:      "Whole-tick latency from frame pull to publish in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.stageLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "stage_latency_milliseconds",
			Help:      "Per-stage pipeline latency in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"stage"},
	)

	m.emptyFrames = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "empty_frames_total",
		Help:      "Total number of ticks skipped for empty or zero-sized frames",
	})

	m.staleFrames = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stale_frames_total",
		Help:      "Total number of ticks skipped because the source produced no new frame",
	})

	m.activeLoops = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_loops",
		Help:      "Number of running participant sampling loops",
	})

	// Detection metrics
	m.detections = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "detections_total",
		Help:      "Total number of ticks with a qualifying person detection",
	})

	m.noDetections = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "no_detections_total",
		Help:      "Total number of ticks where no candidate cleared the confidence threshold",
	})

	m.detectionConfidence = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "detection_confidence",
		Help:      "Confidence of the selected detection candidate",
		Buckets:   prometheus.LinearBuckets(0.25, 0.05, 16),
	})

	// Publisher metrics
	m.snapshotsPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshots_published_total",
		Help:      "Total number of participant snapshots published",
	})

	m.subscriberDrops = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "subscriber_dropped_total",
			Help:      "Total number of snapshots dropped per slow subscriber",
		},
		[]string{"subscriber"},
	)

	m.subscriberCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "subscriber_count",
		Help:      "Number of attached snapshot subscribers",
	})

	// Model lifecycle metrics
	m.modelStatus = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_status",
		Help:      "Model lifecycle state (0 uninitialized, 1 loading, 2 ready, 3 failed)",
	})

	m.modelLoadLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_load_latency_milliseconds",
		Help:      "Model load latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.modelLoadErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_load_errors_total",
		Help:      "Total number of failed model load attempts",
	})

	// Snapshot store metrics
	m.storeRowsWritten = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_rows_written_total",
		Help:      "Total number of snapshot rows persisted",
	})

	m.storeErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_errors_total",
		Help:      "Total number of snapshot store failures",
	})

	m.storeFlushLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_flush_latency_milliseconds",
		Help:      "Snapshot store batch flush latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeBufferSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_buffer_size",
		Help:      "Snapshot rows currently buffered awaiting flush",
	})

	// Session metrics
	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_sessions",
		Help:      "Number of active instrumentation sessions",
	})

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.wsClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ws_clients",
		Help:      "Number of connected WebSocket stream clients",
	})

	m.wsMessages = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ws_messages_total",
		Help:      "Total number of snapshots pushed over WebSocket",
	})

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Sampling loop metrics functions.

// RecordTickProcessed increments the processed ticks counter.
func RecordTickProcessed() {
	globalManager.ticksProcessed.Inc()
}

// RecordTickSkipped increments the backpressure skip counter.
func RecordTickSkipped() {
	globalManager.ticksSkipped.Inc()
}

// RecordTickError increments the failed tick counter for a stage.
func RecordTickError(stage string) {
	globalManager.tickErrors.WithLabelValues(stage).Inc()
}

// RecordTickLatency records whole-tick latency in milliseconds.
func RecordTickLatency(latencyMs float64) {
	globalManager.tickLatency.Observe(latencyMs)
}

// RecordStageLatency records a single pipeline stage latency in milliseconds.
func RecordStageLatency(stage string, latencyMs float64) {
	globalManager.stageLatency.WithLabelValues(stage).Observe(latencyMs)
}

// RecordEmptyFrame increments the empty frame counter.
func RecordEmptyFrame() {
	globalManager.emptyFrames.Inc()
}

// RecordStaleFrame increments the no-new-frame counter.
func RecordStaleFrame() {
	globalManager.staleFrames.Inc()
}

// UpdateActiveLoops sets the number of running sampling loops.
func UpdateActiveLoops(count int) {
	globalManager.activeLoops.Set(float64(count))
}

// Detection metrics functions.

// RecordDetection records a qualifying detection and its confidence.
func RecordDetection(confidence float64) {
	globalManager.detections.Inc()
	globalManager.detectionConfidence.Observe(confidence)
}

// RecordNoDetection increments the no-person counter.
func RecordNoDetection() {
	globalManager.noDetections.Inc()
}

// Publisher metrics functions.

// RecordSnapshotPublished increments the published snapshot counter.
func RecordSnapshotPublished() {
	globalManager.snapshotsPublished.Inc()
}

// RecordSubscriberDrop increments the drop counter for a subscriber.
func RecordSubscriberDrop(subscriber string) {
	globalManager.subscriberDrops.WithLabelValues(subscriber).Inc()
}

// UpdateSubscriberCount sets the number of attached subscribers.
func UpdateSubscriberCount(count int) {
	globalManager.subscriberCount.Set(float64(count))
}

// Model lifecycle metrics functions.

// UpdateModelStatus sets the model lifecycle state gauge.
func UpdateModelStatus(status int) {
	globalManager.modelStatus.Set(float64(status))
}

// RecordModelLoadLatency records a successful model load latency.
func RecordModelLoadLatency(latencyMs float64) {
	globalManager.modelLoadLatency.Observe(latencyMs)
}

// RecordModelLoadError increments the failed load counter.
func RecordModelLoadError() {
	globalManager.modelLoadErrors.Inc()
}

// Snapshot store metrics functions.

// RecordStoreRows adds to the persisted row counter.
func RecordStoreRows(count int) {
	globalManager.storeRowsWritten.Add(float64(count))
}

// RecordStoreError increments the store failure counter.
func RecordStoreError() {
	globalManager.storeErrors.Inc()
}

// RecordStoreFlushLatency records a batch flush latency in milliseconds.
func RecordStoreFlushLatency(latencyMs float64) {
	globalManager.storeFlushLatency.Observe(latencyMs)
}

// UpdateStoreBufferSize sets the buffered row gauge.
func UpdateStoreBufferSize(size int) {
	globalManager.storeBufferSize.Set(float64(size))
}

// Session metrics functions.

// UpdateActiveSessions sets the active session gauge.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// HTTP and WebSocket metrics functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateWSClients sets the connected WebSocket client gauge.
func UpdateWSClients(count int) {
	globalManager.wsClients.Set(float64(count))
}

// RecordWSMessage increments the pushed WebSocket message counter.
func RecordWSMessage() {
	globalManager.wsMessages.Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
