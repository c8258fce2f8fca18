package metrics

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const namespace = "logseek"

// Collector provides a central place for all application metrics
type Collector struct {
	// Index build metrics
	BuildRuns         *prometheus.CounterVec
	BuildRecords      *prometheus.CounterVec
	BuildParseErrors  *prometheus.CounterVec
	BuildIndexEntries *prometheus.CounterVec
	BuildCheckpoints  prometheus.Counter
	BuildBytesScanned *prometheus.CounterVec
	BuildDuration     *prometheus.HistogramVec

	// Range extraction metrics
	ExtractRequests     *prometheus.CounterVec
	ExtractBytes        *prometheus.CounterVec
	ExtractSkippedBytes *prometheus.CounterVec
	ExtractFallbacks    prometheus.Counter
	ExtractDuration     *prometheus.HistogramVec

	// Output metrics
	OutputLinesSent *prometheus.CounterVec
	OutputBytesSent *prometheus.CounterVec
	OutputFailures  *prometheus.CounterVec
	OutputDuration  *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec

	// System metrics
	SystemGoroutines prometheus.Gauge
	SystemMemAlloc   prometheus.Gauge
	SystemMemSys     prometheus.Gauge

	// Health metrics
	HealthStatus *prometheus.GaugeVec

	registry *prometheus.Registry
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
	}

	c.initBuildMetrics()
	c.initExtractMetrics()
	c.initOutputMetrics()
	c.initHTTPMetrics()
	c.initSystemMetrics()
	c.initHealthMetrics()

	return c
}

func (c *Collector) initBuildMetrics() {
	c.BuildRuns = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "runs_total",
			Help:      "Total number of index builds by log mode and outcome",
		},
		[]string{"mode", "status"},
	)

	c.BuildRecords = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "records_total",
			Help:      "Total number of log records parsed while indexing",
		},
		[]string{"mode"},
	)

	c.BuildParseErrors = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "parse_errors_total",
			Help:      "Total number of records without a parseable timestamp",
		},
		[]string{"mode"},
	)

	c.BuildIndexEntries = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "index_entries_total",
			Help:      "Total number of time index entries written",
		},
		[]string{"mode"},
	)

	c.BuildCheckpoints = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "checkpoints_total",
			Help:      "Total number of decompression checkpoints written",
		},
	)

	c.BuildBytesScanned = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "bytes_scanned_total",
			Help:      "Total uncompressed bytes scanned while indexing",
		},
		[]string{"mode"},
	)

	c.BuildDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "duration_seconds",
			Help:      "Index build duration",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~45m
		},
		[]string{"mode"},
	)
}

func (c *Collector) initExtractMetrics() {
	c.ExtractRequests = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "requests_total",
			Help:      "Total number of range extractions by log mode and outcome",
		},
		[]string{"mode", "status"},
	)

	c.ExtractBytes = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "bytes_total",
			Help:      "Total bytes written to the extraction output",
		},
		[]string{"mode"},
	)

	c.ExtractSkippedBytes = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "skipped_bytes_total",
			Help:      "Total bytes decompressed between the checkpoint and the requested offset",
		},
		[]string{"mode"},
	)

	c.ExtractFallbacks = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "fallbacks_total",
			Help:      "Total number of extractions that fell back to the start of the log",
		},
	)

	c.ExtractDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "duration_seconds",
			Help:      "Range extraction duration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4m
		},
		[]string{"mode"},
	)
}

func (c *Collector) initOutputMetrics() {
	c.OutputLinesSent = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "lines_sent_total",
			Help:      "Total number of lines delivered by output sink",
		},
		[]string{"sink"},
	)

	c.OutputBytesSent = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "bytes_sent_total",
			Help:      "Total bytes delivered by output sink",
		},
		[]string{"sink"},
	)

	c.OutputFailures = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "failures_total",
			Help:      "Total number of failed deliveries by output sink",
		},
		[]string{"sink"},
	)

	c.OutputDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "send_duration_seconds",
			Help:      "Time spent delivering one batch",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"sink"},
	)
}

func (c *Collector) initHTTPMetrics() {
	c.HTTPRequests = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
}

func (c *Collector) initSystemMetrics() {
	c.SystemGoroutines = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "goroutines_total",
			Help:      "Current number of goroutines",
		},
	)

	c.SystemMemAlloc = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_allocated_bytes",
			Help:      "Bytes of allocated heap objects",
		},
	)

	c.SystemMemSys = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_system_bytes",
			Help:      "Total bytes of memory obtained from the OS",
		},
	)
}

func (c *Collector) initHealthMetrics() {
	c.HealthStatus = promauto.With(c.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "status",
			Help:      "Health status of components (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)
}

// Start begins collecting system metrics periodically
func (c *Collector) Start(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopCh != nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}

	stopCh := make(chan struct{})
	c.stopCh = stopCh
	c.collectSystemMetrics()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.collectSystemMetrics()
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop stops the periodic system metrics collection
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
}

// collectSystemMetrics gathers runtime metrics
func (c *Collector) collectSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.SystemGoroutines.Set(float64(runtime.NumGoroutine()))
	c.SystemMemAlloc.Set(float64(m.Alloc))
	c.SystemMemSys.Set(float64(m.Sys))
}

// WriteTextfile writes every metric to path in the text exposition format,
// for node_exporter's textfile collector after one-shot runs
func (c *Collector) WriteTextfile(path string) error {
	c.collectSystemMetrics()
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Registry returns the Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
