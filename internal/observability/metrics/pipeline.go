package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for the reduction pipeline.
// It implements Recorder and the tool runner's invocation observer.
type PipelineMetrics struct {
	registry *prometheus.Registry

	operationsTotal     *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	errorsTotal         *prometheus.CounterVec
	toolInvocations     *prometheus.CounterVec
	toolDuration        *prometheus.HistogramVec
	recordsAggregated   prometheus.Counter
	observationsInBatch prometheus.Gauge
	batchesTotal        *prometheus.CounterVec
}

// NewPipelineMetrics creates and registers pipeline metrics on registry
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uvotredux_operations_total",
			Help: "Total number of pipeline operations by outcome",
		},
		[]string{"operation", "status"}, // status: created, skipped, failed, success, error
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uvotredux_operation_duration_seconds",
			Help:    "Time taken by pipeline operations",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~43min
		},
		[]string{"operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uvotredux_errors_total",
			Help: "Total number of pipeline errors by operation and type",
		},
		[]string{"operation", "error_type"},
	)

	m.toolInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uvotredux_tool_invocations_total",
			Help: "Total number of external tool invocations",
		},
		[]string{"tool", "status"},
	)

	m.toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uvotredux_tool_duration_seconds",
			Help:    "Wall time of external tool invocations",
			Buckets: prometheus.ExponentialBuckets(0.1, 3, 10), // 100ms to ~33min
		},
		[]string{"tool"},
	)

	m.recordsAggregated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "uvotredux_photometry_records_total",
			Help: "Total number of photometry records aggregated",
		},
	)

	m.observationsInBatch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "uvotredux_batch_observations",
			Help: "Number of observations in the most recent batch",
		},
	)

	m.batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uvotredux_batches_total",
			Help: "Total number of batch runs by outcome",
		},
		[]string{"status"},
	)
}

// RecordOperation implements Recorder
func (m *PipelineMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder
func (m *PipelineMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder
func (m *PipelineMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordToolInvocation counts a tool run and observes its duration
func (m *PipelineMetrics) RecordToolInvocation(tool, status string, duration time.Duration) {
	m.toolInvocations.WithLabelValues(tool, status).Inc()
	if status != "not_found" {
		m.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
	}
}

// AddRecordsAggregated adds n aggregated photometry records
func (m *PipelineMetrics) AddRecordsAggregated(n int) {
	if n > 0 {
		m.recordsAggregated.Add(float64(n))
	}
}

// SetBatchObservations sets the observation count of the current batch
func (m *PipelineMetrics) SetBatchObservations(n int) {
	m.observationsInBatch.Set(float64(n))
}

// RecordBatch counts a finished batch run
func (m *PipelineMetrics) RecordBatch(status string) {
	m.batchesTotal.WithLabelValues(status).Inc()
}

// Describe implements the Collector interface
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.operationsTotal.Describe(ch)
	m.operationDuration.Describe(ch)
	m.errorsTotal.Describe(ch)
	m.toolInvocations.Describe(ch)
	m.toolDuration.Describe(ch)
	m.recordsAggregated.Describe(ch)
	m.observationsInBatch.Describe(ch)
	m.batchesTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.operationsTotal.Collect(ch)
	m.operationDuration.Collect(ch)
	m.errorsTotal.Collect(ch)
	m.toolInvocations.Collect(ch)
	m.toolDuration.Collect(ch)
	m.recordsAggregated.Collect(ch)
	m.observationsInBatch.Collect(ch)
	m.batchesTotal.Collect(ch)
}
