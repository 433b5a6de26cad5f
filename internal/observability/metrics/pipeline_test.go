package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineMetricsRecorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewPipelineMetrics(registry)
	require.NoError(t, err)

	var rec Recorder = m
	rec.RecordOperation(OpImageStage, StatusCreated)
	rec.RecordOperation(OpImageStage, StatusCreated)
	rec.RecordOperation(OpImageStage, StatusSkipped)
	rec.RecordError(OpPhotometryStage, ErrorTypeTimeout)
	rec.RecordDuration(OpAggregate, 0.25)

	assert.InDelta(t, 2, testutil.ToFloat64(m.operationsTotal.WithLabelValues(OpImageStage, StatusCreated)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operationsTotal.WithLabelValues(OpImageStage, StatusSkipped)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.errorsTotal.WithLabelValues(OpPhotometryStage, ErrorTypeTimeout)), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.operationDuration))
}

func TestPipelineMetricsToolInvocations(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewPipelineMetrics(registry)
	require.NoError(t, err)

	m.RecordToolInvocation("uvotimsum", "success", 3*time.Second)
	m.RecordToolInvocation("uvotimsum", "failed", time.Second)
	m.RecordToolInvocation("xrtpipeline", "not_found", 0)

	assert.InDelta(t, 1, testutil.ToFloat64(m.toolInvocations.WithLabelValues("uvotimsum", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.toolInvocations.WithLabelValues("xrtpipeline", "not_found")), 0)

	families, err := registry.Gather()
	require.NoError(t, err)

	var histogram *dto.Histogram
	for _, mf := range families {
		if mf.GetName() != "uvotredux_tool_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "tool" && label.GetValue() == "uvotimsum" {
					histogram = metric.GetHistogram()
				}
			}
		}
	}
	require.NotNil(t, histogram)
	assert.Equal(t, uint64(2), histogram.GetSampleCount())
	assert.InDelta(t, 4.0, histogram.GetSampleSum(), 1e-9)
}

func TestPipelineMetricsBatchGauges(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewPipelineMetrics(registry)
	require.NoError(t, err)

	m.SetBatchObservations(7)
	m.AddRecordsAggregated(12)
	m.AddRecordsAggregated(0)
	m.RecordBatch(StatusSuccess)

	assert.InDelta(t, 7, testutil.ToFloat64(m.observationsInBatch), 0)
	assert.InDelta(t, 12, testutil.ToFloat64(m.recordsAggregated), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.batchesTotal.WithLabelValues(StatusSuccess)), 0)
}

func TestNewPipelineMetricsDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewPipelineMetrics(registry)
	require.NoError(t, err)
	_, err = NewPipelineMetrics(registry)
	assert.Error(t, err)
}

func TestTestRecorder(t *testing.T) {
	t.Parallel()

	r := NewTestRecorder()
	assert.False(t, r.HasRecordedMetrics())

	r.RecordOperation(OpObservation, StatusSuccess)
	r.RecordDuration(OpObservation, 1.5)
	r.RecordError(OpObservation, ErrorTypeIO)

	assert.Equal(t, 1, r.GetOperationCount(OpObservation, StatusSuccess))
	assert.Equal(t, []float64{1.5}, r.GetDurations(OpObservation))
	assert.Equal(t, 1, r.GetErrorCount(OpObservation, ErrorTypeIO))
	assert.Equal(t, 0, r.GetErrorCount("missing", ErrorTypeIO))
	assert.True(t, r.HasRecordedMetrics())
}
