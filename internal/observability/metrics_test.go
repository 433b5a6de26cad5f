package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/uvotredux/internal/observability/metrics"
)

func TestMetricsHandlerExposesPipelineMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Pipeline.RecordOperation(metrics.OpImageStage, metrics.StatusCreated)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `uvotredux_operations_total{operation="image_stage",status="created"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
