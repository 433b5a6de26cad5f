package errors

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) { r.reported = append(r.reported, ee) }
func (r *recordingReporter) IsEnabled() bool               { return true }

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuilderContext(t *testing.T) {
	ee := Newf("uvotsource exited with %d", 2).
		Component("uvot").
		Category(CategoryCommandExecution).
		ToolContext("uvotsource", 2).
		FileContext("/data/00012345001/uvot/image/U.fits").
		Priority("bogus").
		Build()

	ctx := ee.GetContext()
	assert.Equal(t, "uvot", ee.GetComponent())
	assert.Equal(t, "uvotsource", ctx["tool"])
	assert.Equal(t, 2, ctx["exit_code"])
	assert.Equal(t, "U.fits", ctx["file_name"])
	assert.Equal(t, "fits", ctx["file_extension"])
	assert.Equal(t, PriorityMedium, ee.Priority)
	assert.True(t, IsCategory(ee, CategoryCommandExecution))
}

func TestSentinelMatchingThroughEnhancedError(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("no observations found")
	ee := New(fmt.Errorf("scan /tmp: %w", sentinel)).Category(CategoryPrecondition).Build()
	wrapped := fmt.Errorf("iterate: %w", ee)

	assert.ErrorIs(t, wrapped, sentinel)
	assert.True(t, IsCategory(wrapped, CategoryPrecondition))
	assert.False(t, IsNotFound(wrapped))
}

func TestDetectCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"missing file", os.ErrNotExist, CategoryNotFound},
		{"deadline", fmt.Errorf("context deadline exceeded"), CategoryTimeout},
		{"canceled", fmt.Errorf("context canceled"), CategoryCancellation},
		{"dial", fmt.Errorf("dial tcp: refused"), CategoryNetwork},
		{"invalid", fmt.Errorf("invalid declination"), CategoryValidation},
		{"other", fmt.Errorf("boom"), CategoryGeneric},
		{"nested", New(fmt.Errorf("x")).Category(CategoryArchive).Build(), CategoryArchive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, detectCategory(tt.err))
		})
	}
}

func TestReporterReceivesErrors(t *testing.T) {
	rec := &recordingReporter{}
	SetTelemetryReporter(rec)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(fmt.Errorf("query failed")).Category(CategoryArchive).Build()

	require.Len(t, rec.reported, 1)
	assert.Same(t, ee, rec.reported[0])
}

func TestScrubMessageForPrivacy(t *testing.T) {
	t.Parallel()

	msg := "GET https://www.wis-tns.org/search?name=2020mni failed for /home/alice/data token=abc123"
	scrubbed := scrubMessageForPrivacy(msg)

	assert.Contains(t, scrubbed, "https://www.wis-tns.org/search?[REDACTED]")
	assert.Contains(t, scrubbed, "/home/[USER]/data")
	assert.NotContains(t, scrubbed, "abc123")
	assert.NotContains(t, scrubbed, "alice")
}

func TestGenerateErrorTitle(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("x")).
		Component("uvot").
		Category(CategoryPostcondition).
		Context("operation", "image_sum").
		Build()

	assert.Equal(t, "Uvot Missing Output Error Image Sum", generateErrorTitle(ee))
}
