package uvot

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/photometry"
	"github.com/tphakala/uvotredux/internal/toolrunner"
)

func readResults(t *testing.T, batch, name string) [][]string {
	t.Helper()
	f, err := os.Open(filepath.Join(batch, name))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestIterateTwoObservations(t *testing.T) {
	t.Parallel()

	batch := t.TempDir()
	makeRegions(t, batch)
	makeObservation(t, batch, "00012345002", "uu", "bb")
	makeObservation(t, batch, "00012345001", "uu", "bb")

	report, err := Iterate(context.Background(), batch, &stubRunner{}, Options{})
	require.NoError(t, err)
	require.Len(t, report.Observations, 2)
	assert.Equal(t, "00012345001", report.Observations[0].ObsID)
	assert.Equal(t, "00012345002", report.Observations[1].ObsID)
	assert.Equal(t, 4, report.Records())
	assert.Zero(t, report.Failed())

	summary := readResults(t, batch, photometry.SummaryFile)
	require.Len(t, summary, 5)
	var got [][2]string
	for _, row := range summary[1:] {
		got = append(got, [2]string{row[9], row[4]})
	}
	assert.Equal(t, [][2]string{
		{"00012345001", "B"},
		{"00012345001", "U"},
		{"00012345002", "B"},
		{"00012345002", "U"},
	}, got)
}

func TestIterateIsolatesFilterFailure(t *testing.T) {
	t.Parallel()

	batch := t.TempDir()
	makeRegions(t, batch)
	makeObservation(t, batch, "00012345001", "uu", "bb")
	failing := makeObservation(t, batch, "00012345002", "uu", "bb")

	runner := &stubRunner{
		fail: func(inv toolrunner.Invocation) error {
			if inv.Name == DefaultImSumTool && inv.Args[len(inv.Args)-1] == filepath.Join(failing, "U.fits") {
				return errors.Newf("%w: uvotimsum exited with status 1", toolrunner.ErrToolFailed).Build()
			}
			return nil
		},
	}

	report, err := Iterate(context.Background(), batch, runner, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Records())
	assert.Equal(t, 1, report.Failed())
	assert.NoFileExists(t, filepath.Join(failing, "U.out"))
	assert.FileExists(t, filepath.Join(failing, "B.out"))
	assert.Len(t, readResults(t, batch, photometry.ResultsFile), 4)
}

func TestIterateNoObservationsBeforeRegions(t *testing.T) {
	t.Parallel()

	batch := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(batch, "not-an-obs"), 0o755))

	runner := &stubRunner{}
	_, err := Iterate(context.Background(), batch, runner, Options{})
	require.ErrorIs(t, err, ErrNoObservations)
	assert.NotErrorIs(t, err, ErrRegionNotFound)
	assert.True(t, errors.IsNotFound(err))
	assert.Empty(t, runner.calls)
}

func TestIterateMissingRegion(t *testing.T) {
	t.Parallel()

	batch := t.TempDir()
	makeObservation(t, batch, "00012345001", "bb")

	runner := &stubRunner{}
	_, err := Iterate(context.Background(), batch, runner, Options{})
	require.ErrorIs(t, err, ErrRegionNotFound)
	assert.Empty(t, runner.calls)

	// Only the background missing
	pair := makeRegions(t, batch)
	require.NoError(t, os.Remove(pair.Background))
	_, err = Iterate(context.Background(), batch, runner, Options{})
	require.ErrorIs(t, err, ErrRegionNotFound)
	assert.Contains(t, err.Error(), "bkg.reg")
}

func TestIterateNoPhotometryOutputs(t *testing.T) {
	t.Parallel()

	batch := t.TempDir()
	makeRegions(t, batch)
	makeObservation(t, batch, "00012345001", "bb")

	runner := &stubRunner{
		fail: func(toolrunner.Invocation) error {
			return errors.Newf("%w: exit 1", toolrunner.ErrToolFailed).Build()
		},
	}
	report, err := Iterate(context.Background(), batch, runner, Options{})
	require.ErrorIs(t, err, photometry.ErrNoPhotometryOutputs)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Failed())
}

func TestIterateSkyPortalExport(t *testing.T) {
	t.Parallel()

	batch := t.TempDir()
	makeRegions(t, batch)
	makeObservation(t, batch, "00012345001", "w1", "m2")

	var out bytes.Buffer
	report, err := Iterate(context.Background(), batch, &stubRunner{}, Options{SkyPortal: true, SkyPortalWriter: &out})
	require.NoError(t, err)
	assert.FileExists(t, report.Aggregate.SkyPortalPath)
	assert.Contains(t, out.String(), "uvot::uw1")
	assert.Contains(t, out.String(), "uvot::um2")
}

func TestIterateCancelled(t *testing.T) {
	t.Parallel()

	batch := t.TempDir()
	makeRegions(t, batch)
	makeObservation(t, batch, "00012345001", "bb")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &stubRunner{}
	report, err := Iterate(ctx, batch, runner, Options{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, runner.calls)
	require.NotNil(t, report)
	assert.Empty(t, report.Observations)
	assert.Zero(t, report.Failed())
}

// Not parallel: goleak inspects every goroutine of the process
func TestIterateWorkerPool(t *testing.T) {
	defer goleak.VerifyNone(t)

	batch := t.TempDir()
	makeRegions(t, batch)
	ids := []string{"00012345005", "00012345003", "00012345001", "00012345004", "00012345002"}
	for _, id := range ids {
		makeObservation(t, batch, id, "uu", "bb", "w2")
	}

	runner := &stubRunner{}
	report, err := Iterate(context.Background(), batch, runner, Options{Workers: 3})
	require.NoError(t, err)
	require.Len(t, report.Observations, len(ids))
	for i, obs := range report.Observations {
		assert.Equal(t, "0001234500"+string(rune('1'+i)), obs.ObsID)
		assert.Len(t, obs.Outcomes, 6)
	}
	assert.Equal(t, 15, report.Records())
	assert.Len(t, runner.invocations(DefaultImSumTool), 15)

	// The aggregated order is by time, not by completion order
	summary := readResults(t, batch, photometry.SummaryFile)
	require.Len(t, summary, 16)
	assert.Equal(t, "00012345001", summary[1][9])
	assert.Equal(t, "00012345005", summary[15][9])
}

func TestIterateWorkerPoolStopsOnFatalError(t *testing.T) {
	defer goleak.VerifyNone(t)

	batch := t.TempDir()
	makeRegions(t, batch)
	makeObservation(t, batch, "00012345001", "bb")
	makeObservation(t, batch, "00012345002", "zz")
	makeObservation(t, batch, "00012345003", "bb")

	_, err := Iterate(context.Background(), batch, &stubRunner{}, Options{Workers: 2})
	require.ErrorIs(t, err, ErrUnknownFilter)
	assert.NoFileExists(t, filepath.Join(batch, photometry.ResultsFile))
}
