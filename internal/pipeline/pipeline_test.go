package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/uvotredux/internal/archive"
	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/ledger"
	"github.com/tphakala/uvotredux/internal/notify"
	"github.com/tphakala/uvotredux/internal/observability/metrics"
	"github.com/tphakala/uvotredux/internal/photometry"
	"github.com/tphakala/uvotredux/internal/photometry/photometrytest"
	"github.com/tphakala/uvotredux/internal/tns"
	"github.com/tphakala/uvotredux/internal/toolrunner"
	"github.com/tphakala/uvotredux/internal/uvot"
	"github.com/tphakala/uvotredux/internal/xrt"
)

const (
	testRA  = 250.0767333333
	testDec = 26.9258638889
)

// toolStub writes the outputs uvotimsum and uvotsource would produce
type toolStub struct {
	mu    sync.Mutex
	names []string
}

func (s *toolStub) Run(_ context.Context, inv toolrunner.Invocation) (toolrunner.Result, error) {
	s.mu.Lock()
	s.names = append(s.names, inv.Name)
	s.mu.Unlock()

	switch inv.Name {
	case uvot.DefaultImSumTool:
		return toolrunner.Result{}, os.WriteFile(inv.Args[len(inv.Args)-1], []byte("SIMPLE"), 0o644)
	case uvot.DefaultSourceTool:
		var out string
		for _, a := range inv.Args {
			if v, ok := strings.CutPrefix(a, "outfile="); ok {
				out = v
			}
		}
		obsID := filepath.Base(filepath.Dir(filepath.Dir(filepath.Dir(out))))
		met := 1000.0
		if strings.HasSuffix(obsID, "2") {
			met = 2000.0
		}
		return toolrunner.Result{}, photometrytest.WriteOutFile(out, photometrytest.Row{
			MET: met, RA: testRA, Dec: testDec, Filter: "UW1",
			Exposure: 500, ABMag: 18, ABMagErr: 0.1, ABMagLim: 20.5,
		})
	}
	return toolrunner.Result{}, nil
}

func (s *toolStub) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, got := range s.names {
		if got == name {
			n++
		}
	}
	return n
}

// fakeDownloader lays out one UW1 image per observation
type fakeDownloader struct {
	obsIDs []string
	calls  int
}

func (f *fakeDownloader) Download(_ context.Context, _, _ float64, dir string, _ bool) (*archive.DownloadReport, error) {
	f.calls++
	for _, id := range f.obsIDs {
		imageDir := filepath.Join(dir, id, "uvot", "image")
		if err := os.MkdirAll(imageDir, 0o755); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write([]byte("raw image")); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		name := "sw" + id + "uw1_sk.img.gz"
		if err := os.WriteFile(filepath.Join(imageDir, name), buf.Bytes(), 0o644); err != nil {
			return nil, err
		}
	}
	return &archive.DownloadReport{Found: len(f.obsIDs)}, nil
}

type fakeResolver struct {
	info *tns.Info
	err  error
}

func (f *fakeResolver) GetByName(context.Context, string, string, bool) (*tns.Info, error) {
	return f.info, f.err
}

type captureSink struct {
	mu        sync.Mutex
	summaries []*notify.BatchSummary
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Send(_ context.Context, s *notify.BatchSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summaries = append(c.summaries, s)
	return nil
}

type batchCounter struct {
	records      int
	observations int
	statuses     []string
}

func (b *batchCounter) AddRecordsAggregated(n int) { b.records += n }
func (b *batchCounter) SetBatchObservations(n int) { b.observations = n }
func (b *batchCounter) RecordBatch(status string)  { b.statuses = append(b.statuses, status) }

type fixture struct {
	pipeline   *Pipeline
	runner     *toolStub
	downloader *fakeDownloader
	store      ledger.Store
	sink       *captureSink
	recorder   *metrics.TestRecorder
	batch      *batchCounter
	dataDir    string
}

func newFixture(t *testing.T, opts Options, resolver Resolver) *fixture {
	t.Helper()
	f := &fixture{
		runner:     &toolStub{},
		downloader: &fakeDownloader{obsIDs: []string{"00012345001", "00012345002"}},
		sink:       &captureSink{},
		recorder:   metrics.NewTestRecorder(),
		batch:      &batchCounter{},
		dataDir:    t.TempDir(),
	}
	store, err := ledger.Open(ledger.Config{
		Enabled: true,
		Driver:  "sqlite",
		Path:    filepath.Join(f.dataDir, "uvotredux.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	f.store = store

	opts.DataDir = f.dataDir
	f.pipeline = New(Deps{
		Runner:     f.runner,
		Downloader: f.downloader,
		Resolver:   resolver,
		Ledger:     store,
		Notifier:   notify.New(f.recorder, f.sink),
		Recorder:   f.recorder,
		Batch:      f.batch,
	}, opts)
	return f
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{XRT: true}, nil)

	result, err := f.pipeline.Run(t.Context(), Target{Name: "SN2023ixf", RA: testRA, Dec: testDec})
	require.NoError(t, err)

	assert.Equal(t, ledger.RunCompleted, result.Status)
	assert.Equal(t, filepath.Join(f.dataDir, "SN2023ixf"), result.Dir)
	assert.FileExists(t, result.Regions.Source)
	assert.FileExists(t, result.Regions.Background)
	assert.Equal(t, 1, f.downloader.calls)
	require.NotNil(t, result.Batch)
	assert.Equal(t, 2, result.Batch.Records())
	assert.FileExists(t, filepath.Join(result.Dir, photometry.SummaryFile))
	assert.Equal(t, 2, f.runner.count(uvot.DefaultImSumTool))
	assert.Equal(t, 2, f.runner.count(uvot.DefaultSourceTool))

	// No xrt/event directories, so both observations are skipped
	require.NotNil(t, result.XRT)
	assert.Len(t, result.XRT.Outcomes, 2)
	assert.Zero(t, f.runner.count(xrt.DefaultTool))

	run, err := f.store.GetRun(t.Context(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, ledger.RunCompleted, run.Status)
	assert.Equal(t, 2, run.Observations)
	assert.Equal(t, 2, run.Records)
	assert.Len(t, run.Stages, 6)
	assert.Equal(t, "image", run.Stages[0].Stage)
	assert.Equal(t, "xrt", run.Stages[5].Stage)
	assert.Equal(t, metrics.StatusSkipped, run.Stages[5].Status)

	require.Len(t, f.sink.summaries, 1)
	summary := f.sink.summaries[0]
	assert.Equal(t, "SN2023ixf", summary.Target)
	assert.Equal(t, 2, summary.Records)
	assert.Equal(t, []string{"UW1"}, summary.Filters)
	assert.Zero(t, summary.FailedStages)

	assert.Equal(t, 2, f.batch.records)
	assert.Equal(t, 2, f.batch.observations)
	assert.Equal(t, []string{ledger.RunCompleted}, f.batch.statuses)
	assert.Equal(t, 1, f.recorder.GetOperationCount(metrics.OpNotify, metrics.StatusSuccess))
}

func TestRerunSkipsExistingOutputs(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{}, nil)
	target := Target{Name: "AT2020mni", RA: testRA, Dec: testDec}

	_, err := f.pipeline.Run(t.Context(), target)
	require.NoError(t, err)
	result, err := f.pipeline.Run(t.Context(), target)
	require.NoError(t, err)

	assert.Equal(t, 2, f.runner.count(uvot.DefaultImSumTool))
	assert.Equal(t, 2, f.runner.count(uvot.DefaultSourceTool))
	assert.Equal(t, 2, result.Batch.Records())

	runs, err := f.store.ListRuns(t.Context(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestByName(t *testing.T) {
	t.Parallel()
	resolver := &fakeResolver{info: &tns.Info{RA: testRA, Dec: testDec}}
	f := newFixture(t, Options{}, resolver)

	result, err := f.pipeline.ByName(t.Context(), "SN2023ixf")
	require.NoError(t, err)
	assert.InDelta(t, testRA, result.Target.RA, 1e-9)
	assert.Equal(t, "SN2023ixf", result.Target.Name)
}

func TestByNameUnknownTarget(t *testing.T) {
	t.Parallel()
	lookupErr := errors.Newf("no TNS entry").Category(errors.CategoryNotFound).Build()
	f := newFixture(t, Options{}, &fakeResolver{err: lookupErr})

	_, err := f.pipeline.ByName(t.Context(), "SN1900zz")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Zero(t, f.downloader.calls)

	runs, err := f.store.ListRuns(t.Context(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestByPositionWithoutObservations(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{SkipDownload: true}, nil)

	result, err := f.pipeline.ByPosition(t.Context(), testRA, testDec)
	require.Error(t, err)
	require.ErrorIs(t, err, uvot.ErrNoObservations)

	assert.Equal(t, "J164018.42+265533.11", result.Target.Name)
	assert.Equal(t, ledger.RunFailed, result.Status)
	assert.Zero(t, f.downloader.calls)

	run, err := f.store.GetRun(t.Context(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, ledger.RunFailed, run.Status)
	assert.Contains(t, run.Message, "no Swift observations found")

	require.Len(t, f.sink.summaries, 1)
	assert.Equal(t, ledger.RunFailed, f.sink.summaries[0].Status)
	assert.NotEmpty(t, f.sink.summaries[0].Error)
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{}, nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	result, err := f.pipeline.Run(ctx, Target{Name: "cancelled", RA: testRA, Dec: testDec})
	require.Error(t, err)
	assert.Equal(t, ledger.RunCancelled, result.Status)
	assert.Zero(t, f.runner.count(uvot.DefaultImSumTool))

	run, err := f.store.GetRun(t.Context(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, ledger.RunCancelled, run.Status)
}

func TestReduceExistingBatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{}, nil)

	first, err := f.pipeline.Run(t.Context(), Target{Name: "SN2023ixf", RA: testRA, Dec: testDec})
	require.NoError(t, err)

	result, err := f.pipeline.Reduce(t.Context(), "SN2023ixf", first.Dir)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Batch.Records())
	assert.Equal(t, 1, f.downloader.calls)
}

func TestFetchDoesNotReduce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{SkipDownload: true}, nil)

	result, err := f.pipeline.Fetch(t.Context(), Target{Name: "AT2024abc", RA: testRA, Dec: testDec})
	require.NoError(t, err)
	assert.Equal(t, 1, f.downloader.calls, "fetch downloads even when runs skip downloading")
	assert.FileExists(t, result.Regions.Source)
	assert.Nil(t, result.Batch)
	assert.Zero(t, f.runner.count(uvot.DefaultImSumTool))
	assert.Empty(t, result.RunID)

	runs, err := f.store.ListRuns(t.Context(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestReduceXRTWithoutEventData(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{}, nil)

	fetched, err := f.pipeline.Fetch(t.Context(), Target{Name: "AT2024abc", RA: testRA, Dec: testDec})
	require.NoError(t, err)

	report, err := f.pipeline.ReduceXRT(t.Context(), fetched.Dir)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	for _, outcome := range report.Outcomes {
		assert.True(t, outcome.Skipped, outcome.ObsID)
	}
	assert.Zero(t, report.Failed())
}

func TestWorkers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 3, Workers(3))
	assert.GreaterOrEqual(t, Workers(0), 1)
}

func TestOptionsFromSettings(t *testing.T) {
	t.Parallel()

	settings, err := conf.DefaultSettings()
	require.NoError(t, err)
	settings.Main.DataDir = "/data"
	settings.Reduce.Download = false
	settings.Reduce.Workers = 4

	opts := OptionsFromSettings(settings)
	assert.Equal(t, "/data", opts.DataDir)
	assert.True(t, opts.SkipDownload)
	assert.Equal(t, 4, opts.Reduce.Workers)
	assert.Equal(t, "src.reg", opts.Regions.SourceName)
	assert.InDelta(t, 50.0, opts.Regions.BackgroundOffset, 0)

	runner := NewRunner(settings)
	assert.Equal(t, "uvotimsum", runner.Paths[uvot.DefaultImSumTool])
	assert.Equal(t, settings.Tools.Timeout, runner.Timeout)
}
