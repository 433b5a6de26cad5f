// Package pipeline runs the full reduction for one target: output directory,
// regions, archive download, UVOT reduction and aggregation, optional XRT,
// then ledger bookkeeping and notifications.
package pipeline

import (
	"context"
	"slices"
	"time"

	"github.com/tphakala/uvotredux/internal/archive"
	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/ledger"
	"github.com/tphakala/uvotredux/internal/logger"
	"github.com/tphakala/uvotredux/internal/notify"
	"github.com/tphakala/uvotredux/internal/observability/metrics"
	"github.com/tphakala/uvotredux/internal/region"
	"github.com/tphakala/uvotredux/internal/skycoord"
	"github.com/tphakala/uvotredux/internal/tns"
	"github.com/tphakala/uvotredux/internal/toolrunner"
	"github.com/tphakala/uvotredux/internal/uvot"
	"github.com/tphakala/uvotredux/internal/xrt"
)

// Target is a named sky position in degrees
type Target struct {
	Name string
	RA   float64
	Dec  float64
}

// Downloader fetches the archive observations around a position
type Downloader interface {
	Download(ctx context.Context, ra, dec float64, dir string, overwrite bool) (*archive.DownloadReport, error)
}

// Resolver looks up a transient by name
type Resolver interface {
	GetByName(ctx context.Context, name, dir string, useCache bool) (*tns.Info, error)
}

// BatchMetrics receives batch level gauges and counters
type BatchMetrics interface {
	AddRecordsAggregated(n int)
	SetBatchObservations(n int)
	RecordBatch(status string)
}

// Deps are the collaborators of a Pipeline. Runner is required; nil
// Downloader or Resolver disable download and name lookup.
type Deps struct {
	Runner     toolrunner.Runner
	Downloader Downloader
	Resolver   Resolver
	Ledger     ledger.Store
	Notifier   *notify.Notifier
	Recorder   metrics.Recorder
	Batch      BatchMetrics
}

// Options control one run
type Options struct {
	DataDir      string // root for per-target directories
	SkipDownload bool
	Overwrite    bool // regions, downloads and stage outputs
	UseTNSCache  bool
	XRT          bool
	XRTTool      string
	Regions      region.Options
	Reduce       uvot.Options
}

// Result describes a finished run
type Result struct {
	RunID    string
	Target   Target
	Dir      string
	Regions  region.Pair
	Download *archive.DownloadReport // nil when skipped
	Batch    *uvot.BatchReport
	XRT      *xrt.Report
	Status   string
	Duration time.Duration
}

// Pipeline runs targets end to end
type Pipeline struct {
	deps Deps
	opts Options
}

// New creates a Pipeline
func New(deps Deps, opts Options) *Pipeline {
	if deps.Ledger == nil {
		deps.Ledger = ledger.NoopStore{}
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.NewNoOpRecorder()
	}
	opts.Reduce.Overwrite = opts.Overwrite
	opts.Reduce.Recorder = deps.Recorder
	opts.Regions.Overwrite = opts.Overwrite
	if opts.Regions.SourceName == "" {
		opts.Regions.SourceName = region.DefaultSourceName
	}
	if opts.Regions.BackgroundName == "" {
		opts.Regions.BackgroundName = region.DefaultBackgroundName
	}
	opts.Reduce.SourceRegion = opts.Regions.SourceName
	opts.Reduce.BackgroundRegion = opts.Regions.BackgroundName
	return &Pipeline{deps: deps, opts: opts}
}

// ByName resolves name through TNS and runs the pipeline at its position.
// A name TNS does not know is returned as an error.
func (p *Pipeline) ByName(ctx context.Context, name string) (*Result, error) {
	GetLogger().WithContext(ctx).Info("Running pipeline for source name", logger.String("name", name))
	target, err := p.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, target)
}

// Resolve looks up the position of a named transient. The TNS cache file
// is kept in the target's output directory.
func (p *Pipeline) Resolve(ctx context.Context, name string) (Target, error) {
	if p.deps.Resolver == nil {
		return Target{}, errors.Newf("no name resolver configured").
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Build()
	}

	dir, err := conf.OutputDir(p.opts.DataDir, name)
	if err != nil {
		return Target{}, err
	}
	info, err := p.deps.Resolver.GetByName(ctx, name, dir, p.opts.UseTNSCache)
	if err != nil {
		GetLogger().WithContext(ctx).Error("Could not find TNS data, check the name and try again",
			logger.String("name", name), logger.Error(err))
		return Target{}, err
	}
	return Target{Name: name, RA: info.RA, Dec: info.Dec}, nil
}

// ByPosition names the target after its J2000 designation and runs the pipeline
func (p *Pipeline) ByPosition(ctx context.Context, ra, dec float64) (*Result, error) {
	GetLogger().WithContext(ctx).Info("Running pipeline for position",
		logger.Float64("ra", ra), logger.Float64("dec", dec))
	return p.Run(ctx, Target{Name: skycoord.JName(ra, dec), RA: ra, Dec: dec})
}

// Run processes target in its output directory
func (p *Pipeline) Run(ctx context.Context, target Target) (*Result, error) {
	start := time.Now()
	dir, err := conf.OutputDir(p.opts.DataDir, target.Name)
	if err != nil {
		return nil, err
	}

	run := p.startRun(ctx, target.Name, dir)
	ctx = logger.WithTraceID(ctx, run.ID)
	log := GetLogger().WithContext(ctx).With(logger.String("target", target.Name))
	log.Info("Starting run", logger.String("dir", dir),
		logger.Float64("ra", target.RA), logger.Float64("dec", target.Dec))

	result := &Result{RunID: run.ID, Target: target, Dir: dir}
	runErr := p.execute(ctx, result)

	result.Duration = time.Since(start)
	result.Status = runStatus(runErr)
	p.finish(ctx, result, runErr)

	if runErr != nil {
		return result, runErr
	}
	log.Info("Run finished",
		logger.Int("records", result.records()),
		logger.Duration("duration", result.Duration))
	return result, nil
}

// Reduce iterates an existing batch directory without regions or download
func (p *Pipeline) Reduce(ctx context.Context, name, dir string) (*Result, error) {
	start := time.Now()
	run := p.startRun(ctx, name, dir)
	ctx = logger.WithTraceID(ctx, run.ID)

	result := &Result{RunID: run.ID, Target: Target{Name: name}, Dir: dir}
	result.Regions = region.Paths(dir, p.opts.Regions.SourceName, p.opts.Regions.BackgroundName)
	runErr := p.reduce(ctx, result)

	result.Duration = time.Since(start)
	result.Status = runStatus(runErr)
	p.finish(ctx, result, runErr)
	return result, runErr
}

// startRun opens a ledger run. The ledger is a report, so a failure falls
// back to an unrecorded run ID instead of stopping the reduction.
func (p *Pipeline) startRun(ctx context.Context, name, dir string) *ledger.Run {
	run, err := p.deps.Ledger.StartRun(context.WithoutCancel(ctx), name, dir)
	if err != nil {
		GetLogger().Warn("Run ledger unavailable", logger.Error(err))
		run, _ = ledger.NoopStore{}.StartRun(ctx, name, dir)
	}
	return run
}

// Fetch creates the regions and downloads the archive data of target
// without reducing it or recording a run
func (p *Pipeline) Fetch(ctx context.Context, target Target) (*Result, error) {
	start := time.Now()
	dir, err := conf.OutputDir(p.opts.DataDir, target.Name)
	if err != nil {
		return nil, err
	}
	result := &Result{Target: target, Dir: dir}
	err = p.fetch(ctx, result, false)
	result.Duration = time.Since(start)
	result.Status = runStatus(err)
	return result, err
}

// ReduceXRT runs xrtpipeline over every observation of dir
func (p *Pipeline) ReduceXRT(ctx context.Context, dir string) (*xrt.Report, error) {
	return xrt.Iterate(ctx, dir, p.deps.Runner, xrt.Options{
		Tool:             p.opts.XRTTool,
		SourceRegion:     p.opts.Regions.SourceName,
		BackgroundRegion: p.opts.Regions.BackgroundName,
		Recorder:         p.deps.Recorder,
	})
}

func (p *Pipeline) execute(ctx context.Context, result *Result) error {
	if err := p.fetch(ctx, result, p.opts.SkipDownload); err != nil {
		return err
	}
	return p.reduce(ctx, result)
}

func (p *Pipeline) fetch(ctx context.Context, result *Result, skipDownload bool) error {
	regions, err := region.Create(result.Dir, result.Target.RA, result.Target.Dec, p.opts.Regions)
	if err != nil {
		return err
	}
	result.Regions = regions

	if skipDownload || p.deps.Downloader == nil {
		GetLogger().WithContext(ctx).Info("Skipping download")
		return nil
	}
	report, err := p.deps.Downloader.Download(ctx, result.Target.RA, result.Target.Dec, result.Dir, p.opts.Overwrite)
	result.Download = report
	return err
}

func (p *Pipeline) reduce(ctx context.Context, result *Result) error {
	batch, err := uvot.Iterate(ctx, result.Dir, p.deps.Runner, p.opts.Reduce)
	result.Batch = batch
	if err != nil {
		return err
	}

	if p.opts.XRT {
		report, err := p.ReduceXRT(ctx, result.Dir)
		result.XRT = report
		if err != nil {
			return err
		}
	}
	return nil
}

// finish records stage outcomes, closes the ledger run, updates batch
// metrics and sends notifications. Failures here are logged only.
func (p *Pipeline) finish(ctx context.Context, result *Result, runErr error) {
	log := GetLogger().WithContext(ctx)
	// A cancelled run still gets its bookkeeping
	ctx = context.WithoutCancel(ctx)

	for _, outcome := range stageOutcomes(result) {
		if err := p.deps.Ledger.RecordStage(ctx, result.RunID, &outcome); err != nil {
			log.Warn("Failed to record stage outcome", logger.Error(err))
			break
		}
	}

	message := ""
	if runErr != nil {
		message = runErr.Error()
	}
	if err := p.deps.Ledger.FinishRun(ctx, result.RunID, result.Status, result.observations(), result.records(), message); err != nil {
		log.Warn("Failed to finish ledger run", logger.Error(err))
	}

	if p.deps.Batch != nil {
		p.deps.Batch.SetBatchObservations(result.observations())
		p.deps.Batch.AddRecordsAggregated(result.records())
		p.deps.Batch.RecordBatch(result.Status)
	}

	p.deps.Notifier.Notify(ctx, result.Summary(message))
}

// Summary converts the result into a notification payload
func (r *Result) Summary(errText string) *notify.BatchSummary {
	s := &notify.BatchSummary{
		RunID:        r.RunID,
		Target:       r.Target.Name,
		BatchDir:     r.Dir,
		Status:       r.Status,
		Observations: r.observations(),
		Records:      r.records(),
		Duration:     r.Duration,
		StartedAt:    time.Now().Add(-r.Duration).UTC(),
		Error:        errText,
	}
	if r.Batch != nil {
		s.FailedStages = r.Batch.Failed()
		if r.Batch.Aggregate != nil {
			s.SkyPortal = r.Batch.Aggregate.SkyPortalPath
		}
	}
	if r.XRT != nil {
		s.FailedStages += r.XRT.Failed()
	}
	s.Filters = r.filters()
	return s
}

func (r *Result) observations() int {
	if r.Batch == nil {
		return 0
	}
	return len(r.Batch.Observations)
}

func (r *Result) records() int {
	if r.Batch == nil {
		return 0
	}
	return r.Batch.Records()
}

// filters lists the filters with photometry created or reused in this run
func (r *Result) filters() []string {
	if r.Batch == nil {
		return nil
	}
	var filters []string
	for _, obs := range r.Batch.Observations {
		for _, o := range obs.Outcomes {
			if o.Stage == uvot.StagePhotometry && o.Status != uvot.StatusFailed && !slices.Contains(filters, o.Filter) {
				filters = append(filters, o.Filter)
			}
		}
	}
	slices.Sort(filters)
	return filters
}

// stageOutcomes flattens UVOT and XRT outcomes into ledger rows
func stageOutcomes(r *Result) []ledger.StageOutcome {
	var rows []ledger.StageOutcome
	if r.Batch != nil {
		for _, obs := range r.Batch.Observations {
			for _, o := range obs.Outcomes {
				row := ledger.StageOutcome{
					ObsID:    obs.ObsID,
					Filter:   o.Filter,
					Stage:    string(o.Stage),
					Status:   string(o.Status),
					Duration: o.Duration,
				}
				if o.Err != nil {
					row.Message = o.Err.Error()
				}
				rows = append(rows, row)
			}
		}
	}
	if r.XRT != nil {
		for _, o := range r.XRT.Outcomes {
			row := ledger.StageOutcome{ObsID: o.ObsID, Stage: "xrt", Duration: o.Duration}
			switch {
			case o.Err != nil:
				row.Status = metrics.StatusFailed
				row.Message = o.Err.Error()
			case o.Skipped:
				row.Status = metrics.StatusSkipped
			default:
				row.Status = metrics.StatusCreated
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return ledger.RunCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.IsCategory(err, errors.CategoryCancellation):
		return ledger.RunCancelled
	default:
		return ledger.RunFailed
	}
}
