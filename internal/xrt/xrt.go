// Package xrt runs xrtpipeline over every observation of a batch
package xrt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
	"github.com/tphakala/uvotredux/internal/observability/metrics"
	"github.com/tphakala/uvotredux/internal/observation"
	"github.com/tphakala/uvotredux/internal/region"
	"github.com/tphakala/uvotredux/internal/skycoord"
	"github.com/tphakala/uvotredux/internal/toolrunner"
)

// DefaultTool is the HEASoft XRT pipeline executable
const DefaultTool = "xrtpipeline"

// Observation layout
const (
	eventSubdir = "xrt/event"
	logName     = "xrtpipeline.log"
	outSuffix   = "_xrt"
)

// ErrNoObservations means the batch directory holds no observation directories
var ErrNoObservations = errors.NewStd("no Swift observations found")

// Options configure Iterate
type Options struct {
	Tool             string
	SourceRegion     string
	BackgroundRegion string
	Recorder         metrics.Recorder
}

// Outcome is the result of xrtpipeline for one observation
type Outcome struct {
	ObsID    string
	OutDir   string
	Skipped  bool
	Duration time.Duration
	Err      error
}

// Report lists the outcomes of Iterate in ascending observation order
type Report struct {
	BatchDir string
	Outcomes []Outcome
}

// Failed counts observations whose pipeline run failed
func (r *Report) Failed() int {
	n := 0
	for i := range r.Outcomes {
		if r.Outcomes[i].Err != nil {
			n++
		}
	}
	return n
}

// Iterate runs xrtpipeline for every observation of batchDir at the source
// region position. Failures are logged per observation and never stop the batch.
func Iterate(ctx context.Context, batchDir string, runner toolrunner.Runner, opts Options) (*Report, error) {
	if opts.Tool == "" {
		opts.Tool = DefaultTool
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NewNoOpRecorder()
	}
	log := GetLogger().WithContext(ctx).With(logger.String("batch", batchDir))

	ids, err := observation.ScanSorted(batchDir)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errors.New(fmt.Errorf("%w in %s", ErrNoObservations, batchDir)).
			Component("xrt").
			Category(errors.CategoryNotFound).
			Build()
	}

	regions := region.Paths(batchDir, opts.SourceRegion, opts.BackgroundRegion)
	if err := regions.Exists(); err != nil {
		return nil, err
	}
	src, err := region.Load(regions.Source)
	if err != nil {
		return nil, err
	}

	log.Info("Running XRT pipeline", logger.Int("observations", len(ids)))

	report := &Report{BatchDir: batchDir}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome := reduceObservation(ctx, runner, opts.Tool, filepath.Join(batchDir, id), src)
		switch {
		case outcome.Skipped:
			recorder.RecordOperation(metrics.OpXRT, metrics.StatusSkipped)
		case outcome.Err != nil:
			recorder.RecordOperation(metrics.OpXRT, metrics.StatusFailed)
			recorder.RecordError(metrics.OpXRT, metrics.ErrorTypeTool)
			log.Error("XRT pipeline failed", logger.String("obs_id", id), logger.Error(outcome.Err))
		default:
			recorder.RecordOperation(metrics.OpXRT, metrics.StatusCreated)
			recorder.RecordDuration(metrics.OpXRT, outcome.Duration.Seconds())
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report, nil
}

func reduceObservation(ctx context.Context, runner toolrunner.Runner, tool, obsDir string, src region.Circle) Outcome {
	id := filepath.Base(obsDir)
	outcome := Outcome{ObsID: id, OutDir: obsDir + outSuffix}
	log := GetLogger().WithContext(ctx).With(logger.String("obs_id", id))

	eventDir := filepath.Join(obsDir, eventSubdir)
	if info, err := os.Stat(eventDir); err != nil || !info.IsDir() {
		log.Warn("XRT event directory not found, skipping observation", logger.String("dir", eventDir))
		outcome.Skipped = true
		return outcome
	}

	if err := os.MkdirAll(outcome.OutDir, 0o755); err != nil {
		outcome.Err = errors.New(err).Component("xrt").Category(errors.CategoryFileIO).FileContext(outcome.OutDir).Build()
		return outcome
	}

	start := time.Now()
	_, outcome.Err = runner.Run(ctx, toolrunner.Invocation{
		Name:    tool,
		Args:    PipelineArgs(obsDir, outcome.OutDir, src),
		LogPath: filepath.Join(eventDir, logName),
	})
	outcome.Duration = time.Since(start)
	if outcome.Err == nil {
		log.Info("XRT pipeline finished", logger.String("outdir", outcome.OutDir), logger.Duration("duration", outcome.Duration))
	}
	return outcome
}

// PipelineArgs returns the xrtpipeline argument list. Coordinates are
// sexagesimal with space separators as the tool expects.
func PipelineArgs(obsDir, outDir string, src region.Circle) []string {
	id := filepath.Base(obsDir)
	return []string{
		"indir=" + obsDir,
		"outdir=" + outDir,
		"steminputs=" + id,
		"stemoutputs=" + id,
		"clobber=yes",
		"srcra=" + skycoord.FormatRA(src.RA, 2, " "),
		"srcdec=" + skycoord.FormatDec(src.Dec, 2, " ", false),
	}
}
