package uvot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
	"github.com/tphakala/uvotredux/internal/observability/metrics"
	"github.com/tphakala/uvotredux/internal/region"
	"github.com/tphakala/uvotredux/internal/toolrunner"
)

// ErrPostcondition means a tool exited cleanly without producing its output file
var ErrPostcondition = errors.NewStd("tool output missing after successful run")

// Default HEASoft tool names
const (
	DefaultImSumTool  = "uvotimsum"
	DefaultSourceTool = "uvotsource"
)

// imageSubdir holds the raw and summed images of an observation
const imageSubdir = "uvot/image"

// Stage identifies a reduction step
type Stage string

const (
	StageImage      Stage = "image"
	StagePhotometry Stage = "photometry"
)

// Status is the outcome of one stage for one filter
type Status string

const (
	StatusCreated Status = metrics.StatusCreated
	StatusSkipped Status = metrics.StatusSkipped
	StatusFailed  Status = metrics.StatusFailed
)

// FilterOutcome records what a stage did for one filter
type FilterOutcome struct {
	Filter   string
	Stage    Stage
	Status   Status
	Output   string
	Inputs   []string
	Duration time.Duration
	Err      error // set when Status is StatusFailed
}

// Tools names the executables used by the stages
type Tools struct {
	ImSum  string
	Source string
}

// Options configure a Reducer and the batch iteration
type Options struct {
	Overwrite bool
	Tools     Tools
	Recorder  metrics.Recorder

	// Workers reduces that many observations concurrently. Values below 2
	// keep the sequential ascending order.
	Workers int

	// Region file names inside the batch directory
	SourceRegion     string
	BackgroundRegion string

	// SkyPortal writes uvot_skyportal.csv after aggregation and copies it to
	// SkyPortalWriter when set
	SkyPortal       bool
	SkyPortalWriter io.Writer
}

// Reducer runs the image and photometry stages of single observations
type Reducer struct {
	runner   toolrunner.Runner
	opts     Options
	recorder metrics.Recorder
}

// NewReducer returns a Reducer invoking tools through runner
func NewReducer(runner toolrunner.Runner, opts Options) *Reducer {
	if opts.Tools.ImSum == "" {
		opts.Tools.ImSum = DefaultImSumTool
	}
	if opts.Tools.Source == "" {
		opts.Tools.Source = DefaultSourceTool
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NewNoOpRecorder()
	}
	return &Reducer{runner: runner, opts: opts, recorder: recorder}
}

// ObservationReport collects the stage outcomes of one observation
type ObservationReport struct {
	ObsID    string
	Dir      string
	Images   int // raw images found after decompression
	Outcomes []FilterOutcome
	Duration time.Duration
}

// Failed returns the outcomes with StatusFailed
func (r *ObservationReport) Failed() []FilterOutcome {
	var failed []FilterOutcome
	for i := range r.Outcomes {
		if r.Outcomes[i].Status == StatusFailed {
			failed = append(failed, r.Outcomes[i])
		}
	}
	return failed
}

// ReduceObservation runs the image stage of obsDir and then the photometry
// stage for every filter whose summed image exists. Tool and postcondition
// failures are recorded per filter. Only unknown filter codes, cancellation
// and I/O errors on the observation directory are returned.
func (r *Reducer) ReduceObservation(ctx context.Context, obsDir string, regions region.Pair) (*ObservationReport, error) {
	start := time.Now()
	report := &ObservationReport{ObsID: filepath.Base(obsDir), Dir: obsDir}
	log := GetLogger().WithContext(ctx).With(logger.String("obs_id", report.ObsID))

	imageDir := filepath.Join(obsDir, imageSubdir)
	info, err := os.Stat(imageDir)
	switch {
	case os.IsNotExist(err):
		log.Warn("UVOT image directory not found, skipping observation", logger.String("dir", imageDir))
		return report, nil
	case err != nil:
		return report, imageDirError(imageDir, err)
	case !info.IsDir():
		return report, imageDirError(imageDir, fmt.Errorf("%s is not a directory", imageDir))
	}

	log.Info("Reducing Swift observation", logger.String("dir", obsDir))

	images, err := r.ImageStage(ctx, imageDir)
	report.Outcomes = append(report.Outcomes, images.Outcomes...)
	report.Images = images.Images
	if err != nil {
		return report, err
	}

	for i := range images.Outcomes {
		img := &images.Outcomes[i]
		// A failed uvotimsum may leave a partial image behind
		if img.Status == StatusFailed {
			continue
		}
		if _, err := os.Stat(img.Output); err != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, cancelled(err)
		}
		outcome, err := r.PhotometryStage(ctx, imageDir, img.Filter, regions)
		report.Outcomes = append(report.Outcomes, outcome)
		if err != nil {
			return report, err
		}
	}

	report.Duration = time.Since(start)
	status := metrics.StatusSuccess
	if len(report.Failed()) > 0 {
		status = metrics.StatusFailed
	}
	r.recorder.RecordOperation(metrics.OpObservation, status)
	r.recorder.RecordDuration(metrics.OpObservation, report.Duration.Seconds())

	log.Info("Finished observation",
		logger.Int("outcomes", len(report.Outcomes)),
		logger.Int("failed", len(report.Failed())),
		logger.Duration("duration", report.Duration))
	return report, nil
}

// runStage applies the skip and overwrite policy for output, runs inv and
// checks that output exists afterwards. A non-nil error is batch-fatal.
func (r *Reducer) runStage(ctx context.Context, op string, outcome *FilterOutcome, inv toolrunner.Invocation) error {
	log := GetLogger().WithContext(ctx).With(
		logger.String("stage", string(outcome.Stage)),
		logger.String("filter", outcome.Filter))
	start := time.Now()
	defer func() {
		outcome.Duration = time.Since(start)
		r.recorder.RecordOperation(op, string(outcome.Status))
		if outcome.Status != StatusSkipped {
			r.recorder.RecordDuration(op, outcome.Duration.Seconds())
		}
	}()

	exists, err := fileExists(outcome.Output)
	if err != nil {
		return imageDirError(outcome.Output, err)
	}
	if exists && r.opts.Overwrite {
		log.Info("Removing existing UVOT file", logger.String("path", outcome.Output))
		if err := os.Remove(outcome.Output); err != nil {
			return imageDirError(outcome.Output, err)
		}
		exists = false
	}
	if exists {
		log.Info("UVOT file already exists", logger.String("path", outcome.Output))
		outcome.Status = StatusSkipped
		return nil
	}

	_, runErr := r.runner.Run(ctx, inv)
	if ctx.Err() != nil {
		outcome.Status = StatusFailed
		outcome.Err = runErr
		return cancelled(ctx.Err())
	}
	if runErr != nil {
		outcome.Status = StatusFailed
		outcome.Err = runErr
		r.recorder.RecordError(op, toolErrorType(runErr))
		log.Error("UVOT tool failed", logger.String("command", inv.String()), logger.Error(runErr))
		return nil
	}

	exists, err = fileExists(outcome.Output)
	if err != nil {
		return imageDirError(outcome.Output, err)
	}
	if !exists {
		outcome.Status = StatusFailed
		outcome.Err = errors.New(fmt.Errorf("%w: %s", ErrPostcondition, outcome.Output)).
			Component("uvot").
			Category(errors.CategoryPostcondition).
			Context("tool", inv.Name).
			Context("filter", outcome.Filter).
			FileContext(outcome.Output).
			Build()
		r.recorder.RecordError(op, metrics.ErrorTypePostcondition)
		log.Error("UVOT file not created",
			logger.String("path", outcome.Output),
			logger.String("command", inv.String()))
		return nil
	}

	outcome.Status = StatusCreated
	log.Info("UVOT file created", logger.String("path", outcome.Output))
	return nil
}

func toolErrorType(err error) string {
	switch {
	case errors.Is(err, toolrunner.ErrToolTimeout):
		return metrics.ErrorTypeTimeout
	case errors.Is(err, toolrunner.ErrToolNotFound):
		return metrics.ErrorTypeNotFound
	default:
		return metrics.ErrorTypeTool
	}
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

func cancelled(err error) error {
	return errors.New(err).
		Component("uvot").
		Category(errors.CategoryCancellation).
		Build()
}
