package uvot

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
	"github.com/tphakala/uvotredux/internal/observation"
	"github.com/tphakala/uvotredux/internal/photometry"
	"github.com/tphakala/uvotredux/internal/region"
	"github.com/tphakala/uvotredux/internal/toolrunner"
)

var (
	// ErrNoObservations means the batch directory holds no observation directories
	ErrNoObservations = errors.NewStd("no Swift observations found")
	// ErrRegionNotFound means a source or background region file is missing
	ErrRegionNotFound = region.ErrRegionNotFound
)

// BatchReport summarizes the reduction of a batch directory
type BatchReport struct {
	BatchDir     string
	Observations []*ObservationReport // ascending observation ID, reduced ones only
	Aggregate    *photometry.AggregateResult
	Duration     time.Duration
}

// Records returns the number of aggregated photometry rows
func (b *BatchReport) Records() int {
	if b.Aggregate == nil || b.Aggregate.Dataset == nil {
		return 0
	}
	return len(b.Aggregate.Dataset.Records)
}

// Failed counts failed stage outcomes across all observations
func (b *BatchReport) Failed() int {
	n := 0
	for _, obs := range b.Observations {
		n += len(obs.Failed())
	}
	return n
}

// Iterate reduces every observation of batchDir in ascending order and then
// aggregates their photometry once. Both region files must exist.
func Iterate(ctx context.Context, batchDir string, runner toolrunner.Runner, opts Options) (*BatchReport, error) {
	start := time.Now()
	log := GetLogger().WithContext(ctx).With(logger.String("batch", batchDir))

	ids, err := observation.ScanSorted(batchDir)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errors.New(fmt.Errorf("%w in %s", ErrNoObservations, batchDir)).
			Component("uvot").
			Category(errors.CategoryNotFound).
			FileContext(batchDir).
			Build()
	}

	regions := region.Paths(batchDir, opts.SourceRegion, opts.BackgroundRegion)
	if err := regions.Exists(); err != nil {
		return nil, err
	}

	log.Info("Found Swift observations", logger.Int("count", len(ids)), logger.Int("workers", max(opts.Workers, 1)))

	reducer := NewReducer(runner, opts)
	report := &BatchReport{BatchDir: batchDir, Observations: make([]*ObservationReport, len(ids))}

	if opts.Workers > 1 {
		err = reduceConcurrently(ctx, reducer, batchDir, ids, regions, opts.Workers, report.Observations)
	} else {
		err = reduceSequentially(ctx, reducer, batchDir, ids, regions, report.Observations)
	}
	// Observations never started after a cancellation leave no report
	report.Observations = slices.DeleteFunc(report.Observations, func(o *ObservationReport) bool { return o == nil })
	if err != nil {
		return report, err
	}

	result, err := photometry.Aggregate(batchDir, photometry.AggregateOptions{
		SkyPortal:       opts.SkyPortal,
		SkyPortalWriter: opts.SkyPortalWriter,
		Recorder:        reducer.recorder,
	})
	if err != nil {
		return report, err
	}
	report.Aggregate = result
	report.Duration = time.Since(start)

	log.Info("Finished batch",
		logger.Int("observations", len(ids)),
		logger.Int("records", report.Records()),
		logger.Int("failed_stages", report.Failed()),
		logger.Duration("duration", report.Duration))
	return report, nil
}

func reduceSequentially(ctx context.Context, r *Reducer, batchDir string, ids []string, regions region.Pair, reports []*ObservationReport) error {
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		obs, err := r.ReduceObservation(ctx, filepath.Join(batchDir, id), regions)
		reports[i] = obs
		if err != nil {
			return err
		}
	}
	return nil
}

// reduceConcurrently hands each observation to one goroutine of a bounded
// pool. Reports are stored by index so their order stays ascending.
func reduceConcurrently(ctx context.Context, r *Reducer, batchDir string, ids []string, regions region.Pair, workers int, reports []*ObservationReport) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return cancelled(err)
			}
			obs, err := r.ReduceObservation(gctx, filepath.Join(batchDir, id), regions)
			reports[i] = obs
			return err
		})
	}
	return g.Wait()
}
