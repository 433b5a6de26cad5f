package uvot

import (
	"context"
	"path/filepath"

	"github.com/tphakala/uvotredux/internal/observability/metrics"
	"github.com/tphakala/uvotredux/internal/region"
	"github.com/tphakala/uvotredux/internal/toolrunner"
)

// PhotometryStage measures the source in <FILTER>.fits with uvotsource,
// writing <FILTER>.out and the tool output to <FILTER>.log. The returned
// error is only set on cancellation or I/O failure.
func (r *Reducer) PhotometryStage(ctx context.Context, imageDir, filter string, regions region.Pair) (FilterOutcome, error) {
	image := filepath.Join(imageDir, filter+".fits")
	output := filepath.Join(imageDir, filter+".out")
	outcome := FilterOutcome{Filter: filter, Stage: StagePhotometry, Output: output, Inputs: []string{image}}

	inv := toolrunner.Invocation{
		Name:    r.opts.Tools.Source,
		Args:    SourceArgs(image, regions, output),
		Dir:     imageDir,
		LogPath: filepath.Join(imageDir, filter+".log"),
	}
	err := r.runStage(ctx, metrics.OpPhotometryStage, &outcome, inv)
	return outcome, err
}

// SourceArgs returns the uvotsource argument list
func SourceArgs(image string, regions region.Pair, output string) []string {
	return []string{
		"image=" + image,
		"srcreg=" + regions.Source,
		"bkgreg=" + regions.Background,
		"sigma=3.0",
		"outfile=" + output,
		"syserr=yes",
		"output=ALL",
		"apercorr=CURVEOFGROWTH",
	}
}
