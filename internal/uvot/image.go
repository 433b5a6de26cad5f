package uvot

import (
	"context"
	"path/filepath"
	"slices"

	"github.com/tphakala/uvotredux/internal/logger"
	"github.com/tphakala/uvotredux/internal/observability/metrics"
	"github.com/tphakala/uvotredux/internal/toolrunner"
)

// ImageStageResult is the output of ImageStage
type ImageStageResult struct {
	Images   int
	Outcomes []FilterOutcome // one per filter, sorted by filter name
}

// ImageStage decompresses the raw images of imageDir, groups them by filter
// and sums each group into <FILTER>.fits with uvotimsum.
func (r *Reducer) ImageStage(ctx context.Context, imageDir string) (*ImageStageResult, error) {
	log := GetLogger().WithContext(ctx)
	result := &ImageStageResult{}

	unpacked, err := Unpack(imageDir)
	if err != nil {
		return result, err
	}
	for range unpacked.Decompressed {
		r.recorder.RecordOperation(metrics.OpDecompress, metrics.StatusSuccess)
	}
	for range unpacked.Corrupt {
		r.recorder.RecordError(metrics.OpDecompress, metrics.ErrorTypeParse)
	}
	result.Images = len(unpacked.Images)
	log.Info("Found images", logger.String("dir", imageDir), logger.Int("count", result.Images))

	groups, err := groupByFilter(unpacked.Images)
	if err != nil {
		return result, err
	}

	filters := make([]string, 0, len(groups))
	for filter := range groups {
		filters = append(filters, filter)
	}
	slices.Sort(filters)

	for _, filter := range filters {
		if err := ctx.Err(); err != nil {
			return result, cancelled(err)
		}
		inputs := groups[filter]
		output := filepath.Join(imageDir, filter+".fits")
		outcome := FilterOutcome{Filter: filter, Stage: StageImage, Output: output, Inputs: inputs}

		inv := toolrunner.Invocation{
			Name: r.opts.Tools.ImSum,
			Args: append(slices.Clone(inputs), output),
			Dir:  imageDir,
		}
		err := r.runStage(ctx, metrics.OpImageStage, &outcome, inv)
		result.Outcomes = append(result.Outcomes, outcome)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// groupByFilter maps filter names to their images in input order
func groupByFilter(images []string) (map[string][]string, error) {
	groups := make(map[string][]string)
	for _, image := range images {
		filter, err := ParseFilterCode(image)
		if err != nil {
			return nil, err
		}
		groups[filter] = append(groups[filter], image)
	}
	return groups, nil
}
