package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
	"github.com/tphakala/uvotredux/internal/observability/metrics"
)

const bytesPerGB = 1 << 30

// DownloadReport summarizes Download
type DownloadReport struct {
	Found      int
	Skipped    []string // observation IDs already present
	Downloaded []*FetchResult
	Duration   time.Duration
}

// Download queries the observations around (ra, dec) and fetches each one
// into dir. Existing observation directories are kept unless overwrite is
// set. Finding no observations is logged, not returned as an error.
func (c *Client) Download(ctx context.Context, ra, dec float64, dir string, overwrite bool) (*DownloadReport, error) {
	log := GetLogger().WithContext(ctx).With(logger.String("dir", dir))
	start := time.Now()
	report := &DownloadReport{}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return report, fileError(dir, err)
	}
	if err := c.checkFreeSpace(dir); err != nil {
		return report, err
	}

	observations, err := c.Query(ctx, ra, dec, 0)
	if err != nil {
		return report, err
	}
	report.Found = len(observations)
	if len(observations) == 0 {
		log.Error("No Swift observations found", logger.Float64("ra", ra), logger.Float64("dec", dec))
		return report, nil
	}

	for _, obs := range observations {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outDir := filepath.Join(dir, obs.ObsID)
		if info, err := os.Stat(outDir); err == nil && info.IsDir() && !overwrite {
			log.Info("Skipping existing directory", logger.String("obs_id", obs.ObsID))
			report.Skipped = append(report.Skipped, obs.ObsID)
			c.recorder.RecordOperation(metrics.OpArchiveDownload, metrics.StatusSkipped)
			continue
		}

		fetchStart := time.Now()
		result, err := c.Fetch(ctx, obs, dir)
		if err != nil {
			c.recorder.RecordError(metrics.OpArchiveDownload, metrics.ErrorTypeNetwork)
			return report, err
		}
		c.recorder.RecordOperation(metrics.OpArchiveDownload, metrics.StatusCreated)
		c.recorder.RecordDuration(metrics.OpArchiveDownload, time.Since(fetchStart).Seconds())
		report.Downloaded = append(report.Downloaded, result)
		log.Info("Downloaded observation",
			logger.String("obs_id", obs.ObsID),
			logger.Int("files", len(result.Files)),
			logger.Int64("bytes", result.Bytes))
	}

	report.Duration = time.Since(start)
	return report, nil
}

// checkFreeSpace refuses to download when the volume holding dir has less
// than MinFreeGB available
func (c *Client) checkFreeSpace(dir string) error {
	if c.config.MinFreeGB <= 0 {
		return nil
	}
	usage, err := disk.Usage(dir)
	if err != nil {
		return errors.New(fmt.Errorf("failed to check disk space: %w", err)).
			Component("archive").
			Category(errors.CategorySystem).
			FileContext(dir).
			Build()
	}
	required := uint64(c.config.MinFreeGB * bytesPerGB)
	if usage.Free < required {
		return errors.Newf("not enough disk space in %s: %.1f GB free, %.1f GB required",
			dir, float64(usage.Free)/bytesPerGB, c.config.MinFreeGB).
			Component("archive").
			Category(errors.CategoryDiskUsage).
			Context("free_bytes", usage.Free).
			Build()
	}
	return nil
}
