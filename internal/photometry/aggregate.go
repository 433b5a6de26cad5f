package photometry

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
	"github.com/tphakala/uvotredux/internal/observability/metrics"
	"github.com/tphakala/uvotredux/internal/observation"
)

// Output file names written into the batch directory
const (
	ResultsFile   = "uvot_results.csv"
	SummaryFile   = "uvot_summary.csv"
	SkyPortalFile = "uvot_skyportal.csv"

	imageSubdir = "uvot/image"
)

// ErrNoPhotometryOutputs is returned when a batch contains no .out files
var ErrNoPhotometryOutputs = errors.NewStd("no UVOT photometry outputs found")

// SummaryColumns are the columns of uvot_summary.csv
var SummaryColumns = []string{ColISOT, ColMJD, ColRA, ColDec, ColFilter, ColExposure, ColABMag, ColABMagErr, ColABMagLim, ColParentDir}

// derivedColumns are appended after the file columns in uvot_results.csv
var derivedColumns = []string{ColJD, ColISOT, ColMJD, ColParentDir}

// Dataset is the combined, time-ordered photometry of a batch
type Dataset struct {
	Columns []string // file columns in first-appearance order
	Records []Record
}

// ResultColumns returns the uvot_results.csv header
func (d *Dataset) ResultColumns() []string {
	return slices.Concat(d.Columns, derivedColumns)
}

// FindOutputs lists every <obs>/uvot/image/*.out file of the batch
func FindOutputs(batchDir string) ([]string, error) {
	log := GetLogger()

	ids, err := observation.Scan(batchDir)
	if err != nil {
		return nil, err
	}

	var outputs []string
	for _, id := range ids {
		imageDir := filepath.Join(batchDir, id, imageSubdir)
		if info, err := os.Stat(imageDir); err != nil || !info.IsDir() {
			log.Warn("UVOT image directory not found", logger.String("dir", imageDir))
			continue
		}
		matches, err := filepath.Glob(filepath.Join(imageDir, "*.out"))
		if err != nil {
			return nil, fmt.Errorf("failed to glob photometry outputs: %w", err)
		}
		outputs = append(outputs, matches...)
	}
	return outputs, nil
}

// parentObservation returns the name of the directory two levels above the
// file's directory, the observation ID for <obs>/uvot/image/<file>.
func parentObservation(path string) string {
	dir := filepath.Dir(path)
	for range 2 {
		dir = filepath.Dir(dir)
	}
	return filepath.Base(dir)
}

// Combine parses paths in sorted order, tags each record with its observation
// and stable-sorts the result by JD ascending.
func Combine(paths []string) (*Dataset, error) {
	if len(paths) == 0 {
		return nil, errors.New(ErrNoPhotometryOutputs).
			Component("photometry").
			Category(errors.CategoryNotFound).
			Build()
	}

	sorted := slices.Clone(paths)
	slices.Sort(sorted)

	ds := &Dataset{}
	seen := make(map[string]bool)
	for _, path := range sorted {
		table, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		parent := parentObservation(path)
		for _, col := range table.Columns {
			if !seen[col] {
				seen[col] = true
				ds.Columns = append(ds.Columns, col)
			}
		}
		for i := range table.Records {
			table.Records[i].ParentDir = parent
		}
		ds.Records = append(ds.Records, table.Records...)
	}

	sort.SliceStable(ds.Records, func(i, j int) bool {
		return ds.Records[i].JD < ds.Records[j].JD
	})
	return ds, nil
}

// AggregateOptions controls optional outputs of Aggregate
type AggregateOptions struct {
	SkyPortal       bool
	SkyPortalWriter io.Writer // receives a copy of the SkyPortal CSV when set
	Recorder        metrics.Recorder
}

// AggregateResult describes the files written by Aggregate
type AggregateResult struct {
	Dataset       *Dataset
	ResultsPath   string
	SummaryPath   string
	SkyPortalPath string // empty unless the export was requested
}

// Aggregate combines every photometry output of batchDir and writes
// uvot_results.csv and uvot_summary.csv, replacing previous versions.
func Aggregate(batchDir string, opts AggregateOptions) (*AggregateResult, error) {
	log := GetLogger()
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NewNoOpRecorder()
	}
	start := time.Now()

	log.Info("Parsing UVOT results in batch", logger.String("dir", batchDir))

	paths, err := FindOutputs(batchDir)
	if err != nil {
		recorder.RecordError(metrics.OpAggregate, metrics.ErrorTypeIO)
		return nil, err
	}
	ds, err := Combine(paths)
	if err != nil {
		errorType := metrics.ErrorTypeParse
		if errors.Is(err, ErrNoPhotometryOutputs) {
			errorType = metrics.ErrorTypeNotFound
		}
		recorder.RecordError(metrics.OpAggregate, errorType)
		return nil, err
	}
	log.Info("Found UVOT results", logger.Int("records", len(ds.Records)), logger.Int("files", len(paths)))

	result := &AggregateResult{
		Dataset:     ds,
		ResultsPath: filepath.Join(batchDir, ResultsFile),
		SummaryPath: filepath.Join(batchDir, SummaryFile),
	}

	if err := writeFileAtomic(result.ResultsPath, func(w io.Writer) error {
		return WriteCSV(w, ds, ds.ResultColumns())
	}); err != nil {
		recorder.RecordError(metrics.OpAggregate, metrics.ErrorTypeIO)
		return nil, err
	}
	if err := writeFileAtomic(result.SummaryPath, func(w io.Writer) error {
		return WriteCSV(w, ds, SummaryColumns)
	}); err != nil {
		recorder.RecordError(metrics.OpAggregate, metrics.ErrorTypeIO)
		return nil, err
	}
	logSummary(log, ds)

	if opts.SkyPortal {
		result.SkyPortalPath = filepath.Join(batchDir, SkyPortalFile)
		rows := SkyPortalRows(ds)
		if err := writeFileAtomic(result.SkyPortalPath, func(w io.Writer) error {
			return WriteSkyPortal(w, rows)
		}); err != nil {
			recorder.RecordOperation(metrics.OpSkyPortalExport, metrics.StatusError)
			return nil, err
		}
		if opts.SkyPortalWriter != nil {
			if err := WriteSkyPortal(opts.SkyPortalWriter, rows); err != nil {
				return nil, fmt.Errorf("failed to write SkyPortal export: %w", err)
			}
		}
		recorder.RecordOperation(metrics.OpSkyPortalExport, metrics.StatusSuccess)
		log.Info("Wrote SkyPortal export", logger.String("path", result.SkyPortalPath), logger.Int("rows", len(rows)))
	}

	recorder.RecordOperation(metrics.OpAggregate, metrics.StatusSuccess)
	recorder.RecordDuration(metrics.OpAggregate, time.Since(start).Seconds())
	return result, nil
}

// WriteCSV writes the header and one line per record restricted to columns
func WriteCSV(w io.Writer, ds *Dataset, columns []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	row := make([]string, len(columns))
	for i := range ds.Records {
		for j, col := range columns {
			row[j] = ds.Records[i].String(col)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeFileAtomic writes through a temp file in the same directory, then renames it over path
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fileError(path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return fileError(path, err)
	}
	if err := tmp.Close(); err != nil {
		return fileError(path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fileError(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fileError(path, err)
	}
	return nil
}

func fileError(path string, err error) error {
	return errors.New(err).
		Component("photometry").
		Category(errors.CategoryFileIO).
		FileContext(path).
		Build()
}

func logSummary(log logger.Logger, ds *Dataset) {
	for i := range ds.Records {
		r := &ds.Records[i]
		log.Info("UVOT result",
			logger.String("isot", r.ISOT),
			logger.String("filter", r.String(ColFilter)),
			logger.String("ab_mag", r.String(ColABMag)),
			logger.String("ab_mag_err", r.String(ColABMagErr)),
			logger.String("ab_mag_lim", r.String(ColABMagLim)),
			logger.String("exposure", r.String(ColExposure)),
			logger.String("obs_id", r.ParentDir))
	}
}
