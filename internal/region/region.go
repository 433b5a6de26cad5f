// Package region writes and reads the fk5 circle region files used for
// UVOT source and background photometry.
package region

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
	"github.com/tphakala/uvotredux/internal/skycoord"
)

// Default region geometry in arcseconds and degrees
const (
	DefaultSourceName       = "src.reg"
	DefaultBackgroundName   = "bkg.reg"
	DefaultSourceRadius     = 3.0
	DefaultBackgroundRadius = 10.0
	DefaultBackgroundOffset = 50.0
	DefaultBackgroundPA     = 45.0
)

// ErrRegionNotFound is returned when a region file is missing
var ErrRegionNotFound = errors.NewStd("region file not found")

// Circle is a circular region centred on an equatorial position
type Circle struct {
	RA     float64 // degrees
	Dec    float64 // degrees
	Radius float64 // arcseconds
}

// String renders the circle in the ds9 fk5 format read by uvotsource
func (c Circle) String() string {
	return fmt.Sprintf(`fk5;circle(%s,%s,%s")`,
		skycoord.FormatRA(c.RA, 2, ":"),
		skycoord.FormatDec(c.Dec, 2, ":", false),
		strconv.FormatFloat(c.Radius, 'f', -1, 64))
}

// Pair holds the paths of the source and background region files
type Pair struct {
	Source     string
	Background string
}

// Paths returns the region file paths inside baseDir
func Paths(baseDir, srcName, bkgName string) Pair {
	if srcName == "" {
		srcName = DefaultSourceName
	}
	if bkgName == "" {
		bkgName = DefaultBackgroundName
	}
	return Pair{
		Source:     filepath.Join(baseDir, srcName),
		Background: filepath.Join(baseDir, bkgName),
	}
}

// Exists reports whether both region files are present. The first missing
// file is returned wrapped in ErrRegionNotFound.
func (p Pair) Exists() error {
	for _, path := range []string{p.Source, p.Background} {
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			continue
		}
		return errors.New(fmt.Errorf("%w: %s", ErrRegionNotFound, path)).
			Component("region").
			Category(errors.CategoryPrecondition).
			FileContext(path).
			Build()
	}
	return nil
}

// Options control region geometry and file names
type Options struct {
	SourceName       string
	BackgroundName   string
	SourceRadius     float64 // arcseconds
	BackgroundRadius float64 // arcseconds
	BackgroundOffset float64 // arcseconds
	BackgroundPA     float64 // degrees east of north
	Overwrite        bool
}

// DefaultOptions returns the 3" source and 10" background offset by 50" at PA 45
func DefaultOptions() Options {
	return Options{
		SourceName:       DefaultSourceName,
		BackgroundName:   DefaultBackgroundName,
		SourceRadius:     DefaultSourceRadius,
		BackgroundRadius: DefaultBackgroundRadius,
		BackgroundOffset: DefaultBackgroundOffset,
		BackgroundPA:     DefaultBackgroundPA,
	}
}

// Create writes the source and background region files for a target at
// (ra, dec) degrees. Existing files are kept unless opts.Overwrite is set.
func Create(baseDir string, ra, dec float64, opts Options) (Pair, error) {
	log := GetLogger()
	pair := Paths(baseDir, opts.SourceName, opts.BackgroundName)

	src := Circle{RA: ra, Dec: dec, Radius: opts.SourceRadius}
	if _, err := writeRegion(pair.Source, src, opts.Overwrite); err != nil {
		return pair, err
	}

	bkgRA, bkgDec := skycoord.Offset(ra, dec, opts.BackgroundPA, skycoord.ArcsecToDeg(opts.BackgroundOffset))
	bkg := Circle{RA: bkgRA, Dec: bkgDec, Radius: opts.BackgroundRadius}
	written, err := writeRegion(pair.Background, bkg, opts.Overwrite)
	if err != nil {
		return pair, err
	}
	if written {
		log.Warn("Created background region, check images to ensure it only contains background",
			logger.Float64("radius_arcsec", opts.BackgroundRadius),
			logger.Float64("offset_arcsec", opts.BackgroundOffset),
			logger.String("ra", fmt.Sprintf("%.5f", bkgRA)),
			logger.String("dec", fmt.Sprintf("%.5f", bkgDec)))
	}
	return pair, nil
}

// writeRegion writes c to path and reports whether the file was written
func writeRegion(path string, c Circle, overwrite bool) (bool, error) {
	log := GetLogger()

	if _, err := os.Stat(path); err == nil && !overwrite {
		log.Info("Skipping, region file already exists", logger.String("path", path))
		return false, nil
	}

	log.Info("Creating region file", logger.String("path", path), logger.String("region", c.String()))
	if err := os.WriteFile(path, []byte(c.String()+"\n"), 0o644); err != nil {
		return false, errors.New(err).
			Component("region").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	return true, nil
}

var circlePattern = regexp.MustCompile(`(?i)circle\(\s*([^,]+?)\s*,\s*([^,]+?)\s*,\s*([0-9.]+)\s*("|'|d)?\s*\)`)

// Load parses the first circle of a region file. Coordinates may be
// sexagesimal or decimal degrees; the radius unit defaults to arcseconds.
func Load(path string) (Circle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrRegionNotFound, path)
		}
		return Circle{}, errors.New(err).
			Component("region").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	return Parse(string(data))
}

// Parse reads the first circle from region file text
func Parse(text string) (Circle, error) {
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := circlePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		return parseCircle(m)
	}
	return Circle{}, errors.Newf("no circle region found").
		Component("region").
		Category(errors.CategoryFileParsing).
		Build()
}

func parseCircle(m []string) (Circle, error) {
	ra, err := skycoord.ParseRA(m[1])
	if err != nil {
		return Circle{}, parseError(err)
	}
	dec, err := skycoord.ParseDec(m[2])
	if err != nil {
		return Circle{}, parseError(err)
	}
	radius, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Circle{}, parseError(err)
	}
	switch m[4] {
	case "'":
		radius *= 60
	case "d":
		radius *= 3600
	}
	return Circle{RA: ra, Dec: dec, Radius: radius}, nil
}

func parseError(err error) error {
	return errors.New(err).
		Component("region").
		Category(errors.CategoryFileParsing).
		Build()
}
