package photometry

import (
	"fmt"
	"math"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
)

// Core photometry columns every uvotsource output must contain
const (
	ColMET      = "MET"
	ColRA       = "RA"
	ColDec      = "DEC"
	ColFilter   = "FILTER"
	ColExposure = "EXPOSURE"
	ColABMag    = "AB_MAG"
	ColABMagErr = "AB_MAG_ERR"
	ColABMagLim = "AB_MAG_LIM"

	ColJD        = "JD"
	ColISOT      = "ISOT"
	ColMJD       = "MJD"
	ColParentDir = "PARENT_DIR"
)

// CoreColumns lists the columns required in every photometry table
var CoreColumns = []string{ColMET, ColRA, ColDec, ColFilter, ColExposure, ColABMag, ColABMagErr, ColABMagLim}

// resultHDU is the binary table extension written by uvotsource
const resultHDU = 1

// Record is one row of a photometry table plus its derived times
type Record struct {
	Values    map[string]any // raw column values keyed by column name
	JD        float64
	MJD       float64
	ISOT      string
	ParentDir string
}

// Float returns a numeric column value as float64
func (r *Record) Float(column string) (float64, bool) {
	return toFloat(r.Values[column])
}

// String returns a column value formatted for CSV output
func (r *Record) String(column string) string {
	switch column {
	case ColJD:
		return formatFloat(r.JD, 64)
	case ColMJD:
		return formatFloat(r.MJD, 64)
	case ColISOT:
		return r.ISOT
	case ColParentDir:
		return r.ParentDir
	}
	return formatValue(r.Values[column])
}

// Table is the parsed content of one photometry output file
type Table struct {
	Path    string
	Columns []string // column order of the file
	Records []Record
}

// ParseFile reads the binary table in HDU 1 of a uvotsource output file.
// Every record gets the JD, MJD and ISOT derived from the MET of row 0.
func ParseFile(path string) (*Table, error) {
	GetLogger().Info("Parsing UVOT results", logger.String("path", path))

	r, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("photometry").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, parseError(path, fmt.Errorf("failed to open FITS file: %w", err))
	}
	defer f.Close()

	if len(f.HDUs()) <= resultHDU {
		return nil, parseError(path, fmt.Errorf("missing table extension, file has %d HDUs", len(f.HDUs())))
	}
	tbl, ok := f.HDU(resultHDU).(*fitsio.Table)
	if !ok {
		return nil, parseError(path, fmt.Errorf("HDU %d is not a table", resultHDU))
	}

	cols := tbl.Cols()
	table := &Table{Path: path, Columns: make([]string, len(cols))}
	for i := range cols {
		table.Columns[i] = cols[i].Name
	}
	for _, name := range CoreColumns {
		if tbl.Index(name) < 0 {
			return nil, parseError(path, fmt.Errorf("missing required column %s", name))
		}
	}

	rows, err := tbl.Read(0, tbl.NumRows())
	if err != nil {
		return nil, parseError(path, fmt.Errorf("failed to read rows: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		dest := make([]any, len(cols))
		for i := range cols {
			dest[i] = reflect.New(cols[i].Type()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, parseError(path, fmt.Errorf("failed to scan row %d: %w", len(table.Records), err))
		}
		values := make(map[string]any, len(cols))
		for i := range cols {
			values[cols[i].Name] = reflect.ValueOf(dest[i]).Elem().Interface()
		}
		table.Records = append(table.Records, Record{Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, parseError(path, fmt.Errorf("failed to iterate rows: %w", err))
	}

	if len(table.Records) == 0 {
		return nil, parseError(path, fmt.Errorf("table has no rows"))
	}

	met, ok := table.Records[0].Float(ColMET)
	if !ok {
		return nil, parseError(path, fmt.Errorf("MET of row 0 is not numeric"))
	}
	obsTime := MET2Time(met)
	for i := range table.Records {
		table.Records[i].JD = obsTime.JD
		table.Records[i].MJD = obsTime.MJD
		table.Records[i].ISOT = obsTime.ISOT()
	}
	return table, nil
}

func parseError(path string, err error) error {
	return errors.New(err).
		Component("photometry").
		Category(errors.CategoryFileParsing).
		FileContext(path).
		Build()
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		// Widen through the shortest decimal so 18.23 stays 18.23
		f, err := strconv.ParseFloat(strconv.FormatFloat(float64(n), 'g', -1, 32), 64)
		return f, err == nil
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// formatFloat renders floats with the shortest round-trip digits, a ".0" on
// integral values and exponent notation outside [1e-4, 1e16).
func formatFloat(v float64, bitSize int) string {
	switch {
	case math.IsNaN(v):
		return ""
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	if abs := math.Abs(v); v != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, bitSize)
	}
	s := strconv.FormatFloat(v, 'f', -1, bitSize)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return formatFloat(x, 64)
	case float32:
		return formatFloat(float64(x), 32)
	case string:
		return strings.TrimRight(x, " \x00")
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
