// Package photometrytest writes uvotsource-style FITS tables for tests.
package photometrytest

import (
	"os"
	"slices"

	"github.com/astrogo/fitsio"
)

// Row is one photometry measurement
type Row struct {
	MET      float64
	RA       float64
	Dec      float64
	Filter   string
	Exposure float64
	ABMag    float64
	ABMagErr float64
	ABMagLim float64
	SrcRate  float32 // stands in for the many additional uvotsource columns
}

var columns = []fitsio.Column{
	{Name: "MET", Format: "D"},
	{Name: "EXTNAME", Format: "12A"},
	{Name: "RA", Format: "D"},
	{Name: "DEC", Format: "D"},
	{Name: "FILTER", Format: "8A"},
	{Name: "EXPOSURE", Format: "D"},
	{Name: "AB_MAG", Format: "D"},
	{Name: "AB_MAG_ERR", Format: "D"},
	{Name: "AB_MAG_LIM", Format: "D"},
	{Name: "COI_SRC_RATE", Format: "E"},
}

// WriteOutFile writes rows as a binary table in HDU 1 of a new FITS file at path
func WriteOutFile(path string, rows ...Row) error {
	w, err := os.Create(path)
	if err != nil {
		return err
	}
	defer w.Close()

	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}

	if err := writeHDUs(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return w.Close()
}

func writeHDUs(f *fitsio.File, rows []Row) error {
	phdu, err := fitsio.NewPrimaryHDU(nil)
	if err != nil {
		return err
	}
	if err := f.Write(phdu); err != nil {
		return err
	}

	tbl, err := fitsio.NewTable("MAGHIST", slices.Clone(columns), fitsio.BINARY_TBL)
	if err != nil {
		return err
	}
	defer tbl.Close()

	for i := range rows {
		r := &rows[i]
		extname := "sw_sk"
		if err := tbl.Write(&r.MET, &extname, &r.RA, &r.Dec, &r.Filter, &r.Exposure,
			&r.ABMag, &r.ABMagErr, &r.ABMagLim, &r.SrcRate); err != nil {
			return err
		}
	}
	return f.Write(tbl)
}
