package photometry

import (
	"encoding/csv"
	"io"
	"math"
	"strings"

	"github.com/tphakala/uvotredux/internal/logger"
)

// skyPortalMagLimit marks uvotsource rows without a usable magnitude
const skyPortalMagLimit = 99.0

// SkyPortalColumns is the header of the SkyPortal photometry CSV
var SkyPortalColumns = []string{"mjd", "mag", "magerr", "limiting_mag", "magsys", "filter"}

// SkyPortalRow is one photometry point in SkyPortal format.
// Mag and MagErr are nil for non-detections.
type SkyPortalRow struct {
	MJD         float64
	Mag         *float64
	MagErr      *float64
	LimitingMag float64
	MagSys      string
	Filter      string
}

// SkyPortalFilter maps a UVOT FILTER value to its SkyPortal name, e.g. "UW1 " to "uvot::uw1"
func SkyPortalFilter(filter string) string {
	return "uvot::" + strings.ToLower(strings.TrimSpace(filter))
}

// SkyPortalRows projects the dataset onto SkyPortal rows. Rows with
// AB_MAG >= 99 or a non-numeric AB_MAG are dropped; rows fainter than their
// limit keep only the limit. The dataset itself is left unchanged.
func SkyPortalRows(ds *Dataset) []SkyPortalRow {
	rows := make([]SkyPortalRow, 0, len(ds.Records))
	for i := range ds.Records {
		r := &ds.Records[i]
		mag, ok := r.Float(ColABMag)
		if !ok || math.IsNaN(mag) {
			GetLogger().Warn("Skipping row without a numeric AB_MAG",
				logger.String("parent_dir", r.ParentDir),
				logger.String("filter", r.String(ColFilter)),
				logger.String("ab_mag", r.String(ColABMag)))
			continue
		}
		if mag >= skyPortalMagLimit {
			continue
		}
		magErr, _ := r.Float(ColABMagErr)
		limit, _ := r.Float(ColABMagLim)

		row := SkyPortalRow{
			MJD:         r.MJD,
			LimitingMag: limit,
			MagSys:      "ab",
			Filter:      SkyPortalFilter(r.String(ColFilter)),
		}
		if mag <= limit {
			row.Mag = &mag
			row.MagErr = &magErr
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteSkyPortal writes rows as CSV without an index column
func WriteSkyPortal(w io.Writer, rows []SkyPortalRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SkyPortalColumns); err != nil {
		return err
	}
	for i := range rows {
		r := &rows[i]
		if err := cw.Write([]string{
			formatFloat(r.MJD, 64),
			formatOptional(r.Mag),
			formatOptional(r.MagErr),
			formatFloat(r.LimitingMag, 64),
			r.MagSys,
			r.Filter,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v, 64)
}
