package photometry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/photometry/photometrytest"
)

func TestParseFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "UW1.out")
	require.NoError(t, photometrytest.WriteOutFile(path,
		photometrytest.Row{MET: 0, RA: 250.0767, Dec: 26.9259, Filter: "UW1", Exposure: 1234.5,
			ABMag: 18.25, ABMagErr: 0.05, ABMagLim: 21.3, SrcRate: 12.5},
		photometrytest.Row{MET: 86400, RA: 250.0767, Dec: 26.9259, Filter: "UW1", Exposure: 600,
			ABMag: 18.5, ABMagErr: 0.07, ABMagLim: 21.0, SrcRate: 11.75},
	))

	table, err := ParseFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"MET", "EXTNAME", "RA", "DEC", "FILTER", "EXPOSURE",
		"AB_MAG", "AB_MAG_ERR", "AB_MAG_LIM", "COI_SRC_RATE"}, table.Columns)
	require.Len(t, table.Records, 2)

	first := &table.Records[0]
	assert.Equal(t, "UW1", first.String(ColFilter))
	assert.Equal(t, "18.25", first.String(ColABMag))
	assert.Equal(t, "12.5", first.String("COI_SRC_RATE"))
	assert.Equal(t, "1234.5", first.String(ColExposure))
	assert.Equal(t, "0.0", first.String(ColMET))

	// Every row carries the time of row 0
	for i := range table.Records {
		assert.InDelta(t, 51910.0, table.Records[i].MJD, 1e-9)
		assert.InDelta(t, 2451910.5, table.Records[i].JD, 1e-9)
		assert.Equal(t, "2001-01-01T00:00:00.000", table.Records[i].ISOT)
	}

	mag, ok := table.Records[1].Float(ColABMag)
	require.True(t, ok)
	assert.InDelta(t, 18.5, mag, 1e-12)
}

func TestParseFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := ParseFile(filepath.Join(dir, "missing.out"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	garbage := filepath.Join(dir, "B.out")
	require.NoError(t, os.WriteFile(garbage, []byte("uvotsource: error"), 0o644))
	_, err = ParseFile(garbage)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))

	empty := filepath.Join(dir, "V.out")
	require.NoError(t, photometrytest.WriteOutFile(empty))
	_, err = ParseFile(empty)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))
}

func TestFormatFloat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want string
	}{
		{51910, "51910.0"},
		{18.25, "18.25"},
		{2451910.5, "2451910.5"},
		{0.00001, "1e-05"},
		{0, "0.0"},
		{-0.5, "-0.5"},
		{1e20, "1e+20"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFloat(tt.in, 64))
	}
}
