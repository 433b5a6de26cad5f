package region

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/skycoord"
)

func TestCreateWritesSourceAndBackground(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pair, err := Create(dir, 250.0767333333, 26.9258638889, DefaultOptions())
	require.NoError(t, err)

	src, err := os.ReadFile(pair.Source)
	require.NoError(t, err)
	assert.Equal(t, "fk5;circle(16:40:18.42,26:55:33.11,3\")\n", string(src))

	bkg, err := Load(pair.Background)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, bkg.Radius, 1e-9)

	sep := skycoord.Separation(
		skycoord.Position{RA: 250.0767333333, Dec: 26.9258638889},
		skycoord.Position{RA: bkg.RA, Dec: bkg.Dec})
	// Positions are written to 0.01s / 0.01" so allow for rounding
	assert.InDelta(t, 50.0, sep*3600, 0.2)

	require.NoError(t, pair.Exists())
}

func TestCreateKeepsExistingUnlessOverwrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pair := Paths(dir, "", "")
	custom := "fk5;circle(01:00:00.00,10:00:00.00,5\")\n"
	require.NoError(t, os.WriteFile(pair.Source, []byte(custom), 0o644))

	_, err := Create(dir, 250.0, 26.0, DefaultOptions())
	require.NoError(t, err)
	data, err := os.ReadFile(pair.Source)
	require.NoError(t, err)
	assert.Equal(t, custom, string(data), "existing source region is kept")
	assert.FileExists(t, pair.Background)

	opts := DefaultOptions()
	opts.Overwrite = true
	_, err = Create(dir, 250.0, 26.0, opts)
	require.NoError(t, err)
	data, err = os.ReadFile(pair.Source)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "fk5;circle(16:40:00.00,26:00:00.00,3\")"))
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "src.reg")
	want := Circle{RA: 83.6330833, Dec: -5.3911111, Radius: 4.5}
	require.NoError(t, os.WriteFile(path, []byte(want.String()+"\n"), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, want.RA, got.RA, 0.01/3600*15)
	assert.InDelta(t, want.Dec, got.Dec, 0.01/3600)
	assert.InDelta(t, want.Radius, got.Radius, 1e-9)
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		want    Circle
		wantErr bool
	}{
		{
			name: "ds9 header and decimal degrees",
			text: "# Region file format: DS9\nfk5\ncircle(250.0767,26.9259,3\")\n",
			want: Circle{RA: 250.0767, Dec: 26.9259, Radius: 3},
		},
		{
			name: "arcminute radius",
			text: "fk5;circle(12:00:00,-30:00:00,0.5')",
			want: Circle{RA: 180, Dec: -30, Radius: 30},
		},
		{
			name:    "no circle",
			text:    "fk5;box(1,2,3,4,0)\n",
			wantErr: true,
		},
		{
			name:    "bad declination",
			text:    "fk5;circle(12:00:00,95:00:00,3\")",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want.RA, got.RA, 1e-6)
			assert.InDelta(t, tt.want.Dec, got.Dec, 1e-6)
			assert.InDelta(t, tt.want.Radius, got.Radius, 1e-9)
		})
	}
}

func TestExistsReportsMissingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pair := Paths(dir, "target.reg", "sky.reg")
	require.NoError(t, os.WriteFile(pair.Source, []byte("x"), 0o644))

	err := pair.Exists()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegionNotFound)
	assert.Contains(t, err.Error(), "sky.reg")

	_, err = Load(filepath.Join(dir, "missing.reg"))
	assert.ErrorIs(t, err, ErrRegionNotFound)
}
