package skycoord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "J164018.42+265533.11", JName(250.0767333333, 26.9258638889))
	assert.Equal(t, "J000000.00+000000.00", JName(0, 0))
	assert.Equal(t, "J120000.00-453000.00", JName(180, -45.5))
}

func TestFormatRA(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		deg       float64
		precision int
		sep       string
		want      string
	}{
		{"region style", 250.0767333333, 2, ":", "16:40:18.42"},
		{"space separated", 250.0767333333, 2, " ", "16 40 18.42"},
		{"rounding carries into minutes", 15.0 * (59.9999 / 3600), 2, ":", "00:01:00.00"},
		{"wraps at 24h", 359.99999999, 2, ":", "00:00:00.00"},
		{"whole seconds", 83.63308, 0, ":", "05:34:32"},
		{"negative input normalised", -15, 1, ":", "23:00:00.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FormatRA(tt.deg, tt.precision, tt.sep))
		})
	}
}

func TestFormatDec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		deg        float64
		alwaysSign bool
		want       string
	}{
		{"positive signed", 26.9258638889, true, "+26:55:33.11"},
		{"positive unsigned", 26.9258638889, false, "26:55:33.11"},
		{"negative below one degree", -0.5, false, "-00:30:00.00"},
		{"carry into degrees", 9.999999999, true, "+10:00:00.00"},
		{"negative zero after rounding", -0.0000000001, true, "+00:00:00.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FormatDec(tt.deg, 2, ":", tt.alwaysSign))
		})
	}
}

func TestParseRA(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"16:40:18.416", 250.0767333, false},
		{"16 40 18.416", 250.0767333, false},
		{"16h40m18.416s", 250.0767333, false},
		{"250.0767333", 250.0767333, false},
		{"12:00", 180, false},
		{"24:00:00", 0, true},
		{"12:61:00", 0, true},
		{"360", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseRA(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestParseDec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"+26:55:33.11", 26.9258639, false},
		{"26 55 33.11", 26.9258639, false},
		{"-00:30:00", -0.5, false},
		{"-45d30m00s", -45.5, false},
		{"-12.5", -12.5, false},
		{"91:00:00", 0, true},
		{"-91", 0, true},
		{"10:00:60", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDec(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	t.Parallel()

	ra, dec := 83.6330833, -5.3911111
	gotRA, err := ParseRA(FormatRA(ra, 3, ":"))
	require.NoError(t, err)
	gotDec, err := ParseDec(FormatDec(dec, 3, ":", true))
	require.NoError(t, err)

	assert.InDelta(t, ra, gotRA, 0.001/3600*15)
	assert.InDelta(t, dec, gotDec, 0.001/3600)
}

func TestOffset(t *testing.T) {
	t.Parallel()

	sep := ArcsecToDeg(50)

	// Due north keeps RA and adds the separation to Dec
	ra, dec := Offset(10, 20, 0, sep)
	assert.InDelta(t, 10, ra, 1e-9)
	assert.InDelta(t, 20+sep, dec, 1e-9)

	// Due east on the equator adds the separation to RA
	ra, dec = Offset(10, 0, 90, sep)
	assert.InDelta(t, 10+sep, ra, 1e-9)
	assert.InDelta(t, 0, dec, 1e-9)

	// Any bearing keeps the requested separation
	start := Position{RA: 250.0767333333, Dec: 26.9258638889}
	ra, dec = Offset(start.RA, start.Dec, 45, sep)
	assert.InDelta(t, sep, Separation(start, Position{RA: ra, Dec: dec}), 1e-9)
	assert.Greater(t, ra, start.RA, "PA 45 moves east")
	assert.Greater(t, dec, start.Dec, "PA 45 moves north")

	// Crossing RA zero wraps into [0, 360)
	ra, _ = Offset(0.001, 0, 270, 0.01)
	assert.InDelta(t, 359.991, ra, 1e-6)
}

func TestPositionString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "16:40:18.42 +26:55:33.11", Position{RA: 250.0767333333, Dec: 26.9258638889}.String())
}
