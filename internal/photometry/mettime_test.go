package photometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMET2Time(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		met      float64
		wantMJD  float64
		wantISOT string
	}{
		{"epoch", 0, 51910.0, "2001-01-01T00:00:00.000"},
		{"half day with millis", 43200.25, 51910.5 + 0.25/86400, "2001-01-01T12:00:00.250"},
		{"one year", 365 * 86400, 52275.0, "2002-01-01T00:00:00.000"},
		{"typical swift MET", 700000000, 51910.0 + 700000000.0/86400, "2023-03-08T20:26:40.000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := MET2Time(tt.met)
			assert.InDelta(t, tt.wantMJD, got.MJD, 1e-9)
			assert.InDelta(t, tt.wantMJD+2400000.5, got.JD, 1e-9)
			assert.Equal(t, tt.wantISOT, got.ISOT())
		})
	}
}
