package photometry

import (
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

const (
	// swiftEpochMJD is 2001-01-01T00:00:00 TT, the Swift MET reference, expressed as an MJD value
	swiftEpochMJD = 51910.0
	secondsPerDay = 86400.0
	// mjdOffset converts MJD to JD
	mjdOffset = 2400000.5

	// ISOTLayout renders timestamps like 2006-01-02T15:04:05.000
	ISOTLayout = "2006-01-02T15:04:05.000"
)

// ObservationTime is a mission elapsed time converted to calendar scales
type ObservationTime struct {
	MJD  float64
	JD   float64
	Time time.Time // UTC
}

// ISOT renders the time with millisecond precision
func (o ObservationTime) ISOT() string {
	return o.Time.Format(ISOTLayout)
}

// MET2Time converts Swift mission elapsed time in seconds to MJD, JD and UTC.
// The TT epoch value is reinterpreted as UTC, so results differ from a
// strict TT to UTC conversion by the leap-second offset (about a minute).
func MET2Time(met float64) ObservationTime {
	mjd := swiftEpochMJD + met/secondsPerDay
	jd := mjd + mjdOffset
	return ObservationTime{
		MJD:  mjd,
		JD:   jd,
		Time: julian.JDToTime(jd).UTC().Round(time.Millisecond),
	}
}
