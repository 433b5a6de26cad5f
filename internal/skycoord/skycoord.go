// Package skycoord converts between decimal degrees and sexagesimal notation
// and computes offsets on the celestial sphere.
package skycoord

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/soniakeys/unit"
)

const (
	secondsPerHour   = 3600
	secondsPerDegree = 3600
	hoursPerDay      = 24
)

// Position is an equatorial position in degrees
type Position struct {
	RA  float64
	Dec float64
}

// String renders the position as hh:mm:ss.ss +dd:mm:ss.ss
func (p Position) String() string {
	return FormatRA(p.RA, 2, ":") + " " + FormatDec(p.Dec, 2, ":", true)
}

// sexagesimal splits value (hours or degrees) into whole units, minutes and
// seconds rounded to precision decimals. Rounding happens on the total so
// 59.999" carries into the next minute.
func sexagesimal(value float64, precision int) (units, minutes int64, seconds float64) {
	scale := math.Pow10(precision)
	total := int64(math.Round(value * secondsPerHour * scale))
	perUnit := int64(secondsPerHour * scale)
	perMinute := int64(60 * scale)

	units = total / perUnit
	rest := total % perUnit
	minutes = rest / perMinute
	seconds = float64(rest%perMinute) / scale
	return units, minutes, seconds
}

func formatSeconds(seconds float64, precision int) string {
	if precision <= 0 {
		return fmt.Sprintf("%02.0f", seconds)
	}
	return fmt.Sprintf("%0*.*f", precision+3, precision, seconds)
}

// FormatRA renders a right ascension in degrees as hours, minutes and
// seconds joined by sep, e.g. 16:40:18.42 or 164018.42.
func FormatRA(deg float64, precision int, sep string) string {
	hours := unit.RAFromDeg(deg).Hour()
	h, m, s := sexagesimal(hours, precision)
	h %= hoursPerDay
	return fmt.Sprintf("%02d%s%02d%s%s", h, sep, m, sep, formatSeconds(s, precision))
}

// FormatDec renders a declination in degrees as degrees, arcminutes and
// arcseconds joined by sep. alwaysSign prefixes non-negative values with '+'.
func FormatDec(deg float64, precision int, sep string, alwaysSign bool) string {
	d, m, s := sexagesimal(math.Abs(deg), precision)

	sign := ""
	switch {
	case deg < 0 && (d != 0 || m != 0 || s != 0):
		sign = "-"
	case alwaysSign:
		sign = "+"
	}
	return fmt.Sprintf("%s%02d%s%02d%s%s", sign, d, sep, m, sep, formatSeconds(s, precision))
}

// JName returns the J2000 designation J{hhmmss.ss}{+ddmmss.ss}
func JName(ra, dec float64) string {
	return "J" + FormatRA(ra, 2, "") + FormatDec(dec, 2, "", true)
}

// splitSexagesimal splits "hh:mm:ss.s", "hh mm ss.s" or "12h30m15s" into fields.
// ok is false when s holds a single decimal number.
func splitSexagesimal(s string) (fields []string, ok bool) {
	replacer := strings.NewReplacer(":", " ", "h", " ", "d", " ", "m", " ", "s", " ", "'", " ", `"`, " ")
	fields = strings.Fields(replacer.Replace(s))
	return fields, len(fields) > 1
}

func parseFields(fields []string) (whole, minutes int, seconds float64, err error) {
	if len(fields) > 3 {
		return 0, 0, 0, fmt.Errorf("too many fields")
	}
	if whole, err = strconv.Atoi(fields[0]); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid leading field %q", fields[0])
	}
	if minutes, err = strconv.Atoi(fields[1]); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid minutes %q", fields[1])
	}
	if len(fields) == 3 {
		if seconds, err = strconv.ParseFloat(fields[2], 64); err != nil {
			return 0, 0, 0, fmt.Errorf("invalid seconds %q", fields[2])
		}
	}
	if minutes < 0 || minutes >= 60 || seconds < 0 || seconds >= 60 {
		return 0, 0, 0, fmt.Errorf("minutes and seconds must be in [0, 60)")
	}
	return whole, minutes, seconds, nil
}

// ParseRA accepts sexagesimal hours or decimal degrees and returns degrees in [0, 360)
func ParseRA(s string) (float64, error) {
	s = strings.TrimSpace(s)
	fields, ok := splitSexagesimal(s)
	if !ok {
		deg, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid right ascension %q", s)
		}
		if deg < 0 || deg >= 360 {
			return 0, fmt.Errorf("right ascension %v out of range [0, 360)", deg)
		}
		return deg, nil
	}

	h, m, sec, err := parseFields(fields)
	if err != nil {
		return 0, fmt.Errorf("invalid right ascension %q: %w", s, err)
	}
	if h < 0 || h >= hoursPerDay {
		return 0, fmt.Errorf("invalid right ascension %q: hours out of range", s)
	}
	return unit.NewRA(h, m, sec).Deg(), nil
}

// ParseDec accepts sexagesimal or decimal degrees and returns degrees in [-90, 90]
func ParseDec(s string) (float64, error) {
	s = strings.TrimSpace(s)
	fields, ok := splitSexagesimal(s)
	if !ok {
		deg, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid declination %q", s)
		}
		if deg < -90 || deg > 90 {
			return 0, fmt.Errorf("declination %v out of range [-90, 90]", deg)
		}
		return deg, nil
	}

	// The sign belongs to the whole value, "-00:30:00" included
	var neg byte
	switch fields[0][0] {
	case '-':
		neg = '-'
		fields[0] = fields[0][1:]
	case '+':
		fields[0] = fields[0][1:]
	}

	d, m, sec, err := parseFields(fields)
	if err != nil {
		return 0, fmt.Errorf("invalid declination %q: %w", s, err)
	}
	deg := unit.NewAngle(neg, d, m, sec).Deg()
	if deg < -90 || deg > 90 {
		return 0, fmt.Errorf("declination %q out of range", s)
	}
	return deg, nil
}

// Offset moves (ra, dec) by sep along the great circle leaving at position
// angle pa, measured east of north. All values are degrees; the returned RA is in [0, 360).
func Offset(ra, dec, pa, sep float64) (float64, float64) {
	lon := unit.AngleFromDeg(ra).Rad()
	lat := unit.AngleFromDeg(dec).Rad()
	posang := unit.AngleFromDeg(pa).Rad()
	dist := unit.AngleFromDeg(sep).Rad()

	// Spherical triangle with the pole, the start and the end point
	cosA, sinA := math.Cos(dist), math.Sin(dist)
	cosC, sinC := math.Sin(lat), math.Cos(lat)
	cosB, sinB := math.Cos(posang), math.Sin(posang)

	cosb := cosC*cosA + sinC*sinA*cosB
	xsinA := sinA * sinB * sinC
	xcosA := cosA - cosb*cosC
	dLon := math.Atan2(xsinA, xcosA)

	if sinC < 1e-12 {
		// At a pole the bearing alone fixes the longitude change
		dLon = math.Pi/2 + cosC*(math.Pi/2-posang)
	}

	newRA := unit.PMod(unit.Angle(lon+dLon).Deg(), 360)
	newDec := unit.Angle(math.Asin(math.Max(-1, math.Min(1, cosb)))).Deg()
	return newRA, newDec
}

// Separation returns the angular distance between two positions in degrees
func Separation(a, b Position) float64 {
	ra1, dec1 := unit.AngleFromDeg(a.RA).Rad(), unit.AngleFromDeg(a.Dec).Rad()
	ra2, dec2 := unit.AngleFromDeg(b.RA).Rad(), unit.AngleFromDeg(b.Dec).Rad()

	// Haversine, stable for small separations
	sdLat := math.Sin((dec2 - dec1) / 2)
	sdLon := math.Sin((ra2 - ra1) / 2)
	h := sdLat*sdLat + math.Cos(dec1)*math.Cos(dec2)*sdLon*sdLon
	return unit.Angle(2 * math.Asin(math.Min(1, math.Sqrt(h)))).Deg()
}

// ArcsecToDeg converts arcseconds to degrees
func ArcsecToDeg(arcsec float64) float64 {
	return unit.AngleFromSec(arcsec).Deg()
}
