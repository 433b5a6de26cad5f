package archive

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/julian"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
	"github.com/tphakala/uvotredux/internal/observability/metrics"
	"github.com/tphakala/uvotredux/internal/observation"
)

// mjdOffset converts MJD to JD
const mjdOffset = 2400000.5

// Observation is one Swift observation segment
type Observation struct {
	ObsID     string
	StartTime time.Time // UTC
}

// Month returns the YYYY_MM directory of the HEASARC data tree
func (o Observation) Month() string {
	return o.StartTime.Format("2006_01")
}

// queryADQL selects observations whose pointing lies within the cone
const queryADQL = "SELECT obsid, start_time FROM swiftmastr " +
	"WHERE CONTAINS(POINT('ICRS', ra, dec), CIRCLE('ICRS', %.6f, %.6f, %.6f)) = 1 " +
	"ORDER BY obsid"

// Query lists the distinct Swift observations within radius arcminutes of
// (ra, dec) degrees, sorted by observation ID. Zero radius uses the configured one.
func (c *Client) Query(ctx context.Context, ra, dec, radius float64) ([]Observation, error) {
	if radius <= 0 {
		radius = c.config.Radius
	}
	log := GetLogger().WithContext(ctx)
	log.Info("Searching Swift data",
		logger.Float64("ra", ra),
		logger.Float64("dec", dec),
		logger.Float64("radius_arcmin", radius))

	start := time.Now()
	q := url.Values{}
	q.Set("REQUEST", "doQuery")
	q.Set("LANG", "ADQL")
	q.Set("FORMAT", "csv")
	q.Set("QUERY", fmt.Sprintf(queryADQL, ra, dec, radius/60))

	resp, err := c.get(ctx, c.config.TapURL+"?"+q.Encode())
	if err != nil {
		c.recorder.RecordError(metrics.OpArchiveQuery, metrics.ErrorTypeNetwork)
		return nil, err
	}
	defer resp.Body.Close()

	rows, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		c.recorder.RecordError(metrics.OpArchiveQuery, metrics.ErrorTypeParse)
		return nil, queryError(fmt.Errorf("failed to parse TAP response: %w", err))
	}

	observations, err := parseObservations(rows)
	if err != nil {
		c.recorder.RecordError(metrics.OpArchiveQuery, metrics.ErrorTypeParse)
		return nil, err
	}

	c.recorder.RecordOperation(metrics.OpArchiveQuery, metrics.StatusSuccess)
	c.recorder.RecordDuration(metrics.OpArchiveQuery, time.Since(start).Seconds())
	log.Info("Found Swift observations", logger.Int("count", len(observations)))
	return observations, nil
}

// parseObservations reads obsid and start_time (MJD) columns, keeping the
// earliest start per observation ID
func parseObservations(rows [][]string) ([]Observation, error) {
	if len(rows) == 0 {
		return nil, queryError(fmt.Errorf("empty TAP response"))
	}
	header := rows[0]
	idCol := slices.IndexFunc(header, func(h string) bool { return strings.EqualFold(strings.TrimSpace(h), "obsid") })
	timeCol := slices.IndexFunc(header, func(h string) bool { return strings.EqualFold(strings.TrimSpace(h), "start_time") })
	if idCol < 0 || timeCol < 0 {
		return nil, queryError(fmt.Errorf("TAP response lacks obsid or start_time columns: %v", header))
	}

	byID := make(map[string]Observation)
	for _, row := range rows[1:] {
		if len(row) <= max(idCol, timeCol) {
			continue
		}
		id := strings.TrimSpace(row[idCol])
		if !observation.IsObservationID(id) {
			GetLogger().Warn("Ignoring malformed observation ID", logger.String("obsid", id))
			continue
		}
		mjd, err := strconv.ParseFloat(strings.TrimSpace(row[timeCol]), 64)
		if err != nil {
			return nil, queryError(fmt.Errorf("invalid start_time %q for %s: %w", row[timeCol], id, err))
		}
		obs := Observation{ObsID: id, StartTime: julian.JDToTime(mjd + mjdOffset).UTC()}
		if prev, ok := byID[id]; !ok || obs.StartTime.Before(prev.StartTime) {
			byID[id] = obs
		}
	}

	observations := make([]Observation, 0, len(byID))
	for _, obs := range byID {
		observations = append(observations, obs)
	}
	slices.SortFunc(observations, func(a, b Observation) int { return strings.Compare(a.ObsID, b.ObsID) })
	return observations, nil
}

func queryError(err error) error {
	return errors.New(err).
		Component("archive").
		Category(errors.CategoryArchive).
		Build()
}
