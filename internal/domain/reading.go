package domain

import (
	"cmp"
	"strconv"
	"time"

	"github.com/paulmach/orb"
)

// Reading is the aggregated value of one index for one region on one day.
// A nil Value marks missing data.
type Reading struct {
	Date     string   `json:"date"`
	RegionID string   `json:"region_id"`
	Index    string   `json:"index_name"`
	Value    *float64 `json:"value"`
}

// ReadingKey is the archive uniqueness key of a reading.
type ReadingKey struct {
	Date     string
	RegionID string
	Index    string
}

// Key returns the reading's uniqueness key.
func (r Reading) Key() ReadingKey {
	return ReadingKey{Date: r.Date, RegionID: r.RegionID, Index: r.Index}
}

// Missing reports whether the reading carries no value.
func (r Reading) Missing() bool {
	return r.Value == nil
}

// WideRow is one archive row in wide layout: all indices of one region on one
// day, in IndexNames order.
type WideRow struct {
	Date     string
	RegionID string
	Values   [NumIndices]*float64
}

// CompareRegionIDs orders region ids numerically when both are integers, so
// "2" sorts before "10". Integer ids sort before any other id; the rest
// compare as strings.
func CompareRegionIDs(a, b string) int {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		if c := cmp.Compare(x, y); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return cmp.Compare(a, b)
}

// Region is a warning region polygon as loaded from the region definitions.
type Region struct {
	ID       string
	Geometry orb.MultiPolygon
}

// Day is a convenience wrapper returning the parsed date of a reading.
func (r Reading) Day() (time.Time, error) {
	return ParseDate(r.Date)
}

// Float returns a pointer to v, for building readings in code and tests.
func Float(v float64) *float64 {
	return &v
}
