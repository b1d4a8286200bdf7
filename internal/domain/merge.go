package domain

import (
	"cmp"
	"slices"
	"time"
)

// MergeReadings appends incoming to existing, drops duplicate keys keeping the
// last occurrence, and sorts ascending by (date, region_id, index_name).
// Merging the same batch twice yields the same result as merging it once.
func MergeReadings(existing, incoming []Reading) []Reading {
	combined := make([]Reading, 0, len(existing)+len(incoming))
	combined = append(combined, existing...)
	combined = append(combined, incoming...)

	last := make(map[ReadingKey]int, len(combined))
	for i, r := range combined {
		last[r.Key()] = i
	}

	merged := make([]Reading, 0, len(last))
	for i, r := range combined {
		if last[r.Key()] == i {
			merged = append(merged, r)
		}
	}

	SortReadings(merged)
	return merged
}

// SortReadings orders readings by (date, region_id, index_name) ascending.
func SortReadings(readings []Reading) {
	slices.SortFunc(readings, compareReadings)
}

func compareReadings(a, b Reading) int {
	if c := cmp.Compare(a.Date, b.Date); c != 0 {
		return c
	}
	if c := CompareRegionIDs(a.RegionID, b.RegionID); c != 0 {
		return c
	}
	return cmp.Compare(a.Index, b.Index)
}

// IsSorted reports whether readings are strictly ascending on their key, i.e.
// sorted and free of duplicates.
func IsSorted(readings []Reading) bool {
	for i := 1; i < len(readings); i++ {
		if compareReadings(readings[i-1], readings[i]) >= 0 {
			return false
		}
	}
	return true
}

// LatestDate returns the most recent day present in readings.
func LatestDate(readings []Reading) (time.Time, bool, error) {
	var latest string
	for _, r := range readings {
		if r.Date > latest {
			latest = r.Date
		}
	}
	if latest == "" {
		return time.Time{}, false, nil
	}
	t, err := ParseDate(latest)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// Pivot converts sorted long-form readings into wide rows keyed by
// (date, region_id). Indices absent for a (date, region) stay nil.
func Pivot(readings []Reading) ([]WideRow, error) {
	var rows []WideRow
	pos := make(map[[2]string]int)

	for _, r := range readings {
		col, err := IndexPosition(r.Index)
		if err != nil {
			return nil, err
		}
		key := [2]string{r.Date, r.RegionID}
		i, ok := pos[key]
		if !ok {
			i = len(rows)
			pos[key] = i
			rows = append(rows, WideRow{Date: r.Date, RegionID: r.RegionID})
		}
		rows[i].Values[col] = r.Value
	}

	slices.SortFunc(rows, func(a, b WideRow) int {
		if c := cmp.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		return CompareRegionIDs(a.RegionID, b.RegionID)
	})
	return rows, nil
}

// Unpivot expands wide rows into long-form readings, one per index, keeping
// nil cells as missing readings so the row survives a later Pivot.
func Unpivot(rows []WideRow) []Reading {
	readings := make([]Reading, 0, len(rows)*NumIndices)
	for _, row := range rows {
		for i, name := range IndexNames {
			readings = append(readings, Reading{
				Date:     row.Date,
				RegionID: row.RegionID,
				Index:    name,
				Value:    row.Values[i],
			})
		}
	}
	return readings
}
