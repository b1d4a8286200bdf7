package domain

import (
	"fmt"
	"time"
)

// DateLayout is the archive's date encoding, also used in raster file names.
const DateLayout = "20060102"

// isoDateLayout is accepted on input for archives written by other tools.
const isoDateLayout = "2006-01-02"

// FormatDate encodes a day in archive form.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate decodes an archive date. Both "20060102" and "2006-01-02" are
// accepted; the result is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{DateLayout, isoDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q: expected YYYYMMDD", s)
}

// CivilDate truncates t to its calendar day, expressed as midnight UTC.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateRange returns every calendar day after last up to and including today.
// It is empty when last is not before today.
func DateRange(last, today time.Time) []time.Time {
	last, today = CivilDate(last), CivilDate(today)
	if !last.Before(today) {
		return nil
	}

	var days []time.Time
	for d := last.AddDate(0, 0, 1); !d.After(today); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
