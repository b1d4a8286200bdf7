package domain

import (
	"fmt"
	"time"
)

// IndexNames lists the fire-weather indices in archive column order.
var IndexNames = [NumIndices]string{
	"temperature",
	"bui",
	"dc",
	"dmc",
	"dsr",
	"ffmc",
	"fwi",
	"gfmc",
	"isi",
	"mixr",
	"precipitation",
	"radiation",
	"relative_humidity",
	"sdmc",
	"t_msl",
	"wind_speed",
}

// NumIndices is the number of fire-weather indices rendered per day.
const NumIndices = 16

var indexPositions = func() map[string]int {
	m := make(map[string]int, NumIndices)
	for i, name := range IndexNames {
		m[name] = i
	}
	return m
}()

// IndexPosition returns the column position of an index name.
func IndexPosition(name string) (int, error) {
	pos, ok := indexPositions[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownIndex, name)
	}
	return pos, nil
}

// IsIndex reports whether name is one of the known fire-weather indices.
func IsIndex(name string) bool {
	_, ok := indexPositions[name]
	return ok
}

// RasterFileName returns the file name of an index raster for a day,
// e.g. "fwi20240825.tif".
func RasterFileName(index string, date time.Time) string {
	return index + FormatDate(date) + ".tif"
}
