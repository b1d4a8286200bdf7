package parquet

import (
	"fmt"
	"strconv"

	"github.com/couchcryptid/fireweather-etl/internal/domain"
)

// regionKey is the physical type of the region_id column. Historical
// archives store integer ids as INT64; text ids are BYTE_ARRAY strings.
type regionKey interface {
	string | int64
}

// longRow is one (date, region, index) reading.
type longRow[ID regionKey] struct {
	Date      string   `parquet:"date"`
	RegionID  ID       `parquet:"region_id"`
	IndexName string   `parquet:"index_name"`
	Value     *float64 `parquet:"value,optional"`
}

// wideRow is one (date, region) row with a nullable column per index, in
// the column order of the historical archive.
type wideRow[ID regionKey] struct {
	Date             string   `parquet:"date"`
	RegionID         ID       `parquet:"region_id"`
	Temperature      *float64 `parquet:"temperature,optional"`
	BUI              *float64 `parquet:"bui,optional"`
	DC               *float64 `parquet:"dc,optional"`
	DMC              *float64 `parquet:"dmc,optional"`
	DSR              *float64 `parquet:"dsr,optional"`
	FFMC             *float64 `parquet:"ffmc,optional"`
	FWI              *float64 `parquet:"fwi,optional"`
	GFMC             *float64 `parquet:"gfmc,optional"`
	ISI              *float64 `parquet:"isi,optional"`
	MIXR             *float64 `parquet:"mixr,optional"`
	Precipitation    *float64 `parquet:"precipitation,optional"`
	Radiation        *float64 `parquet:"radiation,optional"`
	RelativeHumidity *float64 `parquet:"relative_humidity,optional"`
	SDMC             *float64 `parquet:"sdmc,optional"`
	TMSL             *float64 `parquet:"t_msl,optional"`
	WindSpeed        *float64 `parquet:"wind_speed,optional"`
}

// cells returns pointers to the index columns in domain.IndexNames order.
func (r *wideRow[ID]) cells() [domain.NumIndices]**float64 {
	return [domain.NumIndices]**float64{
		&r.Temperature, &r.BUI, &r.DC, &r.DMC, &r.DSR, &r.FFMC, &r.FWI, &r.GFMC,
		&r.ISI, &r.MIXR, &r.Precipitation, &r.Radiation, &r.RelativeHumidity,
		&r.SDMC, &r.TMSL, &r.WindSpeed,
	}
}

func toWideRow[ID regionKey](w domain.WideRow) (wideRow[ID], error) {
	id, err := parseRegionID[ID](w.RegionID)
	if err != nil {
		return wideRow[ID]{}, err
	}
	row := wideRow[ID]{Date: w.Date, RegionID: id}
	for i, c := range row.cells() {
		*c = w.Values[i]
	}
	return row, nil
}

func (r wideRow[ID]) toDomain() domain.WideRow {
	out := domain.WideRow{Date: r.Date, RegionID: formatRegionID(r.RegionID)}
	for i, c := range r.cells() {
		out.Values[i] = *c
	}
	return out
}

func toLongRow[ID regionKey](r domain.Reading) (longRow[ID], error) {
	id, err := parseRegionID[ID](r.RegionID)
	if err != nil {
		return longRow[ID]{}, err
	}
	return longRow[ID]{Date: r.Date, RegionID: id, IndexName: r.Index, Value: r.Value}, nil
}

func (r longRow[ID]) toDomain() domain.Reading {
	return domain.Reading{Date: r.Date, RegionID: formatRegionID(r.RegionID), Index: r.IndexName, Value: r.Value}
}

func formatRegionID[ID regionKey](id ID) string {
	switch v := any(id).(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return any(id).(string)
	}
}

func parseRegionID[ID regionKey](s string) (ID, error) {
	var id ID
	switch p := any(&id).(type) {
	case *int64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return id, fmt.Errorf("region id %q does not fit the integer region_id column", s)
		}
		*p = v
	case *string:
		*p = s
	}
	return id, nil
}
