// Package geojson loads warning-region polygons from a GeoJSON feature
// collection.
package geojson

import (
	"fmt"
	"os"
	"strconv"

	"github.com/couchcryptid/fireweather-etl/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Load reads the feature collection at path and returns one region per
// feature, in file order. The region id is taken from the idProperty
// property and may be a string or a number.
func Load(path, idProperty string) ([]domain.Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read regions: %w", err)
	}
	regions, err := Parse(data, idProperty)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return regions, nil
}

// Parse decodes regions from raw GeoJSON.
func Parse(data []byte, idProperty string) ([]domain.Region, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}

	regions := make([]domain.Region, 0, len(fc.Features))
	for i, f := range fc.Features {
		id, err := regionID(f, idProperty)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		case nil:
			return nil, fmt.Errorf("feature %d (%s): missing geometry", i, id)
		default:
			return nil, fmt.Errorf("feature %d (%s): unsupported geometry %s", i, id, g.GeoJSONType())
		}

		regions = append(regions, domain.Region{ID: id, Geometry: mp})
	}
	return regions, nil
}

func regionID(f *geojson.Feature, prop string) (string, error) {
	v, ok := f.Properties[prop]
	if !ok || v == nil {
		return "", fmt.Errorf("missing property %q", prop)
	}
	switch id := v.(type) {
	case string:
		return id, nil
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	case bool:
		return "", fmt.Errorf("property %q is a boolean", prop)
	default:
		return fmt.Sprint(id), nil
	}
}
