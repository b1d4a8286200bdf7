package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/fireweather-etl/internal/config"
	"github.com/couchcryptid/fireweather-etl/internal/domain"
)

// PrepareMasks rasterizes the regions onto the forest grid and applies the
// overlap policy. Duplicate region ids are logged; the last one wins.
func PrepareMasks(forest *domain.Raster, regions []domain.Region, overlapPolicy string, logger *slog.Logger) (map[string]domain.Mask, error) {
	seen := make(map[string]bool, len(regions))
	for _, r := range regions {
		if seen[r.ID] {
			logger.Warn("duplicate region id, later geometry replaces earlier", "region_id", r.ID)
		}
		seen[r.ID] = true
	}

	masks, err := domain.BuildRegionMasks(forest, regions)
	if err != nil {
		return nil, fmt.Errorf("build region masks: %w", err)
	}

	for id, m := range masks {
		if n := m.Count(); n == 0 {
			logger.Warn("region has no forest pixels, its readings will be missing", "region_id", id)
		} else {
			logger.Debug("region mask built", "region_id", id, "pixels", n)
		}
	}

	if overlapPolicy == config.OverlapAllow {
		return masks, nil
	}
	overlaps := domain.FindOverlaps(masks)
	for _, o := range overlaps {
		logger.Warn("region masks overlap", "first", o.First, "second", o.Second, "pixels", o.Pixels)
	}
	if overlapPolicy == config.OverlapError && len(overlaps) > 0 {
		return nil, fmt.Errorf("%w: %d region pairs share forest pixels", domain.ErrRegionOverlap, len(overlaps))
	}
	return masks, nil
}
