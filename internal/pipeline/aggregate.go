package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"time"

	"github.com/couchcryptid/fireweather-etl/internal/domain"
	"github.com/couchcryptid/fireweather-etl/internal/observability"
)

// RasterSource yields the raster of one index on one day. A missing raster
// is reported as an error wrapping fs.ErrNotExist.
type RasterSource interface {
	Raster(ctx context.Context, index string, date time.Time) (*domain.Raster, error)
}

// Aggregator reduces each day's index rasters to per-region masked means.
type Aggregator struct {
	source    RasterSource
	masks     map[string]domain.Mask
	regionIDs []string
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewAggregator creates an Aggregator over the given region masks.
func NewAggregator(source RasterSource, masks map[string]domain.Mask, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	ids := make([]string, 0, len(masks))
	for id := range masks {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, domain.CompareRegionIDs)

	return &Aggregator{
		source:    source,
		masks:     masks,
		regionIDs: ids,
		logger:    logger,
		metrics:   metrics,
	}
}

// AggregateDate returns one reading per (region, index) for date, ordered by
// region id then index column order. A missing raster makes that index
// missing for every region; any other read failure aborts.
func (a *Aggregator) AggregateDate(ctx context.Context, date time.Time) ([]domain.Reading, error) {
	start := time.Now()
	day := domain.FormatDate(date)

	// values[r][i] is region r's mean for index i.
	values := make([][domain.NumIndices]*float64, len(a.regionIDs))

	for i, index := range domain.IndexNames {
		raster, err := a.source.Raster(ctx, index, date)
		if errors.Is(err, fs.ErrNotExist) {
			a.logger.Warn("raster not found", "date", day, "index", index, "error", err)
			a.metrics.RastersMissing.WithLabelValues(index).Inc()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s for %s: %w", index, day, err)
		}
		a.metrics.RastersRead.Inc()

		for r, id := range a.regionIDs {
			mean, err := domain.MaskedMean(raster, a.masks[id])
			if err != nil {
				return nil, fmt.Errorf("%s %s region %s: %w", index, day, id, err)
			}
			values[r][i] = mean
		}
	}

	out := make([]domain.Reading, 0, len(a.regionIDs)*domain.NumIndices)
	missing := 0
	for r, id := range a.regionIDs {
		for i, index := range domain.IndexNames {
			if values[r][i] == nil {
				missing++
			}
			out = append(out, domain.Reading{Date: day, RegionID: id, Index: index, Value: values[r][i]})
		}
	}

	a.metrics.ReadingsProduced.Add(float64(len(out)))
	a.metrics.ReadingsMissing.Add(float64(missing))
	a.metrics.DatesProcessed.Inc()
	a.metrics.DateDuration.Observe(time.Since(start).Seconds())
	a.logger.Info("date aggregated", "date", day, "regions", len(a.regionIDs), "missing", missing)
	return out, nil
}
