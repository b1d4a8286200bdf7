// Command fireweather brings the fire-weather archive up to date: it
// aggregates every day's index rasters into per-region forest means and
// rewrites the Parquet archive.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/couchcryptid/fireweather-etl/internal/adapter/geojson"
	"github.com/couchcryptid/fireweather-etl/internal/adapter/geotiff"
	"github.com/couchcryptid/fireweather-etl/internal/adapter/parquet"
	"github.com/couchcryptid/fireweather-etl/internal/config"
	"github.com/couchcryptid/fireweather-etl/internal/observability"
	"github.com/couchcryptid/fireweather-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, logger, metrics)

	if cfg.MetricsTextfile != "" {
		if werr := metrics.WriteTextfile(cfg.MetricsTextfile); werr != nil {
			logger.Error("write metrics textfile", "path", cfg.MetricsTextfile, "error", werr)
		}
	}
	if err != nil {
		logger.Error("archive update failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	forest, err := geotiff.Read(cfg.ForestMaskPath)
	if err != nil {
		return err
	}
	logger.Info("forest mask loaded", "path", cfg.ForestMaskPath, "width", forest.Width, "height", forest.Height)

	regions, err := geojson.Load(cfg.RegionsPath, cfg.RegionIDProperty)
	if err != nil {
		return err
	}
	logger.Info("regions loaded", "path", cfg.RegionsPath, "regions", len(regions))

	masks, err := pipeline.PrepareMasks(forest, regions, cfg.OverlapPolicy, logger)
	if err != nil {
		return err
	}

	aggregator := pipeline.NewAggregator(geotiff.NewDir(cfg.RasterDir), masks, logger, metrics)
	store := parquet.NewStore(cfg.ArchivePath, cfg.ArchiveOutputPath, parquet.Layout(cfg.ArchiveLayout), cfg.ArchiveRowGroupSize)

	p := pipeline.New(aggregator, store, logger, metrics, pipeline.Options{
		Location:      cfg.Location,
		Workers:       cfg.AggregateWorkers,
		BootstrapDate: cfg.BootstrapDate,
	})
	_, err = p.Run(ctx)
	return err
}
