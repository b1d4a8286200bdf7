package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/fireweather-etl/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Region overlap policies.
const (
	OverlapAllow = "allow"
	OverlapWarn  = "warn"
	OverlapError = "error"
)

// Config holds all run settings, populated from environment variables.
type Config struct {
	ArchivePath         string
	ArchiveOutputPath   string
	ArchiveLayout       string
	ArchiveRowGroupSize int

	// BootstrapDate, when set, allows starting from an empty archive whose
	// last archived day is this date.
	BootstrapDate *time.Time

	RasterDir        string
	ForestMaskPath   string
	RegionsPath      string
	RegionIDProperty string
	OverlapPolicy    string

	AggregateWorkers int
	Location         *time.Location

	MetricsTextfile string
	LogLevel        string
	LogFormat       string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	archivePath := sharedcfg.EnvOrDefault("ARCHIVE_PATH", "fireweather_archive_warnregions.parquet")

	rowGroupSize, err := parseIntRange("ARCHIVE_ROW_GROUP_SIZE", 143*64, 1, 1<<24)
	if err != nil {
		return nil, err
	}

	workers, err := parseIntRange("AGGREGATE_WORKERS", 1, 1, 64)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(sharedcfg.EnvOrDefault("TIMEZONE", "Europe/Zurich"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	var bootstrap *time.Time
	if s := os.Getenv("ARCHIVE_BOOTSTRAP_DATE"); s != "" {
		d, err := domain.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("invalid ARCHIVE_BOOTSTRAP_DATE: %w", err)
		}
		bootstrap = &d
	}

	cfg := &Config{
		ArchivePath:         archivePath,
		ArchiveOutputPath:   sharedcfg.EnvOrDefault("ARCHIVE_OUTPUT_PATH", archivePath),
		ArchiveLayout:       sharedcfg.EnvOrDefault("ARCHIVE_LAYOUT", "wide"),
		ArchiveRowGroupSize: rowGroupSize,
		BootstrapDate:       bootstrap,
		RasterDir:           sharedcfg.EnvOrDefault("RASTER_DIR", "output"),
		ForestMaskPath:      sharedcfg.EnvOrDefault("FOREST_MASK_PATH", "data/waldmaske_mit_lichtenstein.tif"),
		RegionsPath:         sharedcfg.EnvOrDefault("REGIONS_PATH", "data/gefahren-waldbrand_warnung_2056.geojson"),
		RegionIDProperty:    sharedcfg.EnvOrDefault("REGION_ID_PROPERTY", "region_id"),
		OverlapPolicy:       sharedcfg.EnvOrDefault("REGION_OVERLAP_POLICY", OverlapAllow),
		AggregateWorkers:    workers,
		Location:            loc,
		MetricsTextfile:     os.Getenv("METRICS_TEXTFILE"),
		LogLevel:            sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
	}

	switch cfg.ArchiveLayout {
	case "wide", "long":
	default:
		return nil, fmt.Errorf("invalid ARCHIVE_LAYOUT %q: must be wide or long", cfg.ArchiveLayout)
	}
	switch cfg.OverlapPolicy {
	case OverlapAllow, OverlapWarn, OverlapError:
	default:
		return nil, fmt.Errorf("invalid REGION_OVERLAP_POLICY %q: must be allow, warn or error", cfg.OverlapPolicy)
	}
	if cfg.RegionIDProperty == "" {
		return nil, errors.New("REGION_ID_PROPERTY is required")
	}

	return cfg, nil
}

func parseIntRange(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be %d-%d", key, lo, hi)
	}
	return n, nil
}
