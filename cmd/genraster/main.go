// Command genraster writes synthetic daily index rasters for local runs and
// tests. Every raster shares the grid and georeferencing of a template
// GeoTIFF, usually the forest mask.
//
// Usage:
//
//	go run ./cmd/genraster \
//	  -template data/waldmaske_mit_lichtenstein.tif \
//	  -out output \
//	  -start 20240101 -days 7 -seed 42
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/fireweather-etl/internal/adapter/geotiff"
	"github.com/couchcryptid/fireweather-etl/internal/domain"
	"github.com/couchcryptid/fireweather-etl/internal/synth"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	template := flag.String("template", "data/waldmaske_mit_lichtenstein.tif", "GeoTIFF whose grid the rasters copy")
	outDir := flag.String("out", "output", "directory to write {index}{YYYYMMDD}.tif files into")
	start := flag.String("start", "", "first day to generate, YYYYMMDD (default today)")
	days := flag.Int("days", 1, "number of consecutive days to generate")
	seed := flag.Uint64("seed", 0, "random seed, 0 for a time-based seed")
	clean := flag.Bool("clean", true, "remove existing .tif files from -out first")
	flag.Parse()

	if *days < 1 {
		flag.Usage()
		return fmt.Errorf("-days must be at least 1")
	}

	first := domain.Today(time.Local)
	if *start != "" {
		d, err := domain.ParseDate(*start)
		if err != nil {
			return fmt.Errorf("-start: %w", err)
		}
		first = d
	}

	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}

	tmpl, err := geotiff.Read(*template)
	if err != nil {
		return fmt.Errorf("read template: %w", err)
	}
	log.Printf("template %s: %dx%d", *template, tmpl.Width, tmpl.Height)

	catalog, err := synth.LoadCatalog()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if *clean {
		n, err := removeTIFFs(*outDir)
		if err != nil {
			return err
		}
		log.Printf("removed %d existing rasters from %s", n, *outDir)
	}

	gen := synth.NewGenerator(*seed, catalog)
	dir := geotiff.NewDir(*outDir)
	written := 0
	for d := 0; d < *days; d++ {
		date := first.AddDate(0, 0, d)
		for _, index := range domain.IndexNames {
			r, err := gen.Raster(index, tmpl)
			if err != nil {
				return fmt.Errorf("%s %s: %w", index, domain.FormatDate(date), err)
			}
			if err := geotiff.Write(dir.Path(index, date), r, geotiff.DefaultOptions); err != nil {
				return err
			}
			written++
		}
		log.Printf("%s: %d rasters", domain.FormatDate(date), domain.NumIndices)
	}

	log.Printf("wrote %d rasters to %s (seed %d)", written, *outDir, *seed)
	return nil
}

func removeTIFFs(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.tif"))
	if err != nil {
		return 0, err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return 0, fmt.Errorf("remove %s: %w", m, err)
		}
	}
	return len(matches), nil
}
