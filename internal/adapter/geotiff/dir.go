package geotiff

import (
	"context"
	"path/filepath"
	"time"

	"github.com/couchcryptid/fireweather-etl/internal/domain"
)

// Dir serves per-index daily rasters from a flat folder named
// {index}{YYYYMMDD}.tif.
type Dir struct {
	root string
}

// NewDir returns a raster source rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Path returns the file that holds index on date.
func (d *Dir) Path(index string, date time.Time) string {
	return filepath.Join(d.root, domain.RasterFileName(index, date))
}

// Raster reads the raster for index on date. A missing file yields an error
// wrapping fs.ErrNotExist.
func (d *Dir) Raster(ctx context.Context, index string, date time.Time) (*domain.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Read(d.Path(index, date))
}
