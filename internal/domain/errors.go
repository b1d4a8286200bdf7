package domain

import "errors"

var (
	// ErrArchiveNotFound is returned when the archive file does not exist.
	ErrArchiveNotFound = errors.New("archive not found")

	// ErrGridMismatch is returned when a raster does not share the mask grid.
	ErrGridMismatch = errors.New("raster grid does not match mask grid")

	// ErrUnknownIndex is returned for index names outside IndexNames.
	ErrUnknownIndex = errors.New("unknown fire-weather index")

	// ErrRegionOverlap is returned when overlapping regions are rejected.
	ErrRegionOverlap = errors.New("region masks overlap")

	// ErrRotatedGrid is returned for geotransforms with rotation terms.
	ErrRotatedGrid = errors.New("rotated grids are not supported")
)
