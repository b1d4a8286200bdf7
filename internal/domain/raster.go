package domain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// GeoTransform maps pixel (col, row) to map coordinates, in GDAL order:
//
//	x = OriginX + col*PixelWidth + row*RotX
//	y = OriginY + col*RotY + row*PixelHeight
//
// PixelHeight is negative for north-up rasters.
type GeoTransform struct {
	OriginX     float64
	PixelWidth  float64
	RotX        float64
	OriginY     float64
	RotY        float64
	PixelHeight float64
}

// Rotated reports whether the transform has non-zero rotation terms.
func (t GeoTransform) Rotated() bool {
	return t.RotX != 0 || t.RotY != 0
}

// ToPixel converts map coordinates to fractional pixel coordinates.
// Only valid for transforms without rotation.
func (t GeoTransform) ToPixel(p orb.Point) (col, row float64) {
	return (p[0] - t.OriginX) / t.PixelWidth, (p[1] - t.OriginY) / t.PixelHeight
}

// CellCenter returns the map coordinates of a pixel center.
func (t GeoTransform) CellCenter(col, row int) orb.Point {
	c, r := float64(col)+0.5, float64(row)+0.5
	return orb.Point{
		t.OriginX + c*t.PixelWidth + r*t.RotX,
		t.OriginY + c*t.RotY + r*t.PixelHeight,
	}
}

// GeoReference carries the GeoTIFF georeferencing keys of a raster verbatim,
// so derived rasters keep the coordinate reference system of their template.
type GeoReference struct {
	KeyDirectory []uint16
	DoubleParams []float64
	ASCIIParams  string
}

// Raster is one band of a gridded layer, row-major, top row first.
type Raster struct {
	Width     int
	Height    int
	Transform GeoTransform
	Values    []float64
	NoData    *float64
	GeoRef    GeoReference
}

// NewRaster allocates a zero-filled raster.
func NewRaster(width, height int, transform GeoTransform) *Raster {
	return &Raster{
		Width:     width,
		Height:    height,
		Transform: transform,
		Values:    make([]float64, width*height),
	}
}

// At returns the value of pixel (col, row).
func (r *Raster) At(col, row int) float64 {
	return r.Values[row*r.Width+col]
}

// Valid reports whether pixel i holds data, i.e. is neither NaN nor nodata.
//
// MaskedMean averages valid pixels only. This deviates from a plain mean over
// the mask, where one NaN pixel turns the region mean into NaN and nodata
// sentinels such as -9999 are averaged in as values.
func (r *Raster) Valid(i int) bool {
	v := r.Values[i]
	if math.IsNaN(v) {
		return false
	}
	return r.NoData == nil || v != *r.NoData
}

// SameGrid reports whether r and m cover the same pixel grid shape.
func (r *Raster) SameGrid(m Mask) bool {
	return r.Width == m.Width && r.Height == m.Height
}

// Mask is a boolean pixel grid aligned with a raster.
type Mask struct {
	Width  int
	Height int
	Bits   []bool
}

// NewMask allocates an empty mask.
func NewMask(width, height int) Mask {
	return Mask{Width: width, Height: height, Bits: make([]bool, width*height)}
}

// Set marks pixel (col, row), ignoring positions outside the grid.
func (m Mask) Set(col, row int) {
	if col < 0 || row < 0 || col >= m.Width || row >= m.Height {
		return
	}
	m.Bits[row*m.Width+col] = true
}

// Get reports whether pixel (col, row) is set.
func (m Mask) Get(col, row int) bool {
	return m.Bits[row*m.Width+col]
}

// Count returns the number of set pixels.
func (m Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// And returns the pixel-wise intersection of m and other.
func (m Mask) And(other Mask) (Mask, error) {
	if m.Width != other.Width || m.Height != other.Height {
		return Mask{}, fmt.Errorf("%w: %dx%d vs %dx%d", ErrGridMismatch, m.Width, m.Height, other.Width, other.Height)
	}
	out := NewMask(m.Width, m.Height)
	for i := range m.Bits {
		out.Bits[i] = m.Bits[i] && other.Bits[i]
	}
	return out, nil
}

// SubsetOf reports whether every pixel set in m is also set in other.
func (m Mask) SubsetOf(other Mask) bool {
	if m.Width != other.Width || m.Height != other.Height {
		return false
	}
	for i, b := range m.Bits {
		if b && !other.Bits[i] {
			return false
		}
	}
	return true
}

// ForestMask marks every valid, non-zero pixel of the forest raster.
func ForestMask(forest *Raster) Mask {
	m := NewMask(forest.Width, forest.Height)
	for i, v := range forest.Values {
		m.Bits[i] = forest.Valid(i) && v != 0
	}
	return m
}
