package synth

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/couchcryptid/fireweather-etl/internal/domain"
	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/stat"
)

// Hotspot counts are drawn uniformly from [minHotspots, maxHotspots).
const (
	minHotspots = 10
	maxHotspots = 30
)

// Generator renders synthetic index rasters. It is not safe for concurrent
// use.
type Generator struct {
	src     rand.Source
	rng     *rand.Rand
	catalog Catalog
}

// NewGenerator returns a generator whose output is fully determined by seed.
func NewGenerator(seed uint64, catalog Catalog) *Generator {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Generator{src: src, rng: rand.New(src), catalog: catalog}
}

// Hotspots picks distinct pixel positions, as (col, row) points.
func (g *Generator) Hotspots(width, height int) []orb.Point {
	n := minHotspots + g.rng.IntN(maxHotspots-minHotspots)
	seen := make(map[orb.Point]bool, n)
	points := make([]orb.Point, 0, n)
	for i := 0; i < n; i++ {
		p := orb.Point{float64(g.rng.IntN(width)), float64(g.rng.IntN(height))}
		if seen[p] {
			continue
		}
		seen[p] = true
		points = append(points, p)
	}
	return points
}

// Field renders one index over a width x height grid, row-major.
func (g *Generator) Field(index string, width, height int) ([]float64, error) {
	dist, ok := g.catalog[index]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownIndex, index)
	}
	s, err := dist.sampler(g.src)
	if err != nil {
		return nil, err
	}

	points := g.Hotspots(width, height)
	values := make([]float64, len(points))
	for i := range values {
		values[i] = dist.Clip(s.Rand())
	}
	fill := stat.Mean(values, nil)

	var grid []float64
	ct, err := NewCloughTocher(points, values)
	switch {
	case err == nil:
		grid = ct.Grid(width, height, fill)
	case errors.Is(err, ErrDegenerate):
		grid = make([]float64, width*height)
		for i := range grid {
			grid[i] = fill
		}
	default:
		return nil, err
	}

	out := make([]float64, width*height)
	for i, v := range grid {
		out[i] = dist.Clip(domain.RoundTenth(dist.Clip(v)))
	}
	return out, nil
}

// Raster renders index on the grid of template, keeping its georeferencing.
func (g *Generator) Raster(index string, template *domain.Raster) (*domain.Raster, error) {
	values, err := g.Field(index, template.Width, template.Height)
	if err != nil {
		return nil, err
	}
	r := domain.NewRaster(template.Width, template.Height, template.Transform)
	r.Values = values
	r.GeoRef = template.GeoRef
	return r, nil
}
