package domain

import (
	"math/rand/v2"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unitGrid is a north-up grid with 1x1 cells whose top-left corner is (0, h).
func unitGrid(h int) GeoTransform {
	return GeoTransform{OriginX: 0, PixelWidth: 1, OriginY: float64(h), PixelHeight: -1}
}

func square(x0, y0, x1, y1 float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}}
}

func setPixels(m Mask) [][2]int {
	var out [][2]int
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			if m.Get(col, row) {
				out = append(out, [2]int{col, row})
			}
		}
	}
	return out
}

func TestRasterizeAllTouched_AlignedSquare(t *testing.T) {
	m, err := RasterizeAllTouched(square(0, 2, 2, 4), unitGrid(4), 4, 4)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}, setPixels(m))
}

func TestRasterizeAllTouched_SmallPolygonInsideOneCell(t *testing.T) {
	tiny := orb.MultiPolygon{{{{2.2, 1.2}, {2.4, 1.2}, {2.3, 1.4}, {2.2, 1.2}}}}
	m, err := RasterizeAllTouched(tiny, unitGrid(4), 4, 4)
	require.NoError(t, err)
	// y=1.3 lies in row 2 (rows count down from y=4).
	assert.Equal(t, [][2]int{{2, 2}}, setPixels(m))
}

func TestRasterizeAllTouched_TouchesPartialCells(t *testing.T) {
	// Covers less than half of cells in column 2, whose centers stay outside.
	m, err := RasterizeAllTouched(square(0.5, 0.5, 2.3, 3.5), unitGrid(4), 4, 4)
	require.NoError(t, err)
	for row := 0; row < 4; row++ {
		assert.True(t, m.Get(0, row), "row %d col 0", row)
		assert.True(t, m.Get(1, row), "row %d col 1", row)
		assert.True(t, m.Get(2, row), "row %d col 2", row)
		assert.False(t, m.Get(3, row), "row %d col 3", row)
	}
}

func TestRasterizeAllTouched_HoleStaysEmpty(t *testing.T) {
	donut := orb.MultiPolygon{{
		{{0, 0}, {6, 0}, {6, 6}, {0, 6}, {0, 0}},
		{{2, 2}, {2, 4}, {4, 4}, {4, 2}, {2, 2}},
	}}
	m, err := RasterizeAllTouched(donut, unitGrid(6), 6, 6)
	require.NoError(t, err)

	assert.Equal(t, 32, m.Count())
	assert.False(t, m.Get(2, 2))
	assert.False(t, m.Get(3, 3))
	assert.True(t, m.Get(1, 1))
}

func TestRasterizeAllTouched_ClipsToGrid(t *testing.T) {
	m, err := RasterizeAllTouched(square(-10, -10, 10, 10), unitGrid(4), 4, 4)
	require.NoError(t, err)
	assert.Equal(t, 16, m.Count())
}

func TestRasterizeAllTouched_RejectsRotation(t *testing.T) {
	tr := unitGrid(4)
	tr.RotX = 0.1
	_, err := RasterizeAllTouched(square(0, 0, 1, 1), tr, 4, 4)
	require.ErrorIs(t, err, ErrRotatedGrid)
}

func TestRasterizeAllTouched_CoversEveryContainedCenter(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	tr := unitGrid(32)

	for trial := 0; trial < 20; trial++ {
		ring := orb.Ring{}
		for i := 0; i < 6; i++ {
			ring = append(ring, orb.Point{rng.Float64() * 32, rng.Float64() * 32})
		}
		ring = append(ring, ring[0])
		mp := orb.MultiPolygon{{ring}}

		m, err := RasterizeAllTouched(mp, tr, 32, 32)
		require.NoError(t, err)

		for row := 0; row < 32; row++ {
			for col := 0; col < 32; col++ {
				if planar.MultiPolygonContains(mp, tr.CellCenter(col, row)) {
					require.True(t, m.Get(col, row), "trial %d: center of (%d,%d) inside but not burned", trial, col, row)
				}
			}
		}
	}
}

func TestBuildRegionMasks_SubsetOfForest(t *testing.T) {
	forest := NewRaster(4, 4, unitGrid(4))
	for i := range forest.Values {
		if i%3 != 0 {
			forest.Values[i] = 1
		}
	}
	regions := []Region{
		{ID: "north", Geometry: square(0, 2, 4, 4)},
		{ID: "south", Geometry: square(0, 0, 4, 2.5)},
		{ID: "all", Geometry: square(0, 0, 4, 4)},
	}

	masks, err := BuildRegionMasks(forest, regions)
	require.NoError(t, err)
	require.Len(t, masks, 3)

	forestMask := ForestMask(forest)
	for id, m := range masks {
		assert.True(t, m.SubsetOf(forestMask), "mask %s escapes the forest", id)
	}
	assert.Equal(t, forestMask.Count(), masks["all"].Count())
}

func TestBuildRegionMasks_DuplicateIDLastWins(t *testing.T) {
	forest := NewRaster(4, 4, unitGrid(4))
	for i := range forest.Values {
		forest.Values[i] = 1
	}

	masks, err := BuildRegionMasks(forest, []Region{
		{ID: "R1", Geometry: square(0, 0, 4, 4)},
		{ID: "R1", Geometry: square(0, 2, 2, 4)},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, masks["R1"].Count())
}

func TestForestMask_SkipsNoData(t *testing.T) {
	nodata := 255.0
	forest := NewRaster(2, 2, unitGrid(2))
	forest.Values = []float64{1, 0, 255, 1}
	forest.NoData = &nodata

	assert.Equal(t, []bool{true, false, false, true}, ForestMask(forest).Bits)
}

func TestFindOverlaps(t *testing.T) {
	a := NewMask(3, 1)
	b := NewMask(3, 1)
	c := NewMask(3, 1)
	a.Set(0, 0)
	a.Set(1, 0)
	b.Set(1, 0)
	b.Set(2, 0)
	c.Set(2, 0)

	overlaps := FindOverlaps(map[string]Mask{"a": a, "b": b, "c": c})
	assert.Equal(t, []Overlap{
		{First: "a", Second: "b", Pixels: 1},
		{First: "b", Second: "c", Pixels: 1},
	}, overlaps)

	assert.Empty(t, FindOverlaps(map[string]Mask{"a": a, "c": c}))
	assert.Nil(t, FindOverlaps(nil))
}

func TestMaskAnd_GridMismatch(t *testing.T) {
	_, err := NewMask(2, 2).And(NewMask(3, 2))
	require.ErrorIs(t, err, ErrGridMismatch)
}
