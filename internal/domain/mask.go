package domain

import (
	"math"
	"slices"
	"sort"

	"github.com/paulmach/orb"
)

// snapEpsilon absorbs floating point noise when map coordinates fall on
// pixel edges.
const snapEpsilon = 1e-9

// BuildRegionMasks burns every region onto the forest grid with all-touched
// semantics and keeps only forested pixels. A region id seen twice keeps the
// mask of its last occurrence.
func BuildRegionMasks(forest *Raster, regions []Region) (map[string]Mask, error) {
	forestMask := ForestMask(forest)

	masks := make(map[string]Mask, len(regions))
	for _, region := range regions {
		touched, err := RasterizeAllTouched(region.Geometry, forest.Transform, forest.Width, forest.Height)
		if err != nil {
			return nil, err
		}
		mask, err := touched.And(forestMask)
		if err != nil {
			return nil, err
		}
		masks[region.ID] = mask
	}
	return masks, nil
}

// RasterizeAllTouched marks every pixel whose cell the geometry touches: cells
// whose center lies inside the polygon and cells crossed by any ring edge.
// Cells that only share an edge or a corner with the geometry are not touched.
func RasterizeAllTouched(mp orb.MultiPolygon, t GeoTransform, width, height int) (Mask, error) {
	if t.Rotated() {
		return Mask{}, ErrRotatedGrid
	}

	m := NewMask(width, height)
	for _, poly := range mp {
		rings := make([][]pixelPoint, 0, len(poly))
		for _, ring := range poly {
			rings = append(rings, toPixelRing(ring, t))
		}
		burnInterior(m, rings)
		for _, ring := range rings {
			burnRing(m, ring)
		}
	}
	return m, nil
}

type pixelPoint struct {
	col, row float64
}

func toPixelRing(ring orb.Ring, t GeoTransform) []pixelPoint {
	out := make([]pixelPoint, len(ring))
	for i, p := range ring {
		c, r := t.ToPixel(p)
		out[i] = pixelPoint{col: snap(c), row: snap(r)}
	}
	return out
}

func snap(v float64) float64 {
	if r := math.Round(v); math.Abs(v-r) < snapEpsilon {
		return r
	}
	return v
}

// burnInterior fills pixels whose centers are inside the polygon, using an
// even-odd scanline over all rings so holes stay empty.
func burnInterior(m Mask, rings [][]pixelPoint) {
	minRow, maxRow := math.Inf(1), math.Inf(-1)
	for _, ring := range rings {
		for _, p := range ring {
			minRow = math.Min(minRow, p.row)
			maxRow = math.Max(maxRow, p.row)
		}
	}
	if math.IsInf(minRow, 0) {
		return
	}

	first := max(int(math.Floor(minRow)), 0)
	last := min(int(math.Ceil(maxRow)), m.Height-1)

	var xs []float64
	for row := first; row <= last; row++ {
		yc := float64(row) + 0.5
		xs = xs[:0]
		for _, ring := range rings {
			n := len(ring)
			for i := 0; i < n; i++ {
				a, b := ring[i], ring[(i+1)%n]
				if (a.row <= yc) == (b.row <= yc) {
					continue
				}
				xs = append(xs, a.col+(yc-a.row)*(b.col-a.col)/(b.row-a.row))
			}
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			lo := int(math.Ceil(xs[i] - 0.5))
			hi := int(math.Ceil(xs[i+1]-0.5)) - 1
			for col := max(lo, 0); col <= min(hi, m.Width-1); col++ {
				m.Set(col, row)
			}
		}
	}
}

func burnRing(m Mask, ring []pixelPoint) {
	n := len(ring)
	for i := 0; i < n; i++ {
		burnSegment(m, ring[i], ring[(i+1)%n])
	}
}

// burnSegment marks the cells whose interior the segment a-b passes through.
func burnSegment(m Mask, a, b pixelPoint) {
	if a.row > b.row {
		a, b = b, a
	}
	if a.row == b.row {
		if a.row == math.Floor(a.row) {
			return
		}
		burnSpan(m, int(math.Floor(a.row)), math.Min(a.col, b.col), math.Max(a.col, b.col))
		return
	}

	first := max(int(math.Floor(a.row)), 0)
	last := min(int(math.Ceil(b.row))-1, m.Height-1)
	slope := (b.col - a.col) / (b.row - a.row)
	for row := first; row <= last; row++ {
		ya := math.Max(a.row, float64(row))
		yb := math.Min(b.row, float64(row+1))
		xa := snap(a.col + (ya-a.row)*slope)
		xb := snap(a.col + (yb-a.row)*slope)
		burnSpan(m, row, math.Min(xa, xb), math.Max(xa, xb))
	}
}

func burnSpan(m Mask, row int, xa, xb float64) {
	if xa == xb {
		if xa == math.Floor(xa) {
			return
		}
		m.Set(int(math.Floor(xa)), row)
		return
	}
	lo := int(math.Floor(xa))
	hi := int(math.Ceil(xb)) - 1
	for col := max(lo, 0); col <= min(hi, m.Width-1); col++ {
		m.Set(col, row)
	}
}

// Overlap counts pixels claimed by a region that an earlier region (in id
// order) already claimed.
type Overlap struct {
	First  string
	Second string
	Pixels int
}

// FindOverlaps reports region pairs whose masks share pixels. Each shared
// pixel is attributed to its first claimant in ascending id order.
func FindOverlaps(masks map[string]Mask) []Overlap {
	ids := make([]string, 0, len(masks))
	for id := range masks {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, CompareRegionIDs)
	if len(ids) == 0 {
		return nil
	}

	owner := make([]int, len(masks[ids[0]].Bits))
	for i := range owner {
		owner[i] = -1
	}

	counts := make(map[[2]int]int)
	for k, id := range ids {
		for i, set := range masks[id].Bits {
			if !set || i >= len(owner) {
				continue
			}
			if owner[i] >= 0 {
				counts[[2]int{owner[i], k}]++
				continue
			}
			owner[i] = k
		}
	}

	overlaps := make([]Overlap, 0, len(counts))
	for pair, n := range counts {
		overlaps = append(overlaps, Overlap{First: ids[pair[0]], Second: ids[pair[1]], Pixels: n})
	}
	slices.SortFunc(overlaps, func(a, b Overlap) int {
		if c := CompareRegionIDs(a.First, b.First); c != 0 {
			return c
		}
		return CompareRegionIDs(a.Second, b.Second)
	})
	return overlaps
}
