package synth

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/fogleman/delaunay"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerate is returned when hotspots are too few or collinear to span
// an area.
var ErrDegenerate = errors.New("hotspots do not span an area")

// Gradient estimation stops after gradientMaxIter sweeps or once no vertex
// gradient moves by more than gradientTol (relative).
const (
	gradientMaxIter = 400
	gradientTol     = 1e-6
)

// baryEps lets points on a shared edge land in either triangle.
const baryEps = 1e-10

// triangle is one Delaunay triangle prepared for evaluation.
type triangle struct {
	v [3]int
	// inv maps p - v[2] to the first two barycentric coordinates.
	inv [4]float64
	ok  bool
	// g shapes the cross-edge derivative on the edge opposite each vertex.
	g [3]float64
}

// CloughTocher is a piecewise cubic, C1-smooth interpolant over the Delaunay
// triangulation of scattered points. Each triangle is split at its centroid
// into three cubic Bezier patches; vertex gradients are estimated by
// minimising a global curvature measure over the triangulation edges.
type CloughTocher struct {
	points    []orb.Point
	values    []float64
	grads     [][2]float64
	triangles []triangle
}

// NewCloughTocher triangulates points and fits the interpolant. Points must be
// distinct.
func NewCloughTocher(points []orb.Point, values []float64) (*CloughTocher, error) {
	if len(points) != len(values) {
		return nil, fmt.Errorf("interpolate: %d points, %d values", len(points), len(values))
	}
	if len(points) < 3 || collinear(points) {
		return nil, ErrDegenerate
	}

	pts := make([]delaunay.Point, len(points))
	for i, p := range points {
		pts[i] = delaunay.Point{X: p[0], Y: p[1]}
	}
	tri, err := delaunay.Triangulate(pts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	if len(tri.Triangles) == 0 {
		return nil, ErrDegenerate
	}

	ct := &CloughTocher{points: points, values: values}
	n := len(tri.Triangles) / 3
	ct.triangles = make([]triangle, n)
	adjacent := make([]map[int]bool, len(points))
	for i := range adjacent {
		adjacent[i] = map[int]bool{}
	}

	for t := 0; t < n; t++ {
		v := [3]int{tri.Triangles[3*t], tri.Triangles[3*t+1], tri.Triangles[3*t+2]}
		ct.triangles[t] = ct.prepare(v)
		for k := 0; k < 3; k++ {
			a, b := v[k], v[(k+1)%3]
			adjacent[a][b] = true
			adjacent[b][a] = true
		}
	}

	// The neighbour opposite vertex k shares the halfedge from vertex k+1 to
	// vertex k+2.
	for t := range ct.triangles {
		for k := 0; k < 3; k++ {
			ct.triangles[t].g[k] = -0.5
			opp := tri.Halfedges[3*t+(k+1)%3]
			if opp < 0 || !ct.triangles[t].ok {
				continue
			}
			ct.triangles[t].g[k] = ct.edgeFactor(t, k, opp/3)
		}
	}

	neighbours := make([][]int, len(points))
	for i, adj := range adjacent {
		neighbours[i] = slices.Sorted(maps.Keys(adj))
	}
	ct.estimateGradients(neighbours)
	return ct, nil
}

func (ct *CloughTocher) prepare(v [3]int) triangle {
	a, b, c := ct.points[v[0]], ct.points[v[1]], ct.points[v[2]]
	t := mat.NewDense(2, 2, []float64{
		a[0] - c[0], b[0] - c[0],
		a[1] - c[1], b[1] - c[1],
	})
	var inv mat.Dense
	if err := inv.Inverse(t); err != nil {
		return triangle{v: v}
	}
	return triangle{
		v:   v,
		inv: [4]float64{inv.At(0, 0), inv.At(0, 1), inv.At(1, 0), inv.At(1, 1)},
		ok:  true,
	}
}

func (ct *CloughTocher) barycentric(t int, p orb.Point) [3]float64 {
	tr := ct.triangles[t]
	c := ct.points[tr.v[2]]
	dx, dy := p[0]-c[0], p[1]-c[1]
	b0 := tr.inv[0]*dx + tr.inv[1]*dy
	b1 := tr.inv[2]*dx + tr.inv[3]*dy
	return [3]float64{b0, b1, 1 - b0 - b1}
}

// edgeFactor expresses the neighbour's centroid in local barycentric
// coordinates so the normal derivative varies linearly along the shared edge.
func (ct *CloughTocher) edgeFactor(t, k, neighbour int) float64 {
	nv := ct.triangles[neighbour].v
	var centroid orb.Point
	for _, i := range nv {
		centroid[0] += ct.points[i][0] / 3
		centroid[1] += ct.points[i][1] / 3
	}
	c := ct.barycentric(t, centroid)
	switch k {
	case 0:
		return (2*c[2] + c[1] - 1) / (2 - 3*c[2] - 3*c[1])
	case 1:
		return (2*c[0] + c[2] - 1) / (2 - 3*c[0] - 3*c[2])
	default:
		return (2*c[1] + c[0] - 1) / (2 - 3*c[1] - 3*c[0])
	}
}

// estimateGradients runs Gauss-Seidel sweeps, solving for each vertex the
// gradient that minimises the cubic curvature along its incident edges.
func (ct *CloughTocher) estimateGradients(adjacent [][]int) {
	ct.grads = make([][2]float64, len(ct.points))
	for iter := 0; iter < gradientMaxIter; iter++ {
		var worst float64
		for i, p := range ct.points {
			var q00, q01, q11, s0, s1 float64
			for _, j := range adjacent[i] {
				ex, ey := ct.points[j][0]-p[0], ct.points[j][1]-p[1]
				l := planar.Distance(p, ct.points[j])
				l3 := l * l * l
				df := -ex*ct.grads[j][0] - ey*ct.grads[j][1]
				r := 6*(ct.values[i]-ct.values[j]) - 2*df
				q00 += 4 * ex * ex / l3
				q01 += 4 * ex * ey / l3
				q11 += 4 * ey * ey / l3
				s0 += r * ex / l3
				s1 += r * ey / l3
			}
			det := q00*q11 - q01*q01
			if det == 0 {
				continue
			}
			r0 := (q11*s0 - q01*s1) / det
			r1 := (-q01*s0 + q00*s1) / det

			change := math.Max(math.Abs(ct.grads[i][0]+r0), math.Abs(ct.grads[i][1]+r1))
			change /= math.Max(1, math.Max(math.Abs(r0), math.Abs(r1)))
			worst = math.Max(worst, change)
			ct.grads[i] = [2]float64{-r0, -r1}
		}
		if worst < gradientTol {
			return
		}
	}
}

// At evaluates the interpolant at p. It reports false outside the convex
// hull of the points.
func (ct *CloughTocher) At(p orb.Point) (float64, bool) {
	for t, tr := range ct.triangles {
		if !tr.ok {
			continue
		}
		if b := ct.barycentric(t, p); inside(b) {
			return ct.eval(t, b), true
		}
	}
	return 0, false
}

// Grid evaluates the interpolant at every (col, row) of a width x height
// grid, row-major. Cells outside the hull get fill.
func (ct *CloughTocher) Grid(width, height int, fill float64) []float64 {
	out := make([]float64, width*height)
	done := make([]bool, width*height)
	for i := range out {
		out[i] = fill
	}

	for t, tr := range ct.triangles {
		if !tr.ok {
			continue
		}
		bound := orb.MultiPoint{ct.points[tr.v[0]], ct.points[tr.v[1]], ct.points[tr.v[2]]}.Bound()
		c0 := max(int(math.Ceil(bound.Min[0]-baryEps)), 0)
		c1 := min(int(math.Floor(bound.Max[0]+baryEps)), width-1)
		r0 := max(int(math.Ceil(bound.Min[1]-baryEps)), 0)
		r1 := min(int(math.Floor(bound.Max[1]+baryEps)), height-1)

		for row := r0; row <= r1; row++ {
			for col := c0; col <= c1; col++ {
				i := row*width + col
				if done[i] {
					continue
				}
				b := ct.barycentric(t, orb.Point{float64(col), float64(row)})
				if !inside(b) {
					continue
				}
				out[i] = ct.eval(t, b)
				done[i] = true
			}
		}
	}
	return out
}

func inside(b [3]float64) bool {
	return b[0] >= -baryEps && b[1] >= -baryEps && b[2] >= -baryEps
}

// eval evaluates the Clough-Tocher patch of triangle t at barycentric b.
func (ct *CloughTocher) eval(t int, b [3]float64) float64 {
	tr := ct.triangles[t]
	p1, p2, p3 := ct.points[tr.v[0]], ct.points[tr.v[1]], ct.points[tr.v[2]]
	f1, f2, f3 := ct.values[tr.v[0]], ct.values[tr.v[1]], ct.values[tr.v[2]]
	g1, g2, g3 := ct.grads[tr.v[0]], ct.grads[tr.v[1]], ct.grads[tr.v[2]]

	dot := func(g [2]float64, from, to orb.Point) float64 {
		return g[0]*(to[0]-from[0]) + g[1]*(to[1]-from[1])
	}
	df12, df21 := dot(g1, p1, p2), -dot(g2, p1, p2)
	df23, df32 := dot(g2, p2, p3), -dot(g3, p2, p3)
	df31, df13 := dot(g3, p3, p1), -dot(g1, p3, p1)

	// Bezier ordinates, cijkl weighting vertex 1, 2, 3 and the centroid.
	c3000 := f1
	c2100 := (df12 + 3*c3000) / 3
	c2010 := (df13 + 3*c3000) / 3
	c0300 := f2
	c1200 := (df21 + 3*c0300) / 3
	c0210 := (df23 + 3*c0300) / 3
	c0030 := f3
	c1020 := (df31 + 3*c0030) / 3
	c0120 := (df32 + 3*c0030) / 3

	c2001 := (c2100 + c2010 + c3000) / 3
	c0201 := (c1200 + c0300 + c0210) / 3
	c0021 := (c1020 + c0120 + c0030) / 3

	g := tr.g
	c0111 := (g[0]*(-c0300+3*c0210-3*c0120+c0030) + (-c0300 + 2*c0210 - c0120 + c0021 + c0201)) / 2
	c1011 := (g[1]*(-c0030+3*c1020-3*c2010+c3000) + (-c0030 + 2*c1020 - c2010 + c2001 + c0021)) / 2
	c1101 := (g[2]*(-c3000+3*c2100-3*c1200+c0300) + (-c3000 + 2*c2100 - c1200 + c2001 + c0201)) / 2

	c1002 := (c1101 + c1011 + c2001) / 3
	c0102 := (c1101 + c0111 + c0201) / 3
	c0012 := (c1011 + c0111 + c0021) / 3
	c0003 := (c1002 + c0102 + c0012) / 3

	m := min(b[0], b[1], b[2])
	b1, b2, b3, b4 := b[0]-m, b[1]-m, b[2]-m, 3*m

	switch m {
	case b[0]:
		return b2*b2*b2*c0300 + 3*b2*b2*b3*c0210 + 3*b2*b3*b3*c0120 + b3*b3*b3*c0030 +
			3*b2*b2*b4*c0201 + 6*b2*b3*b4*c0111 + 3*b3*b3*b4*c0021 +
			3*b2*b4*b4*c0102 + 3*b3*b4*b4*c0012 + b4*b4*b4*c0003
	case b[1]:
		return b1*b1*b1*c3000 + 3*b1*b1*b3*c2010 + 3*b1*b3*b3*c1020 + b3*b3*b3*c0030 +
			3*b1*b1*b4*c2001 + 6*b1*b3*b4*c1011 + 3*b3*b3*b4*c0021 +
			3*b1*b4*b4*c1002 + 3*b3*b4*b4*c0012 + b4*b4*b4*c0003
	default:
		return b1*b1*b1*c3000 + 3*b1*b1*b2*c2100 + 3*b1*b2*b2*c1200 + b2*b2*b2*c0300 +
			3*b1*b1*b4*c2001 + 6*b1*b2*b4*c1101 + 3*b2*b2*b4*c0201 +
			3*b1*b4*b4*c1002 + 3*b2*b4*b4*c0102 + b4*b4*b4*c0003
	}
}

func collinear(points []orb.Point) bool {
	a := points[0]
	far := a
	for _, p := range points[1:] {
		if planar.DistanceSquared(a, p) > planar.DistanceSquared(a, far) {
			far = p
		}
	}
	for _, p := range points {
		cross := (far[0]-a[0])*(p[1]-a[1]) - (far[1]-a[1])*(p[0]-a[0])
		if math.Abs(cross) > 1e-9 {
			return false
		}
	}
	return true
}
