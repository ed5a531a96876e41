package geometry

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// ErrDegenerate is returned when a ring cannot yield an interior point
var ErrDegenerate = errors.New("degenerate ring")

// Polygon is one ring of a feature in raster space (see tiling.ToRasterSpace).
// A multi-part record produces one Polygon per part, all sharing FeatureID.
type Polygon struct {
	FeatureID int
	Ring      orb.Ring
}

// Segment is a finite line segment from A to B
type Segment struct {
	A, B orb.Point
}

// IntersectionKind classifies the relation of two segments
type IntersectionKind int

const (
	// Coincident segments lie on the same infinite line
	Coincident IntersectionKind = iota
	// Parallel segments never meet
	Parallel
	// Intersecting segments cross within both finite extents
	Intersecting
	// NonIntersecting segments would only meet on their extensions
	NonIntersecting
)

// String returns the kind name
func (k IntersectionKind) String() string {
	switch k {
	case Coincident:
		return "coincident"
	case Parallel:
		return "parallel"
	case Intersecting:
		return "intersecting"
	default:
		return "non-intersecting"
	}
}

// Intersect classifies segments a and b. The returned point is only
// meaningful for Intersecting and is computed along a.
func Intersect(a, b Segment) (IntersectionKind, orb.Point) {
	ax1, ay1 := a.A[0], a.A[1]
	ax2, ay2 := a.B[0], a.B[1]
	bx1, by1 := b.A[0], b.A[1]
	bx2, by2 := b.B[0], b.B[1]

	uaNum := (bx2-bx1)*(ay1-by1) - (by2-by1)*(ax1-bx1)
	ubNum := (ax2-ax1)*(ay1-by1) - (ay2-ay1)*(ax1-bx1)
	den := (by2-by1)*(ax2-ax1) - (bx2-bx1)*(ay2-ay1)

	if den == 0 {
		if uaNum == 0 && ubNum == 0 {
			return Coincident, orb.Point{}
		}
		return Parallel, orb.Point{}
	}

	ua := uaNum / den
	ub := ubNum / den
	if ua < 0 || ua > 1 || ub < 0 || ub > 1 {
		return NonIntersecting, orb.Point{}
	}

	return Intersecting, orb.Point{ax1 + ua*(ax2-ax1), ay1 + ua*(ay2-ay1)}
}

// crossing is a probe hit ordered by distance from the probe origin
type crossing struct {
	dist float64
	p    orb.Point
}

// vertexTolerance is the relative distance under which two probe hits are
// treated as the same boundary point (the probe passed through a vertex).
const vertexTolerance = 1e-9

// InteriorPoint returns a point strictly inside a simple ring.
//
// A probe is cast from a point well outside the ring's bounding box
// through the midpoint of each edge in turn. The first two boundary
// crossings along the probe enclose an interior stretch; its midpoint is
// returned. Probes that run along an edge, cross fewer than two edges, or
// whose first crossing is a vertex are skipped in favour of the next edge.
// Hits at equal distance keep their edge order.
func InteriorPoint(ring orb.Ring) (orb.Point, error) {
	verts := openRing(ring)
	if len(verts) < 3 {
		return orb.Point{}, fmt.Errorf("%d vertices: %w", len(verts), ErrDegenerate)
	}

	b := orb.MultiPoint(verts).Bound()
	diag2 := math.Hypot(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]) * 2
	if diag2 == 0 {
		return orb.Point{}, fmt.Errorf("zero extent: %w", ErrDegenerate)
	}
	p0 := orb.Point{b.Min[0] - diag2, b.Min[1] - diag2}
	tol := diag2 * vertexTolerance

	n := len(verts)
	hits := make([]crossing, 0, 8)

	for e := 0; e < n; e++ {
		a, c := verts[e], verts[(e+1)%n]
		m := orb.Point{(a[0] + c[0]) / 2, (a[1] + c[1]) / 2}
		p1 := orb.Point{m[0] + (m[0] - p0[0]), m[1] + (m[1] - p0[1])}
		probe := Segment{A: p0, B: p1}

		hits = hits[:0]
		alongEdge := false
		for i := 0; i < n; i++ {
			edge := Segment{A: verts[(i+1)%n], B: verts[i]}
			kind, x := Intersect(edge, probe)
			if kind == Coincident {
				alongEdge = true
				break
			}
			if kind == Intersecting {
				hits = append(hits, crossing{
					dist: math.Hypot(p0[0]-x[0], p0[1]-x[1]),
					p:    x,
				})
			}
		}
		if alongEdge || len(hits) < 2 {
			continue
		}

		sort.SliceStable(hits, func(i, j int) bool {
			return hits[i].dist < hits[j].dist
		})
		if hits[1].dist-hits[0].dist <= tol {
			continue
		}

		first, second := hits[0].p, hits[1].p
		return orb.Point{(first[0] + second[0]) / 2, (first[1] + second[1]) / 2}, nil
	}

	return orb.Point{}, fmt.Errorf("no probe crossed the ring twice: %w", ErrDegenerate)
}

// Contains reports whether pt lies inside ring using the even-odd rule.
// Points on the boundary may report either way.
func Contains(ring orb.Ring, pt orb.Point) bool {
	verts := openRing(ring)
	n := len(verts)
	if n < 3 {
		return false
	}
	inside := false
	x, y := pt[0], pt[1]
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := verts[i][0], verts[i][1]
		xj, yj := verts[j][0], verts[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// openRing drops the closing vertex of an explicitly closed ring
func openRing(ring orb.Ring) []orb.Point {
	n := len(ring)
	if n > 1 && ring[0] == ring[n-1] {
		return ring[:n-1]
	}
	return ring
}
