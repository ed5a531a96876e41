package raster

import (
	"cmp"
	"image/color"
	"math"
	"slices"
)

// FillRule selects how overlapping and nested rings are filled
type FillRule int

const (
	// NonZero fills where the winding number is not zero
	NonZero FillRule = iota
	// EvenOdd fills where an odd number of edges is crossed
	EvenOdd
)

// String returns the rule name
func (r FillRule) String() string {
	if r == EvenOdd {
		return "evenodd"
	}
	return "nonzero"
}

// ParseFillRule accepts "nonzero" or "evenodd"
func ParseFillRule(s string) (FillRule, bool) {
	switch s {
	case "nonzero", "":
		return NonZero, true
	case "evenodd":
		return EvenOdd, true
	}
	return NonZero, false
}

// horizontalEdgeThreshold is the minimum vertical extent for an edge to
// take part in scan conversion
const horizontalEdgeThreshold = 1e-12

// edge is a polygon edge in canvas pixel coordinates, oriented top-down
type edge struct {
	yTop, yBot float64
	xTop       float64
	dxdy       float64
	winding    int // +1 if the source edge pointed down, -1 if up
}

// crossing is where an edge meets the current scanline
type crossing struct {
	x       float64
	winding int
}

// Rasterizer scan-converts closed rings into solid colour without
// anti-aliasing: a pixel is painted when its centre lies inside the
// shape, so colours stay exact and adjacent shapes never bleed into each
// other. Internal buffers are reused across calls.
//
// A Rasterizer is not safe for concurrent use.
type Rasterizer struct {
	Rule FillRule

	edges     []edge
	active    []int
	crossings []crossing
}

// NewRasterizer returns a rasterizer using rule
func NewRasterizer(rule FillRule) *Rasterizer {
	return &Rasterizer{Rule: rule}
}

// Path is a set of closed rings in canvas pixel coordinates, filled
// together as one shape
type Path [][][2]float64

// Fill paints p onto cv with colour c
func (r *Rasterizer) Fill(cv *Canvas, p Path, c color.RGBA) {
	r.edges = r.edges[:0]
	yMinF, yMaxF := math.Inf(1), math.Inf(-1)

	for _, ring := range p {
		n := len(ring)
		if n < 3 {
			continue
		}
		for i := 0; i < n; i++ {
			a, b := ring[i], ring[(i+1)%n]
			r.addEdge(a, b)
		}
	}
	if len(r.edges) == 0 {
		return
	}
	for _, e := range r.edges {
		yMinF = min(yMinF, e.yTop)
		yMaxF = max(yMaxF, e.yBot)
	}

	// Scanline y samples at y+0.5
	yStart := max(int(math.Ceil(yMinF-0.5)), 0)
	yEnd := min(int(math.Ceil(yMaxF-0.5)), cv.size)
	if yStart >= yEnd {
		return
	}

	slices.SortFunc(r.edges, func(a, b edge) int {
		return cmp.Compare(a.yTop, b.yTop)
	})

	r.active = r.active[:0]
	next := 0

	for y := yStart; y < yEnd; y++ {
		yc := float64(y) + 0.5

		for next < len(r.edges) && r.edges[next].yTop <= yc {
			r.active = append(r.active, next)
			next++
		}

		r.crossings = r.crossings[:0]
		for i := 0; i < len(r.active); {
			e := &r.edges[r.active[i]]
			if e.yBot <= yc {
				r.active[i] = r.active[len(r.active)-1]
				r.active = r.active[:len(r.active)-1]
				continue
			}
			r.crossings = append(r.crossings, crossing{
				x:       e.xTop + (yc-e.yTop)*e.dxdy,
				winding: e.winding,
			})
			i++
		}
		if len(r.crossings) < 2 {
			continue
		}

		slices.SortFunc(r.crossings, func(a, b crossing) int {
			return cmp.Compare(a.x, b.x)
		})

		wind := 0
		for i := 0; i < len(r.crossings)-1; i++ {
			wind += r.crossings[i].winding
			if !r.inside(wind) {
				continue
			}
			// Pixels whose centres fall in [xa, xb)
			x0 := max(int(math.Ceil(r.crossings[i].x-0.5)), 0)
			x1 := min(int(math.Ceil(r.crossings[i+1].x-0.5)), cv.size)
			if x0 < x1 {
				cv.fillSpan(y, x0, x1, c)
			}
		}
	}
}

func (r *Rasterizer) inside(wind int) bool {
	if r.Rule == EvenOdd {
		return wind%2 != 0
	}
	return wind != 0
}

// addEdge records a non-horizontal edge with a half-open vertical span
// [yTop, yBot) so shared vertices are counted once.
func (r *Rasterizer) addEdge(a, b [2]float64) {
	dy := b[1] - a[1]
	if dy > -horizontalEdgeThreshold && dy < horizontalEdgeThreshold {
		return
	}
	winding := 1
	if dy < 0 {
		a, b = b, a
		winding = -1
	}
	r.edges = append(r.edges, edge{
		yTop:    a[1],
		yBot:    b[1],
		xTop:    a[0],
		dxdy:    (b[0] - a[0]) / (b[1] - a[1]),
		winding: winding,
	})
}
