package boolop

import (
	"fmt"
	"slices"

	"layout-tracer/pkg/geometry"
)

// Grid evaluates booleans on Manhattan polygons by splitting the plane at
// every vertex coordinate and deciding membership per grid cell.
//
// Results are returned as rectangles in a canonical decomposition: maximal
// horizontal runs per row, stacked vertically while the run stays the same,
// ordered by bottom then left edge. Equal regions therefore produce equal
// slices no matter which inputs produced them.
type Grid struct{}

var _ Processor = Grid{}

// Boolean implements Processor.
func (Grid) Boolean(a, b []geometry.Polygon, op Op) ([]geometry.Polygon, error) {
	g, err := newGrid(a, b)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, nil
	}
	wa := g.winding(a)
	wb := g.winding(b)
	in := make([]bool, len(wa))
	for i := range in {
		in[i] = op.Apply(wa[i] > 0, wb[i] > 0)
	}
	return g.rectangles(in), nil
}

// Merge implements Processor. The grid always returns rectangles, so
// minCoherence has no effect.
func (g Grid) Merge(in []geometry.Polygon, minCoherence bool) ([]geometry.Polygon, error) {
	return g.Boolean(in, nil, Or)
}

type grid struct {
	xs, ys []int
}

func (g *grid) cols() int { return len(g.xs) - 1 }
func (g *grid) rows() int { return len(g.ys) - 1 }

func newGrid(sets ...[]geometry.Polygon) (*grid, error) {
	var xs, ys []int
	for _, set := range sets {
		for _, p := range set {
			if p.IsEmpty() {
				continue
			}
			if !p.IsManhattan() {
				return nil, fmt.Errorf("boolean on %s: %w", p, ErrNonManhattan)
			}
			for _, pt := range p.Points() {
				xs = append(xs, pt.X)
				ys = append(ys, pt.Y)
			}
		}
	}
	slices.Sort(xs)
	slices.Sort(ys)
	xs = slices.Compact(xs)
	ys = slices.Compact(ys)
	if len(xs) < 2 || len(ys) < 2 {
		return nil, nil
	}
	return &grid{xs: xs, ys: ys}, nil
}

// winding returns the number of polygons of set covering each cell,
// row-major. Polygons are counter-clockwise, so scanning left to right the
// count rises at downward edges and falls at upward ones.
func (g *grid) winding(set []geometry.Polygon) []int32 {
	nx, ny := g.cols(), g.rows()
	w := make([]int32, nx*ny)
	if len(set) == 0 {
		return w
	}
	delta := make([]int32, (nx+1)*ny)
	for _, p := range set {
		pts := p.Points()
		for i := range pts {
			a, b := pts[i], pts[(i+1)%len(pts)]
			if a.X != b.X || a.Y == b.Y {
				continue
			}
			col, _ := slices.BinarySearch(g.xs, a.X)
			lo, _ := slices.BinarySearch(g.ys, min(a.Y, b.Y))
			hi, _ := slices.BinarySearch(g.ys, max(a.Y, b.Y))
			d := int32(1)
			if b.Y > a.Y {
				d = -1
			}
			for row := lo; row < hi; row++ {
				delta[row*(nx+1)+col] += d
			}
		}
	}
	for row := 0; row < ny; row++ {
		var acc int32
		for col := 0; col < nx; col++ {
			acc += delta[row*(nx+1)+col]
			w[row*nx+col] = acc
		}
	}
	return w
}

// rectangles converts cell membership into the canonical rectangle set.
func (g *grid) rectangles(in []bool) []geometry.Polygon {
	nx, ny := g.cols(), g.rows()
	type run struct{ x0, x1 int }

	var boxes []geometry.Box
	open := make(map[run]int)
	for row := 0; row < ny; row++ {
		next := make(map[run]int)
		for col := 0; col < nx; {
			if !in[row*nx+col] {
				col++
				continue
			}
			start := col
			for col < nx && in[row*nx+col] {
				col++
			}
			r := run{start, col}
			if idx, ok := open[r]; ok {
				boxes[idx].Top = g.ys[row+1]
				next[r] = idx
				continue
			}
			boxes = append(boxes, geometry.Box{
				Left:   g.xs[start],
				Bottom: g.ys[row],
				Right:  g.xs[col],
				Top:    g.ys[row+1],
			})
			next[r] = len(boxes) - 1
		}
		open = next
	}

	out := make([]geometry.Polygon, len(boxes))
	for i, b := range boxes {
		out[i] = b.Polygon()
	}
	return out
}
