package geometry

import (
	"encoding/binary"
	"slices"
	"strconv"
	"strings"
)

// Polygon is a simple polygon in canonical form: counter-clockwise, without
// repeated or collinear vertices, starting at its lowest-leftmost vertex.
// Two polygons describing the same outline compare equal.
type Polygon struct {
	pts []Point
}

// NewPolygon creates a polygon from its vertices and normalizes it.
func NewPolygon(points ...Point) Polygon {
	pts := make([]Point, 0, len(points))
	for _, p := range points {
		if len(pts) > 0 && pts[len(pts)-1] == p {
			continue
		}
		pts = append(pts, p)
	}
	for len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}

	// Drop collinear vertices until stable
	for changed := true; changed && len(pts) >= 3; {
		changed = false
		for i := 0; i < len(pts) && len(pts) >= 3; i++ {
			prev := pts[(i+len(pts)-1)%len(pts)]
			next := pts[(i+1)%len(pts)]
			if crossProduct(prev, pts[i], next) == 0 {
				pts = slices.Delete(pts, i, i+1)
				changed = true
				i--
			}
		}
	}
	if len(pts) < 3 {
		return Polygon{}
	}

	if signedArea2(pts) < 0 {
		slices.Reverse(pts)
	}

	lowest := 0
	for i := 1; i < len(pts); i++ {
		if pts[i].Less(pts[lowest]) {
			lowest = i
		}
	}
	rotated := make([]Point, 0, len(pts))
	rotated = append(rotated, pts[lowest:]...)
	rotated = append(rotated, pts[:lowest]...)
	return Polygon{pts: rotated}
}

// Points returns the polygon vertices. The slice must not be modified.
func (p Polygon) Points() []Point { return p.pts }

// Len returns the number of vertices.
func (p Polygon) Len() int { return len(p.pts) }

// IsEmpty reports whether the polygon has no area.
func (p Polygon) IsEmpty() bool { return len(p.pts) < 3 }

// BBox returns the bounding box.
func (p Polygon) BBox() Box { return BoundingBox(p.pts) }

// Area returns the polygon area.
func (p Polygon) Area() int64 {
	return signedArea2(p.pts) / 2
}

// IsBox reports whether the polygon is an axis-aligned rectangle.
func (p Polygon) IsBox() bool {
	if len(p.pts) != 4 {
		return false
	}
	return p.IsManhattan()
}

// IsManhattan reports whether all edges are horizontal or vertical.
func (p Polygon) IsManhattan() bool {
	for i := range p.pts {
		a, b := p.pts[i], p.pts[(i+1)%len(p.pts)]
		if a.X != b.X && a.Y != b.Y {
			return false
		}
	}
	return true
}

// Transformed returns the polygon with the transform applied.
func (p Polygon) Transformed(t Transform) Polygon {
	if t.IsIdentity() {
		return p
	}
	out := make([]Point, len(p.pts))
	for i, pt := range p.pts {
		out[i] = t.Apply(pt)
	}
	return NewPolygon(out...)
}

// Equal reports whether two polygons have the same outline.
func (p Polygon) Equal(other Polygon) bool {
	return slices.Equal(p.pts, other.pts)
}

// Compare orders polygons by vertex count, then vertex by vertex.
func (p Polygon) Compare(other Polygon) int {
	if len(p.pts) != len(other.pts) {
		if len(p.pts) < len(other.pts) {
			return -1
		}
		return 1
	}
	for i := range p.pts {
		a, b := p.pts[i], other.pts[i]
		if a == b {
			continue
		}
		if a.Less(b) {
			return -1
		}
		return 1
	}
	return 0
}

// Key returns a compact string usable as a map key for value lookups.
func (p Polygon) Key() string {
	buf := make([]byte, 0, len(p.pts)*2*binary.MaxVarintLen64)
	for _, pt := range p.pts {
		buf = binary.AppendVarint(buf, int64(pt.X))
		buf = binary.AppendVarint(buf, int64(pt.Y))
	}
	return string(buf)
}

func (p Polygon) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, pt := range p.pts {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(strconv.Itoa(pt.X))
		sb.WriteByte(',')
		sb.WriteString(strconv.Itoa(pt.Y))
	}
	sb.WriteByte(')')
	return sb.String()
}

// ContainsPoint reports whether the point is inside the polygon or on its
// boundary.
func (p Polygon) ContainsPoint(pt Point) bool {
	if len(p.pts) < 3 {
		return false
	}
	n := len(p.pts)
	for i := 0; i < n; i++ {
		if onSegment(p.pts[i], p.pts[(i+1)%n], pt) {
			return true
		}
	}
	return PointInPolygon(pt, p.pts)
}

// Touches reports whether two polygons overlap or share at least one
// boundary point.
func (p Polygon) Touches(other Polygon) bool {
	if p.IsEmpty() || other.IsEmpty() {
		return false
	}
	if !p.BBox().Touches(other.BBox()) {
		return false
	}
	if p.IsBox() && other.IsBox() {
		return true
	}

	n, m := len(p.pts), len(other.pts)
	for i := 0; i < n; i++ {
		a1, a2 := p.pts[i], p.pts[(i+1)%n]
		for j := 0; j < m; j++ {
			if segmentsTouch(a1, a2, other.pts[j], other.pts[(j+1)%m]) {
				return true
			}
		}
	}

	// No boundary contact: either disjoint or one contains the other
	return p.ContainsPoint(other.pts[0]) || other.ContainsPoint(p.pts[0])
}

// PointInPolygon tests if a point is strictly inside a polygon using ray
// casting. Points on the boundary may report either way; use
// Polygon.ContainsPoint for an inclusive test.
func PointInPolygon(p Point, polygon []Point) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := polygon[i], polygon[j]

		// Check if ray from p going right crosses edge pi-pj
		if (pi.Y > p.Y) != (pj.Y > p.Y) {
			lhs := int64(p.X-pi.X) * int64(pj.Y-pi.Y)
			rhs := int64(p.Y-pi.Y) * int64(pj.X-pi.X)
			if (pj.Y > pi.Y && lhs < rhs) || (pj.Y < pi.Y && lhs > rhs) {
				inside = !inside
			}
		}
	}

	return inside
}

// segmentsTouch reports whether the closed segments a1-a2 and b1-b2 share a point.
func segmentsTouch(a1, a2, b1, b2 Point) bool {
	d1 := sign(crossProduct(b1, b2, a1))
	d2 := sign(crossProduct(b1, b2, a2))
	d3 := sign(crossProduct(a1, a2, b1))
	d4 := sign(crossProduct(a1, a2, b2))

	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	return (d1 == 0 && onSegment(b1, b2, a1)) ||
		(d2 == 0 && onSegment(b1, b2, a2)) ||
		(d3 == 0 && onSegment(a1, a2, b1)) ||
		(d4 == 0 && onSegment(a1, a2, b2))
}

// onSegment reports whether p lies on the closed segment a-b.
func onSegment(a, b, p Point) bool {
	if crossProduct(a, b, p) != 0 {
		return false
	}
	return p.X >= min(a.X, b.X) && p.X <= max(a.X, b.X) &&
		p.Y >= min(a.Y, b.Y) && p.Y <= max(a.Y, b.Y)
}

// crossProduct computes the cross product of vectors OA and OB.
func crossProduct(o, a, b Point) int64 {
	return int64(a.X-o.X)*int64(b.Y-o.Y) - int64(a.Y-o.Y)*int64(b.X-o.X)
}

// signedArea2 returns twice the signed area (positive for counter-clockwise).
func signedArea2(pts []Point) int64 {
	var sum int64
	n := len(pts)
	for i := 0; i < n; i++ {
		a, b := pts[i], pts[(i+1)%n]
		sum += int64(a.X)*int64(b.Y) - int64(b.X)*int64(a.Y)
	}
	return sum
}

func sign(v int64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
