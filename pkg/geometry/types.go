// Package geometry provides the integer layout geometry used by the tracer.
package geometry

import "fmt"

// Point is a layout point in database units.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// NewPoint creates a new Point.
func NewPoint(x, y int) Point {
	return Point{X: x, Y: y}
}

// Add returns the sum of two points.
func (p Point) Add(other Point) Point {
	return Point{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns the difference of two points.
func (p Point) Sub(other Point) Point {
	return Point{X: p.X - other.X, Y: p.Y - other.Y}
}

// Less orders points by x, then y.
func (p Point) Less(other Point) bool {
	if p.X != other.X {
		return p.X < other.X
	}
	return p.Y < other.Y
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Box is an axis-aligned rectangle. Edges are inclusive: two boxes sharing
// an edge or a corner touch.
type Box struct {
	Left   int `json:"left"`
	Bottom int `json:"bottom"`
	Right  int `json:"right"`
	Top    int `json:"top"`
}

// NewBox creates a normalized box from two corners.
func NewBox(x1, y1, x2, y2 int) Box {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return Box{Left: x1, Bottom: y1, Right: x2, Top: y2}
}

// Width returns the horizontal extent.
func (b Box) Width() int { return b.Right - b.Left }

// Height returns the vertical extent.
func (b Box) Height() int { return b.Top - b.Bottom }

// Area returns the box area.
func (b Box) Area() int64 {
	return int64(b.Width()) * int64(b.Height())
}

// Contains returns true if the point is inside or on the box.
func (b Box) Contains(p Point) bool {
	return p.X >= b.Left && p.X <= b.Right &&
		p.Y >= b.Bottom && p.Y <= b.Top
}

// Touches returns true if the boxes overlap or share an edge or corner.
func (b Box) Touches(other Box) bool {
	return b.Left <= other.Right && other.Left <= b.Right &&
		b.Bottom <= other.Top && other.Bottom <= b.Top
}

// Overlaps returns true if the boxes share a non-empty interior.
func (b Box) Overlaps(other Box) bool {
	return b.Left < other.Right && other.Left < b.Right &&
		b.Bottom < other.Top && other.Bottom < b.Top
}

// Union returns the smallest box containing both boxes.
func (b Box) Union(other Box) Box {
	return Box{
		Left:   min(b.Left, other.Left),
		Bottom: min(b.Bottom, other.Bottom),
		Right:  max(b.Right, other.Right),
		Top:    max(b.Top, other.Top),
	}
}

// Polygon returns the box as a four-point polygon.
func (b Box) Polygon() Polygon {
	return NewPolygon(
		Point{b.Left, b.Bottom}, Point{b.Right, b.Bottom},
		Point{b.Right, b.Top}, Point{b.Left, b.Top},
	)
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d;%d,%d)", b.Left, b.Bottom, b.Right, b.Top)
}

// Transform is an orthogonal affine transformation in integer coordinates.
// [a b tx]
// [c d ty]
// The 2x2 part is restricted to rotations by multiples of 90 degrees,
// optionally mirrored, so it maps the integer grid onto itself.
type Transform struct {
	A, B, TX int
	C, D, TY int
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{A: 1, D: 1}
}

// Translation returns a translation transform.
func Translation(tx, ty int) Transform {
	return Transform{A: 1, D: 1, TX: tx, TY: ty}
}

// Rotation90 returns a counter-clockwise rotation by quarter*90 degrees.
func Rotation90(quarter int) Transform {
	switch ((quarter % 4) + 4) % 4 {
	case 1:
		return Transform{A: 0, B: -1, C: 1, D: 0}
	case 2:
		return Transform{A: -1, D: -1}
	case 3:
		return Transform{A: 0, B: 1, C: -1, D: 0}
	default:
		return Identity()
	}
}

// MirrorX returns a reflection at the x axis (y -> -y).
func MirrorX() Transform {
	return Transform{A: 1, D: -1}
}

// Apply applies the transform to a point.
func (t Transform) Apply(p Point) Point {
	return Point{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// Compose returns this transform composed with another (this * other),
// i.e. other is applied first.
func (t Transform) Compose(other Transform) Transform {
	return Transform{
		A:  t.A*other.A + t.B*other.C,
		B:  t.A*other.B + t.B*other.D,
		TX: t.A*other.TX + t.B*other.TY + t.TX,
		C:  t.C*other.A + t.D*other.C,
		D:  t.C*other.B + t.D*other.D,
		TY: t.C*other.TX + t.D*other.TY + t.TY,
	}
}

// Inverse returns the inverse transform. The 2x2 part is orthogonal, so the
// inverse is its transpose.
func (t Transform) Inverse() Transform {
	inv := Transform{A: t.A, B: t.C, C: t.B, D: t.D}
	inv.TX = -(inv.A*t.TX + inv.B*t.TY)
	inv.TY = -(inv.C*t.TX + inv.D*t.TY)
	return inv
}

// IsMirror reports whether the transform flips orientation.
func (t Transform) IsMirror() bool {
	return t.A*t.D-t.B*t.C < 0
}

// IsIdentity reports whether the transform is the identity.
func (t Transform) IsIdentity() bool {
	return t == Identity()
}

// Compare orders transforms field by field.
func (t Transform) Compare(other Transform) int {
	a := [6]int{t.A, t.B, t.C, t.D, t.TX, t.TY}
	b := [6]int{other.A, other.B, other.C, other.D, other.TX, other.TY}
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// ApplyBox transforms a box. Orthogonal transforms keep boxes axis-aligned.
func (t Transform) ApplyBox(b Box) Box {
	p1 := t.Apply(Point{b.Left, b.Bottom})
	p2 := t.Apply(Point{b.Right, b.Top})
	return NewBox(p1.X, p1.Y, p2.X, p2.Y)
}

// BoundingBox computes the axis-aligned bounding box of a set of points.
func BoundingBox(points []Point) Box {
	if len(points) == 0 {
		return Box{}
	}
	b := Box{Left: points[0].X, Bottom: points[0].Y, Right: points[0].X, Top: points[0].Y}
	for _, p := range points[1:] {
		b.Left = min(b.Left, p.X)
		b.Right = max(b.Right, p.X)
		b.Bottom = min(b.Bottom, p.Y)
		b.Top = max(b.Top, p.Y)
	}
	return b
}
