// Package shape provides the traced-shape value type and the heap that owns
// synthetic polygons created while tracing.
package shape

import (
	"cmp"
	"fmt"

	"layout-tracer/internal/layout"
	"layout-tracer/pkg/geometry"
)

// TracedShape is one shape known to a trace: a polygon of a cell placed with
// a transform on a layer. Synthetic shapes are seeds and boolean fragments
// that do not exist in the layout.
type TracedShape struct {
	Cell      layout.CellID
	Layer     layout.LayerID
	Trans     geometry.Transform
	Shape     *geometry.Polygon
	Synthetic bool
}

// Key is the comparable identity of a TracedShape. Geometry is compared by
// value, so two shapes with equal outlines share a key.
type Key struct {
	Layer     layout.LayerID
	Geometry  string
	Trans     geometry.Transform
	Cell      layout.CellID
	Synthetic bool
}

// Key returns the map key for the shape.
func (s TracedShape) Key() Key {
	k := Key{Layer: s.Layer, Trans: s.Trans, Cell: s.Cell, Synthetic: s.Synthetic}
	if s.Shape != nil {
		k.Geometry = s.Shape.Key()
	}
	return k
}

// IsZero reports whether the shape is unset.
func (s TracedShape) IsZero() bool {
	return s.Shape == nil
}

// Polygon returns the shape in the coordinates of the traced top cell.
func (s TracedShape) Polygon() geometry.Polygon {
	if s.Shape == nil {
		return geometry.Polygon{}
	}
	return s.Shape.Transformed(s.Trans)
}

// BBox returns the bounding box in top cell coordinates.
func (s TracedShape) BBox() geometry.Box {
	if s.Shape == nil {
		return geometry.Box{}
	}
	return s.Trans.ApplyBox(s.Shape.BBox())
}

// Equal reports value equality.
func (s TracedShape) Equal(other TracedShape) bool {
	return Compare(s, other) == 0
}

func (s TracedShape) String() string {
	kind := ""
	if s.Synthetic {
		kind = "*"
	}
	return fmt.Sprintf("%s%s@%d%s", kind, s.Layer, s.Cell, s.Polygon())
}

// Compare defines the total order of traced shapes: layer first, then
// geometry, transform, cell and the synthetic flag. Runs of equal layer are
// contiguous in any sorted collection.
func Compare(a, b TracedShape) int {
	if c := cmp.Compare(a.Layer, b.Layer); c != 0 {
		return c
	}
	if c := comparePolygons(a.Shape, b.Shape); c != 0 {
		return c
	}
	if c := a.Trans.Compare(b.Trans); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Cell, b.Cell); c != 0 {
		return c
	}
	switch {
	case a.Synthetic == b.Synthetic:
		return 0
	case !a.Synthetic:
		return -1
	default:
		return 1
	}
}

func comparePolygons(a, b *geometry.Polygon) int {
	switch {
	case a == b:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Compare(*b)
	}
}

// Pair is a discovered shape together with the shape that discovered it.
type Pair struct {
	Shape TracedShape
	Seed  TracedShape
}

// ComparePairs orders pairs by shape, then by seed.
func ComparePairs(a, b Pair) int {
	if c := Compare(a.Shape, b.Shape); c != 0 {
		return c
	}
	return Compare(a.Seed, b.Seed)
}
