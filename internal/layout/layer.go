// Package layout provides layer and cell identifiers, the hierarchical shape
// query used by the tracer, and an in-memory hierarchical layout.
package layout

import (
	"fmt"
	"iter"
	"math"

	"layout-tracer/pkg/geometry"
)

// LayerID identifies a layer. Values below LogicalBase are original layers
// of the layout; values from LogicalBase up are logical layers allocated by
// a connectivity model.
type LayerID uint32

const (
	// LogicalBase is the first logical layer id.
	LogicalBase LayerID = 1 << 24

	// NoLayer marks an unset layer id.
	NoLayer LayerID = math.MaxUint32
)

// IsOriginal reports whether the id lies in the original layer range.
func (l LayerID) IsOriginal() bool {
	return l < LogicalBase
}

func (l LayerID) String() string {
	switch {
	case l == NoLayer:
		return "none"
	case l.IsOriginal():
		return fmt.Sprintf("L%d", uint32(l))
	default:
		return fmt.Sprintf("X%d", uint32(l-LogicalBase))
	}
}

// CellID identifies a cell in a layout.
type CellID uint32

// Hit is one shape returned by a query. Shape is in the coordinates of Cell;
// Trans maps it into the coordinates of the queried cell.
type Hit struct {
	Shape *geometry.Polygon
	Trans geometry.Transform
	Cell  CellID
	Layer LayerID
}

// Polygon returns the hit's geometry in the coordinates of the queried cell.
func (h Hit) Polygon() geometry.Polygon {
	return h.Shape.Transformed(h.Trans)
}

// Source is the hierarchical shape query the tracer consumes.
//
// Query yields every shape on one of the given layers inside the subtree of
// cell that touches region. A zero region polygon matches everything. The
// sequence is finite and may be iterated more than once. Implementations
// must not mutate the layout while a trace runs.
type Source interface {
	Query(cell CellID, layers []LayerID, region geometry.Polygon) iter.Seq2[Hit, error]
}
