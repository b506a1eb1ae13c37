package layout

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"layout-tracer/pkg/geometry"
)

// ErrCellNotFound is returned when a query or edit names an unknown cell.
var ErrCellNotFound = errors.New("cell not found")

// Instance places a child cell inside a parent.
type Instance struct {
	Cell  CellID
	Trans geometry.Transform
}

// Cell holds per-layer shapes and child instances.
type Cell struct {
	ID        CellID
	Name      string
	shapes    map[LayerID][]*geometry.Polygon
	instances []Instance
}

// Shapes returns the shapes of the cell on a layer.
func (c *Cell) Shapes(layer LayerID) []*geometry.Polygon {
	return c.shapes[layer]
}

// Instances returns the child instances of the cell.
func (c *Cell) Instances() []Instance {
	return c.instances
}

// Layout is an in-memory hierarchical layout. It is safe for concurrent
// reads once built; edits take a write lock.
type Layout struct {
	mu    sync.RWMutex
	cells map[CellID]*Cell
	names map[string]CellID
	next  CellID
}

// New creates an empty layout.
func New() *Layout {
	return &Layout{
		cells: make(map[CellID]*Cell),
		names: make(map[string]CellID),
	}
}

// AddCell creates a new cell and returns its id. Adding a name twice
// returns the existing cell.
func (l *Layout) AddCell(name string) CellID {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id, ok := l.names[name]; ok {
		return id
	}
	id := l.next
	l.next++
	l.cells[id] = &Cell{
		ID:     id,
		Name:   name,
		shapes: make(map[LayerID][]*geometry.Polygon),
	}
	l.names[name] = id
	return id
}

// CellByName looks up a cell id by name.
func (l *Layout) CellByName(name string) (CellID, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.names[name]
	return id, ok
}

// Cell returns the cell with the given id.
func (l *Layout) Cell(id CellID) (*Cell, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.cells[id]
	return c, ok
}

// AddShape adds a polygon to a cell on a layer and returns the stored shape.
func (l *Layout) AddShape(cell CellID, layer LayerID, p geometry.Polygon) (*geometry.Polygon, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.cells[cell]
	if !ok {
		return nil, fmt.Errorf("add shape to cell %d: %w", cell, ErrCellNotFound)
	}
	shape := &p
	c.shapes[layer] = append(c.shapes[layer], shape)
	return shape, nil
}

// AddBox is a convenience wrapper around AddShape for rectangles.
func (l *Layout) AddBox(cell CellID, layer LayerID, b geometry.Box) (*geometry.Polygon, error) {
	return l.AddShape(cell, layer, b.Polygon())
}

// AddInstance places child inside parent with the given transform.
func (l *Layout) AddInstance(parent, child CellID, t geometry.Transform) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.cells[parent]
	if !ok {
		return fmt.Errorf("add instance to cell %d: %w", parent, ErrCellNotFound)
	}
	if _, ok := l.cells[child]; !ok {
		return fmt.Errorf("instantiate cell %d: %w", child, ErrCellNotFound)
	}
	p.instances = append(p.instances, Instance{Cell: child, Trans: t})
	return nil
}

// Query implements Source by walking the instance tree below cell.
func (l *Layout) Query(cell CellID, layers []LayerID, region geometry.Polygon) iter.Seq2[Hit, error] {
	return func(yield func(Hit, error) bool) {
		l.mu.RLock()
		defer l.mu.RUnlock()

		top, ok := l.cells[cell]
		if !ok {
			yield(Hit{}, fmt.Errorf("query cell %d: %w", cell, ErrCellNotFound))
			return
		}

		var regionBox geometry.Box
		everything := region.IsEmpty()
		if !everything {
			regionBox = region.BBox()
		}
		boxRegion := !everything && region.IsBox()

		var walk func(c *Cell, t geometry.Transform) bool
		walk = func(c *Cell, t geometry.Transform) bool {
			for _, layer := range layers {
				for _, s := range c.shapes[layer] {
					if !everything {
						if !t.ApplyBox(s.BBox()).Touches(regionBox) {
							continue
						}
						if !(boxRegion && s.IsBox()) && !s.Transformed(t).Touches(region) {
							continue
						}
					}
					if !yield(Hit{Shape: s, Trans: t, Cell: c.ID, Layer: layer}, nil) {
						return false
					}
				}
			}
			for _, inst := range c.instances {
				child := l.cells[inst.Cell]
				if !walk(child, t.Compose(inst.Trans)) {
					return false
				}
			}
			return true
		}
		walk(top, geometry.Identity())
	}
}

// Layers returns the sorted set of layers used anywhere in the layout.
func (l *Layout) Layers() []LayerID {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[LayerID]bool)
	var out []LayerID
	for _, c := range l.cells {
		for layer := range c.shapes {
			if !seen[layer] {
				seen[layer] = true
				out = append(out, layer)
			}
		}
	}
	slices.Sort(out)
	return out
}
