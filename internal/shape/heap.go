package shape

import "layout-tracer/pkg/geometry"

// Heap owns the synthetic polygons of one trace and hands out one stable
// handle per distinct outline.
type Heap struct {
	polys map[string]*geometry.Polygon
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{polys: make(map[string]*geometry.Polygon)}
}

// Insert returns the handle for p, storing a copy on first sight.
func (h *Heap) Insert(p geometry.Polygon) *geometry.Polygon {
	key := p.Key()
	if existing, ok := h.polys[key]; ok {
		return existing
	}
	owned := geometry.NewPolygon(p.Points()...)
	h.polys[key] = &owned
	return &owned
}

// Len returns the number of stored polygons.
func (h *Heap) Len() int {
	return len(h.polys)
}

// Clear releases all stored polygons. Handles returned earlier are no
// longer tracked and will not be handed out again.
func (h *Heap) Clear() {
	clear(h.polys)
}
