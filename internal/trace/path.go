package trace

import (
	"slices"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"layout-tracer/internal/shape"
)

// reconstruct returns a shortest chain of adjacent shapes from start to
// stop, or nil when the adjacency graph does not connect them. Edges have
// uniform weight, so the search runs breadth first from the stop.
func (t *Tracer) reconstruct(start, stop shape.TracedShape) []shape.TracedShape {
	from, ok := t.found[stop.Key()]
	if !ok {
		return nil
	}
	to, ok := t.found[start.Key()]
	if !ok {
		return nil
	}

	shortest := path.DijkstraFrom(simple.Node(from), t.graph)
	nodes, _ := shortest.To(to)
	if len(nodes) == 0 {
		return nil
	}

	out := make([]shape.TracedShape, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, t.shapes[n.ID()])
	}
	slices.Reverse(out)
	return out
}
