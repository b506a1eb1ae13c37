package netlist

import (
	"fmt"
	"slices"

	"layout-tracer/internal/boolop"
	"layout-tracer/internal/connectivity"
	"layout-tracer/internal/layout"
	"layout-tracer/internal/shape"
	"layout-tracer/pkg/geometry"
)

// Connector receives the connect directives of a connectivity model.
type Connector interface {
	Connect(a, b layout.LayerID)
}

// Region is the materialised geometry of a logical layer.
type Region struct {
	Layer  layout.LayerID
	Symbol string
	Shapes []shape.TracedShape
}

// Configure materialises every logical layer of model over the whole of
// cell and issues one Connect call per edge of the logical graph.
func Configure(model *connectivity.Model, source layout.Source, ops boolop.Processor, cell layout.CellID, conn Connector) (map[layout.LayerID]*Region, error) {
	heap := shape.NewHeap()
	regions := make(map[layout.LayerID]*Region)

	for _, id := range model.LogicalLayers() {
		r, err := materialise(model, source, ops, cell, heap, id)
		if err != nil {
			return nil, err
		}
		regions[id] = r
	}

	model.EachLogConnection(func(a, b layout.LayerID) {
		conn.Connect(a, b)
	})
	return regions, nil
}

func materialise(model *connectivity.Model, source layout.Source, ops boolop.Processor, cell layout.CellID, heap *shape.Heap, id layout.LayerID) (*Region, error) {
	r := &Region{Layer: id, Symbol: model.Symbol(id)}
	expr := model.Expression(id)
	if expr == nil {
		return r, nil
	}

	var layers []layout.LayerID
	for it := model.OriginalLayers(id).Iterator(); it.HasNext(); {
		layers = append(layers, layout.LayerID(it.Next()))
	}
	var inputs []shape.TracedShape
	for hit, err := range source.Query(cell, layers, geometry.Polygon{}) {
		if err != nil {
			return nil, fmt.Errorf("materialise %s: %w", r.Symbol, err)
		}
		inputs = append(inputs, shape.TracedShape{Cell: hit.Cell, Layer: hit.Layer, Trans: hit.Trans, Shape: hit.Shape})
	}
	slices.SortFunc(inputs, shape.Compare)

	out, err := expr.ComputeResults(model, connectivity.Evaluation{
		Target: id,
		Cell:   cell,
		Inputs: inputs,
		Heap:   heap,
		Ops:    ops,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("materialise %s: %w", r.Symbol, err)
	}
	for _, p := range out {
		r.Shapes = append(r.Shapes, p.Shape)
	}
	return r, nil
}
