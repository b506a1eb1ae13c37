// Package connectivity holds the connection rules of a trace: logical
// layers defined as boolean expressions over layers, and the graphs that say
// which layers connect.
package connectivity

import (
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"layout-tracer/internal/boolop"
	"layout-tracer/internal/layout"
	"layout-tracer/internal/shape"
	"layout-tracer/internal/spatial"
	"layout-tracer/pkg/geometry"
)

// Resolver looks up the expression behind a logical layer.
type Resolver interface {
	Expression(layer layout.LayerID) *Expression
}

// Expression is a boolean combination of layers: either a leaf naming one
// layer or an operation on two owned sub-expressions.
type Expression struct {
	leaf  bool
	layer layout.LayerID
	op    boolop.Op
	left  *Expression
	right *Expression

	originals *roaring.Bitmap
}

// Leaf creates an expression for a single layer.
func Leaf(layer layout.LayerID) *Expression {
	return &Expression{leaf: true, layer: layer}
}

// Binary creates an expression combining left and right with op. The
// expression takes ownership of both operands.
func Binary(op boolop.Op, left, right *Expression) *Expression {
	return &Expression{op: op, left: left, right: right}
}

// Or is shorthand for Binary(boolop.Or, a, b).
func Or(a, b *Expression) *Expression { return Binary(boolop.Or, a, b) }

// And is shorthand for Binary(boolop.And, a, b).
func And(a, b *Expression) *Expression { return Binary(boolop.And, a, b) }

// Xor is shorthand for Binary(boolop.Xor, a, b).
func Xor(a, b *Expression) *Expression { return Binary(boolop.Xor, a, b) }

// AndNot is shorthand for Binary(boolop.AndNot, a, b).
func AndNot(a, b *Expression) *Expression { return Binary(boolop.AndNot, a, b) }

// IsLeaf reports whether the expression is a single layer.
func (e *Expression) IsLeaf() bool { return e.leaf }

// Layer returns the layer of a leaf.
func (e *Expression) Layer() layout.LayerID { return e.layer }

// Op returns the operation of a binary node.
func (e *Expression) Op() boolop.Op { return e.op }

// Operands returns the children of a binary node.
func (e *Expression) Operands() (*Expression, *Expression) { return e.left, e.right }

// Clone returns a deep copy without cached state.
func (e *Expression) Clone() *Expression {
	if e == nil {
		return nil
	}
	if e.leaf {
		return Leaf(e.layer)
	}
	return Binary(e.op, e.left.Clone(), e.right.Clone())
}

func (e *Expression) String() string {
	if e.leaf {
		return e.layer.String()
	}
	return fmt.Sprintf("(%s %s %s)", e.left, e.op, e.right)
}

// CollectOriginalLayers returns the original layers the expression reads,
// resolving logical leaves through r. Leaves naming unregistered layers, or
// closing a cycle, contribute nothing. The result is cached once every
// logical leaf resolves; callers must not modify it.
func (e *Expression) CollectOriginalLayers(r Resolver) *roaring.Bitmap {
	bm, _ := e.collect(r, nil)
	return bm
}

// collect reports whether every logical leaf below e was resolved. stack
// holds the logical layers being expanded.
func (e *Expression) collect(r Resolver, stack []layout.LayerID) (*roaring.Bitmap, bool) {
	if e.originals != nil {
		return e.originals, true
	}
	bm := roaring.New()
	resolved := true
	if e.leaf {
		if e.layer.IsOriginal() {
			bm.Add(uint32(e.layer))
		} else if sub := r.Expression(e.layer); sub != nil && !slices.Contains(stack, e.layer) {
			var sbm *roaring.Bitmap
			sbm, resolved = sub.collect(r, append(stack, e.layer))
			bm.Or(sbm)
		} else {
			resolved = false
		}
	} else {
		lbm, lok := e.left.collect(r, stack)
		rbm, rok := e.right.collect(r, stack)
		bm.Or(lbm)
		bm.Or(rbm)
		resolved = lok && rok
	}
	if resolved {
		e.originals = bm
	}
	return bm, resolved
}

// Evaluation carries the inputs of one ComputeResults call.
type Evaluation struct {
	// Target is the layer the results are assigned to.
	Target layout.LayerID
	// Cell owns the synthetic fragments.
	Cell layout.CellID
	// Mask bounds the result when non-nil.
	Mask []geometry.Polygon
	// Inputs are the candidate shapes, sorted with shape.Compare.
	Inputs []shape.TracedShape
	// Seeds pairs each result with the seeds it touches. Without seeds
	// every result is emitted once with a zero seed.
	Seeds *spatial.Index[shape.TracedShape]
	Heap  *shape.Heap
	Ops   boolop.Processor
}

// ComputeResults evaluates the expression on ev.Inputs and appends the result
// to out, split back onto the input shapes: inputs lying wholly inside the
// result are emitted unchanged, the rest of the result is emitted as clipped
// fragments. Both are reassigned to ev.Target. Touching results form one
// region and are paired with the seeds of the whole region.
func (e *Expression) ComputeResults(r Resolver, ev Evaluation, out []shape.Pair) ([]shape.Pair, error) {
	result, consulted, err := e.evaluate(r, ev, nil)
	if err != nil {
		return out, err
	}
	if ev.Mask != nil && len(result) > 0 {
		if result, err = ev.Ops.Boolean(result, ev.Mask, boolop.And); err != nil {
			return out, fmt.Errorf("mask %s: %w", ev.Target, err)
		}
	}
	if len(result) == 0 {
		return out, nil
	}

	seen := make(map[shape.Key]bool, len(consulted))
	var inside, partial []geometry.Polygon
	var results []shape.TracedShape
	for _, s := range consulted {
		k := s.Key()
		if seen[k] {
			continue
		}
		seen[k] = true

		poly := s.Polygon()
		if poly.IsEmpty() {
			continue
		}
		rest, err := ev.Ops.Boolean([]geometry.Polygon{poly}, result, boolop.AndNot)
		if err != nil {
			return out, fmt.Errorf("classify %s: %w", s, err)
		}
		if len(rest) > 0 {
			partial = append(partial, poly)
			continue
		}
		inside = append(inside, poly)
		results = append(results, shape.TracedShape{
			Cell:  s.Cell,
			Layer: ev.Target,
			Trans: s.Trans,
			Shape: ev.Heap.Insert(*s.Shape),
		})
	}

	if len(partial) > 0 {
		remainder := result
		if len(inside) > 0 {
			if remainder, err = ev.Ops.Boolean(result, inside, boolop.AndNot); err != nil {
				return out, fmt.Errorf("remainder %s: %w", ev.Target, err)
			}
		}
		var fragments []geometry.Polygon
		if len(remainder) > 0 {
			if fragments, err = ev.Ops.Boolean(remainder, partial, boolop.And); err != nil {
				return out, fmt.Errorf("fragments %s: %w", ev.Target, err)
			}
		}
		for _, f := range fragments {
			results = append(results, shape.TracedShape{
				Cell:      ev.Cell,
				Layer:     ev.Target,
				Trans:     geometry.Identity(),
				Shape:     ev.Heap.Insert(f),
				Synthetic: true,
			})
		}
	}
	return emit(out, ev, results), nil
}

// evaluate computes the unmasked region and the input shapes it read.
func (e *Expression) evaluate(r Resolver, ev Evaluation, stack []layout.LayerID) ([]geometry.Polygon, []shape.TracedShape, error) {
	if e.leaf {
		if !e.layer.IsOriginal() {
			sub := r.Expression(e.layer)
			if sub == nil || slices.Contains(stack, e.layer) {
				return nil, nil, nil
			}
			return sub.evaluate(r, ev, append(stack, e.layer))
		}
		shapes := layerSlice(ev.Inputs, e.layer)
		polys := make([]geometry.Polygon, 0, len(shapes))
		for _, s := range shapes {
			polys = append(polys, s.Polygon())
		}
		return polys, shapes, nil
	}

	a, ca, err := e.left.evaluate(r, ev, stack)
	if err != nil {
		return nil, nil, err
	}
	b, cb, err := e.right.evaluate(r, ev, stack)
	if err != nil {
		return nil, nil, err
	}
	res, err := ev.Ops.Boolean(a, b, e.op)
	if err != nil {
		return nil, nil, fmt.Errorf("evaluate %s: %w", e, err)
	}
	return res, append(slices.Clip(ca), cb...), nil
}

// layerSlice returns the contiguous run of shapes on layer.
func layerSlice(sorted []shape.TracedShape, layer layout.LayerID) []shape.TracedShape {
	lo, _ := slices.BinarySearchFunc(sorted, layer, func(s shape.TracedShape, l layout.LayerID) int {
		if s.Layer < l {
			return -1
		}
		return 1
	})
	hi, _ := slices.BinarySearchFunc(sorted, layer, func(s shape.TracedShape, l layout.LayerID) int {
		if s.Layer <= l {
			return -1
		}
		return 1
	})
	return sorted[lo:hi]
}

// emit appends the results to out. Results that touch form one connected
// region, so every member of a region is paired with each seed touching
// any member of it.
func emit(out []shape.Pair, ev Evaluation, results []shape.TracedShape) []shape.Pair {
	if ev.Seeds == nil {
		for _, s := range results {
			out = append(out, shape.Pair{Shape: s})
		}
		return out
	}

	region := regions(results)
	seeds := make(map[int][]shape.TracedShape)
	for i, s := range results {
		poly := s.Polygon()
		for _, seed := range ev.Seeds.Touching(poly.BBox()) {
			if !seed.Polygon().Touches(poly) {
				continue
			}
			r := region[i]
			if !slices.ContainsFunc(seeds[r], seed.Equal) {
				seeds[r] = append(seeds[r], seed)
			}
		}
	}
	for i, s := range results {
		for _, seed := range seeds[region[i]] {
			out = append(out, shape.Pair{Shape: s, Seed: seed})
		}
	}
	return out
}

// regions labels each shape with the connected region it belongs to.
// Shapes sharing an edge or a corner are connected.
func regions(shapes []shape.TracedShape) []int {
	parent := make([]int, len(shapes))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	polys := make([]geometry.Polygon, len(shapes))
	ix := spatial.New[int](len(shapes))
	for i, s := range shapes {
		polys[i] = s.Polygon()
		ix.Insert(polys[i].BBox(), i)
	}
	for i, p := range polys {
		for _, j := range ix.Touching(p.BBox()) {
			if j <= i || !p.Touches(polys[j]) {
				continue
			}
			if a, b := find(i), find(j); a != b {
				parent[b] = a
			}
		}
	}

	out := make([]int, len(shapes))
	for i := range out {
		out[i] = find(i)
	}
	return out
}
