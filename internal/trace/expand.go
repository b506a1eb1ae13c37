package trace

import (
	"fmt"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/graph/simple"

	"layout-tracer/internal/connectivity"
	"layout-tracer/internal/layout"
	"layout-tracer/internal/shape"
	"layout-tracer/internal/spatial"
	"layout-tracer/pkg/geometry"
)

// deliver registers the shape of p. It returns the registered instance and
// whether the shape was new. In path mode the pair becomes an edge of the
// adjacency graph.
func (t *Tracer) deliver(p shape.Pair) (shape.TracedShape, bool) {
	t.delivered++
	k := p.Shape.Key()
	id, seen := t.found[k]
	if !seen {
		id = int64(len(t.shapes))
		t.found[k] = id
		t.shapes = append(t.shapes, p.Shape)
		if t.graph != nil {
			t.graph.AddNode(simple.Node(id))
		}
	}
	if t.graph != nil && !p.Seed.IsZero() {
		if sid, ok := t.found[p.Seed.Key()]; ok && sid != id {
			t.graph.SetEdge(simple.Edge{F: simple.Node(sid), T: simple.Node(id)})
		}
	}
	if !seen {
		t.checkBudget()
	}
	return t.shapes[id], !seen
}

func (t *Tracer) checkBudget() {
	n := len(t.shapes)
	switch {
	case t.opts.maxShapes > 0 && n > t.opts.maxShapes:
		t.opts.logger.WithCount(n).Debug("shape budget exhausted")
	case t.ctx != nil && t.ctx.Err() != nil:
		t.opts.logger.WithCount(n).Debug("trace cancelled", "error", t.ctx.Err())
	case t.opts.progress != nil && !t.opts.progress(n):
		t.opts.logger.WithCount(n).Debug("trace stopped by progress callback")
	default:
		return
	}
	t.aborted = true
}

// enqueue adds pairs to the pending queue. Pairs seen before are dropped, as
// are pairs for known shapes when no adjacency is recorded.
func (t *Tracer) enqueue(pairs []shape.Pair) {
	for _, p := range pairs {
		k := pairKey{s: p.Shape.Key(), seed: p.Seed.Key()}
		if _, ok := t.enqueued[k]; ok {
			continue
		}
		if _, ok := t.found[k.s]; ok && t.graph == nil {
			continue
		}
		t.enqueued[k] = struct{}{}
		t.pending = append(t.pending, p)
		t.sorted = false
	}
}

// popBatch removes the next batch from the end of the sorted queue. All
// pairs of a batch share a layer, and the batch grows only while its
// bounding box stays within the area ratio of the summed shape boxes.
func (t *Tracer) popBatch() []shape.Pair {
	if !t.sorted {
		slices.SortFunc(t.pending, shape.ComparePairs)
		t.sorted = true
	}
	last := len(t.pending) - 1
	layer := t.pending[last].Shape.Layer
	box := t.pending[last].Shape.BBox()
	sum := box.Area()

	i := last
	for i > 0 {
		next := t.pending[i-1].Shape
		if next.Layer != layer {
			break
		}
		b := next.BBox()
		union := box.Union(b)
		total := sum + b.Area()
		if float64(union.Area()) > t.opts.areaRatio*float64(total) {
			break
		}
		box, sum = union, total
		i--
	}

	batch := slices.Clone(t.pending[i:])
	t.pending = t.pending[:i]
	return batch
}

func (t *Tracer) expand() error {
	t.state = Expanding
	for len(t.pending) > 0 && !t.aborted {
		batch := t.popBatch()
		layer := batch[0].Shape.Layer
		t.rounds++

		var fresh []shape.TracedShape
		for _, p := range batch {
			if s, isNew := t.deliver(p); isNew {
				fresh = append(fresh, s)
			}
			if t.aborted {
				break
			}
		}
		t.opts.logger.LogRound(t.ctx, t.rounds, layer, len(batch), len(t.shapes), len(t.pending))
		t.opts.metrics.RecordRound(len(batch))
		if t.aborted || len(fresh) == 0 {
			continue
		}

		pairs, err := t.neighbours(layer, fresh)
		if err != nil {
			return err
		}
		t.enqueue(pairs)
	}
	return nil
}

// seedPass finds the first neighbours of a seed on its own layer.
func (t *Tracer) seedPass(s shape.TracedShape) ([]shape.Pair, error) {
	batch := []shape.TracedShape{s}
	if s.Layer.IsOriginal() {
		return t.queryDirect(batch, []layout.LayerID{s.Layer}, nil)
	}
	return t.evaluate(s.Layer, batch, nil)
}

// neighbours finds the shapes touching batch on every layer connected to
// layer.
func (t *Tracer) neighbours(layer layout.LayerID, batch []shape.TracedShape) ([]shape.Pair, error) {
	direct, _ := t.model.RequiresBooleans(layer)

	var out []shape.Pair
	var err error
	if !direct.IsEmpty() {
		if out, err = t.queryDirect(batch, layerList(direct), out); err != nil {
			return nil, err
		}
	}
	for _, m := range t.model.EvaluatedLayers(layer) {
		if out, err = t.evaluate(m, batch, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// queryDirect pairs every shape on layers touching a batch shape with that
// batch shape.
func (t *Tracer) queryDirect(batch []shape.TracedShape, layers []layout.LayerID, out []shape.Pair) ([]shape.Pair, error) {
	for _, s := range batch {
		hits := 0
		for hit, err := range t.source.Query(t.cell, layers, s.Polygon()) {
			if err != nil {
				return out, fmt.Errorf("query around %s: %w", s, err)
			}
			hits++
			out = append(out, shape.Pair{Shape: fromHit(hit), Seed: s})
		}
		t.opts.metrics.RecordQuery(hits)
	}
	return out, nil
}

// evaluate computes the target logical layer around batch. Candidates are
// gathered in two steps: the shapes touching the batch outline define the
// mask, and the shapes touching the mask are the expression inputs, so that
// shapes cutting into the mask are seen whole.
func (t *Tracer) evaluate(target layout.LayerID, batch []shape.TracedShape, out []shape.Pair) ([]shape.Pair, error) {
	expr := t.model.Expression(target)
	if expr == nil {
		return out, nil
	}
	begin := time.Now()
	layers := layerList(t.model.OriginalLayers(target))

	hull, err := t.ops.Merge(outlines(batch), false)
	if err != nil {
		return out, fmt.Errorf("hull for %s: %w", target, err)
	}
	near, err := t.gather(layers, hull)
	if err != nil || len(near) == 0 {
		return out, err
	}
	mask, err := t.ops.Merge(outlines(near), false)
	if err != nil {
		return out, fmt.Errorf("mask for %s: %w", target, err)
	}
	inputs, err := t.gather(layers, mask)
	if err != nil {
		return out, err
	}
	slices.SortFunc(inputs, shape.Compare)

	seeds := spatial.New[shape.TracedShape](len(batch))
	for _, s := range batch {
		seeds.Insert(s.BBox(), s)
	}

	n := len(out)
	out, err = expr.ComputeResults(t.model, connectivity.Evaluation{
		Target: target,
		Cell:   t.cell,
		Mask:   mask,
		Inputs: inputs,
		Seeds:  seeds,
		Heap:   t.heap,
		Ops:    t.ops,
	}, out)
	if err != nil {
		return out, err
	}
	t.opts.metrics.RecordEvaluation(len(out)-n, time.Since(begin))
	return out, nil
}

// gather returns the distinct shapes on layers touching any of regions.
func (t *Tracer) gather(layers []layout.LayerID, regions []geometry.Polygon) ([]shape.TracedShape, error) {
	seen := make(map[shape.Key]struct{})
	var out []shape.TracedShape
	for _, r := range regions {
		hits := 0
		for hit, err := range t.source.Query(t.cell, layers, r) {
			if err != nil {
				return nil, fmt.Errorf("gather around %s: %w", r, err)
			}
			hits++
			s := fromHit(hit)
			k := s.Key()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, s)
		}
		t.opts.metrics.RecordQuery(hits)
	}
	return out, nil
}

func fromHit(h layout.Hit) shape.TracedShape {
	return shape.TracedShape{Cell: h.Cell, Layer: h.Layer, Trans: h.Trans, Shape: h.Shape}
}

func outlines(shapes []shape.TracedShape) []geometry.Polygon {
	out := make([]geometry.Polygon, 0, len(shapes))
	for _, s := range shapes {
		out = append(out, s.Polygon())
	}
	return out
}

func layerList(bm *roaring.Bitmap) []layout.LayerID {
	out := make([]layout.LayerID, 0, bm.GetCardinality())
	for it := bm.Iterator(); it.HasNext(); {
		out = append(out, layout.LayerID(it.Next()))
	}
	return out
}
