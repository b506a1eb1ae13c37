// Package trace finds the shapes electrically connected to a point of a
// hierarchical layout, or the shortest chain of shapes between two points.
package trace

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/graph/simple"

	"layout-tracer/internal/boolop"
	"layout-tracer/internal/connectivity"
	"layout-tracer/internal/layout"
	"layout-tracer/internal/shape"
	"layout-tracer/pkg/geometry"
)

var (
	// ErrNotConnected is returned by TracePath when the stop point cannot be
	// reached from the start point.
	ErrNotConnected = errors.New("points are not connected")

	// ErrInvalidLayer is returned for a seed on an unknown logical layer.
	ErrInvalidLayer = errors.New("invalid seed layer")

	// ErrCellMismatch is returned when the two seeds of a path trace lie in
	// different cells.
	ErrCellMismatch = errors.New("seeds in different cells")
)

// State is the phase a Tracer is in.
type State int

const (
	Idle State = iota
	Seeding
	Expanding
	Reconstructing
	Done
	Aborted
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Seeding:
		return "seeding"
	case Expanding:
		return "expanding"
	case Reconstructing:
		return "reconstructing"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Seed is a starting point of a trace: a point on a layer in the
// coordinates of the traced cell.
type Seed struct {
	Cell  layout.CellID
	Point geometry.Point
	Layer layout.LayerID
}

func (s Seed) String() string {
	return fmt.Sprintf("%s@%s", s.Layer, s.Point)
}

// Result is the outcome of a trace.
type Result struct {
	// Shapes is the found set in shape.Compare order, seeds included.
	Shapes []shape.TracedShape
	// Path runs from the start seed to the stop seed. Only set by TracePath.
	Path []shape.TracedShape
	// Incomplete is set when the budget, the progress callback or the
	// context stopped the search early.
	Incomplete bool
	Rounds     int
	Delivered  int
}

type pairKey struct {
	s, seed shape.Key
}

// Tracer runs traces against a layout source with a fixed connectivity
// model. A Tracer is not safe for concurrent use.
type Tracer struct {
	model  *connectivity.Model
	source layout.Source
	ops    boolop.Processor
	opts   options

	state State
	ctx   context.Context
	cell  layout.CellID
	heap  *shape.Heap

	found  map[shape.Key]int64
	shapes []shape.TracedShape
	graph  *simple.UndirectedGraph

	pending  []shape.Pair
	enqueued map[pairKey]struct{}
	sorted   bool

	rounds    int
	delivered int
	aborted   bool
}

// New creates a Tracer.
func New(model *connectivity.Model, source layout.Source, ops boolop.Processor, opts ...Option) *Tracer {
	return &Tracer{
		model:  model,
		source: source,
		ops:    ops,
		opts:   applyOptions(opts),
		heap:   shape.NewHeap(),
	}
}

// State returns the phase of the last or current trace.
func (t *Tracer) State() State {
	return t.state
}

// Trace collects every shape connected to seed.
func (t *Tracer) Trace(ctx context.Context, seed Seed) (*Result, error) {
	begin := time.Now()
	res, err := t.run(ctx, seed, nil)
	t.finish(ctx, "net", res, begin, err)
	return res, err
}

// TracePath finds a shortest chain of touching shapes from start to stop.
// An incomplete search may still return a path when it reached the stop;
// otherwise the path is empty and the result incomplete.
func (t *Tracer) TracePath(ctx context.Context, start, stop Seed) (*Result, error) {
	begin := time.Now()
	res, err := t.run(ctx, start, &stop)
	t.finish(ctx, "path", res, begin, err)
	return res, err
}

// Clear releases the synthetic shapes and all search state.
func (t *Tracer) Clear() {
	t.heap.Clear()
	t.found = nil
	t.shapes = nil
	t.graph = nil
	t.pending = nil
	t.enqueued = nil
	t.sorted = false
	t.rounds = 0
	t.delivered = 0
	t.aborted = false
	t.ctx = nil
	t.state = Idle
}

func (t *Tracer) finish(ctx context.Context, mode string, res *Result, begin time.Time, err error) {
	var found int
	var incomplete bool
	if res != nil {
		found = len(res.Shapes)
		incomplete = res.Incomplete
	}
	d := time.Since(begin)
	t.opts.logger.LogTrace(ctx, mode, found, incomplete, d, err)
	t.opts.metrics.RecordTrace(mode, found, incomplete, d, err)
}

func (t *Tracer) reset(ctx context.Context, cell layout.CellID, twoPoint bool) {
	t.Clear()
	t.ctx = ctx
	t.cell = cell
	t.found = make(map[shape.Key]int64)
	t.enqueued = make(map[pairKey]struct{})
	if twoPoint {
		t.graph = simple.NewUndirectedGraph()
	}
}

func (t *Tracer) validate(s Seed) error {
	if !t.model.IsValid(s.Layer) {
		return fmt.Errorf("%w: %s", ErrInvalidLayer, s.Layer)
	}
	return nil
}

func (t *Tracer) run(ctx context.Context, start Seed, stop *Seed) (*Result, error) {
	if err := t.validate(start); err != nil {
		return nil, err
	}
	if stop != nil {
		if err := t.validate(*stop); err != nil {
			return nil, err
		}
		if stop.Cell != start.Cell {
			return nil, fmt.Errorf("%w: start in cell %d, stop in cell %d", ErrCellMismatch, start.Cell, stop.Cell)
		}
	}
	t.reset(ctx, start.Cell, stop != nil)

	t.state = Seeding
	startShape := t.seedShape(start)
	t.deliver(shape.Pair{Shape: startShape})
	seeds := []shape.TracedShape{startShape}

	var stopShape shape.TracedShape
	if stop != nil {
		stopShape = t.seedShape(*stop)
		if stopShape.Equal(startShape) {
			t.graph = nil
			t.state = Done
			return &Result{
				Shapes:    t.foundShapes(),
				Path:      []shape.TracedShape{startShape},
				Delivered: t.delivered,
			}, nil
		}
		t.deliver(shape.Pair{Shape: stopShape})
		seeds = append(seeds, stopShape)
	}

	for _, s := range seeds {
		if t.aborted {
			break
		}
		pairs, err := t.seedPass(s)
		if err != nil {
			return nil, t.fail(err)
		}
		t.enqueue(pairs)
	}

	if err := t.expand(); err != nil {
		return nil, t.fail(err)
	}

	res := &Result{
		Shapes:     t.foundShapes(),
		Incomplete: t.aborted,
		Rounds:     t.rounds,
		Delivered:  t.delivered,
	}
	if stop != nil {
		t.state = Reconstructing
		res.Path = t.reconstruct(startShape, stopShape)
		t.graph = nil
		if res.Path == nil && !t.aborted {
			t.state = Failed
			return nil, fmt.Errorf("%w: %s to %s", ErrNotConnected, start, *stop)
		}
	}
	if t.aborted {
		t.state = Aborted
	} else {
		t.state = Done
	}
	return res, nil
}

// fail clears the tracer after a collaborator error.
func (t *Tracer) fail(err error) error {
	t.Clear()
	return err
}

// seedShape turns a seed point into a synthetic unit box.
func (t *Tracer) seedShape(s Seed) shape.TracedShape {
	b := geometry.NewBox(s.Point.X, s.Point.Y, s.Point.X+1, s.Point.Y+1)
	return shape.TracedShape{
		Cell:      s.Cell,
		Layer:     t.model.Resolve(s.Layer),
		Trans:     geometry.Identity(),
		Shape:     t.heap.Insert(b.Polygon()),
		Synthetic: true,
	}
}

func (t *Tracer) foundShapes() []shape.TracedShape {
	out := slices.Clone(t.shapes)
	slices.SortFunc(out, shape.Compare)
	return out
}
