package trace

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"layout-tracer/internal/boolop"
	"layout-tracer/internal/connectivity"
	"layout-tracer/internal/layout"
	"layout-tracer/internal/metrics"
	"layout-tracer/internal/shape"
	"layout-tracer/pkg/geometry"
)

const (
	metal layout.LayerID = 1
	via   layout.LayerID = 2
	poly  layout.LayerID = 3
)

func box(x1, y1, x2, y2 int) geometry.Polygon {
	return geometry.NewBox(x1, y1, x2, y2).Polygon()
}

func seedAt(cell layout.CellID, x, y int, layer layout.LayerID) Seed {
	return Seed{Cell: cell, Point: geometry.NewPoint(x, y), Layer: layer}
}

func newLayout(t *testing.T, shapes map[layout.LayerID][]geometry.Box) (*layout.Layout, layout.CellID) {
	t.Helper()
	l := layout.New()
	top := l.AddCell("TOP")
	for layer, boxes := range shapes {
		for _, b := range boxes {
			_, err := l.AddBox(top, layer, b)
			require.NoError(t, err)
		}
	}
	return l, top
}

func hasShape(shapes []shape.TracedShape, layer layout.LayerID, p geometry.Polygon) bool {
	for _, s := range shapes {
		if s.Layer == layer && s.Polygon().Equal(p) {
			return true
		}
	}
	return false
}

func countReal(shapes []shape.TracedShape) int {
	n := 0
	for _, s := range shapes {
		if !s.Synthetic {
			n++
		}
	}
	return n
}

// viaScenario is a metal line cut by a via in the middle, with a logical
// layer for the metal not covered by the via.
func viaScenario(t *testing.T) (*layout.Layout, layout.CellID, *connectivity.Model, layout.LayerID) {
	l, top := newLayout(t, map[layout.LayerID][]geometry.Box{
		metal: {geometry.NewBox(0, 0, 10, 10), geometry.NewBox(10, 0, 20, 10)},
		via:   {geometry.NewBox(8, 0, 12, 10)},
	})
	m := connectivity.NewModel()
	x := m.RegisterLogicalLayer(connectivity.AndNot(connectivity.Leaf(metal), connectivity.Leaf(via)), "metal_open")
	m.AddConnection(connectivity.NewConnection(x, x))
	return l, top, m, x
}

type failingSource struct {
	err error
}

func (f failingSource) Query(layout.CellID, []layout.LayerID, geometry.Polygon) iter.Seq2[layout.Hit, error] {
	return func(yield func(layout.Hit, error) bool) {
		yield(layout.Hit{}, f.err)
	}
}

func TestDeliverIdempotent(t *testing.T) {
	l, top := newLayout(t, nil)
	tr := New(connectivity.NewModel(), l, boolop.Grid{})
	tr.reset(context.Background(), top, false)

	p1 := box(0, 0, 5, 5)
	p2 := box(0, 0, 5, 5)
	a := shape.TracedShape{Cell: top, Layer: metal, Trans: geometry.Identity(), Shape: &p1}
	b := shape.TracedShape{Cell: top, Layer: metal, Trans: geometry.Identity(), Shape: &p2}

	first, isNew := tr.deliver(shape.Pair{Shape: a})
	require.True(t, isNew)
	second, isNew := tr.deliver(shape.Pair{Shape: b})
	assert.False(t, isNew)
	assert.Same(t, first.Shape, second.Shape)
	assert.Len(t, tr.shapes, 1)
	assert.Equal(t, 2, tr.delivered)
}

func TestTraceFindsOwnLayerWithoutRules(t *testing.T) {
	l, top := newLayout(t, map[layout.LayerID][]geometry.Box{
		metal: {geometry.NewBox(0, 0, 10, 10)},
		poly:  {geometry.NewBox(5, 5, 15, 15)},
	})
	tr := New(connectivity.NewModel(), l, boolop.Grid{})

	res, err := tr.Trace(context.Background(), seedAt(top, 1, 1, metal))
	require.NoError(t, err)
	assert.False(t, res.Incomplete)
	assert.Len(t, res.Shapes, 2)
	assert.True(t, hasShape(res.Shapes, metal, box(0, 0, 10, 10)))
	assert.Equal(t, Done, tr.State())

	res, err = tr.Trace(context.Background(), seedAt(top, 14, 14, poly))
	require.NoError(t, err)
	assert.Len(t, res.Shapes, 2)
	assert.True(t, hasShape(res.Shapes, poly, box(5, 5, 15, 15)))
	assert.False(t, hasShape(res.Shapes, metal, box(0, 0, 10, 10)))
}

func TestTracePathNotConnected(t *testing.T) {
	l, top := newLayout(t, map[layout.LayerID][]geometry.Box{
		metal: {geometry.NewBox(0, 0, 10, 10)},
		poly:  {geometry.NewBox(5, 5, 15, 15)},
	})
	tr := New(connectivity.NewModel(), l, boolop.Grid{})

	res, err := tr.TracePath(context.Background(), seedAt(top, 1, 1, metal), seedAt(top, 14, 14, poly))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Nil(t, res)
	assert.Equal(t, Failed, tr.State())
}

func TestTracePathTwoHops(t *testing.T) {
	l, top := newLayout(t, map[layout.LayerID][]geometry.Box{
		metal: {geometry.NewBox(0, 0, 10, 10)},
		poly:  {geometry.NewBox(5, 5, 15, 15)},
	})
	m := connectivity.NewModel()
	m.AddConnection(connectivity.NewConnection(metal, poly))
	tr := New(m, l, boolop.Grid{})

	res, err := tr.TracePath(context.Background(), seedAt(top, 1, 1, metal), seedAt(top, 14, 14, poly))
	require.NoError(t, err)
	require.Len(t, res.Path, 4)
	assert.False(t, res.Incomplete)

	assert.True(t, res.Path[0].Synthetic)
	assert.Equal(t, box(1, 1, 2, 2), res.Path[0].Polygon())
	assert.Equal(t, metal, res.Path[1].Layer)
	assert.Equal(t, box(0, 0, 10, 10), res.Path[1].Polygon())
	assert.Equal(t, poly, res.Path[2].Layer)
	assert.Equal(t, box(5, 5, 15, 15), res.Path[2].Polygon())
	assert.True(t, res.Path[3].Synthetic)
	assert.Equal(t, box(14, 14, 15, 15), res.Path[3].Polygon())
	assert.Equal(t, Done, tr.State())
}

func TestTracePathPrefersShortChain(t *testing.T) {
	// a short metal strap and a long detour both join the ends
	l, top := newLayout(t, map[layout.LayerID][]geometry.Box{
		metal: {
			geometry.NewBox(0, 0, 10, 10),
			geometry.NewBox(10, 0, 20, 10),
			geometry.NewBox(20, 0, 30, 10),
			geometry.NewBox(0, 10, 2, 40),
			geometry.NewBox(0, 40, 30, 42),
			geometry.NewBox(28, 10, 30, 40),
		},
	})
	m := connectivity.NewModel()
	m.AddConnection(connectivity.NewConnection(metal, metal))
	tr := New(m, l, boolop.Grid{})

	res, err := tr.TracePath(context.Background(), seedAt(top, 1, 1, metal), seedAt(top, 25, 5, metal))
	require.NoError(t, err)
	require.Len(t, res.Path, 5)
	assert.Equal(t, box(0, 0, 10, 10), res.Path[1].Polygon())
	assert.Equal(t, box(10, 0, 20, 10), res.Path[2].Polygon())
	assert.Equal(t, box(20, 0, 30, 10), res.Path[3].Polygon())
	assert.Len(t, res.Shapes, 8)
}

func TestTracePathIdenticalSeeds(t *testing.T) {
	l, top := newLayout(t, map[layout.LayerID][]geometry.Box{
		metal: {geometry.NewBox(0, 0, 10, 10)},
	})
	m := connectivity.NewModel()
	m.AddConnection(connectivity.NewConnection(metal, metal))
	tr := New(m, l, boolop.Grid{})

	s := seedAt(top, 3, 3, metal)
	res, err := tr.TracePath(context.Background(), s, s)
	require.NoError(t, err)
	require.Len(t, res.Path, 1)
	assert.True(t, res.Path[0].Synthetic)
	assert.Len(t, res.Shapes, 1)
	assert.Zero(t, res.Rounds)
}

func TestTracePathThroughVia(t *testing.T) {
	const metal2 layout.LayerID = 4
	l, top := newLayout(t, map[layout.LayerID][]geometry.Box{
		metal:  {geometry.NewBox(0, 0, 20, 4)},
		via:    {geometry.NewBox(16, 0, 20, 4)},
		metal2: {geometry.NewBox(16, 0, 20, 30)},
	})
	m := connectivity.NewModel()
	m.AddConnection(connectivity.NewViaConnection(metal, via, metal2))
	tr := New(m, l, boolop.Grid{})

	res, err := tr.TracePath(context.Background(), seedAt(top, 1, 1, metal), seedAt(top, 17, 28, metal2))
	require.NoError(t, err)
	require.Len(t, res.Path, 5)
	assert.Equal(t, []layout.LayerID{metal, metal, via, metal2, metal2}, []layout.LayerID{
		res.Path[0].Layer, res.Path[1].Layer, res.Path[2].Layer, res.Path[3].Layer, res.Path[4].Layer,
	})
}

func TestTraceLogicalLayerStopsAtVia(t *testing.T) {
	l, top, m, x := viaScenario(t)
	tr := New(m, l, boolop.Grid{})

	res, err := tr.Trace(context.Background(), seedAt(top, 2, 5, x))
	require.NoError(t, err)
	assert.False(t, res.Incomplete)
	assert.Len(t, res.Shapes, 2)
	assert.True(t, hasShape(res.Shapes, x, box(0, 0, 8, 10)))
	assert.False(t, hasShape(res.Shapes, x, box(12, 0, 20, 10)))
	assert.Zero(t, countReal(res.Shapes))
}

func TestTraceLogicalLayerSeedOnVia(t *testing.T) {
	l, top, m, x := viaScenario(t)
	tr := New(m, l, boolop.Grid{})

	res, err := tr.Trace(context.Background(), seedAt(top, 10, 5, x))
	require.NoError(t, err)
	require.Len(t, res.Shapes, 1)
	assert.True(t, res.Shapes[0].Synthetic)
}

func TestTraceMetalRuleCrossesVia(t *testing.T) {
	l, top, m, x := viaScenario(t)
	m.AddConnection(connectivity.NewConnection(metal, metal))
	tr := New(m, l, boolop.Grid{})

	res, err := tr.Trace(context.Background(), seedAt(top, 2, 5, metal))
	require.NoError(t, err)
	assert.True(t, hasShape(res.Shapes, metal, box(0, 0, 10, 10)))
	assert.True(t, hasShape(res.Shapes, metal, box(10, 0, 20, 10)))
	assert.True(t, hasShape(res.Shapes, x, box(0, 0, 8, 10)))
	assert.True(t, hasShape(res.Shapes, x, box(12, 0, 20, 10)))
	assert.False(t, hasShape(res.Shapes, via, box(8, 0, 12, 10)))
}

func TestTraceDerivedLayerKeepsWholeShapes(t *testing.T) {
	l, top := newLayout(t, map[layout.LayerID][]geometry.Box{
		metal: {geometry.NewBox(0, 0, 10, 10)},
		poly:  {geometry.NewBox(10, 0, 20, 10)},
	})
	m := connectivity.NewModel()
	x := m.RegisterLogicalLayer(connectivity.Or(connectivity.Leaf(metal), connectivity.Leaf(poly)), "")
	m.AddConnection(connectivity.NewConnection(x, x))
	tr := New(m, l, boolop.Grid{})

	res, err := tr.Trace(context.Background(), seedAt(top, 2, 2, x))
	require.NoError(t, err)
	assert.Len(t, res.Shapes, 3)
	assert.Equal(t, 2, countReal(res.Shapes))
	assert.True(t, hasShape(res.Shapes, x, box(0, 0, 10, 10)))
	assert.True(t, hasShape(res.Shapes, x, box(10, 0, 20, 10)))
}

func TestTraceDerivedRegionReachesFarArm(t *testing.T) {
	const metal2 layout.LayerID = 4
	l, top := newLayout(t, map[layout.LayerID][]geometry.Box{
		via: {geometry.NewBox(90, 0, 100, 10)},
		metal2: {
			geometry.NewBox(40, -5, 50, 0),
			geometry.NewBox(0, 100, 10, 105),
		},
	})
	_, err := l.AddShape(top, metal, geometry.NewPolygon(
		geometry.NewPoint(0, 0), geometry.NewPoint(100, 0), geometry.NewPoint(100, 10),
		geometry.NewPoint(10, 10), geometry.NewPoint(10, 100), geometry.NewPoint(0, 100),
	))
	require.NoError(t, err)

	m := connectivity.NewModel()
	open := m.RegisterLogicalLayer(connectivity.AndNot(connectivity.Leaf(metal), connectivity.Leaf(via)), "metal_open")
	m.AddConnection(connectivity.NewConnection(open, metal2))
	tr := New(m, l, boolop.Grid{})

	res, err := tr.Trace(context.Background(), seedAt(top, 42, -3, metal2))
	require.NoError(t, err)
	assert.False(t, res.Incomplete)
	assert.True(t, hasShape(res.Shapes, open, box(0, 0, 90, 10)))
	assert.True(t, hasShape(res.Shapes, open, box(0, 10, 10, 100)))
	assert.True(t, hasShape(res.Shapes, metal2, box(0, 100, 10, 105)))

	path, err := tr.TracePath(context.Background(), seedAt(top, 42, -3, metal2), seedAt(top, 5, 103, metal2))
	require.NoError(t, err)
	assert.Equal(t, metal2, path.Path[len(path.Path)-1].Layer)
}

func TestTraceHierarchy(t *testing.T) {
	l := layout.New()
	top := l.AddCell("TOP")
	child := l.AddCell("PAD")
	_, err := l.AddBox(child, metal, geometry.NewBox(0, 0, 4, 4))
	require.NoError(t, err)
	require.NoError(t, l.AddInstance(top, child, geometry.Translation(10, 0)))
	_, err = l.AddBox(top, metal, geometry.NewBox(0, 0, 10, 2))
	require.NoError(t, err)

	m := connectivity.NewModel()
	m.AddConnection(connectivity.NewConnection(metal, metal))
	tr := New(m, l, boolop.Grid{})

	res, err := tr.Trace(context.Background(), seedAt(top, 1, 1, metal))
	require.NoError(t, err)
	require.True(t, hasShape(res.Shapes, metal, box(10, 0, 14, 4)))
	for _, s := range res.Shapes {
		if s.Polygon().Equal(box(10, 0, 14, 4)) {
			assert.Equal(t, child, s.Cell)
			assert.Equal(t, geometry.Translation(10, 0), s.Trans)
		}
	}
}

func chain(t *testing.T, n int) (*layout.Layout, layout.CellID, *connectivity.Model) {
	boxes := make([]geometry.Box, 0, n)
	for i := range n {
		boxes = append(boxes, geometry.NewBox(i*10, 0, i*10+10, 10))
	}
	l, top := newLayout(t, map[layout.LayerID][]geometry.Box{metal: boxes})
	m := connectivity.NewModel()
	m.AddConnection(connectivity.NewConnection(metal, metal))
	return l, top, m
}

func TestTraceChainComplete(t *testing.T) {
	l, top, m := chain(t, 10)
	tr := New(m, l, boolop.Grid{})

	res, err := tr.Trace(context.Background(), seedAt(top, 1, 1, metal))
	require.NoError(t, err)
	assert.False(t, res.Incomplete)
	assert.Len(t, res.Shapes, 11)
	assert.Positive(t, res.Rounds)
}

func TestTraceBudget(t *testing.T) {
	l, top, m := chain(t, 10)
	tr := New(m, l, boolop.Grid{}, WithMaxShapes(3))

	res, err := tr.Trace(context.Background(), seedAt(top, 1, 1, metal))
	require.NoError(t, err)
	assert.True(t, res.Incomplete)
	assert.LessOrEqual(t, len(res.Shapes), 4)
	assert.Equal(t, Aborted, tr.State())
}

func TestTraceBudgetPathIncomplete(t *testing.T) {
	l, top, m := chain(t, 10)
	tr := New(m, l, boolop.Grid{}, WithMaxShapes(3))

	res, err := tr.TracePath(context.Background(), seedAt(top, 1, 1, metal), seedAt(top, 95, 5, metal))
	require.NoError(t, err)
	assert.True(t, res.Incomplete)
	assert.Empty(t, res.Path)
}

func TestTraceCancelled(t *testing.T) {
	l, top, m := chain(t, 10)
	tr := New(m, l, boolop.Grid{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := tr.Trace(ctx, seedAt(top, 1, 1, metal))
	require.NoError(t, err)
	assert.True(t, res.Incomplete)
	assert.Len(t, res.Shapes, 1)
}

func TestTraceProgressStops(t *testing.T) {
	l, top, m := chain(t, 10)
	var calls []int
	tr := New(m, l, boolop.Grid{}, WithProgress(func(found int) bool {
		calls = append(calls, found)
		return found < 3
	}))

	res, err := tr.Trace(context.Background(), seedAt(top, 1, 1, metal))
	require.NoError(t, err)
	assert.True(t, res.Incomplete)
	assert.Len(t, res.Shapes, 3)
	assert.Equal(t, []int{1, 2, 3}, calls)
}

func TestTraceSourceError(t *testing.T) {
	boom := errors.New("storage offline")
	m := connectivity.NewModel()
	tr := New(m, failingSource{err: boom}, boolop.Grid{})

	res, err := tr.Trace(context.Background(), seedAt(0, 1, 1, metal))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, res)
	assert.Equal(t, Idle, tr.State())
	assert.Empty(t, tr.shapes)
	assert.Zero(t, tr.heap.Len())
}

func TestTraceBooleanError(t *testing.T) {
	l := layout.New()
	top := l.AddCell("TOP")
	tri := geometry.NewPolygon(geometry.NewPoint(0, 0), geometry.NewPoint(10, 0), geometry.NewPoint(0, 10))
	_, err := l.AddShape(top, metal, tri)
	require.NoError(t, err)

	m := connectivity.NewModel()
	x := m.RegisterLogicalLayer(connectivity.AndNot(connectivity.Leaf(metal), connectivity.Leaf(via)), "")
	m.AddConnection(connectivity.NewConnection(x, x))
	tr := New(m, l, boolop.Grid{})

	_, err = tr.Trace(context.Background(), seedAt(top, 1, 1, x))
	assert.ErrorIs(t, err, boolop.ErrNonManhattan)
	assert.Equal(t, Idle, tr.State())
}

func TestTraceInvalidSeeds(t *testing.T) {
	l, top := newLayout(t, nil)
	tr := New(connectivity.NewModel(), l, boolop.Grid{})

	_, err := tr.Trace(context.Background(), seedAt(top, 0, 0, layout.LogicalBase+3))
	assert.ErrorIs(t, err, ErrInvalidLayer)

	_, err = tr.TracePath(context.Background(), seedAt(top, 0, 0, metal), seedAt(top+1, 0, 0, metal))
	assert.ErrorIs(t, err, ErrCellMismatch)
}

func TestTraceAliasSeed(t *testing.T) {
	l, top, m := chain(t, 3)
	alias := m.RegisterLogicalLayer(connectivity.Leaf(metal), "m1")
	tr := New(m, l, boolop.Grid{})

	res, err := tr.Trace(context.Background(), seedAt(top, 1, 1, alias))
	require.NoError(t, err)
	assert.Len(t, res.Shapes, 4)
	for _, s := range res.Shapes {
		assert.Equal(t, metal, s.Layer)
	}
}

func TestTraceClear(t *testing.T) {
	l, top, m := chain(t, 3)
	tr := New(m, l, boolop.Grid{})

	_, err := tr.Trace(context.Background(), seedAt(top, 1, 1, metal))
	require.NoError(t, err)
	assert.Positive(t, tr.heap.Len())

	tr.Clear()
	assert.Equal(t, Idle, tr.State())
	assert.Zero(t, tr.heap.Len())
	assert.Nil(t, tr.found)
	assert.Nil(t, tr.pending)
}

func TestTraceRecordsMetrics(t *testing.T) {
	l, top, m := chain(t, 4)
	var mc metrics.Basic
	tr := New(m, l, boolop.Grid{}, WithMetrics(&mc))

	_, err := tr.Trace(context.Background(), seedAt(top, 1, 1, metal))
	require.NoError(t, err)

	s := mc.Stats()
	assert.Equal(t, int64(1), s.Traces)
	assert.Equal(t, int64(5), s.ShapesFound)
	assert.Positive(t, s.Rounds)
	assert.Positive(t, s.Queries)
}

func TestPopBatchAreaRatio(t *testing.T) {
	l, top := newLayout(t, nil)
	tr := New(connectivity.NewModel(), l, boolop.Grid{})
	tr.reset(context.Background(), top, false)

	mk := func(layer layout.LayerID, p geometry.Polygon) shape.Pair {
		return shape.Pair{Shape: shape.TracedShape{Layer: layer, Trans: geometry.Identity(), Shape: &p}}
	}
	tr.enqueue([]shape.Pair{
		mk(metal, box(0, 0, 10, 10)),
		mk(metal, box(10, 0, 20, 10)),
		mk(metal, box(1000, 1000, 1010, 1010)),
		mk(via, box(0, 0, 1, 1)),
	})

	batch := tr.popBatch()
	require.Len(t, batch, 1)
	assert.Equal(t, via, batch[0].Shape.Layer)

	batch = tr.popBatch()
	require.Len(t, batch, 1)
	assert.Equal(t, box(1000, 1000, 1010, 1010), batch[0].Shape.Polygon())

	batch = tr.popBatch()
	assert.Len(t, batch, 2)
	assert.Empty(t, tr.pending)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "expanding", Expanding.String())
	assert.Equal(t, "State(42)", State(42).String())
}
