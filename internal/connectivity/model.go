package connectivity

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"layout-tracer/internal/layout"
	"layout-tracer/internal/logging"
)

// Connection says two layers connect where their shapes touch. With a via
// layer the two sides connect to the via instead of to each other.
type Connection struct {
	A, B layout.LayerID
	Via  layout.LayerID
}

// NewConnection creates a direct connection between a and b.
func NewConnection(a, b layout.LayerID) Connection {
	return Connection{A: a, B: b, Via: layout.NoLayer}
}

// NewViaConnection creates a connection from a through via to b.
func NewViaConnection(a, via, b layout.LayerID) Connection {
	return Connection{A: a, B: b, Via: via}
}

// HasVia reports whether the connection goes through a via layer.
func (c Connection) HasVia() bool {
	return c.Via != layout.NoLayer
}

// booleanSplit is the cached neighbour classification of one layer.
type booleanSplit struct {
	direct    *roaring.Bitmap
	derived   *roaring.Bitmap
	evaluated []layout.LayerID
}

// Model is the connectivity configuration of a trace: the registered logical
// layers and the logical and original connection graphs. It is built once
// and then only read; lookups cache their results on the model.
type Model struct {
	next    layout.LayerID
	exprs   map[layout.LayerID]*Expression
	symbols map[string]layout.LayerID
	names   map[layout.LayerID]string

	// Graphs are rebuilt from edges after registrations, so leaves naming
	// layers registered later are picked up.
	edges     [][2]layout.LayerID
	logGraph  map[layout.LayerID]*roaring.Bitmap
	origGraph map[layout.LayerID]*roaring.Bitmap
	stale     bool

	splits map[layout.LayerID]*booleanSplit
	leaves map[layout.LayerID]*Expression

	logger *logging.Logger
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithModelLogger sets the logger used for configuration diagnostics.
func WithModelLogger(l *logging.Logger) ModelOption {
	return func(m *Model) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewModel creates an empty model.
func NewModel(opts ...ModelOption) *Model {
	m := &Model{
		next:      layout.LogicalBase,
		exprs:     make(map[layout.LayerID]*Expression),
		symbols:   make(map[string]layout.LayerID),
		names:     make(map[layout.LayerID]string),
		logGraph:  make(map[layout.LayerID]*roaring.Bitmap),
		origGraph: make(map[layout.LayerID]*roaring.Bitmap),
		splits:    make(map[layout.LayerID]*booleanSplit),
		leaves:    make(map[layout.LayerID]*Expression),
		logger:    logging.NoopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterLogicalLayer stores a copy of expr under a new logical layer id.
// A non-empty symbol makes the layer available through LayerBySymbol.
func (m *Model) RegisterLogicalLayer(expr *Expression, symbol string) layout.LayerID {
	id := m.next
	m.next++
	m.exprs[id] = expr.Clone()
	if symbol != "" {
		m.symbols[symbol] = id
		m.names[id] = symbol
	}
	m.invalidate()
	return id
}

// LayerBySymbol looks up a logical layer by its symbol.
func (m *Model) LayerBySymbol(symbol string) (layout.LayerID, bool) {
	id, ok := m.symbols[symbol]
	return id, ok
}

// Symbol returns the symbol of a logical layer, or its id string.
func (m *Model) Symbol(layer layout.LayerID) string {
	if name, ok := m.names[layer]; ok {
		return name
	}
	return layer.String()
}

// IsLogical reports whether layer is a registered logical layer.
func (m *Model) IsLogical(layer layout.LayerID) bool {
	_, ok := m.exprs[layer]
	return ok
}

// IsValid reports whether layer is an original layer or a registered
// logical layer.
func (m *Model) IsValid(layer layout.LayerID) bool {
	if layer == layout.NoLayer {
		return false
	}
	return layer.IsOriginal() || m.IsLogical(layer)
}

// IsDerived reports whether layer needs a boolean evaluation, i.e. it is a
// logical layer that is not just another name for a single layer.
func (m *Model) IsDerived(layer layout.LayerID) bool {
	layer = m.Resolve(layer)
	if layer.IsOriginal() {
		return false
	}
	e, ok := m.exprs[layer]
	return ok && !e.IsLeaf()
}

// LogicalLayers returns the registered logical layers in id order.
func (m *Model) LogicalLayers() []layout.LayerID {
	ids := make([]layout.LayerID, 0, len(m.exprs))
	for id := range m.exprs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Expression returns the expression of a logical layer, or a leaf for an
// original layer. It returns nil for an unregistered logical id.
func (m *Model) Expression(layer layout.LayerID) *Expression {
	if !layer.IsOriginal() {
		return m.exprs[layer]
	}
	e, ok := m.leaves[layer]
	if !ok {
		e = Leaf(layer)
		m.leaves[layer] = e
	}
	return e
}

// OriginalLayers returns the original layers behind layer. The result must
// not be modified.
func (m *Model) OriginalLayers(layer layout.LayerID) *roaring.Bitmap {
	e := m.Expression(layer)
	if e == nil {
		return roaring.New()
	}
	return e.CollectOriginalLayers(m)
}

// AddConnection registers a connection. Connections naming an unknown layer
// are ignored so that partial rule sets still trace.
func (m *Model) AddConnection(c Connection) {
	if !m.IsValid(c.A) || !m.IsValid(c.B) || (c.HasVia() && !m.IsValid(c.Via)) {
		m.logger.Debug("ignoring connection with unknown layer",
			"a", c.A, "b", c.B, "via", c.Via)
		return
	}
	if c.HasVia() {
		m.edges = append(m.edges, [2]layout.LayerID{c.A, c.Via}, [2]layout.LayerID{c.B, c.Via})
	} else {
		m.edges = append(m.edges, [2]layout.LayerID{c.A, c.B})
	}
	m.invalidate()
}

func (m *Model) invalidate() {
	m.stale = true
	clear(m.splits)
}

// graphs brings the logical and original graphs up to date.
func (m *Model) graphs() {
	if !m.stale {
		return
	}
	clear(m.logGraph)
	clear(m.origGraph)
	for _, e := range m.edges {
		a, b := m.Resolve(e[0]), m.Resolve(e[1])
		bitmapFor(m.logGraph, a).Add(uint32(b))
		bitmapFor(m.logGraph, b).Add(uint32(a))

		oa, ob := m.OriginalLayers(a), m.OriginalLayers(b)
		for it := oa.Iterator(); it.HasNext(); {
			bitmapFor(m.origGraph, layout.LayerID(it.Next())).Or(ob)
		}
		for it := ob.Iterator(); it.HasNext(); {
			bitmapFor(m.origGraph, layout.LayerID(it.Next())).Or(oa)
		}
	}
	m.stale = false
}

// Resolve follows logical layers that merely rename another layer and
// returns the layer they stand for. A cycle of renames stops at the layer
// where it closes.
func (m *Model) Resolve(layer layout.LayerID) layout.LayerID {
	for range len(m.exprs) {
		if layer.IsOriginal() {
			break
		}
		e, ok := m.exprs[layer]
		if !ok || !e.IsLeaf() {
			break
		}
		layer = e.Layer()
	}
	return layer
}

// Connections returns the original layers connected to layer. For a logical
// layer these are the neighbours of all its original layers.
func (m *Model) Connections(layer layout.LayerID) *roaring.Bitmap {
	m.graphs()
	layer = m.Resolve(layer)
	if layer.IsOriginal() {
		if bm, ok := m.origGraph[layer]; ok {
			return bm.Clone()
		}
		return roaring.New()
	}
	out := roaring.New()
	for it := m.OriginalLayers(layer).Iterator(); it.HasNext(); {
		if bm, ok := m.origGraph[layout.LayerID(it.Next())]; ok {
			out.Or(bm)
		}
	}
	return out
}

// LogConnections returns the layers connected to layer in the logical graph.
func (m *Model) LogConnections(layer layout.LayerID) *roaring.Bitmap {
	m.graphs()
	if bm, ok := m.logGraph[m.Resolve(layer)]; ok {
		return bm.Clone()
	}
	return roaring.New()
}

// EachLogConnection calls fn once for every edge of the logical graph.
func (m *Model) EachLogConnection(fn func(a, b layout.LayerID)) {
	m.graphs()
	from := make([]layout.LayerID, 0, len(m.logGraph))
	for id := range m.logGraph {
		from = append(from, id)
	}
	slices.Sort(from)
	for _, a := range from {
		for it := m.logGraph[a].Iterator(); it.HasNext(); {
			if b := layout.LayerID(it.Next()); a <= b {
				fn(a, b)
			}
		}
	}
}

// LogLayersFor returns the logical layers built from the original layer.
func (m *Model) LogLayersFor(original layout.LayerID) *roaring.Bitmap {
	out := roaring.New()
	for id := range m.exprs {
		if m.OriginalLayers(id).Contains(uint32(original)) {
			out.Add(uint32(id))
		}
	}
	return out
}

// RequiresBooleans splits Connections(layer) into the original layers that
// can be queried directly and those reachable only through a boolean
// evaluation. The two sets are disjoint and must not be modified.
func (m *Model) RequiresBooleans(layer layout.LayerID) (direct, derived *roaring.Bitmap) {
	s := m.split(layer)
	return s.direct, s.derived
}

// EvaluatedLayers returns the derived logical layers a frontier on layer has
// to evaluate: its derived neighbours and, for an original layer, the
// derived layers built from it that connect to something themselves.
func (m *Model) EvaluatedLayers(layer layout.LayerID) []layout.LayerID {
	return m.split(layer).evaluated
}

func (m *Model) split(layer layout.LayerID) *booleanSplit {
	layer = m.Resolve(layer)
	if s, ok := m.splits[layer]; ok {
		return s
	}

	s := &booleanSplit{direct: roaring.New()}
	evaluated := roaring.New()
	for it := m.LogConnections(layer).Iterator(); it.HasNext(); {
		n := layout.LayerID(it.Next())
		if n.IsOriginal() {
			s.direct.Add(uint32(n))
		} else if m.IsDerived(n) {
			evaluated.Add(uint32(n))
		}
	}
	if layer.IsOriginal() {
		for it := m.LogLayersFor(layer).Iterator(); it.HasNext(); {
			x := layout.LayerID(it.Next())
			if m.IsDerived(x) && m.Resolve(x) == x && !m.LogConnections(x).IsEmpty() {
				evaluated.Add(uint32(x))
			}
		}
	}
	s.derived = roaring.AndNot(m.Connections(layer), s.direct)
	for it := evaluated.Iterator(); it.HasNext(); {
		s.evaluated = append(s.evaluated, layout.LayerID(it.Next()))
	}

	m.splits[layer] = s
	return s
}

func bitmapFor(g map[layout.LayerID]*roaring.Bitmap, id layout.LayerID) *roaring.Bitmap {
	bm, ok := g[id]
	if !ok {
		bm = roaring.New()
		g[id] = bm
	}
	return bm
}
