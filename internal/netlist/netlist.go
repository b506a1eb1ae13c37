// Package netlist turns a connectivity model into netlist extraction input:
// materialised logical layers plus the connect directives between layers.
package netlist

import (
	"regexp"
	"slices"
	"strings"

	"layout-tracer/internal/boolop"
	"layout-tracer/internal/connectivity"
	"layout-tracer/internal/layout"
)

// autoNameRe matches generated layer names like "L3" or "X12".
var autoNameRe = regexp.MustCompile(`^[LX]\d+$`)

// namePriority returns a priority score for a layer name.
// Higher is better: 0=generated, 1=derived symbol, 2=user name.
func namePriority(name string) int {
	if autoNameRe.MatchString(name) {
		return 0
	}
	if strings.ContainsAny(name, "+-*^") {
		return 1
	}
	return 2
}

// BetterName returns the higher-priority name between a and b.
// At equal priority, prefers the shorter name, then the smaller one.
func BetterName(a, b string) string {
	pa := namePriority(a)
	pb := namePriority(b)
	if pa > pb {
		return a
	}
	if pb > pa {
		return b
	}
	if len(a) != len(b) {
		if len(a) < len(b) {
			return a
		}
		return b
	}
	return min(a, b)
}

// Directive is one connect statement between two layers.
type Directive struct {
	A layout.LayerID `json:"a"`
	B layout.LayerID `json:"b"`
}

// Netlist records connect directives and the regions they join.
type Netlist struct {
	Name       string                     `json:"name"`
	Directives []Directive                `json:"directives"`
	Regions    map[layout.LayerID]*Region `json:"-"`
	names      map[layout.LayerID]string
	seen       map[Directive]bool
}

// New creates an empty netlist.
func New(name string) *Netlist {
	return &Netlist{
		Name:    name,
		Regions: make(map[layout.LayerID]*Region),
		names:   make(map[layout.LayerID]string),
		seen:    make(map[Directive]bool),
	}
}

// Extract configures the netlist from model over cell.
func (n *Netlist) Extract(model *connectivity.Model, source layout.Source, ops boolop.Processor, cell layout.CellID) error {
	regions, err := Configure(model, source, ops, cell, n)
	if err != nil {
		return err
	}
	for id, r := range regions {
		n.Regions[id] = r
		n.SetLayerName(id, r.Symbol)
	}
	return nil
}

// Connect implements Connector. Repeated directives are recorded once.
func (n *Netlist) Connect(a, b layout.LayerID) {
	if b < a {
		a, b = b, a
	}
	d := Directive{A: a, B: b}
	if n.seen[d] {
		return
	}
	n.seen[d] = true
	n.Directives = append(n.Directives, d)
}

// SetLayerName names a layer for reporting.
func (n *Netlist) SetLayerName(layer layout.LayerID, name string) {
	if name != "" {
		n.names[layer] = name
	}
}

// LayerName returns the name of a layer, or its id string.
func (n *Netlist) LayerName(layer layout.LayerID) string {
	if name, ok := n.names[layer]; ok {
		return name
	}
	return layer.String()
}

// Layers returns every layer named in a directive, sorted.
func (n *Netlist) Layers() []layout.LayerID {
	var out []layout.LayerID
	for _, d := range n.Directives {
		out = append(out, d.A, d.B)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// LayerGroups partitions the connected layers into groups joined by
// directives. Each group is sorted, groups are ordered by first layer.
func (n *Netlist) LayerGroups() [][]layout.LayerID {
	nodes := n.Layers()
	adj := make(map[layout.LayerID]map[layout.LayerID]bool, len(nodes))
	for _, id := range nodes {
		adj[id] = make(map[layout.LayerID]bool)
	}
	for _, d := range n.Directives {
		if d.A != d.B {
			adj[d.A][d.B] = true
			adj[d.B][d.A] = true
		}
	}

	// BFS to find connected components
	visited := make(map[layout.LayerID]bool)
	var groups [][]layout.LayerID
	for _, id := range nodes {
		if visited[id] {
			continue
		}
		var group []layout.LayerID
		queue := []layout.LayerID{id}
		visited[id] = true
		for len(queue) > 0 {
			curr := queue[0]
			queue = queue[1:]
			group = append(group, curr)
			for neighbor := range adj[curr] {
				if !visited[neighbor] {
					visited[neighbor] = true
					queue = append(queue, neighbor)
				}
			}
		}
		slices.Sort(group)
		groups = append(groups, group)
	}
	return groups
}

// GroupName picks the best name among the layers of a group.
func (n *Netlist) GroupName(group []layout.LayerID) string {
	best := ""
	for _, id := range group {
		name := n.LayerName(id)
		if best == "" {
			best = name
			continue
		}
		best = BetterName(best, name)
	}
	return best
}
