// Package boolop defines the polygon boolean primitive used by layer
// expressions and provides a grid-based implementation for Manhattan
// geometry.
package boolop

import (
	"errors"

	"layout-tracer/pkg/geometry"
)

// ErrNonManhattan is returned by Grid when an input polygon has an edge that
// is neither horizontal nor vertical.
var ErrNonManhattan = errors.New("non-manhattan polygon")

// Op selects a boolean operation.
type Op int

const (
	// Or is the union.
	Or Op = iota
	// And is the intersection.
	And
	// Xor is the symmetric difference.
	Xor
	// AndNot is the difference a - b.
	AndNot
)

func (o Op) String() string {
	switch o {
	case Or:
		return "OR"
	case And:
		return "AND"
	case Xor:
		return "XOR"
	case AndNot:
		return "NOT"
	default:
		return "Unknown"
	}
}

// Apply evaluates the operation on two membership flags.
func (o Op) Apply(a, b bool) bool {
	switch o {
	case Or:
		return a || b
	case And:
		return a && b
	case Xor:
		return a != b
	case AndNot:
		return a && !b
	default:
		return false
	}
}

// Processor computes boolean operations on polygon sets. Each input slice is
// read as the union of its polygons.
type Processor interface {
	Boolean(a, b []geometry.Polygon, op Op) ([]geometry.Polygon, error)

	// Merge returns the union of the input as non-overlapping polygons.
	// minCoherence asks for the smallest pieces instead of the largest
	// connected ones where an implementation distinguishes the two.
	Merge(in []geometry.Polygon, minCoherence bool) ([]geometry.Polygon, error)
}
