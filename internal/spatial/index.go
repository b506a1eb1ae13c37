// Package spatial provides a static bounding-box index for touching queries.
package spatial

import (
	"cmp"
	"slices"

	"layout-tracer/pkg/geometry"
)

// blockSize is the number of entries summarized per skip block.
const blockSize = 16

type entry[T any] struct {
	box  geometry.Box
	item T
}

// block summarizes a run of entries so whole runs can be skipped.
type block struct {
	maxRight  int
	minBottom int
	maxTop    int
}

// Index is a static box index. Entries are inserted, the index is sorted
// once, then queried. Inserting after a query re-sorts on the next query.
type Index[T any] struct {
	entries []entry[T]
	blocks  []block
	sorted  bool
}

// New creates an empty index with room for n entries.
func New[T any](n int) *Index[T] {
	return &Index[T]{entries: make([]entry[T], 0, n)}
}

// Insert adds an item with its bounding box.
func (ix *Index[T]) Insert(box geometry.Box, item T) {
	ix.entries = append(ix.entries, entry[T]{box: box, item: item})
	ix.sorted = false
}

// Len returns the number of entries.
func (ix *Index[T]) Len() int {
	return len(ix.entries)
}

// Sort orders the entries by left edge and rebuilds the skip blocks.
func (ix *Index[T]) Sort() {
	slices.SortStableFunc(ix.entries, func(a, b entry[T]) int {
		return cmp.Compare(a.box.Left, b.box.Left)
	})
	ix.blocks = ix.blocks[:0]
	for start := 0; start < len(ix.entries); start += blockSize {
		end := min(start+blockSize, len(ix.entries))
		b := block{
			maxRight:  ix.entries[start].box.Right,
			minBottom: ix.entries[start].box.Bottom,
			maxTop:    ix.entries[start].box.Top,
		}
		for _, e := range ix.entries[start+1 : end] {
			b.maxRight = max(b.maxRight, e.box.Right)
			b.minBottom = min(b.minBottom, e.box.Bottom)
			b.maxTop = max(b.maxTop, e.box.Top)
		}
		ix.blocks = append(ix.blocks, b)
	}
	ix.sorted = true
}

// Touching returns all items whose box touches q, in left-edge order.
func (ix *Index[T]) Touching(q geometry.Box) []T {
	if !ix.sorted {
		ix.Sort()
	}
	// Entries past this position start right of q.
	end, _ := slices.BinarySearchFunc(ix.entries, q.Right+1, func(e entry[T], x int) int {
		if e.box.Left < x {
			return -1
		}
		return 1
	})

	var out []T
	for bi, b := range ix.blocks {
		start := bi * blockSize
		if start >= end {
			break
		}
		if b.maxRight < q.Left || b.minBottom > q.Top || b.maxTop < q.Bottom {
			continue
		}
		for _, e := range ix.entries[start:min(start+blockSize, end)] {
			if e.box.Touches(q) {
				out = append(out, e.item)
			}
		}
	}
	return out
}
