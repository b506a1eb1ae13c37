package boolop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"layout-tracer/pkg/geometry"
)

func box(x1, y1, x2, y2 int) geometry.Polygon {
	return geometry.NewBox(x1, y1, x2, y2).Polygon()
}

func area(polys []geometry.Polygon) int64 {
	var a int64
	for _, p := range polys {
		a += p.Area()
	}
	return a
}

func TestGridBoolean(t *testing.T) {
	a := []geometry.Polygon{box(0, 0, 10, 10)}
	b := []geometry.Polygon{box(5, 0, 15, 10)}

	tests := []struct {
		op   Op
		want []geometry.Polygon
	}{
		{Or, []geometry.Polygon{box(0, 0, 15, 10)}},
		{And, []geometry.Polygon{box(5, 0, 10, 10)}},
		{AndNot, []geometry.Polygon{box(0, 0, 5, 10)}},
		{Xor, []geometry.Polygon{box(0, 0, 5, 10), box(10, 0, 15, 10)}},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			got, err := Grid{}.Boolean(a, b, tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGridHole(t *testing.T) {
	got, err := Grid{}.Boolean(
		[]geometry.Polygon{box(0, 0, 30, 30)},
		[]geometry.Polygon{box(10, 10, 20, 20)},
		AndNot,
	)
	require.NoError(t, err)
	assert.Equal(t, int64(800), area(got))
	assert.Equal(t, []geometry.Polygon{
		box(0, 0, 30, 10),
		box(0, 10, 10, 20),
		box(20, 10, 30, 20),
		box(0, 20, 30, 30),
	}, got)
}

func TestGridMergeCanonical(t *testing.T) {
	// The same region built from different pieces merges to the same result
	first, err := Grid{}.Merge([]geometry.Polygon{box(0, 0, 10, 5), box(0, 5, 10, 10)}, false)
	require.NoError(t, err)
	second, err := Grid{}.Merge([]geometry.Polygon{box(0, 0, 4, 10), box(3, 0, 10, 10), box(2, 2, 3, 3)}, true)
	require.NoError(t, err)
	assert.Equal(t, []geometry.Polygon{box(0, 0, 10, 10)}, first)
	assert.Equal(t, first, second)
}

func TestGridLShape(t *testing.T) {
	l := geometry.NewPolygon(
		geometry.Point{X: 0, Y: 0}, geometry.Point{X: 20, Y: 0}, geometry.Point{X: 20, Y: 10},
		geometry.Point{X: 10, Y: 10}, geometry.Point{X: 10, Y: 20}, geometry.Point{X: 0, Y: 20},
	)
	got, err := Grid{}.Boolean([]geometry.Polygon{l}, []geometry.Polygon{box(5, 5, 15, 15)}, And)
	require.NoError(t, err)
	assert.Equal(t, int64(75), area(got))
}

func TestGridEmpty(t *testing.T) {
	got, err := Grid{}.Boolean(nil, nil, Or)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Grid{}.Boolean([]geometry.Polygon{box(0, 0, 1, 1)}, []geometry.Polygon{box(5, 5, 6, 6)}, And)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGridNonManhattan(t *testing.T) {
	tri := geometry.NewPolygon(geometry.Point{X: 0, Y: 0}, geometry.Point{X: 10, Y: 0}, geometry.Point{X: 0, Y: 10})
	_, err := Grid{}.Boolean([]geometry.Polygon{tri}, nil, Or)
	assert.ErrorIs(t, err, ErrNonManhattan)
}

func TestOpApply(t *testing.T) {
	assert.True(t, Or.Apply(true, false))
	assert.False(t, And.Apply(true, false))
	assert.True(t, Xor.Apply(false, true))
	assert.False(t, AndNot.Apply(true, true))
	assert.Equal(t, "NOT", AndNot.String())
}
