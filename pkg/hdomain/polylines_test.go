package hdomain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundaryPolylinesSingleBox(t *testing.T) {
	tree := New([]int{4, 4})
	tree.InsertBox([]int{2, 2}, []int{6, 4}, 1)

	res, loops := tree.BoundaryPolylines()
	require.Equal(t, 1, res)
	require.Len(t, loops, 2)

	// level 0 is the whole domain
	require.Len(t, loops[0], 1)
	assert.Equal(t, [2]int{0, 0}, loops[0][0].Lower)
	assert.Equal(t, [2]int{8, 8}, loops[0][0].Upper)
	assert.Len(t, loops[0][0].Segments, 4)

	require.Len(t, loops[1], 1)
	pl := loops[1][0]
	assert.Equal(t, [2]int{2, 2}, pl.Lower)
	assert.Equal(t, [2]int{6, 4}, pl.Upper)
	assert.ElementsMatch(t, []Segment{
		{2, 2, 6, 2},
		{6, 2, 6, 4},
		{6, 4, 2, 4},
		{2, 4, 2, 2},
	}, pl.Segments)
}

func TestBoundaryPolylinesTouchingCorners(t *testing.T) {
	tree := New([]int{2, 2})
	tree.InsertBox([]int{0, 0}, []int{1, 1}, 0)
	tree.InsertBox([]int{0, 0}, []int{2, 2}, 1)
	tree.InsertBox([]int{2, 2}, []int{4, 4}, 1)

	_, loops := tree.BoundaryPolylines()
	require.Len(t, loops, 2)
	assert.Len(t, loops[1], 2)
	for _, pl := range loops[1] {
		assert.Len(t, pl.Segments, 4)
	}
}

func TestBoundaryPolylinesNeeds2D(t *testing.T) {
	assert.Panics(t, func() { New([]int{4}).BoundaryPolylines() })
}
