package hbasis

import (
	"iter"
	"slices"

	"github.com/nainya/hsplines/pkg/bspline"
	"github.com/nainya/hsplines/pkg/hdomain"
)

// Element is one knot-span cell of a tree leaf
type Element struct {
	Level        int
	Lower, Upper []float64
}

// Center returns the element midpoint
func (e Element) Center() []float64 {
	c := make([]float64, len(e.Lower))
	for i := range c {
		c[i] = (e.Lower[i] + e.Upper[i]) / 2
	}
	return c
}

// Elements visits every element of every leaf. Leaves aligned with the grid
// of their own level are split into cells of that level, others into cells
// of the tree resolution level.
func (b *Basis) Elements() iter.Seq[Element] {
	return func(yield func(Element) bool) {
		for leaf := range b.tree.Leaves() {
			if !b.leafElements(leaf, -1, false, yield) {
				return
			}
		}
	}
}

// BoundaryElements visits the elements adjacent to side
func (b *Basis) BoundaryElements(side bspline.Side) iter.Seq[Element] {
	dir := side.Direction()
	b.checkDir(dir)
	return func(yield func(Element) bool) {
		found := false
		for leaf := range b.tree.Leaves() {
			if !leaf.Touches(b.tree, dir, side.Upper()) {
				continue
			}
			found = true
			if !b.leafElements(leaf, dir, side.Upper(), yield) {
				return
			}
		}
		if !found {
			b.log.Warn().Stringer("side", side).Msg("no leaves found on side")
		}
	}
}

// leafElements yields the cells of a leaf; with dir >= 0 only the layer
// touching the lower or upper face of dir.
func (b *Basis) leafElements(leaf hdomain.Leaf, dir int, upper bool, yield func(Element) bool) bool {
	grid := leaf.Level
	if !leaf.Aligned(grid) {
		grid = b.tree.ResolutionLevel()
	}
	tb := b.levels.at(grid)
	lo, hi := leaf.Corners(grid)
	last := make([]int, len(hi))
	for i := range hi {
		last[i] = hi[i] - 1
	}
	if dir >= 0 {
		if upper {
			lo[dir] = last[dir]
		} else {
			last[dir] = lo[dir]
		}
	}

	cur := slices.Clone(lo)
	for ok := true; ok; ok = bspline.NextCubePoint(cur, lo, last) {
		e := Element{
			Level: leaf.Level,
			Lower: make([]float64, len(cur)),
			Upper: make([]float64, len(cur)),
		}
		for i, c := range cur {
			kv := tb.Knots(i)
			e.Lower[i] = kv.UValue(c)
			e.Upper[i] = kv.UValue(c + 1)
		}
		if !yield(e) {
			return false
		}
	}
	return true
}

// ElementActive returns the functions active on an element
func (b *Basis) ElementActive(e Element) []int {
	return b.ActiveAt(e.Center())
}

// NumElements counts the elements of all leaves
func (b *Basis) NumElements() int {
	n := 0
	for range b.Elements() {
		n++
	}
	return n
}
