package hbasis

import (
	"fmt"
	"iter"
	"slices"
	"sort"

	"github.com/nainya/hsplines/pkg/bspline"
	"github.com/nainya/hsplines/pkg/hdomain"
)

// LevelOf returns the level of global function g
func (b *Basis) LevelOf(g int) int {
	b.checkGlobal(g)
	return sort.Search(len(b.offsets), func(i int) bool { return b.offsets[i] > g }) - 1
}

// FlatIndex returns the level and level-local flat tensor index of global
// function g.
func (b *Basis) FlatIndex(g int) (level, flat int) {
	level = b.LevelOf(g)
	return level, b.xmatrix[level][g-b.offsets[level]]
}

// GlobalIndex returns the global index of the level function flat, or -1
// when it is not active.
func (b *Basis) GlobalIndex(flat, level int) int {
	if level < 0 || level >= len(b.xmatrix) {
		return -1
	}
	pos, ok := slices.BinarySearch(b.xmatrix[level], flat)
	if !ok {
		return -1
	}
	return b.offsets[level] + pos
}

// GlobalIndices maps several level functions at once, -1 marking inactive ones
func (b *Basis) GlobalIndices(flats []int, level int) []int {
	out := make([]int, len(flats))
	for i, f := range flats {
		out[i] = b.GlobalIndex(f, level)
	}
	return out
}

// IsActive reports whether the level function flat is active
func (b *Basis) IsActive(flat, level int) bool {
	return b.GlobalIndex(flat, level) >= 0
}

// Support returns the parametric support box of global function g
func (b *Basis) Support(g int) (lo, hi []float64) {
	level, flat := b.FlatIndex(g)
	return b.levels.at(level).Support(flat)
}

// LevelAtPoint returns the level of the region containing the parameter
// point x.
func (b *Basis) LevelAtPoint(x []float64) int {
	if len(x) != b.Dim() {
		panic(fmt.Sprintf("hbasis: point %v does not have dimension %d", x, b.Dim()))
	}
	res := b.tree.ResolutionLevel()
	tb := b.levels.at(res)
	cell := make([]int, len(x))
	for i := range x {
		cell[i] = tb.Knots(i).UFind(x[i])
	}
	return b.tree.LevelOf(cell, res)
}

// ActiveAt returns the ascending global indices of the functions that are
// nonzero at x.
func (b *Basis) ActiveAt(x []float64) []int {
	lvl := min(b.LevelAtPoint(x), len(b.xmatrix)-1)
	var out []int
	for l := 0; l <= lvl; l++ {
		tb := b.levels.at(l)
		lo, hi := tb.ActiveCwise(x)
		cur := slices.Clone(lo)
		for ok := true; ok; ok = bspline.NextCubePoint(cur, lo, hi) {
			if g := b.GlobalIndex(tb.Index(cur), l); g >= 0 {
				out = append(out, g)
			}
		}
	}
	slices.Sort(out)
	return out
}

// NumActiveAt returns len(ActiveAt(x))
func (b *Basis) NumActiveAt(x []float64) int {
	return len(b.ActiveAt(x))
}

// Boundary returns the ascending global indices of active functions on side
func (b *Basis) Boundary(side bspline.Side) []int {
	return b.BoundaryOffset(side, 0)
}

// BoundaryOffset returns the ascending global indices of active functions in
// the layer offset rows away from side, at every level.
func (b *Basis) BoundaryOffset(side bspline.Side, offset int) []int {
	dir := side.Direction()
	b.checkDir(dir)
	var out []int
	for l, act := range b.xmatrix {
		tb := b.levels.at(l)
		fixed := offset
		if side.Upper() {
			fixed = tb.SizeDir(dir) - 1 - offset
		}
		for pos, f := range act {
			if tb.TensorIndex(f)[dir] == fixed {
				out = append(out, b.offsets[l]+pos)
			}
		}
	}
	return out
}

// AllBoundary returns the ascending global indices of active functions on
// any side.
func (b *Basis) AllBoundary() []int {
	var out []int
	for l, act := range b.xmatrix {
		tb := b.levels.at(l)
		for pos, f := range act {
			ind := tb.TensorIndex(f)
			for j, v := range ind {
				if v == 0 || v == tb.SizeDir(j)-1 {
					out = append(out, b.offsets[l]+pos)
					break
				}
			}
		}
	}
	return out
}

// Leaves exposes the refinement tree leaves
func (b *Basis) Leaves() iter.Seq[hdomain.Leaf] {
	return b.tree.Leaves()
}

// ParamPolyline is a boundary loop in parameter coordinates
type ParamPolyline struct {
	Segments     [][4]float64
	Lower, Upper [2]float64
}

// DomainBoundaries returns, per level, the boundary loops of the region
// governed by that level or a finer one, in parameter coordinates. Only
// bivariate bases are supported.
func (b *Basis) DomainBoundaries() [][]ParamPolyline {
	res, loops := b.tree.BoundaryPolylines()
	tb := b.levels.at(res)
	kx, ky := tb.Knots(0), tb.Knots(1)
	out := make([][]ParamPolyline, len(loops))
	for l, level := range loops {
		for _, pl := range level {
			pp := ParamPolyline{
				Lower: [2]float64{kx.UValue(pl.Lower[0]), ky.UValue(pl.Lower[1])},
				Upper: [2]float64{kx.UValue(pl.Upper[0]), ky.UValue(pl.Upper[1])},
			}
			for _, s := range pl.Segments {
				pp.Segments = append(pp.Segments, [4]float64{
					kx.UValue(s[0]), ky.UValue(s[1]), kx.UValue(s[2]), ky.UValue(s[3]),
				})
			}
			out[l] = append(out[l], pp)
		}
	}
	return out
}

func (b *Basis) checkGlobal(g int) {
	if g < 0 || g >= b.Size() {
		panic(fmt.Sprintf("hbasis: global index %d outside [0,%d)", g, b.Size()))
	}
}
