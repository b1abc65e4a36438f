package hbasis

import (
	"fmt"

	"github.com/nainya/hsplines/pkg/bspline"
)

// Refine raises by one level every region overlapped by the boxes. Boxes
// are converted to knot spans of the finest materialized level; a box that
// collapses onto a knot grows by one span on each side. Levels are capped at
// hdomain.DefaultIndexLevel: refining a region already at the cap panics and
// leaves that box's regions unchanged.
func (b *Basis) Refine(boxes ...ParamBox) {
	b.RefineAt(b.RefineLevel(), boxes...)
}

// RefineLevel returns the level whose knot spans Refine converts boxes to
func (b *Basis) RefineLevel() int {
	return b.levels.len() - 1
}

// RefineAt is Refine with the boxes converted to knot spans of level
func (b *Basis) RefineAt(level int, boxes ...ParamBox) {
	tb := b.levels.at(level)
	for _, box := range boxes {
		b.checkParamBox(box)
	}
	for _, box := range boxes {
		lo, hi := spanBox(tb, box)
		b.tree.SinkBox(lo, hi, level)
	}
	b.log.Debug().Int("boxes", len(boxes)).Int("refLevel", level).Msg("refine")
	b.UpdateStructure()
}

// RefineWithExtension refines every box to one level above the level at its
// centre, widened by 2*ext knot spans on each side of that level.
func (b *Basis) RefineWithExtension(ext int, boxes ...ParamBox) {
	if ext == 0 {
		b.Refine(boxes...)
		return
	}
	if ext < 0 {
		panic(fmt.Sprintf("hbasis: negative refinement extension %d", ext))
	}
	elems := make([]IndexBox, 0, len(boxes))
	for _, box := range boxes {
		b.checkParamBox(box)
		ctr := make([]float64, len(box.Lower))
		for i := range ctr {
			ctr[i] = (box.Lower[i] + box.Upper[i]) / 2
		}
		refLevel := b.LevelAtPoint(ctr) + 1
		tb := b.levels.at(refLevel)
		lo, hi := spanBox(tb, box)
		for i := range lo {
			lo[i] = max(0, lo[i]-2*ext)
			hi[i] = min(tb.Knots(i).USize()-1, hi[i]+2*ext)
		}
		elems = append(elems, IndexBox{Level: refLevel, Lower: lo, Upper: hi})
	}
	b.RefineElements(elems...)
}

// RefineElements raises every region inside each box to at least the box
// level.
func (b *Basis) RefineElements(boxes ...IndexBox) {
	for _, box := range boxes {
		b.checkIndexBox(box, box.Level)
	}
	for _, box := range boxes {
		b.tree.InsertBox(box.Lower, box.Upper, box.Level)
	}
	b.log.Debug().Int("boxes", len(boxes)).Msg("refine elements")
	b.UpdateStructure()
}

// RefineElementsOnGrid is RefineElements for boxes whose corners are given
// in knot-span indices of level grid instead of their own level.
func (b *Basis) RefineElementsOnGrid(grid int, boxes ...IndexBox) {
	for _, box := range boxes {
		b.checkIndexBox(box, grid)
	}
	for _, box := range boxes {
		b.tree.InsertBoxOnGrid(box.Lower, box.Upper, grid, box.Level)
	}
	b.UpdateStructure()
}

// RefineSide refines the strip along a side, repeating levels times
func (b *Basis) RefineSide(side bspline.Side, levels int) {
	dir := side.Direction()
	b.checkDir(dir)
	lo, hi := b.Domain()
	v := lo[dir]
	if side.Upper() {
		v = hi[dir]
	}
	lo[dir], hi[dir] = v, v
	for range levels {
		b.Refine(ParamBox{Lower: lo, Upper: hi})
	}
}

// UniformRefine refines every region by one level: the coarsest level is
// dropped and a finer one appended, so the level numbers stay the same.
func (b *Basis) UniformRefine() {
	b.levels.shift()
	b.tree.MultiplyByTwo()
	b.log.Debug().Msg("uniform refine")
	b.UpdateStructure()
}

// Compress drops coarse levels without active functions, renumbering the
// remaining levels from zero. Global indices are unchanged.
func (b *Basis) Compress() {
	dropped := 0
	for len(b.xmatrix) > 1 && len(b.xmatrix[0]) == 0 && b.minLeafLevel() > 0 {
		b.levels.dropFirst()
		b.tree.DecrementLevel()
		b.xmatrix = b.xmatrix[1:]
		dropped++
	}
	if dropped > 0 {
		b.offsets = offsetsOf(b.xmatrix)
		b.log.Debug().Int("dropped", dropped).Msg("compressed coarse levels")
	}
}

func (b *Basis) minLeafLevel() int {
	lvl := -1
	for leaf := range b.tree.Leaves() {
		if lvl < 0 || leaf.Level < lvl {
			lvl = leaf.Level
		}
	}
	return lvl
}

// BoxHistory returns the regions above level 0 as boxes on a common grid.
// Applying them with RefineElementsOnGrid to a fresh basis over the same
// level 0 reproduces the tree.
func (b *Basis) BoxHistory() (grid int, boxes []IndexBox) {
	grid = b.tree.ResolutionLevel()
	for leaf := range b.tree.Leaves() {
		if leaf.Level == 0 {
			continue
		}
		lo, hi := leaf.Corners(grid)
		boxes = append(boxes, IndexBox{Level: leaf.Level, Lower: lo, Upper: hi})
	}
	return grid, boxes
}

// spanBox converts a parameter box to knot-span indices of tb
func spanBox(tb *bspline.TensorBasis, box ParamBox) (lo, hi []int) {
	lo = make([]int, tb.Dim())
	hi = make([]int, tb.Dim())
	for i := range lo {
		kv := tb.Knots(i)
		lo[i] = kv.UFind(box.Lower[i])
		hi[i] = kv.UCeil(box.Upper[i])
		if lo[i] >= hi[i] {
			if lo[i] > 0 {
				lo[i]--
			}
			hi[i] = min(hi[i]+1, kv.USize()-1)
		}
	}
	return lo, hi
}

func (b *Basis) checkParamBox(box ParamBox) {
	d := b.Dim()
	if len(box.Lower) != d || len(box.Upper) != d {
		panic(fmt.Sprintf("hbasis: box %v-%v does not have dimension %d", box.Lower, box.Upper, d))
	}
	lo, hi := b.Domain()
	for i := range d {
		if box.Lower[i] > box.Upper[i] || box.Lower[i] < lo[i] || box.Upper[i] > hi[i] {
			panic(fmt.Sprintf("hbasis: box %v-%v outside parameter domain %v-%v", box.Lower, box.Upper, lo, hi))
		}
	}
}

// checkIndexBox validates a box whose corners are knot-span indices of grid
func (b *Basis) checkIndexBox(box IndexBox, grid int) {
	if box.Level < 0 || grid < 0 {
		panic(fmt.Sprintf("hbasis: negative box level %d", min(box.Level, grid)))
	}
	if top := b.tree.IndexLevel(); box.Level > top || grid > top {
		panic(fmt.Sprintf("hbasis: box level %d exceeds index level %d", max(box.Level, grid), top))
	}
	if len(box.Lower) != b.Dim() || len(box.Upper) != b.Dim() {
		panic(fmt.Sprintf("hbasis: box %v-%v does not have dimension %d", box.Lower, box.Upper, b.Dim()))
	}
	upper := b.tree.Upper(grid)
	for i := range box.Lower {
		if box.Lower[i] < 0 || box.Upper[i] > upper[i] || box.Lower[i] > box.Upper[i] {
			panic(fmt.Sprintf("hbasis: box %v-%v at level %d outside domain %v", box.Lower, box.Upper, grid, upper))
		}
	}
}
