package hbasis

import (
	"slices"
	"time"

	"github.com/nainya/hsplines/pkg/bspline"
)

// UpdateStructure rebuilds the characteristic sets and offsets from the tree.
// Every refinement operation ends with it.
func (b *Basis) UpdateStructure() {
	start := time.Now()

	b.levels.need(b.tree.MaxInsertedLevel())
	b.tree.Compress()
	n := b.levels.len()

	switch b.algo {
	case BySweep:
		b.xmatrix = make([][]int, n)
		for l := range n {
			b.xmatrix[l] = b.activeSweep(l)
		}
	default:
		b.xmatrix = b.activeByLeaves(n)
	}
	b.offsets = offsetsOf(b.xmatrix)

	elapsed := time.Since(start)
	b.log.Debug().
		Stringer("mode", b.mode).
		Int("size", b.Size()).
		Int("levels", n).
		Int("leaves", b.tree.LeafCount()).
		Dur("duration", elapsed).
		Msg("rebuilt active sets")
	if b.obs != nil {
		b.obs.ObserveRebuild(b.mode, elapsed, b.Size(), n)
	}
}

// degenerate reports a support box without interior, which carries a zero
// function and is never active.
func degenerate(lo, hi []int) bool {
	for i := range lo {
		if lo[i] >= hi[i] {
			return true
		}
	}
	return false
}

// activeSweep tests every function of a level against the tree
func (b *Basis) activeSweep(level int) []int {
	if level > b.tree.MaxInsertedLevel() {
		return nil
	}
	tb := b.levels.at(level)
	var act []int
	for f := range tb.Size() {
		lo, hi := tb.ElementSupport(f)
		if degenerate(lo, hi) {
			continue
		}
		if b.tree.QueryMinLevel(lo, hi, level) == level {
			act = append(act, f)
		}
	}
	return act
}

// activeByLeaves collects for every leaf the functions of its level that
// overlap it and are active.
func (b *Basis) activeByLeaves(n int) [][]int {
	xmatrix := make([][]int, n)
	for leaf := range b.tree.Leaves() {
		lvl := leaf.Level
		tb := b.levels.at(lvl)
		first, last := tb.Overlapping(leaf.Lower, leaf.Upper)
		if emptyRange(first, last) {
			continue
		}
		cur := slices.Clone(first)
		for ok := true; ok; ok = bspline.NextCubePoint(cur, first, last) {
			lo, hi := tb.ElementSupportOf(cur)
			if degenerate(lo, hi) {
				continue
			}
			if leaf.Contains(lo, hi, lvl) || b.tree.QueryMinLevel(lo, hi, lvl) == lvl {
				xmatrix[lvl] = append(xmatrix[lvl], tb.Index(cur))
			}
		}
	}
	for l := range xmatrix {
		slices.Sort(xmatrix[l])
		xmatrix[l] = slices.Compact(xmatrix[l])
	}
	return xmatrix
}

func emptyRange(first, last []int) bool {
	for i := range first {
		if first[i] > last[i] {
			return true
		}
	}
	return false
}
