// ABOUTME: Transfer matrices between a basis and an earlier, coarser state
// ABOUTME: Rows index the current functions, columns the snapshot's functions

package hbasis

import (
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/nainya/hsplines/pkg/hdomain"
	"github.com/nainya/hsplines/pkg/sparse"
)

// Snapshot is a saved copy of the active sets and tree of a basis
type Snapshot struct {
	xmatrix [][]int
	tree    *hdomain.Tree
}

// Snapshot captures the current active sets
func (b *Basis) Snapshot() Snapshot {
	s := Snapshot{xmatrix: make([][]int, len(b.xmatrix)), tree: b.tree.Clone()}
	for l, x := range b.xmatrix {
		s.xmatrix[l] = slices.Clone(x)
	}
	return s
}

// Size returns the number of active functions in the snapshot
func (s Snapshot) Size() int {
	n := 0
	for _, x := range s.xmatrix {
		n += len(x)
	}
	return n
}

// Transfer returns the matrix T with c_new = T c_old for the plain
// hierarchical basis, where old is a snapshot taken before refinement.
func (b *Basis) Transfer(old Snapshot) *sparse.Matrix {
	return b.transfer(old, false)
}

// TransferTruncated is Transfer for the truncated hierarchical basis
func (b *Basis) TransferTruncated(old Snapshot) *sparse.Matrix {
	return b.transfer(old, true)
}

// TransferFor dispatches on the basis mode
func (b *Basis) TransferFor(old Snapshot) *sparse.Matrix {
	return b.transfer(old, b.mode == Truncated)
}

// transfer walks the levels from coarse to fine carrying, for every level-k
// function, its coefficient row over the old global functions. Old functions
// enter as unit rows at their level; rows of functions active in the new
// basis are emitted; the rest are refined into level k+1.
//
// In the plain variant an emitted row is consumed. In the truncated variant
// every row is refined further, and children whose support lies inside the
// old level-(k+1) region are dropped, mirroring the truncation of the old
// functions.
func (b *Basis) transfer(old Snapshot, truncate bool) *sparse.Matrix {
	start := time.Now()

	maxLevel := max(len(old.xmatrix), len(b.xmatrix)) - 1
	b.levels.need(maxLevel)
	for len(b.xmatrix) <= maxLevel {
		b.xmatrix = append(b.xmatrix, nil)
	}
	b.offsets = offsetsOf(b.xmatrix)
	oldOffsets := offsetsOf(old.xmatrix)

	out := sparse.NewBuilder(b.Size(), oldOffsets[len(oldOffsets)-1])
	pending := make(map[int]map[int]float64)
	for k := 0; k <= maxLevel; k++ {
		if k > 0 {
			pending = b.refineRows(pending, k-1, truncate, old.tree)
		}
		if k < len(old.xmatrix) {
			for pos, f := range old.xmatrix[k] {
				row := pending[f]
				if row == nil {
					row = make(map[int]float64)
					pending[f] = row
				}
				row[oldOffsets[k]+pos] += 1
			}
		}
		for pos, f := range b.xmatrix[k] {
			for col, v := range pending[f] {
				out.Add(b.offsets[k]+pos, col, v)
			}
			if !truncate {
				delete(pending, f)
			}
		}
	}
	T := out.Build()

	b.dropEmptyLevels()

	elapsed := time.Since(start)
	b.log.Debug().
		Bool("truncated", truncate).
		Int("rows", b.Size()).
		Int("cols", oldOffsets[len(oldOffsets)-1]).
		Int("nnz", T.NNZ()).
		Dur("duration", elapsed).
		Msg("computed transfer")
	if b.obs != nil {
		b.obs.ObserveTransfer(b.mode, elapsed, T.NNZ())
	}
	return T
}

// refineRows expresses level-k rows in level k+1
func (b *Basis) refineRows(rows map[int]map[int]float64, k int, truncate bool, oldTree *hdomain.Tree) map[int]map[int]float64 {
	next := make(map[int]map[int]float64, len(rows))
	if len(rows) == 0 {
		return next
	}
	children := b.levels.transposedTransfer(k)
	fine := b.levels.at(k + 1)
	dropped := make(map[int]bool)
	for f, row := range rows {
		cols, vals := children.Row(f)
		for c, child := range cols {
			if truncate {
				drop, seen := dropped[child]
				if !seen {
					lo, hi := fine.ElementSupport(child)
					drop = degenerate(lo, hi) || oldTree.QueryMinLevel(lo, hi, k+1) >= k+1
					dropped[child] = drop
				}
				if drop {
					continue
				}
			}
			nr := next[child]
			if nr == nil {
				nr = make(map[int]float64, len(row))
				next[child] = nr
			}
			for col, v := range row {
				nr[col] += vals[c] * v
			}
		}
	}
	return next
}

// dropEmptyLevels removes trailing levels without active functions from the
// characteristic sets and the level stack.
func (b *Basis) dropEmptyLevels() {
	n := len(b.xmatrix)
	for n > 1 && len(b.xmatrix[n-1]) == 0 {
		n--
	}
	if n == len(b.xmatrix) {
		return
	}
	b.xmatrix = b.xmatrix[:n]
	b.offsets = offsetsOf(b.xmatrix)
	b.levels.truncate(n)
}

// RefineWithTransfer refines like Refine and returns the transfer matching
// the basis mode.
func (b *Basis) RefineWithTransfer(boxes ...ParamBox) *sparse.Matrix {
	old := b.Snapshot()
	b.Refine(boxes...)
	return b.TransferFor(old)
}

// RefineElementsWithTransfer refines like RefineElements and returns the
// transfer matching the basis mode.
func (b *Basis) RefineElementsWithTransfer(boxes ...IndexBox) *sparse.Matrix {
	old := b.Snapshot()
	b.RefineElements(boxes...)
	return b.TransferFor(old)
}

// RefineWithCoefs refines like Refine and returns coefs (one row per
// function, one column per component) expressed in the refined basis.
func (b *Basis) RefineWithCoefs(coefs *mat.Dense, boxes ...ParamBox) *mat.Dense {
	b.checkCoefs(coefs)
	return b.RefineWithTransfer(boxes...).MulDense(coefs)
}

// RefineElementsWithCoefs is RefineWithCoefs for index boxes
func (b *Basis) RefineElementsWithCoefs(coefs *mat.Dense, boxes ...IndexBox) *mat.Dense {
	b.checkCoefs(coefs)
	return b.RefineElementsWithTransfer(boxes...).MulDense(coefs)
}

// UniformRefineWithTransfer refines every region by one level and returns
// the transfer matching the basis mode.
func (b *Basis) UniformRefineWithTransfer() *sparse.Matrix {
	old := b.Snapshot()

	// a copy with every region one level finer has the same active functions
	// as the uniformly refined basis, shifted up one level
	lifted := b.Clone()
	grid := b.tree.ResolutionLevel()
	for leaf := range b.tree.Leaves() {
		lo, hi := leaf.Corners(grid)
		lifted.tree.InsertBoxOnGrid(lo, hi, grid, leaf.Level+1)
	}
	lifted.UpdateStructure()
	T := lifted.TransferFor(old)

	b.UniformRefine()
	if rows, _ := T.Dims(); rows != b.Size() {
		panic(fmt.Sprintf("hbasis: uniform refinement transfer has %d rows for %d functions", rows, b.Size()))
	}
	return T
}

// UniformRefineWithCoefs refines every region by one level and returns
// coefs expressed in the refined basis.
func (b *Basis) UniformRefineWithCoefs(coefs *mat.Dense) *mat.Dense {
	b.checkCoefs(coefs)
	return b.UniformRefineWithTransfer().MulDense(coefs)
}

func (b *Basis) checkCoefs(coefs *mat.Dense) {
	if r, _ := coefs.Dims(); r != b.Size() {
		panic(fmt.Sprintf("hbasis: %d coefficient rows for %d functions", r, b.Size()))
	}
}
