package hbasis

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// EvalFunction evaluates global function g at x. In the truncated variant the
// function is truncated against every finer region.
func (b *Basis) EvalFunction(g int, x []float64) float64 {
	level, flat := b.FlatIndex(g)
	if b.mode != Truncated {
		return b.levels.at(level).EvalSingle(flat, x)
	}

	target := max(level, b.LevelAtPoint(x))
	var v float64
	for f, c := range b.truncatedRepresentation(level, flat, target) {
		v += c * b.levels.at(target).EvalSingle(f, x)
	}
	return v
}

// truncatedRepresentation expresses the truncated level function flat in the
// functions of level target.
func (b *Basis) truncatedRepresentation(level, flat, target int) map[int]float64 {
	rep := map[int]float64{flat: 1}
	for k := level; k < target; k++ {
		children := b.levels.transposedTransfer(k)
		fine := b.levels.at(k + 1)
		next := make(map[int]float64)
		for f, c := range rep {
			cols, vals := children.Row(f)
			for j, child := range cols {
				lo, hi := fine.ElementSupport(child)
				if degenerate(lo, hi) || b.tree.QueryMinLevel(lo, hi, k+1) >= k+1 {
					continue
				}
				next[child] += c * vals[j]
			}
		}
		rep = next
	}
	return rep
}

// EvalAll returns the functions nonzero at x and their values
func (b *Basis) EvalAll(x []float64) ([]int, []float64) {
	idx := b.ActiveAt(x)
	vals := make([]float64, len(idx))
	for i, g := range idx {
		vals[i] = b.EvalFunction(g, x)
	}
	return idx, vals
}

// Eval evaluates the spline with the given coefficients at x
func (b *Basis) Eval(x []float64, coefs mat.Vector) float64 {
	if coefs.Len() != b.Size() {
		panic(fmt.Sprintf("hbasis: %d coefficients for %d functions", coefs.Len(), b.Size()))
	}
	idx, vals := b.EvalAll(x)
	var s float64
	for i, g := range idx {
		s += coefs.AtVec(g) * vals[i]
	}
	return s
}
