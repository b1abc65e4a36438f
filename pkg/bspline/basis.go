package bspline

import (
	"fmt"
	"sort"

	"github.com/nainya/hsplines/pkg/sparse"
)

// Basis is a univariate B-spline basis of a fixed degree. It is immutable;
// refinement returns a new Basis.
type Basis struct {
	knots KnotVector
	deg   int
}

// NewBasis validates that knots can carry at least one function of degree deg,
// that no knot exceeds multiplicity deg+1 and that both end knots are clamped
// (multiplicity exactly deg+1), so the parameter domain spans every knot span.
func NewBasis(knots KnotVector, deg int) (*Basis, error) {
	if deg < 0 {
		return nil, fmt.Errorf("%w: negative degree %d", ErrInvalidDegree, deg)
	}
	if knots.Len() < 2*deg+2 {
		return nil, fmt.Errorf("%w: %d knots cannot carry degree %d", ErrInvalidDegree, knots.Len(), deg)
	}
	for u := 0; u < knots.USize(); u++ {
		if m := knots.Multiplicity(knots.UValue(u)); m > deg+1 {
			return nil, fmt.Errorf("%w: knot %v has multiplicity %d > %d", ErrInvalidKnots, knots.UValue(u), m, deg+1)
		}
	}
	if knots.Multiplicity(knots.First()) != deg+1 || knots.Multiplicity(knots.Last()) != deg+1 {
		return nil, fmt.Errorf("%w: end knots of %v are not clamped for degree %d", ErrInvalidKnots, knots, deg)
	}
	return &Basis{knots: knots, deg: deg}, nil
}

// MustBasis is NewBasis that panics on error
func MustBasis(knots KnotVector, deg int) *Basis {
	b, err := NewBasis(knots, deg)
	if err != nil {
		panic(err)
	}
	return b
}

// Degree returns the polynomial degree
func (b *Basis) Degree() int { return b.deg }

// Knots returns the knot vector
func (b *Basis) Knots() KnotVector { return b.knots }

// Size returns the number of basis functions
func (b *Basis) Size() int { return b.knots.Len() - b.deg - 1 }

// Domain returns the parameter interval [t_p, t_n]
func (b *Basis) Domain() (float64, float64) {
	return b.knots.At(b.deg), b.knots.At(b.Size())
}

// Support returns the parametric support of function i
func (b *Basis) Support(i int) (float64, float64) {
	return b.knots.At(i), b.knots.At(i + b.deg + 1)
}

// SupportIndex returns the support of function i in unique-knot indices
func (b *Basis) SupportIndex(i int) (int, int) {
	return b.knots.UIndex(i), b.knots.UIndex(i + b.deg + 1)
}

// Overlapping returns the index range of functions whose support overlaps the
// unique-knot span range [lo, hi). The range is empty when first > last.
func (b *Basis) Overlapping(lo, hi int) (first, last int) {
	first = b.knots.LastKnotIndex(lo) - b.deg
	last = b.knots.FirstKnotIndex(hi) - 1
	return max(first, 0), min(last, b.Size()-1)
}

// span returns k with t_k <= x < t_{k+1}, restricted to [p, n-1]
func (b *Basis) span(x float64) int {
	n := b.Size()
	lo, hi := b.Domain()
	if x >= hi {
		// last nonzero span of the domain
		k := n - 1
		for k > b.deg && b.knots.At(k) == b.knots.At(k+1) {
			k--
		}
		return k
	}
	if x <= lo {
		k := b.deg
		for k < n-1 && b.knots.At(k) == b.knots.At(k+1) {
			k++
		}
		return k
	}
	k := sort.Search(b.knots.Len(), func(i int) bool { return b.knots.At(i) > x }) - 1
	return max(b.deg, min(k, n-1))
}

// Active returns the first and last index of the functions nonzero at x
func (b *Basis) Active(x float64) (int, int) {
	k := b.span(x)
	return k - b.deg, k
}

// Eval returns the values of the deg+1 functions nonzero at x, starting at
// function first.
func (b *Basis) Eval(x float64) (first int, vals []float64) {
	k := b.span(x)
	p := b.deg
	vals = make([]float64, p+1)
	left := make([]float64, p+1)
	right := make([]float64, p+1)
	vals[0] = 1
	for j := 1; j <= p; j++ {
		left[j] = x - b.knots.At(k+1-j)
		right[j] = b.knots.At(k+j) - x
		saved := 0.0
		for r := 0; r < j; r++ {
			den := right[r+1] + left[j-r]
			var tmp float64
			if den != 0 {
				tmp = vals[r] / den
			}
			vals[r] = saved + right[r+1]*tmp
			saved = left[j-r] * tmp
		}
		vals[j] = saved
	}
	return k - p, vals
}

// EvalSingle returns function i at x
func (b *Basis) EvalSingle(i int, x float64) float64 {
	first, vals := b.Eval(x)
	if i < first || i > first+b.deg {
		return 0
	}
	return vals[i-first]
}

// InsertKnots returns the basis with the given knots inserted
func (b *Basis) InsertKnots(xs []float64) *Basis {
	if len(xs) == 0 {
		return b
	}
	return &Basis{knots: b.knots.Merge(xs), deg: b.deg}
}

// UniformRefine returns the dyadically refined basis
func (b *Basis) UniformRefine() *Basis {
	return b.InsertKnots(b.knots.Midpoints())
}

// UniformRefineWithTransfer returns the dyadically refined basis and the
// transfer from the coarse coefficients to the fine ones.
func (b *Basis) UniformRefineWithTransfer() (*Basis, *sparse.Matrix) {
	return b.RefineWithTransfer(b.knots.Midpoints())
}

// RefineWithTransfer inserts xs and returns the refined basis together with
// the (fine x coarse) matrix T satisfying c_fine = T c_coarse.
func (b *Basis) RefineWithTransfer(xs []float64) (*Basis, *sparse.Matrix) {
	type entry struct {
		col int
		val float64
	}
	p := b.deg
	knots := b.knots.Values()
	rows := make([][]entry, b.Size())
	for i := range rows {
		rows[i] = []entry{{i, 1}}
	}

	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	for _, x := range sorted {
		if x < knots[0] || x >= knots[len(knots)-1] {
			panic(fmt.Sprintf("bspline: cannot insert knot %v outside [%v,%v)", x, knots[0], knots[len(knots)-1]))
		}
		k := sort.Search(len(knots), func(i int) bool { return knots[i] > x }) - 1
		next := make([][]entry, len(rows)+1)
		for i := range next {
			switch {
			case i <= k-p:
				next[i] = rows[i]
			case i >= k+1:
				next[i] = rows[i-1]
			default:
				a := (x - knots[i]) / (knots[i+p] - knots[i])
				merged := make(map[int]float64, len(rows[i])+len(rows[i-1]))
				for _, e := range rows[i] {
					merged[e.col] += a * e.val
				}
				for _, e := range rows[i-1] {
					merged[e.col] += (1 - a) * e.val
				}
				row := make([]entry, 0, len(merged))
				for c, v := range merged {
					if v != 0 {
						row = append(row, entry{c, v})
					}
				}
				next[i] = row
			}
		}
		rows = next
		knots = append(knots[:k+1], append([]float64{x}, knots[k+1:]...)...)
	}

	tb := sparse.NewBuilder(len(rows), b.Size())
	for i, row := range rows {
		for _, e := range row {
			tb.Add(i, e.col, e.val)
		}
	}
	return &Basis{knots: newKnotVector(knots), deg: p}, tb.Build()
}

// DegreeElevate raises the degree by r and every knot multiplicity by r,
// keeping the continuity at each knot.
func (b *Basis) DegreeElevate(r int) *Basis {
	if r <= 0 {
		return b
	}
	return &Basis{knots: b.knots.ElevateMultiplicity(r), deg: b.deg + r}
}

// DegreeIncrease raises the degree by r and the multiplicity of the end knots
// by r, raising the continuity at interior knots.
func (b *Basis) DegreeIncrease(r int) *Basis {
	if r <= 0 {
		return b
	}
	kv := b.knots.InsertKnot(b.knots.First(), r).InsertKnot(b.knots.Last(), r)
	return &Basis{knots: kv, deg: b.deg + r}
}

// InsertKnot returns the basis with x inserted mult times
func (b *Basis) InsertKnot(x float64, mult int) *Basis {
	return &Basis{knots: b.knots.InsertKnot(x, mult), deg: b.deg}
}
