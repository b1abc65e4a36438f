package bspline

import (
	"fmt"

	"github.com/nainya/hsplines/pkg/sparse"
)

// Side identifies a face of the parameter box. Sides are numbered from 1 as
// west, east, south, north, front, back; side s lies in direction (s-1)/2 at
// the lower end when s is odd.
type Side int

const (
	West Side = iota + 1
	East
	South
	North
	Front
	Back
)

// Direction returns the parametric direction normal to the side
func (s Side) Direction() int { return (int(s) - 1) / 2 }

// Upper reports whether the side lies at the upper end of its direction
func (s Side) Upper() bool { return (int(s)-1)%2 == 1 }

// SideOf returns the side for a direction and end
func SideOf(dir int, upper bool) Side {
	s := Side(2*dir + 1)
	if upper {
		s++
	}
	return s
}

func (s Side) String() string {
	switch s {
	case West:
		return "west"
	case East:
		return "east"
	case South:
		return "south"
	case North:
		return "north"
	case Front:
		return "front"
	case Back:
		return "back"
	}
	return fmt.Sprintf("side(%d)", int(s))
}

// TensorBasis is a tensor product of univariate bases. Flat indices are
// lexicographic with direction 0 running fastest.
type TensorBasis struct {
	comps []*Basis
}

// NewTensorBasis combines univariate bases
func NewTensorBasis(comps ...*Basis) (*TensorBasis, error) {
	if len(comps) == 0 {
		return nil, fmt.Errorf("%w: tensor basis needs at least one direction", ErrDimension)
	}
	for i, c := range comps {
		if c == nil {
			return nil, fmt.Errorf("%w: direction %d is nil", ErrDimension, i)
		}
	}
	return &TensorBasis{comps: append([]*Basis(nil), comps...)}, nil
}

// Clone returns an independent copy. Components are immutable and shared.
func (tb *TensorBasis) Clone() *TensorBasis {
	return &TensorBasis{comps: append([]*Basis(nil), tb.comps...)}
}

// Dim returns the parametric dimension
func (tb *TensorBasis) Dim() int { return len(tb.comps) }

// Component returns the basis in direction i
func (tb *TensorBasis) Component(i int) *Basis { return tb.comps[i] }

// Knots returns the knot vector of direction i
func (tb *TensorBasis) Knots(i int) KnotVector { return tb.comps[i].knots }

// Degree returns the degree in direction i
func (tb *TensorBasis) Degree(i int) int { return tb.comps[i].deg }

// SizeDir returns the number of functions in direction i
func (tb *TensorBasis) SizeDir(i int) int { return tb.comps[i].Size() }

// Size returns the total number of functions
func (tb *TensorBasis) Size() int {
	n := 1
	for _, c := range tb.comps {
		n *= c.Size()
	}
	return n
}

// Stride returns the flat-index stride of direction i
func (tb *TensorBasis) Stride(i int) int {
	s := 1
	for j := 0; j < i; j++ {
		s *= tb.comps[j].Size()
	}
	return s
}

// Index converts a tensor index to a flat index
func (tb *TensorBasis) Index(ind []int) int {
	flat, s := 0, 1
	for i, c := range tb.comps {
		flat += ind[i] * s
		s *= c.Size()
	}
	return flat
}

// TensorIndex converts a flat index to a tensor index
func (tb *TensorBasis) TensorIndex(flat int) []int {
	ind := make([]int, len(tb.comps))
	for i, c := range tb.comps {
		ind[i] = flat % c.Size()
		flat /= c.Size()
	}
	return ind
}

// Domain returns the parameter box
func (tb *TensorBasis) Domain() (lo, hi []float64) {
	lo = make([]float64, len(tb.comps))
	hi = make([]float64, len(tb.comps))
	for i, c := range tb.comps {
		lo[i], hi[i] = c.Domain()
	}
	return lo, hi
}

// Support returns the parametric support box of a function
func (tb *TensorBasis) Support(flat int) (lo, hi []float64) {
	ind := tb.TensorIndex(flat)
	lo = make([]float64, len(ind))
	hi = make([]float64, len(ind))
	for i, c := range tb.comps {
		lo[i], hi[i] = c.Support(ind[i])
	}
	return lo, hi
}

// ElementSupport returns the support box of a function in unique-knot indices
func (tb *TensorBasis) ElementSupport(flat int) (lo, hi []int) {
	return tb.ElementSupportOf(tb.TensorIndex(flat))
}

// ElementSupportOf is ElementSupport for a tensor index
func (tb *TensorBasis) ElementSupportOf(ind []int) (lo, hi []int) {
	lo = make([]int, len(ind))
	hi = make([]int, len(ind))
	for i, c := range tb.comps {
		lo[i], hi[i] = c.SupportIndex(ind[i])
	}
	return lo, hi
}

// ActiveCwise returns per direction the index range of functions nonzero at x
func (tb *TensorBasis) ActiveCwise(x []float64) (lo, hi []int) {
	lo = make([]int, len(tb.comps))
	hi = make([]int, len(tb.comps))
	for i, c := range tb.comps {
		lo[i], hi[i] = c.Active(x[i])
	}
	return lo, hi
}

// Overlapping returns per direction the index range of functions overlapping
// the unique-knot box [lo, hi).
func (tb *TensorBasis) Overlapping(lo, hi []int) (first, last []int) {
	first = make([]int, len(tb.comps))
	last = make([]int, len(tb.comps))
	for i, c := range tb.comps {
		first[i], last[i] = c.Overlapping(lo[i], hi[i])
	}
	return first, last
}

// EvalSingle evaluates one function at x
func (tb *TensorBasis) EvalSingle(flat int, x []float64) float64 {
	ind := tb.TensorIndex(flat)
	v := 1.0
	for i, c := range tb.comps {
		v *= c.EvalSingle(ind[i], x[i])
		if v == 0 {
			return 0
		}
	}
	return v
}

// Eval returns the flat indices and values of all functions nonzero at x,
// in ascending index order.
func (tb *TensorBasis) Eval(x []float64) ([]int, []float64) {
	d := len(tb.comps)
	first := make([]int, d)
	vals := make([][]float64, d)
	for i, c := range tb.comps {
		first[i], vals[i] = c.Eval(x[i])
	}
	lo := make([]int, d)
	hi := make([]int, d)
	for i := range d {
		hi[i] = len(vals[i]) - 1
	}

	var idx []int
	var out []float64
	cur := append([]int(nil), lo...)
	ind := make([]int, d)
	for ok := true; ok; ok = NextCubePoint(cur, lo, hi) {
		v := 1.0
		for i := range d {
			v *= vals[i][cur[i]]
			ind[i] = first[i] + cur[i]
		}
		idx = append(idx, tb.Index(ind))
		out = append(out, v)
	}
	return idx, out
}

// Boundary returns the flat indices of functions on a side, ascending
func (tb *TensorBasis) Boundary(side Side) []int {
	return tb.BoundaryOffset(side, 0)
}

// BoundaryOffset returns the flat indices of the functions in the layer that
// lies offset rows away from a side, ascending.
func (tb *TensorBasis) BoundaryOffset(side Side, offset int) []int {
	dir := side.Direction()
	if dir >= tb.Dim() {
		panic(fmt.Sprintf("bspline: side %v out of range for dimension %d", side, tb.Dim()))
	}
	fixed := offset
	if side.Upper() {
		fixed = tb.SizeDir(dir) - 1 - offset
	}
	lo := make([]int, tb.Dim())
	hi := make([]int, tb.Dim())
	for i := range hi {
		hi[i] = tb.SizeDir(i) - 1
	}
	lo[dir], hi[dir] = fixed, fixed

	var out []int
	cur := append([]int(nil), lo...)
	for ok := true; ok; ok = NextCubePoint(cur, lo, hi) {
		out = append(out, tb.Index(cur))
	}
	return out
}

// UniformRefine refines every direction dyadically in place
func (tb *TensorBasis) UniformRefine() {
	for i, c := range tb.comps {
		tb.comps[i] = c.UniformRefine()
	}
}

// UniformRefineWithTransfer refines dyadically in place and returns the
// tensor transfer matrix.
func (tb *TensorBasis) UniformRefineWithTransfer() *sparse.Matrix {
	ops := make([]*sparse.Matrix, len(tb.comps))
	for i, c := range tb.comps {
		tb.comps[i], ops[i] = c.UniformRefineWithTransfer()
	}
	return sparse.TensorCombine(ops...)
}

// RefineWithTransfer inserts knots[i] in direction i in place and returns
// the tensor transfer matrix.
func (tb *TensorBasis) RefineWithTransfer(knots [][]float64) *sparse.Matrix {
	if len(knots) != len(tb.comps) {
		panic(fmt.Sprintf("bspline: %d knot lists for dimension %d", len(knots), len(tb.comps)))
	}
	ops := make([]*sparse.Matrix, len(tb.comps))
	for i, c := range tb.comps {
		tb.comps[i], ops[i] = c.RefineWithTransfer(knots[i])
	}
	return sparse.TensorCombine(ops...)
}

// TransferTo returns the tensor transfer from tb to a finer nested basis
func (tb *TensorBasis) TransferTo(finer *TensorBasis) *sparse.Matrix {
	knots := make([][]float64, tb.Dim())
	for i := range knots {
		knots[i] = tb.Knots(i).SymDifference(finer.Knots(i))
	}
	return tb.Clone().RefineWithTransfer(knots)
}

// DegreeElevate elevates direction dir, or all directions when dir < 0
func (tb *TensorBasis) DegreeElevate(r, dir int) {
	for i, c := range tb.comps {
		if dir < 0 || dir == i {
			tb.comps[i] = c.DegreeElevate(r)
		}
	}
}

// DegreeIncrease increases direction dir, or all directions when dir < 0
func (tb *TensorBasis) DegreeIncrease(r, dir int) {
	for i, c := range tb.comps {
		if dir < 0 || dir == i {
			tb.comps[i] = c.DegreeIncrease(r)
		}
	}
}

// InsertKnot inserts x mult times in direction dir
func (tb *TensorBasis) InsertKnot(dir int, x float64, mult int) {
	tb.comps[dir] = tb.comps[dir].InsertKnot(x, mult)
}

// NextCubePoint advances cur to the next point of the integer box [lo, hi]
// (inclusive) with direction 0 running fastest. It returns false once the
// box is exhausted.
func NextCubePoint(cur, lo, hi []int) bool {
	for i := range cur {
		if cur[i] < hi[i] {
			cur[i]++
			return true
		}
		cur[i] = lo[i]
	}
	return false
}
