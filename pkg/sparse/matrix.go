// ABOUTME: Compressed sparse row matrix used for spline transfer operators
// ABOUTME: Implements gonum's mat.Matrix so transfers mix with dense algebra

package sparse

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Triplet is a single (row, col, value) entry
type Triplet struct {
	Row, Col int
	Val      float64
}

// Matrix is an immutable CSR matrix
type Matrix struct {
	rows, cols int
	indptr     []int // len rows+1
	indices    []int // column of each stored value, ascending within a row
	data       []float64
}

var _ mat.Matrix = (*Matrix)(nil)

// Builder accumulates triplets; duplicates are summed on Build
type Builder struct {
	rows, cols int
	entries    []Triplet
}

// NewBuilder creates a builder for a rows x cols matrix
func NewBuilder(rows, cols int) *Builder {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("sparse: negative dimensions %dx%d", rows, cols))
	}
	return &Builder{rows: rows, cols: cols}
}

// Add adds v to entry (i, j)
func (b *Builder) Add(i, j int, v float64) {
	if i < 0 || i >= b.rows || j < 0 || j >= b.cols {
		panic(fmt.Sprintf("sparse: entry (%d,%d) outside %dx%d", i, j, b.rows, b.cols))
	}
	if v == 0 {
		return
	}
	b.entries = append(b.entries, Triplet{Row: i, Col: j, Val: v})
}

// Build sorts and compresses the accumulated entries
func (b *Builder) Build() *Matrix {
	sort.Slice(b.entries, func(x, y int) bool {
		if b.entries[x].Row != b.entries[y].Row {
			return b.entries[x].Row < b.entries[y].Row
		}
		return b.entries[x].Col < b.entries[y].Col
	})

	m := &Matrix{
		rows:   b.rows,
		cols:   b.cols,
		indptr: make([]int, b.rows+1),
	}
	for k := 0; k < len(b.entries); {
		e := b.entries[k]
		sum := e.Val
		k++
		for k < len(b.entries) && b.entries[k].Row == e.Row && b.entries[k].Col == e.Col {
			sum += b.entries[k].Val
			k++
		}
		if sum == 0 {
			continue
		}
		m.indices = append(m.indices, e.Col)
		m.data = append(m.data, sum)
		m.indptr[e.Row+1]++
	}
	for i := 0; i < m.rows; i++ {
		m.indptr[i+1] += m.indptr[i]
	}
	return m
}

// FromTriplets builds a matrix directly from a triplet list
func FromTriplets(rows, cols int, entries []Triplet) *Matrix {
	b := NewBuilder(rows, cols)
	for _, e := range entries {
		b.Add(e.Row, e.Col, e.Val)
	}
	return b.Build()
}

// Identity returns the n x n identity
func Identity(n int) *Matrix {
	b := NewBuilder(n, n)
	for i := 0; i < n; i++ {
		b.Add(i, i, 1)
	}
	return b.Build()
}

// Dims returns the matrix dimensions
func (m *Matrix) Dims() (int, int) {
	return m.rows, m.cols
}

// At returns entry (i, j)
func (m *Matrix) At(i, j int) float64 {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(mat.ErrIndexOutOfRange)
	}
	cols := m.indices[m.indptr[i]:m.indptr[i+1]]
	k := sort.SearchInts(cols, j)
	if k < len(cols) && cols[k] == j {
		return m.data[m.indptr[i]+k]
	}
	return 0
}

// T returns the implicit transpose, as required by mat.Matrix
func (m *Matrix) T() mat.Matrix {
	return mat.Transpose{Matrix: m}
}

// NNZ returns the number of stored entries
func (m *Matrix) NNZ() int {
	return len(m.data)
}

// Row returns the stored columns and values of row i.
// The slices alias internal storage and must not be modified.
func (m *Matrix) Row(i int) ([]int, []float64) {
	lo, hi := m.indptr[i], m.indptr[i+1]
	return m.indices[lo:hi], m.data[lo:hi]
}

// DoNonZero calls fn for every stored entry in row-major order
func (m *Matrix) DoNonZero(fn func(i, j int, v float64)) {
	for i := 0; i < m.rows; i++ {
		for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
			fn(i, m.indices[k], m.data[k])
		}
	}
}

// Triplets returns a copy of all stored entries
func (m *Matrix) Triplets() []Triplet {
	out := make([]Triplet, 0, m.NNZ())
	m.DoNonZero(func(i, j int, v float64) {
		out = append(out, Triplet{Row: i, Col: j, Val: v})
	})
	return out
}

// MulVec returns m*x
func (m *Matrix) MulVec(x []float64) []float64 {
	if len(x) != m.cols {
		panic(fmt.Sprintf("sparse: MulVec length %d, want %d", len(x), m.cols))
	}
	y := make([]float64, m.rows)
	for i := 0; i < m.rows; i++ {
		var s float64
		for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
			s += m.data[k] * x[m.indices[k]]
		}
		y[i] = s
	}
	return y
}

// MulVecDense returns m*x as a gonum vector
func (m *Matrix) MulVecDense(x mat.Vector) *mat.VecDense {
	if x.Len() != m.cols {
		panic(mat.ErrShape)
	}
	if m.rows == 0 {
		return &mat.VecDense{}
	}
	y := mat.NewVecDense(m.rows, nil)
	for i := 0; i < m.rows; i++ {
		var s float64
		for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
			s += m.data[k] * x.AtVec(m.indices[k])
		}
		y.SetVec(i, s)
	}
	return y
}

// MulDense returns m*x for a dense right-hand side (one column per coordinate)
func (m *Matrix) MulDense(x mat.Matrix) *mat.Dense {
	xr, xc := x.Dims()
	if xr != m.cols {
		panic(mat.ErrShape)
	}
	y := mat.NewDense(m.rows, xc, nil)
	for i := 0; i < m.rows; i++ {
		for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
			v, col := m.data[k], m.indices[k]
			for c := 0; c < xc; c++ {
				y.Set(i, c, y.At(i, c)+v*x.At(col, c))
			}
		}
	}
	return y
}

// Transpose returns an explicit CSR transpose
func (m *Matrix) Transpose() *Matrix {
	t := &Matrix{
		rows:    m.cols,
		cols:    m.rows,
		indptr:  make([]int, m.cols+1),
		indices: make([]int, len(m.indices)),
		data:    make([]float64, len(m.data)),
	}
	for _, j := range m.indices {
		t.indptr[j+1]++
	}
	for j := 0; j < m.cols; j++ {
		t.indptr[j+1] += t.indptr[j]
	}
	next := append([]int(nil), t.indptr[:m.cols]...)
	for i := 0; i < m.rows; i++ {
		for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
			j := m.indices[k]
			t.indices[next[j]] = i
			t.data[next[j]] = m.data[k]
			next[j]++
		}
	}
	return t
}

// Mul returns the product a*b
func Mul(a, b *Matrix) *Matrix {
	if a.cols != b.rows {
		panic(fmt.Sprintf("sparse: Mul shape mismatch %dx%d * %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	out := NewBuilder(a.rows, b.cols)
	acc := make(map[int]float64)
	for i := 0; i < a.rows; i++ {
		clear(acc)
		for k := a.indptr[i]; k < a.indptr[i+1]; k++ {
			av, r := a.data[k], a.indices[k]
			for l := b.indptr[r]; l < b.indptr[r+1]; l++ {
				acc[b.indices[l]] += av * b.data[l]
			}
		}
		for j, v := range acc {
			out.Add(i, j, v)
		}
	}
	return out.Build()
}

// Dense converts the matrix into a gonum dense matrix
func (m *Matrix) Dense() *mat.Dense {
	if m.rows == 0 || m.cols == 0 {
		return &mat.Dense{}
	}
	d := mat.NewDense(m.rows, m.cols, nil)
	m.DoNonZero(func(i, j int, v float64) {
		d.Set(i, j, v)
	})
	return d
}
