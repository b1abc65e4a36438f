package hbasis

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/nainya/hsplines/pkg/bspline"
)

// scenarioTensor is the degree-1 basis over [0,0,1,2,3,4,4]
func scenarioTensor(t testing.TB) *bspline.TensorBasis {
	t.Helper()
	kv, err := bspline.NewKnotVector([]float64{0, 0, 1, 2, 3, 4, 4})
	require.NoError(t, err)
	tb, err := bspline.NewTensorBasis(bspline.MustBasis(kv, 1))
	require.NoError(t, err)
	return tb
}

func tensor1D(t testing.TB, interior, deg int) *bspline.TensorBasis {
	t.Helper()
	tb, err := bspline.NewTensorBasis(bspline.MustBasis(bspline.Clamped(0, 1, interior, deg), deg))
	require.NoError(t, err)
	return tb
}

// tensor2D is quadratic in x over 4 spans and linear in y over 3 spans
func tensor2D(t testing.TB) *bspline.TensorBasis {
	t.Helper()
	tb, err := bspline.NewTensorBasis(
		bspline.MustBasis(bspline.Clamped(0, 1, 3, 2), 2),
		bspline.MustBasis(bspline.Clamped(0, 1, 2, 1), 1),
	)
	require.NoError(t, err)
	return tb
}

// randomBoxes draws index boxes at levels 1..maxLevel inside the domain
func randomBoxes(rng *rand.Rand, b *Basis, n, maxLevel int) []IndexBox {
	base := b.TensorLevel(0)
	boxes := make([]IndexBox, 0, n)
	for range n {
		level := 1 + rng.IntN(maxLevel)
		box := IndexBox{Level: level, Lower: make([]int, b.Dim()), Upper: make([]int, b.Dim())}
		for i := range b.Dim() {
			cells := (base.Knots(i).USize() - 1) << level
			width := 1 + rng.IntN(max(1, cells/2))
			box.Lower[i] = rng.IntN(cells - width + 1)
			box.Upper[i] = box.Lower[i] + width
		}
		boxes = append(boxes, box)
	}
	return boxes
}

// samplePoints returns a tensor grid of points covering the domain,
// including its boundary.
func samplePoints(b *Basis, perDir int) [][]float64 {
	lo, hi := b.Domain()
	d := len(lo)
	cur := make([]int, d)
	first := make([]int, d)
	last := make([]int, d)
	for i := range last {
		last[i] = perDir - 1
	}
	var pts [][]float64
	for ok := true; ok; ok = bspline.NextCubePoint(cur, first, last) {
		p := make([]float64, d)
		for i := range p {
			p[i] = lo[i] + (hi[i]-lo[i])*float64(cur[i])/float64(perDir-1)
		}
		pts = append(pts, p)
	}
	return pts
}

func randomCoefs(rng *rand.Rand, n int) *mat.VecDense {
	data := make([]float64, n)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	return mat.NewVecDense(n, data)
}
