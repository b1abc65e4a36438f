package sparse

// Kronecker returns the Kronecker product a ⊗ b
func Kronecker(a, b *Matrix) *Matrix {
	out := NewBuilder(a.rows*b.rows, a.cols*b.cols)
	a.DoNonZero(func(i, j int, av float64) {
		b.DoNonZero(func(k, l int, bv float64) {
			out.Add(i*b.rows+k, j*b.cols+l, av*bv)
		})
	})
	return out.Build()
}

// TensorCombine combines per-direction operators into the operator acting on
// lexicographically ordered tensor indices, with direction 0 running fastest.
func TensorCombine(ops ...*Matrix) *Matrix {
	if len(ops) == 0 {
		return Identity(1)
	}
	res := ops[0]
	for _, op := range ops[1:] {
		res = Kronecker(op, res)
	}
	return res
}
