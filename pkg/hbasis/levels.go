package hbasis

import (
	"fmt"
	"sync"

	"github.com/nainya/hsplines/pkg/bspline"
	"github.com/nainya/hsplines/pkg/sparse"
)

// levelStack is the lazily grown stack of nested tensor-product levels.
// Growth never alters existing levels and is safe under concurrent queries.
type levelStack struct {
	mu        sync.Mutex
	bases     []*bspline.TensorBasis
	transfers []*sparse.Matrix // transfers[k]: level k -> k+1, transposed
}

func newLevelStack(base *bspline.TensorBasis) *levelStack {
	return &levelStack{bases: []*bspline.TensorBasis{base}}
}

// need materializes levels up to l
func (s *levelStack) need(l int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.growLocked(l)
}

func (s *levelStack) growLocked(l int) {
	for len(s.bases) <= l {
		next := s.bases[len(s.bases)-1].Clone()
		next.UniformRefine()
		s.bases = append(s.bases, next)
	}
}

// at returns level l, creating it when needed
func (s *levelStack) at(l int) *bspline.TensorBasis {
	if l < 0 {
		panic(fmt.Sprintf("hbasis: negative level %d", l))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.growLocked(l)
	return s.bases[l]
}

func (s *levelStack) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bases)
}

// transposedTransfer returns the transpose of the level k -> k+1 transfer,
// so that row f lists the level k+1 children of level-k function f.
func (s *levelStack) transposedTransfer(k int) *sparse.Matrix {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.growLocked(k + 1)
	for len(s.transfers) <= k {
		s.transfers = append(s.transfers, nil)
	}
	if s.transfers[k] == nil {
		s.transfers[k] = s.bases[k].TransferTo(s.bases[k+1]).Transpose()
	}
	return s.transfers[k]
}

// shift drops the coarsest level and appends one finer level
func (s *levelStack) shift() {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.bases[len(s.bases)-1].Clone()
	next.UniformRefine()
	s.bases = append(s.bases[1:], next)
	s.transfers = nil
}

// dropFirst removes the coarsest level
func (s *levelStack) dropFirst() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bases = s.bases[1:]
	s.transfers = nil
}

// truncate keeps the n coarsest levels
func (s *levelStack) truncate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < len(s.bases) {
		s.bases = s.bases[:n]
	}
	if n-1 < len(s.transfers) {
		s.transfers = s.transfers[:max(n-1, 0)]
	}
}

// apply mutates the levels from..len-1 in place
func (s *levelStack) apply(from int, fn func(*bspline.TensorBasis)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tb := range s.bases[from:] {
		fn(tb)
	}
	s.transfers = nil
}

func (s *levelStack) clone() *levelStack {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &levelStack{bases: make([]*bspline.TensorBasis, len(s.bases))}
	for i, tb := range s.bases {
		c.bases[i] = tb.Clone()
	}
	c.transfers = append([]*sparse.Matrix(nil), s.transfers...)
	return c
}

// NeedLevel materializes the levels up to l
func (b *Basis) NeedLevel(l int) {
	b.levels.need(l)
}

// DegreeElevate raises the degree of every level by amount in direction dir
// (all directions when dir < 0), keeping the continuity at every knot.
func (b *Basis) DegreeElevate(amount, dir int) {
	b.checkDir(dir)
	b.levels.apply(0, func(tb *bspline.TensorBasis) { tb.DegreeElevate(amount, dir) })
	b.UpdateStructure()
}

// DegreeIncrease raises the degree of every level by amount in direction dir
// (all directions when dir < 0), raising the continuity at interior knots.
func (b *Basis) DegreeIncrease(amount, dir int) {
	b.checkDir(dir)
	b.levels.apply(0, func(tb *bspline.TensorBasis) { tb.DegreeIncrease(amount, dir) })
	b.UpdateStructure()
}

// IncreaseMultiplicity inserts knot mult more times in direction dir of level
// and every finer level. A knot that is not present at level is ignored with a
// warning. End knots and multiplicities beyond degree+1 panic.
func (b *Basis) IncreaseMultiplicity(level, dir int, knot float64, mult int) {
	b.checkDir(dir)
	if dir < 0 {
		panic("hbasis: multiplicity increase needs a direction")
	}
	if !b.levels.at(level).Knots(dir).Has(knot) {
		b.log.Warn().
			Int("level", level).
			Int("dir", dir).
			Float64("knot", knot).
			Msg("knot not present at level, multiplicity unchanged")
		return
	}
	kv, deg := b.levels.at(level).Knots(dir), b.levels.at(level).Degree(dir)
	if knot == kv.First() || knot == kv.Last() {
		panic(fmt.Sprintf("hbasis: cannot raise the multiplicity of end knot %v", knot))
	}
	if kv.Multiplicity(knot)+mult > deg+1 {
		panic(fmt.Sprintf("hbasis: multiplicity of %v would exceed %d", knot, deg+1))
	}
	b.levels.apply(level, func(tb *bspline.TensorBasis) { tb.InsertKnot(dir, knot, mult) })
	b.UpdateStructure()
}

func (b *Basis) checkDir(dir int) {
	if dir >= b.Dim() {
		panic(fmt.Sprintf("hbasis: direction %d out of range for dimension %d", dir, b.Dim()))
	}
}
