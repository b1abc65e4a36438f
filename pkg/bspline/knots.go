// ABOUTME: Knot vectors with unique-knot indexing used by the level stack
// ABOUTME: Supports insertion, dyadic midpoints and symmetric difference

package bspline

import (
	"fmt"
	"slices"
	"sort"
)

// KnotVector is a nondecreasing sequence of knots. Values are never mutated
// after construction, so copies share storage safely.
type KnotVector struct {
	knots  []float64
	unique []float64
	uidx   []int // unique index of each knot
}

// NewKnotVector validates and wraps knots
func NewKnotVector(knots []float64) (KnotVector, error) {
	if len(knots) < 2 {
		return KnotVector{}, fmt.Errorf("%w: need at least 2 knots, got %d", ErrInvalidKnots, len(knots))
	}
	for i := 1; i < len(knots); i++ {
		if knots[i] < knots[i-1] {
			return KnotVector{}, fmt.Errorf("%w: knots decrease at position %d", ErrInvalidKnots, i)
		}
	}
	if knots[0] == knots[len(knots)-1] {
		return KnotVector{}, fmt.Errorf("%w: empty parameter range", ErrInvalidKnots)
	}
	return newKnotVector(slices.Clone(knots)), nil
}

func newKnotVector(knots []float64) KnotVector {
	kv := KnotVector{knots: knots, uidx: make([]int, len(knots))}
	for i, k := range knots {
		if i == 0 || k != knots[i-1] {
			kv.unique = append(kv.unique, k)
		}
		kv.uidx[i] = len(kv.unique) - 1
	}
	return kv
}

// Clamped builds an open knot vector on [a, b] with the given number of
// uniformly spaced interior knots and end multiplicity deg+1.
func Clamped(a, b float64, interior, deg int) KnotVector {
	if b <= a || interior < 0 || deg < 0 {
		panic(fmt.Sprintf("bspline: invalid clamped knot vector [%v,%v] interior=%d deg=%d", a, b, interior, deg))
	}
	knots := make([]float64, 0, interior+2*deg+2)
	for i := 0; i <= deg; i++ {
		knots = append(knots, a)
	}
	for i := 1; i <= interior; i++ {
		knots = append(knots, a+(b-a)*float64(i)/float64(interior+1))
	}
	for i := 0; i <= deg; i++ {
		knots = append(knots, b)
	}
	return newKnotVector(knots)
}

// Len returns the number of knots, counting multiplicity
func (kv KnotVector) Len() int { return len(kv.knots) }

// At returns knot i
func (kv KnotVector) At(i int) float64 { return kv.knots[i] }

// Values returns a copy of the knots
func (kv KnotVector) Values() []float64 { return slices.Clone(kv.knots) }

// Unique returns a copy of the distinct knot values
func (kv KnotVector) Unique() []float64 { return slices.Clone(kv.unique) }

// USize returns the number of distinct knot values
func (kv KnotVector) USize() int { return len(kv.unique) }

// UValue returns the distinct knot with unique index u
func (kv KnotVector) UValue(u int) float64 { return kv.unique[u] }

// UIndex returns the unique index of knot i
func (kv KnotVector) UIndex(i int) int { return kv.uidx[i] }

// First returns the first knot
func (kv KnotVector) First() float64 { return kv.knots[0] }

// Last returns the last knot
func (kv KnotVector) Last() float64 { return kv.knots[len(kv.knots)-1] }

// UFind returns the unique index of the nonzero knot span containing x.
// Points at or beyond the last knot map to the last span.
func (kv KnotVector) UFind(x float64) int {
	u := sort.SearchFloat64s(kv.unique, x)
	if u == len(kv.unique) || kv.unique[u] != x {
		u--
	}
	return max(0, min(u, len(kv.unique)-2))
}

// UCeil returns the smallest unique index whose value is >= x, clamped to the
// last unique knot.
func (kv KnotVector) UCeil(x float64) int {
	u := sort.SearchFloat64s(kv.unique, x)
	return min(u, len(kv.unique)-1)
}

// FirstKnotIndex returns the first knot index whose value equals unique knot u
func (kv KnotVector) FirstKnotIndex(u int) int {
	return sort.SearchFloat64s(kv.knots, kv.unique[u])
}

// LastKnotIndex returns the last knot index whose value equals unique knot u
func (kv KnotVector) LastKnotIndex(u int) int {
	v := kv.unique[u]
	return sort.Search(len(kv.knots), func(i int) bool { return kv.knots[i] > v }) - 1
}

// Has reports whether x is a knot
func (kv KnotVector) Has(x float64) bool {
	_, ok := slices.BinarySearch(kv.unique, x)
	return ok
}

// Multiplicity returns how often x appears
func (kv KnotVector) Multiplicity(x float64) int {
	lo := sort.SearchFloat64s(kv.knots, x)
	hi := lo
	for hi < len(kv.knots) && kv.knots[hi] == x {
		hi++
	}
	return hi - lo
}

// InsertKnot returns a copy with x inserted mult times
func (kv KnotVector) InsertKnot(x float64, mult int) KnotVector {
	at := sort.Search(len(kv.knots), func(i int) bool { return kv.knots[i] > x })
	knots := make([]float64, 0, len(kv.knots)+mult)
	knots = append(knots, kv.knots[:at]...)
	for range mult {
		knots = append(knots, x)
	}
	knots = append(knots, kv.knots[at:]...)
	return newKnotVector(knots)
}

// Merge returns a copy with every value of xs inserted once
func (kv KnotVector) Merge(xs []float64) KnotVector {
	knots := append(slices.Clone(kv.knots), xs...)
	slices.Sort(knots)
	return newKnotVector(knots)
}

// Midpoints returns the midpoint of every nonzero knot span
func (kv KnotVector) Midpoints() []float64 {
	mids := make([]float64, 0, len(kv.unique)-1)
	for u := 0; u+1 < len(kv.unique); u++ {
		mids = append(mids, (kv.unique[u]+kv.unique[u+1])/2)
	}
	return mids
}

// ElevateMultiplicity returns a copy in which every distinct knot appears r
// more times.
func (kv KnotVector) ElevateMultiplicity(r int) KnotVector {
	knots := make([]float64, 0, len(kv.knots)+r*len(kv.unique))
	for i, k := range kv.knots {
		knots = append(knots, k)
		if i+1 == len(kv.knots) || kv.knots[i+1] != k {
			for range r {
				knots = append(knots, k)
			}
		}
	}
	return newKnotVector(knots)
}

// SymDifference returns the knots of finer that are not in kv, counted with
// multiplicity. finer must contain kv.
func (kv KnotVector) SymDifference(finer KnotVector) []float64 {
	var diff []float64
	i := 0
	for _, k := range finer.knots {
		if i < len(kv.knots) && kv.knots[i] == k {
			i++
			continue
		}
		diff = append(diff, k)
	}
	if i != len(kv.knots) {
		panic("bspline: knot vector is not nested in the finer one")
	}
	return diff
}

// Equal reports whether both knot vectors hold the same values
func (kv KnotVector) Equal(o KnotVector) bool {
	return slices.Equal(kv.knots, o.knots)
}

func (kv KnotVector) String() string {
	return fmt.Sprint(kv.knots)
}
