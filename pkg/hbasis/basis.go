// ABOUTME: Hierarchical and truncated hierarchical tensor-product spline basis
// ABOUTME: Ties the level stack, refinement tree and active sets together

// Package hbasis implements adaptively refinable hierarchical B-spline bases.
//
// A Basis owns a stack of nested tensor-product levels, a spatial tree that
// assigns a level to every region of the parameter domain, and per level the
// sorted set of active functions. A level-k function is active when the
// lowest tree level over its support is exactly k. Functions are numbered
// globally level by level.
package hbasis

import (
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/nainya/hsplines/pkg/bspline"
	"github.com/nainya/hsplines/pkg/hdomain"
)

// Mode selects between plain and truncated hierarchical bases
type Mode int

const (
	// Hierarchical is the plain hierarchical B-spline basis
	Hierarchical Mode = iota
	// Truncated is the truncated hierarchical basis
	Truncated
)

func (m Mode) String() string {
	switch m {
	case Hierarchical:
		return "HBSplineBasis"
	case Truncated:
		return "THBSplineBasis"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses the names returned by Mode.String
func ParseMode(s string) (Mode, error) {
	switch s {
	case "HBSplineBasis", "hb", "hierarchical":
		return Hierarchical, nil
	case "THBSplineBasis", "thb", "truncated":
		return Truncated, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// ActiveAlgorithm selects how the active sets are rebuilt
type ActiveAlgorithm int

const (
	// ByLeaves visits every tree leaf and tests the functions overlapping it
	ByLeaves ActiveAlgorithm = iota
	// BySweep tests every function of every level against the tree
	BySweep
)

// Observer receives timings of structural rebuilds and transfers
type Observer interface {
	ObserveRebuild(mode Mode, d time.Duration, size, levels int)
	ObserveTransfer(mode Mode, d time.Duration, nnz int)
}

// ParamBox is an axis-aligned box in parameter coordinates
type ParamBox struct {
	Lower, Upper []float64
}

// IndexBox is a box of knot-span indices of Level, refined to Level
type IndexBox struct {
	Level        int
	Lower, Upper []int
}

// Basis is a hierarchical spline basis. Queries may run concurrently with
// each other; refinement and transfer need exclusive access.
type Basis struct {
	mode    Mode
	algo    ActiveAlgorithm
	log     zerolog.Logger
	obs     Observer
	levels  *levelStack
	tree    *hdomain.Tree
	xmatrix [][]int // per level, ascending flat indices of active functions
	offsets []int   // len(xmatrix)+1 prefix sums
}

// Option configures a Basis
type Option func(*Basis)

// WithMode selects the hierarchical or truncated variant
func WithMode(m Mode) Option {
	return func(b *Basis) {
		b.mode = m
	}
}

// WithLogger sets the logger used for warnings and rebuild traces
func WithLogger(l zerolog.Logger) Option {
	return func(b *Basis) {
		b.log = l
	}
}

// WithActiveAlgorithm selects the active-set rebuild algorithm
func WithActiveAlgorithm(a ActiveAlgorithm) Option {
	return func(b *Basis) {
		b.algo = a
	}
}

// WithObserver registers an observer for rebuild and transfer timings
func WithObserver(o Observer) Option {
	return func(b *Basis) {
		b.obs = o
	}
}

// initialLevels is the number of levels materialized on construction
const initialLevels = 3

// New creates a basis whose level 0 is a copy of tb, with the whole domain at
// level 0.
func New(tb *bspline.TensorBasis, opts ...Option) *Basis {
	b := &Basis{
		log:    zerolog.Nop(),
		levels: newLevelStack(tb.Clone()),
	}
	for _, opt := range opts {
		opt(b)
	}

	upper := make([]int, tb.Dim())
	for i := range upper {
		upper[i] = tb.Knots(i).USize() - 1
	}
	b.tree = hdomain.New(upper)
	b.levels.need(initialLevels - 1)
	b.UpdateStructure()
	return b
}

// NewWithBoxes creates a basis and refines it with boxes
func NewWithBoxes(tb *bspline.TensorBasis, boxes []IndexBox, opts ...Option) *Basis {
	b := New(tb, opts...)
	if len(boxes) > 0 {
		b.RefineElements(boxes...)
	}
	return b
}

// Clone returns an independent deep copy
func (b *Basis) Clone() *Basis {
	c := &Basis{
		mode:    b.mode,
		algo:    b.algo,
		log:     b.log,
		obs:     b.obs,
		levels:  b.levels.clone(),
		tree:    b.tree.Clone(),
		xmatrix: make([][]int, len(b.xmatrix)),
		offsets: slices.Clone(b.offsets),
	}
	for l, x := range b.xmatrix {
		c.xmatrix[l] = slices.Clone(x)
	}
	return c
}

// Mode returns the basis variant
func (b *Basis) Mode() Mode { return b.mode }

// Dim returns the parametric dimension
func (b *Basis) Dim() int { return b.tree.Dim() }

// Degree returns the degree in direction i
func (b *Basis) Degree(i int) int { return b.levels.at(0).Degree(i) }

// Domain returns the parameter box
func (b *Basis) Domain() (lo, hi []float64) { return b.levels.at(0).Domain() }

// Size returns the number of active functions
func (b *Basis) Size() int { return b.offsets[len(b.offsets)-1] }

// NumLevels returns the number of levels carrying characteristic sets
func (b *Basis) NumLevels() int { return len(b.xmatrix) }

// MaxLevel returns the finest level carrying a characteristic set
func (b *Basis) MaxLevel() int { return len(b.xmatrix) - 1 }

// TreeLevel returns the finest level assigned to any region
func (b *Basis) TreeLevel() int { return b.tree.MaxInsertedLevel() }

// TensorLevel returns a copy of the tensor basis of level l, creating the
// level when needed.
func (b *Basis) TensorLevel(l int) *bspline.TensorBasis { return b.levels.at(l).Clone() }

// ActiveSet returns a copy of the active flat indices of level l
func (b *Basis) ActiveSet(l int) []int {
	if l < 0 || l >= len(b.xmatrix) {
		return nil
	}
	return slices.Clone(b.xmatrix[l])
}

// Offsets returns a copy of the global index offsets
func (b *Basis) Offsets() []int { return slices.Clone(b.offsets) }

func (b *Basis) String() string {
	return fmt.Sprintf("%v{dim: %d, size: %d, levels: %d, leaves: %d}",
		b.mode, b.Dim(), b.Size(), b.NumLevels(), b.tree.LeafCount())
}

func offsetsOf(xmatrix [][]int) []int {
	offsets := make([]int, len(xmatrix)+1)
	for l, x := range xmatrix {
		offsets[l+1] = offsets[l] + len(x)
	}
	return offsets
}
