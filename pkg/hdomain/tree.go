// ABOUTME: Spatial refinement tree partitioning the index space into levels
// ABOUTME: Implements box insertion, sinking, level queries and compression

// Package hdomain implements the spatial tree of a hierarchical spline space.
// Leaves partition the domain into disjoint boxes, each tagged with the level
// that governs it. Boxes are given in knot-span index coordinates of a level;
// internally coordinates are kept at a fixed fine resolution.
package hdomain

import (
	"fmt"
	"slices"
)

// DefaultIndexLevel is the number of dyadic levels representable below level 0
const DefaultIndexLevel = 20

// Tree is the spatial refinement tree. It is not safe for concurrent
// mutation; concurrent queries are fine.
type Tree struct {
	root       *node
	dim        int
	indexLevel int
	upper      []int // domain upper corner in index coordinates
	maxIns     int   // highest leaf level
	resLevel   int   // finest grid on which a leaf face lies
}

// Option configures a Tree
type Option func(*Tree)

// WithIndexLevel sets the number of representable levels
func WithIndexLevel(l int) Option {
	return func(t *Tree) {
		t.indexLevel = l
	}
}

// New creates a tree over [0, upper) level-0 cells, all at level 0
func New(upper []int, opts ...Option) *Tree {
	if len(upper) == 0 {
		panic("hdomain: zero-dimensional domain")
	}
	t := &Tree{dim: len(upper), indexLevel: DefaultIndexLevel}
	for _, opt := range opts {
		opt(t)
	}
	for i, u := range upper {
		if u <= 0 {
			panic(fmt.Sprintf("hdomain: domain upper corner %v is empty in direction %d", upper, i))
		}
	}
	t.upper = t.scale(upper, 0)
	t.root = newLeaf(Box{Lower: make([]int, t.dim), Upper: slices.Clone(t.upper)}, 0)
	return t
}

// Clone returns a deep copy
func (t *Tree) Clone() *Tree {
	c := *t
	c.root = t.root.clone()
	c.upper = slices.Clone(t.upper)
	return &c
}

// Dim returns the dimension
func (t *Tree) Dim() int { return t.dim }

// IndexLevel returns the internal resolution level
func (t *Tree) IndexLevel() int { return t.indexLevel }

// MaxInsertedLevel returns the highest level of any leaf
func (t *Tree) MaxInsertedLevel() int { return t.maxIns }

// ResolutionLevel returns the coarsest level whose index grid contains every
// leaf corner. It is at least MaxInsertedLevel.
func (t *Tree) ResolutionLevel() int { return t.resLevel }

// Upper returns the domain upper corner in level cells
func (t *Tree) Upper(level int) []int {
	out := make([]int, t.dim)
	for i, u := range t.upper {
		out[i] = u >> (t.indexLevel - level)
	}
	return out
}

func (t *Tree) scale(p []int, level int) []int {
	if level < 0 || level > t.indexLevel {
		panic(fmt.Sprintf("hdomain: level %d outside [0,%d]", level, t.indexLevel))
	}
	out := make([]int, len(p))
	for i, c := range p {
		out[i] = c << (t.indexLevel - level)
	}
	return out
}

// toBox scales a level box and checks it against the domain
func (t *Tree) toBox(lo, hi []int, level int) Box {
	if len(lo) != t.dim || len(hi) != t.dim {
		panic(fmt.Sprintf("hdomain: box %v-%v does not have dimension %d", lo, hi, t.dim))
	}
	b := Box{Lower: t.scale(lo, level), Upper: t.scale(hi, level)}
	for i := range b.Lower {
		if b.Lower[i] < 0 || b.Upper[i] > t.upper[i] || b.Lower[i] > b.Upper[i] {
			panic(fmt.Sprintf("hdomain: box %v-%v at level %d outside domain %v", lo, hi, level, t.Upper(level)))
		}
	}
	return b
}

func (t *Tree) noteGrid(level int) {
	t.resLevel = max(t.resLevel, level)
}

func (t *Tree) checkLevel(level int) {
	if level > t.indexLevel {
		panic(fmt.Sprintf("hdomain: level %d exceeds index level %d", level, t.indexLevel))
	}
}

func (t *Tree) setLevel(n *node, level int) {
	n.level = level
	t.maxIns = max(t.maxIns, level)
	t.noteGrid(level)
}

// InsertBox raises every region inside the level box [lo, hi) to at least
// level. Regions already finer are unchanged.
func (t *Tree) InsertBox(lo, hi []int, level int) {
	t.InsertBoxOnGrid(lo, hi, level, level)
}

// InsertBoxOnGrid is InsertBox for a box given in index coordinates of grid.
// A level beyond the index level panics before the tree is touched.
func (t *Tree) InsertBoxOnGrid(lo, hi []int, grid, level int) {
	b := t.toBox(lo, hi, grid)
	if b.empty() {
		return
	}
	t.checkLevel(level)
	t.noteGrid(grid)
	t.insert(t.root, b, level)
}

func (t *Tree) insert(n *node, b Box, level int) {
	if !n.box.overlaps(b) {
		return
	}
	if n.isLeaf() {
		if n.level >= level {
			return
		}
		if b.contains(n.box) {
			t.setLevel(n, level)
			return
		}
		n.splitAgainst(b)
	}
	t.insert(n.left, b, level)
	t.insert(n.right, b, level)
}

// SinkBox raises every region overlapped by the box [lo, hi), given in
// refLevel coordinates, by one level. If any of those regions is already at
// the index level it panics and leaves the tree unchanged.
func (t *Tree) SinkBox(lo, hi []int, refLevel int) {
	b := t.toBox(lo, hi, refLevel)
	if b.empty() {
		return
	}
	t.checkLevel(t.queryBox(b, true) + 1)
	t.noteGrid(refLevel)
	t.sink(t.root, b)
}

func (t *Tree) sink(n *node, b Box) {
	if !n.box.overlaps(b) {
		return
	}
	if n.isLeaf() {
		if b.contains(n.box) {
			t.setLevel(n, n.level+1)
			return
		}
		n.splitAgainst(b)
	}
	t.sink(n.left, b)
	t.sink(n.right, b)
}

// QueryMinLevel returns the minimum leaf level over the box [lo, hi) given
// in level coordinates.
func (t *Tree) QueryMinLevel(lo, hi []int, level int) int {
	return t.query(lo, hi, level, false)
}

// QueryMaxLevel returns the maximum leaf level over the box [lo, hi)
func (t *Tree) QueryMaxLevel(lo, hi []int, level int) int {
	return t.query(lo, hi, level, true)
}

func (t *Tree) query(lo, hi []int, level int, highest bool) int {
	b := t.toBox(lo, hi, level)
	if b.empty() {
		panic(fmt.Sprintf("hdomain: empty query box %v-%v", lo, hi))
	}
	return t.queryBox(b, highest)
}

// queryBox returns the minimum or maximum leaf level over a nonempty box in
// index coordinates
func (t *Tree) queryBox(b Box, highest bool) int {
	res := -1
	var visit func(n *node)
	visit = func(n *node) {
		if n.isLeaf() {
			switch {
			case res < 0:
				res = n.level
			case highest:
				res = max(res, n.level)
			default:
				res = min(res, n.level)
			}
			return
		}
		if b.Lower[n.axis] < n.pos {
			visit(n.left)
		}
		if b.Upper[n.axis] > n.pos {
			visit(n.right)
		}
	}
	visit(t.root)
	return res
}

// LevelOf returns the level of the leaf containing the lower corner of the
// refLevel cell at point.
func (t *Tree) LevelOf(point []int, refLevel int) int {
	if len(point) != t.dim {
		panic(fmt.Sprintf("hdomain: point %v does not have dimension %d", point, t.dim))
	}
	p := t.scale(point, refLevel)
	for i := range p {
		if p[i] < 0 || p[i] >= t.upper[i] {
			panic(fmt.Sprintf("hdomain: cell %v at level %d outside domain %v", point, refLevel, t.Upper(refLevel)))
		}
	}
	return t.root.find(p).level
}

// Compress merges sibling leaves of equal level
func (t *Tree) Compress() {
	var compress func(n *node)
	compress = func(n *node) {
		if n.isLeaf() {
			return
		}
		compress(n.left)
		compress(n.right)
		if n.left.isLeaf() && n.right.isLeaf() && n.left.level == n.right.level {
			n.merge()
		}
	}
	compress(t.root)
}

// LeafCount returns the number of leaves
func (t *Tree) LeafCount() int {
	count := 0
	t.root.walk(func(n *node) {
		if n.isLeaf() {
			count++
		}
	})
	return count
}

// double scales all coordinates by two
func (t *Tree) double() {
	t.root.walk(func(n *node) {
		for i := range n.box.Lower {
			n.box.Lower[i] *= 2
			n.box.Upper[i] *= 2
		}
		n.pos *= 2
	})
	for i := range t.upper {
		t.upper[i] *= 2
	}
}

// MultiplyByTwo re-expresses the tree after the coarsest level has been
// replaced by its dyadic refinement: the domain doubles, levels stay.
func (t *Tree) MultiplyByTwo() {
	t.double()
	t.resLevel = max(t.resLevel-1, t.maxIns)
}

// DecrementLevel re-expresses the tree after the coarsest level has been
// dropped: the domain doubles and every level decreases by one. All leaves
// must be at level 1 or finer.
func (t *Tree) DecrementLevel() {
	t.root.walk(func(n *node) {
		if n.isLeaf() && n.level < 1 {
			panic("hdomain: cannot decrement a tree with level-0 leaves")
		}
	})
	t.double()
	t.root.walk(func(n *node) {
		if n.isLeaf() {
			n.level--
		}
	})
	t.maxIns--
	t.resLevel = max(t.resLevel-1, t.maxIns)
}

func (t *Tree) String() string {
	return fmt.Sprintf("hdomain.Tree{dim: %d, leaves: %d, maxLevel: %d}", t.dim, t.LeafCount(), t.maxIns)
}
