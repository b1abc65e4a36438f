// ABOUTME: Leaf iteration over the refinement tree
// ABOUTME: Leaves are visited depth first, left before right

package hdomain

import (
	"iter"
	"slices"
)

// Leaf is a read-only view of one tree leaf
type Leaf struct {
	// Level governing the leaf
	Level int
	// Lower and Upper cover the leaf in Level cells (upper rounded up)
	Lower, Upper []int

	box        Box
	indexLevel int
}

// Leaves returns the leaves in a stable depth-first order. The sequence can
// be iterated any number of times; the tree must not change meanwhile.
func (t *Tree) Leaves() iter.Seq[Leaf] {
	return func(yield func(Leaf) bool) {
		stack := make([]*node, 0, 32)
		stack = append(stack, t.root)
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !n.isLeaf() {
				stack = append(stack, n.right, n.left)
				continue
			}
			if !yield(t.leaf(n)) {
				return
			}
		}
	}
}

func (t *Tree) leaf(n *node) Leaf {
	l := Leaf{Level: n.level, box: n.box.clone(), indexLevel: t.indexLevel}
	l.Lower, l.Upper = l.Corners(n.level)
	return l
}

// Corners returns the smallest box of level cells covering the leaf
func (l Leaf) Corners(level int) (lo, hi []int) {
	shift := l.indexLevel - level
	lo = make([]int, len(l.box.Lower))
	hi = make([]int, len(l.box.Upper))
	for i := range lo {
		lo[i] = l.box.Lower[i] >> shift
		hi[i] = (l.box.Upper[i] + (1 << shift) - 1) >> shift
	}
	return lo, hi
}

// Aligned reports whether every leaf face lies on the grid of level
func (l Leaf) Aligned(level int) bool {
	mask := (1 << (l.indexLevel - level)) - 1
	for i := range l.box.Lower {
		if l.box.Lower[i]&mask != 0 || l.box.Upper[i]&mask != 0 {
			return false
		}
	}
	return true
}

// Contains reports whether the level box [lo, hi) lies inside the leaf
func (l Leaf) Contains(lo, hi []int, level int) bool {
	shift := l.indexLevel - level
	for i := range l.box.Lower {
		if lo[i]<<shift < l.box.Lower[i] || hi[i]<<shift > l.box.Upper[i] {
			return false
		}
	}
	return true
}

// Touches reports whether the leaf reaches the lower or upper domain face
// of direction dir.
func (l Leaf) Touches(t *Tree, dir int, upper bool) bool {
	if upper {
		return l.box.Upper[dir] == t.upper[dir]
	}
	return l.box.Lower[dir] == 0
}

// Box returns a copy of the exact leaf box in index coordinates
func (l Leaf) Box() Box {
	return Box{Lower: slices.Clone(l.box.Lower), Upper: slices.Clone(l.box.Upper)}
}
