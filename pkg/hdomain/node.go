// ABOUTME: Kd-tree nodes for the hierarchical refinement domain
// ABOUTME: Leaves carry a level, split nodes an axis and position

package hdomain

import "slices"

// Box is a half-open box [Lower, Upper) in tree index coordinates
type Box struct {
	Lower, Upper []int
}

func (b Box) clone() Box {
	return Box{Lower: slices.Clone(b.Lower), Upper: slices.Clone(b.Upper)}
}

// overlaps reports a nonempty intersection
func (b Box) overlaps(o Box) bool {
	for i := range b.Lower {
		if b.Lower[i] >= o.Upper[i] || o.Lower[i] >= b.Upper[i] {
			return false
		}
	}
	return true
}

// contains reports whether o lies inside b
func (b Box) contains(o Box) bool {
	for i := range b.Lower {
		if o.Lower[i] < b.Lower[i] || o.Upper[i] > b.Upper[i] {
			return false
		}
	}
	return true
}

func (b Box) empty() bool {
	for i := range b.Lower {
		if b.Lower[i] >= b.Upper[i] {
			return true
		}
	}
	return false
}

// node is either a leaf (axis < 0) or a split at pos along axis. The left
// child holds coordinates below pos.
type node struct {
	box         Box
	level       int
	axis        int
	pos         int
	left, right *node
}

func newLeaf(box Box, level int) *node {
	return &node{box: box, level: level, axis: -1}
}

func (n *node) isLeaf() bool {
	return n.axis < 0
}

// split turns a leaf into a split node; both children keep the leaf level
func (n *node) split(axis, pos int) {
	lb, rb := n.box.clone(), n.box.clone()
	lb.Upper[axis] = pos
	rb.Lower[axis] = pos
	n.left = newLeaf(lb, n.level)
	n.right = newLeaf(rb, n.level)
	n.axis = axis
	n.pos = pos
}

// splitAgainst splits a leaf at the first face of b that cuts through it.
// b must overlap the leaf without containing it.
func (n *node) splitAgainst(b Box) {
	for i := range b.Lower {
		if b.Lower[i] > n.box.Lower[i] {
			n.split(i, b.Lower[i])
			return
		}
		if b.Upper[i] < n.box.Upper[i] {
			n.split(i, b.Upper[i])
			return
		}
	}
	panic("hdomain: split requested for a box covering the leaf")
}

// merge collapses a split node whose children are leaves of equal level
func (n *node) merge() {
	n.level = n.left.level
	n.axis = -1
	n.left, n.right = nil, nil
}

func (n *node) clone() *node {
	c := &node{box: n.box.clone(), level: n.level, axis: n.axis, pos: n.pos}
	if !n.isLeaf() {
		c.left = n.left.clone()
		c.right = n.right.clone()
	}
	return c
}

// walk visits every node in pre-order
func (n *node) walk(fn func(*node)) {
	fn(n)
	if !n.isLeaf() {
		n.left.walk(fn)
		n.right.walk(fn)
	}
}

// find returns the leaf containing the index point p
func (n *node) find(p []int) *node {
	for !n.isLeaf() {
		if p[n.axis] < n.pos {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n
}
