package hdomain

import (
	"fmt"
	"slices"
)

// Segment is an axis-parallel boundary piece (x1, y1) -> (x2, y2)
type Segment [4]int

// Polyline is a closed, counter-clockwise boundary loop; the enclosed
// region lies to the left of each segment.
type Polyline struct {
	Segments []Segment
	// Lower and Upper bound the loop
	Lower, Upper [2]int
}

// BoundaryPolylines returns, for every level l from 0 to MaxInsertedLevel,
// the boundary loops of the region whose leaves are at level l or finer.
// Coordinates are in cells of ResolutionLevel, which is returned first.
// Only two-dimensional trees are supported.
func (t *Tree) BoundaryPolylines() (int, [][]Polyline) {
	if t.dim != 2 {
		panic(fmt.Sprintf("hdomain: boundary polylines need a 2-D tree, have %d-D", t.dim))
	}

	// compressed grid from all leaf faces
	var xs, ys []int
	t.root.walk(func(n *node) {
		if n.isLeaf() {
			xs = append(xs, n.box.Lower[0], n.box.Upper[0])
			ys = append(ys, n.box.Lower[1], n.box.Upper[1])
		}
	})
	slices.Sort(xs)
	slices.Sort(ys)
	xs = slices.Compact(xs)
	ys = slices.Compact(ys)

	nx, ny := len(xs)-1, len(ys)-1
	levels := make([]int, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			levels[i+nx*j] = t.root.find([]int{xs[i], ys[j]}).level
		}
	}

	res := t.resLevel
	shift := t.indexLevel - res
	out := make([][]Polyline, t.maxIns+1)
	for l := 0; l <= t.maxIns; l++ {
		inside := func(i, j int) bool {
			if i < 0 || j < 0 || i >= nx || j >= ny {
				return false
			}
			return levels[i+nx*j] >= l
		}
		loops := traceLoops(boundaryEdges(nx, ny, inside))
		for _, loop := range loops {
			pl := Polyline{}
			for _, e := range mergeCollinear(loop) {
				pl.Segments = append(pl.Segments, Segment{
					xs[e.from[0]] >> shift, ys[e.from[1]] >> shift,
					xs[e.to[0]] >> shift, ys[e.to[1]] >> shift,
				})
			}
			pl.Lower, pl.Upper = boundingBox(pl.Segments)
			out[l] = append(out[l], pl)
		}
	}
	return res, out
}

type gridEdge struct {
	from, to [2]int
}

func (e gridEdge) dir() [2]int {
	return [2]int{sign(e.to[0] - e.from[0]), sign(e.to[1] - e.from[1])}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// boundaryEdges returns the unit edges of the compressed grid separating
// inside cells from outside ones, oriented with the inside on the left.
func boundaryEdges(nx, ny int, inside func(i, j int) bool) []gridEdge {
	var edges []gridEdge
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			if !inside(i, j) {
				continue
			}
			if !inside(i, j-1) {
				edges = append(edges, gridEdge{[2]int{i, j}, [2]int{i + 1, j}})
			}
			if !inside(i+1, j) {
				edges = append(edges, gridEdge{[2]int{i + 1, j}, [2]int{i + 1, j + 1}})
			}
			if !inside(i, j+1) {
				edges = append(edges, gridEdge{[2]int{i + 1, j + 1}, [2]int{i, j + 1}})
			}
			if !inside(i-1, j) {
				edges = append(edges, gridEdge{[2]int{i, j + 1}, [2]int{i, j}})
			}
		}
	}
	return edges
}

// traceLoops chains directed edges into closed loops. At vertices with two
// outgoing edges the left turn is taken, so touching regions stay separate.
func traceLoops(edges []gridEdge) [][]gridEdge {
	outgoing := make(map[[2]int][]int)
	for k, e := range edges {
		outgoing[e.from] = append(outgoing[e.from], k)
	}
	used := make([]bool, len(edges))

	var loops [][]gridEdge
	for start := range edges {
		if used[start] {
			continue
		}
		var loop []gridEdge
		cur := start
		for {
			used[cur] = true
			e := edges[cur]
			loop = append(loop, e)
			if e.to == edges[start].from {
				break
			}
			next := -1
			for _, k := range outgoing[e.to] {
				if used[k] {
					continue
				}
				if next < 0 || turn(e, edges[k]) > turn(e, edges[next]) {
					next = k
				}
			}
			if next < 0 {
				panic("hdomain: open boundary loop")
			}
			cur = next
		}
		loops = append(loops, loop)
	}
	return loops
}

// turn is positive for a left turn from a into b
func turn(a, b gridEdge) int {
	da, db := a.dir(), b.dir()
	return da[0]*db[1] - da[1]*db[0]
}

// mergeCollinear joins consecutive edges running in the same direction
func mergeCollinear(loop []gridEdge) []gridEdge {
	if len(loop) == 0 {
		return nil
	}
	// start at a corner so the wrap-around needs no merge
	first := 0
	for k := range loop {
		prev := loop[(k+len(loop)-1)%len(loop)]
		if prev.dir() != loop[k].dir() {
			first = k
			break
		}
	}
	var out []gridEdge
	for k := 0; k < len(loop); k++ {
		e := loop[(first+k)%len(loop)]
		if n := len(out); n > 0 && out[n-1].dir() == e.dir() {
			out[n-1].to = e.to
			continue
		}
		out = append(out, e)
	}
	return out
}

func boundingBox(segs []Segment) (lo, hi [2]int) {
	lo = [2]int{segs[0][0], segs[0][1]}
	hi = lo
	for _, s := range segs {
		for _, p := range [][2]int{{s[0], s[1]}, {s[2], s[3]}} {
			for i := range 2 {
				lo[i] = min(lo[i], p[i])
				hi[i] = max(hi[i], p[i])
			}
		}
	}
	return lo, hi
}
