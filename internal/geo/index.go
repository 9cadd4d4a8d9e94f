package geo

import "math"

// BoxIndex answers bounding-box queries over index ranges of a fixed track
// in O(log n) using a bottom-up segment tree.
type BoxIndex struct {
	n    int
	tree []Box
}

func emptyBox() Box {
	return Box{X1: math.Inf(1), Y1: math.Inf(1), X2: math.Inf(-1), Y2: math.Inf(-1)}
}

func union(a, b Box) Box {
	return Box{
		X1: math.Min(a.X1, b.X1),
		Y1: math.Min(a.Y1, b.Y1),
		X2: math.Max(a.X2, b.X2),
		Y2: math.Max(a.Y2, b.Y2),
	}
}

func NewBoxIndex(points []Point) *BoxIndex {
	n := len(points)
	idx := &BoxIndex{n: n, tree: make([]Box, 2*n)}
	for i, p := range points {
		idx.tree[n+i] = Box{X1: p.X, Y1: p.Y, X2: p.X, Y2: p.Y}
	}
	for i := n - 1; i > 0; i-- {
		idx.tree[i] = union(idx.tree[2*i], idx.tree[2*i+1])
	}
	return idx
}

// Box returns the same box as BoxOf for rg.
func (idx *BoxIndex) Box(rg Range) Box {
	b := emptyBox()
	l, r := rg.Start+idx.n, rg.End+idx.n+1
	for l < r {
		if l&1 == 1 {
			b = union(b, idx.tree[l])
			l++
		}
		if r&1 == 1 {
			r--
			b = union(b, idx.tree[r])
		}
		l >>= 1
		r >>= 1
	}
	return b
}
