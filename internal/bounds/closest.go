package bounds

import (
	"math"

	"github.com/dhconnelly/rtreego"

	"xcscore/internal/geo"
)

// ClosingPair is the closest pair of fixes found on both sides of a cut.
// In lies before the cut, Out after it, D is the rounded distance.
type ClosingPair struct {
	D   float64   `json:"d"`
	In  geo.Point `json:"in"`
	Out geo.Point `json:"out"`
}

const pointTol = 1e-9

type fix struct {
	idx  int
	rect rtreego.Rect
}

func (f *fix) Bounds() rtreego.Rect { return f.rect }

func newFix(idx int, x, y float64) *fix {
	r, _ := rtreego.NewRect(rtreego.Point{x - pointTol, y - pointTol}, []float64{2 * pointTol, 2 * pointTol})
	return &fix{idx: idx, rect: r}
}

// nearestIndex is a bulk-loaded index over points[from..to], longitudes
// scaled by lc so that the planar metric is close to isotropic locally.
type nearestIndex struct {
	tree *rtreego.Rtree
	lc   float64
}

func (e *Engine) newNearestIndex(from, to int, lc float64) *nearestIndex {
	objs := make([]rtreego.Spatial, 0, to-from+1)
	for i := from; i <= to; i++ {
		p := e.points[i]
		objs = append(objs, newFix(i, p.X*lc, p.Y))
	}
	return &nearestIndex{tree: rtreego.NewTree(2, 8, 16, objs...), lc: lc}
}

func (n *nearestIndex) nearest(p geo.Point) (int, bool) {
	s := n.tree.NearestNeighbor(rtreego.Point{p.X * n.lc, p.Y})
	if s == nil {
		return 0, false
	}
	return s.(*fix).idx, true
}

func latitudeScale(p geo.Point) float64 {
	return math.Abs(math.Cos(p.Y / (180 / math.Pi)))
}

// scan runs a 1-NN query for every fix in [from..to] and keeps the
// smallest rounded distance, the earliest one on ties.
func (e *Engine) scan(idx *nearestIndex, from, to int) ClosingPair {
	min := ClosingPair{D: math.Inf(1)}
	for i := from; i <= to; i++ {
		pout := e.points[i]
		n, ok := idx.nearest(pout)
		if !ok {
			continue
		}
		pin := e.points[n]
		if d := e.round(e.dist.Between(pout, pin)); d < min.D {
			min = ClosingPair{D: d, In: pin, Out: pout}
		}
	}
	return min
}

// ClosestPair finds the closest pair of fixes such that the first is in
// [launch..p1] and the second in [p2..landing].
func (e *Engine) ClosestPair(p1, p2 int) ClosingPair {
	if hit := e.pairs.lookup(p1, p2); hit != nil {
		return hit.pair
	}

	idx := e.newNearestIndex(e.launch, p1, latitudeScale(e.points[p1]))

	// Beyond the out index of a cached result covering (p1, >= p2) nothing
	// closer can be found.
	last := e.landing
	next := e.pairs.tail(p1, p2, e.landing)
	if next != nil {
		last = next.out
	}

	min := e.scan(idx, p2, last)
	if next != nil {
		pin, pout := next.pair.In, next.pair.Out
		if d := e.round(e.dist.Between(pout, pin)); d < min.D {
			min = ClosingPair{D: d, In: pin, Out: pout}
		}
	}

	if !math.IsInf(min.D, 1) {
		e.pairs.insert(&pairEntry{in: min.In.R, p2: p2, p1: p1, out: min.Out.R, pair: min})
	}
	return min
}

// ClosestPairBetween finds the closest pair with one fix in a and the other
// in b. It is not cached.
func (e *Engine) ClosestPairBetween(a, b geo.Range) ClosingPair {
	idx := e.newNearestIndex(a.Start, a.End, latitudeScale(e.points[a.Start]))
	return e.scan(idx, b.Start, b.End)
}

// TriangleClosed reports whether a fix in [launch..p1] and a fix in
// [p2..landing] lie within limit of each other. A cached pair within free
// closes it outright.
func (e *Engine) TriangleClosed(p1, p2 int, free, limit float64) (ClosingPair, bool) {
	for _, c := range e.pairs.covering(e.launch, p2, p1, e.landing) {
		if c.pair.D <= free {
			return c.pair, true
		}
	}
	min := e.ClosestPair(p1, p2)
	return min, min.D <= limit
}

// OutAndReturnClosed reports whether some fix in a and some fix in b are
// within limit of each other.
func (e *Engine) OutAndReturnClosed(a, b geo.Range, limit float64) (ClosingPair, bool) {
	min := e.ClosestPairBetween(a, b)
	return min, min.D <= limit
}
