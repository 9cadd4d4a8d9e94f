package bounds

import "github.com/dhconnelly/rtreego"

// pairEntry records that pair is the closest pair for every cut (p1', p2')
// with in <= p1' <= p1 and p2 <= p2' <= out. It is stored in the tree as the
// rectangle [in..p1] x [p2..out].
type pairEntry struct {
	in, p1 int
	p2, out int
	pair    ClosingPair
	rect    rtreego.Rect
}

func (p *pairEntry) Bounds() rtreego.Rect { return p.rect }

func (p *pairEntry) overlaps(minX, minY, maxX, maxY int) bool {
	return p.in <= maxX && p.p1 >= minX && p.p2 <= maxY && p.out >= minY
}

// pairCache indexes closest-pair results over (p1, p2). Keys are fix
// indices; rectangles are padded so that touching integer intervals always
// overlap in the tree, and every hit is filtered exactly.
type pairCache struct {
	tree *rtreego.Rtree
}

func newPairCache() *pairCache {
	return &pairCache{tree: rtreego.NewTree(2, 25, 50)}
}

func intRect(minX, minY, maxX, maxY int, pad float64) rtreego.Rect {
	r, _ := rtreego.NewRect(
		rtreego.Point{float64(minX) - pad, float64(minY) - pad},
		[]float64{float64(maxX-minX) + 2*pad, float64(maxY-minY) + 2*pad},
	)
	return r
}

func (c *pairCache) insert(e *pairEntry) {
	e.rect = intRect(e.in, e.p2, e.p1, e.out, 0.25)
	c.tree.Insert(e)
}

func (c *pairCache) covering(minX, minY, maxX, maxY int) []*pairEntry {
	var out []*pairEntry
	for _, s := range c.tree.SearchIntersect(intRect(minX, minY, maxX, maxY, 0.5)) {
		if e := s.(*pairEntry); e.overlaps(minX, minY, maxX, maxY) {
			out = append(out, e)
		}
	}
	return out
}

// lookup returns a cached result valid for the cut (p1, p2). Any covering
// entry holds the same minimum; the pick is made deterministic.
func (c *pairCache) lookup(p1, p2 int) *pairEntry {
	var best *pairEntry
	for _, e := range c.covering(p1, p2, p1, p2) {
		if best == nil || e.pair.D < best.pair.D ||
			(e.pair.D == best.pair.D && (e.in > best.in || (e.in == best.in && e.out < best.out))) {
			best = e
		}
	}
	return best
}

// tail returns the cached entry for p1 whose out index is the earliest at
// or after p2.
func (c *pairCache) tail(p1, p2, landing int) *pairEntry {
	var best *pairEntry
	for _, e := range c.covering(p1, p2, p1, landing) {
		if best == nil || e.out < best.out {
			best = e
		}
	}
	return best
}
