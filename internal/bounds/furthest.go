package bounds

import (
	"math"

	"xcscore/internal/geo"
)

// furthestEntry says o is the furthest fix from a vertex for every search
// whose free end lies in [min, max].
type furthestEntry struct {
	min, max int
	o        geo.Point
}

type vertexKey struct{ x, y float64 }

type furthestCache map[vertexKey][]*furthestEntry

func (c furthestCache) find(v geo.Point, z int) *furthestEntry {
	for _, p := range c[vertexKey{v.X, v.Y}] {
		if z >= p.min && z <= p.max {
			return p
		}
	}
	return nil
}

func (c furthestCache) store(v geo.Point, z furthestEntry) {
	key := vertexKey{v.X, v.Y}
	for _, x := range c[key] {
		if x.o.R == z.o.R && !(z.max <= x.min || z.min >= x.max) {
			x.min = min(z.min, x.min)
			x.max = max(z.max, x.max)
			return
		}
	}
	c[key] = append(c[key], &z)
}

// FurthestFrom returns the fix in [sega..segb] furthest from target. The
// search must start at the launch or end at the landing. When target is a
// box containing some of the fixes, those fixes are skipped and the box
// itself is returned if one of its own vertices is further away.
func (e *Engine) FurthestFrom(sega, segb int, target geo.Shape) (geo.Shape, error) {
	var vertices []geo.Point
	box, isBox := target.(geo.Box)
	switch t := target.(type) {
	case geo.Box:
		vertices = t.Vertices()
	case geo.Point:
		vertices = []geo.Point{t}
	default:
		return nil, ErrUnsupportedShape
	}

	var pos, z int
	switch {
	case sega == e.launch:
		pos, z = 0, segb
	case segb == e.landing:
		pos, z = 1, sega
	default:
		return nil, ErrSegmentOrigin
	}
	cache := e.furthest[pos]

	var found geo.Shape
	dmax := math.Inf(-1)
	for _, v := range vertices {
		dv := math.Inf(-1)
		var fv geo.Shape

		if hit := cache.find(v, z); hit != nil {
			if hit.o.R < sega || hit.o.R > segb {
				return nil, ErrCacheInconsistency
			}
			dv = e.dist.Between(v, hit.o)
			fv = hit.o
		}

		if fv == nil {
			intersecting, canCache := false, false
			var fp geo.Point
			for p := sega; p <= segb; p++ {
				f := e.points[p]
				if isBox && box.Contains(f) {
					intersecting = true
					continue
				}
				if d := e.dist.Between(v, f); d > dv {
					dv = d
					fp = f
					fv = f
					canCache = true
				}
			}
			if intersecting {
				for _, p := range vertices {
					if d := e.dist.Between(v, p); d > dv {
						dv = d
						fv = target
						canCache = false
					}
				}
			}
			if canCache {
				if pos == 0 {
					cache.store(v, furthestEntry{min: fp.R, max: segb, o: fp})
				} else {
					cache.store(v, furthestEntry{min: sega, max: fp.R, o: fp})
				}
			}
		}

		if dv > dmax {
			dmax = dv
			found = fv
		}
	}
	if found == nil {
		found = target
	}
	return found, nil
}

// FurthestPoint is FurthestFrom for a point target, which always yields a
// point.
func (e *Engine) FurthestPoint(sega, segb int, target geo.Point) (geo.Point, error) {
	s, err := e.FurthestFrom(sega, segb, target)
	if err != nil {
		return geo.Point{}, err
	}
	p, ok := s.(geo.Point)
	if !ok {
		return geo.Point{}, ErrUnsupportedShape
	}
	return p, nil
}
