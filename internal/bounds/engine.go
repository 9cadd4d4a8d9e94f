// Package bounds answers the geometric questions the branch-and-bound
// search asks about a flight segment: maximum and minimum distances between
// turnpoint boxes, the closest pair of fixes across a cut, and the fix
// furthest from a turnpoint zone. Expensive queries are cached per segment.
package bounds

import (
	"errors"

	"xcscore/internal/geo"
)

var (
	ErrUnsupportedShape   = errors.New("bounds: shape must be a Point or a Box")
	ErrSegmentOrigin      = errors.New("bounds: furthest point search must start at the launch or end at the landing")
	ErrCacheInconsistency = errors.New("bounds: furthest point cache inconsistency")
)

// Rounding is applied to every closing distance before comparing it.
type Rounding func(float64) float64

// Engine serves queries over the fixes between one launch and one landing.
// It owns its caches and must not be shared between goroutines.
type Engine struct {
	points  []geo.Point
	launch  int
	landing int
	dist    geo.Distance
	round   Rounding

	pairs    *pairCache
	furthest [2]furthestCache
	index    *geo.BoxIndex
}

// NewEngine binds a segment of points. A nil round keeps distances as is.
func NewEngine(points []geo.Point, launch, landing int, dist geo.Distance, round Rounding) *Engine {
	if dist == nil {
		dist = geo.FCC
	}
	if round == nil {
		round = func(v float64) float64 { return v }
	}
	return &Engine{
		points:   points,
		launch:   launch,
		landing:  landing,
		dist:     dist,
		round:    round,
		pairs:    newPairCache(),
		furthest: [2]furthestCache{{}, {}},
		index:    geo.NewBoxIndex(points),
	}
}

func (e *Engine) Launch() int             { return e.launch }
func (e *Engine) Landing() int            { return e.landing }
func (e *Engine) Points() []geo.Point     { return e.points }
func (e *Engine) Point(i int) geo.Point   { return e.points[i] }
func (e *Engine) Metric() geo.Distance    { return e.dist }
func (e *Engine) Round(v float64) float64 { return e.round(v) }

// Segment is the full launch..landing range.
func (e *Engine) Segment() geo.Range { return geo.Range{Start: e.launch, End: e.landing} }

// Distance between two points under the engine metric.
func (e *Engine) Distance(a, b geo.Point) float64 { return e.dist.Between(a, b) }

// Box is the bounding box of the fixes in rg.
func (e *Engine) Box(rg geo.Range) geo.Box { return e.index.Box(rg) }
