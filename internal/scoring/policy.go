package scoring

import (
	"errors"
	"fmt"
	"math"

	"xcscore/internal/bounds"
	"xcscore/internal/geo"
)

var ErrUnknownShape = errors.New("scoring: unknown shape policy")

// EndPoints are the entry and exit points of a free distance flight.
type EndPoints struct {
	Start  geo.Point `json:"start"`
	Finish geo.Point `json:"finish"`
}

// Leg is one named segment of the scored shape.
type Leg struct {
	Name   string    `json:"name"`
	D      float64   `json:"d"`
	Start  geo.Point `json:"start"`
	Finish geo.Point `json:"finish"`
}

// Info is the breakdown of a score. A zero Score with no turnpoints means
// the candidate was rejected by the rule.
type Info struct {
	Distance float64             `json:"distance"`
	Score    float64             `json:"score"`
	Penalty  float64             `json:"penalty"`
	TP       []geo.Point         `json:"tp,omitempty"`
	CP       *bounds.ClosingPair `json:"cp,omitempty"`
	EP       *EndPoints          `json:"ep,omitempty"`
	Legs     []Leg               `json:"legs,omitempty"`
}

// Policy computes the optimistic bound of a search node and the exact score
// of a set of turnpoints under a rule.
type Policy interface {
	Bound(r *Rule, e *bounds.Engine, ranges []geo.Range, boxes []geo.Box) (float64, error)
	Score(r *Rule, e *bounds.Engine, tp []geo.Point) (Info, error)
}

// PolicyFor returns the policy implementing shape.
func PolicyFor(shape Shape) (Policy, error) {
	switch shape {
	case ShapeDistance3:
		return distance3{}, nil
	case ShapeTriangle:
		return triangle{}, nil
	case ShapeOpenTriangle:
		return openTriangle{}, nil
	case ShapeOutAndReturn2:
		return outAndReturn2{}, nil
	case ShapeOutAndReturn1:
		return outAndReturn1{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownShape, shape)
}

func pathLength(d geo.Distance, pts ...geo.Point) float64 {
	total := 0.0
	for i := 0; i < len(pts)-1; i++ {
		total += d.Between(pts[i], pts[i+1])
	}
	return total
}

func boxes3(boxes []geo.Box) [3]geo.Box { return [3]geo.Box{boxes[0], boxes[1], boxes[2]} }

// entryExit covers every fix that can serve as the entry before the first
// and the exit after the last turnpoint. Their ranges are included: a fix
// inside the first range may precede the chosen turnpoint.
func entryExit(e *bounds.Engine, first, last geo.Range) (geo.Box, geo.Box) {
	pin := e.Box(geo.Range{Start: e.Launch(), End: first.End})
	pout := e.Box(geo.Range{Start: last.Start, End: e.Landing()})
	return pin, pout
}

type distance3 struct{}

func (distance3) Bound(r *Rule, e *bounds.Engine, ranges []geo.Range, boxes []geo.Box) (float64, error) {
	pin, pout := entryExit(e, ranges[0], ranges[2])
	max, err := bounds.MaxDistanceNRectangles(e.Metric(), []geo.Shape{pin, boxes[0], boxes[1], boxes[2], pout})
	if err != nil {
		return 0, err
	}
	if r.TooShort(max) {
		return 0, nil
	}
	return max * r.Multiplier, nil
}

func (distance3) Score(r *Rule, e *bounds.Engine, tp []geo.Point) (Info, error) {
	pin, err := e.FurthestPoint(e.Launch(), tp[0].R, tp[0])
	if err != nil {
		return Info{}, err
	}
	pout, err := e.FurthestPoint(tp[2].R, e.Landing(), tp[2])
	if err != nil {
		return Info{}, err
	}
	distance := pathLength(e.Metric(), pin, tp[0], tp[1], tp[2], pout)
	if r.TooShort(distance) {
		return Info{}, nil
	}
	return Info{
		Distance: distance,
		Score:    distance * r.Multiplier,
		TP:       tp,
		EP:       &EndPoints{Start: pin, Finish: pout},
	}, nil
}

// maxFAIDistance caps a flat triangle bound by what the shortest possible
// leg allows under the minimum side fraction.
func maxFAIDistance(r *Rule, d geo.Distance, maxTri float64, boxes [3]geo.Box) float64 {
	minTri := bounds.MinDistance3Rectangles(boxes, bounds.Perimeter(d))
	if maxTri < minTri {
		return 0
	}
	maxAB := bounds.MaxDistance2Rectangles(d, boxes[0], boxes[1])
	maxBC := bounds.MaxDistance2Rectangles(d, boxes[1], boxes[2])
	maxCA := bounds.MaxDistance2Rectangles(d, boxes[2], boxes[0])
	max := math.Min(maxAB, math.Min(maxBC, maxCA)) / r.MinSide
	if max < minTri {
		return 0
	}
	return math.Min(max, maxTri)
}

// maxTRIDistance rejects boxes whose shortest possible longest leg already
// exceeds the maximum side fraction.
func maxTRIDistance(r *Rule, d geo.Distance, maxTri float64, boxes [3]geo.Box) float64 {
	minAB := bounds.MinDistance2Rectangles(d, boxes[0], boxes[1])
	minBC := bounds.MinDistance2Rectangles(d, boxes[1], boxes[2])
	minCA := bounds.MinDistance2Rectangles(d, boxes[2], boxes[0])
	min := math.Max(minAB, math.Max(minBC, minCA)) / r.MaxSide
	if min > maxTri {
		return 0
	}
	return maxTri
}

func sidesRejected(minSide, maxSide, distance float64, legs ...float64) bool {
	if minSide > 0 {
		limit := minSide * distance
		for _, l := range legs {
			if l < limit {
				return true
			}
		}
	}
	if maxSide > 0 {
		limit := maxSide * distance
		for _, l := range legs {
			if l > limit {
				return true
			}
		}
	}
	return false
}

type triangle struct{}

func (triangle) Bound(r *Rule, e *bounds.Engine, ranges []geo.Range, boxes []geo.Box) (float64, error) {
	b := boxes3(boxes)
	max := bounds.MaxDistance3Rectangles(b, bounds.Perimeter(e.Metric()))
	if r.MinSide > 0 {
		max = maxFAIDistance(r, e.Metric(), max, b)
	}
	if r.MaxSide > 0 {
		max = maxTRIDistance(r, e.Metric(), max, b)
	}
	if max == 0 || r.TooShort(max) {
		return 0, nil
	}

	// Overlapping ranges cannot be bounded any further yet.
	if ranges[0].End >= ranges[2].Start {
		return max * r.Multiplier, nil
	}
	cp, ok := e.TriangleClosed(ranges[0].End, ranges[2].Start, r.ClosingFree, r.ClosingDistance(max))
	if !ok {
		return 0, nil
	}
	return (max - r.Penalty(cp.D)) * r.Multiplier, nil
}

func (triangle) Score(r *Rule, e *bounds.Engine, tp []geo.Point) (Info, error) {
	d := e.Metric()
	d0 := d.Between(tp[0], tp[1])
	d1 := d.Between(tp[1], tp[2])
	d2 := d.Between(tp[2], tp[0])
	distance := d0 + d1 + d2
	if r.TooShort(distance) || sidesRejected(r.MinSide, r.MaxSide, distance, d0, d1, d2) {
		return Info{}, nil
	}

	cp, ok := e.TriangleClosed(tp[0].R, tp[2].R, r.ClosingFree, r.ClosingDistance(distance))
	if !ok {
		return Info{}, nil
	}
	return Info{
		Distance: distance,
		Score:    (distance - r.Penalty(cp.D)) * r.Multiplier,
		TP:       tp,
		CP:       &cp,
	}, nil
}

// openTriangle scores the free distance path of a flight whose three
// turnpoints also form a closed (FAI) triangle.
type openTriangle struct{}

func (openTriangle) Bound(r *Rule, e *bounds.Engine, ranges []geo.Range, boxes []geo.Box) (float64, error) {
	pin, pout := entryExit(e, ranges[0], ranges[2])
	maxD3P, err := bounds.MaxDistanceNRectangles(e.Metric(), []geo.Shape{pin, boxes[0], boxes[1], boxes[2], pout})
	if err != nil {
		return 0, err
	}
	if r.TooShort(maxD3P) {
		return 0, nil
	}
	b := boxes3(boxes)
	maxTri := bounds.MaxDistance3Rectangles(b, bounds.Perimeter(e.Metric()))
	if r.MinSide > 0 && maxFAIDistance(r, e.Metric(), maxTri, b) == 0 {
		return 0, nil
	}
	if r.MaxSide > 0 && maxTRIDistance(r, e.Metric(), maxTri, b) == 0 {
		return 0, nil
	}

	if ranges[0].End >= ranges[2].Start {
		return maxD3P * r.Multiplier, nil
	}
	cp, ok := e.TriangleClosed(ranges[0].End, ranges[2].Start, r.ClosingFree, r.ClosingDistance(maxTri))
	if !ok {
		return 0, nil
	}
	return (maxD3P - r.Penalty(cp.D)) * r.Multiplier, nil
}

func (openTriangle) Score(r *Rule, e *bounds.Engine, tp []geo.Point) (Info, error) {
	d := e.Metric()
	d0 := d.Between(tp[0], tp[1])
	d1 := d.Between(tp[1], tp[2])
	d2 := d.Between(tp[2], tp[0])
	tri := d0 + d1 + d2
	if sidesRejected(r.MinSide, 0, tri, d0, d1, d2) {
		return Info{}, nil
	}

	cp, ok := e.TriangleClosed(tp[0].R, tp[2].R, r.ClosingFree, r.ClosingDistance(tri))
	if !ok {
		return Info{}, nil
	}

	pin, err := e.FurthestPoint(e.Launch(), tp[0].R, tp[0])
	if err != nil {
		return Info{}, err
	}
	pout, err := e.FurthestPoint(tp[2].R, e.Landing(), tp[2])
	if err != nil {
		return Info{}, err
	}
	distance := pathLength(d, pin, tp[0], tp[1], tp[2], pout)
	if r.TooShort(distance) {
		return Info{}, nil
	}
	return Info{
		Distance: distance,
		Score:    (distance - r.Penalty(cp.D)) * r.Multiplier,
		TP:       tp,
		CP:       &cp,
		EP:       &EndPoints{Start: pin, Finish: pout},
	}, nil
}

// outAndReturn2 is an out-and-return between two turnpoints, scored twice
// their distance.
type outAndReturn2 struct{}

func (outAndReturn2) Bound(r *Rule, e *bounds.Engine, ranges []geo.Range, boxes []geo.Box) (float64, error) {
	max := bounds.MaxDistance2Rectangles(e.Metric(), boxes[0], boxes[1]) * 2
	if r.TooShort(max) {
		return 0, nil
	}
	if ranges[0].End >= ranges[1].Start {
		return max * r.Multiplier, nil
	}
	cp, ok := e.TriangleClosed(ranges[0].End, ranges[1].Start, r.ClosingFree, r.ClosingDistance(max))
	if !ok {
		return 0, nil
	}
	return (max - r.Penalty(cp.D)) * r.Multiplier, nil
}

func (outAndReturn2) Score(r *Rule, e *bounds.Engine, tp []geo.Point) (Info, error) {
	distance := e.Distance(tp[0], tp[1]) * 2
	if r.TooShort(distance) {
		return Info{}, nil
	}
	cp, ok := e.TriangleClosed(tp[0].R, tp[1].R, r.ClosingFree, r.ClosingDistance(distance))
	if !ok {
		return Info{}, nil
	}
	return Info{
		Distance: distance,
		Score:    (distance - r.Penalty(cp.D)) * r.Multiplier,
		TP:       tp,
		CP:       &cp,
	}, nil
}

// outAndReturn1 is the single turnpoint out-and-return: the first and last
// turnpoints are the closing pair and the middle one is the turn.
type outAndReturn1 struct{}

func (outAndReturn1) Bound(r *Rule, e *bounds.Engine, ranges []geo.Range, boxes []geo.Box) (float64, error) {
	d := e.Metric()
	max := math.Max(bounds.MaxDistance2Rectangles(d, boxes[1], boxes[0]), bounds.MaxDistance2Rectangles(d, boxes[1], boxes[2]))
	if r.TooShort(max) {
		return 0, nil
	}
	if ranges[0].End >= ranges[2].Start {
		return max * 2 * r.Multiplier, nil
	}
	cp, ok := e.OutAndReturnClosed(ranges[0], ranges[2], r.ClosingDistance(max))
	if !ok {
		return 0, nil
	}
	return (max - r.Penalty(cp.D)) * 2 * r.Multiplier, nil
}

func (outAndReturn1) Score(r *Rule, e *bounds.Engine, tp []geo.Point) (Info, error) {
	d := e.Metric()
	distance := math.Max(d.Between(tp[0], tp[1]), d.Between(tp[1], tp[2]))
	cd := d.Between(tp[0], tp[2])
	if cd > r.ClosingDistance(distance) {
		return Info{}, nil
	}

	turn := tp[2]
	if d.Between(tp[1], tp[0]) > d.Between(tp[1], tp[2]) {
		turn = tp[0]
	}
	turnDistance := d.Between(tp[1], turn)
	if r.TooShort(turnDistance) {
		return Info{}, nil
	}
	return Info{
		Distance: turnDistance,
		Score:    (turnDistance - r.Penalty(cd)) * 2 * r.Multiplier,
		TP:       []geo.Point{tp[1], turn},
		CP:       &bounds.ClosingPair{D: cd, In: tp[0], Out: tp[2]},
	}, nil
}
