package opt

import (
	"github.com/biogo/store/llrb"

	"xcscore/internal/bounds"
	"xcscore/internal/flight"
	"xcscore/internal/geo"
	"xcscore/internal/scoring"
)

// task is one rule applied to one flying segment.
type task struct {
	index  int
	rule   *scoring.Rule
	policy scoring.Policy
	engine *bounds.Engine
	seg    flight.LaunchLanding
}

// Solution is a search node: one index range per turnpoint. Ranges are
// fixed at creation; Bound and Score are attached once.
type Solution struct {
	ID     int64
	Parent int64
	Ranges []geo.Range
	Boxes  []geo.Box
	Bound  float64
	Score  float64
	Info   *scoring.Info

	task *task
}

// newSolution keeps the ranges in left-first order: a range never starts
// before the previous one nor ends after the next one. This collapses the
// permutations of the turnpoints into combinations.
func newSolution(t *task, ranges []geo.Range, id, parent int64) *Solution {
	n := len(ranges)
	if n > t.rule.Cardinality {
		n = t.rule.Cardinality
	}
	rs := make([]geo.Range, n)
	copy(rs, ranges[:n])
	for r := range rs {
		if r > 0 && rs[r-1].Start > rs[r].Start {
			rs[r].Start = rs[r-1].Start
		}
		if r < n-1 && rs[r].End > rs[r+1].End {
			rs[r].End = rs[r+1].End
		}
		if rs[r].End < rs[r].Start {
			rs[r].End = rs[r].Start
		}
	}
	return restore(t, rs, id, parent)
}

// restore rebuilds a node from ranges that are already normalized.
func restore(t *task, ranges []geo.Range, id, parent int64) *Solution {
	s := &Solution{ID: id, Parent: parent, Ranges: ranges, Boxes: make([]geo.Box, len(ranges)), task: t}
	for r, rg := range ranges {
		s.Boxes[r] = t.engine.Box(rg)
	}
	return s
}

// Rule is the scoring rule the node is searched under.
func (s *Solution) Rule() *scoring.Rule { return s.task.rule }

// Segment is the flying segment the node belongs to.
func (s *Solution) Segment() flight.LaunchLanding { return s.task.seg }

// branch splits the widest range in two, or the one whose box is more
// than eight times the area of the widest. Leaves have no children.
func (s *Solution) branch(next func() int64) []*Solution {
	div := 0
	for r := range s.Ranges {
		if s.Ranges[r].Count() > s.Ranges[div].Count() {
			div = r
		}
	}
	for r := range s.Ranges {
		if s.Ranges[r].Count() > 1 && s.Boxes[r].Area() > s.Boxes[div].Area()*8 {
			div = r
		}
	}
	if s.Ranges[div].Count() == 1 {
		return nil
	}

	children := make([]*Solution, 0, 2)
	for _, half := range []geo.Range{s.Ranges[div].Left(), s.Ranges[div].Right()} {
		sub := make([]geo.Range, len(s.Ranges))
		copy(sub, s.Ranges)
		sub[div] = half
		children = append(children, newSolution(s.task, sub, next(), s.ID))
	}
	return children
}

func (s *Solution) bound() error {
	b, err := s.task.policy.Bound(s.task.rule, s.task.engine, s.Ranges, s.Boxes)
	if err != nil {
		return err
	}
	s.Bound = b
	return nil
}

// score evaluates the turnpoints at the range centres. Centres out of
// order cannot form a shape and score zero.
func (s *Solution) score() error {
	for r := 0; r < len(s.Ranges)-1; r++ {
		if s.Ranges[r].Center() >= s.Ranges[r+1].Center() {
			s.Score = 0
			return nil
		}
	}
	tp := make([]geo.Point, len(s.Ranges))
	for r, rg := range s.Ranges {
		tp[r] = s.task.engine.Point(rg.Center())
	}
	info, err := s.task.policy.Score(s.task.rule, s.task.engine, tp)
	if err != nil {
		return err
	}
	s.Info = &info
	s.Score = info.Score
	return nil
}

// Compare orders nodes by bound, then by id.
func (s *Solution) Compare(c llrb.Comparable) int {
	o := c.(*Solution)
	switch {
	case s.Bound < o.Bound:
		return -1
	case s.Bound > o.Bound:
		return 1
	case s.ID < o.ID:
		return -1
	case s.ID > o.ID:
		return 1
	}
	return 0
}
