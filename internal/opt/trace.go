package opt

import (
	"fmt"
	"strconv"
	"strings"
)

// TraceEvent reports a traced node at one step of its life: "root",
// "bound" or "score".
type TraceEvent struct {
	Stage  string
	Parent int64
	Result *Result
}

// traceFilter selects nodes either by index (every range must contain the
// matching index) or every nth id.
type traceFilter struct {
	every   int64
	indices []int
}

func (f traceFilter) enabled() bool { return f.every > 0 || len(f.indices) > 0 }

func parseTrace(spec string) (traceFilter, error) {
	var f traceFilter
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return f, nil
	}
	var vals []int
	for _, part := range strings.Split(spec, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return f, fmt.Errorf("opt: trace %q: %w", spec, err)
		}
		vals = append(vals, v)
	}
	if vals[0] < 0 {
		if len(vals) < 2 || vals[1] <= 0 {
			return f, fmt.Errorf("opt: trace %q: expected -1,n with n > 0", spec)
		}
		f.every = int64(vals[1])
		return f, nil
	}
	f.indices = vals
	return f, nil
}

func (f traceFilter) match(n *Solution) bool {
	if f.every > 0 {
		return n.ID%f.every == 0
	}
	for r, rg := range n.Ranges {
		if r < len(f.indices) && !rg.Contains(f.indices[r]) {
			return false
		}
	}
	return true
}

func (s *Solver) traceNode(stage string, n *Solution) {
	if !s.filter.enabled() || !s.filter.match(n) {
		return
	}
	res := s.resultOf(n, false)
	res.Bound = n.Bound
	if s.onTrace != nil {
		s.onTrace(TraceEvent{Stage: stage, Parent: n.Parent, Result: res})
	}
}
