package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"xcscore/internal/model"
	"xcscore/internal/scoring"
)

const maxSolverWorkers = 64

// parseScoreOptions reads the solver options of a submission from its
// query string. Flags accept "?hp", "?hp=true" or "?hp=1".
func parseScoreOptions(q url.Values, rules *scoring.Registry) (model.ScoreOptions, error) {
	var o model.ScoreOptions
	o.RuleSet = q.Get("scoring")
	if o.RuleSet == "" {
		o.RuleSet = q.Get("ruleSet")
	}
	if o.RuleSet == "" {
		o.RuleSet = scoring.DefaultRuleSet
	}
	if _, err := rules.Lookup(o.RuleSet); err != nil {
		return o, err
	}

	var err error
	if o.MaxTimeSec, err = intParam(q, "maxtime"); err != nil {
		return o, err
	}
	if o.MaxLoop, err = intParam(q, "maxloop"); err != nil {
		return o, err
	}
	if o.Workers, err = intParam(q, "workers"); err != nil {
		return o, err
	}
	if o.Workers > maxSolverWorkers {
		return o, fmt.Errorf("workers must be <= %d", maxSolverWorkers)
	}
	for name, dst := range map[string]*bool{"hp": &o.HighPrecision, "trim": &o.Trim, "invalid": &o.Invalid, "noflight": &o.NoFlight} {
		if *dst, err = boolParam(q, name); err != nil {
			return o, err
		}
	}
	return o, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func boolParam(q url.Values, name string) (bool, error) {
	vs, ok := q[name]
	if !ok {
		return false, nil
	}
	if len(vs) == 0 || vs[0] == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(vs[0])
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return b, nil
}
