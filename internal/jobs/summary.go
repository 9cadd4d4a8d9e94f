package jobs

import (
	"time"

	"xcscore/internal/model"
	"xcscore/internal/opt"
)

// Summarize is the wire form of a solver result.
func Summarize(res *opt.Result) model.ScoreSummary {
	s := model.ScoreSummary{
		Rule:      res.Rule.Name,
		Code:      res.Rule.Code,
		Score:     res.Score,
		Bound:     res.Bound,
		Optimal:   res.Optimal,
		Processed: res.Processed,
		Cycles:    res.Cycles,
		ElapsedMs: res.Elapsed.Milliseconds(),
	}
	if res.Info != nil {
		s.Distance = res.Info.Distance
		s.Penalty = res.Info.Penalty
		for _, l := range res.Info.Legs {
			s.Legs = append(s.Legs, model.Leg{Name: l.Name, Distance: l.D})
		}
	}
	return s
}

// SolverConfig maps job options onto the solver configuration.
func (c Config) SolverConfig(o model.ScoreOptions) opt.Config {
	workers := o.Workers
	if workers > c.MaxSolverWorkers {
		workers = c.MaxSolverWorkers
	}
	return opt.Config{
		MaxCycle:      c.Cycle,
		MaxLoop:       o.MaxLoop,
		HighPrecision: o.HighPrecision,
		Invalid:       o.Invalid,
		Trim:          o.Trim,
		Workers:       workers,
	}
}

// Budget is the run time allowed to a job.
func (c Config) Budget(o model.ScoreOptions) time.Duration {
	d := c.MaxTime
	if o.MaxTimeSec > 0 {
		if req := time.Duration(o.MaxTimeSec) * time.Second; req < d {
			d = req
		}
	}
	return d
}
