package opt

import (
	"context"

	"xcscore/internal/flight"
	"xcscore/internal/scoring"
)

// Solve advances a new solver until its result is optimal or ctx is done,
// in which case the best partial result is returned without error.
func Solve(ctx context.Context, track *flight.Track, rules []scoring.Rule, cfg Config, opts ...Option) (*Result, error) {
	s, err := New(track, rules, cfg, opts...)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	for {
		res, err := s.Advance(ctx)
		if err != nil {
			return nil, err
		}
		if res.Optimal || ctx.Err() != nil {
			return res, nil
		}
	}
}

// ScoreFixes analyses raw fixes with the filtering options of cfg and
// solves the resulting track.
func ScoreFixes(ctx context.Context, fixes []flight.Fix, rules []scoring.Rule, cfg Config, opts ...Option) (*Result, error) {
	track, err := flight.Analyze(fixes, cfg.FlightOptions())
	if err != nil {
		return nil, err
	}
	return Solve(ctx, track, rules, cfg, opts...)
}
