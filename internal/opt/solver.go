// Package opt searches a flight for its best scoring shape. A Solver holds
// a best-first branch-and-bound over turnpoint index ranges for every rule
// and flying segment at once, and can be advanced one budgeted cycle at a
// time until the queue is exhausted and the best score is proven optimal.
package opt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"xcscore/internal/bounds"
	"xcscore/internal/flight"
	"xcscore/internal/geo"
	"xcscore/internal/logging"
	"xcscore/internal/metrics"
	"xcscore/internal/scoring"
)

var ErrNoRoots = errors.New("opt: nothing to search, no rule or no flying segment")

const (
	// compactAbove is the queue size above which a new best triggers a
	// bulk removal of dominated nodes.
	compactAbove = 10000
	// probeEvery is how many scored nodes pass between memory probes.
	probeEvery = 100

	defaultMemoryLimit = 0.98
	defaultWorkerDepth = 4
)

// Config bounds one solver run. Zero budgets are unlimited.
type Config struct {
	MaxCycle      time.Duration // wall time per Advance
	MaxLoop       int           // scored nodes per Advance
	HighPrecision bool          // Vincenty instead of FCC
	Invalid       bool          // keep invalid fixes
	Trim          bool          // detect launch and landing
	// Trace selects nodes reported to the trace hook: "a,b,c" matches the
	// nodes whose ranges contain those indices, "-1,n" every n-th node.
	Trace       string
	Workers     int     // parallel expansion goroutines, 0 for none
	WorkerDepth int     // nodes in flight per worker
	MemoryLimit float64 // fraction of the Go memory limit that stops a cycle
}

// FlightOptions are the filtering options of the flight analysis.
func (c Config) FlightOptions() flight.Options {
	return flight.Options{Invalid: c.Invalid, Trim: c.Trim}
}

func (c Config) withDefaults() Config {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = defaultMemoryLimit
	}
	if c.WorkerDepth <= 0 {
		c.WorkerDepth = defaultWorkerDepth
	}
	return c
}

// Result is a snapshot of the best solution after a cycle.
type Result struct {
	ID      int64
	Rule    scoring.Rule
	Segment flight.LaunchLanding
	Ranges  []geo.Range
	Boxes   []geo.Box
	// Score is rounded by the rule once optimal.
	Score float64
	// Bound is the best bound left in the search, equal to Score once
	// optimal. NodeBound is the bound of the best node itself.
	Bound     float64
	NodeBound float64
	Optimal   bool
	Processed int
	Cycles    int
	Elapsed   time.Duration
	Info      *scoring.Info
	Track     *flight.Track
	Metric    geo.Distance
}

// Option customises a Solver.
type Option func(*Solver)

func WithLogger(l logging.Logger) Option {
	return func(s *Solver) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTraceHook receives the nodes selected by Config.Trace.
func WithTraceHook(fn func(TraceEvent)) Option {
	return func(s *Solver) { s.onTrace = fn }
}

// WithMemoryProbe replaces the heap pressure check.
func WithMemoryProbe(fn func(limit float64) bool) Option {
	return func(s *Solver) { s.pressure = fn }
}

// Solver is the resumable search state. It is not safe for concurrent use.
type Solver struct {
	cfg    Config
	track  *flight.Track
	dist   geo.Distance
	tasks  []*task
	queue  queue
	best   *Solution
	nextID int64

	processed int
	cycles    int
	elapsed   time.Duration
	final     *Result
	lastQueue int
	stats     Stats

	pool     *pool
	filter   traceFilter
	onTrace  func(TraceEvent)
	pressure func(float64) bool
	log      logging.Logger
	tracer   trace.Tracer
}

// New seeds a search with one root node per rule and flying segment.
func New(track *flight.Track, rules []scoring.Rule, cfg Config, opts ...Option) (s *Solver, err error) {
	defer geo.RecoverGeodesic(&err)

	s = &Solver{
		cfg:      cfg.withDefaults(),
		track:    track,
		dist:     geo.ForPrecision(cfg.HighPrecision),
		pressure: heapPressure,
		log:      logging.Noop(),
		tracer:   otel.Tracer("xcscore/internal/opt"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.filter, err = parseTrace(cfg.Trace); err != nil {
		return nil, err
	}
	if track == nil || len(rules) == 0 || len(track.Segments) == 0 {
		return nil, ErrNoRoots
	}
	if s.tasks, err = buildTasks(track, rules, s.dist); err != nil {
		return nil, err
	}

	for _, t := range s.tasks {
		full := t.seg.Range()
		ranges := make([]geo.Range, t.rule.Cardinality)
		for r := range ranges {
			ranges[r] = full
		}
		root := newSolution(t, ranges, s.newID(), -1)
		if err := root.bound(); err != nil {
			return nil, err
		}
		if err := root.score(); err != nil {
			return nil, err
		}
		s.traceNode("root", root)
		if s.best == nil || (root.Score > s.best.Score) {
			s.best = root
		}
		s.queue.Push(root)
	}
	return s, nil
}

// buildTasks pairs every rule with every segment. Rules of equal
// precision share the engine, and with it the caches, of a segment.
func buildTasks(track *flight.Track, rules []scoring.Rule, dist geo.Distance) ([]*task, error) {
	type engineKey struct {
		seg      flight.LaunchLanding
		decimals int
	}
	engines := map[engineKey]*bounds.Engine{}
	var tasks []*task
	for i := range rules {
		rule := rules[i]
		policy, err := scoring.PolicyFor(rule.Shape)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		if rule.Cardinality < 1 || rule.Cardinality > 3 {
			return nil, fmt.Errorf("rule %q: cardinality %d out of range", rule.Name, rule.Cardinality)
		}
		for _, seg := range track.Segments {
			k := engineKey{seg, rule.Decimals()}
			e, ok := engines[k]
			if !ok {
				e = bounds.NewEngine(track.Points(), seg.Launch, seg.Landing, dist, rule.Round)
				engines[k] = e
			}
			tasks = append(tasks, &task{index: len(tasks), rule: &rule, policy: policy, engine: e, seg: seg})
		}
	}
	return tasks, nil
}

func (s *Solver) newID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// Done reports whether the search has proven its best solution optimal.
func (s *Solver) Done() bool { return s.final != nil }

// Stats returns the counters of the run so far.
func (s *Solver) Stats() Stats { return s.stats.clone() }

// Close stops the worker goroutines of a parallel solver.
func (s *Solver) Close() {
	if s.pool != nil {
		s.pool.close()
		s.pool = nil
	}
	metrics.SolverQueue.Sub(float64(s.lastQueue))
	s.lastQueue = 0
}

// Advance runs one cycle and returns the best solution found so far. The
// cycle ends when the queue is exhausted, when MaxCycle or MaxLoop is
// spent, under memory pressure or when ctx is done; none of these is an
// error. Once optimal, Advance keeps returning the final result.
func (s *Solver) Advance(ctx context.Context) (res *Result, err error) {
	if s.final != nil {
		return s.final, nil
	}
	ctx, span := s.tracer.Start(ctx, "opt.Advance")
	defer span.End()
	defer geo.RecoverGeodesic(&err)

	start := time.Now()
	before := s.processed
	var optimal bool
	if s.cfg.Workers > 0 {
		optimal, err = s.cycleParallel(ctx, start)
	} else {
		optimal, err = s.cycle(ctx, start)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	took := time.Since(start)
	s.elapsed += took
	s.cycles++
	metrics.SolverNodes.Add(float64(s.processed - before))
	metrics.SolverCycles.Observe(took.Seconds())
	metrics.SolverQueue.Add(float64(s.queue.Len() - s.lastQueue))
	s.lastQueue = s.queue.Len()

	res = s.snapshot(optimal)
	s.stats.record(res, s.queue.Len())
	if optimal {
		s.final = res
		s.Close()
	}

	span.SetAttributes(
		attribute.Int("processed", s.processed-before),
		attribute.Int("queue", s.queue.Len()),
		attribute.Float64("score", res.Score),
		attribute.Bool("optimal", optimal),
	)
	s.log.Debug(ctx, "solver cycle",
		logging.Int("cycle", s.cycles),
		logging.Int("processed", s.processed),
		logging.Int("queue", s.queue.Len()),
		logging.String("rule", res.Rule.Name),
		logging.Float("score", res.Score),
		logging.Float("bound", res.Bound),
		logging.Bool("optimal", optimal),
	)
	return res, nil
}

// cycle is the single-threaded loop. It reports whether the queue was
// exhausted.
func (s *Solver) cycle(ctx context.Context, start time.Time) (bool, error) {
	count := 0
	for s.queue.Len() > 0 {
		if ctx.Err() != nil {
			return false, nil
		}
		if count%probeEvery == 0 && s.pressure(s.cfg.MemoryLimit) {
			s.log.Warn(ctx, "memory pressure, ending cycle", logging.Int("queue", s.queue.Len()))
			return false, nil
		}

		cur := s.queue.PopMax()
		if s.dominated(cur) {
			s.queue.Clear()
			break
		}
		for _, child := range cur.branch(s.newID) {
			if err := child.bound(); err != nil {
				return false, err
			}
			s.traceNode("bound", child)
			if child.Bound <= s.best.Score {
				continue
			}
			if err := child.score(); err != nil {
				return false, err
			}
			s.traceNode("score", child)
			s.processed++
			count++
			s.consider(child)
			s.queue.Push(child)
		}
		if s.spent(start, count) {
			return s.queue.Len() == 0, nil
		}
	}
	return true, nil
}

// dominated reports whether the best score already reaches n's bound at
// the rules' precision. The queue being ordered, so does every other node.
func (s *Solver) dominated(n *Solution) bool {
	return n.Rule().Round(n.Bound) <= s.best.Rule().Round(s.best.Score)
}

func (s *Solver) spent(start time.Time, count int) bool {
	if s.cfg.MaxLoop > 0 && count > s.cfg.MaxLoop {
		return true
	}
	return s.cfg.MaxCycle > 0 && time.Since(start) > s.cfg.MaxCycle
}

// consider makes n the best solution when it scores at least as well.
func (s *Solver) consider(n *Solution) {
	if n.Score < s.best.Score || n.Score <= 0 {
		return
	}
	s.best = n
	if s.queue.Len() > compactAbove {
		if low := s.queue.Min(); low != nil && low.Bound <= n.Score {
			s.queue.DropDominated(n.Score)
		}
	}
}

// upperBound is the highest bound that could still beat the best score.
func (s *Solver) upperBound() float64 {
	ub := s.best.Score
	if m := s.queue.Max(); m != nil {
		ub = math.Max(ub, m.Bound)
	}
	if s.pool != nil {
		ub = math.Max(ub, s.pool.maxBound())
	}
	return ub
}

func (s *Solver) snapshot(optimal bool) *Result {
	return s.resultOf(s.best, optimal)
}

func (s *Solver) resultOf(n *Solution, optimal bool) *Result {
	res := &Result{
		ID:        n.ID,
		Rule:      *n.Rule(),
		Segment:   n.Segment(),
		Ranges:    append([]geo.Range(nil), n.Ranges...),
		Boxes:     append([]geo.Box(nil), n.Boxes...),
		Score:     n.Score,
		NodeBound: n.Bound,
		Optimal:   optimal,
		Processed: s.processed,
		Cycles:    s.cycles,
		Elapsed:   s.elapsed,
		Info:      cloneInfo(n.Info),
		Track:     s.track,
		Metric:    s.dist,
	}
	if optimal {
		res.Rule.Finalize(s.dist, res.Info)
		res.Score = res.Rule.Round(n.Score)
		res.Bound = res.Score
	} else {
		res.Bound = s.upperBound()
	}
	return res
}

func cloneInfo(in *scoring.Info) *scoring.Info {
	if in == nil {
		return nil
	}
	out := *in
	out.TP = append([]geo.Point(nil), in.TP...)
	out.Legs = append([]scoring.Leg(nil), in.Legs...)
	if in.CP != nil {
		cp := *in.CP
		out.CP = &cp
	}
	if in.EP != nil {
		ep := *in.EP
		out.EP = &ep
	}
	return &out
}
