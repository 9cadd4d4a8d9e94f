package opt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xcscore/internal/bounds"
	"xcscore/internal/flight"
	"xcscore/internal/geo"
	"xcscore/internal/scoring"
)

var (
	cornerA = geo.NewPoint(6.0, 45.0)
	cornerB = geo.NewPoint(6.13, 45.0)
	cornerC = geo.NewPoint(6.065, 45.09)
)

// trackThrough samples n fixes per segment between corners, one per second.
func trackThrough(t *testing.T, n int, corners ...geo.Point) *flight.Track {
	t.Helper()
	var fixes []flight.Fix
	add := func(p geo.Point) {
		fixes = append(fixes, flight.Fix{
			Timestamp: 1_600_000_000_000 + int64(len(fixes))*1000,
			Longitude: p.X,
			Latitude:  p.Y,
			Valid:     true,
		})
	}
	for c := 0; c < len(corners)-1; c++ {
		a, b := corners[c], corners[c+1]
		for i := 0; i < n; i++ {
			f := float64(i) / float64(n)
			add(geo.NewPoint(a.X+(b.X-a.X)*f, a.Y+(b.Y-a.Y)*f))
		}
	}
	add(corners[len(corners)-1])
	track, err := flight.Analyze(fixes, flight.Options{})
	require.NoError(t, err)
	return track
}

func ffvl(t *testing.T) []scoring.Rule {
	t.Helper()
	rules, err := scoring.RuleSet("FFVL")
	require.NoError(t, err)
	return rules
}

func perimeter() float64 {
	return geo.FCC.Between(cornerA, cornerB) + geo.FCC.Between(cornerB, cornerC) + geo.FCC.Between(cornerC, cornerA)
}

func TestSolveStraightLine(t *testing.T) {
	track := trackThrough(t, 60, geo.NewPoint(6.0, 45.0), geo.NewPoint(6.5, 45.0))
	res, err := Solve(context.Background(), track, ffvl(t), Config{})
	require.NoError(t, err)

	assert.True(t, res.Optimal)
	assert.Equal(t, "Distance 3 points", res.Rule.Name)
	pts := track.Points()
	assert.InDelta(t, geo.FCC.Between(pts[0], pts[len(pts)-1]), res.Score, 0.006)
	assert.Equal(t, res.Score, res.Bound)
	require.NotNil(t, res.Info)
	assert.Len(t, res.Info.Legs, 4)
}

func TestSolveClosedTriangle(t *testing.T) {
	track := trackThrough(t, 100, cornerA, cornerB, cornerC, cornerA)
	res, err := Solve(context.Background(), track, ffvl(t), Config{})
	require.NoError(t, err)

	assert.True(t, res.Optimal)
	assert.Equal(t, "Triangle FAI", res.Rule.Name)
	assert.InDelta(t, 1.4*perimeter(), res.Score, 0.006)
	require.NotNil(t, res.Info)
	require.NotNil(t, res.Info.CP)
	assert.Zero(t, res.Info.Penalty)
	assert.Len(t, res.Info.Legs, 3)
	assert.Equal(t, "tp2 : tp0", res.Info.Legs[2].Name)
}

func TestAdvanceResumes(t *testing.T) {
	track := trackThrough(t, 100, cornerA, cornerB, cornerC, cornerA)
	s, err := New(track, ffvl(t), Config{MaxLoop: 5})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	var last *Result
	for i := 0; i < 100000 && !s.Done(); i++ {
		res, err := s.Advance(ctx)
		require.NoError(t, err)
		if last != nil && !res.Optimal {
			assert.GreaterOrEqual(t, res.Score, last.Score)
		}
		assert.GreaterOrEqual(t, res.Bound, res.Score-1e-9)
		last = res
	}
	require.True(t, s.Done())
	assert.Greater(t, last.Cycles, 1)
	assert.InDelta(t, 1.4*perimeter(), last.Score, 0.006)

	again, err := s.Advance(ctx)
	require.NoError(t, err)
	assert.Same(t, last, again)

	st := s.Stats()
	assert.True(t, st.Optimal)
	assert.Equal(t, last.Cycles, st.Cycles)
	assert.NotEmpty(t, st.Snapshots)
}

func TestParallelMatchesSerial(t *testing.T) {
	track := trackThrough(t, 100, cornerA, cornerB, cornerC, cornerA)
	serial, err := Solve(context.Background(), track, ffvl(t), Config{})
	require.NoError(t, err)
	parallel, err := Solve(context.Background(), track, ffvl(t), Config{Workers: 3, WorkerDepth: 2})
	require.NoError(t, err)

	assert.True(t, parallel.Optimal)
	assert.Equal(t, serial.Rule.Name, parallel.Rule.Name)
	assert.Equal(t, serial.Score, parallel.Score)
}

func TestParallelResumes(t *testing.T) {
	track := trackThrough(t, 60, geo.NewPoint(6.0, 45.0), geo.NewPoint(6.5, 45.0))
	s, err := New(track, ffvl(t), Config{Workers: 2, MaxLoop: 3})
	require.NoError(t, err)
	defer s.Close()

	var res *Result
	for !s.Done() {
		res, err = s.Advance(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, "Distance 3 points", res.Rule.Name)
}

func TestNoRoots(t *testing.T) {
	track := trackThrough(t, 10, cornerA, cornerB)
	_, err := New(track, nil, Config{})
	assert.ErrorIs(t, err, ErrNoRoots)
}

func TestUnknownShape(t *testing.T) {
	track := trackThrough(t, 10, cornerA, cornerB)
	_, err := New(track, []scoring.Rule{{Name: "x", Shape: "spiral", Cardinality: 3}}, Config{})
	assert.ErrorIs(t, err, scoring.ErrUnknownShape)
}

func TestMemoryPressureEndsCycle(t *testing.T) {
	track := trackThrough(t, 100, cornerA, cornerB, cornerC, cornerA)
	s, err := New(track, ffvl(t), Config{}, WithMemoryProbe(func(float64) bool { return true }))
	require.NoError(t, err)
	defer s.Close()

	res, err := s.Advance(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Optimal)
	assert.Zero(t, res.Processed)
	assert.GreaterOrEqual(t, res.Bound, res.Score)
}

func TestCancelledContextReturnsPartial(t *testing.T) {
	track := trackThrough(t, 100, cornerA, cornerB, cornerC, cornerA)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Solve(ctx, track, ffvl(t), Config{})
	require.NoError(t, err)
	assert.False(t, res.Optimal)
}

func TestTraceHook(t *testing.T) {
	track := trackThrough(t, 20, cornerA, cornerB)
	var stages = map[string]int{}
	_, err := Solve(context.Background(), track, ffvl(t), Config{Trace: "-1,1"},
		WithTraceHook(func(ev TraceEvent) { stages[ev.Stage]++ }))
	require.NoError(t, err)
	assert.Equal(t, 3, stages["root"])
	assert.Greater(t, stages["bound"], 0)
}

func TestParseTrace(t *testing.T) {
	f, err := parseTrace("-1,50")
	require.NoError(t, err)
	assert.Equal(t, int64(50), f.every)

	f, err = parseTrace("10, 20,30")
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 30}, f.indices)

	_, err = parseTrace("-1")
	assert.Error(t, err)
	_, err = parseTrace("a,b")
	assert.Error(t, err)
}

func testTask(t *testing.T, pts []geo.Point) *task {
	t.Helper()
	rules := ffvl(t)
	r := &rules[0]
	p, err := scoring.PolicyFor(r.Shape)
	require.NoError(t, err)
	return &task{rule: r, policy: p, engine: bounds.NewEngine(pts, 0, len(pts)-1, geo.FCC, r.Round)}
}

func TestSolutionNormalizesLeftFirst(t *testing.T) {
	pts := trackThrough(t, 50, cornerA, cornerB).Points()
	tk := testTask(t, pts)
	s := newSolution(tk, []geo.Range{{Start: 10, End: 40}, {Start: 5, End: 30}, {Start: 20, End: 25}}, 1, 0)

	assert.Equal(t, []geo.Range{{Start: 10, End: 30}, {Start: 10, End: 25}, {Start: 20, End: 25}}, s.Ranges)
	for r := range s.Ranges {
		assert.Equal(t, geo.BoxOf(pts, s.Ranges[r]), s.Boxes[r])
	}
}

func TestSolutionBranch(t *testing.T) {
	pts := trackThrough(t, 50, cornerA, cornerB).Points()
	tk := testTask(t, pts)
	full := geo.Range{Start: 0, End: 50}
	s := newSolution(tk, []geo.Range{full, full, full}, 1, 0)

	var id int64 = 10
	children := s.branch(func() int64 { id++; return id })
	require.Len(t, children, 2)
	assert.Equal(t, full.Left(), children[0].Ranges[0])
	assert.Equal(t, full.Right(), children[1].Ranges[0])
	assert.Equal(t, int64(1), children[0].Parent)

	leaf := newSolution(tk, []geo.Range{{Start: 3, End: 3}, {Start: 4, End: 4}, {Start: 5, End: 5}}, 2, 0)
	assert.Empty(t, leaf.branch(func() int64 { return 0 }))
}

func TestScoreRejectsUnorderedCentres(t *testing.T) {
	pts := trackThrough(t, 50, cornerA, cornerB).Points()
	s := newSolution(testTask(t, pts), []geo.Range{{Start: 0, End: 50}, {Start: 0, End: 50}, {Start: 0, End: 50}}, 1, 0)
	require.NoError(t, s.score())
	assert.Zero(t, s.Score)
	assert.Nil(t, s.Info)
}

func TestQueueOrder(t *testing.T) {
	var q queue
	for i, b := range []float64{3, 1, 4, 1, 5} {
		q.Push(&Solution{ID: int64(i), Bound: b})
	}
	assert.Equal(t, 5.0, q.Max().Bound)
	assert.Equal(t, int64(1), q.Min().ID)

	assert.Equal(t, 2, q.DropDominated(1))
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 5.0, q.PopMax().Bound)
	assert.Equal(t, 4.0, q.PopMax().Bound)
	q.Clear()
	assert.Nil(t, q.PopMax())
}

func TestQueueDropDominatedKeepsOrder(t *testing.T) {
	var q queue
	for i := 0; i < 200; i++ {
		q.Push(&Solution{ID: int64(i), Bound: float64(i % 50)})
	}
	assert.Zero(t, q.DropDominated(-1))
	assert.Equal(t, 200, q.Len())

	assert.Equal(t, 120, q.DropDominated(29))
	require.Equal(t, 80, q.Len())
	assert.Equal(t, 30.0, q.Min().Bound)
	assert.Equal(t, int64(30), q.Min().ID)

	last := q.PopMax()
	assert.Equal(t, int64(199), last.ID)
	for q.Len() > 0 {
		s := q.PopMax()
		assert.LessOrEqual(t, s.Bound, last.Bound)
		last = s
	}
	assert.Zero(t, q.DropDominated(100))
}

func TestStatsStore(t *testing.T) {
	RecordStats("t1", "job", Stats{Cycles: 2, Snapshots: []Snapshot{{Cycle: 1}, {Cycle: 2}}})
	st, ok := GetStats("t1", "job")
	require.True(t, ok)
	assert.Equal(t, 2, st.Cycles)
	_, ok = GetStats("t2", "job")
	assert.False(t, ok)
	ForgetStats("t1", "job")
	_, ok = GetStats("t1", "job")
	assert.False(t, ok)
}

// randomWalk is a wandering track of n fixes, one per second.
func randomWalk(t *testing.T, seed int64, n int) *flight.Track {
	t.Helper()
	rnd := rand.New(rand.NewSource(seed))
	x, y := 6.0, 45.0
	fixes := make([]flight.Fix, n)
	for i := range fixes {
		fixes[i] = flight.Fix{Timestamp: 1_600_000_000_000 + int64(i)*1000, Longitude: x, Latitude: y, Valid: true}
		x += (rnd.Float64() - 0.5) * 0.05
		y += (rnd.Float64() - 0.5) * 0.04
	}
	track, err := flight.Analyze(fixes, flight.Options{})
	require.NoError(t, err)
	return track
}

// bruteForce scores every strictly increasing set of turnpoints of every
// task and returns the best one.
func bruteForce(t *testing.T, tasks []*task) (float64, *task, []int) {
	t.Helper()
	best := math.Inf(-1)
	var bestTask *task
	var bestIdx []int
	for _, tk := range tasks {
		n := tk.rule.Cardinality
		idx := make([]int, n)
		tp := make([]geo.Point, n)
		var walk func(r, from int)
		walk = func(r, from int) {
			if r == n {
				info, err := tk.policy.Score(tk.rule, tk.engine, tp)
				require.NoError(t, err)
				if info.Score > best {
					best, bestTask, bestIdx = info.Score, tk, append([]int(nil), idx...)
				}
				return
			}
			for i := from; i <= tk.seg.Landing; i++ {
				idx[r], tp[r] = i, tk.engine.Point(i)
				walk(r+1, i+1)
			}
		}
		walk(0, tk.seg.Launch)
	}
	return best, bestTask, bestIdx
}

func TestSolveMatchesBruteForce(t *testing.T) {
	for _, set := range scoring.NewRegistry().Names() {
		rules, err := scoring.RuleSet(set)
		require.NoError(t, err)
		for seed := int64(1); seed <= 6; seed++ {
			t.Run(fmt.Sprintf("%s/%d", set, seed), func(t *testing.T) {
				track := randomWalk(t, seed, 30)
				tasks, err := buildTasks(track, rules, geo.FCC)
				require.NoError(t, err)
				best, tk, _ := bruteForce(t, tasks)
				require.Greater(t, best, 0.0)

				res, err := Solve(context.Background(), track, rules, Config{})
				require.NoError(t, err)
				assert.True(t, res.Optimal)
				assert.InDelta(t, tk.rule.Round(best), res.Score, 1e-9)
			})
		}
	}
}

func TestBoundHoldsAlongPathToOptimum(t *testing.T) {
	for _, set := range scoring.NewRegistry().Names() {
		rules, err := scoring.RuleSet(set)
		require.NoError(t, err)
		for seed := int64(1); seed <= 4; seed++ {
			t.Run(fmt.Sprintf("%s/%d", set, seed), func(t *testing.T) {
				track := randomWalk(t, seed, 30)
				tasks, err := buildTasks(track, rules, geo.FCC)
				require.NoError(t, err)
				best, tk, idx := bruteForce(t, tasks)

				ranges := make([]geo.Range, len(idx))
				for r := range ranges {
					ranges[r] = tk.seg.Range()
				}
				var id int64
				next := func() int64 { id++; return id }
				node := newSolution(tk, ranges, next(), -1)
				for {
					require.NoError(t, node.bound())
					assert.GreaterOrEqual(t, node.Bound, best-1e-6, "node %v", node.Ranges)

					var on *Solution
					for _, child := range node.branch(next) {
						if containsAll(child.Ranges, idx) {
							on = child
							break
						}
					}
					if on == nil {
						break
					}
					node = on
				}
				for r, rg := range node.Ranges {
					assert.Equal(t, geo.Range{Start: idx[r], End: idx[r]}, rg)
				}
				require.NoError(t, node.score())
				assert.InDelta(t, best, node.Score, 1e-9)
			})
		}
	}
}

func containsAll(ranges []geo.Range, idx []int) bool {
	for r, rg := range ranges {
		if idx[r] < rg.Start || idx[r] > rg.End {
			return false
		}
	}
	return true
}

func TestSolveHighPrecision(t *testing.T) {
	track := trackThrough(t, 100, cornerA, cornerB, cornerC, cornerA)
	precise := geo.Precise.Between(cornerA, cornerB) + geo.Precise.Between(cornerB, cornerC) + geo.Precise.Between(cornerC, cornerA)

	serial, err := Solve(context.Background(), track, ffvl(t), Config{HighPrecision: true})
	require.NoError(t, err)
	assert.True(t, serial.Optimal)
	assert.Equal(t, "Triangle FAI", serial.Rule.Name)
	assert.InDelta(t, 1.4*precise, serial.Score, 0.006)

	parallel, err := Solve(context.Background(), track, ffvl(t), Config{HighPrecision: true, Workers: 2})
	require.NoError(t, err)
	assert.True(t, parallel.Optimal)
	assert.Equal(t, serial.Rule.Name, parallel.Rule.Name)
	assert.Equal(t, serial.Score, parallel.Score)
}

func failingGeodesic() {
	panic(&geo.GeodesicError{From: cornerA, To: cornerB, Err: geo.ErrNoConvergence})
}

func TestAdvanceRecoversGeodesicFailure(t *testing.T) {
	track := trackThrough(t, 100, cornerA, cornerB, cornerC, cornerA)
	for _, workers := range []int{0, 2} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			s, err := New(track, ffvl(t), Config{HighPrecision: true, Workers: workers},
				WithMemoryProbe(func(float64) bool { failingGeodesic(); return false }))
			require.NoError(t, err)
			defer s.Close()

			res, err := s.Advance(context.Background())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, geo.ErrNoConvergence))
			var ge *geo.GeodesicError
			require.True(t, errors.As(err, &ge))
			assert.Equal(t, cornerB, ge.To)
		})
	}
}

func TestWorkerReportsGeodesicFailure(t *testing.T) {
	track := trackThrough(t, 20, cornerA, cornerB, cornerC, cornerA)
	failing := geo.DistanceFunc(func(a, b geo.Point) float64 { failingGeodesic(); return 0 })
	tasks, err := buildTasks(track, ffvl(t), failing)
	require.NoError(t, err)

	full := tasks[0].seg.Range()
	w := &worker{id: 1, tasks: tasks}
	res := w.expand(nodeMsg{Task: 0, ID: 7, Ranges: []geo.Range{full, full, full}, Floor: -1})
	assert.Equal(t, 1, res.Worker)
	assert.Equal(t, int64(7), res.Parent)
	assert.Empty(t, res.Children)
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, geo.ErrNoConvergence))
}
