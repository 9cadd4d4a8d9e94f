package scoring

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xcscore/internal/bounds"
	"xcscore/internal/geo"
)

// polyline samples n fixes on each segment between consecutive corners.
func polyline(n int, corners ...geo.Point) []geo.Point {
	var pts []geo.Point
	for c := 0; c < len(corners)-1; c++ {
		a, b := corners[c], corners[c+1]
		for i := 0; i < n; i++ {
			f := float64(i) / float64(n)
			pts = append(pts, geo.FixPoint(a.X+(b.X-a.X)*f, a.Y+(b.Y-a.Y)*f, len(pts)))
		}
	}
	last := corners[len(corners)-1]
	return append(pts, geo.FixPoint(last.X, last.Y, len(pts)))
}

func engine(pts []geo.Point, r *Rule) *bounds.Engine {
	return bounds.NewEngine(pts, 0, len(pts)-1, geo.FCC, r.Round)
}

func rule(t *testing.T, set, name string) *Rule {
	t.Helper()
	rules, err := RuleSet(set)
	require.NoError(t, err)
	for i := range rules {
		if rules[i].Name == name {
			return &rules[i]
		}
	}
	t.Fatalf("no rule %q in %s", name, set)
	return nil
}

var (
	cornerA = geo.NewPoint(6.0, 45.0)
	cornerB = geo.NewPoint(6.13, 45.0)
	cornerC = geo.NewPoint(6.065, 45.09)
)

func TestRuleRoundAndClosing(t *testing.T) {
	r := rule(t, "FFVL", "Triangle plat")
	assert.Equal(t, 17.51, r.Round(17.5149))
	assert.Equal(t, 17.52, r.Round(17.5151))
	assert.Equal(t, 3.0, r.ClosingDistance(10))
	assert.Equal(t, 5.0, r.ClosingDistance(100))
	assert.Zero(t, r.Penalty(2.5))
	assert.Equal(t, 3.5, r.Penalty(3.5))

	p := 3
	r.Precision = &p
	assert.Equal(t, 17.515, r.Round(17.5149))

	free := Rule{Closing: ClosingPenalty}
	assert.True(t, free.ClosingDistance(1) > 1e300)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []string{"FAI", "FAI-OAR", "FFVL", "XCLeague", "XContest"}, reg.Names())

	rules, err := reg.Lookup("")
	require.NoError(t, err)
	assert.Len(t, rules, 3)
	assert.Equal(t, "Distance 3 points", rules[0].Name)

	_, err = reg.Lookup("nope")
	assert.ErrorIs(t, err, ErrUnknownRuleSet)

	for _, name := range reg.Names() {
		rules, _ := reg.Lookup(name)
		for _, r := range rules {
			_, err := PolicyFor(r.Shape)
			assert.NoError(t, err, "%s/%s", name, r.Name)
		}
	}
}

func TestDistance3Policy(t *testing.T) {
	r := rule(t, "FFVL", "Distance 3 points")
	pts := polyline(200, geo.NewPoint(6.0, 45.0), geo.NewPoint(6.5, 45.0))
	e := engine(pts, r)
	p, _ := PolicyFor(r.Shape)

	info, err := p.Score(r, e, []geo.Point{pts[50], pts[100], pts[150]})
	require.NoError(t, err)
	full := geo.FCC.Between(pts[0], pts[len(pts)-1])
	assert.InDelta(t, full, info.Distance, 1e-6)
	assert.InDelta(t, full, info.Score, 1e-6)
	require.NotNil(t, info.EP)
	assert.Equal(t, 0, info.EP.Start.R)
	assert.Equal(t, len(pts)-1, info.EP.Finish.R)

	ranges := []geo.Range{{Start: 40, End: 60}, {Start: 90, End: 110}, {Start: 140, End: 160}}
	boxes := []geo.Box{e.Box(ranges[0]), e.Box(ranges[1]), e.Box(ranges[2])}
	bound, err := p.Bound(r, e, ranges, boxes)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, bound, info.Score-1e-9)

	r.Finalize(geo.FCC, &info)
	require.Len(t, info.Legs, 4)
	assert.Equal(t, "start : tp0", info.Legs[0].Name)
	assert.Equal(t, "tp2 : finish", info.Legs[3].Name)
}

func TestTrianglePolicy(t *testing.T) {
	pts := polyline(100, cornerA, cornerB, cornerC, cornerA)
	iB, iC, iEnd := 100, 200, 300
	tp := []geo.Point{pts[iB], pts[iC], pts[iEnd]}
	perimeter := geo.FCC.Between(cornerA, cornerB) + geo.FCC.Between(cornerB, cornerC) + geo.FCC.Between(cornerC, cornerA)

	for _, name := range []string{"Triangle plat", "Triangle FAI"} {
		t.Run(name, func(t *testing.T) {
			r := rule(t, "FFVL", name)
			e := engine(pts, r)
			p, _ := PolicyFor(r.Shape)

			info, err := p.Score(r, e, tp)
			require.NoError(t, err)
			assert.InDelta(t, perimeter, info.Distance, 1e-6)
			require.NotNil(t, info.CP)
			assert.LessOrEqual(t, info.CP.D, 0.01)
			assert.InDelta(t, perimeter*r.Multiplier, info.Score, 1e-6)

			ranges := []geo.Range{{Start: iB - 5, End: iB + 5}, {Start: iC - 5, End: iC + 5}, {Start: iEnd - 5, End: iEnd}}
			boxes := []geo.Box{e.Box(ranges[0]), e.Box(ranges[1]), e.Box(ranges[2])}
			bound, err := p.Bound(r, e, ranges, boxes)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, bound, info.Score-1e-9)

			r.Finalize(geo.FCC, &info)
			require.Len(t, info.Legs, 3)
			assert.Equal(t, "tp2 : tp0", info.Legs[2].Name)
			assert.Zero(t, info.Penalty)
		})
	}
}

func TestTriangleRejectsThinShapeUnderFAI(t *testing.T) {
	far := geo.NewPoint(6.4, 45.0)
	near := geo.NewPoint(6.2, 45.01)
	pts := polyline(100, cornerA, far, near, cornerA)
	tp := []geo.Point{pts[100], pts[200], pts[300]}

	fai := rule(t, "FFVL", "Triangle FAI")
	p, _ := PolicyFor(fai.Shape)
	info, err := p.Score(fai, engine(pts, fai), tp)
	require.NoError(t, err)
	assert.Zero(t, info.Score)
	assert.Empty(t, info.TP)

	flat := rule(t, "FFVL", "Triangle plat")
	info, err = p.Score(flat, engine(pts, flat), tp)
	require.NoError(t, err)
	assert.Greater(t, info.Score, 0.0)
}

func TestTriangleNotClosed(t *testing.T) {
	// ends 5 km inside the triangle: beyond the 3 km fixed closing
	end := geo.NewPoint(6.065, 45.045)
	pts := polyline(100, cornerA, cornerB, cornerC, end)
	r := rule(t, "FFVL", "Triangle plat")
	p, _ := PolicyFor(r.Shape)
	info, err := p.Score(r, engine(pts, r), []geo.Point{pts[100], pts[200], pts[300]})
	require.NoError(t, err)
	assert.Zero(t, info.Score)
}

func TestOutAndReturn1Policy(t *testing.T) {
	start := geo.NewPoint(6.0, 45.0)
	turn := geo.NewPoint(6.2, 45.0)
	pts := polyline(100, start, turn, start)
	r := rule(t, "FAI-OAR", "Out-and-return")
	e := engine(pts, r)
	p, _ := PolicyFor(r.Shape)

	info, err := p.Score(r, e, []geo.Point{pts[0], pts[100], pts[200]})
	require.NoError(t, err)
	leg := geo.FCC.Between(start, turn)
	assert.InDelta(t, leg, info.Distance, 1e-6)
	assert.InDelta(t, 2*leg, info.Score, 1e-6)
	require.Len(t, info.TP, 2)
	assert.Equal(t, 100, info.TP[0].R)

	ranges := []geo.Range{{Start: 0, End: 10}, {Start: 95, End: 105}, {Start: 190, End: 200}}
	boxes := []geo.Box{e.Box(ranges[0]), e.Box(ranges[1]), e.Box(ranges[2])}
	bound, err := p.Bound(r, e, ranges, boxes)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, bound, info.Score-1e-9)
}

func TestOutAndReturn2Policy(t *testing.T) {
	start := geo.NewPoint(6.0, 45.0)
	turn := geo.NewPoint(6.2, 45.0)
	pts := polyline(100, start, turn, start)
	r := rule(t, "XCLeague", "Out and return")
	e := engine(pts, r)
	p, _ := PolicyFor(r.Shape)

	info, err := p.Score(r, e, []geo.Point{pts[0], pts[100]})
	require.NoError(t, err)
	leg := geo.FCC.Between(start, turn)
	assert.InDelta(t, 2*leg, info.Distance, 1e-6)
	assert.InDelta(t, 2*leg*2, info.Score, 1e-6)

	r.Finalize(geo.FCC, &info)
	require.Len(t, info.Legs, 2)
	assert.Equal(t, "tp1 : tp0", info.Legs[1].Name)
}

func TestLoadRuleSets(t *testing.T) {
	doc := `
sets:
  Club:
    - name: Free distance
      code: od
      shape: distance3
      multiplier: 1
      cardinality: 3
      minDistance: 15
    - name: Out and return
      code: oar
      shape: outAndReturn2
      multiplier: 1.5
      cardinality: 2
      closing: limit
      closingFixed: 1
      precision: 1
`
	sets, err := LoadRuleSets(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, sets["Club"], 2)
	assert.Equal(t, 15.0, sets["Club"][0].MinDistance)
	assert.True(t, sets["Club"][0].TooShort(14.9))
	assert.False(t, sets["Club"][0].TooShort(15))
	oar := sets["Club"][1]
	assert.Equal(t, ShapeOutAndReturn2, oar.Shape)
	assert.Equal(t, ClosingLimit, oar.Closing)
	assert.Equal(t, 1.0, oar.ClosingFixed)
	require.NotNil(t, oar.Precision)
	assert.Equal(t, 17.5, oar.Round(17.51))
}

func TestLoadRuleSetsRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing closing": `
sets:
  Bad:
    - {name: Tri, code: tri, shape: triangle, multiplier: 1, cardinality: 3}
`,
		"unknown shape": `
sets:
  Bad:
    - {name: X, code: x, shape: square, multiplier: 1, cardinality: 3}
`,
		"wrong cardinality": `
sets:
  Bad:
    - {name: O, code: oar, shape: outAndReturn2, multiplier: 1, cardinality: 3, closing: limit}
`,
		"negative min distance": `
sets:
  Bad:
    - {name: D, code: od, shape: distance3, multiplier: 1, cardinality: 3, minDistance: -1}
`,
		"empty": ``,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRuleSets(strings.NewReader(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRuleSet), err.Error())
		})
	}
}

func TestMinDistance(t *testing.T) {
	start := geo.NewPoint(6.0, 45.0)
	turn := geo.NewPoint(6.2, 45.0)
	line := polyline(100, start, geo.NewPoint(6.5, 45.0))
	closed := polyline(100, cornerA, cornerB, cornerC, cornerA)
	oar := polyline(100, start, turn, start)
	openTri := Rule{Name: "Open FAI", Code: "ofai", Shape: ShapeOpenTriangle, Multiplier: 1, Cardinality: 3,
		MinSide: 0.28, Closing: ClosingLimit, ClosingRelative: 0.2}

	cases := []struct {
		name string
		rule *Rule
		pts  []geo.Point
		tp   []int
	}{
		{"distance3", rule(t, "FFVL", "Distance 3 points"), line, []int{25, 50, 75}},
		{"triangle", rule(t, "FFVL", "Triangle FAI"), closed, []int{100, 200, 300}},
		{"openTriangle", &openTri, closed, []int{100, 200, 300}},
		{"outAndReturn2", rule(t, "XCLeague", "Out and return"), oar, []int{0, 100}},
		{"outAndReturn1", rule(t, "FAI-OAR", "Out-and-return"), oar, []int{0, 100, 200}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := *tc.rule
			e := engine(tc.pts, &r)
			p, err := PolicyFor(r.Shape)
			require.NoError(t, err)

			tp := make([]geo.Point, len(tc.tp))
			ranges := make([]geo.Range, len(tc.tp))
			boxes := make([]geo.Box, len(tc.tp))
			for i, idx := range tc.tp {
				tp[i] = tc.pts[idx]
				ranges[i] = geo.Range{Start: max(idx-5, 0), End: min(idx+5, len(tc.pts)-1)}
				boxes[i] = e.Box(ranges[i])
			}

			base, err := p.Score(&r, e, tp)
			require.NoError(t, err)
			require.Greater(t, base.Score, 0.0)

			r.MinDistance = base.Distance - 1
			info, err := p.Score(&r, e, tp)
			require.NoError(t, err)
			assert.Equal(t, base.Score, info.Score)

			bound, err := p.Bound(&r, e, ranges, boxes)
			require.NoError(t, err)
			assert.Greater(t, bound, 0.0)

			r.MinDistance = base.Distance + 1
			info, err = p.Score(&r, e, tp)
			require.NoError(t, err)
			assert.Zero(t, info.Score)
			assert.Empty(t, info.TP)

			r.MinDistance = 100 * base.Distance
			bound, err = p.Bound(&r, e, ranges, boxes)
			require.NoError(t, err)
			assert.Zero(t, bound)
		})
	}
}

// randomWalk is a short wandering track around 6E 45N.
func randomWalk(seed int64, n int) []geo.Point {
	rnd := rand.New(rand.NewSource(seed))
	x, y := 6.0, 45.0
	pts := make([]geo.Point, n)
	for i := range pts {
		pts[i] = geo.FixPoint(x, y, i)
		x += (rnd.Float64() - 0.5) * 0.05
		y += (rnd.Float64() - 0.5) * 0.04
	}
	return pts
}

// randomRanges draws left-first ordered ranges over n fixes.
func randomRanges(rnd *rand.Rand, n, card int) []geo.Range {
	ranges := make([]geo.Range, card)
	start := 0
	for r := range ranges {
		start += rnd.Intn(n/card + 1)
		start = min(start, n-1)
		ranges[r] = geo.Range{Start: start, End: min(start+rnd.Intn(6), n-1)}
	}
	for r := card - 2; r >= 0; r-- {
		ranges[r].End = min(ranges[r].End, ranges[r+1].End)
	}
	return ranges
}

// bestLeaf scores every strictly increasing choice of one fix per range.
func bestLeaf(t *testing.T, p Policy, r *Rule, e *bounds.Engine, ranges []geo.Range) (float64, bool) {
	best, found := math.Inf(-1), false
	tp := make([]geo.Point, len(ranges))
	var walk func(r0, from int)
	walk = func(r0, from int) {
		if r0 == len(ranges) {
			info, err := p.Score(r, e, tp)
			require.NoError(t, err)
			best, found = math.Max(best, info.Score), true
			return
		}
		for i := max(ranges[r0].Start, from); i <= ranges[r0].End; i++ {
			tp[r0] = e.Point(i)
			walk(r0+1, i+1)
		}
	}
	walk(0, 0)
	return best, found
}

func TestBoundCoversEveryLeaf(t *testing.T) {
	reg := NewRegistry()
	for _, set := range reg.Names() {
		rules, err := reg.Lookup(set)
		require.NoError(t, err)
		for i := range rules {
			r := &rules[i]
			p, err := PolicyFor(r.Shape)
			require.NoError(t, err)
			for seed := int64(1); seed <= 8; seed++ {
				pts := randomWalk(seed, 24)
				e := engine(pts, r)
				rnd := rand.New(rand.NewSource(seed * 31))
				for k := 0; k < 25; k++ {
					ranges := randomRanges(rnd, len(pts), r.Cardinality)
					boxes := make([]geo.Box, len(ranges))
					for b, rg := range ranges {
						boxes[b] = e.Box(rg)
					}
					leaf, ok := bestLeaf(t, p, r, e, ranges)
					if !ok || leaf <= 0 {
						continue
					}
					bound, err := p.Bound(r, e, ranges, boxes)
					require.NoError(t, err)
					assert.GreaterOrEqual(t, bound, leaf-1e-6, "%s/%s seed %d ranges %v", set, r.Name, seed, ranges)
				}
			}
		}
	}
}
