package bounds

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xcscore/internal/geo"
)

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// track is a noisy loop of about 20 km around (6, 45).
func track(n int, seed int64) []geo.Point {
	rng := rand.New(rand.NewSource(seed))
	pts := make([]geo.Point, n)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = geo.FixPoint(
			6+0.12*math.Cos(a)+0.002*rng.Float64(),
			45+0.08*math.Sin(a)+0.002*rng.Float64(),
			i,
		)
	}
	return pts
}

func bruteClosest(pts []geo.Point, launch, p1, p2, landing int) float64 {
	min := math.Inf(1)
	for i := launch; i <= p1; i++ {
		for j := p2; j <= landing; j++ {
			min = math.Min(min, round2(geo.FCC.Between(pts[i], pts[j])))
		}
	}
	return min
}

func TestMaxDistance3RectanglesMatchesExhaustive(t *testing.T) {
	boxes := [3]geo.Box{
		geo.NewBox(6.00, 45.00, 6.01, 45.01),
		geo.NewBox(6.30, 45.00, 6.31, 45.01),
		geo.NewBox(6.15, 45.20, 6.16, 45.21),
	}
	fn := Perimeter(geo.FCC)
	got := MaxDistance3Rectangles(boxes, fn)

	want := 0.0
	for _, i := range boxes[0].Vertices() {
		for _, j := range boxes[1].Vertices() {
			for _, k := range boxes[2].Vertices() {
				want = math.Max(want, fn(i, j, k))
			}
		}
	}
	assert.InDelta(t, want, got, 1e-9)
	assert.LessOrEqual(t, MinDistance3Rectangles(boxes, fn), got)
}

func TestMaxDistance3RectanglesOverlappingIsUpperBound(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	fn := Perimeter(geo.FCC)
	for n := 0; n < 200; n++ {
		var boxes [3]geo.Box
		var inside [3]geo.Point
		x, y := 6+rng.Float64()*0.5, 45+rng.Float64()*0.5
		for i := range boxes {
			w, h := 0.01+rng.Float64()*0.1, 0.01+rng.Float64()*0.1
			if i == 1 {
				// starts inside the first box so the vertex restriction is off
				x, y = (boxes[0].X1+boxes[0].X2)/2, (boxes[0].Y1+boxes[0].Y2)/2
			} else if i == 2 {
				x, y = 6+rng.Float64()*0.5, 45+rng.Float64()*0.5
			}
			boxes[i] = geo.NewBox(x, y, x+w, y+h)
			inside[i] = geo.NewPoint(x+rng.Float64()*w, y+rng.Float64()*h)
		}
		require.True(t, boxes[0].Intersects(boxes[1]))
		p := fn(inside[0], inside[1], inside[2])
		assert.LessOrEqual(t, p, MaxDistance3Rectangles(boxes, fn)+1e-6)
	}
}

func TestMinMaxDistance2Rectangles(t *testing.T) {
	a := geo.NewBox(6.0, 45.0, 6.1, 45.1)
	b := geo.NewBox(6.3, 45.0, 6.4, 45.1)
	min := MinDistance2Rectangles(geo.FCC, a, b)
	max := MaxDistance2Rectangles(geo.FCC, a, b)
	assert.InDelta(t, geo.FCC.Between(geo.NewPoint(6.1, 45.0), geo.NewPoint(6.3, 45.0)), min, 0.2)
	assert.Greater(t, max, min)
}

func TestMaxDistanceNRectangles(t *testing.T) {
	start := geo.NewPoint(6.0, 45.0)
	end := geo.NewPoint(6.5, 45.0)
	mid := geo.NewBox(6.2, 45.2, 6.3, 45.3)

	got, err := MaxDistanceNRectangles(geo.FCC, []geo.Shape{start, mid, end})
	require.NoError(t, err)

	want := 0.0
	for _, v := range mid.Vertices() {
		want = math.Max(want, geo.FCC.Between(start, v)+geo.FCC.Between(v, end))
	}
	assert.InDelta(t, want, got, 1e-9)

	// points alone give the plain path length
	got, err = MaxDistanceNRectangles(geo.FCC, []geo.Shape{start, end})
	require.NoError(t, err)
	assert.InDelta(t, geo.FCC.Between(start, end), got, 1e-9)
}

func TestClosestPairAgainstBruteForce(t *testing.T) {
	pts := track(400, 1)
	e := NewEngine(pts, 0, len(pts)-1, geo.FCC, round2)
	cuts := [][2]int{{50, 300}, {60, 310}, {40, 350}, {100, 101}, {10, 390}, {55, 300}, {200, 250}}
	for _, c := range cuts {
		got := e.ClosestPair(c[0], c[1])
		assert.LessOrEqual(t, got.In.R, c[0])
		assert.GreaterOrEqual(t, got.Out.R, c[1])
		assert.InDelta(t, bruteClosest(pts, 0, c[0], c[1], len(pts)-1), got.D, 0.011, "cut %v", c)
	}
}

func TestClosestPairCacheIsConsistent(t *testing.T) {
	pts := track(300, 2)
	cached := NewEngine(pts, 0, len(pts)-1, geo.FCC, round2)
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 100; i++ {
		p1 := rng.Intn(len(pts) - 1)
		p2 := p1 + 1 + rng.Intn(len(pts)-p1-1)
		fresh := NewEngine(pts, 0, len(pts)-1, geo.FCC, round2)
		assert.InDelta(t, fresh.ClosestPair(p1, p2).D, cached.ClosestPair(p1, p2).D, 0.011)
	}
}

func TestTriangleClosed(t *testing.T) {
	pts := track(200, 4)
	e := NewEngine(pts, 0, len(pts)-1, geo.FCC, round2)

	// the loop comes back to its start
	cp, ok := e.TriangleClosed(20, 180, 0, 5)
	require.True(t, ok)
	assert.LessOrEqual(t, cp.D, 5.0)

	half := NewEngine(pts, 0, 120, geo.FCC, round2)
	_, ok = half.TriangleClosed(20, 100, 0, 0.5)
	assert.False(t, ok, "half a loop apart cannot close within 500 m")

	// cached pair within the free distance closes without a search
	cp2, ok := e.TriangleClosed(20, 180, 100, 0)
	require.True(t, ok)
	assert.Equal(t, cp.D, cp2.D)
}

func TestOutAndReturnClosed(t *testing.T) {
	pts := track(200, 5)
	e := NewEngine(pts, 0, len(pts)-1, geo.FCC, round2)
	cp, ok := e.OutAndReturnClosed(geo.Range{Start: 0, End: 10}, geo.Range{Start: 190, End: 199}, 3)
	require.True(t, ok)
	assert.LessOrEqual(t, cp.In.R, 10)
	assert.GreaterOrEqual(t, cp.Out.R, 190)

	_, ok = e.OutAndReturnClosed(geo.Range{Start: 0, End: 10}, geo.Range{Start: 95, End: 105}, 3)
	assert.False(t, ok)
}

func TestFurthestPointAgainstBruteForce(t *testing.T) {
	pts := track(300, 6)
	e := NewEngine(pts, 0, len(pts)-1, geo.FCC, nil)
	brute := func(a, b int, target geo.Point) float64 {
		best := 0.0
		for i := a; i <= b; i++ {
			best = math.Max(best, geo.FCC.Between(target, pts[i]))
		}
		return best
	}
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		tp := pts[rng.Intn(len(pts))]
		if i%2 == 0 {
			end := rng.Intn(len(pts))
			p, err := e.FurthestPoint(0, end, tp)
			require.NoError(t, err)
			assert.InDelta(t, brute(0, end, tp), geo.FCC.Between(tp, p), 1e-9)
		} else {
			start := rng.Intn(len(pts))
			p, err := e.FurthestPoint(start, len(pts)-1, tp)
			require.NoError(t, err)
			assert.InDelta(t, brute(start, len(pts)-1, tp), geo.FCC.Between(tp, p), 1e-9)
		}
	}
}

func TestFurthestFromRejectsInnerSegments(t *testing.T) {
	pts := track(50, 7)
	e := NewEngine(pts, 0, len(pts)-1, geo.FCC, nil)
	_, err := e.FurthestFrom(5, 10, pts[20])
	assert.ErrorIs(t, err, ErrSegmentOrigin)
}

func TestFurthestFromBoxContainingFixes(t *testing.T) {
	pts := []geo.Point{
		geo.FixPoint(6.00, 45.00, 0),
		geo.FixPoint(6.01, 45.00, 1),
		geo.FixPoint(6.02, 45.00, 2),
	}
	e := NewEngine(pts, 0, 2, geo.FCC, nil)
	box := geo.NewBox(5.9, 44.9, 6.1, 45.1)
	got, err := e.FurthestFrom(0, 2, box)
	require.NoError(t, err)
	assert.Equal(t, box, got, "every fix is inside the box, its own corners win")
}
