package render

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xcscore/internal/flight"
	"xcscore/internal/geo"
	"xcscore/internal/opt"
	"xcscore/internal/scoring"
)

func solve(t *testing.T, corners ...geo.Point) *opt.Result {
	t.Helper()
	var fixes []flight.Fix
	add := func(x, y float64) {
		fixes = append(fixes, flight.Fix{
			Timestamp: 1_600_000_000_000 + int64(len(fixes))*1000,
			Longitude: x, Latitude: y, Valid: true,
		})
	}
	for c := 0; c < len(corners)-1; c++ {
		a, b := corners[c], corners[c+1]
		for i := 0; i < 60; i++ {
			f := float64(i) / 60
			add(a.X+(b.X-a.X)*f, a.Y+(b.Y-a.Y)*f)
		}
	}
	last := corners[len(corners)-1]
	add(last.X, last.Y)

	rules, err := scoring.RuleSet("FFVL")
	require.NoError(t, err)
	res, err := opt.ScoreFixes(context.Background(), fixes, rules, opt.Config{})
	require.NoError(t, err)
	require.True(t, res.Optimal)
	return res
}

func ids(res *opt.Result, opts Options) []string {
	var out []string
	for _, f := range GeoJSON(res, opts).Features {
		out = append(out, f.ID.(string))
	}
	return out
}

var (
	cornerA = geo.NewPoint(6.0, 45.0)
	cornerB = geo.NewPoint(6.13, 45.0)
	cornerC = geo.NewPoint(6.065, 45.09)
)

func TestGeoJSONTriangle(t *testing.T) {
	res := solve(t, cornerA, cornerB, cornerC, cornerA)
	assert.Equal(t, []string{
		"tp0", "seg0", "tp1", "seg1", "tp2", "seg2",
		"cp_in", "cp_out", "closing",
		"launch0", "land0", "flight",
	}, ids(res, Options{}))

	fc := GeoJSON(res, Options{NoFlight: true, Debug: true})
	assert.Equal(t, "box0", fc.Features[0].ID)
	assert.NotEqual(t, "flight", fc.Features[len(fc.Features)-1].ID)

	for _, f := range fc.Features {
		line, ok := f.Geometry.(orb.LineString)
		if !ok {
			continue
		}
		p, q := geo.NewPoint(line[0][0], line[0][1]), geo.NewPoint(line[1][0], line[1][1])
		assert.InDelta(t, geo.FCC.Between(p, q), f.Properties["d"].(float64), 0.001, f.ID)
	}
}

func TestGeoJSONFreeDistance(t *testing.T) {
	res := solve(t, geo.NewPoint(6.0, 45.0), geo.NewPoint(6.3, 45.0))
	assert.Equal(t, []string{
		"tp0", "seg0", "tp1", "seg1", "tp2",
		"ep_start", "ep_finish", "seg_in", "seg_out",
		"launch0", "land0", "flight",
	}, ids(res, Options{}))
}

func TestGeoJSONCollectionProperties(t *testing.T) {
	res := solve(t, cornerA, cornerB, cornerC, cornerA)
	raw, err := json.Marshal(GeoJSON(res, Options{NoFlight: true}))
	require.NoError(t, err)

	var doc struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "FeatureCollection", doc.Type)
	assert.Equal(t, "EPSG:3857", doc.Properties["name"])
	assert.Equal(t, "Triangle FAI", doc.Properties["type"])
	assert.Equal(t, "fai", doc.Properties["code"])
	assert.Equal(t, true, doc.Properties["optimal"])
	assert.Equal(t, res.Score, doc.Properties["score"])
}

func TestSummary(t *testing.T) {
	res := solve(t, cornerA, cornerB, cornerC, cornerA)
	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, res, true))
	out := buf.String()
	assert.Contains(t, out, "Launch at fix 0")
	assert.Contains(t, out, "Landing at fix n-0")
	assert.Contains(t, out, "   tp2    tp0")
	assert.Contains(t, out, "Best solution is optimal Triangle FAI")
	assert.Contains(t, out, "closing distance is 0km")
	assert.Contains(t, Line(res), "Triangle FAI")
}

func TestSummaryWithoutSolution(t *testing.T) {
	res := &opt.Result{Rule: scoring.Rule{Name: "Distance 3 points"}, Bound: 12.345}
	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, res, false))
	assert.Contains(t, buf.String(), "up to 12.35 points")
}
