// Package render turns solver results into GeoJSON and console text.
package render

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"xcscore/internal/geo"
	"xcscore/internal/opt"
)

// Options selects optional parts of the rendering.
type Options struct {
	// Debug adds the turnpoint search boxes.
	Debug bool
	// NoFlight omits the flight track.
	NoFlight bool
	// Metric measures the legs; the result's metric when nil.
	Metric geo.Distance
}

const (
	legStroke     = "yellow"
	closingStroke = "green"
	endStroke     = "gold"
)

// GeoJSON renders a result as a FeatureCollection: boxes (debug only),
// turnpoints and legs, the closing pair, the free distance end points, the
// launches and landings and finally the flight itself.
func GeoJSON(res *opt.Result, opts Options) *geojson.FeatureCollection {
	d := opts.Metric
	if d == nil {
		d = res.Metric
	}
	if d == nil {
		d = geo.FCC
	}
	r := renderer{res: res, dist: d, fc: geojson.NewFeatureCollection()}

	if opts.Debug {
		for i, b := range res.Boxes {
			r.box(fmt.Sprintf("box%d", i), b, res.Ranges[i])
		}
	}
	if info := res.Info; info != nil && len(info.TP) > 0 {
		tp := info.TP
		k := len(tp)
		for i := range tp {
			r.point(fmt.Sprintf("tp%d", i), tp[i])
			if i < k-1 || info.CP != nil {
				r.line(fmt.Sprintf("seg%d", i), legStroke, 4, tp[i], tp[(i+1)%k])
			}
		}
		if cp := info.CP; cp != nil {
			r.point("cp_in", cp.In)
			r.point("cp_out", cp.Out)
			r.line("closing", closingStroke, 3, cp.In, cp.Out)
		}
		if ep := info.EP; ep != nil {
			r.point("ep_start", ep.Start)
			r.point("ep_finish", ep.Finish)
			r.line("seg_in", endStroke, 3, ep.Start, tp[0])
			r.line("seg_out", endStroke, 3, tp[k-1], ep.Finish)
		}
	}

	if t := res.Track; t != nil {
		pts := t.Points()
		for i, ll := range t.Segments {
			r.point(fmt.Sprintf("launch%d", i), pts[ll.Launch])
			r.point(fmt.Sprintf("land%d", i), pts[ll.Landing])
		}
		if !opts.NoFlight {
			line := make(orb.LineString, len(t.Fixes))
			for i, f := range t.Fixes {
				line[i] = orb.Point{f.Longitude, f.Latitude}
			}
			f := geojson.NewFeature(line)
			f.ID = "flight"
			f.Properties["id"] = "flight"
			r.fc.Append(f)
		}
	}

	r.fc.ExtraMembers = geojson.Properties{
		"properties": map[string]any{
			"name":               "EPSG:3857",
			"id":                 res.ID,
			"score":              res.Score,
			"bound":              res.Bound,
			"optimal":            res.Optimal,
			"processedTime":      res.Elapsed.Seconds(),
			"processedSolutions": res.Processed,
			"type":               res.Rule.Name,
			"code":               res.Rule.Code,
		},
	}
	return r.fc
}

type renderer struct {
	res  *opt.Result
	dist geo.Distance
	fc   *geojson.FeatureCollection
}

func (r *renderer) point(id string, p geo.Point) {
	f := geojson.NewFeature(orb.Point{p.X, p.Y})
	f.ID = id
	f.Properties["id"] = id
	f.Properties["r"] = p.R
	if t := r.res.Track; t != nil && p.R >= 0 && p.R < len(t.Fixes) {
		f.Properties["timestamp"] = t.Fixes[p.R].Timestamp
	}
	r.fc.Append(f)
}

func (r *renderer) line(id, stroke string, width int, a, b geo.Point) {
	f := geojson.NewFeature(orb.LineString{{a.X, a.Y}, {b.X, b.Y}})
	f.ID = id
	f.Properties["id"] = id
	f.Properties["stroke"] = stroke
	f.Properties["stroke-width"] = width
	f.Properties["d"] = r.dist.Between(a, b)
	r.fc.Append(f)
}

func (r *renderer) box(id string, b geo.Box, rg geo.Range) {
	ring := orb.Ring{}
	for _, v := range b.Vertices() {
		ring = append(ring, orb.Point{v.X, v.Y})
	}
	ring = append(ring, ring[0])
	f := geojson.NewFeature(orb.Polygon{ring})
	f.ID = id
	f.Properties["id"] = id
	f.Properties["area"] = b.Area()
	f.Properties["a"] = rg.Start
	f.Properties["b"] = rg.End
	r.fc.Append(f)
}
