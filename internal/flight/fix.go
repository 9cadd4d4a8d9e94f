// Package flight turns a recorded track into the fixes the scorer works
// on: invalid and duplicate fixes are dropped and, on request, the flying
// segments between launch and landing are detected.
package flight

import (
	"time"

	"xcscore/internal/geo"
)

// Fix is one GPS record. Altitudes are metres and nil when not recorded.
type Fix struct {
	Timestamp        int64 // milliseconds since the epoch
	Latitude         float64
	Longitude        float64
	PressureAltitude *float64
	GPSAltitude      *float64
	Valid            bool
}

// Time of the fix in UTC.
func (f Fix) Time() time.Time { return time.UnixMilli(f.Timestamp).UTC() }

// Point is the fix as the r-th point of a track.
func (f Fix) Point(r int) geo.Point { return geo.FixPoint(f.Longitude, f.Latitude, r) }

// LaunchLanding is one flying segment, inclusive indices into the
// filtered fixes.
type LaunchLanding struct {
	Launch  int `json:"launch"`
	Landing int `json:"landing"`
}

// Range is the segment as an index range.
func (ll LaunchLanding) Range() geo.Range { return geo.Range{Start: ll.Launch, End: ll.Landing} }
