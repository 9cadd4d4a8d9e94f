package flight

import (
	"errors"
	"fmt"
	"math"

	"xcscore/internal/geo"
)

// MinFixes is the smallest track that can be scored.
const MinFixes = 5

var ErrTooFewFixes = errors.New("flight must contain at least 5 valid GPS fixes")

// Moving average window and detection thresholds. Horizontal speeds are
// m/s, vertical speeds are absolute m/s, durations are how long the
// condition must hold.
const (
	maPeriod = 10 * 1000

	flightDuration = 60 * 1000
	flightStartH   = 5.0
	flightStartV   = 0.9
	flightHoldH    = 1.5
	flightHoldV    = 0.05

	groundDuration = 20 * 1000
	groundMaxH     = 2.5
	groundMaxV     = 0.1
)

// Options controls the analysis.
type Options struct {
	// Invalid keeps invalid and duplicate fixes.
	Invalid bool
	// Trim detects launch and landing instead of scoring the whole track.
	Trim bool
}

// Track is an analysed flight.
type Track struct {
	Fixes    []Fix
	Original []int // index in the raw fixes of each kept fix
	Total    int   // number of raw fixes
	Segments []LaunchLanding
	points   []geo.Point
}

// Points returns the kept fixes as points, R being the kept index.
func (t *Track) Points() []geo.Point { return t.points }

// Analyze filters fixes and finds the flying segments.
func Analyze(fixes []Fix, opts Options) (*Track, error) {
	t := &Track{Total: len(fixes)}
	for i, f := range fixes {
		if opts.Invalid || (f.Valid && (i == 0 || fixes[i-1].Timestamp != f.Timestamp)) {
			t.Fixes = append(t.Fixes, f)
			t.Original = append(t.Original, i)
		}
	}
	n := len(t.Fixes)
	if n < MinFixes {
		return nil, fmt.Errorf("%w, %d valid fixes found (out of %d)", ErrTooFewFixes, n, len(fixes))
	}

	t.points = make([]geo.Point, n)
	for i, f := range t.Fixes {
		t.points[i] = f.Point(i)
	}

	if opts.Trim {
		s := prepare(t.Fixes)
		s.detectFlight()
		s.detectGround()
		t.Segments = s.launchLanding()
	} else {
		t.Segments = []LaunchLanding{{Launch: 0, Landing: n - 1}}
	}
	return t, nil
}

// speeds holds the per-fix state of launch/landing detection.
type speeds struct {
	ts     []int64
	hspeed []float64
	vspeed []float64
	hma    []float64
	vma    []float64
	flying []bool
	ground []bool
}

func altitude(f Fix) float64 {
	if f.PressureAltitude != nil && *f.PressureAltitude >= -1000 {
		return *f.PressureAltitude
	}
	if f.GPSAltitude != nil {
		return *f.GPSAltitude
	}
	return 0
}

func prepare(fixes []Fix) *speeds {
	n := len(fixes)
	s := &speeds{
		ts:     make([]int64, n),
		hspeed: make([]float64, n),
		vspeed: make([]float64, n),
		hma:    make([]float64, n),
		vma:    make([]float64, n),
		flying: make([]bool, n),
		ground: make([]bool, n),
	}
	for i, f := range fixes {
		s.ts[i] = f.Timestamp
		if i == 0 {
			continue
		}
		dt := float64(f.Timestamp - fixes[i-1].Timestamp)
		if dt > 0 {
			d := geo.FCC.Between(fixes[i-1].Point(i-1), f.Point(i))
			s.hspeed[i] = d * 1000 / dt * 1000
			s.vspeed[i] = (altitude(f) - altitude(fixes[i-1])) / dt * 1000
		} else {
			s.hspeed[i] = s.hspeed[i-1]
			s.vspeed[i] = s.vspeed[i-1]
		}
	}

	half := int64(math.Round(maPeriod / 2))
	for i := range fixes {
		now := s.ts[i]
		start := i
		for start > 0 && s.ts[start] > now-half {
			start--
		}
		end := i
		for end < n-1 && s.ts[end] < now+half {
			end++
		}
		var h, v float64
		for j := start; j <= end; j++ {
			h += s.hspeed[j]
			v += math.Abs(s.vspeed[j])
		}
		count := float64(end - start + 1)
		s.hma[i] = h / count
		s.vma[i] = v / count
	}
	return s
}

// detectFlight marks fixes once fast climbing or sinking flight has held
// for the flight duration.
func (s *speeds) detectFlight() {
	start := -1
	for i := 0; i < len(s.ts)-1; i++ {
		if start < 0 && s.hma[i] > flightStartH && s.vma[i] > flightStartV {
			start = i
		}
		if start < 0 {
			continue
		}
		if s.hma[i] > flightHoldH && s.vma[i] > flightHoldV {
			if s.ts[i] > s.ts[start]+flightDuration {
				s.flying[i] = true
			}
		} else {
			start = -1
		}
	}
}

func (s *speeds) detectGround() {
	start := -1
	for i := 0; i < len(s.ts)-1; i++ {
		still := s.hma[i] < groundMaxH && s.vma[i] < groundMaxV
		if start < 0 && still {
			start = i
		}
		if start < 0 {
			continue
		}
		if still {
			if s.ts[i] > s.ts[start]+groundDuration {
				s.ground[i] = true
			}
		} else {
			start = -1
		}
	}
}

// launchLanding expands every flying fix to the nearest ground fixes
// around it.
func (s *speeds) launchLanding() []LaunchLanding {
	n := len(s.ts)
	var ll []LaunchLanding
	for i := 0; i < n-1; i++ {
		if !s.flying[i] {
			continue
		}
		j := i
		for j > 0 && !s.ground[j] {
			j--
		}
		launch := j
		for j = i; j < n-2 && !s.ground[j]; j++ {
		}
		ll = append(ll, LaunchLanding{Launch: launch, Landing: j})
		i = j
	}
	if len(ll) == 0 {
		ll = append(ll, LaunchLanding{Launch: 0, Landing: n - 1})
	}
	return ll
}
