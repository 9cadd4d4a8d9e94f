package geo

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrLambdaOverflow = errors.New("λ > π")
	ErrNoConvergence  = errors.New("vincenty formula failed to converge")
)

// GeodesicError wraps a failed Vincenty iteration together with its inputs.
type GeodesicError struct {
	From, To Point
	Err      error
}

func (e *GeodesicError) Error() string {
	return fmt.Sprintf("geodesic %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *GeodesicError) Unwrap() error { return e.Err }

// WGS84 ellipsoid, axes in kilometres.
const (
	wgs84A = 6378.137
	wgs84B = 6356.752314245
	wgs84F = 1 / 298.257223563
)

const epsilon = 2.220446049250313e-16

// Geodesic is the result of an inverse solution.
type Geodesic struct {
	Distance       float64 // km
	InitialBearing float64 // degrees, NaN for coincident points
	FinalBearing   float64
	Iterations     int
}

// Inverse solves the inverse geodesic problem between p1 and p2 on the WGS84
// ellipsoid with Vincenty's iteration.
func Inverse(p1, p2 Point) (Geodesic, error) {
	φ1, λ1 := radians(p1.Y), radians(p1.X)
	φ2, λ2 := radians(p2.Y), radians(p2.X)
	a, b, f := wgs84A, wgs84B, wgs84F

	L := λ2 - λ1
	tanU1 := (1 - f) * math.Tan(φ1)
	cosU1 := 1 / math.Sqrt(1+tanU1*tanU1)
	sinU1 := tanU1 * cosU1
	tanU2 := (1 - f) * math.Tan(φ2)
	cosU2 := 1 / math.Sqrt(1+tanU2*tanU2)
	sinU2 := tanU2 * cosU2

	antipodal := math.Abs(L) > math.Pi/2 || math.Abs(φ2-φ1) > math.Pi/2

	λ := L
	var sinλ, cosλ, sinSqσ float64
	σ, sinσ, cosσ := 0.0, 0.0, 1.0
	if antipodal {
		σ, cosσ = math.Pi, -1
	}
	cos2σm := 1.0
	sinα, cosSqα := 0.0, 1.0

	iterations := 0
	for {
		sinλ = math.Sin(λ)
		cosλ = math.Cos(λ)
		t := cosU1*sinU2 - sinU1*cosU2*cosλ
		sinSqσ = (cosU2*sinλ)*(cosU2*sinλ) + t*t
		if math.Abs(sinSqσ) < epsilon {
			break // coincident or antipodal
		}
		sinσ = math.Sqrt(sinSqσ)
		cosσ = sinU1*sinU2 + cosU1*cosU2*cosλ
		σ = math.Atan2(sinσ, cosσ)
		sinα = cosU1 * cosU2 * sinλ / sinσ
		cosSqα = 1 - sinα*sinα
		if cosSqα != 0 {
			cos2σm = cosσ - 2*sinU1*sinU2/cosSqα
		} else {
			cos2σm = 0 // equatorial line
		}
		C := f / 16 * cosSqα * (4 + f*(4-3*cosSqα))
		prev := λ
		λ = L + (1-C)*f*sinα*(σ+C*sinσ*(cos2σm+C*cosσ*(-1+2*cos2σm*cos2σm)))
		check := math.Abs(λ)
		if antipodal {
			check -= math.Pi
		}
		if check > math.Pi {
			return Geodesic{}, &GeodesicError{From: p1, To: p2, Err: ErrLambdaOverflow}
		}
		if math.Abs(λ-prev) <= 1e-12 {
			break
		}
		iterations++
		if iterations >= 1000 {
			return Geodesic{}, &GeodesicError{From: p1, To: p2, Err: ErrNoConvergence}
		}
	}

	uSq := cosSqα * (a*a - b*b) / (b * b)
	A := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	B := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
	Δσ := B * sinσ * (cos2σm + B/4*(cosσ*(-1+2*cos2σm*cos2σm)-
		B/6*cos2σm*(-3+4*sinσ*sinσ)*(-3+4*cos2σm*cos2σm)))

	s := b * A * (σ - Δσ)

	α1, α2 := 0.0, math.Pi
	if math.Abs(sinSqσ) >= epsilon {
		α1 = math.Atan2(cosU2*sinλ, cosU1*sinU2-sinU1*cosU2*cosλ)
		α2 = math.Atan2(cosU1*sinλ, -sinU1*cosU2+cosU1*sinU2*cosλ)
	}
	g := Geodesic{Distance: s, Iterations: iterations}
	if math.Abs(s) < epsilon {
		g.InitialBearing, g.FinalBearing = math.NaN(), math.NaN()
	} else {
		g.InitialBearing, g.FinalBearing = degrees(α1), degrees(α2)
	}
	return g, nil
}

// RecoverGeodesic must be deferred directly. It converts a *GeodesicError
// panic raised by Precise into *errp and re-panics on anything else.
func RecoverGeodesic(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ge, ok := r.(*GeodesicError); ok {
		*errp = ge
		return
	}
	panic(r)
}
