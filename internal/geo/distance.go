package geo

import "math"

// Distance measures the earth distance in kilometres between two points.
type Distance interface {
	Between(a, b Point) float64
}

// DistanceFunc adapts a plain function to Distance.
type DistanceFunc func(a, b Point) float64

func (f DistanceFunc) Between(a, b Point) float64 { return f(a, b) }

var (
	// FCC is the FCC flat-earth projection formula. It is the default metric
	// and agrees with the ellipsoid to a few metres at flight scale.
	FCC Distance = DistanceFunc(fcc)
	// Precise is the Vincenty inverse solution on WGS84. It panics with a
	// *GeodesicError when the iteration fails; use RecoverGeodesic at the
	// boundary of a computation.
	Precise Distance = DistanceFunc(precise)
)

// ForPrecision picks Precise when highPrecision is set, FCC otherwise.
func ForPrecision(highPrecision bool) Distance {
	if highPrecision {
		return Precise
	}
	return FCC
}

func fcc(a, b Point) float64 {
	df := b.Y - a.Y
	dg := b.X - a.X
	fm := radians((a.Y + b.Y) / 2)
	// cos(2x) = 2cos(x)^2 - 1 and cos(a+b) = 2cos(a)cos(b) - cos(a-b)
	cosfm := math.Cos(fm)
	cos2fm := 2*cosfm*cosfm - 1
	cos3fm := cosfm * (2*cos2fm - 1)
	cos4fm := 2*cos2fm*cos2fm - 1
	cos5fm := 2*cos2fm*cos3fm - cosfm
	k1 := 111.13209 - 0.566605*cos2fm + 0.00120*cos4fm
	k2 := 111.41513*cosfm - 0.09455*cos3fm + 0.00012*cos5fm
	return math.Sqrt((k1*df)*(k1*df) + (k2*dg)*(k2*dg))
}

func precise(a, b Point) float64 {
	g, err := Inverse(a, b)
	if err != nil {
		panic(err)
	}
	return g.Distance
}
