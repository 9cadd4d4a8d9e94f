package geo

import (
	"fmt"
	"math"
)

// Box is an axis-aligned rectangle in degrees, (X1,Y1) the lower-left and
// (X2,Y2) the upper-right corner.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// NewBox builds a box from explicit corners.
func NewBox(x1, y1, x2, y2 float64) Box { return Box{X1: x1, Y1: y1, X2: x2, Y2: y2} }

// BoxOf scans the fixes in rg and returns their bounding box.
func BoxOf(points []Point, rg Range) Box {
	b := Box{X1: math.Inf(1), Y1: math.Inf(1), X2: math.Inf(-1), Y2: math.Inf(-1)}
	for i := rg.Start; i <= rg.End; i++ {
		b.X1 = math.Min(points[i].X, b.X1)
		b.Y1 = math.Min(points[i].Y, b.Y1)
		b.X2 = math.Max(points[i].X, b.X2)
		b.Y2 = math.Max(points[i].Y, b.Y2)
	}
	return b
}

func (Box) shape() {}

// Vertices are returned as (x1,y1), (x2,y1), (x2,y2), (x1,y2).
func (b Box) Vertices() []Point {
	return []Point{
		NewPoint(b.X1, b.Y1),
		NewPoint(b.X2, b.Y1),
		NewPoint(b.X2, b.Y2),
		NewPoint(b.X1, b.Y2),
	}
}

// Contains is inclusive on all edges.
func (b Box) Contains(p Point) bool {
	return b.X1 <= p.X && b.Y1 <= p.Y && b.X2 >= p.X && b.Y2 >= p.Y
}

func (b Box) Intersects(other Shape) bool {
	switch o := other.(type) {
	case Point:
		return b.Contains(o)
	case Box:
		return !(b.X1 > o.X2 || b.X2 < o.X1 || b.Y1 > o.Y2 || b.Y2 < o.Y1)
	}
	return false
}

func (b Box) Area() float64 { return math.Abs((b.X2 - b.X1) * (b.Y2 - b.Y1)) }

func (b Box) String() string {
	return fmt.Sprintf("[%.6f,%.6f %.6f,%.6f]", b.X1, b.Y1, b.X2, b.Y2)
}
