// Package geo holds the planar primitives the scorer works with: fixes as
// points, index ranges over the track, bounding boxes and the two earth
// distance metrics.
package geo

import (
	"fmt"
	"math"
)

// Shape is either a Point or a Box. Bounding code walks shape vertices, so
// no other implementation is accepted.
type Shape interface {
	Vertices() []Point
	Intersects(other Shape) bool
	shape()
}

// Point is a position on the track. X is longitude, Y is latitude (decimal
// degrees) and R is the index of the fix it was taken from, or -1 for
// synthetic points such as box corners.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	R int     `json:"r"`
}

// NewPoint returns a point that is not tied to a fix.
func NewPoint(x, y float64) Point { return Point{X: x, Y: y, R: -1} }

// FixPoint returns the point of fix r.
func FixPoint(x, y float64, r int) Point { return Point{X: x, Y: y, R: r} }

func (Point) shape() {}

// Vertices of a point is the point itself.
func (p Point) Vertices() []Point { return []Point{p} }

// Intersects reports coordinate equality with another point or containment
// in a box.
func (p Point) Intersects(other Shape) bool {
	switch o := other.(type) {
	case Point:
		return p.X == o.X && p.Y == o.Y
	case Box:
		return o.Contains(p)
	}
	return false
}

func (p Point) String() string {
	if p.R < 0 {
		return fmt.Sprintf("(%.6f,%.6f)", p.X, p.Y)
	}
	return fmt.Sprintf("#%d(%.6f,%.6f)", p.R, p.X, p.Y)
}

func radians(deg float64) float64 { return deg / (180 / math.Pi) }

func degrees(rad float64) float64 { return rad * (180 / math.Pi) }
