package bounds

import (
	"math"

	"xcscore/internal/geo"
)

// PathFunc scores a path through one vertex of each of three rectangles.
type PathFunc func(a, b, c geo.Point) float64

// Perimeter is the closed path a -> b -> c -> a under d.
func Perimeter(d geo.Distance) PathFunc {
	return func(a, b, c geo.Point) float64 {
		return d.Between(a, b) + d.Between(b, c) + d.Between(c, a)
	}
}

// candidates keeps the vertices lying on corners of the enclosing box, or
// failing that on its edges, or failing that all of them.
func candidates(vertices []geo.Point, outer geo.Box) []geo.Point {
	var out []geo.Point
	for _, v := range vertices {
		if (v.X == outer.X1 || v.X == outer.X2) && (v.Y == outer.Y1 || v.Y == outer.Y2) {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		for _, v := range vertices {
			if v.X == outer.X1 || v.X == outer.X2 || v.Y == outer.Y1 || v.Y == outer.Y2 {
				out = append(out, v)
			}
		}
	}
	if len(out) == 0 {
		return vertices
	}
	return out
}

// MaxDistance3Rectangles is the maximum of fn over one vertex per box. The
// maximum of a sum of distances between rectangles lies on their vertices,
// and unless two of them overlap only on the vertices of the outer box.
func MaxDistance3Rectangles(boxes [3]geo.Box, fn PathFunc) float64 {
	outer := geo.Box{
		X1: math.Min(boxes[0].X1, math.Min(boxes[1].X1, boxes[2].X1)),
		Y1: math.Min(boxes[0].Y1, math.Min(boxes[1].Y1, boxes[2].Y1)),
		X2: math.Max(boxes[0].X2, math.Max(boxes[1].X2, boxes[2].X2)),
		Y2: math.Max(boxes[0].Y2, math.Max(boxes[1].Y2, boxes[2].Y2)),
	}

	intersecting := false
	for i := 0; i < 3; i++ {
		if boxes[i].Intersects(boxes[(i+1)%3]) {
			intersecting = true
			break
		}
	}

	var path [3][]geo.Point
	for i := range boxes {
		if intersecting {
			path[i] = boxes[i].Vertices()
		} else {
			path[i] = candidates(boxes[i].Vertices(), outer)
		}
	}

	max := 0.0
	for _, i := range path[0] {
		for _, j := range path[1] {
			for _, k := range path[2] {
				max = math.Max(max, fn(i, j, k))
			}
		}
	}
	return max
}

// MinDistance3Rectangles is the exhaustive minimum of fn over all vertices.
func MinDistance3Rectangles(boxes [3]geo.Box, fn PathFunc) float64 {
	v0, v1, v2 := boxes[0].Vertices(), boxes[1].Vertices(), boxes[2].Vertices()
	min := math.Inf(1)
	for _, i := range v0 {
		for _, j := range v1 {
			for _, k := range v2 {
				min = math.Min(min, fn(i, j, k))
			}
		}
	}
	return min
}

func MinDistance2Rectangles(d geo.Distance, a, b geo.Box) float64 {
	min := math.Inf(1)
	for _, i := range a.Vertices() {
		for _, j := range b.Vertices() {
			min = math.Min(min, d.Between(i, j))
		}
	}
	return min
}

func MaxDistance2Rectangles(d geo.Distance, a, b geo.Box) float64 {
	max := 0.0
	for _, i := range a.Vertices() {
		for _, j := range b.Vertices() {
			max = math.Max(max, d.Between(i, j))
		}
	}
	return max
}

// MaxDistanceNRectangles is the longest open path visiting the shapes in
// order, one vertex per shape. When any two neighbours in the chain
// intersect, every shape contributes all of its vertices.
func MaxDistanceNRectangles(d geo.Distance, shapes []geo.Shape) (float64, error) {
	if len(shapes) == 0 {
		return 0, nil
	}
	outer := geo.Box{X1: math.Inf(1), Y1: math.Inf(1), X2: math.Inf(-1), Y2: math.Inf(-1)}
	vertices := make([][]geo.Point, len(shapes))
	for r, s := range shapes {
		switch v := s.(type) {
		case geo.Box:
			vertices[r] = v.Vertices()
			outer.X1 = math.Min(outer.X1, v.X1)
			outer.Y1 = math.Min(outer.Y1, v.Y1)
			outer.X2 = math.Max(outer.X2, v.X2)
			outer.Y2 = math.Max(outer.Y2, v.Y2)
		case geo.Point:
			vertices[r] = []geo.Point{v}
			outer.X1 = math.Min(outer.X1, v.X)
			outer.Y1 = math.Min(outer.Y1, v.Y)
			outer.X2 = math.Max(outer.X2, v.X)
			outer.Y2 = math.Max(outer.Y2, v.Y)
		default:
			return 0, ErrUnsupportedShape
		}
	}

	intersecting := false
	for i := 1; i < len(shapes); i++ {
		if shapes[i-1].Intersects(shapes[i]) {
			intersecting = true
			break
		}
	}

	path := make([][]geo.Point, len(shapes))
	for i := range shapes {
		if intersecting {
			path[i] = vertices[i]
		} else {
			path[i] = candidates(vertices[i], outer)
		}
	}
	return maxDistancePath(d, nil, path), nil
}

func maxDistancePath(d geo.Distance, origin *geo.Point, path [][]geo.Point) float64 {
	max := 0.0
	for _, v := range path[0] {
		d1 := 0.0
		if origin != nil {
			d1 = d.Between(v, *origin)
		}
		d2 := 0.0
		if len(path) > 1 {
			d2 = maxDistancePath(d, &v, path[1:])
		}
		max = math.Max(max, d1+d2)
	}
	return max
}
