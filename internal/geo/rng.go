package geo

import (
	"errors"
	"fmt"
)

// ErrInvalidRange is returned when a range would end before it starts.
var ErrInvalidRange = errors.New("start should be before end")

// Range is an inclusive span of fix indices.
type Range struct {
	Start, End int
}

// NewRange validates start <= end.
func NewRange(start, end int) (Range, error) {
	if end < start {
		return Range{}, fmt.Errorf("%w: %d:%d", ErrInvalidRange, start, end)
	}
	return Range{Start: start, End: end}, nil
}

func (r Range) Count() int { return r.End - r.Start + 1 }

// Center is the lower middle index.
func (r Range) Center() int { return r.Start + (r.End-r.Start)/2 }

// Left is [start, center].
func (r Range) Left() Range { return Range{Start: r.Start, End: r.Center()} }

// Right is [start + ceil((end-start)/2), end]. For an even count the two
// halves are disjoint, for an odd count they share the center.
func (r Range) Right() Range {
	return Range{Start: r.Start + (r.End-r.Start+1)/2, End: r.End}
}

func (r Range) Contains(i int) bool { return r.Start <= i && i <= r.End }

func (r Range) String() string { return fmt.Sprintf("%d:%d", r.Start, r.End) }
