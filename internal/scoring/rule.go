// Package scoring defines competition rules: which shape is scored, how
// its bound and exact score are computed, how a closed shape may be closed
// and how results are rounded.
package scoring

import (
	"math"
	"strconv"
)

// Shape selects the bound/score policy of a rule.
type Shape string

const (
	ShapeDistance3     Shape = "distance3"
	ShapeTriangle      Shape = "triangle"
	ShapeOpenTriangle  Shape = "openTriangle"
	ShapeOutAndReturn2 Shape = "outAndReturn2"
	ShapeOutAndReturn1 Shape = "outAndReturn1"
)

// Closing selects how the closing distance of a closed shape is limited.
type Closing string

const (
	ClosingNone    Closing = ""
	ClosingLimit   Closing = "limit"
	ClosingPenalty Closing = "penalty"
)

// Rule is one scoring variant of a rule set. Distances are kilometres.
type Rule struct {
	Name        string  `yaml:"name" json:"name"`
	Code        string  `yaml:"code" json:"code"`
	Shape       Shape   `yaml:"shape" json:"shape"`
	Multiplier  float64 `yaml:"multiplier" json:"multiplier"`
	Cardinality int     `yaml:"cardinality" json:"cardinality"`

	// MinSide is the minimum fraction of the total each leg must reach
	// (FAI triangles); MaxSide the maximum. Zero disables the check.
	MinSide float64 `yaml:"minSide,omitempty" json:"minSide,omitempty"`
	MaxSide float64 `yaml:"maxSide,omitempty" json:"maxSide,omitempty"`

	// MinDistance is the shortest scored distance the rule accepts.
	MinDistance float64 `yaml:"minDistance,omitempty" json:"minDistance,omitempty"`

	Closing         Closing `yaml:"closing,omitempty" json:"closing,omitempty"`
	ClosingFixed    float64 `yaml:"closingFixed,omitempty" json:"closingFixed,omitempty"`
	ClosingFree     float64 `yaml:"closingFree,omitempty" json:"closingFree,omitempty"`
	ClosingRelative float64 `yaml:"closingRelative,omitempty" json:"closingRelative,omitempty"`

	// Precision is the number of decimals kept by Round, 2 when unset.
	Precision *int `yaml:"precision,omitempty" json:"precision,omitempty"`
}

// Decimals is the rounding precision, 2 when unset.
func (r *Rule) Decimals() int {
	if r.Precision == nil {
		return 2
	}
	return *r.Precision
}

// Round formats v with the rule precision and parses it back, the same
// rounding a decimal printout of the score shows.
func (r *Rule) Round(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	out, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', r.Decimals(), 64), 64)
	if err != nil {
		return v
	}
	return out
}

// TooShort reports whether distance falls below the rule minimum.
func (r *Rule) TooShort(distance float64) bool {
	return r.MinDistance > 0 && distance < r.MinDistance
}

// ClosingDistance is the largest accepted closing distance for a shape of
// the given total distance.
func (r *Rule) ClosingDistance(distance float64) float64 {
	switch r.Closing {
	case ClosingPenalty:
		return math.Inf(1)
	case ClosingLimit:
		return math.Max(r.ClosingFixed, distance*r.ClosingRelative)
	}
	return 0
}

// Penalty is the closing distance itself once it exceeds the free
// closing distance, zero otherwise.
func (r *Rule) Penalty(cd float64) float64 {
	if cd > r.ClosingFree {
		return cd
	}
	return 0
}

// Closed reports whether the rule scores a closed circuit.
func (r *Rule) Closed() bool {
	switch r.Shape {
	case ShapeTriangle, ShapeOutAndReturn1, ShapeOutAndReturn2:
		return true
	}
	return false
}

func (r *Rule) String() string { return r.Name }
