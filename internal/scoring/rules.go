package scoring

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownRuleSet = errors.New("scoring: unknown rule set")

// Built-in rule sets by name.
var builtin = map[string][]Rule{
	"FFVL": {
		{Name: "Distance 3 points", Code: "od", Shape: ShapeDistance3, Multiplier: 1, Cardinality: 3},
		{Name: "Triangle plat", Code: "tri", Shape: ShapeTriangle, Multiplier: 1.2, Cardinality: 3,
			Closing: ClosingLimit, ClosingFixed: 3, ClosingFree: 3, ClosingRelative: 0.05},
		{Name: "Triangle FAI", Code: "fai", Shape: ShapeTriangle, Multiplier: 1.4, Cardinality: 3, MinSide: 0.28,
			Closing: ClosingLimit, ClosingFixed: 3, ClosingFree: 3, ClosingRelative: 0.05},
	},
	"XContest": {
		{Name: "Free flight", Code: "od", Shape: ShapeDistance3, Multiplier: 1, Cardinality: 3},
		{Name: "Free triangle", Code: "tri", Shape: ShapeTriangle, Multiplier: 1.2, Cardinality: 3,
			Closing: ClosingLimit, ClosingRelative: 0.2},
		{Name: "FAI triangle", Code: "fai", Shape: ShapeTriangle, Multiplier: 1.4, Cardinality: 3, MinSide: 0.28,
			Closing: ClosingLimit, ClosingRelative: 0.2},
		{Name: "Closed free triangle", Code: "tri", Shape: ShapeTriangle, Multiplier: 1.4, Cardinality: 3,
			Closing: ClosingLimit, ClosingRelative: 0.05},
		{Name: "Closed FAI triangle", Code: "fai", Shape: ShapeTriangle, Multiplier: 1.6, Cardinality: 3, MinSide: 0.28,
			Closing: ClosingLimit, ClosingRelative: 0.05},
	},
	"FAI": {
		{Name: "Free distance", Code: "od", Shape: ShapeDistance3, Multiplier: 1, Cardinality: 3},
		{Name: "FAI triangle", Code: "fai", Shape: ShapeTriangle, Multiplier: 1, Cardinality: 3, MinSide: 0.28,
			Closing: ClosingLimit, ClosingRelative: 0.2},
	},
	"FAI-OAR": {
		{Name: "Out-and-return", Code: "oar", Shape: ShapeOutAndReturn1, Multiplier: 1, Cardinality: 3,
			Closing: ClosingLimit, ClosingRelative: 0.2},
	},
	"XCLeague": {
		{Name: "Open distance", Code: "od", Shape: ShapeDistance3, Multiplier: 1, Cardinality: 3},
		{Name: "Out and return", Code: "oar", Shape: ShapeOutAndReturn2, Multiplier: 2, Cardinality: 2,
			Closing: ClosingLimit, ClosingFixed: 0.8},
		{Name: "Flat triangle", Code: "tri", Shape: ShapeTriangle, Multiplier: 2, Cardinality: 3,
			Closing: ClosingLimit, ClosingFixed: 0.8},
		{Name: "FAI triangle", Code: "fai", Shape: ShapeTriangle, Multiplier: 3, Cardinality: 3, MinSide: 0.28,
			Closing: ClosingLimit, ClosingFixed: 0.8},
	},
}

// DefaultRuleSet is used when no rule set is named.
const DefaultRuleSet = "FFVL"

// Registry resolves rule sets by name. The built-in sets are always
// present; loaded sets may add to or replace them.
type Registry struct {
	sets map[string][]Rule
}

// NewRegistry returns a registry holding the built-in rule sets.
func NewRegistry() *Registry {
	r := &Registry{sets: map[string][]Rule{}}
	for name, rules := range builtin {
		r.sets[name] = rules
	}
	return r
}

// Add registers or replaces a rule set.
func (r *Registry) Add(name string, rules []Rule) { r.sets[name] = rules }

// Lookup returns a copy of the named rule set; an empty name is the
// default set.
func (r *Registry) Lookup(name string) ([]Rule, error) {
	if name == "" {
		name = DefaultRuleSet
	}
	rules, ok := r.sets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleSet, name)
	}
	return append([]Rule(nil), rules...), nil
}

// Names lists the registered sets in alphabetical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sets))
	for n := range r.sets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RuleSet looks a name up among the built-in sets.
func RuleSet(name string) ([]Rule, error) { return NewRegistry().Lookup(name) }
