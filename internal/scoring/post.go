package scoring

import (
	"fmt"

	"xcscore/internal/geo"
)

// Finalize fills the legs and the closing penalty of an optimal result and
// rounds its figures with the rule precision.
func (r *Rule) Finalize(d geo.Distance, info *Info) {
	if info == nil {
		return
	}
	info.Legs = r.legs(d, info)
	if info.CP != nil {
		info.Penalty = r.Round(r.Penalty(info.CP.D))
		info.CP.D = r.Round(info.CP.D)
	}
	info.Score = r.Round(info.Score)
	info.Distance = r.Round(info.Distance)
}

func (r *Rule) legs(d geo.Distance, info *Info) []Leg {
	tp := info.TP
	if len(tp) == 0 {
		return nil
	}
	leg := func(name string, a, b geo.Point) Leg {
		return Leg{Name: name, D: r.Round(d.Between(a, b)), Start: a, Finish: b}
	}

	var legs []Leg
	if info.EP != nil {
		legs = append(legs, leg("start : tp0", info.EP.Start, tp[0]))
	}
	for i := 0; i < len(tp)-1; i++ {
		legs = append(legs, leg(fmt.Sprintf("tp%d : tp%d", i, i+1), tp[i], tp[i+1]))
	}
	switch {
	case info.EP != nil:
		last := len(tp) - 1
		legs = append(legs, leg(fmt.Sprintf("tp%d : finish", last), tp[last], info.EP.Finish))
	case info.CP != nil:
		last := len(tp) - 1
		legs = append(legs, leg(fmt.Sprintf("tp%d : tp0", last), tp[last], tp[0]))
	}
	return legs
}
