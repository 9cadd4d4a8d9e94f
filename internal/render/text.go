package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"xcscore/internal/geo"
	"xcscore/internal/opt"
)

// Line is the one-line description of a result printed while solving.
func Line(res *opt.Result) string {
	var b strings.Builder
	b.WriteString(res.Rule.Name)
	if res.Score > 0 {
		fmt.Fprintf(&b, " %v points", res.Rule.Round(res.Score))
	}
	if res.Info != nil {
		fmt.Fprintf(&b, " %vkm", res.Rule.Round(res.Info.Distance))
	}
	fmt.Fprintf(&b, " ( <%.4f )", res.Bound)
	return b.String()
}

// Summary writes the launches, the legs and the verdict of a result.
func Summary(w io.Writer, res *opt.Result, debug bool) error {
	ew := &errWriter{w: w}
	if t := res.Track; t != nil {
		n := len(t.Fixes)
		for _, ll := range t.Segments {
			ew.printf("Launch at fix %d, %s\n", ll.Launch, t.Fixes[ll.Launch].Time().Format(time.TimeOnly))
			ew.printf("Landing at fix n-%d, %s\n", n-ll.Landing-1, t.Fixes[ll.Landing].Time().Format(time.TimeOnly))
		}
	}

	info := res.Info
	if info == nil || len(info.TP) == 0 {
		ew.printf("no solution found, try increasing maximum running time, potential maximum score could be up to %.2f points\n", res.Bound)
		return ew.err
	}

	d := res.Metric
	if d == nil {
		d = geo.FCC
	}
	leg := func(a, b string, p, q geo.Point) {
		ew.printf("%6s %6s     %.2fkm\n", a, b, d.Between(p, q))
	}
	tp := info.TP
	last := len(tp) - 1
	if info.EP != nil {
		leg("start", "tp0", info.EP.Start, tp[0])
	}
	for i := 0; i < last; i++ {
		leg(fmt.Sprintf("tp%d", i), fmt.Sprintf("tp%d", i+1), tp[i], tp[i+1])
	}
	if info.EP != nil {
		leg(fmt.Sprintf("tp%d", last), "finish", tp[last], info.EP.Finish)
	} else {
		leg(fmt.Sprintf("tp%d", last), "tp0", tp[last], tp[0])
	}

	if debug {
		if info.EP != nil {
			ew.printf("str : %s\n", fixString(info.EP.Start))
		}
		for i, p := range tp {
			ew.printf("tp%d : %s\n", i, fixString(p))
		}
		if info.EP != nil {
			ew.printf("fin : %s\n", fixString(info.EP.Finish))
		}
	}

	verdict := "not optimal"
	if res.Optimal {
		verdict = "optimal"
	}
	ew.printf("Best solution is %s %s %v points, %vkm", verdict, res.Rule.Name, res.Score, res.Rule.Round(info.Distance))
	if info.CP != nil {
		ew.printf(" [ closing distance is %vkm ]", res.Rule.Round(info.CP.D))
	}
	if !res.Optimal {
		ew.printf(" potential maximum score could be up to %.2f points", res.Bound)
	}
	ew.printf("\n")
	return ew.err
}

func fixString(p geo.Point) string {
	return fmt.Sprintf("%4d : %.3f°:%.3f°", p.R, p.X, p.Y)
}

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
