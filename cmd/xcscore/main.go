// Command xcscore scores an IGC flight track from the command line.
//
//	xcscore <flight.igc> [out=flight.json] [maxtime=<n>] [scoring=FFVL|XContest|FAI|FAI-OAR|XCLeague]
//	        [quiet=true] [pipe=true] [progress=<ms>] [hp=true] [trim=true] ...
package main

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"

    "xcscore/internal/buildinfo"
    "xcscore/internal/flight"
    "xcscore/internal/igc"
    "xcscore/internal/logging"
    "xcscore/internal/opt"
    "xcscore/internal/render"
    "xcscore/internal/scoring"
)

// options are the key=value arguments after the track file.
type options struct {
    File     string
    Out      string
    MaxTime  time.Duration
    Scoring  string
    Rules    string
    Quiet    bool
    Pipe     bool
    Progress time.Duration
    HP       bool
    Trim     bool
    Invalid  bool
    NoFlight bool
    Debug    bool
    Trace    string
    MaxLoop  int
    Workers  int
}

var errUsage = errors.New("usage")

func parseArgs(args []string) (options, error) {
    o := options{Scoring: scoring.DefaultRuleSet, Progress: 100 * time.Millisecond}
    for _, a := range args {
        k, v, ok := strings.Cut(a, "=")
        if !ok {
            if o.File != "" { return o, fmt.Errorf("unexpected argument %q", a) }
            o.File = a
            continue
        }
        var err error
        switch k {
        case "out":
            o.Out = v
        case "scoring":
            o.Scoring = v
        case "rules":
            o.Rules = v
        case "trace":
            o.Trace = v
        case "maxtime":
            var n int
            n, err = strconv.Atoi(v)
            o.MaxTime = time.Duration(n) * time.Second
        case "progress":
            var n int
            n, err = strconv.Atoi(v)
            o.Progress = time.Duration(n) * time.Millisecond
        case "maxloop":
            o.MaxLoop, err = strconv.Atoi(v)
        case "workers":
            o.Workers, err = strconv.Atoi(v)
        case "quiet":
            o.Quiet, err = strconv.ParseBool(v)
        case "pipe":
            o.Pipe, err = strconv.ParseBool(v)
        case "hp":
            o.HP, err = strconv.ParseBool(v)
        case "trim":
            o.Trim, err = strconv.ParseBool(v)
        case "invalid":
            o.Invalid, err = strconv.ParseBool(v)
        case "noflight":
            o.NoFlight, err = strconv.ParseBool(v)
        case "debug":
            o.Debug, err = strconv.ParseBool(v)
        default:
            return o, fmt.Errorf("unknown option %q", k)
        }
        if err != nil { return o, fmt.Errorf("option %s: %w", k, err) }
    }
    if o.File == "" && !o.Pipe { return o, errUsage }
    if o.MaxTime < 0 || o.Progress <= 0 || o.MaxLoop < 0 || o.Workers < 0 {
        return o, errors.New("maxtime, progress, maxloop and workers must not be negative")
    }
    return o, nil
}

func (o options) solverConfig() opt.Config {
    return opt.Config{
        MaxCycle:      o.Progress,
        MaxLoop:       o.MaxLoop,
        HighPrecision: o.HP,
        Invalid:       o.Invalid,
        Trim:          o.Trim,
        Trace:         o.Trace,
        Workers:       o.Workers,
    }
}

// renderOptions are the GeoJSON output flags.
func (o options) renderOptions() render.Options {
    return render.Options{Debug: o.Debug, NoFlight: o.NoFlight}
}

func usage(w io.Writer) {
    fmt.Fprintf(w, "xcscore %s\n", buildinfo.String())
    fmt.Fprintln(w, "Usage:")
    fmt.Fprintln(w, "xcscore <flight.igc> [out=flight.json] [maxtime=<n>] [scoring=<rule set>] [quiet=true] [pipe=true] [progress=<n>] ...")
    fmt.Fprintln(w, "flight.igc            is the flight track log")
    fmt.Fprintln(w, "out=flight.json       save the best solution in GeoJSON format")
    fmt.Fprintln(w, "maxtime=n             limit the execution time to n seconds")
    fmt.Fprintln(w, "scoring=FFVL|XContest|FAI|FAI-OAR|XCLeague   select the scoring rules")
    fmt.Fprintln(w, "rules=rules.yaml      load additional rule sets")
    fmt.Fprintln(w, "quiet=true            suppress all output")
    fmt.Fprintln(w, "pipe=true             read the flight from stdin and write solutions to stdout")
    fmt.Fprintln(w, "progress=n            solver cycle length in ms; with pipe, emit a solution every cycle")
    fmt.Fprintln(w, "hp=true               high precision distances (Vincenty)")
    fmt.Fprintln(w, "trim=true             trim the flight to its launch and landing")
    fmt.Fprintln(w, "invalid=true          keep fixes flagged invalid")
    fmt.Fprintln(w, "noflight=true         omit the flight track from the GeoJSON")
    fmt.Fprintln(w, "workers=n             parallel node expansion")
}

func main() {
    _ = godotenv.Load(".env")
    os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
    o, err := parseArgs(args)
    if errors.Is(err, errUsage) {
        usage(stdout)
        return 1
    }
    if err != nil {
        fmt.Fprintln(stderr, err)
        return 2
    }
    log := logging.Noop()
    if o.Debug { log = logging.NewFromEnv() }

    reg := scoring.NewRegistry()
    if o.Rules != "" {
        if err := reg.LoadFile(o.Rules); err != nil {
            fmt.Fprintln(stderr, err)
            return 2
        }
    }
    rules, err := reg.Lookup(o.Scoring)
    if err != nil {
        fmt.Fprintf(stderr, "No scoring rules named %s\n", o.Scoring)
        return 2
    }

    in := stdin
    if !o.Pipe {
        f, err := os.Open(o.File)
        if err != nil {
            fmt.Fprintln(stderr, err)
            return 1
        }
        defer func() { _ = f.Close() }()
        in = f
    }
    file, err := igc.Parse(in)
    if err != nil {
        fmt.Fprintln(stderr, err)
        return 1
    }

    best, err := solve(ctx, o, file, rules, log, stdout, stderr)
    if err != nil {
        fmt.Fprintln(stderr, err)
        return 1
    }

    if err := writeOutput(o, best, stdout); err != nil {
        fmt.Fprintln(stderr, err)
        return 1
    }
    if !o.Quiet {
        out := stdout
        if o.Pipe { out = stderr }
        if err := render.Summary(out, best, o.Debug); err != nil {
            fmt.Fprintln(stderr, err)
            return 1
        }
    }
    return 0
}

// solve advances the solver until it is optimal or maxtime is reached,
// reporting each new best on stderr.
func solve(ctx context.Context, o options, file *igc.File, rules []scoring.Rule, log logging.Logger, stdout, stderr io.Writer) (*opt.Result, error) {
    if o.MaxTime > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, o.MaxTime)
        defer cancel()
    }
    cfg := o.solverConfig()
    track, err := flight.Analyze(file.Fixes, cfg.FlightOptions())
    if err != nil { return nil, err }
    s, err := opt.New(track, rules, cfg, opt.WithLogger(log))
    if err != nil { return nil, err }
    defer s.Close()

    var best *opt.Result
    for {
        res, err := s.Advance(ctx)
        if err != nil { return nil, err }
        if best == nil || res.ID != best.ID {
            if !o.Quiet { fmt.Fprintf(stderr, "best so far is %s\n", render.Line(res)) }
        }
        best = res
        if res.Optimal { return res, nil }
        if o.Pipe {
            if err := writeGeoJSON(stdout, res, o); err != nil { return nil, err }
        }
        if ctx.Err() != nil {
            if !o.Quiet { fmt.Fprintln(stderr, "max execution time reached, no optimal solution found") }
            return best, nil
        }
    }
}

func writeGeoJSON(w io.Writer, res *opt.Result, o options) error {
    b, err := json.Marshal(render.GeoJSON(res, o.renderOptions()))
    if err != nil { return err }
    b = append(b, '\n')
    _, err = w.Write(b)
    return err
}

// writeOutput saves the final solution to out=, or to stdout in pipe mode.
func writeOutput(o options, res *opt.Result, stdout io.Writer) error {
    switch {
    case o.Pipe:
        return writeGeoJSON(stdout, res, o)
    case o.Out != "":
        f, err := os.Create(o.Out)
        if err != nil { return err }
        if err := writeGeoJSON(f, res, o); err != nil {
            _ = f.Close()
            return err
        }
        return f.Close()
    }
    return nil
}
