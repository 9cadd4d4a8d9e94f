package main

import (
    "bytes"
    "context"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "xcscore/internal/flight"
    "xcscore/internal/igc"
)

func TestParseArgs(t *testing.T) {
    o, err := parseArgs([]string{"f.igc", "out=o.json", "maxtime=30", "scoring=XContest", "hp=true", "progress=250", "workers=2"})
    require.NoError(t, err)
    assert.Equal(t, "f.igc", o.File)
    assert.Equal(t, "o.json", o.Out)
    assert.Equal(t, 30*time.Second, o.MaxTime)
    assert.Equal(t, "XContest", o.Scoring)
    assert.True(t, o.HP)
    assert.Equal(t, 250*time.Millisecond, o.Progress)

    cfg := o.solverConfig()
    assert.Equal(t, 250*time.Millisecond, cfg.MaxCycle)
    assert.True(t, cfg.HighPrecision)
    assert.Equal(t, 2, cfg.Workers)

    o, err = parseArgs([]string{"f.igc", "noflight=true", "debug=true", "trim=true"})
    require.NoError(t, err)
    ro := o.renderOptions()
    assert.True(t, ro.NoFlight)
    assert.True(t, ro.Debug)
    assert.True(t, o.solverConfig().Trim)

    o, err = parseArgs([]string{"pipe=true"})
    require.NoError(t, err)
    assert.Equal(t, "FFVL", o.Scoring)
    assert.Equal(t, 100*time.Millisecond, o.Progress)

    _, err = parseArgs(nil)
    assert.ErrorIs(t, err, errUsage)
    _, err = parseArgs([]string{"f.igc", "color=red"})
    assert.Error(t, err)
    _, err = parseArgs([]string{"f.igc", "hp=maybe"})
    assert.Error(t, err)
    _, err = parseArgs([]string{"a.igc", "b.igc"})
    assert.Error(t, err)
}

func writeTriangle(t *testing.T, path string) {
    t.Helper()
    corners := [][2]float64{{6.0, 45.0}, {6.13, 45.0}, {6.065, 45.09}, {6.0, 45.0}}
    day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
    f := &igc.File{Date: day, Pilot: "Test Pilot"}
    for c := 0; c < 3; c++ {
        a, b := corners[c], corners[c+1]
        for i := 0; i < 15; i++ {
            k := float64(i) / 15
            f.Fixes = append(f.Fixes, flight.Fix{
                Timestamp: day.Add(10*time.Hour + time.Duration(len(f.Fixes))*time.Second).UnixMilli(),
                Longitude: a[0] + (b[0]-a[0])*k, Latitude: a[1] + (b[1]-a[1])*k, Valid: true,
            })
        }
    }
    f.Fixes = append(f.Fixes, flight.Fix{Timestamp: day.Add(10*time.Hour + 45*time.Second).UnixMilli(), Longitude: 6.0, Latitude: 45.0, Valid: true})
    var buf bytes.Buffer
    require.NoError(t, igc.Write(&buf, f))
    require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestRunWritesGeoJSON(t *testing.T) {
    dir := t.TempDir()
    in := filepath.Join(dir, "flight.igc")
    out := filepath.Join(dir, "flight.json")
    writeTriangle(t, in)

    var stdout, stderr bytes.Buffer
    code := run(context.Background(), []string{in, "out=" + out, "maxtime=30"}, nil, &stdout, &stderr)
    require.Equal(t, 0, code, stderr.String())
    assert.Contains(t, stdout.String(), "Triangle FAI")
    assert.Contains(t, stderr.String(), "best so far is")

    doc, err := os.ReadFile(out)
    require.NoError(t, err)
    assert.Contains(t, string(doc), "FeatureCollection")
}

func TestRunPipeQuiet(t *testing.T) {
    dir := t.TempDir()
    in := filepath.Join(dir, "flight.igc")
    writeTriangle(t, in)
    track, err := os.Open(in)
    require.NoError(t, err)
    defer track.Close()

    var stdout, stderr bytes.Buffer
    code := run(context.Background(), []string{"pipe=true", "quiet=true"}, track, &stdout, &stderr)
    require.Equal(t, 0, code, stderr.String())
    assert.Empty(t, stderr.String())
    assert.Contains(t, stdout.String(), "FeatureCollection")
}

func TestRunErrors(t *testing.T) {
    var stdout, stderr bytes.Buffer
    assert.Equal(t, 1, run(context.Background(), nil, nil, &stdout, &stderr))
    assert.Contains(t, stdout.String(), "Usage:")

    stderr.Reset()
    assert.Equal(t, 2, run(context.Background(), []string{"f.igc", "scoring=nope"}, nil, &stdout, &stderr))
    assert.Contains(t, stderr.String(), "No scoring rules named nope")

    stderr.Reset()
    assert.Equal(t, 1, run(context.Background(), []string{filepath.Join(t.TempDir(), "missing.igc")}, nil, &stdout, &stderr))
}
