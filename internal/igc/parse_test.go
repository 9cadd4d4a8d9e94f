package igc

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `AXXX001 test recorder
HFDTEDATE:160722,01
HFPLTPILOTINCHARGE: Jane Doe
HFGTYGLIDERTYPE: Alpha 7
B1012344512345N00601234EA0123401300
B1012354512400N00601300EA0123601302
BGARBAGE
B1012364512455S00601366WV0000001305
`

func TestParse(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 7, 16, 0, 0, 0, 0, time.UTC), f.Date)
	assert.Equal(t, "Jane Doe", f.Pilot)
	assert.Equal(t, "Alpha 7", f.GliderType)
	require.Len(t, f.Fixes, 3)
	assert.Len(t, f.Errors, 1)

	first := f.Fixes[0]
	assert.InDelta(t, 45+12.345/60, first.Latitude, 1e-9)
	assert.InDelta(t, 6+1.234/60, first.Longitude, 1e-9)
	assert.True(t, first.Valid)
	require.NotNil(t, first.PressureAltitude)
	assert.Equal(t, 1234.0, *first.PressureAltitude)
	assert.Equal(t, 1300.0, *first.GPSAltitude)
	assert.Equal(t, time.Date(2022, 7, 16, 10, 12, 34, 0, time.UTC), first.Time())

	last := f.Fixes[2]
	assert.Less(t, last.Latitude, 0.0)
	assert.Less(t, last.Longitude, 0.0)
	assert.False(t, last.Valid)
	assert.Nil(t, last.PressureAltitude, "zero pressure altitude is not recorded")
	assert.Equal(t, int64(1000), last.Timestamp-f.Fixes[1].Timestamp)
}

func TestParseMidnightRollover(t *testing.T) {
	doc := "HFDTE311222\n" +
		"B2359594512345N00601234EA0123401300\n" +
		"B0000004512345N00601234EA0123401300\n"
	f, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, f.Fixes, 2)
	assert.Equal(t, int64(1000), f.Fixes[1].Timestamp-f.Fixes[0].Timestamp)
	assert.Equal(t, 2023, f.Fixes[1].Time().Year())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("B1012344512345N00601234EA0123401300\n"))
	assert.ErrorIs(t, err, ErrNoDate)

	_, err = Parse(strings.NewReader("HFDTE160722\n"))
	assert.ErrorIs(t, err, ErrNoFixes)
}

func TestWriteRoundTrip(t *testing.T) {
	in, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, Write(&buf, in))
	out, err := Parse(strings.NewReader(buf.String()))
	require.NoError(t, err)

	assert.Equal(t, in.Date, out.Date)
	assert.Equal(t, in.Pilot, out.Pilot)
	require.Len(t, out.Fixes, len(in.Fixes))
	for i := range in.Fixes {
		assert.Equal(t, in.Fixes[i].Timestamp, out.Fixes[i].Timestamp)
		assert.InDelta(t, in.Fixes[i].Latitude, out.Fixes[i].Latitude, 1e-9)
		assert.InDelta(t, in.Fixes[i].Longitude, out.Fixes[i].Longitude, 1e-9)
		assert.Equal(t, in.Fixes[i].Valid, out.Fixes[i].Valid)
	}
}
