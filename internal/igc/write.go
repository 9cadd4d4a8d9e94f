package igc

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"xcscore/internal/flight"
)

// Write encodes f as an IGC document: the date, pilot and glider headers
// followed by one B record per fix. Coordinates keep the format's
// thousandth of a minute.
func Write(w io.Writer, f *File) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "HFDTEDATE:%s,01\r\n", f.Date.UTC().Format("020106"))
	if f.Pilot != "" {
		fmt.Fprintf(bw, "HFPLTPILOTINCHARGE:%s\r\n", f.Pilot)
	}
	if f.GliderType != "" {
		fmt.Fprintf(bw, "HFGTYGLIDERTYPE:%s\r\n", f.GliderType)
	}
	for _, fix := range f.Fixes {
		bw.WriteString(record(fix))
	}
	return bw.Flush()
}

func record(fix flight.Fix) string {
	t := fix.Time()
	valid := byte('V')
	if fix.Valid {
		valid = 'A'
	}
	return fmt.Sprintf("B%02d%02d%02d%s%s%c%05d%05d\r\n",
		t.Hour(), t.Minute(), t.Second(),
		degMin(fix.Latitude, 2, 'N', 'S'),
		degMin(fix.Longitude, 3, 'E', 'W'),
		valid, altitude(fix.PressureAltitude), altitude(fix.GPSAltitude))
}

func degMin(v float64, width int, pos, neg byte) string {
	hemi := pos
	if v < 0 {
		hemi, v = neg, -v
	}
	milli := int(math.Round(v * 60000))
	return fmt.Sprintf("%0*d%05d%c", width, milli/60000, milli%60000, hemi)
}

func altitude(a *float64) int {
	if a == nil || *a < 0 {
		return 0
	}
	return int(math.Round(*a))
}
