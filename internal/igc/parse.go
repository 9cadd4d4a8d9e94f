// Package igc reads the subset of the IGC flight recorder format the
// scorer needs: the flight date and the B (fix) records.
package igc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"xcscore/internal/flight"
)

var (
	ErrNoDate  = errors.New("igc: missing HFDTE date header")
	ErrNoFixes = errors.New("igc: no B records")
)

// File is a parsed IGC file.
type File struct {
	Date       time.Time
	Pilot      string
	GliderType string
	Fixes      []flight.Fix
	// Errors collects malformed lines that were skipped.
	Errors []error
}

// Parse reads an IGC file. Malformed B records are skipped and reported in
// File.Errors rather than failing the whole file.
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var day time.Time
	var last time.Duration
	haveDate := false
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimRight(sc.Text(), "\r\n ")
		if s == "" {
			continue
		}
		switch s[0] {
		case 'H':
			if d, ok := parseDate(s); ok {
				day, haveDate = d, true
				f.Date = d
				continue
			}
			if v, ok := header(s, "PLT"); ok {
				f.Pilot = v
			} else if v, ok := header(s, "GTY"); ok {
				f.GliderType = v
			}
		case 'B':
			if !haveDate {
				return nil, ErrNoDate
			}
			fix, tod, err := parseB(s)
			if err != nil {
				f.Errors = append(f.Errors, fmt.Errorf("line %d: %w", line, err))
				continue
			}
			// B records carry the time of day only; a step back of more
			// than an hour is a UTC midnight rollover.
			if len(f.Fixes) > 0 && tod < last-time.Hour {
				day = day.AddDate(0, 0, 1)
			}
			last = tod
			fix.Timestamp = day.Add(tod).UnixMilli()
			f.Fixes = append(f.Fixes, fix)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("igc: read: %w", err)
	}
	if len(f.Fixes) == 0 {
		return nil, ErrNoFixes
	}
	return f, nil
}

// parseDate accepts both "HFDTEDDMMYY" and "HFDTEDATE:DDMMYY,NN".
func parseDate(s string) (time.Time, bool) {
	if len(s) < 5 || s[2:5] != "DTE" {
		return time.Time{}, false
	}
	v := s[5:]
	if i := strings.IndexByte(v, ':'); i >= 0 {
		v = v[i+1:]
	}
	if len(v) < 6 {
		return time.Time{}, false
	}
	d, err := time.Parse("020106", v[:6])
	if err != nil {
		return time.Time{}, false
	}
	return d.UTC(), true
}

func header(s, code string) (string, bool) {
	if len(s) < 5 || s[2:5] != code {
		return "", false
	}
	v := s[5:]
	if i := strings.IndexByte(v, ':'); i >= 0 {
		v = v[i+1:]
	}
	return strings.TrimSpace(v), true
}

// parseB decodes "B HHMMSS DDMMmmmN DDDMMmmmE V PPPPP GGGGG".
func parseB(s string) (flight.Fix, time.Duration, error) {
	if len(s) < 35 {
		return flight.Fix{}, 0, fmt.Errorf("short B record %q", s)
	}
	hh, err1 := strconv.Atoi(s[1:3])
	mm, err2 := strconv.Atoi(s[3:5])
	ss, err3 := strconv.Atoi(s[5:7])
	if err := errors.Join(err1, err2, err3); err != nil || hh > 23 || mm > 59 || ss > 59 {
		return flight.Fix{}, 0, fmt.Errorf("bad time in %q", s)
	}
	tod := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute + time.Duration(ss)*time.Second

	lat, err := coordinate(s[7:14], s[14], 'N', 'S', 2)
	if err != nil {
		return flight.Fix{}, 0, err
	}
	lon, err := coordinate(s[15:23], s[23], 'E', 'W', 3)
	if err != nil {
		return flight.Fix{}, 0, err
	}

	fix := flight.Fix{
		Latitude:  lat,
		Longitude: lon,
		Valid:     s[24] == 'A',
	}
	if v, err := strconv.Atoi(strings.TrimSpace(s[25:30])); err == nil && v != 0 {
		a := float64(v)
		fix.PressureAltitude = &a
	}
	if v, err := strconv.Atoi(strings.TrimSpace(s[30:35])); err == nil && v != 0 {
		a := float64(v)
		fix.GPSAltitude = &a
	}
	return fix, tod, nil
}

// coordinate decodes DDMMmmm or DDDMMmmm with a hemisphere letter.
func coordinate(v string, hemi, pos, neg byte, degDigits int) (float64, error) {
	deg, err := strconv.Atoi(v[:degDigits])
	if err != nil {
		return 0, fmt.Errorf("bad degrees %q", v)
	}
	milli, err := strconv.Atoi(v[degDigits:])
	if err != nil {
		return 0, fmt.Errorf("bad minutes %q", v)
	}
	c := float64(deg) + float64(milli)/60000
	switch hemi {
	case pos:
	case neg:
		c = -c
	default:
		return 0, fmt.Errorf("bad hemisphere %q", hemi)
	}
	return c, nil
}
