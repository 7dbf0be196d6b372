// Package orbit converts archived GP element records to classic two-line
// element sets and propagates them with SGP4.
package orbit

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/star/tlearchive/internal/tle"
)

// epochLayouts are the EPOCH formats seen in CelesTrak OMM JSON.
var epochLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseEpoch parses an OMM EPOCH string as UTC.
func ParseEpoch(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range epochLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized epoch %q", s)
}

// Lines holds a two-line element set.
type Lines struct {
	Line1 string
	Line2 string
}

// ToLines renders an OMM record in two-line element format, checksums included.
func ToLines(rec tle.Record) (Lines, error) {
	noradID, ok := rec.NORADID()
	if !ok {
		return Lines{}, fmt.Errorf("record has no integer %s", tle.FieldNORADID)
	}
	if noradID < 1 || noradID > 99999 {
		return Lines{}, fmt.Errorf("norad id %d does not fit the two-line format", noradID)
	}

	epochStr, ok := rec.Epoch()
	if !ok {
		return Lines{}, fmt.Errorf("record has no %s", tle.FieldEpoch)
	}
	epoch, err := ParseEpoch(epochStr)
	if err != nil {
		return Lines{}, err
	}

	e := elementReader{rec: rec}
	meanMotion := e.float("MEAN_MOTION", true)
	ecc := e.float("ECCENTRICITY", true)
	incl := e.float("INCLINATION", true)
	raan := e.float("RA_OF_ASC_NODE", true)
	argp := e.float("ARG_OF_PERICENTER", true)
	meanAnomaly := e.float("MEAN_ANOMALY", true)
	bstar := e.float("BSTAR", false)
	ndot := e.float("MEAN_MOTION_DOT", false)
	nddot := e.float("MEAN_MOTION_DDOT", false)
	ephType := e.int("EPHEMERIS_TYPE", 0)
	elsetNo := e.int("ELEMENT_SET_NO", 999)
	revs := e.int("REV_AT_EPOCH", 0)
	if e.err != nil {
		return Lines{}, e.err
	}

	bstarStr, err := formatExponent(bstar)
	if err != nil {
		return Lines{}, fmt.Errorf("BSTAR: %w", err)
	}
	nddotStr, err := formatExponent(nddot)
	if err != nil {
		return Lines{}, fmt.Errorf("MEAN_MOTION_DDOT: %w", err)
	}

	class := "U"
	if s, ok := rec["CLASSIFICATION_TYPE"].(string); ok && len(s) == 1 {
		class = s
	}

	line1 := fmt.Sprintf("1 %05d%s %-8s %s %s %s %s %d %4d",
		noradID, class, intlDesignator(rec), formatEpoch(epoch),
		formatNdot(ndot), nddotStr, bstarStr, ephType%10, elsetNo%10000)
	line2 := fmt.Sprintf("2 %05d %8.4f %8.4f %07d %8.4f %8.4f %11.8f%5d",
		noradID, incl, raan, int64(math.Round(ecc*1e7)), argp, meanAnomaly, meanMotion, revs%100000)

	lines := Lines{
		Line1: line1 + strconv.Itoa(Checksum(line1)),
		Line2: line2 + strconv.Itoa(Checksum(line2)),
	}
	if err := validateLines(lines.Line1, lines.Line2); err != nil {
		return Lines{}, fmt.Errorf("rendering norad %d: %w", noradID, err)
	}
	return lines, nil
}

// Checksum is the modulo-10 sum of digits, with '-' counting as 1.
func Checksum(line string) int {
	sum := 0
	for _, c := range line {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// intlDesignator turns "1998-067A" into "98067A".
func intlDesignator(rec tle.Record) string {
	id, _ := rec["OBJECT_ID"].(string)
	if len(id) < 6 || id[4] != '-' {
		return ""
	}
	s := id[2:4] + id[5:]
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}

// formatEpoch renders t as YYDDD.DDDDDDDD.
func formatEpoch(t time.Time) string {
	start := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	day := 1 + t.Sub(start).Hours()/24
	return fmt.Sprintf("%02d%012.8f", t.Year()%100, day)
}

// formatNdot renders the first derivative as " .NNNNNNNN" or "-.NNNNNNNN".
func formatNdot(v float64) string {
	s := strings.TrimPrefix(fmt.Sprintf("%.8f", math.Abs(v)), "0")
	if v < 0 {
		return "-" + s
	}
	return " " + s
}

// formatExponent renders v in the implied-decimal form " NNNNN-N".
func formatExponent(v float64) (string, error) {
	const zero = " 00000-0"
	if v == 0 || math.IsNaN(v) {
		return zero, nil
	}
	a := math.Abs(v)
	exp := int(math.Floor(math.Log10(a))) + 1
	mant := int(math.Round(a / math.Pow(10, float64(exp)) * 1e5))
	if mant >= 100000 {
		mant /= 10
		exp++
	}
	if exp < -9 {
		return zero, nil
	}
	if exp > 9 {
		return "", fmt.Errorf("value %g out of range", v)
	}

	sign := " "
	if v < 0 {
		sign = "-"
	}
	expSign := "-"
	if exp >= 0 {
		expSign = "+"
	}
	if exp < 0 {
		exp = -exp
	}
	return fmt.Sprintf("%s%05d%s%d", sign, mant, expSign, exp), nil
}

// elementReader collects the first conversion error across several fields.
type elementReader struct {
	rec tle.Record
	err error
}

func (e *elementReader) float(key string, required bool) float64 {
	if e.err != nil {
		return 0
	}
	v, ok := e.rec[key]
	if !ok {
		if required {
			e.err = fmt.Errorf("record has no %s", key)
		}
		return 0
	}
	f, err := toFloat(v)
	if err != nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
	return f
}

func (e *elementReader) int(key string, def int64) int64 {
	if e.err != nil {
		return 0
	}
	v, ok := e.rec[key]
	if !ok {
		return def
	}
	f, err := toFloat(v)
	if err != nil {
		e.err = fmt.Errorf("%s: %w", key, err)
		return 0
	}
	return int64(f)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return 0, fmt.Errorf("unsupported value %v (%T)", v, v)
}
