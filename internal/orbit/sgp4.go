package orbit

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/tlearchive/internal/tle"
)

// Note: go-satellite calls log.Fatal on malformed TLE input, so lines are
// validated before they reach the library. Propagate() takes Satellite by
// value, so failures are detected from NaN/Inf or implausible output.

// Subpoint is the point on the WGS84 ellipsoid directly below the satellite.
type Subpoint struct {
	Time         time.Time
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeKm   float64
	VelocityKmS  float64
}

// Propagator wraps the go-satellite SGP4 model for a single element set.
type Propagator struct {
	sat     satellite.Satellite
	noradID int64
}

// NewPropagator initializes SGP4 from two-line elements.
func NewPropagator(lines Lines, noradID int64) (*Propagator, error) {
	if err := validateLines(lines.Line1, lines.Line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", noradID, err)
	}

	sat := satellite.TLEToSat(lines.Line1, lines.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", noradID, sat.Error, sat.ErrorStr)
	}
	return &Propagator{sat: sat, noradID: noradID}, nil
}

// validateLines performs basic format validation on TLE lines.
func validateLines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// SubpointAt propagates to t (whole seconds) and returns the geodetic subpoint.
func (p *Propagator) SubpointAt(t time.Time) (Subpoint, error) {
	t = t.UTC()
	y, mo, d := t.Date()
	h, mi, s := t.Clock()

	pos, _ := satellite.Propagate(p.sat, y, int(mo), d, h, mi, s)
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return Subpoint{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: output is NaN/Inf", p.noradID)
	}

	// Sanity check: position magnitude should be between ~6200km and ~50000km.
	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return Subpoint{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: unreasonable position magnitude %.1f km", p.noradID, mag)
	}

	gmst := satellite.GSTimeFromDate(y, int(mo), d, h, mi, s)
	alt, vel, ll := satellite.ECIToLLA(pos, gmst)
	deg := satellite.LatLongDeg(ll)

	return Subpoint{
		Time:         t.Truncate(time.Second),
		LatitudeDeg:  deg.Latitude,
		LongitudeDeg: normalizeLongitude(deg.Longitude),
		AltitudeKm:   alt,
		VelocityKmS:  vel,
	}, nil
}

// CheckRecord renders rec as two-line elements and propagates it to its own
// epoch, failing if the element set cannot be flown by SGP4.
func CheckRecord(rec tle.Record) (Subpoint, error) {
	lines, err := ToLines(rec)
	if err != nil {
		return Subpoint{}, err
	}
	noradID, _ := rec.NORADID()
	epochStr, _ := rec.Epoch()
	epoch, err := ParseEpoch(epochStr)
	if err != nil {
		return Subpoint{}, err
	}

	prop, err := NewPropagator(lines, noradID)
	if err != nil {
		return Subpoint{}, err
	}
	return prop.SubpointAt(epoch)
}

func normalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
