package astro

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/julian"
)

// Frame selects the heliographic longitude convention.
type Frame int

const (
	// FrameCarrington co-rotates with the Sun at the Carrington rate.
	// Longitudes are in [0, 360).
	FrameCarrington Frame = iota

	// FrameStonyhurst is fixed to the Sun-Earth line: Earth is always at
	// longitude 0. Longitudes are in (-180, 180].
	FrameStonyhurst
)

// String returns the frame name.
func (f Frame) String() string {
	switch f {
	case FrameCarrington:
		return "Carrington"
	case FrameStonyhurst:
		return "Stonyhurst"
	default:
		return "unknown"
	}
}

// ParseFrame parses a frame name. The numeric forms "0" and "1" are accepted
// because shared links of the web tool encode the frame that way.
func ParseFrame(s string) (Frame, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "carrington", "car", "hgc", "0", "":
		return FrameCarrington, nil
	case "stonyhurst", "ston", "hgs", "1":
		return FrameStonyhurst, nil
	default:
		return FrameCarrington, fmt.Errorf("unknown coordinate frame %q", s)
	}
}

// NormalizeLongitude maps a longitude into the frame's canonical range.
func (f Frame) NormalizeLongitude(lonDeg float64) float64 {
	if f == FrameStonyhurst {
		return WrapAngle180(lonDeg)
	}
	return NormalizeAngle360(lonDeg)
}

// ValidLongitude reports whether lonDeg is an acceptable user input for the
// frame. Carrington accepts [0, 360], Stonyhurst [-180, 180].
func (f Frame) ValidLongitude(lonDeg float64) bool {
	if !isFinite(lonDeg) {
		return false
	}
	if f == FrameStonyhurst {
		return lonDeg >= -180 && lonDeg <= 180
	}
	return lonDeg >= 0 && lonDeg <= 360
}

// JulianDate returns the Julian date of t (UTC taken as TT; the ~70 s
// difference is irrelevant at the precision of the rotation models).
func JulianDate(t time.Time) float64 {
	return julian.TimeToJD(t.UTC())
}

// J2000Century returns Julian centuries since J2000.0 for a Julian date.
func J2000Century(jd float64) float64 {
	return base.J2000Century(jd)
}

// CarringtonRotationAngle returns θ, the angle in degrees through which the
// Carrington prime meridian has rotated since its epoch (JD 2398220.0),
// normalized to [0, 360).
func CarringtonRotationAngle(jd float64) float64 {
	return NormalizeAngle360((jd - 2398220.0) * 360.0 / 25.38)
}

// HeliographicCoord is a position referred to the solar rotation axis.
type HeliographicCoord struct {
	LonDeg float64 // Carrington longitude, [0, 360)
	LatDeg float64 // Heliographic latitude, [-90, 90]
	R      float64 // Heliocentric distance in AU (3D)
}

// EquatorialDistance returns the projection of the radius vector onto the
// solar equatorial plane, r·cos(lat).
func (c HeliographicCoord) EquatorialDistance() float64 {
	return c.R * math.Cos(degToRad(c.LatDeg))
}

// CarringtonFromEcliptic converts a heliocentric J2000 ecliptic vector (AU)
// observed at time t to Carrington heliographic coordinates.
func CarringtonFromEcliptic(v Vec3, t time.Time) (HeliographicCoord, error) {
	if !v.IsFinite() {
		return HeliographicCoord{}, fmt.Errorf("non-finite position %+v", v)
	}
	r := v.Norm()
	if r == 0 {
		return HeliographicCoord{}, fmt.Errorf("position coincides with the Sun")
	}

	jd := JulianDate(t)
	ofDate := EclipticJ2000ToDate(v, J2000Century(jd))
	eq := EclipticToSolarEquatorial(ofDate, jd)

	// eq.X points at the solar equator's ascending node; the Carrington
	// meridian has rotated θ past it.
	coord := HeliographicCoord{
		LonDeg: NormalizeAngle360(Longitude(eq) - CarringtonRotationAngle(jd)),
		LatDeg: Latitude(eq),
		R:      r,
	}
	if !isFinite(coord.LonDeg) || !isFinite(coord.LatDeg) {
		return HeliographicCoord{}, fmt.Errorf("non-finite heliographic coordinates for %+v", v)
	}
	return coord, nil
}

// EclipticFromCarrington is the inverse of CarringtonFromEcliptic.
func EclipticFromCarrington(c HeliographicCoord, t time.Time) Vec3 {
	jd := JulianDate(t)
	u := c.LonDeg + CarringtonRotationAngle(jd)
	eq := FromSpherical(u, c.LatDeg, c.R)
	ofDate := SolarEquatorialToEcliptic(eq, jd)
	return EclipticDateToJ2000(ofDate, J2000Century(jd))
}

// CarringtonToStonyhurst converts a Carrington longitude to Stonyhurst,
// given Earth's Carrington longitude (L0) at the same instant.
func CarringtonToStonyhurst(carrLonDeg, earthCarrLonDeg float64) float64 {
	return WrapAngle180(carrLonDeg - earthCarrLonDeg)
}

// StonyhurstToCarrington converts a Stonyhurst longitude to Carrington.
func StonyhurstToCarrington(stonyLonDeg, earthCarrLonDeg float64) float64 {
	return NormalizeAngle360(stonyLonDeg + earthCarrLonDeg)
}

// ToFrame expresses a Carrington longitude in the requested frame.
func ToFrame(f Frame, carrLonDeg, earthCarrLonDeg float64) float64 {
	if f == FrameStonyhurst {
		return CarringtonToStonyhurst(carrLonDeg, earthCarrLonDeg)
	}
	return NormalizeAngle360(carrLonDeg)
}

// FromFrame converts a longitude given in frame f back to Carrington.
func FromFrame(f Frame, lonDeg, earthCarrLonDeg float64) float64 {
	if f == FrameStonyhurst {
		return StonyhurstToCarrington(lonDeg, earthCarrLonDeg)
	}
	return NormalizeAngle360(lonDeg)
}

// degToRad converts degrees to radians.
func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// radToDeg converts radians to degrees.
func radToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
