package astro

import (
	"math"
)

// Howard et al. (1990) sidereal rotation law, degrees/day:
// ω(lat) = A + B·sin²(lat) + C·sin⁴(lat).
const (
	RotationA = 14.713
	RotationB = -2.396
	RotationC = -1.787
)

const secondsPerDay = 86400.0

// SiderealRotationRate returns the solar sidereal rotation rate at a
// heliographic latitude, in radians per second.
func SiderealRotationRate(latDeg float64) float64 {
	s2 := math.Sin(degToRad(latDeg))
	s2 *= s2
	degPerDay := RotationA + RotationB*s2 + RotationC*s2*s2
	return degToRad(degPerDay) / secondsPerDay
}

// EquatorialRotationRate is the rotation rate at latitude 0 in rad/s.
func EquatorialRotationRate() float64 {
	return degToRad(RotationA) / secondsPerDay
}

// SpiralParams configures Parker-spiral tracing.
type SpiralParams struct {
	// VSW is the solar-wind speed in km/s. Must be positive.
	VSW float64

	// SourceSurface is the inner boundary in solar radii (default 1).
	SourceSurface float64

	// DiffRot applies latitude-dependent rotation; when false the
	// equatorial rate is used for every latitude.
	DiffRot bool
}

// sourceAU returns the inner boundary radius in AU.
func (p SpiralParams) sourceAU() float64 {
	ss := p.SourceSurface
	if ss <= 0 {
		ss = 1
	}
	return ss * SunRadiusAU
}

// rate returns the rotation rate used for a field line at latDeg.
func (p SpiralParams) rate(latDeg float64) float64 {
	if !p.DiffRot {
		return EquatorialRotationRate()
	}
	return SiderealRotationRate(latDeg)
}

// SpiralOffset returns Δφ in degrees: the longitude by which a Parker spiral
// launched at the source surface has trailed behind the rotating Sun when
// it reaches distance rAU. Δφ = Ω(lat)·(r − R_source)/v_sw.
// Returns 0 for r at or below the source surface and NaN for v_sw <= 0.
func SpiralOffset(rAU, latDeg float64, p SpiralParams) float64 {
	if p.VSW <= 0 {
		return math.NaN()
	}
	dr := rAU - p.sourceAU()
	if dr <= 0 {
		return 0
	}
	return radToDeg(p.rate(latDeg) * AUToKm(dr) / p.VSW)
}

// FootpointLongitude returns the longitude of the magnetic footpoint on the
// source surface for a body at lonDeg/latDeg and distance rAU. The footpoint
// lies west of the body (towards larger heliographic longitude), so the
// body's longitude is the footpoint minus the trailing offset. The result
// is not normalized; callers apply their frame's range.
func FootpointLongitude(lonDeg, latDeg, rAU float64, p SpiralParams) float64 {
	return lonDeg + SpiralOffset(rAU, latDeg, p)
}

// SpiralPoint is one sample of a Parker spiral in polar form.
type SpiralPoint struct {
	R      float64 // Distance in AU
	LonDeg float64 // Longitude in degrees (same frame as the footpoint)
}

// SpiralTrace samples the field line through footLonDeg from the source
// surface out to rMaxAU using n points (n >= 2). Longitudes are returned
// unwrapped so plots can draw a continuous curve.
func SpiralTrace(footLonDeg, latDeg, rMaxAU float64, n int, p SpiralParams) []SpiralPoint {
	if n < 2 || p.VSW <= 0 {
		return nil
	}
	r0 := p.sourceAU()
	if rMaxAU <= r0 {
		return []SpiralPoint{{R: r0, LonDeg: footLonDeg}}
	}
	pts := make([]SpiralPoint, n)
	step := (rMaxAU - r0) / float64(n-1)
	for i := range pts {
		r := r0 + step*float64(i)
		pts[i] = SpiralPoint{R: r, LonDeg: footLonDeg - SpiralOffset(r, latDeg, p)}
	}
	return pts
}

// Separation returns the signed angular difference a − b wrapped into
// (-180, 180].
func Separation(aDeg, bDeg float64) float64 {
	return WrapAngle180(aDeg - bDeg)
}

// NormalizeAngle360 normalizes an angle to [0, 360) degrees.
func NormalizeAngle360(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a -= 360
	}
	return a
}

// WrapAngle180 wraps an angle into (-180, 180] degrees.
func WrapAngle180(a float64) float64 {
	a = NormalizeAngle360(a)
	if a > 180 {
		a -= 360
	}
	return a
}
