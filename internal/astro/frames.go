// Package astro provides heliographic coordinate transformations and the
// Parker-spiral geometry used for magnetic connection analysis.
package astro

import (
	"math"
)

// AU is the Astronomical Unit in kilometers.
const AU = 149597870.7

// SunRadiusKm is the nominal solar radius (IAU 2015 B3) in kilometers.
const SunRadiusKm = 695700.0

// SunRadiusAU is the nominal solar radius in AU.
const SunRadiusAU = SunRadiusKm / AU

// Vec3 represents a 3D vector in any reference frame.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the magnitude of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Scale returns the vector scaled by a factor.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Add returns the sum of two vectors.
func (v Vec3) Add(u Vec3) Vec3 {
	return Vec3{X: v.X + u.X, Y: v.Y + u.Y, Z: v.Z + u.Z}
}

// Sub returns the difference of two vectors.
func (v Vec3) Sub(u Vec3) Vec3 {
	return Vec3{X: v.X - u.X, Y: v.Y - u.Y, Z: v.Z - u.Z}
}

// IsFinite reports whether all components are finite numbers.
func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// FromSpherical builds a vector from longitude/latitude in degrees and a radius.
func FromSpherical(lonDeg, latDeg, r float64) Vec3 {
	lon := degToRad(lonDeg)
	lat := degToRad(latDeg)
	cosLat := math.Cos(lat)
	return Vec3{
		X: r * cosLat * math.Cos(lon),
		Y: r * cosLat * math.Sin(lon),
		Z: r * math.Sin(lat),
	}
}

// KmToAU converts kilometers to Astronomical Units.
func KmToAU(km float64) float64 {
	return km / AU
}

// AUToKm converts Astronomical Units to kilometers.
func AUToKm(au float64) float64 {
	return au * AU
}

// Latitude returns the angle of v above its frame's XY plane in degrees.
func Latitude(v Vec3) float64 {
	r := v.Norm()
	if r == 0 {
		return 0
	}
	return radToDeg(math.Asin(clamp(v.Z/r, -1, 1)))
}

// Longitude returns the azimuth of v in its frame's XY plane, in [0, 360).
func Longitude(v Vec3) float64 {
	lon := radToDeg(math.Atan2(v.Y, v.X))
	if lon < 0 {
		lon += 360
	}
	return lon
}

// PrecessionInLongitude returns the general precession in ecliptic longitude
// accumulated since J2000.0, in degrees, for T Julian centuries.
func PrecessionInLongitude(T float64) float64 {
	return (5029.0966*T + 1.11113*T*T) / 3600
}

// EclipticJ2000ToDate rotates a heliocentric J2000 ecliptic vector to the
// mean ecliptic and equinox of date. Only the longitude is precessed; the
// drift of the ecliptic pole is below 0.05° over the supported epochs.
func EclipticJ2000ToDate(v Vec3, T float64) Vec3 {
	return rotateZ(v, -degToRad(PrecessionInLongitude(T)))
}

// EclipticDateToJ2000 is the inverse of EclipticJ2000ToDate.
func EclipticDateToJ2000(v Vec3, T float64) Vec3 {
	return rotateZ(v, degToRad(PrecessionInLongitude(T)))
}

// Inclination of the solar equator to the ecliptic (Carrington), degrees.
const solarInclinationDeg = 7.25

// SolarAscendingNode returns the longitude of the ascending node of the solar
// equator on the ecliptic of date, in degrees, for a Julian date.
func SolarAscendingNode(jd float64) float64 {
	return 73.6667 + 1.3958333*(jd-2396758.0)/36525.0
}

// EclipticToSolarEquatorial rotates an ecliptic-of-date vector into a frame
// whose XY plane is the solar equator and whose X axis points to the
// ascending node of the solar equator on the ecliptic.
func EclipticToSolarEquatorial(v Vec3, jd float64) Vec3 {
	node := rotateZ(v, degToRad(SolarAscendingNode(jd)))
	return rotateX(node, degToRad(solarInclinationDeg))
}

// SolarEquatorialToEcliptic is the inverse of EclipticToSolarEquatorial.
func SolarEquatorialToEcliptic(v Vec3, jd float64) Vec3 {
	tilted := rotateX(v, -degToRad(solarInclinationDeg))
	return rotateZ(tilted, -degToRad(SolarAscendingNode(jd)))
}

// rotateZ applies a passive rotation by angle (radians) about the Z axis:
// the returned components are expressed in axes turned by +angle.
func rotateZ(v Vec3, angle float64) Vec3 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Vec3{
		X: v.X*c + v.Y*s,
		Y: -v.X*s + v.Y*c,
		Z: v.Z,
	}
}

// rotateX applies a passive rotation by angle (radians) about the X axis.
func rotateX(v Vec3, angle float64) Vec3 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Vec3{
		X: v.X,
		Y: v.Y*c + v.Z*s,
		Z: -v.Y*s + v.Z*c,
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
