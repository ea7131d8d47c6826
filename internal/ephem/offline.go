package ephem

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	pp "github.com/soniakeys/meeus/v3/planetposition"
	"github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"

	"github.com/litescript/ls-solarmach/internal/astro"
)

// L1DistanceAU is the distance of the Sun-Earth L1 point from Earth.
var L1DistanceAU = astro.KmToAU(1.5e6)

// OrbitalElements are J2000 mean Keplerian elements with linear rates per
// Julian century (Standish, "Keplerian Elements for Approximate Positions
// of the Major Planets", valid 1800-2050).
type OrbitalElements struct {
	A, DA   float64 // Semi-major axis, AU
	E, DE   float64 // Eccentricity
	I, DI   float64 // Inclination, degrees
	L, DL   float64 // Mean longitude, degrees
	LP, DLP float64 // Longitude of perihelion, degrees
	N, DN   float64 // Longitude of ascending node, degrees
}

// PlanetDef ties a catalog planet to its offline theories.
type PlanetDef struct {
	NAIFID   TargetID
	VSOP87   int // planetposition body index
	Elements OrbitalElements
}

// Planets is the list of major planets known to the offline provider.
var Planets = []PlanetDef{
	{NAIFMercury, pp.Mercury, OrbitalElements{0.38709927, 0.00000037, 0.20563593, 0.00001906, 7.00497902, -0.00594749, 252.25032350, 149472.67411175, 77.45779628, 0.16047689, 48.33076593, -0.12534081}},
	{NAIFVenus, pp.Venus, OrbitalElements{0.72333566, 0.00000390, 0.00677672, -0.00004107, 3.39467605, -0.00078890, 181.97909950, 58517.81538729, 131.60246718, 0.00268329, 76.67984255, -0.27769418}},
	{NAIFEarth, pp.Earth, OrbitalElements{1.00000261, 0.00000562, 0.01671123, -0.00004392, -0.00001531, -0.01294668, 100.46457166, 35999.37244981, 102.93768193, 0.32327364, 0, 0}},
	{NAIFMars, pp.Mars, OrbitalElements{1.52371034, 0.00001847, 0.09339410, 0.00007882, 1.84969142, -0.00813131, -4.55343205, 19140.30268499, -23.94362959, 0.44441088, 49.55953891, -0.29257343}},
	{NAIFJupiter, pp.Jupiter, OrbitalElements{5.20288700, -0.00011607, 0.04838624, -0.00013253, 1.30439695, -0.00183714, 34.39644051, 3034.74612775, 14.72847983, 0.21252668, 100.47390909, 0.20469106}},
	{NAIFSaturn, pp.Saturn, OrbitalElements{9.53667594, -0.00125060, 0.05386179, -0.00050991, 2.48599187, 0.00193609, 49.95424423, 1222.49362201, 92.59887831, -0.41897216, 113.66242448, -0.28867794}},
	{NAIFUranus, pp.Uranus, OrbitalElements{19.18916464, -0.00196176, 0.04725744, -0.00004397, 0.77263783, -0.00242939, 313.23810451, 428.48202785, 170.95427630, 0.40805281, 74.01692503, 0.04240589}},
	{NAIFNeptune, pp.Neptune, OrbitalElements{30.06992276, 0.00026291, 0.00859048, 0.00005105, 1.77004347, 0.00035372, -55.12002969, 218.45945325, 44.96476227, -0.32241464, 131.78422574, -0.00508664}},
}

var planetsByNAIF = func() map[TargetID]PlanetDef {
	m := make(map[TargetID]PlanetDef, len(Planets))
	for _, p := range Planets {
		m[p.NAIFID] = p
	}
	return m
}()

// OfflineProvider computes planet and L1 positions from analytic theories.
// Earth comes from the solar theory of Meeus ch. 25; the other planets from
// VSOP87 when a data directory is set, otherwise from mean elements.
// Spacecraft are not supported.
type OfflineProvider struct {
	vsop87Dir string

	mu      sync.Mutex
	loaded  map[int]*pp.V87Planet
	loadErr map[int]error
}

// NewOfflineProvider creates an offline provider. vsop87Dir may be empty.
func NewOfflineProvider(vsop87Dir string) *OfflineProvider {
	return &OfflineProvider{
		vsop87Dir: vsop87Dir,
		loaded:    make(map[int]*pp.V87Planet),
		loadErr:   make(map[int]error),
	}
}

// Name implements Provider.
func (p *OfflineProvider) Name() string {
	if p.vsop87Dir != "" {
		return "VSOP87"
	}
	return "Offline"
}

// HeliocentricPosition implements Provider.
func (p *OfflineProvider) HeliocentricPosition(ctx context.Context, target TargetInfo, t time.Time) (astro.Vec3, error) {
	if err := ctx.Err(); err != nil {
		return astro.Vec3{}, err
	}

	switch target.NAIFID {
	case NAIFEarth:
		return earthPosition(t), nil
	case NAIFSEMBL1:
		earth := earthPosition(t)
		return earth.Scale(1 - L1DistanceAU/earth.Norm()), nil
	}

	def, ok := planetsByNAIF[target.NAIFID]
	if !ok {
		return astro.Vec3{}, fmt.Errorf("%w: %s (offline)", ErrUnsupported, target.Name)
	}

	if v87 := p.vsop87(def.VSOP87); v87 != nil {
		L, B, R := v87.Position2000(astro.JulianDate(t))
		return eclipticVector(L, B, R), nil
	}
	return def.Elements.Position(astro.J2000Century(astro.JulianDate(t))), nil
}

// vsop87 lazily loads a VSOP87 planet. Returns nil when no directory is
// configured or the file cannot be read; the failure is remembered.
func (p *OfflineProvider) vsop87(ibody int) *pp.V87Planet {
	if p.vsop87Dir == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := p.loaded[ibody]; ok {
		return v
	}
	if _, failed := p.loadErr[ibody]; failed {
		return nil
	}

	v, err := pp.LoadPlanetPath(ibody, p.vsop87Dir)
	if err != nil {
		p.loadErr[ibody] = err
		return nil
	}
	p.loaded[ibody] = v
	return v
}

// LoadErrors returns the VSOP87 files that failed to load, keyed by body.
func (p *OfflineProvider) LoadErrors() map[int]error {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[int]error, len(p.loadErr))
	for k, v := range p.loadErr {
		out[k] = v
	}
	return out
}

// earthPosition returns Earth's heliocentric J2000 ecliptic position from
// the Sun's geometric longitude of date (Earth lies opposite the Sun).
func earthPosition(t time.Time) astro.Vec3 {
	T := astro.J2000Century(astro.JulianDate(t))
	s, _ := solar.True(T)
	lon := (s + unit.AngleFromDeg(180)).Mod1()
	ofDate := eclipticVector(lon, 0, solar.Radius(T))
	return astro.EclipticDateToJ2000(ofDate, T)
}

// eclipticVector converts ecliptic longitude, latitude and radius (AU) to a
// Cartesian vector.
func eclipticVector(lon, lat unit.Angle, r float64) astro.Vec3 {
	sLon, cLon := lon.Sincos()
	sLat, cLat := lat.Sincos()
	return astro.Vec3{X: r * cLat * cLon, Y: r * cLat * sLon, Z: r * sLat}
}

// Position returns the heliocentric J2000 ecliptic position in AU at T
// Julian centuries past J2000.
func (el OrbitalElements) Position(T float64) astro.Vec3 {
	a := el.A + T*el.DA
	e := el.E + T*el.DE
	i := degToRad(el.I + T*el.DI)
	L := el.L + T*el.DL
	wbar := el.LP + T*el.DLP
	node := el.N + T*el.DN

	M := degToRad(astro.NormalizeAngle360(L - wbar))
	w := degToRad(wbar - node)
	om := degToRad(node)

	E := solveKepler(M, e)

	// Position in the orbital plane
	xp := a * (math.Cos(E) - e)
	yp := a * math.Sqrt(1-e*e) * math.Sin(E)

	cw, sw := math.Cos(w), math.Sin(w)
	co, so := math.Cos(om), math.Sin(om)
	ci, si := math.Cos(i), math.Sin(i)

	return astro.Vec3{
		X: (cw*co-sw*so*ci)*xp + (-sw*co-cw*so*ci)*yp,
		Y: (cw*so+sw*co*ci)*xp + (-sw*so+cw*co*ci)*yp,
		Z: (sw*si)*xp + (cw*si)*yp,
	}
}

// solveKepler solves M = E - e·sin(E) by Newton-Raphson iteration.
func solveKepler(M, e float64) float64 {
	E := M + e*math.Sin(M)*(1+e*math.Cos(M))
	for iter := 0; iter < 15; iter++ {
		f := E - e*math.Sin(E) - M
		if math.Abs(f) < 1e-14 {
			break
		}
		E -= f / (1 - e*math.Cos(E))
	}
	return E
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
