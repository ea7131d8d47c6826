package ephem

import (
	"sort"
	"strconv"
	"strings"
)

// TargetID is a NAIF SPICE ID for a spacecraft or body.
type TargetID int

// Kind categorizes catalog entries.
type Kind int

const (
	KindPlanet Kind = iota
	KindLagrange
	KindSpacecraft
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindPlanet:
		return "planet"
	case KindLagrange:
		return "lagrange"
	case KindSpacecraft:
		return "spacecraft"
	default:
		return "unknown"
	}
}

// TargetInfo describes one body of the catalog.
type TargetInfo struct {
	Name     string   // Canonical display name
	NAIFID   TargetID // NAIF SPICE ID
	Kind     Kind
	Aliases  []string // Alternative names accepted by Lookup
	HorizCmd string   // Horizons command string (if different from NAIF ID)
}

// Sourced from https://naif.jpl.nasa.gov/pub/naif/toolkit_docs/C/req/naif_ids.html
const (
	NAIFMercury TargetID = 199
	NAIFVenus   TargetID = 299
	NAIFEarth   TargetID = 399
	NAIFMars    TargetID = 499
	NAIFJupiter TargetID = 599
	NAIFSaturn  TargetID = 699
	NAIFUranus  TargetID = 799
	NAIFNeptune TargetID = 899

	NAIFSEMBL1 TargetID = 31 // Sun-(Earth+Moon barycenter) L1

	NAIFWIND             TargetID = -8
	NAIFSOHO             TargetID = -21
	NAIFJUICE            TargetID = -28
	NAIFUlysses          TargetID = -55
	NAIFJuno             TargetID = -61
	NAIFCassini          TargetID = -82
	NAIFACE              TargetID = -92
	NAIFParkerSolarProbe TargetID = -96
	NAIFBepiColombo      TargetID = -121
	NAIFSolarOrbiter     TargetID = -144
	NAIFEuropaClipper    TargetID = -159
	NAIFMAVEN            TargetID = -202
	NAIFRosetta          TargetID = -226
	NAIFSTEREO_A         TargetID = -234
	NAIFSTEREO_B         TargetID = -235
	NAIFHelios1          TargetID = -301
	NAIFHelios2          TargetID = -302
)

// Targets is the catalog of bodies that can be placed in a constellation.
var Targets = []TargetInfo{
	// Planets
	{Name: "Mercury", NAIFID: NAIFMercury, Kind: KindPlanet},
	{Name: "Venus", NAIFID: NAIFVenus, Kind: KindPlanet},
	{Name: "Earth", NAIFID: NAIFEarth, Kind: KindPlanet},
	{Name: "Mars", NAIFID: NAIFMars, Kind: KindPlanet},
	{Name: "Jupiter", NAIFID: NAIFJupiter, Kind: KindPlanet},
	{Name: "Saturn", NAIFID: NAIFSaturn, Kind: KindPlanet},
	{Name: "Uranus", NAIFID: NAIFUranus, Kind: KindPlanet},
	{Name: "Neptune", NAIFID: NAIFNeptune, Kind: KindPlanet},

	// Lagrange points
	{Name: "L1", NAIFID: NAIFSEMBL1, Kind: KindLagrange, Aliases: []string{"SEMB-L1", "Sun-Earth L1"}},

	// Near-Earth heliospheric monitors
	{Name: "ACE", NAIFID: NAIFACE, Kind: KindSpacecraft},
	{Name: "SOHO", NAIFID: NAIFSOHO, Kind: KindSpacecraft},
	{Name: "Wind", NAIFID: NAIFWIND, Kind: KindSpacecraft},

	// Inner heliosphere
	{Name: "Parker Solar Probe", NAIFID: NAIFParkerSolarProbe, Kind: KindSpacecraft, Aliases: []string{"PSP", "SPP", "Parker"}},
	{Name: "Solar Orbiter", NAIFID: NAIFSolarOrbiter, Kind: KindSpacecraft, Aliases: []string{"SolO", "SOLO"}},
	{Name: "BepiColombo", NAIFID: NAIFBepiColombo, Kind: KindSpacecraft, Aliases: []string{"Bepi", "Bepi Colombo", "MPO"}},
	{Name: "STEREO-A", NAIFID: NAIFSTEREO_A, Kind: KindSpacecraft, Aliases: []string{"STEREO A", "STA", "STEREO-Ahead", "STEREO Ahead"}},
	{Name: "STEREO-B", NAIFID: NAIFSTEREO_B, Kind: KindSpacecraft, Aliases: []string{"STEREO B", "STB", "STEREO-Behind", "STEREO Behind"}},
	{Name: "Helios 1", NAIFID: NAIFHelios1, Kind: KindSpacecraft, Aliases: []string{"Helios-1", "Helios1"}},
	{Name: "Helios 2", NAIFID: NAIFHelios2, Kind: KindSpacecraft, Aliases: []string{"Helios-2", "Helios2"}},

	// Planetary and deep-space missions
	{Name: "MAVEN", NAIFID: NAIFMAVEN, Kind: KindSpacecraft},
	{Name: "Juno", NAIFID: NAIFJuno, Kind: KindSpacecraft},
	{Name: "JUICE", NAIFID: NAIFJUICE, Kind: KindSpacecraft},
	{Name: "Europa Clipper", NAIFID: NAIFEuropaClipper, Kind: KindSpacecraft, Aliases: []string{"Clipper"}},
	{Name: "Ulysses", NAIFID: NAIFUlysses, Kind: KindSpacecraft},
	{Name: "Rosetta", NAIFID: NAIFRosetta, Kind: KindSpacecraft},
	{Name: "Cassini", NAIFID: NAIFCassini, Kind: KindSpacecraft},
}

// TargetsByNAIF maps NAIF IDs to target info for quick lookup.
var TargetsByNAIF = func() map[TargetID]TargetInfo {
	m := make(map[TargetID]TargetInfo, len(Targets))
	for _, t := range Targets {
		m[t.NAIFID] = t
	}
	return m
}()

// TargetsByName maps normalized names and aliases to target info.
var TargetsByName = func() map[string]TargetInfo {
	m := make(map[string]TargetInfo, len(Targets)*3)
	for _, t := range Targets {
		m[normalizeName(t.Name)] = t
		for _, alias := range t.Aliases {
			m[normalizeName(alias)] = t
		}
	}
	return m
}()

// normalizeName lowercases a name and collapses surrounding and inner
// whitespace so "  stereo   a " matches "STEREO A".
func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Lookup returns target info for a body name or alias (case-insensitive).
func Lookup(name string) (TargetInfo, bool) {
	t, ok := TargetsByName[normalizeName(name)]
	return t, ok
}

// GetTargetByNAIF returns target info for a NAIF ID.
func GetTargetByNAIF(id TargetID) (TargetInfo, bool) {
	t, ok := TargetsByNAIF[id]
	return t, ok
}

// Earth returns the catalog entry for Earth.
func Earth() TargetInfo {
	return TargetsByNAIF[NAIFEarth]
}

// Names returns the canonical catalog names in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(Targets))
	for _, t := range Targets {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// horizonsCommand returns the Horizons COMMAND value for a target.
func (t TargetInfo) horizonsCommand() string {
	if t.HorizCmd != "" {
		return t.HorizCmd
	}
	return strconv.Itoa(int(t.NAIFID))
}
