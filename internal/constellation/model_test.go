package constellation

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/litescript/ls-solarmach/internal/astro"
	"github.com/litescript/ls-solarmach/internal/ephem"
)

var testInstant = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeProvider serves positions given in Carrington coordinates and records
// how it was called.
type fakeProvider struct {
	coords map[ephem.TargetID]astro.HeliographicCoord
	errs   map[ephem.TargetID]error
	delay  time.Duration

	mu          sync.Mutex
	calls       map[ephem.TargetID]int
	inflight    int
	maxInflight int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		coords: map[ephem.TargetID]astro.HeliographicCoord{
			ephem.NAIFEarth:            {LonDeg: 100, LatDeg: -3, R: 0.983},
			ephem.NAIFMars:             {LonDeg: 210, LatDeg: 1.5, R: 1.45},
			ephem.NAIFSTEREO_A:         {LonDeg: 42, LatDeg: -7, R: 0.96},
			ephem.NAIFSolarOrbiter:     {LonDeg: 300, LatDeg: 4, R: 0.88},
			ephem.NAIFParkerSolarProbe: {LonDeg: 355, LatDeg: 3.4, R: 0.4},
			ephem.NAIFBepiColombo:      {LonDeg: 5, LatDeg: -2, R: 0.6},
			ephem.NAIFSEMBL1:           {LonDeg: 100, LatDeg: -3, R: 0.973},
		},
		errs:  make(map[ephem.TargetID]error),
		calls: make(map[ephem.TargetID]int),
	}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) HeliocentricPosition(ctx context.Context, target ephem.TargetInfo, t time.Time) (astro.Vec3, error) {
	f.mu.Lock()
	f.calls[target.NAIFID]++
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return astro.Vec3{}, ctx.Err()
		}
	}

	if err := f.errs[target.NAIFID]; err != nil {
		return astro.Vec3{}, err
	}
	c, ok := f.coords[target.NAIFID]
	if !ok {
		return astro.Vec3{}, ephem.ErrUnsupported
	}
	return astro.EclipticFromCarrington(c, t), nil
}

func (f *fakeProvider) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func mustBodies(t *testing.T, names ...string) []Body {
	t.Helper()
	speeds := make([]float64, len(names))
	for i := range speeds {
		speeds[i] = 400
	}
	bodies, err := NewBodies(names, speeds)
	if err != nil {
		t.Fatalf("NewBodies: %v", err)
	}
	return bodies
}

func TestEarthScenario(t *testing.T) {
	m := New(ephem.NewOfflineProvider(""), DefaultOptions())
	table, err := m.Run(context.Background(), Request{
		Date:   "2021-01-01T00:00:00Z",
		Bodies: []string{"Earth"},
		Speeds: []float64{400},
		Frame:  "carrington",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(table.Records) != 1 {
		t.Fatalf("len(Records) = %d", len(table.Records))
	}

	r := table.Records[0]
	if r.EarthLonSep != 0 {
		t.Errorf("EarthLonSep = %v, want exactly 0", r.EarthLonSep)
	}
	if r.EarthLatSep != 0 {
		t.Errorf("EarthLatSep = %v, want exactly 0", r.EarthLatSep)
	}
	if math.Abs(r.Distance-1.0) > 0.02 {
		t.Errorf("Distance = %.4f AU, want 1.0 ± 0.02", r.Distance)
	}
	if r.Lon < 0 || r.Lon >= 360 {
		t.Errorf("Carrington longitude %v out of range", r.Lon)
	}
	// B0 is near -3° in early January.
	if r.Lat > -2.5 || r.Lat < -3.5 {
		t.Errorf("Earth latitude = %.3f, want ~-3", r.Lat)
	}
	if r.PlotAngle != DefaultLongOffset {
		t.Errorf("PlotAngle = %v, want %v", r.PlotAngle, DefaultLongOffset)
	}
}

func TestMismatchedLengthsBeforeLookup(t *testing.T) {
	fp := newFakeProvider()
	m := New(fp, DefaultOptions())

	_, err := m.Run(context.Background(), Request{
		Date:   "2021-01-01",
		Bodies: []string{"Earth", "Mars"},
		Speeds: []float64{400},
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if vErr.Field != "speeds" {
		t.Errorf("Field = %q, want speeds", vErr.Field)
	}
	if n := fp.totalCalls(); n != 0 {
		t.Errorf("provider called %d times before validation failed", n)
	}
}

func TestUnknownBody(t *testing.T) {
	fp := newFakeProvider()
	m := New(fp, DefaultOptions())

	_, err := m.Run(context.Background(), Request{
		Date:   "2021-01-01",
		Bodies: []string{"Plutoo"},
		Speeds: []float64{400},
	})

	var uErr *UnknownBodyError
	if !errors.As(err, &uErr) {
		t.Fatalf("err = %v, want *UnknownBodyError", err)
	}
	if !reflect.DeepEqual(uErr.Names, []string{"Plutoo"}) {
		t.Errorf("Names = %v, want [Plutoo]", uErr.Names)
	}
	if err.Error() != `unknown body: "Plutoo"` {
		t.Errorf("Error() = %q", err.Error())
	}
	if fp.totalCalls() != 0 {
		t.Error("provider called for unknown body")
	}
}

func TestResolveBodiesCollectsAllUnknown(t *testing.T) {
	_, err := ResolveBodies([]string{"Earth", "Plutoo", " stereo a ", "Vulcan"})
	var uErr *UnknownBodyError
	if !errors.As(err, &uErr) {
		t.Fatalf("err = %v", err)
	}
	if !reflect.DeepEqual(uErr.Names, []string{"Plutoo", "Vulcan"}) {
		t.Errorf("Names = %v", uErr.Names)
	}
}

func TestResolveBodiesAliases(t *testing.T) {
	targets, err := ResolveBodies([]string{"STEREO-A", "  l1 ", "parker solar probe"})
	if err != nil {
		t.Fatal(err)
	}
	want := []ephem.TargetID{ephem.NAIFSTEREO_A, ephem.NAIFSEMBL1, ephem.NAIFParkerSolarProbe}
	for i, tgt := range targets {
		if tgt.NAIFID != want[i] {
			t.Errorf("targets[%d] = %d, want %d", i, tgt.NAIFID, want[i])
		}
	}
}

func TestNewBodiesValidation(t *testing.T) {
	tests := []struct {
		name   string
		names  []string
		speeds []float64
		field  string
	}{
		{"empty", nil, nil, "bodies"},
		{"zero speed", []string{"Earth"}, []float64{0}, "speeds[0]"},
		{"negative speed", []string{"Earth", "Mars"}, []float64{400, -5}, "speeds[1]"},
		{"nan speed", []string{"Earth"}, []float64{math.NaN()}, "speeds[0]"},
		{"mismatch", []string{"Earth"}, []float64{400, 400}, "speeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBodies(tt.names, tt.speeds)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", vErr.Field, tt.field)
			}
		})
	}
}

func TestNonPositiveSpeedRejectedBeforeLookup(t *testing.T) {
	fp := newFakeProvider()
	m := New(fp, DefaultOptions())
	bodies := mustBodies(t, "Earth", "Mars")
	bodies[1].VSW = 0

	_, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameCarrington), bodies, nil)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if fp.totalCalls() != 0 {
		t.Error("provider called despite invalid speed")
	}
}

func TestLengthAndOrder(t *testing.T) {
	names := []string{"Solar Orbiter", "Mars", "Earth", "STEREO-A", "PSP", "BepiColombo", "L1"}
	m := New(newFakeProvider(), DefaultOptions())

	for _, frame := range []astro.Frame{astro.FrameCarrington, astro.FrameStonyhurst} {
		t.Run(frame.String(), func(t *testing.T) {
			table, err := m.Compute(context.Background(), NewObservation(testInstant, frame), mustBodies(t, names...), nil)
			if err != nil {
				t.Fatal(err)
			}
			if len(table.Records) != len(names) {
				t.Fatalf("len(Records) = %d, want %d", len(table.Records), len(names))
			}
			for i, r := range table.Records {
				want, _ := ephem.Lookup(names[i])
				if r.Name != want.Name {
					t.Errorf("Records[%d] = %s, want %s", i, r.Name, want.Name)
				}
			}
		})
	}
}

func TestLongitudeRanges(t *testing.T) {
	names := []string{"Solar Orbiter", "Mars", "Earth", "STEREO-A", "PSP", "BepiColombo"}
	ref := &Reference{Lon: 20, Lat: -10, VSW: 500}
	m := New(newFakeProvider(), DefaultOptions())

	check := func(t *testing.T, frame astro.Frame, name string, v float64) {
		t.Helper()
		if frame == astro.FrameCarrington && (v < 0 || v >= 360) {
			t.Errorf("%s = %v outside [0, 360)", name, v)
		}
		if frame == astro.FrameStonyhurst && (v <= -180 || v > 180) {
			t.Errorf("%s = %v outside (-180, 180]", name, v)
		}
	}
	checkSep := func(t *testing.T, name string, v float64) {
		t.Helper()
		if v <= -180 || v > 180 {
			t.Errorf("%s = %v outside (-180, 180]", name, v)
		}
	}

	for _, frame := range []astro.Frame{astro.FrameCarrington, astro.FrameStonyhurst} {
		t.Run(frame.String(), func(t *testing.T) {
			table, err := m.Compute(context.Background(), NewObservation(testInstant, frame), mustBodies(t, names...), ref)
			if err != nil {
				t.Fatal(err)
			}
			check(t, frame, "reference footpoint", table.Reference.FootpointLon)
			for _, r := range table.Records {
				check(t, frame, r.Name+" lon", r.Lon)
				check(t, frame, r.Name+" footpoint", r.FootpointLon)
				checkSep(t, r.Name+" earth sep", r.EarthLonSep)
				checkSep(t, r.Name+" ref sep", *r.RefLonSep)
				checkSep(t, r.Name+" foot-ref sep", *r.FootRefLonSep)
				if r.PlotAngle < 0 || r.PlotAngle >= 360 {
					t.Errorf("%s plot angle %v", r.Name, r.PlotAngle)
				}
			}
		})
	}
}

func TestDeterminism(t *testing.T) {
	names := []string{"Mars", "Earth", "STEREO-A", "PSP"}
	m := New(newFakeProvider(), DefaultOptions())
	obs := NewObservation(testInstant, astro.FrameStonyhurst)
	ref := &Reference{Lon: -30, Lat: 5, VSW: 400}

	a, err := m.Compute(context.Background(), obs, mustBodies(t, names...), ref)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Compute(context.Background(), obs, mustBodies(t, names...), ref)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Records, b.Records) {
		t.Error("identical inputs produced different records")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	names := []string{"Solar Orbiter", "Mars", "Earth", "STEREO-A", "PSP", "BepiColombo"}
	m := New(newFakeProvider(), DefaultOptions())

	carr, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameCarrington), mustBodies(t, names...), nil)
	if err != nil {
		t.Fatal(err)
	}
	ston, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameStonyhurst), mustBodies(t, names...), nil)
	if err != nil {
		t.Fatal(err)
	}

	l0 := carr.Earth.CarringtonLon
	for i := range names {
		back := astro.StonyhurstToCarrington(ston.Records[i].Lon, l0)
		if d := astro.Separation(back, carr.Records[i].Lon); math.Abs(d) > 1e-6 {
			t.Errorf("%s: round trip differs by %v°", names[i], d)
		}
		there := astro.CarringtonToStonyhurst(carr.Records[i].Lon, l0)
		if d := astro.Separation(there, ston.Records[i].Lon); math.Abs(d) > 1e-6 {
			t.Errorf("%s: Carrington→Stonyhurst differs by %v°", names[i], d)
		}
		// Separations do not depend on the frame.
		if d := carr.Records[i].EarthLonSep - ston.Records[i].EarthLonSep; math.Abs(d) > 1e-6 {
			t.Errorf("%s: Earth separation depends on frame (%v)", names[i], d)
		}
	}
	if ston.Earth.Lon != 0 {
		t.Errorf("Stonyhurst Earth longitude = %v, want 0", ston.Earth.Lon)
	}
}

func footpointOffset(r Record) float64 {
	return astro.Separation(r.FootpointLon, r.Lon)
}

func TestFootpointFixedRateAtEquator(t *testing.T) {
	fp := newFakeProvider()
	fp.coords[ephem.NAIFMars] = astro.HeliographicCoord{LonDeg: 200, LatDeg: 0, R: 1}

	diff := New(fp, DefaultOptions())
	opts := DefaultOptions()
	opts.DiffRot = false
	fixed := New(fp, opts)

	obs := NewObservation(testInstant, astro.FrameCarrington)
	a, err := diff.Compute(context.Background(), obs, mustBodies(t, "Mars"), nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := fixed.Compute(context.Background(), obs, mustBodies(t, "Mars"), nil)
	if err != nil {
		t.Fatal(err)
	}

	r := a.Records[0]
	want := astro.EquatorialRotationRate() * astro.AUToKm(r.Distance-astro.SunRadiusAU) / 400 * 180 / math.Pi
	if got := footpointOffset(r); math.Abs(got-want) > 1e-9 {
		t.Errorf("offset = %v, want %v", got, want)
	}
	if got := footpointOffset(b.Records[0]); math.Abs(got-want) > 1e-9 {
		t.Errorf("fixed-rate offset = %v, want %v", got, want)
	}
	// The spiral trails rotation, so the footpoint is west of the body:
	// longitude plus Δφ, never minus.
	if west := astro.NormalizeAngle360(r.Lon + want); math.Abs(r.FootpointLon-west) > 1e-6 {
		t.Errorf("footpoint = %v, want body lon %v + Δφ %v = %v", r.FootpointLon, r.Lon, want, west)
	}
	if footpointOffset(r) <= 0 {
		t.Errorf("footpoint %v is not west of body %v", r.FootpointLon, r.Lon)
	}
	// ~63° at 1 AU and 400 km/s.
	if math.Abs(want-63.4) > 0.5 {
		t.Errorf("offset at 1 AU = %v, want ~63.4", want)
	}
}

func TestFootpointDifferentialRotation(t *testing.T) {
	for _, lat := range []float64{-60, -30, -7, 7, 30, 60} {
		fp := newFakeProvider()
		fp.coords[ephem.NAIFMars] = astro.HeliographicCoord{LonDeg: 120, LatDeg: lat, R: 1}
		fp.coords[ephem.NAIFSTEREO_A] = astro.HeliographicCoord{LonDeg: 120, LatDeg: 0, R: 1}

		m := New(fp, DefaultOptions())
		table, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameCarrington), mustBodies(t, "Mars", "STEREO-A"), nil)
		if err != nil {
			t.Fatal(err)
		}

		// Compare at equal equatorial distance.
		atLat := table.Records[0]
		p := astro.SpiralParams{VSW: 400, SourceSurface: 1, DiffRot: true}
		equator := astro.SpiralOffset(atLat.Distance, 0, p)
		got := footpointOffset(atLat)
		if math.Abs(got) > math.Abs(equator) {
			t.Errorf("lat %v: |Δφ| = %v exceeds equatorial %v", lat, got, equator)
		}
		if math.Abs(got-astro.SpiralOffset(atLat.Distance, atLat.Lat, p)) > 1e-9 {
			t.Errorf("lat %v: offset %v does not follow the rotation law", lat, got)
		}
	}
}

func TestReferenceSeparations(t *testing.T) {
	fp := newFakeProvider()
	m := New(fp, DefaultOptions())
	ref := &Reference{Lon: 90, Lat: 10, VSW: 400}

	table, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameCarrington), mustBodies(t, "Mars", "Earth"), ref)
	if err != nil {
		t.Fatal(err)
	}
	if table.Reference.FootpointLon != 90 {
		t.Errorf("reference on the Sun: footpoint = %v, want 90", table.Reference.FootpointLon)
	}

	mars := table.Records[0]
	if got, want := *mars.RefLonSep, astro.Separation(mars.Lon, 90); got != want {
		t.Errorf("RefLonSep = %v, want %v", got, want)
	}
	if got, want := *mars.RefLatSep, mars.Lat-10; got != want {
		t.Errorf("RefLatSep = %v, want %v", got, want)
	}
	if got, want := *mars.FootRefLonSep, astro.Separation(mars.FootpointLon, 90); got != want {
		t.Errorf("FootRefLonSep = %v, want %v", got, want)
	}
}

func TestReferenceWithDistance(t *testing.T) {
	m := New(newFakeProvider(), DefaultOptions())
	ref := &Reference{Lon: 350, Lat: 0, VSW: 400, Distance: 1}

	table, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameCarrington), mustBodies(t, "Earth"), ref)
	if err != nil {
		t.Fatal(err)
	}
	want := astro.NormalizeAngle360(350 + astro.SpiralOffset(1, 0, astro.SpiralParams{VSW: 400, SourceSurface: 1, DiffRot: true}))
	if got := table.Reference.FootpointLon; math.Abs(got-want) > 1e-9 {
		t.Errorf("footpoint = %v, want %v", got, want)
	}
}

func TestNoReferenceLeavesSeparationsNil(t *testing.T) {
	m := New(newFakeProvider(), DefaultOptions())
	table, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameCarrington), mustBodies(t, "Mars"), nil)
	if err != nil {
		t.Fatal(err)
	}
	r := table.Records[0]
	if r.RefLonSep != nil || r.RefLatSep != nil || r.FootRefLonSep != nil {
		t.Error("reference separations set without a reference")
	}
	if table.Reference != nil {
		t.Error("Reference set")
	}
}

func TestReferenceValidation(t *testing.T) {
	m := New(newFakeProvider(), DefaultOptions())
	tests := []struct {
		name  string
		frame astro.Frame
		ref   Reference
		field string
	}{
		{"carrington negative lon", astro.FrameCarrington, Reference{Lon: -10, VSW: 400}, "reference.lon"},
		{"stonyhurst lon", astro.FrameStonyhurst, Reference{Lon: 200, VSW: 400}, "reference.lon"},
		{"lat", astro.FrameCarrington, Reference{Lon: 10, Lat: -91, VSW: 400}, "reference.lat"},
		{"vsw", astro.FrameCarrington, Reference{Lon: 10, VSW: 0}, "reference.vsw"},
		{"distance", astro.FrameCarrington, Reference{Lon: 10, VSW: 400, Distance: -1}, "reference.distance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := tt.ref
			_, err := m.Compute(context.Background(), NewObservation(testInstant, tt.frame), mustBodies(t, "Earth"), &ref)
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.Field != tt.field {
				t.Errorf("err = %v, want ValidationError on %s", err, tt.field)
			}
		})
	}
}

func TestObservationValidation(t *testing.T) {
	m := New(newFakeProvider(), DefaultOptions())
	bodies := mustBodies(t, "Earth")

	obs := NewObservation(testInstant, astro.FrameCarrington)
	obs.LongOffset = 361
	var vErr *ValidationError
	if _, err := m.Compute(context.Background(), obs, bodies, nil); !errors.As(err, &vErr) {
		t.Errorf("long offset: err = %v", err)
	}

	if _, err := m.Compute(context.Background(), Observation{}, bodies, nil); !errors.As(err, &vErr) {
		t.Errorf("zero instant: err = %v", err)
	}
}

func TestPartialFailure(t *testing.T) {
	fp := newFakeProvider()
	fp.errs[ephem.NAIFParkerSolarProbe] = ephem.ErrNoData

	m := New(fp, DefaultOptions())
	table, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameCarrington), mustBodies(t, "Mars", "PSP", "Earth"), nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(table.Records) != 3 {
		t.Fatalf("len(Records) = %d", len(table.Records))
	}

	psp := table.Records[1]
	var eErr *EphemerisUnavailableError
	if !errors.As(psp.Err, &eErr) {
		t.Fatalf("PSP err = %v", psp.Err)
	}
	if eErr.Body != "Parker Solar Probe" || !errors.Is(psp.Err, ephem.ErrNoData) {
		t.Errorf("unexpected error %v", psp.Err)
	}
	if psp.VSW != 400 {
		t.Errorf("failed record lost its speed")
	}
	if !table.Records[0].OK() || !table.Records[2].OK() {
		t.Error("successful rows affected by failure")
	}
	if len(table.Failures()) != 1 || len(table.Succeeded()) != 2 {
		t.Errorf("Failures/Succeeded = %d/%d", len(table.Failures()), len(table.Succeeded()))
	}
}

func TestPartialFailureNotAllowed(t *testing.T) {
	fp := newFakeProvider()
	fp.errs[ephem.NAIFParkerSolarProbe] = ephem.ErrNoData

	opts := DefaultOptions()
	opts.AllowPartial = false
	m := New(fp, opts)

	_, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameCarrington), mustBodies(t, "Mars", "PSP"), nil)
	var bErr *BatchError
	if !errors.As(err, &bErr) {
		t.Fatalf("err = %v, want *BatchError", err)
	}
	if len(bErr.Failures) != 1 || bErr.Total != 2 {
		t.Errorf("BatchError = %+v", bErr)
	}
	if !errors.Is(err, ephem.ErrNoData) {
		t.Error("BatchError should unwrap to the provider error")
	}
}

func TestAllBodiesFail(t *testing.T) {
	fp := newFakeProvider()
	fp.errs[ephem.NAIFParkerSolarProbe] = ephem.ErrNoData
	fp.errs[ephem.NAIFSolarOrbiter] = errors.New("timeout")

	m := New(fp, DefaultOptions())
	_, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameCarrington), mustBodies(t, "PSP", "SolO"), nil)
	var bErr *BatchError
	if !errors.As(err, &bErr) {
		t.Fatalf("err = %v, want *BatchError", err)
	}
	if len(bErr.Failures) != 2 {
		t.Errorf("failures = %d, want 2", len(bErr.Failures))
	}
}

func TestEarthBaselineFailureIsFatal(t *testing.T) {
	fp := newFakeProvider()
	fp.errs[ephem.NAIFEarth] = ephem.ErrNoData

	m := New(fp, DefaultOptions())
	_, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameCarrington), mustBodies(t, "Mars"), nil)
	var eErr *EphemerisUnavailableError
	if !errors.As(err, &eErr) || eErr.Body != "Earth" {
		t.Fatalf("err = %v, want Earth EphemerisUnavailableError", err)
	}
}

func TestEarthQueriedOnce(t *testing.T) {
	fp := newFakeProvider()
	m := New(fp, DefaultOptions())
	if _, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameCarrington), mustBodies(t, "Earth", "Mars", "Earth"), nil); err != nil {
		t.Fatal(err)
	}
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.calls[ephem.NAIFEarth] != 1 {
		t.Errorf("Earth queried %d times, want 1", fp.calls[ephem.NAIFEarth])
	}
}

func TestWorkerBound(t *testing.T) {
	fp := newFakeProvider()
	fp.delay = 20 * time.Millisecond

	opts := DefaultOptions()
	opts.Workers = 2
	m := New(fp, opts)

	names := []string{"Mars", "STEREO-A", "SolO", "PSP", "Bepi", "L1"}
	if _, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameCarrington), mustBodies(t, names...), nil); err != nil {
		t.Fatal(err)
	}
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.maxInflight > 2 {
		t.Errorf("max concurrent lookups = %d, want <= 2", fp.maxInflight)
	}
}

func TestLookupTimeout(t *testing.T) {
	fp := newFakeProvider()
	fp.delay = time.Second

	opts := DefaultOptions()
	opts.LookupTimeout = 20 * time.Millisecond
	m := New(fp, opts)

	_, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameCarrington), mustBodies(t, "Mars"), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := New(newFakeProvider(), DefaultOptions())
	if _, err := m.Compute(ctx, NewObservation(testInstant, astro.FrameCarrington), mustBodies(t, "Mars"), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSpiralSamples(t *testing.T) {
	opts := DefaultOptions()
	opts.SpiralSamples = 20
	m := New(newFakeProvider(), opts)

	table, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameCarrington), mustBodies(t, "Mars"), &Reference{Lon: 10, VSW: 400})
	if err != nil {
		t.Fatal(err)
	}
	r := table.Records[0]
	if len(r.Spiral) != 20 {
		t.Fatalf("len(Spiral) = %d", len(r.Spiral))
	}
	last := r.Spiral[len(r.Spiral)-1]
	if math.Abs(last.R-r.Distance) > 1e-9 {
		t.Errorf("spiral ends at %v AU, body at %v", last.R, r.Distance)
	}
	if d := astro.Separation(last.LonDeg, r.Lon); math.Abs(d) > 1e-6 {
		t.Errorf("spiral ends at lon %v, body at %v", last.LonDeg, r.Lon)
	}
	if len(table.Reference.Spiral) != 20 {
		t.Errorf("reference spiral has %d points", len(table.Reference.Spiral))
	}
}

type computeRecorder struct {
	n, failed int
	fatal     bool
	calls     int
}

func (c *computeRecorder) ObserveCompute(n, failed int, elapsed time.Duration, fatal bool) {
	c.n, c.failed, c.fatal = n, failed, fatal
	c.calls++
}

func TestComputeObserver(t *testing.T) {
	fp := newFakeProvider()
	fp.errs[ephem.NAIFParkerSolarProbe] = ephem.ErrNoData
	rec := &computeRecorder{}
	m := New(fp, DefaultOptions(), WithObserver(rec))

	if _, err := m.Compute(context.Background(), NewObservation(testInstant, astro.FrameCarrington), mustBodies(t, "Mars", "PSP"), nil); err != nil {
		t.Fatal(err)
	}
	if rec.calls != 1 || rec.n != 2 || rec.failed != 1 || rec.fatal {
		t.Errorf("observer got %+v", rec)
	}
}

func TestParseInstant(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"", now, false},
		{"now", now, false},
		{"2021-01-01", testInstant, false},
		{"2021-01-01T00:00:00Z", testInstant, false},
		{"2021-01-01T01:00:00+01:00", testInstant, false},
		{"2021-01-01 12:30", time.Date(2021, 1, 1, 12, 30, 0, 0, time.UTC), false},
		{"2021-01-01T12:30:15", time.Date(2021, 1, 1, 12, 30, 15, 0, time.UTC), false},
		{"yesterday", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInstant(tt.in, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseInstant(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRunBadFrame(t *testing.T) {
	m := New(newFakeProvider(), DefaultOptions())
	_, err := m.Run(context.Background(), Request{Date: "2021-01-01", Bodies: []string{"Earth"}, Speeds: []float64{400}, Frame: "ecliptic"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "frame" {
		t.Errorf("err = %v", err)
	}
}

func TestRunLongOffset(t *testing.T) {
	m := New(newFakeProvider(), DefaultOptions())
	offset := 0.0
	table, err := m.Run(context.Background(), Request{
		Date:       "2021-01-01",
		Bodies:     []string{"Earth", "Mars"},
		Speeds:     []float64{400, 400},
		Frame:      "stonyhurst",
		LongOffset: &offset,
	})
	if err != nil {
		t.Fatal(err)
	}
	if table.Records[0].PlotAngle != 0 {
		t.Errorf("Earth plot angle = %v, want 0", table.Records[0].PlotAngle)
	}
	mars := table.Records[1]
	if want := astro.NormalizeAngle360(mars.Lon); math.Abs(mars.PlotAngle-want) > 1e-9 {
		t.Errorf("Mars plot angle = %v, want %v", mars.PlotAngle, want)
	}
}

func TestRunValidationOrder(t *testing.T) {
	offset := 400.0
	good := 270.0
	tests := []struct {
		name      string
		req       Request
		wantField string
		wantBody  bool
	}{
		{
			name:      "long offset before catalog",
			req:       Request{Date: "2021-01-01", Bodies: []string{"Plutoo"}, Speeds: []float64{400}, LongOffset: &offset},
			wantField: "long_offset",
		},
		{
			name:      "long offset before speeds",
			req:       Request{Date: "2021-01-01", Bodies: []string{"Earth", "Mars"}, Speeds: []float64{400}, LongOffset: &offset},
			wantField: "long_offset",
		},
		{
			name:     "catalog before reference",
			req:      Request{Date: "2021-01-01", Bodies: []string{"Plutoo"}, Speeds: []float64{400}, LongOffset: &good, Reference: &Reference{Lon: 500, VSW: 400}},
			wantBody: true,
		},
		{
			name:      "reference range",
			req:       Request{Date: "2021-01-01", Bodies: []string{"Earth"}, Speeds: []float64{400}, Frame: "stonyhurst", Reference: &Reference{Lon: 270, VSW: 400}},
			wantField: "reference.lon",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := newFakeProvider()
			m := New(fp, DefaultOptions())
			_, err := m.Run(context.Background(), tt.req)

			if tt.wantBody {
				var uErr *UnknownBodyError
				if !errors.As(err, &uErr) {
					t.Errorf("err = %v, want *UnknownBodyError", err)
				}
			} else {
				var vErr *ValidationError
				if !errors.As(err, &vErr) || vErr.Field != tt.wantField {
					t.Errorf("err = %v, want ValidationError on %s", err, tt.wantField)
				}
			}
			if n := fp.totalCalls(); n != 0 {
				t.Errorf("%d lookups before validation finished", n)
			}
		})
	}
}
