// Package constellation computes the heliospheric constellation of a set of
// bodies: heliographic positions, Parker-spiral magnetic footpoints and the
// angular separations between bodies, Earth and an optional reference point.
package constellation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/litescript/ls-solarmach/internal/astro"
	"github.com/litescript/ls-solarmach/internal/ephem"
	"github.com/litescript/ls-solarmach/internal/logging"
)

const (
	// DefaultLongOffset draws Earth at the bottom of the polar plot.
	DefaultLongOffset = 270.0

	// DefaultVSW is the solar-wind speed assumed when none is given, km/s.
	DefaultVSW = 400.0

	// DefaultWorkers bounds concurrent ephemeris lookups.
	DefaultWorkers = 4

	// DefaultLookupTimeout bounds a single ephemeris lookup.
	DefaultLookupTimeout = 30 * time.Second
)

// Body is a catalog entry paired with its measured solar-wind speed.
type Body struct {
	Target ephem.TargetInfo
	VSW    float64 // km/s
}

// Name returns the catalog name of the body.
func (b Body) Name() string {
	return b.Target.Name
}

// Observation fixes the instant and the coordinate convention of a table.
type Observation struct {
	Instant time.Time
	Frame   astro.Frame

	// LongOffset is the plot angle (0 = 3 o'clock, counter-clockwise) at
	// which Earth is drawn; body plot angles are relative to it.
	LongOffset float64
}

// NewObservation returns an observation with the default longitude offset.
func NewObservation(t time.Time, frame astro.Frame) Observation {
	return Observation{Instant: t.UTC(), Frame: frame, LongOffset: DefaultLongOffset}
}

// Reference is an arbitrary heliographic location, e.g. a flare site,
// given in the observation frame.
type Reference struct {
	Lon float64
	Lat float64
	VSW float64 // km/s, for the reference's own spiral

	// Distance in AU. Zero places the reference on the source surface, in
	// which case its footpoint is the reference longitude itself.
	Distance float64
}

// Record is the computed row of one body. When Err is set only Name, NAIFID
// and VSW are meaningful.
type Record struct {
	Name   string
	NAIFID ephem.TargetID

	Lon          float64 // frame longitude, degrees
	Lat          float64 // heliographic latitude, degrees
	Distance     float64 // AU, projected onto the solar equatorial plane
	Radius       float64 // AU, true heliocentric distance
	VSW          float64 // km/s
	FootpointLon float64 // frame longitude of the magnetic footpoint

	EarthLonSep float64
	EarthLatSep float64

	// Separations to the reference; nil when no reference was given.
	RefLonSep     *float64
	RefLatSep     *float64
	FootRefLonSep *float64

	// PlotAngle is the polar-plot angle: longitude relative to Earth plus
	// the observation's LongOffset, in [0, 360).
	PlotAngle float64

	// Spiral is the field line from the footpoint out to the body, when
	// spiral sampling is enabled.
	Spiral []astro.SpiralPoint

	Err error
}

// OK reports whether the record was computed.
func (r Record) OK() bool {
	return r.Err == nil
}

// EarthBaseline holds Earth's position used for separations.
type EarthBaseline struct {
	CarringtonLon float64 // L0
	Lon           float64 // frame longitude (0 in Stonyhurst)
	Lat           float64 // B0
	Distance      float64 // AU, equatorial projection
}

// ReferenceResult is the reference point with its derived footpoint.
type ReferenceResult struct {
	Reference
	FootpointLon float64
	Spiral       []astro.SpiralPoint
}

// Table is the result of a computation, one record per input body in
// input order.
type Table struct {
	Observation Observation
	Provider    string
	Options     Options
	Earth       EarthBaseline
	Reference   *ReferenceResult
	Records     []Record
}

// Failures returns the errors of records that could not be computed.
func (t *Table) Failures() []error {
	var errs []error
	for _, r := range t.Records {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

// Succeeded returns the records that were computed.
func (t *Table) Succeeded() []Record {
	out := make([]Record, 0, len(t.Records))
	for _, r := range t.Records {
		if r.Err == nil {
			out = append(out, r)
		}
	}
	return out
}

// Options tunes a Model.
type Options struct {
	// DiffRot applies the latitude-dependent rotation law to footpoints.
	DiffRot bool

	// SourceSurface is the inner spiral boundary in solar radii.
	SourceSurface float64

	// AllowPartial returns a table when some (not all) bodies fail.
	AllowPartial bool

	// Workers bounds concurrent lookups.
	Workers int

	// LookupTimeout bounds each lookup; zero means no per-lookup limit.
	LookupTimeout time.Duration

	// SpiralSamples is the number of points per spiral trace; zero
	// disables traces.
	SpiralSamples int
}

// DefaultOptions returns the options of the published tool.
func DefaultOptions() Options {
	return Options{
		DiffRot:       true,
		SourceSurface: 1,
		AllowPartial:  true,
		Workers:       DefaultWorkers,
		LookupTimeout: DefaultLookupTimeout,
	}
}

func (o Options) spiral(vsw float64) astro.SpiralParams {
	return astro.SpiralParams{VSW: vsw, SourceSurface: o.SourceSurface, DiffRot: o.DiffRot}
}

// ComputeObserver receives the outcome of every computation.
type ComputeObserver interface {
	ObserveCompute(n, failed int, elapsed time.Duration, fatal bool)
}

// Model computes constellations from an ephemeris provider. A Model holds
// no per-request state and is safe for concurrent use.
type Model struct {
	provider ephem.Provider
	opts     Options
	log      *logging.Logger
	observer ComputeObserver
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ModelOption {
	return func(m *Model) { m.log = l }
}

// WithObserver reports computations to o.
func WithObserver(o ComputeObserver) ModelOption {
	return func(m *Model) { m.observer = o }
}

// New creates a model. Zero Workers or SourceSurface take their defaults.
func New(p ephem.Provider, opts Options, modelOpts ...ModelOption) *Model {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.SourceSurface <= 0 {
		opts.SourceSurface = 1
	}
	m := &Model{provider: p, opts: opts, log: logging.Discard()}
	for _, o := range modelOpts {
		o(m)
	}
	return m
}

// Options returns the effective options.
func (m *Model) Options() Options {
	return m.opts
}

// ResolveBodies looks up each name in the catalog. Matching ignores case
// and surrounding or repeated whitespace. All unknown names are reported
// together in an *UnknownBodyError.
func ResolveBodies(names []string) ([]ephem.TargetInfo, error) {
	targets := make([]ephem.TargetInfo, len(names))
	var unknown []string
	for i, name := range names {
		t, ok := ephem.Lookup(name)
		if !ok {
			unknown = append(unknown, strings.TrimSpace(name))
			continue
		}
		targets[i] = t
	}
	if len(unknown) > 0 {
		return nil, &UnknownBodyError{Names: unknown}
	}
	return targets, nil
}

// NewBodies pairs names with solar-wind speeds. Length and speed checks run
// before the catalog lookup.
func NewBodies(names []string, speeds []float64) ([]Body, error) {
	if len(names) != len(speeds) {
		return nil, &ValidationError{
			Field:  "speeds",
			Reason: fmt.Sprintf("%d bodies but %d solar-wind speeds", len(names), len(speeds)),
		}
	}
	if len(names) == 0 {
		return nil, &ValidationError{Field: "bodies", Reason: "at least one body is required"}
	}
	for i, v := range speeds {
		if err := validateSpeed(fmt.Sprintf("speeds[%d]", i), v); err != nil {
			return nil, err
		}
	}

	targets, err := ResolveBodies(names)
	if err != nil {
		return nil, err
	}

	bodies := make([]Body, len(targets))
	for i, t := range targets {
		bodies[i] = Body{Target: t, VSW: speeds[i]}
	}
	return bodies, nil
}

func validateSpeed(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("solar-wind speed %v km/s must be positive", v)}
	}
	return nil
}

func validate(obs Observation, bodies []Body, ref *Reference) error {
	if obs.Instant.IsZero() {
		return &ValidationError{Field: "instant", Reason: "not set"}
	}
	if obs.Frame != astro.FrameCarrington && obs.Frame != astro.FrameStonyhurst {
		return &ValidationError{Field: "frame", Reason: fmt.Sprintf("unknown frame %d", obs.Frame)}
	}
	if err := validateLongOffset(obs.LongOffset); err != nil {
		return err
	}
	if len(bodies) == 0 {
		return &ValidationError{Field: "bodies", Reason: "at least one body is required"}
	}
	for i, b := range bodies {
		if err := validateSpeed(fmt.Sprintf("speeds[%d]", i), b.VSW); err != nil {
			return err
		}
	}
	if ref != nil {
		return validateReference(*ref, obs.Frame)
	}
	return nil
}

func validateLongOffset(v float64) error {
	if !(v >= 0 && v <= 360) {
		return &ValidationError{Field: "long_offset", Reason: fmt.Sprintf("%v outside [0, 360]", v)}
	}
	return nil
}

func validateReference(ref Reference, frame astro.Frame) error {
	if !frame.ValidLongitude(ref.Lon) {
		lo, hi := 0, 360
		if frame == astro.FrameStonyhurst {
			lo, hi = -180, 180
		}
		return &ValidationError{Field: "reference.lon", Reason: fmt.Sprintf("%v outside [%d, %d] for %s", ref.Lon, lo, hi, frame)}
	}
	if !(ref.Lat >= -90 && ref.Lat <= 90) {
		return &ValidationError{Field: "reference.lat", Reason: fmt.Sprintf("%v outside [-90, 90]", ref.Lat)}
	}
	if err := validateSpeed("reference.vsw", ref.VSW); err != nil {
		return err
	}
	if math.IsNaN(ref.Distance) || ref.Distance < 0 {
		return &ValidationError{Field: "reference.distance", Reason: fmt.Sprintf("%v must not be negative", ref.Distance)}
	}
	return nil
}

// lookupResult is the outcome of one body's ephemeris lookup.
type lookupResult struct {
	pos astro.Vec3
	err error
}

// Compute builds the table for bodies at obs. Validation failures return a
// *ValidationError before any lookup. A failed Earth baseline or a frame
// conversion failure aborts the computation. Other per-body failures are
// stored on their record; they abort with a *BatchError only when every
// body failed or partial results are not allowed.
func (m *Model) Compute(ctx context.Context, obs Observation, bodies []Body, ref *Reference) (*Table, error) {
	if err := validate(obs, bodies, ref); err != nil {
		return nil, err
	}

	start := time.Now()
	table, failed, err := m.compute(ctx, obs, bodies, ref)
	if m.observer != nil {
		m.observer.ObserveCompute(len(bodies), failed, time.Since(start), err != nil)
	}
	return table, err
}

func (m *Model) compute(ctx context.Context, obs Observation, bodies []Body, ref *Reference) (*Table, int, error) {
	obs.Instant = obs.Instant.UTC()
	log := m.log.With("instant", obs.Instant.Format(time.RFC3339))

	// Earth is the separation baseline and defines the Stonyhurst frame.
	earth := ephem.Earth()
	earthRes := m.lookup(ctx, earth, obs.Instant)
	if earthRes.err != nil {
		if ctx.Err() != nil {
			return nil, len(bodies), ctx.Err()
		}
		return nil, len(bodies), &EphemerisUnavailableError{Body: earth.Name, Instant: obs.Instant, Err: earthRes.err}
	}
	earthCarr, err := astro.CarringtonFromEcliptic(earthRes.pos, obs.Instant)
	if err != nil {
		log.Error("earth baseline: %v", err)
		return nil, len(bodies), &FrameConversionError{Body: earth.Name, Reason: err.Error()}
	}

	results := m.lookupAll(ctx, bodies, obs.Instant, earthRes.pos)
	if err := ctx.Err(); err != nil {
		return nil, len(bodies), err
	}

	baseline := EarthBaseline{
		CarringtonLon: earthCarr.LonDeg,
		Lon:           astro.ToFrame(obs.Frame, earthCarr.LonDeg, earthCarr.LonDeg),
		Lat:           earthCarr.LatDeg,
		Distance:      earthCarr.EquatorialDistance(),
	}

	table := &Table{
		Observation: obs,
		Provider:    m.provider.Name(),
		Options:     m.opts,
		Earth:       baseline,
		Records:     make([]Record, len(bodies)),
	}
	if ref != nil {
		table.Reference = m.reference(*ref, obs.Frame)
	}

	var failures []error
	for i, b := range bodies {
		rec := Record{Name: b.Name(), NAIFID: b.Target.NAIFID, VSW: b.VSW}

		res := results[i]
		if res.err != nil {
			rec.Err = &EphemerisUnavailableError{Body: b.Name(), Instant: obs.Instant, Err: res.err}
			log.Warn("%v", rec.Err)
			failures = append(failures, rec.Err)
			table.Records[i] = rec
			continue
		}

		carr, err := astro.CarringtonFromEcliptic(res.pos, obs.Instant)
		if err != nil {
			log.Error("%s: %v", b.Name(), err)
			return nil, len(failures), &FrameConversionError{Body: b.Name(), Reason: err.Error()}
		}
		if err := m.fill(&rec, carr, obs, baseline, table.Reference); err != nil {
			log.Error("%v", err)
			return nil, len(failures), err
		}
		table.Records[i] = rec
		log.Debug("%s: lon=%.2f lat=%.2f r=%.3f foot=%.2f", rec.Name, rec.Lon, rec.Lat, rec.Distance, rec.FootpointLon)
	}

	if len(failures) > 0 && (len(failures) == len(bodies) || !m.opts.AllowPartial) {
		return nil, len(failures), &BatchError{Total: len(bodies), Failures: failures}
	}

	if table.Reference != nil && m.opts.SpiralSamples >= 2 {
		table.Reference.Spiral = astro.SpiralTrace(table.Reference.FootpointLon, table.Reference.Lat,
			maxDistance(table.Records), m.opts.SpiralSamples, m.opts.spiral(table.Reference.VSW))
	}

	return table, len(failures), nil
}

// fill derives the frame coordinates, footpoint and separations of a body.
func (m *Model) fill(rec *Record, carr astro.HeliographicCoord, obs Observation, earth EarthBaseline, ref *ReferenceResult) error {
	rec.Lon = astro.ToFrame(obs.Frame, carr.LonDeg, earth.CarringtonLon)
	rec.Lat = carr.LatDeg
	rec.Radius = carr.R
	rec.Distance = carr.EquatorialDistance()

	params := m.opts.spiral(rec.VSW)
	rec.FootpointLon = obs.Frame.NormalizeLongitude(astro.FootpointLongitude(rec.Lon, rec.Lat, rec.Distance, params))

	rec.EarthLonSep = astro.Separation(rec.Lon, earth.Lon)
	rec.EarthLatSep = rec.Lat - earth.Lat
	rec.PlotAngle = astro.NormalizeAngle360(rec.Lon - earth.Lon + obs.LongOffset)

	if ref != nil {
		lonSep := astro.Separation(rec.Lon, ref.Lon)
		latSep := rec.Lat - ref.Lat
		footSep := astro.Separation(rec.FootpointLon, ref.FootpointLon)
		rec.RefLonSep, rec.RefLatSep, rec.FootRefLonSep = &lonSep, &latSep, &footSep
	}

	for _, v := range []float64{rec.Lon, rec.Lat, rec.Distance, rec.FootpointLon, rec.EarthLonSep, rec.EarthLatSep} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &FrameConversionError{Body: rec.Name, Reason: "non-finite derived value"}
		}
	}

	if m.opts.SpiralSamples >= 2 {
		rec.Spiral = astro.SpiralTrace(rec.FootpointLon, rec.Lat, rec.Distance, m.opts.SpiralSamples, params)
	}
	return nil
}

// reference derives the footpoint of the reference point.
func (m *Model) reference(ref Reference, frame astro.Frame) *ReferenceResult {
	res := &ReferenceResult{Reference: ref, FootpointLon: frame.NormalizeLongitude(ref.Lon)}
	if ref.Distance > 0 {
		foot := astro.FootpointLongitude(ref.Lon, ref.Lat, ref.Distance, m.opts.spiral(ref.VSW))
		res.FootpointLon = frame.NormalizeLongitude(foot)
	}
	return res
}

// lookupAll queries every body on a bounded number of goroutines. Earth
// entries reuse the baseline position.
func (m *Model) lookupAll(ctx context.Context, bodies []Body, t time.Time, earthPos astro.Vec3) []lookupResult {
	results := make([]lookupResult, len(bodies))
	sem := make(chan struct{}, m.opts.Workers)
	var wg sync.WaitGroup

	for i, b := range bodies {
		if b.Target.NAIFID == ephem.NAIFEarth {
			results[i] = lookupResult{pos: earthPos}
			continue
		}

		wg.Add(1)
		go func(i int, target ephem.TargetInfo) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = lookupResult{err: ctx.Err()}
				return
			}
			defer func() { <-sem }()
			results[i] = m.lookup(ctx, target, t)
		}(i, b.Target)
	}

	wg.Wait()
	return results
}

// lookup performs one bounded ephemeris query.
func (m *Model) lookup(ctx context.Context, target ephem.TargetInfo, t time.Time) lookupResult {
	if m.opts.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.LookupTimeout)
		defer cancel()
	}

	pos, err := m.provider.HeliocentricPosition(ctx, target, t)
	if err != nil {
		return lookupResult{err: err}
	}
	if !pos.IsFinite() {
		return lookupResult{err: fmt.Errorf("provider %s returned non-finite position for %s", m.provider.Name(), target.Name)}
	}
	return lookupResult{pos: pos}
}

func maxDistance(records []Record) float64 {
	r := 1.0
	for _, rec := range records {
		if rec.Err == nil && rec.Distance > r {
			r = rec.Distance
		}
	}
	return r
}
