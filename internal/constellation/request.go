package constellation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/litescript/ls-solarmach/internal/astro"
)

// Request is a computation described with plain values, as collected by a
// command line or a form.
type Request struct {
	// Date is the observation instant; empty or "now" uses Now.
	Date string

	Bodies []string
	Speeds []float64

	// Frame is "carrington" or "stonyhurst" (also "0" or "1").
	Frame string

	// LongOffset defaults to DefaultLongOffset when nil.
	LongOffset *float64

	Reference *Reference

	// Now supplies the current time; nil uses time.Now.
	Now func() time.Time
}

// Run validates and resolves a request and computes its table. Input
// problems are reported as *ValidationError or *UnknownBodyError before any
// ephemeris lookup.
func (m *Model) Run(ctx context.Context, req Request) (*Table, error) {
	obs, bodies, err := req.Resolve()
	if err != nil {
		return nil, err
	}
	return m.Compute(ctx, obs, bodies, req.Reference)
}

// Resolve turns a request into an observation and bodies. Checks run in
// order: frame, date, longitude offset, bodies and speeds, catalog names,
// reference.
func (req Request) Resolve() (Observation, []Body, error) {
	frame, err := astro.ParseFrame(req.Frame)
	if err != nil {
		return Observation{}, nil, &ValidationError{Field: "frame", Reason: err.Error()}
	}

	now := time.Now
	if req.Now != nil {
		now = req.Now
	}
	instant, err := ParseInstant(req.Date, now())
	if err != nil {
		return Observation{}, nil, &ValidationError{Field: "date", Reason: err.Error()}
	}

	obs := NewObservation(instant, frame)
	if req.LongOffset != nil {
		obs.LongOffset = *req.LongOffset
	}
	if err := validateLongOffset(obs.LongOffset); err != nil {
		return Observation{}, nil, err
	}

	bodies, err := NewBodies(req.Bodies, req.Speeds)
	if err != nil {
		return Observation{}, nil, err
	}
	if req.Reference != nil {
		if err := validateReference(*req.Reference, frame); err != nil {
			return Observation{}, nil, err
		}
	}
	return obs, bodies, nil
}

// instantLayouts are tried in order by ParseInstant.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseInstant parses an observation time. Values without a zone are UTC.
// Empty input and "now" return now.
func ParseInstant(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "now") {
		return now.UTC(), nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date (expected e.g. 2021-01-01T00:00:00Z or 2021-01-01)", s)
}
