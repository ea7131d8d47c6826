package constellation

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError reports an input that was rejected before any ephemeris
// lookup ran.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UnknownBodyError lists every requested name missing from the catalog.
type UnknownBodyError struct {
	Names []string
}

func (e *UnknownBodyError) Error() string {
	quoted := make([]string, len(e.Names))
	for i, n := range e.Names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	if len(quoted) == 1 {
		return "unknown body: " + quoted[0]
	}
	return "unknown bodies: " + strings.Join(quoted, ", ")
}

// EphemerisUnavailableError is a per-body lookup failure.
type EphemerisUnavailableError struct {
	Body    string
	Instant time.Time
	Err     error
}

func (e *EphemerisUnavailableError) Error() string {
	return fmt.Sprintf("no ephemeris for %s at %s: %v", e.Body, e.Instant.UTC().Format(time.RFC3339), e.Err)
}

func (e *EphemerisUnavailableError) Unwrap() error {
	return e.Err
}

// FrameConversionError means the coordinate math produced an unusable
// result. It indicates a bug or corrupt provider data, not bad user input.
type FrameConversionError struct {
	Body   string
	Reason string
}

func (e *FrameConversionError) Error() string {
	return fmt.Sprintf("frame conversion failed for %s: %s", e.Body, e.Reason)
}

// BatchError aggregates the per-body failures of a computation that could
// not produce a table.
type BatchError struct {
	Total    int
	Failures []error
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, err := range e.Failures {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d of %d bodies failed: %s", len(e.Failures), e.Total, strings.Join(msgs, "; "))
}

func (e *BatchError) Unwrap() []error {
	return e.Failures
}
