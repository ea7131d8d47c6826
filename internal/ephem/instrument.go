package ephem

import (
	"context"
	"time"

	"github.com/litescript/ls-solarmach/internal/astro"
)

// LookupObserver receives the outcome of every position lookup.
type LookupObserver interface {
	ObserveLookup(provider, target string, elapsed time.Duration, err error)
}

// Instrumented reports lookups of a provider to an observer.
type Instrumented struct {
	inner Provider
	obs   LookupObserver
}

// Instrument wraps p. A nil observer returns p unchanged.
func Instrument(p Provider, obs LookupObserver) Provider {
	if obs == nil {
		return p
	}
	return &Instrumented{inner: p, obs: obs}
}

// Name implements Provider.
func (i *Instrumented) Name() string {
	return i.inner.Name()
}

// HeliocentricPosition implements Provider.
func (i *Instrumented) HeliocentricPosition(ctx context.Context, target TargetInfo, t time.Time) (astro.Vec3, error) {
	start := time.Now()
	pos, err := i.inner.HeliocentricPosition(ctx, target, t)
	i.obs.ObserveLookup(i.inner.Name(), target.Name, time.Since(start), err)
	return pos, err
}
