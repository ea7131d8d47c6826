package ephem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/litescript/ls-solarmach/internal/astro"
)

// Chain tries providers in order and returns the first successful lookup.
type Chain struct {
	providers []Provider
}

// NewChain creates a fallback chain. Nil providers are skipped.
func NewChain(providers ...Provider) *Chain {
	c := &Chain{}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

// Name implements Provider.
func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, "+")
}

// HeliocentricPosition implements Provider. When every provider fails the
// returned error joins all failures, so errors.Is matches any of them.
// Context cancellation stops the chain immediately.
func (c *Chain) HeliocentricPosition(ctx context.Context, target TargetInfo, t time.Time) (astro.Vec3, error) {
	if len(c.providers) == 0 {
		return astro.Vec3{}, fmt.Errorf("%w: %s (no providers)", ErrUnsupported, target.Name)
	}

	var errs []error
	for _, p := range c.providers {
		pos, err := p.HeliocentricPosition(ctx, target, t)
		if err == nil {
			return pos, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return astro.Vec3{}, ctxErr
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return astro.Vec3{}, errors.Join(errs...)
}
