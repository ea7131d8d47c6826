// Package ephem provides heliocentric ephemerides for planets and spacecraft.
package ephem

import (
	"context"
	"errors"
	"time"

	"github.com/litescript/ls-solarmach/internal/astro"
)

var (
	// ErrNoData means the source has no ephemeris for the target at the
	// requested instant (e.g. before launch or after end of mission).
	ErrNoData = errors.New("no ephemeris data")

	// ErrUnsupported means the source cannot serve this target at all.
	ErrUnsupported = errors.New("target not supported by provider")
)

// Provider defines the interface for ephemeris data sources.
type Provider interface {
	// Name returns the provider name for display/logging.
	Name() string

	// HeliocentricPosition returns the heliocentric J2000 ecliptic position
	// of the target in AU at instant t.
	HeliocentricPosition(ctx context.Context, target TargetInfo, t time.Time) (astro.Vec3, error)
}

// Mode represents which ephemeris source to use.
type Mode int

const (
	ModeHorizons Mode = iota // Use JPL Horizons only
	ModeOffline              // Use analytic theories only (planets, L1)
	ModeAuto                 // Try Horizons, fall back to offline
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeHorizons:
		return "horizons"
	case ModeOffline:
		return "offline"
	case ModeAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode string.
func ParseMode(s string) Mode {
	switch s {
	case "horizons":
		return ModeHorizons
	case "offline":
		return ModeOffline
	case "auto":
		return ModeAuto
	default:
		return ModeAuto
	}
}

// Options configures New.
type Options struct {
	Mode Mode

	// VSOP87Dir points to a directory with VSOP87B files. Empty selects
	// mean orbital elements for the offline planets.
	VSOP87Dir string

	// CacheTTL enables the position cache when positive.
	CacheTTL time.Duration

	// Horizons options, applied when the mode uses Horizons.
	Horizons []HorizonsOption
}

// New builds the provider stack for a mode.
func New(opts Options) Provider {
	var p Provider
	switch opts.Mode {
	case ModeHorizons:
		p = NewHorizonsProvider(opts.Horizons...)
	case ModeOffline:
		p = NewOfflineProvider(opts.VSOP87Dir)
	default:
		p = NewChain(NewHorizonsProvider(opts.Horizons...), NewOfflineProvider(opts.VSOP87Dir))
	}
	if opts.CacheTTL > 0 {
		p = NewCachedProvider(p, opts.CacheTTL)
	}
	return p
}
