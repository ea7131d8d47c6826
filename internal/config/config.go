// Package config loads the JSON configuration of ls-solarmach.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/litescript/ls-solarmach/internal/astro"
)

// Config represents the complete application configuration.
// Command-line flags override values loaded from file.
type Config struct {
	Observation ObservationConfig `json:"observation"`
	Bodies      []BodyConfig      `json:"bodies"`
	Reference   *ReferenceConfig  `json:"reference,omitempty"`
	Model       ModelConfig       `json:"model"`
	Ephemeris   EphemerisConfig   `json:"ephemeris"`
	Logging     LoggingConfig     `json:"logging"`
	Metrics     MetricsConfig     `json:"metrics"`
}

// ObservationConfig selects the instant and the coordinate frame.
type ObservationConfig struct {
	// Date is the observation instant; empty means "now".
	Date string `json:"date"`

	// Frame is "carrington" or "stonyhurst".
	Frame string `json:"frame"`

	// LongOffset is the plot angle at which Earth is drawn (0 = 3 o'clock).
	LongOffset float64 `json:"long_offset"`
}

// BodyConfig is one body with its measured solar-wind speed.
type BodyConfig struct {
	Name string  `json:"name"`
	VSW  float64 `json:"vsw"`
}

// ReferenceConfig describes the optional reference point (e.g. a flare).
type ReferenceConfig struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
	VSW float64 `json:"vsw"`

	// Distance in AU; zero places the reference on the source surface.
	Distance float64 `json:"distance,omitempty"`
}

// ModelConfig tunes the constellation model.
type ModelConfig struct {
	DiffRot       bool     `json:"diff_rot"`
	SourceSurface float64  `json:"source_surface"` // solar radii
	AllowPartial  bool     `json:"allow_partial"`
	Workers       int      `json:"workers"`
	LookupTimeout Duration `json:"lookup_timeout"`

	// SpiralSamples is the number of points per field-line trace; zero
	// leaves traces out of the output.
	SpiralSamples int `json:"spiral_samples,omitempty"`
}

// EphemerisConfig selects and tunes ephemeris sources.
type EphemerisConfig struct {
	// Mode is horizons, offline or auto.
	Mode string `json:"mode"`

	// VSOP87Dir holds VSOP87B files for the offline planets (optional).
	VSOP87Dir string `json:"vsop87_dir"`

	// HorizonsURL overrides the JPL Horizons API endpoint.
	HorizonsURL string `json:"horizons_url"`

	// RateLimit is the maximum number of Horizons requests per second;
	// zero disables limiting.
	RateLimit float64 `json:"rate_limit"`

	// CacheTTL enables the position cache when positive.
	CacheTTL Duration `json:"cache_ttl"`
}

// LoggingConfig controls the logger.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text or json
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint; empty disables it.
	Addr string `json:"addr"`
}

// Duration is a time.Duration encoded as a Go duration string ("30s").
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Observation: ObservationConfig{
			Frame:      "carrington",
			LongOffset: 270,
		},
		Bodies: []BodyConfig{
			{Name: "STEREO A", VSW: 400},
			{Name: "Earth", VSW: 400},
			{Name: "BepiColombo", VSW: 400},
			{Name: "Parker Solar Probe", VSW: 400},
			{Name: "Solar Orbiter", VSW: 400},
		},
		Model: ModelConfig{
			DiffRot:       true,
			SourceSurface: 1,
			AllowPartial:  true,
			Workers:       4,
			LookupTimeout: Duration(30 * time.Second),
		},
		Ephemeris: EphemerisConfig{
			Mode:      "auto",
			RateLimit: 4,
			CacheTTL:  Duration(10 * time.Minute),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a JSON configuration file. Missing keys keep their defaults and
// a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.applyEnvironmentOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()

	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks values that do not depend on the body catalog. All
// problems are reported together.
func (c *Config) Validate() error {
	return errors.Join(c.validateBodies(), c.ValidateSettings())
}

func (c *Config) validateBodies() error {
	var errs []error
	if len(c.Bodies) == 0 {
		errs = append(errs, errors.New("bodies: at least one body is required"))
	}
	for i, b := range c.Bodies {
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("bodies[%d].name: empty", i))
		}
		if !(b.VSW > 0) {
			errs = append(errs, fmt.Errorf("bodies[%d].vsw: %v must be positive", i, b.VSW))
		}
	}
	return errors.Join(errs...)
}

// ValidateSettings is Validate without the body list, for callers that
// supply bodies and speeds from elsewhere.
func (c *Config) ValidateSettings() error {
	var errs []error

	frame, err := astro.ParseFrame(c.Observation.Frame)
	if err != nil {
		errs = append(errs, fmt.Errorf("observation.frame: %w", err))
	}
	if c.Observation.LongOffset < 0 || c.Observation.LongOffset > 360 {
		errs = append(errs, fmt.Errorf("observation.long_offset: %v outside [0, 360]", c.Observation.LongOffset))
	}

	if r := c.Reference; r != nil && err == nil {
		if !frame.ValidLongitude(r.Lon) {
			errs = append(errs, fmt.Errorf("reference.lon: %v outside the %s range", r.Lon, frame))
		}
		if r.Lat < -90 || r.Lat > 90 {
			errs = append(errs, fmt.Errorf("reference.lat: %v outside [-90, 90]", r.Lat))
		}
		if !(r.VSW > 0) {
			errs = append(errs, fmt.Errorf("reference.vsw: %v must be positive", r.VSW))
		}
		if r.Distance < 0 {
			errs = append(errs, fmt.Errorf("reference.distance: %v must not be negative", r.Distance))
		}
	}

	if c.Model.SourceSurface < 1 {
		errs = append(errs, fmt.Errorf("model.source_surface: %v must be at least 1 solar radius", c.Model.SourceSurface))
	}
	if c.Model.Workers < 1 {
		errs = append(errs, fmt.Errorf("model.workers: %d must be at least 1", c.Model.Workers))
	}
	if c.Model.SpiralSamples < 0 || c.Model.SpiralSamples == 1 {
		errs = append(errs, fmt.Errorf("model.spiral_samples: %d must be 0 or at least 2", c.Model.SpiralSamples))
	}
	if c.Model.LookupTimeout < 0 {
		errs = append(errs, fmt.Errorf("model.lookup_timeout: must not be negative"))
	}

	switch c.Ephemeris.Mode {
	case "horizons", "offline", "auto":
	default:
		errs = append(errs, fmt.Errorf("ephemeris.mode: unknown mode %q", c.Ephemeris.Mode))
	}
	if c.Ephemeris.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("ephemeris.rate_limit: %v must not be negative", c.Ephemeris.RateLimit))
	}

	return errors.Join(errs...)
}

// BodyNames returns the configured body names in order.
func (c *Config) BodyNames() []string {
	names := make([]string, len(c.Bodies))
	for i, b := range c.Bodies {
		names[i] = b.Name
	}
	return names
}

// Speeds returns the configured solar-wind speeds in body order.
func (c *Config) Speeds() []float64 {
	speeds := make([]float64, len(c.Bodies))
	for i, b := range c.Bodies {
		speeds[i] = b.VSW
	}
	return speeds
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvironmentOverrides() {
	if mode := os.Getenv("SOLARMACH_EPHEM_MODE"); mode != "" {
		c.Ephemeris.Mode = mode
	}
	if u := os.Getenv("SOLARMACH_HORIZONS_URL"); u != "" {
		c.Ephemeris.HorizonsURL = u
	}
	if dir := os.Getenv("SOLARMACH_VSOP87_DIR"); dir != "" {
		c.Ephemeris.VSOP87Dir = dir
	}
	if level := os.Getenv("SOLARMACH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("SOLARMACH_METRICS_ADDR"); addr != "" {
		c.Metrics.Addr = addr
	}
	if rl := os.Getenv("SOLARMACH_RATE_LIMIT"); rl != "" {
		if v, err := strconv.ParseFloat(rl, 64); err == nil {
			c.Ephemeris.RateLimit = v
		}
	}
}
