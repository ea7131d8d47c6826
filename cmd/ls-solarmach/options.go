package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/litescript/ls-solarmach/internal/config"
	"github.com/litescript/ls-solarmach/internal/constellation"
)

// Output formats
const (
	formatAuto  = ""
	formatTable = "table"
	formatCSV   = "csv"
	formatJSON  = "json"
	formatTUI   = "tui"
)

// tuiSpiralSamples is used by the plot when the config leaves traces off.
const tuiSpiralSamples = 60

// cliOptions holds the parsed command line. Values only override the
// configuration when their flag was given.
type cliOptions struct {
	configPath string

	date       string
	bodies     string
	speeds     string
	frame      string
	longOffset float64

	refLon      float64
	refLat      float64
	refVSW      float64
	refDistance float64

	ephemMode     string
	vsop87Dir     string
	horizonsURL   string
	noDiffRot     bool
	sourceSurface float64
	spiralSamples int
	workers       int
	partial       bool

	format   string
	output   string
	watch    time.Duration
	logLevel string
	logFmt   string
	metrics  string

	list    bool
	version bool

	set map[string]bool
}

func parseOptions(args []string, stderr io.Writer) (*cliOptions, error) {
	o := &cliOptions{set: make(map[string]bool)}

	fs := flag.NewFlagSet("ls-solarmach", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.configPath, "config", "", "Path to a JSON config file")

	fs.StringVar(&o.date, "date", "", "Observation time (e.g. 2021-01-01T00:00:00Z, 2021-01-01, now)")
	fs.StringVar(&o.bodies, "bodies", "", "Comma-separated body names (e.g. \"Earth,STEREO-A,PSP\")")
	fs.StringVar(&o.speeds, "speeds", "", "Comma-separated solar-wind speeds in km/s, one per body")
	fs.StringVar(&o.frame, "frame", "", "Coordinate frame: carrington or stonyhurst")
	fs.Float64Var(&o.longOffset, "long-offset", constellation.DefaultLongOffset, "Plot angle of Earth in degrees (0 = 3 o'clock)")

	fs.Float64Var(&o.refLon, "ref-lon", 0, "Reference longitude in the selected frame (enables reference separations)")
	fs.Float64Var(&o.refLat, "ref-lat", 0, "Reference latitude in degrees")
	fs.Float64Var(&o.refVSW, "ref-vsw", constellation.DefaultVSW, "Solar-wind speed for the reference spiral in km/s")
	fs.Float64Var(&o.refDistance, "ref-distance", 0, "Reference distance in AU (0 = on the source surface)")

	fs.StringVar(&o.ephemMode, "ephem", "", "Ephemeris source: horizons, offline or auto")
	fs.StringVar(&o.vsop87Dir, "vsop87", "", "Directory with VSOP87B files for offline planets")
	fs.StringVar(&o.horizonsURL, "horizons-url", "", "JPL Horizons API endpoint")
	fs.BoolVar(&o.noDiffRot, "no-diff-rot", false, "Use the equatorial rotation rate for every latitude")
	fs.Float64Var(&o.sourceSurface, "source-surface", 1, "Source-surface radius in solar radii")
	fs.IntVar(&o.spiralSamples, "spiral-samples", 0, "Points per field-line trace in JSON output (0 = none)")
	fs.IntVar(&o.workers, "workers", constellation.DefaultWorkers, "Concurrent ephemeris lookups")
	fs.BoolVar(&o.partial, "partial", true, "Return a table when some bodies fail")

	fs.StringVar(&o.format, "format", formatAuto, "Output: table, csv, json or tui (default: tui on a terminal, else table)")
	fs.StringVar(&o.output, "o", "-", "Output file for table, csv and json (- for stdout)")
	fs.DurationVar(&o.watch, "watch", 0, "Recompute at this interval (e.g. 10m); the date follows the clock")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.logFmt, "log-format", "", "Log format (text, json)")
	fs.StringVar(&o.metrics, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	fs.BoolVar(&o.list, "list", false, "List known bodies and exit")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	switch o.format {
	case formatAuto, formatTable, formatCSV, formatJSON, formatTUI:
	default:
		return nil, fmt.Errorf("unknown format %q (want table, csv, json or tui)", o.format)
	}
	return o, nil
}

// apply overrides config values with the flags that were given.
func (o *cliOptions) apply(cfg *config.Config) {
	if o.set["date"] {
		cfg.Observation.Date = o.date
	}
	if o.set["frame"] {
		cfg.Observation.Frame = o.frame
	}
	if o.set["long-offset"] {
		cfg.Observation.LongOffset = o.longOffset
	}

	if o.set["ref-lon"] {
		cfg.Reference = &config.ReferenceConfig{Lon: o.refLon, Lat: o.refLat, VSW: o.refVSW, Distance: o.refDistance}
	} else if cfg.Reference != nil {
		if o.set["ref-lat"] {
			cfg.Reference.Lat = o.refLat
		}
		if o.set["ref-vsw"] {
			cfg.Reference.VSW = o.refVSW
		}
		if o.set["ref-distance"] {
			cfg.Reference.Distance = o.refDistance
		}
	}

	if o.set["ephem"] {
		cfg.Ephemeris.Mode = o.ephemMode
	}
	if o.set["vsop87"] {
		cfg.Ephemeris.VSOP87Dir = o.vsop87Dir
	}
	if o.set["horizons-url"] {
		cfg.Ephemeris.HorizonsURL = o.horizonsURL
	}
	if o.set["no-diff-rot"] {
		cfg.Model.DiffRot = !o.noDiffRot
	}
	if o.set["source-surface"] {
		cfg.Model.SourceSurface = o.sourceSurface
	}
	if o.set["spiral-samples"] {
		cfg.Model.SpiralSamples = o.spiralSamples
	}
	if o.set["workers"] {
		cfg.Model.Workers = o.workers
	}
	if o.set["partial"] {
		cfg.Model.AllowPartial = o.partial
	}
	if o.set["log-level"] {
		cfg.Logging.Level = o.logLevel
	}
	if o.set["log-format"] {
		cfg.Logging.Format = o.logFmt
	}
	if o.set["metrics-addr"] {
		cfg.Metrics.Addr = o.metrics
	}
}

// replacesBodies reports whether the command line overrides the configured
// bodies or speeds. The model then validates the list actually used.
func (o *cliOptions) replacesBodies() bool {
	return o.set["bodies"] || o.set["speeds"]
}

// request builds the computation request. Bodies and speeds from the
// command line replace the configured list; a length mismatch between them
// is left for the model to reject.
func (o *cliOptions) request(cfg *config.Config) (constellation.Request, error) {
	names := cfg.BodyNames()
	speeds := cfg.Speeds()

	if o.set["bodies"] {
		names = splitList(o.bodies)
		speeds = nil
		if !o.set["speeds"] {
			speeds = make([]float64, len(names))
			for i := range speeds {
				speeds[i] = constellation.DefaultVSW
			}
		}
	}
	if o.set["speeds"] {
		parsed, err := parseSpeeds(o.speeds)
		if err != nil {
			return constellation.Request{}, err
		}
		speeds = parsed
	}

	offset := cfg.Observation.LongOffset
	req := constellation.Request{
		Date:       cfg.Observation.Date,
		Bodies:     names,
		Speeds:     speeds,
		Frame:      cfg.Observation.Frame,
		LongOffset: &offset,
	}
	if r := cfg.Reference; r != nil {
		req.Reference = &constellation.Reference{Lon: r.Lon, Lat: r.Lat, VSW: r.VSW, Distance: r.Distance}
	}
	return req, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseSpeeds(s string) ([]float64, error) {
	parts := splitList(s)
	speeds := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid solar-wind speed %q", p)
		}
		speeds[i] = v
	}
	return speeds, nil
}
