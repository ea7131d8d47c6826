// Command ls-solarmach shows the magnetic connection of spacecraft and
// planets to the Sun: heliographic positions, Parker-spiral footpoints and
// longitudinal separations, as a table, CSV, JSON or an interactive TUI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/litescript/ls-solarmach/internal/config"
	"github.com/litescript/ls-solarmach/internal/constellation"
	"github.com/litescript/ls-solarmach/internal/ephem"
	"github.com/litescript/ls-solarmach/internal/logging"
	"github.com/litescript/ls-solarmach/internal/metrics"
	"github.com/litescript/ls-solarmach/internal/ui"
	"github.com/litescript/ls-solarmach/internal/version"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	if opts.version {
		fmt.Fprintf(stdout, "ls-solarmach %s\n", version.Version)
		return exitOK
	}
	if opts.list {
		listBodies(stdout)
		return exitOK
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	opts.apply(cfg)
	validate := cfg.Validate
	if opts.replacesBodies() {
		validate = cfg.ValidateSettings
	}
	if err := validate(); err != nil {
		fmt.Fprintf(stderr, "Error: invalid configuration:\n%v\n", err)
		return exitUsage
	}

	req, err := opts.request(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	format := opts.format
	if format == formatAuto {
		format = formatTable
		if opts.output == "-" && isTerminal(stdout) {
			format = formatTUI
		}
	}
	if format == formatTUI && cfg.Model.SpiralSamples == 0 {
		cfg.Model.SpiralSamples = tuiSpiralSamples
	}

	// The TUI owns the terminal, so logs go to stderr only outside it.
	logOut := stderr
	if format == formatTUI {
		logOut = io.Discard
	}
	logger := logging.NewWithFormat(logging.ParseLevel(cfg.Logging.Level), logging.ParseFormat(cfg.Logging.Format), logOut)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var collector *metrics.Collector
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		collector, err = metrics.NewCollector(reg)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
		srv := serveMetrics(cfg.Metrics.Addr, collector, logger)
		defer shutdown(srv)
	}

	provider := newProvider(cfg, collector, logger)
	modelOpts := []constellation.ModelOption{constellation.WithLogger(logger)}
	if collector != nil {
		modelOpts = append(modelOpts, constellation.WithObserver(collector))
	}
	model := constellation.New(provider, constellation.Options{
		DiffRot:       cfg.Model.DiffRot,
		SourceSurface: cfg.Model.SourceSurface,
		AllowPartial:  cfg.Model.AllowPartial,
		Workers:       cfg.Model.Workers,
		LookupTimeout: cfg.Model.LookupTimeout.Std(),
		SpiralSamples: cfg.Model.SpiralSamples,
	}, modelOpts...)

	logger.Debug("ephemeris %s, %d bodies, frame %s", provider.Name(), len(req.Bodies), req.Frame)

	if format == formatTUI {
		return runTUI(ctx, model, req, stderr)
	}

	out, closeOut, err := openOutput(opts.output, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer closeOut()

	code := runOnce(ctx, model, req, format, out, stderr)
	if opts.watch <= 0 || code == exitUsage {
		logCacheStats(provider, logger)
		return code
	}

	// Watch mode: repeat at interval
	ticker := time.NewTicker(opts.watch)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("watch loop shutting down")
			logCacheStats(provider, logger)
			return exitOK
		case <-ticker.C:
			if c, ok := provider.(*ephem.CachedProvider); ok {
				c.Purge()
			}
			if format == formatTable {
				fmt.Fprintln(out)
			}
			runOnce(ctx, model, req, format, out, stderr)
		}
	}
}

// runOnce computes and writes one table.
func runOnce(ctx context.Context, model *constellation.Model, req constellation.Request, format string, out, stderr io.Writer) int {
	table, err := model.Run(ctx, req)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	switch format {
	case formatCSV:
		err = table.WriteCSV(out)
	case formatJSON:
		err = table.WriteJSON(out)
	default:
		table.WriteSummaryTable(out)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: write output: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func runTUI(ctx context.Context, model *constellation.Model, req constellation.Request, stderr io.Writer) int {
	m, err := ui.New(ctx, model, req)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintf(stderr, "Error running TUI: %v\n", err)
		return exitFailure
	}
	return exitOK
}

// newProvider builds the ephemeris stack described by the config.
func newProvider(cfg *config.Config, collector *metrics.Collector, logger *logging.Logger) ephem.Provider {
	var horizons []ephem.HorizonsOption
	if cfg.Ephemeris.HorizonsURL != "" {
		horizons = append(horizons, ephem.WithBaseURL(cfg.Ephemeris.HorizonsURL))
	}
	horizons = append(horizons, ephem.WithRateLimit(rate.Limit(cfg.Ephemeris.RateLimit), 2))

	p := ephem.New(ephem.Options{
		Mode:      ephem.ParseMode(cfg.Ephemeris.Mode),
		VSOP87Dir: cfg.Ephemeris.VSOP87Dir,
		CacheTTL:  cfg.Ephemeris.CacheTTL.Std(),
		Horizons:  horizons,
	})
	logger.Debug("ephemeris provider: %s", p.Name())

	if collector == nil {
		return p
	}
	return ephem.Instrument(p, collector)
}

func serveMetrics(addr string, collector *metrics.Collector, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server: %v", err)
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func logCacheStats(p ephem.Provider, logger *logging.Logger) {
	if c, ok := p.(*ephem.CachedProvider); ok {
		hits, misses := c.Stats()
		logger.Debug("position cache: %d hits, %d misses, %d entries", hits, misses, c.Len())
	}
}

// exitCode maps computation errors to exit codes: input problems are
// usage errors, everything else is a failure.
func exitCode(err error) int {
	var vErr *constellation.ValidationError
	var uErr *constellation.UnknownBodyError
	if errors.As(err, &vErr) || errors.As(err, &uErr) {
		return exitUsage
	}
	return exitFailure
}

func openOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func listBodies(w io.Writer) {
	for _, name := range ephem.Names() {
		t, _ := ephem.Lookup(name)
		line := fmt.Sprintf("%-20s %6d  %s", t.Name, t.NAIFID, t.Kind)
		if len(t.Aliases) > 0 {
			line += "  (" + strings.Join(t.Aliases, ", ") + ")"
		}
		fmt.Fprintln(w, line)
	}
}
