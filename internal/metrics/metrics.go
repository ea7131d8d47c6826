// Package metrics exposes Prometheus instrumentation for ephemeris lookups and
// constellation computations.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/litescript/ls-solarmach/internal/ephem"
)

// Lookup results used as the "result" label.
const (
	ResultOK          = "ok"
	ResultNoData      = "no_data"
	ResultUnsupported = "unsupported"
	ResultCanceled    = "canceled"
	ResultError       = "error"
)

// Collector bundles the Prometheus metrics of the application.
type Collector struct {
	gatherer prometheus.Gatherer

	Lookups         *prometheus.CounterVec
	LookupDurations *prometheus.HistogramVec

	Computations       *prometheus.CounterVec
	ComputeDurations   prometheus.Histogram
	BodiesPerComputing prometheus.Gauge
}

// NewCollector registers metrics against reg, defaulting to the global
// registry when nil. Registering twice against the same registry returns the
// already registered collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	lookups, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solarmach_ephemeris_lookups_total",
		Help: "Ephemeris position lookups, labeled by provider and result.",
	}, []string{"provider", "result"}), "solarmach_ephemeris_lookups_total")
	if err != nil {
		return nil, err
	}

	lookupDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solarmach_ephemeris_lookup_duration_seconds",
		Help:    "Ephemeris lookup latency in seconds.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"provider"}), "solarmach_ephemeris_lookup_duration_seconds")
	if err != nil {
		return nil, err
	}

	computations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solarmach_computations_total",
		Help: "Constellation computations, labeled by outcome (ok, partial, failed).",
	}, []string{"outcome"}), "solarmach_computations_total")
	if err != nil {
		return nil, err
	}

	computeDurations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "solarmach_compute_duration_seconds",
		Help:    "Wall time of a constellation computation in seconds.",
		Buckets: prometheus.DefBuckets,
	}), "solarmach_compute_duration_seconds")
	if err != nil {
		return nil, err
	}

	bodies, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "solarmach_bodies",
		Help: "Number of bodies in the most recent computation.",
	}), "solarmach_bodies")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:           gatherer,
		Lookups:            lookups,
		LookupDurations:    lookupDurations,
		Computations:       computations,
		ComputeDurations:   computeDurations,
		BodiesPerComputing: bodies,
	}, nil
}

// ObserveLookup records one ephemeris lookup. It satisfies
// ephem.LookupObserver.
func (c *Collector) ObserveLookup(provider, target string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.Lookups.WithLabelValues(provider, Classify(err)).Inc()
	c.LookupDurations.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveCompute records a finished computation over n bodies of which
// failed could not be resolved. fatal marks a computation that returned no
// table.
func (c *Collector) ObserveCompute(n, failed int, elapsed time.Duration, fatal bool) {
	if c == nil {
		return
	}
	outcome := "ok"
	switch {
	case fatal:
		outcome = "failed"
	case failed > 0:
		outcome = "partial"
	}
	c.Computations.WithLabelValues(outcome).Inc()
	c.ComputeDurations.Observe(elapsed.Seconds())
	c.BodiesPerComputing.Set(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Classify maps a lookup error to its result label.
func Classify(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCanceled
	case errors.Is(err, ephem.ErrNoData):
		return ResultNoData
	case errors.Is(err, ephem.ErrUnsupported):
		return ResultUnsupported
	default:
		return ResultError
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
