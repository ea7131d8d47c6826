// Package version provides build and version information.
package version

// Version is the current application version.
const Version = "0.3.0"

// Milestones:
// 0.3.0 - Terminal plot with Parker spirals, time stepping, Prometheus metrics
// 0.2.0 - Offline ephemeris (VSOP87 and mean elements), position cache, provider chain
// 0.1.0 - Initial release: constellation table, Horizons ephemeris, CSV/JSON export
