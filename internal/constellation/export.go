package constellation

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-solarmach/internal/astro"
)

// CSVHeader returns the column names, with units, for a frame. Reference
// columns are included when withRef is set.
func CSVHeader(frame astro.Frame, withRef bool) []string {
	f := frame.String()
	header := []string{
		"Spacecraft/Body",
		f + " longitude (°)",
		f + " latitude (°)",
		"Heliocentric distance (AU)",
		"Longitudinal separation to Earth's longitude (°)",
		"Latitudinal separation to Earth's latitude (°)",
		"Vsw (km/s)",
		"Magnetic footpoint longitude (" + f + ") (°)",
	}
	if withRef {
		header = append(header,
			"Longitudinal separation between body and reference_long (°)",
			"Longitudinal separation between body's magnetic footpoint and reference_long (°)",
			"Latitudinal separation between body and reference_lat (°)",
		)
	}
	return header
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

// WriteCSV writes the table with a header row. Rows of failed bodies keep
// their name and speed and leave the other fields empty; an "Error" column
// is appended when any body failed.
func (t *Table) WriteCSV(w io.Writer) error {
	withRef := t.Reference != nil
	withErr := len(t.Failures()) > 0

	cw := csv.NewWriter(w)
	header := CSVHeader(t.Observation.Frame, withRef)
	if withErr {
		header = append(header, "Error")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range t.Records {
		row := make([]string, 0, len(header))
		if r.Err != nil {
			row = append(row, r.Name, "", "", "", "", "", formatFloat(r.VSW), "")
			if withRef {
				row = append(row, "", "", "")
			}
			row = append(row, r.Err.Error())
			if err := cw.Write(row); err != nil {
				return err
			}
			continue
		}

		row = append(row,
			r.Name,
			formatFloat(r.Lon),
			formatFloat(r.Lat),
			formatFloat(r.Distance),
			formatFloat(r.EarthLonSep),
			formatFloat(r.EarthLatSep),
			formatFloat(r.VSW),
			formatFloat(r.FootpointLon),
		)
		if withRef {
			row = append(row, formatOptional(r.RefLonSep), formatOptional(r.FootRefLonSep), formatOptional(r.RefLatSep))
		}
		if withErr {
			row = append(row, "")
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// TableExport is the JSON-serializable representation of a table.
type TableExport struct {
	Instant    time.Time        `json:"instant"`
	Frame      string           `json:"frame"`
	LongOffset float64          `json:"long_offset"`
	Provider   string           `json:"provider"`
	DiffRot    bool             `json:"diff_rot"`
	Earth      EarthExport      `json:"earth"`
	Reference  *ReferenceExport `json:"reference,omitempty"`
	Bodies     []RecordExport   `json:"bodies"`
}

// EarthExport is the JSON form of the Earth baseline.
type EarthExport struct {
	CarringtonLon float64 `json:"carrington_lon"`
	Lon           float64 `json:"lon"`
	Lat           float64 `json:"lat"`
	Distance      float64 `json:"distance_au"`
}

// ReferenceExport is the JSON form of the reference point.
type ReferenceExport struct {
	Lon          float64       `json:"lon"`
	Lat          float64       `json:"lat"`
	VSW          float64       `json:"vsw_kms"`
	Distance     float64       `json:"distance_au,omitempty"`
	FootpointLon float64       `json:"footpoint_lon"`
	Spiral       []PointExport `json:"spiral,omitempty"`
}

// RecordExport is the JSON form of a record.
type RecordExport struct {
	Name          string        `json:"name"`
	NAIFID        int           `json:"naif_id"`
	Lon           float64       `json:"lon"`
	Lat           float64       `json:"lat"`
	Distance      float64       `json:"distance_au"`
	Radius        float64       `json:"radius_au"`
	VSW           float64       `json:"vsw_kms"`
	FootpointLon  float64       `json:"footpoint_lon"`
	EarthLonSep   float64       `json:"earth_lon_sep"`
	EarthLatSep   float64       `json:"earth_lat_sep"`
	RefLonSep     *float64      `json:"ref_lon_sep,omitempty"`
	RefLatSep     *float64      `json:"ref_lat_sep,omitempty"`
	FootRefLonSep *float64      `json:"footpoint_ref_lon_sep,omitempty"`
	PlotAngle     float64       `json:"plot_angle"`
	Spiral        []PointExport `json:"spiral,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// PointExport is one spiral sample.
type PointExport struct {
	R   float64 `json:"r_au"`
	Lon float64 `json:"lon"`
}

func exportSpiral(pts []astro.SpiralPoint) []PointExport {
	if len(pts) == 0 {
		return nil
	}
	out := make([]PointExport, len(pts))
	for i, p := range pts {
		out[i] = PointExport{R: p.R, Lon: p.LonDeg}
	}
	return out
}

// Export converts the table to its JSON form.
func (t *Table) Export() *TableExport {
	e := &TableExport{
		Instant:    t.Observation.Instant,
		Frame:      strings.ToLower(t.Observation.Frame.String()),
		LongOffset: t.Observation.LongOffset,
		Provider:   t.Provider,
		DiffRot:    t.Options.DiffRot,
		Earth: EarthExport{
			CarringtonLon: t.Earth.CarringtonLon,
			Lon:           t.Earth.Lon,
			Lat:           t.Earth.Lat,
			Distance:      t.Earth.Distance,
		},
		Bodies: make([]RecordExport, len(t.Records)),
	}
	if ref := t.Reference; ref != nil {
		e.Reference = &ReferenceExport{
			Lon:          ref.Lon,
			Lat:          ref.Lat,
			VSW:          ref.VSW,
			Distance:     ref.Distance,
			FootpointLon: ref.FootpointLon,
			Spiral:       exportSpiral(ref.Spiral),
		}
	}
	for i, r := range t.Records {
		re := RecordExport{Name: r.Name, NAIFID: int(r.NAIFID), VSW: r.VSW}
		if r.Err != nil {
			re.Error = r.Err.Error()
		} else {
			re.Lon, re.Lat = r.Lon, r.Lat
			re.Distance, re.Radius = r.Distance, r.Radius
			re.FootpointLon = r.FootpointLon
			re.EarthLonSep, re.EarthLatSep = r.EarthLonSep, r.EarthLatSep
			re.RefLonSep, re.RefLatSep, re.FootRefLonSep = r.RefLonSep, r.RefLatSep, r.FootRefLonSep
			re.PlotAngle = r.PlotAngle
			re.Spiral = exportSpiral(r.Spiral)
		}
		e.Bodies[i] = re
	}
	return e
}

// WriteJSON writes the table as indented JSON.
func (t *Table) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t.Export())
}

var (
	summaryTitle  = lipgloss.NewStyle().Bold(true)
	summaryHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	summaryError  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	summaryDim    = lipgloss.NewStyle().Faint(true)
)

// WriteSummaryTable writes a text table to the given writer, one row per
// body, rounded the way the web tool displays it.
func (t *Table) WriteSummaryTable(w io.Writer) {
	frame := t.Observation.Frame
	withRef := t.Reference != nil

	width := 78
	if withRef {
		width = 105
	}

	fmt.Fprintln(w, summaryTitle.Render(fmt.Sprintf("Solar-MACH @ %s  (%s, %s)",
		t.Observation.Instant.Format(time.RFC3339), frame, t.Provider)))
	fmt.Fprintln(w, strings.Repeat("─", width))

	header := fmt.Sprintf("%-20s %8s %7s %7s %8s %7s %6s %8s",
		"Body", "Lon°", "Lat°", "r AU", "ΔLonE°", "ΔLatE°", "Vsw", "Foot°")
	if withRef {
		header += fmt.Sprintf(" %8s %8s %8s", "ΔLonR°", "ΔFootR°", "ΔLatR°")
	}
	fmt.Fprintln(w, summaryHeader.Render(header))
	fmt.Fprintln(w, strings.Repeat("─", width))

	for _, r := range t.Records {
		if r.Err != nil {
			fmt.Fprintln(w, summaryError.Render(fmt.Sprintf("%-20s %s", truncateStr(r.Name, 20), r.Err)))
			continue
		}
		line := fmt.Sprintf("%-20s %8.1f %7.1f %7.2f %8.1f %7.1f %6.0f %8.1f",
			truncateStr(r.Name, 20), r.Lon, r.Lat, r.Distance, r.EarthLonSep, r.EarthLatSep, r.VSW, r.FootpointLon)
		if withRef {
			line += fmt.Sprintf(" %8.1f %8.1f %8.1f", deref(r.RefLonSep), deref(r.FootRefLonSep), deref(r.RefLatSep))
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w, strings.Repeat("─", width))
	fmt.Fprintln(w, summaryDim.Render(fmt.Sprintf("Earth: L0=%.2f° B0=%.2f° r=%.4f AU", t.Earth.CarringtonLon, t.Earth.Lat, t.Earth.Distance)))
	if ref := t.Reference; ref != nil {
		fmt.Fprintln(w, summaryDim.Render(fmt.Sprintf("Reference: lon=%.1f° lat=%.1f° vsw=%.0f km/s footpoint=%.1f°", ref.Lon, ref.Lat, ref.VSW, ref.FootpointLon)))
	}
	if n := len(t.Failures()); n > 0 {
		fmt.Fprintf(w, "\n%d of %d bodies unavailable\n", n, len(t.Records))
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
