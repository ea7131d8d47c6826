package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-solarmach/internal/constellation"
)

// Styles for the table view
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	selectedRowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("229")).
				Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// TableModel lists one row per body of the current table.
type TableModel struct {
	width  int
	height int
	cursor int
	table  *constellation.Table
}

// NewTableModel creates a new table view model.
func NewTableModel() TableModel {
	return TableModel{}
}

// SetSize updates the viewport size.
func (m TableModel) SetSize(width, height int) TableModel {
	m.width = width
	m.height = height
	return m
}

// UpdateData replaces the displayed table, keeping the cursor in range.
func (m TableModel) UpdateData(t *constellation.Table) TableModel {
	m.table = t
	if n := m.rowCount(); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
	return m
}

func (m TableModel) rowCount() int {
	if m.table == nil {
		return 0
	}
	return len(m.table.Records)
}

// Update handles messages.
func (m TableModel) Update(msg tea.Msg) (TableModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		n := m.rowCount()
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < n-1 {
				m.cursor++
			}
		case "home":
			m.cursor = 0
		case "end":
			if n > 0 {
				m.cursor = n - 1
			}
		}
	}
	return m, nil
}

// View renders the table.
func (m TableModel) View() string {
	if m.table == nil {
		return "Waiting for ephemeris...\n"
	}

	var b strings.Builder
	withRef := m.table.Reference != nil

	b.WriteString(titleStyle.Render(fmt.Sprintf("Constellation (%s)", m.table.Observation.Frame)))
	b.WriteString("\n")

	header := fmt.Sprintf("%-20s %8s %7s %7s %8s %7s %6s %8s",
		"Body", "Lon°", "Lat°", "r AU", "ΔLonE°", "ΔLatE°", "Vsw", "Foot°")
	if withRef {
		header += fmt.Sprintf(" %8s %8s %8s", "ΔLonR°", "ΔFootR°", "ΔLatR°")
	}
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	maxRows := m.height - 6
	if maxRows < 5 {
		maxRows = 5
	}
	records := m.table.Records
	startIdx := 0
	if m.cursor >= maxRows {
		startIdx = m.cursor - maxRows + 1
	}
	endIdx := min(startIdx+maxRows, len(records))

	for i := startIdx; i < endIdx; i++ {
		row := formatRow(records[i], withRef)
		switch {
		case i == m.cursor:
			b.WriteString(selectedRowStyle.Render(row))
		case records[i].Err != nil:
			b.WriteString(errorStyle.Render(row))
		default:
			b.WriteString(rowStyle.Render(row))
		}
		b.WriteString("\n")
	}

	if len(records) > maxRows {
		b.WriteString(fmt.Sprintf("\n  Showing %d-%d of %d bodies\n", startIdx+1, endIdx, len(records)))
	}

	e := m.table.Earth
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Earth  L0 %.2f°  B0 %.2f°  r %.4f AU", e.CarringtonLon, e.Lat, e.Distance)))
	if ref := m.table.Reference; ref != nil {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf("Reference  lon %.1f°  lat %.1f°  vsw %.0f km/s  footpoint %.1f°", ref.Lon, ref.Lat, ref.VSW, ref.FootpointLon)))
	}
	if r, ok := m.Selected(); ok && r.Err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(r.Err.Error()))
	}
	b.WriteString("\n")

	return b.String()
}

func formatRow(r constellation.Record, withRef bool) string {
	if r.Err != nil {
		return fmt.Sprintf("%-20s %8s %7s %7s %8s %7s %6.0f %8s",
			truncate(r.Name, 20), "-", "-", "-", "-", "-", r.VSW, "-")
	}
	row := fmt.Sprintf("%-20s %8.1f %7.1f %7.2f %8.1f %7.1f %6.0f %8.1f",
		truncate(r.Name, 20), r.Lon, r.Lat, r.Distance, r.EarthLonSep, r.EarthLatSep, r.VSW, r.FootpointLon)
	if withRef {
		row += fmt.Sprintf(" %8s %8s %8s", optional(r.RefLonSep), optional(r.FootRefLonSep), optional(r.RefLatSep))
	}
	return row
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

// Selected returns the record under the cursor.
func (m TableModel) Selected() (constellation.Record, bool) {
	if m.cursor < 0 || m.cursor >= m.rowCount() {
		return constellation.Record{}, false
	}
	return m.table.Records[m.cursor], true
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
