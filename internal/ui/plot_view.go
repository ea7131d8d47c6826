package ui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-solarmach/internal/astro"
	"github.com/litescript/ls-solarmach/internal/constellation"
	"github.com/litescript/ls-solarmach/internal/ephem"
)

// ScaleMode selects the radial scaling of the polar plot.
type ScaleMode int

const (
	ScaleLinear ScaleMode = iota
	ScaleLog
)

// LabelMode controls which bodies get a name label.
type LabelMode int

const (
	LabelNone LabelMode = iota
	LabelFocused
	LabelAll
)

// Discrete zoom levels for clean stepping
var zoomLevels = []float64{0.5, 0.75, 1.0, 1.5, 2.0, 3.0, 5.0}

const defaultZoom = 2 // index of 1.0

// Plot glyphs
const (
	glyphSun       = '☉'
	glyphEarth     = '⊕'
	glyphPlanet    = '•'
	glyphCraft     = '◇'
	glyphFocused   = '◆'
	glyphReference = '✶'
	glyphSpiral    = '∙'
	glyphRefSpiral = '⁘'
	glyphRing      = '·'
)

// PlotModel renders the constellation as a polar plot seen from solar
// north: the Sun in the middle, Earth at the observation's plot angle and
// each body with the Parker spiral that connects it to its footpoint.
type PlotModel struct {
	width  int
	height int
	table  *constellation.Table

	focusIdx    int // index in table records, -1 = none
	zoomLevel   int
	scaleMode   ScaleMode
	labelMode   LabelMode
	showSpirals bool
}

// NewPlotModel creates a new plot view model.
func NewPlotModel() PlotModel {
	return PlotModel{
		focusIdx:    -1,
		zoomLevel:   defaultZoom,
		scaleMode:   ScaleLinear,
		labelMode:   LabelAll,
		showSpirals: true,
	}
}

func (m PlotModel) scale() float64 {
	if m.zoomLevel < 0 || m.zoomLevel >= len(zoomLevels) {
		return 1.0
	}
	return zoomLevels[m.zoomLevel]
}

// SetSize updates the viewport size.
func (m PlotModel) SetSize(width, height int) PlotModel {
	m.width = width
	m.height = height
	return m
}

// UpdateData replaces the plotted table.
func (m PlotModel) UpdateData(t *constellation.Table) PlotModel {
	m.table = t
	if t == nil || m.focusIdx >= len(t.Records) {
		m.focusIdx = -1
	}
	return m
}

// Update handles input messages.
func (m PlotModel) Update(msg tea.Msg) (PlotModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "k", "down":
			m.focusNext()
		case "j", "up":
			m.focusPrev()
		case "+", "=":
			if m.zoomLevel < len(zoomLevels)-1 {
				m.zoomLevel++
			}
		case "-":
			if m.zoomLevel > 0 {
				m.zoomLevel--
			}
		case "0":
			m.zoomLevel = defaultZoom
		case "z":
			m.scaleMode = (m.scaleMode + 1) % 2
		case "a":
			m.labelMode = (m.labelMode + 1) % 3
		case "s":
			m.showSpirals = !m.showSpirals
		}
	}
	return m, nil
}

func (m *PlotModel) focusNext() {
	if m.table == nil || len(m.table.Records) == 0 {
		return
	}
	m.focusIdx++
	if m.focusIdx >= len(m.table.Records) {
		m.focusIdx = -1
	}
}

func (m *PlotModel) focusPrev() {
	if m.table == nil || len(m.table.Records) == 0 {
		return
	}
	m.focusIdx--
	if m.focusIdx < -1 {
		m.focusIdx = len(m.table.Records) - 1
	}
}

// Focused returns the focused record, if any.
func (m PlotModel) Focused() (constellation.Record, bool) {
	if m.table == nil || m.focusIdx < 0 || m.focusIdx >= len(m.table.Records) {
		return constellation.Record{}, false
	}
	return m.table.Records[m.focusIdx], true
}

// rMax is the outermost distance to fit, at least 1 AU.
func (m PlotModel) rMax() float64 {
	r := 1.0
	if m.table == nil {
		return r
	}
	for _, rec := range m.table.Records {
		if rec.Err == nil && rec.Distance > r {
			r = rec.Distance
		}
	}
	return r * 1.05
}

// radial maps a distance to [0, 1] of the plot radius.
func (m PlotModel) radial(r, rMax float64) float64 {
	if r <= 0 {
		return 0
	}
	if m.scaleMode == ScaleLog {
		return math.Log1p(10*r) / math.Log1p(10*rMax)
	}
	return r / rMax
}

// plotAngle converts a frame longitude to the polar-plot angle.
func (m PlotModel) plotAngle(lon float64) float64 {
	return astro.NormalizeAngle360(lon - m.table.Earth.Lon + m.table.Observation.LongOffset)
}

// canvas describes the projection of a frame onto the character grid.
type canvas struct {
	w, h   int
	cx, cy int
	radius float64 // columns per unit radial
}

func (m PlotModel) newCanvas() canvas {
	h := m.height - 3
	if h < 5 {
		h = 5
	}
	c := canvas{w: m.width, h: h, cx: m.width / 2, cy: h / 2}
	// Rows are about twice as tall as columns are wide.
	c.radius = float64(min(c.cx, c.cy*2)) * 0.9 * m.scale()
	return c
}

// project returns the grid cell of a point at distance r (AU) and polar
// angle angleDeg (0 = right, counter-clockwise).
func (m PlotModel) project(c canvas, r, angleDeg, rMax float64) (int, int) {
	u := m.radial(r, rMax) * c.radius
	theta := angleDeg * math.Pi / 180
	x := c.cx + int(math.Round(u*math.Cos(theta)))
	y := c.cy - int(math.Round(u*math.Sin(theta)*0.5))
	return x, y
}

// bodyPos tracks a body's screen position for label rendering.
type bodyPos struct {
	x, y      int
	name      string
	isFocused bool
}

// View renders the plot.
func (m PlotModel) View() string {
	if m.width < 40 || m.height < 10 {
		return "Terminal too small for plot view"
	}
	if m.table == nil {
		return "Waiting for ephemeris...\n"
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.buildCanvas(), m.renderHUD())
}

func (m PlotModel) buildCanvas() string {
	c := m.newCanvas()
	grid := make([][]rune, c.h)
	for y := range grid {
		grid[y] = make([]rune, c.w)
		for x := range grid[y] {
			grid[y][x] = ' '
		}
	}
	put := func(x, y int, r rune, overwrite bool) {
		if x < 0 || x >= c.w || y < 0 || y >= c.h {
			return
		}
		if overwrite || grid[y][x] == ' ' || grid[y][x] == glyphRing {
			grid[y][x] = r
		}
	}

	rMax := m.rMax()
	m.drawRings(c, rMax, put)

	if m.showSpirals {
		for _, rec := range m.table.Records {
			if rec.Err != nil {
				continue
			}
			for _, p := range rec.Spiral {
				x, y := m.project(c, p.R, m.plotAngle(p.LonDeg), rMax)
				put(x, y, glyphSpiral, false)
			}
		}
		if ref := m.table.Reference; ref != nil {
			for _, p := range ref.Spiral {
				x, y := m.project(c, p.R, m.plotAngle(p.LonDeg), rMax)
				put(x, y, glyphRefSpiral, false)
			}
		}
	}

	var positions []bodyPos

	if ref := m.table.Reference; ref != nil {
		r := ref.Distance
		if r == 0 {
			r = rMax * 0.98
		}
		x, y := m.project(c, r, m.plotAngle(ref.Lon), rMax)
		put(x, y, glyphReference, true)
		positions = append(positions, bodyPos{x: x, y: y, name: "ref"})
	}

	for i, rec := range m.table.Records {
		if rec.Err != nil {
			continue
		}
		x, y := m.project(c, rec.Distance, rec.PlotAngle, rMax)
		put(x, y, m.glyph(rec, i == m.focusIdx), true)
		positions = append(positions, bodyPos{x: x, y: y, name: rec.Name, isFocused: i == m.focusIdx})
	}

	put(c.cx, c.cy, glyphSun, true)

	m.renderLabels(grid, c.w, c.h, positions)
	return renderGrid(grid)
}

func (m PlotModel) drawRings(c canvas, rMax float64, put func(x, y int, r rune, overwrite bool)) {
	for _, au := range []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30} {
		if au > rMax {
			break
		}
		r := m.radial(au, rMax) * c.radius
		if r < 1 {
			continue
		}
		steps := int(2 * math.Pi * r)
		steps = max(8, min(steps, 360))
		for i := 0; i < steps; i++ {
			x, y := m.project(c, au, 360*float64(i)/float64(steps), rMax)
			put(x, y, glyphRing, false)
		}
	}
}

func (m PlotModel) glyph(rec constellation.Record, focused bool) rune {
	if focused {
		return glyphFocused
	}
	if rec.NAIFID == ephem.NAIFEarth {
		return glyphEarth
	}
	if t, ok := ephem.GetTargetByNAIF(rec.NAIFID); ok && t.Kind == ephem.KindPlanet {
		return glyphPlanet
	}
	return glyphCraft
}

// renderLabels draws body labels on the canvas based on label mode.
func (m PlotModel) renderLabels(grid [][]rune, width, height int, positions []bodyPos) {
	if m.labelMode == LabelNone {
		return
	}
	for _, pos := range positions {
		if m.labelMode == LabelFocused && !pos.isFocused {
			continue
		}
		labelX, labelY := pos.x+2, pos.y
		if labelY < 0 || labelY >= height || labelX >= width {
			continue
		}
		text := pos.name
		if pos.isFocused {
			text = "◄ " + pos.name
		}
		for i, r := range []rune(text) {
			x := labelX + i
			if x >= width {
				break
			}
			if x >= 0 && (grid[labelY][x] == ' ' || grid[labelY][x] == glyphRing || grid[labelY][x] == glyphSpiral) {
				grid[labelY][x] = r
			}
		}
	}
}

func renderGrid(grid [][]rune) string {
	ringStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	spiralStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("67"))
	refSpiralStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	sunStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	earthStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	planetStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	craftStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	focusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Bold(true)
	refStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("249"))

	var b strings.Builder
	for _, row := range grid {
		for _, ch := range row {
			var style lipgloss.Style
			switch ch {
			case ' ':
				b.WriteRune(ch)
				continue
			case glyphRing:
				style = ringStyle
			case glyphSpiral:
				style = spiralStyle
			case glyphRefSpiral:
				style = refSpiralStyle
			case glyphSun:
				style = sunStyle
			case glyphEarth:
				style = earthStyle
			case glyphPlanet:
				style = planetStyle
			case glyphCraft:
				style = craftStyle
			case glyphFocused, '◄':
				style = focusStyle
			case glyphReference:
				style = refStyle
			default:
				style = labelStyle
			}
			b.WriteString(style.Render(string(ch)))
		}
		b.WriteRune('\n')
	}
	return b.String()
}

func (m PlotModel) renderHUD() string {
	var b strings.Builder

	hudHeader := lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	value := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	if rec, ok := m.Focused(); ok {
		b.WriteString(hudHeader.Render("◆ " + rec.Name))
		if rec.Err != nil {
			b.WriteString("  ")
			b.WriteString(errorStyle.Render(rec.Err.Error()))
		} else {
			fields := []struct{ k, v string }{
				{"Lon", fmt.Sprintf("%.1f°", rec.Lon)},
				{"Lat", fmt.Sprintf("%.1f°", rec.Lat)},
				{"r", fmt.Sprintf("%.3f AU", rec.Distance)},
				{"Foot", fmt.Sprintf("%.1f°", rec.FootpointLon)},
				{"ΔEarth", fmt.Sprintf("%.1f°", rec.EarthLonSep)},
			}
			for _, f := range fields {
				b.WriteString("  ")
				b.WriteString(label.Render(f.k + ":"))
				b.WriteString(value.Render(f.v))
			}
		}
	} else {
		b.WriteString(hudHeader.Render("☉ Sun"))
		b.WriteString("  ")
		b.WriteString(dim.Render(fmt.Sprintf("view from solar north, Earth at %.0f°", m.table.Observation.LongOffset)))
	}
	b.WriteString("\n")

	modeName := "linear"
	if m.scaleMode == ScaleLog {
		modeName = "log"
	}
	labelName := [...]string{"off", "focus", "all"}[m.labelMode]
	spirals := "off"
	if m.showSpirals {
		spirals = "on"
	}

	b.WriteString(dim.Render("Scale:"))
	b.WriteString(value.Render(modeName))
	b.WriteString("  ")
	b.WriteString(dim.Render("Zoom:"))
	b.WriteString(value.Render(fmt.Sprintf("%.2gx", m.scale())))
	b.WriteString("  ")
	b.WriteString(dim.Render("Labels:"))
	b.WriteString(value.Render(labelName))
	b.WriteString("  ")
	b.WriteString(dim.Render("Spirals:"))
	b.WriteString(value.Render(spirals))

	return b.String()
}
