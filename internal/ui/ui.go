// Package ui provides the terminal user interface using Bubble Tea.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-solarmach/internal/astro"
	"github.com/litescript/ls-solarmach/internal/constellation"
	"github.com/litescript/ls-solarmach/internal/version"
)

// ViewMode represents the current UI view.
type ViewMode int

const (
	ViewTable ViewMode = iota
	ViewPlot
)

// Time steps bound to keys.
const (
	stepHour     = time.Hour
	stepDay      = 24 * time.Hour
	stepRotation = time.Duration(27.2753 * float64(24*time.Hour)) // synodic Carrington rotation
)

// Runner computes a constellation table. *constellation.Model implements it.
type Runner interface {
	Run(ctx context.Context, req constellation.Request) (*constellation.Table, error)
}

// Msg types for Bubble Tea
type (
	// AnimTickMsg triggers spinner updates while a computation runs.
	AnimTickMsg time.Time

	// TableMsg carries a finished computation. Results whose Seq is not the
	// latest request are dropped.
	TableMsg struct {
		Seq     int
		Table   *constellation.Table
		Err     error
		Elapsed time.Duration
	}
)

// Model is the root Bubble Tea model.
type Model struct {
	ctx    context.Context
	runner Runner
	req    constellation.Request

	instant time.Time
	frame   astro.Frame

	// UI state
	viewMode  ViewMode
	width     int
	height    int
	ready     bool
	statusMsg string
	animTick  int

	// Computation state
	seq       int
	computing bool
	lastErr   error
	elapsed   time.Duration
	current   *constellation.Table

	// Sub-models
	table TableModel
	plot  PlotModel
}

// New creates the root UI model for a request. The request's date and
// frame become the initial instant and frame; both can then be changed
// interactively.
func New(ctx context.Context, r Runner, req constellation.Request) (Model, error) {
	now := time.Now
	if req.Now != nil {
		now = req.Now
	}
	instant, err := constellation.ParseInstant(req.Date, now())
	if err != nil {
		return Model{}, err
	}
	frame, err := astro.ParseFrame(req.Frame)
	if err != nil {
		return Model{}, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	return Model{
		ctx:      ctx,
		runner:   r,
		req:      req,
		instant:  instant,
		frame:    frame,
		viewMode: ViewTable,
		table:    NewTableModel(),
		plot:     NewPlotModel(),
	}, nil
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.recompute()
}

// recompute starts a computation for the current instant and frame.
func (m *Model) recompute() tea.Cmd {
	m.seq++
	m.computing = true

	req := m.req
	req.Date = m.instant.Format(time.RFC3339)
	req.Frame = strings.ToLower(m.frame.String())
	seq, ctx, runner := m.seq, m.ctx, m.runner

	compute := func() tea.Msg {
		start := time.Now()
		t, err := runner.Run(ctx, req)
		return TableMsg{Seq: seq, Table: t, Err: err, Elapsed: time.Since(start)}
	}
	return tea.Batch(compute, animTickCmd())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "1":
			m.viewMode = ViewTable
		case "2":
			m.viewMode = ViewPlot
		case "tab":
			m.viewMode = (m.viewMode + 1) % 2

		case "left", "h":
			m.instant = m.instant.Add(-stepDay)
			cmds = append(cmds, m.recompute())
		case "right", "l":
			m.instant = m.instant.Add(stepDay)
			cmds = append(cmds, m.recompute())
		case "[":
			m.instant = m.instant.Add(-stepHour)
			cmds = append(cmds, m.recompute())
		case "]":
			m.instant = m.instant.Add(stepHour)
			cmds = append(cmds, m.recompute())
		case "pgup":
			m.instant = m.instant.Add(-stepRotation)
			cmds = append(cmds, m.recompute())
		case "pgdown":
			m.instant = m.instant.Add(stepRotation)
			cmds = append(cmds, m.recompute())
		case "t":
			m.instant = time.Now().UTC().Truncate(time.Minute)
			cmds = append(cmds, m.recompute())
		case "r":
			cmds = append(cmds, m.recompute())

		case "f":
			if cmd := m.toggleFrame(); cmd != nil {
				cmds = append(cmds, cmd)
			}

		default:
			cmds = append(cmds, m.updateActiveView(msg))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		// Title and status take 3 lines, footer 2.
		contentHeight := msg.Height - 5
		m.table = m.table.SetSize(msg.Width, contentHeight)
		m.plot = m.plot.SetSize(msg.Width, contentHeight)

	case AnimTickMsg:
		if m.computing {
			m.animTick++
			cmds = append(cmds, animTickCmd())
		}

	case TableMsg:
		if msg.Seq != m.seq {
			break
		}
		m.computing = false
		m.elapsed = msg.Elapsed
		m.lastErr = msg.Err
		if msg.Err == nil {
			m.current = msg.Table
			m.statusMsg = ""
			m.table = m.table.UpdateData(msg.Table)
			m.plot = m.plot.UpdateData(msg.Table)
		}

	default:
		cmds = append(cmds, m.updateActiveView(msg))
	}

	return m, tea.Batch(cmds...)
}

// toggleFrame switches between Carrington and Stonyhurst. A reference
// longitude is converted with the Earth baseline of the displayed instant so
// it keeps pointing at the same location on the Sun. While that baseline is
// missing or stale the toggle is refused.
func (m *Model) toggleFrame() tea.Cmd {
	next := astro.FrameStonyhurst
	if m.frame == astro.FrameStonyhurst {
		next = astro.FrameCarrington
	}

	if ref := m.req.Reference; ref != nil {
		switch {
		case m.current == nil:
			m.statusMsg = "frame change needs a computed table"
			return nil
		case m.computing || !m.current.Observation.Instant.Equal(m.instant):
			m.statusMsg = "frame change waits for the table at " + m.instant.Format("2006-01-02 15:04")
			return nil
		}
		l0 := m.current.Earth.CarringtonLon
		carr := astro.FromFrame(m.frame, ref.Lon, l0)
		converted := *ref
		converted.Lon = astro.ToFrame(next, carr, l0)
		m.req.Reference = &converted
	}

	m.frame = next
	return m.recompute()
}

func (m *Model) updateActiveView(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.viewMode {
	case ViewTable:
		m.table, cmd = m.table.Update(msg)
	case ViewPlot:
		m.plot, cmd = m.plot.Update(msg)
	}
	return cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var content string
	switch m.viewMode {
	case ViewTable:
		content = m.table.View()
	case ViewPlot:
		content = m.plot.View()
	}

	return m.renderHeader() + "\n" + content + "\n" + m.renderFooter()
}

func (m Model) renderHeader() string {
	return m.renderTitle() + "\n" + m.renderStatusLine()
}

func (m Model) renderTitle() string {
	title := "LS-SOLARMACH"
	runes := []rune(title)

	var b strings.Builder
	b.WriteString("  ")
	for col, r := range runes {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(gradientColor(col, 0, len(runes), 1))).Bold(true)
		b.WriteString(style.Render(string(r)))
	}

	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("60"))
	b.WriteString(muted.Render(fmt.Sprintf("  Solar Magnetic Connection · v%s", version.Version)))
	return b.String()
}

// gradientColor returns a hex color for a position in the title gradient:
// blue -> purple -> magenta -> pink, darkening toward the bottom.
func gradientColor(col, row, width, height int) string {
	xRatio := float64(col) / float64(width)
	yRatio := float64(row) / float64(height)

	var r, g, b float64
	if xRatio < 0.33 {
		t := xRatio / 0.33
		r = 59 + t*(139-59)
		g = 130 + t*(92-130)
		b = 246
	} else if xRatio < 0.66 {
		t := (xRatio - 0.33) / 0.33
		r = 139 + t*(217-139)
		g = 92 + t*(70-92)
		b = 246 + t*(239-246)
	} else {
		t := (xRatio - 0.66) / 0.34
		r = 217 + t*(236-217)
		g = 70 + t*(72-70)
		b = 239 + t*(153-239)
	}

	brightness := 1.0 - (yRatio * 0.5)
	return fmt.Sprintf("#%02X%02X%02X", clampByte(r*brightness), clampByte(g*brightness), clampByte(b*brightness))
}

func clampByte(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return int(v)
	}
}

func (m Model) renderStatusLine() string {
	accent := lipgloss.NewStyle().Foreground(lipgloss.Color("#9D4EDD")).Bold(true)
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("60"))

	tabs := []string{"[1] Table", "[2] Plot"}
	var parts []string
	for i, tab := range tabs {
		if ViewMode(i) == m.viewMode {
			parts = append(parts, accent.Render("▶ "+tab))
		} else {
			parts = append(parts, dim.Render("  "+tab))
		}
	}

	when := accent.Render(m.instant.Format("2006-01-02 15:04 MST"))
	frame := dim.Render(m.frame.String())
	return "  " + strings.Join(parts, "  ") + "    " + when + "  " + frame
}

func (m Model) renderFooter() string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("60"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E84A27"))
	accent := lipgloss.NewStyle().Foreground(lipgloss.Color("#7B2CBF"))

	var status string
	switch {
	case m.computing:
		spinnerFrames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		status = accent.Render(spinnerFrames[m.animTick%len(spinnerFrames)]) + dim.Render(" computing...")
	case m.lastErr != nil:
		status = errStyle.Render("ERROR: " + errorSummary(m.lastErr))
	case m.current != nil:
		status = dim.Render(fmt.Sprintf("%s (%s)", m.current.Provider, m.elapsed.Round(time.Millisecond)))
		if n := len(m.current.Failures()); n > 0 {
			status += errStyle.Render(fmt.Sprintf("  %d unavailable", n))
		}
	}

	help := "←/→: ±1 day | [/]: ±1 h | pgup/pgdn: ±1 rot | t: now | f: frame"
	switch m.viewMode {
	case ViewTable:
		help += " | ↑↓: select"
	case ViewPlot:
		help += " | j/k: focus | +/-: zoom | z: scale | s: spirals | a: labels"
	}

	footer := "  " + status + "  " + dim.Render("|") + "  " + dim.Render(help)
	if m.statusMsg != "" {
		footer += "\n  " + dim.Render(m.statusMsg)
	}
	return footer
}

// errorSummary shortens batch errors to their first failure.
func errorSummary(err error) string {
	var batch *constellation.BatchError
	if errors.As(err, &batch) && len(batch.Failures) > 0 {
		return fmt.Sprintf("%d of %d bodies failed: %v", len(batch.Failures), batch.Total, batch.Failures[0])
	}
	return err.Error()
}

// Instant returns the observation time currently displayed.
func (m Model) Instant() time.Time {
	return m.instant
}

// Frame returns the current coordinate frame.
func (m Model) Frame() astro.Frame {
	return m.frame
}

func animTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return AnimTickMsg(t)
	})
}
