package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"benchq/internal/stats"
	"benchq/internal/tui/components"
	"benchq/internal/tui/styles"
)

// Model is the panel for the run currently dispatching.
type Model struct {
	Run      string
	Expected int
	Stats    stats.Snapshot
	Progress progress.Model

	RpsLine     components.Sparkline
	LatencyLine components.Sparkline

	LastUpdate time.Time
	LastReqs   uint64

	Width int
}

func NewModel() Model {
	return Model{
		Progress:    progress.New(progress.WithGradient("#7D56F4", "#04B575"), progress.WithoutPercentage()),
		RpsLine:     components.NewSparkline(40, "RPS", "req/s", styles.Active),
		LatencyLine: components.NewSparkline(40, "Latency P90", "ms", styles.Warn),
		LastUpdate:  time.Now(),
	}
}

// StartRun resets the panel for a new batch of expected requests.
func (m Model) StartRun(name string, expected int) Model {
	m.Run = name
	m.Expected = expected
	m.Stats = stats.Snapshot{}
	m.LastReqs = 0
	m.LastUpdate = time.Now()
	return m
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stats.Snapshot:
		now := time.Now()
		dt := now.Sub(m.LastUpdate).Seconds()
		if dt < 0.01 {
			dt = 0.01
		}

		// counters reset between runs
		delta := uint64(0)
		if msg.Requests >= m.LastReqs {
			delta = msg.Requests - m.LastReqs
		}
		m.RpsLine.Add(float64(delta) / dt)
		m.LatencyLine.Add(msg.P90Ms)

		m.Stats = msg
		m.LastReqs = msg.Requests
		m.LastUpdate = now

		pct := 0.0
		if m.Expected > 0 {
			pct = float64(msg.Requests) / float64(m.Expected)
		}
		if pct > 1.0 {
			pct = 1.0
		}
		return m, m.Progress.SetPercent(pct)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Progress.Width = msg.Width - 8

		half := (msg.Width / 2) - 8
		if half < 10 {
			half = 10
		}
		m.RpsLine.Width = half
		m.LatencyLine.Width = half
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		if p, ok := prog.(progress.Model); ok {
			m.Progress = p
		}
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	s := strings.Builder{}

	run := m.Run
	if run == "" {
		run = "waiting for first run"
	}
	s.WriteString(styles.Title.Render("Now: " + run))
	s.WriteString("\n")

	errRate := m.Stats.ErrorRate()
	col1 := fmt.Sprintf("REQ: %d/%d\nINF: %d", m.Stats.Requests, m.Expected, m.Stats.Inflight)
	col2 := fmt.Sprintf("ERR: %.2f%%\nFAIL: %d", errRate, m.Stats.Fail)
	col3 := fmt.Sprintf("OK: %d\nKB: %d", m.Stats.Success, m.Stats.Bytes/1024)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(styles.ErrorRate(errRate).Render(col2)),
		styles.Box.Render(col3),
	))
	s.WriteString("\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RpsLine.View()),
		styles.Box.Render(m.LatencyLine.View()),
	))
	s.WriteString("\n")

	s.WriteString(styles.Subtle.Render(fmt.Sprintf(
		"  P50: %.2f ms  |  P90: %.2f ms  |  P99: %.2f ms  |  Max: %.2f ms",
		m.Stats.P50Ms, m.Stats.P90Ms, m.Stats.P99Ms, m.Stats.MaxMs,
	)))
	s.WriteString("\n  ")
	s.WriteString(m.Progress.View())

	return s.String()
}
