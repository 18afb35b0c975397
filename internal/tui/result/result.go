package result

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"benchq/internal/metrics"
	"benchq/internal/storage"
	"benchq/internal/tui/styles"
)

// Model shows one recorded session: its run counts and the per
// environment/endpoint spread across iterations.
type Model struct {
	Session storage.Session
	Groups  []metrics.GroupSummary
	Missing int

	Width  int
	Height int
}

// NewModel summarises results, which should be the session's runs. Run IDs
// the store no longer has are counted in missing.
func NewModel(session storage.Session, results []metrics.RunResult, missing int) Model {
	return Model{
		Session: session,
		Groups:  metrics.Summarize(results),
		Missing: missing,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	}
	return m, nil
}

func (m Model) View() string {
	s := strings.Builder{}
	sum := m.Session.Summary

	s.WriteString(styles.Title.Render("📊 Session " + m.Session.ID))
	s.WriteString("\n\n")

	// 1. Overview
	s.WriteString(styles.Active.Render("Overview"))
	s.WriteString("\n")

	overview := fmt.Sprintf(
		"Started:      %s\nDuration:     %s\nEnvironments: %d\nEndpoints:    %d\nIterations:   %d",
		m.Session.Timestamp.Format(time.RFC822),
		(time.Duration(sum.ElapsedSeconds * float64(time.Second))).Round(time.Millisecond),
		len(m.Session.Config.Environments),
		len(m.Session.Config.Endpoints),
		m.Session.Config.Iterations,
	)
	runs := fmt.Sprintf("%s %d\n%s %d\n%s %d",
		styles.Success.Render("Complete:"), sum.Complete,
		styles.Warn.Render("Skipped: "), sum.Skipped,
		styles.Error.Render("Failed:  "), sum.Failed,
	)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, styles.Box.Render(overview), " ", styles.Box.Render(runs)))
	s.WriteString("\n\n")

	// 2. Per pair
	s.WriteString(styles.Active.Render("Results (mean ± stdev across iterations)"))
	s.WriteString("\n")

	if len(m.Groups) == 0 {
		s.WriteString(styles.Subtle.Render("No completed runs in this session."))
	}
	for _, g := range m.Groups {
		body := fmt.Sprintf(
			"%s  %s\nRPS:      %.2f ± %.2f (cv %.1f%%)\nAvg:      %.2f ± %.2f ms\nP99:      %.2f ± %.2f ms\nErrors:   %s\nCPU:      %.1f%%   Mem: %.0f MB",
			styles.Value.Render(g.Environment), styles.Text.Render(g.Endpoint),
			g.RPS.Mean, g.RPS.StdDev, g.RPS.CV(),
			g.AvgLatencyMs.Mean, g.AvgLatencyMs.StdDev,
			g.P99LatencyMs.Mean, g.P99LatencyMs.StdDev,
			styles.ErrorRate(g.ErrorRate.Mean).Render(fmt.Sprintf("%.2f%%", g.ErrorRate.Mean)),
			g.CPUPercent.Mean, g.MemoryMB.Mean,
		)
		s.WriteString(styles.Box.Render(body))
		s.WriteString("\n")
	}

	if m.Missing > 0 {
		s.WriteString(styles.Warn.Render(fmt.Sprintf("%d run(s) of this session are no longer stored", m.Missing)))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render("esc back • q quit"))

	return s.String()
}
