package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"benchq/internal/config"
	"benchq/internal/metrics"
	"benchq/internal/runner"
	"benchq/internal/stats"
	"benchq/internal/tui/live"
	"benchq/internal/tui/styles"
)

type ClearStatusMsg struct{}

func clearStatusCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(_ time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}

type EventMsg runner.Event
type StatsMsg stats.Snapshot
type DoneMsg struct{ Report *runner.Report }

// Model is the matrix dashboard: overall progress, the live panel for the
// current run and a table of finished runs.
type Model struct {
	Cfg *config.Config

	Events    runner.EventChan
	Snapshots chan stats.Snapshot
	Done      chan *runner.Report
	Cancel    context.CancelFunc

	Total    int
	Finished int
	Failed   int
	Skipped  int
	Results  []metrics.RunResult
	Report   *runner.Report

	Progress progress.Model
	Live     live.Model
	Table    table.Model

	ExportDir string
	StatusMsg string

	Width  int
	Height int
}

var columns = []table.Column{
	{Title: "Environment", Width: 14},
	{Title: "Endpoint", Width: 12},
	{Title: "It", Width: 3},
	{Title: "State", Width: 9},
	{Title: "RPS", Width: 9},
	{Title: "Avg ms", Width: 8},
	{Title: "P99 ms", Width: 8},
	{Title: "Err %", Width: 6},
	{Title: "CPU %", Width: 6},
}

func NewModel(cfg *config.Config, events runner.EventChan, snapshots chan stats.Snapshot, done chan *runner.Report, cancel context.CancelFunc) Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(8),
		table.WithFocused(true),
	)

	return Model{
		Cfg:       cfg,
		Events:    events,
		Snapshots: snapshots,
		Done:      done,
		Cancel:    cancel,
		Total:     cfg.TotalRuns(),
		Progress:  progress.New(progress.WithDefaultGradient()),
		Live:      live.NewModel(),
		Table:     t,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.Events),
		waitForStats(m.Snapshots),
		waitForDone(m.Done),
	)
}

func waitForEvent(sub runner.EventChan) tea.Cmd {
	return func() tea.Msg {
		return EventMsg(<-sub)
	}
}

func waitForStats(sub chan stats.Snapshot) tea.Cmd {
	return func() tea.Msg {
		return StatsMsg(<-sub)
	}
}

func waitForDone(sub chan *runner.Report) tea.Cmd {
	return func() tea.Msg {
		return DoneMsg{Report: <-sub}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case ClearStatusMsg:
		m.StatusMsg = ""
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.Cancel != nil {
				m.Cancel()
			}
			return m, tea.Quit

		case "ctrl+p":
			base, err := exportResults(m.Results, m.ExportDir, time.Now())
			if err != nil {
				m.StatusMsg = fmt.Sprintf("Export failed: %v", err)
			} else {
				m.StatusMsg = fmt.Sprintf("Exported to %s.{csv,json}", base)
			}
			return m, clearStatusCmd()
		}

		var cmd tea.Cmd
		m.Table, cmd = m.Table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 8
		if h := msg.Height - 24; h > 3 {
			m.Table.SetHeight(h)
		}
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(msg)
		return m, cmd

	case EventMsg:
		cmds = append(cmds, m.handleEvent(runner.Event(msg)), waitForEvent(m.Events))

	case StatsMsg:
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(stats.Snapshot(msg))
		cmds = append(cmds, cmd, waitForStats(m.Snapshots))

	case DoneMsg:
		m.Report = msg.Report
		if r := msg.Report; r != nil {
			// dropped events must not leave the counters short
			m.Finished = r.Total()
			m.Failed = r.Counts[runner.StateFailed]
			m.Skipped = r.Counts[runner.StateSkipped]
			m.Results = r.Results
		}
		m.StatusMsg = "Matrix finished. <ctrl+p> export, <q> quit."
		cmds = append(cmds, m.Progress.SetPercent(1.0))

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		if p, ok := prog.(progress.Model); ok {
			m.Progress = p
		}
		cmds = append(cmds, cmd)
		m.Live, cmd = m.Live.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleEvent(ev runner.Event) tea.Cmd {
	key := ev.Key
	switch ev.State {
	case runner.StateDispatching:
		name := fmt.Sprintf("%s / %s #%d", key.Environment, key.Endpoint, key.Iteration)
		m.Live = m.Live.StartRun(name, m.requestCount(key.Endpoint))
		return nil
	case runner.StateComplete:
		m.Results = append(m.Results, *ev.Result)
	case runner.StateSkipped:
		m.Skipped++
	case runner.StateFailed:
		m.Failed++
	default:
		return nil
	}

	m.Finished++
	m.Table.SetRows(append(m.Table.Rows(), row(ev)))

	pct := 0.0
	if m.Total > 0 {
		pct = float64(m.Finished) / float64(m.Total)
	}
	return m.Progress.SetPercent(pct)
}

func (m Model) requestCount(endpoint string) int {
	for _, ep := range m.Cfg.Endpoints {
		if ep.Name == endpoint {
			return ep.RequestCount
		}
	}
	return 0
}

func row(ev runner.Event) table.Row {
	r := table.Row{ev.Key.Environment, ev.Key.Endpoint, fmt.Sprint(ev.Key.Iteration), ev.State.String(), "-", "-", "-", "-", "-"}
	if res := ev.Result; res != nil && ev.State == runner.StateComplete {
		r[4] = fmt.Sprintf("%.1f", res.RPS)
		r[5] = fmt.Sprintf("%.2f", res.AvgLatencyMs)
		r[6] = fmt.Sprintf("%.2f", res.P99LatencyMs)
		r[7] = fmt.Sprintf("%.1f", res.ErrorRatePercent)
		r[8] = fmt.Sprintf("%.1f", res.CPUUsagePercent)
	}
	return r
}

func (m Model) View() string {
	s := strings.Builder{}

	s.WriteString(styles.Title.Render("benchq matrix"))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("  %s %s %s   %d/%d runs\n",
		styles.State("COMPLETE")+fmt.Sprintf(" %d", len(m.Results)),
		styles.State("SKIPPED")+fmt.Sprintf(" %d", m.Skipped),
		styles.State("FAILED")+fmt.Sprintf(" %d", m.Failed),
		m.Finished, m.Total,
	))
	s.WriteString("  " + m.Progress.View() + "\n\n")

	if m.Report == nil {
		s.WriteString(m.Live.View())
		s.WriteString("\n\n")
	}

	s.WriteString(styles.Box.Render(m.Table.View()))
	s.WriteString("\n")

	footer := lipgloss.JoinHorizontal(lipgloss.Center,
		styles.RenderKey("↑/↓", "scroll"), "  ",
		styles.RenderKey("ctrl+p", "export"), "  ",
		styles.RenderKey("q", "quit"),
	)
	if m.StatusMsg != "" {
		footer += "   " + styles.Value.Render(m.StatusMsg)
	}
	s.WriteString(styles.FooterBase.Render(footer))

	return s.String()
}

// Run drives r under a full-screen dashboard. Quitting early cancels the
// matrix; the report covers whatever finished.
func Run(ctx context.Context, cfg *config.Config, r *runner.Runner, exportDir string) (*runner.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(runner.EventChan, 256)
	snapshots := make(chan stats.Snapshot, 16)
	done := make(chan *runner.Report, 1)
	r.Events = events

	result := make(chan *runner.Report, 1)
	go func() {
		report := r.Run(ctx)
		result <- report
		done <- report
	}()
	if r.Live != nil {
		go r.Live.Stream(ctx, 200*time.Millisecond, snapshots)
	}

	m := NewModel(cfg, events, snapshots, done, cancel)
	m.ExportDir = exportDir
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()

	cancel()
	report := <-result
	if err != nil && ctx.Err() == nil {
		return report, err
	}
	return report, nil
}
