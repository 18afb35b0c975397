package history

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"benchq/internal/metrics"
	"benchq/internal/storage"
	"benchq/internal/tui/result"
	"benchq/internal/tui/styles"
)

// Store is the part of storage.Store the browser reads.
type Store interface {
	Sessions(limit int) ([]storage.Session, error)
	Get(id string) (*metrics.RunResult, error)
}

// Model lists recorded sessions; enter opens one.
type Model struct {
	Store    Store
	Table    table.Model
	Sessions []storage.Session
	Detail   *result.Model
	Err      error

	Width  int
	Height int
}

func NewModel(store Store) Model {
	columns := []table.Column{
		{Title: "Time", Width: 20},
		{Title: "Environments", Width: 30},
		{Title: "Runs", Width: 8},
		{Title: "Skipped", Width: 8},
		{Title: "Failed", Width: 8},
		{Title: "Duration", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m := Model{
		Store: store,
		Table: t,
	}
	m.Refresh()
	return m
}

func (m *Model) Refresh() {
	items, err := m.Store.Sessions(0)
	if err != nil {
		m.Err = err
		return
	}
	m.Sessions = items

	rows := make([]table.Row, len(items))
	for i, item := range items {
		envs := ""
		for j, env := range item.Config.Environments {
			if j > 0 {
				envs += ","
			}
			envs += env.Name
		}
		rows[i] = table.Row{
			item.Timestamp.Format(time.RFC822),
			envs,
			fmt.Sprintf("%d", item.Summary.Complete),
			fmt.Sprintf("%d", item.Summary.Skipped),
			fmt.Sprintf("%d", item.Summary.Failed),
			fmt.Sprintf("%.1fs", item.Summary.ElapsedSeconds),
		}
	}
	m.Table.SetRows(rows)
}

// open loads the runs of the selected session.
func (m *Model) open(i int) {
	if i < 0 || i >= len(m.Sessions) {
		return
	}
	session := m.Sessions[i]

	var results []metrics.RunResult
	missing := 0
	for _, id := range session.Summary.RunIDs {
		r, err := m.Store.Get(id)
		if errors.Cause(err) == storage.ErrNotFound {
			missing++
			continue
		}
		if err != nil {
			m.Err = err
			return
		}
		results = append(results, *r)
	}

	detail := result.NewModel(session, results, missing)
	detail.Width, detail.Height = m.Width, m.Height
	m.Detail = &detail
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)
		if m.Detail != nil {
			d, _ := m.Detail.Update(msg)
			m.Detail = &d
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.Detail = nil
			return m, nil
		case "enter":
			if m.Detail == nil {
				m.open(m.Table.Cursor())
			}
			return m, nil
		case "r":
			m.Refresh()
			return m, nil
		}
	}

	if m.Detail != nil {
		return m, nil
	}
	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.Detail != nil {
		return m.Detail.View()
	}

	s := styles.Title.Render("🗂  Recorded sessions") + "\n\n"
	if m.Err != nil {
		s += styles.Error.Render("Error: "+m.Err.Error()) + "\n\n"
	}
	if len(m.Sessions) == 0 {
		s += styles.Subtle.Render("No sessions recorded yet. Run `benchq run` first.") + "\n"
	} else {
		s += styles.Box.Render(m.Table.View()) + "\n"
	}
	s += styles.Subtle.Render("↑/↓ move • enter open • r refresh • q quit")
	return s
}

// Run shows the browser until the user quits.
func Run(store Store) error {
	_, err := tea.NewProgram(NewModel(store), tea.WithAltScreen()).Run()
	return err
}
