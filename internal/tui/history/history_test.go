package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchq/internal/config"
	"benchq/internal/metrics"
	"benchq/internal/storage"
)

func seed(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Now()
	var ids []string
	for it := 1; it <= 2; it++ {
		r := metrics.RunResult{
			ID:          fmt.Sprintf("run-%d", it),
			Timestamp:   now.Add(time.Duration(it) * time.Second),
			Iteration:   it,
			Environment: "staging",
			Endpoint:    "fast",
			RPS:         float64(100 * it),
		}
		require.NoError(t, store.Save(r))
		ids = append(ids, r.ID)
	}
	ids = append(ids, "gone")

	_, err = store.SaveSession(storage.Session{
		Timestamp: now,
		Config:    config.Config{Environments: []config.Environment{{Name: "staging"}}, Iterations: 2},
		Summary:   storage.SessionSummary{Complete: 2, RunIDs: ids},
	})
	require.NoError(t, err)
	return store
}

func TestHistoryListsSessions(t *testing.T) {
	m := NewModel(seed(t))
	require.NoError(t, m.Err)
	require.Len(t, m.Sessions, 1)
	assert.Contains(t, m.View(), "staging")
}

func TestHistoryOpensAndClosesSession(t *testing.T) {
	var model tea.Model = NewModel(seed(t))

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m := model.(Model)
	require.NotNil(t, m.Detail)
	require.Len(t, m.Detail.Groups, 1)
	assert.Equal(t, 2, m.Detail.Groups[0].Runs)
	assert.Equal(t, 150.0, m.Detail.Groups[0].RPS.Mean)
	assert.Equal(t, 1, m.Detail.Missing)
	assert.Contains(t, m.View(), "no longer stored")

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, model.(Model).Detail)
}

func TestHistoryEmptyStore(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer store.Close()

	m := NewModel(store)
	assert.Empty(t, m.Sessions)
	assert.Contains(t, m.View(), "No sessions recorded")
}
