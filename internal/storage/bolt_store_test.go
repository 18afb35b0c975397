package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchq/internal/config"
	"benchq/internal/metrics"
)

func openTemp(t *testing.T) *Store {
	s, err := Open(filepath.Join(t.TempDir(), "nested", "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func result(id string, ts time.Time) metrics.RunResult {
	return metrics.RunResult{
		ID:               id,
		Timestamp:        ts,
		Iteration:        1,
		Environment:      "docker",
		Endpoint:         "fast",
		RPS:              123.456789,
		P99LatencyMs:     0.1 + 0.2,
		TotalRequests:    50,
		NetworkBytesRecv: 1 << 40,
	}
}

func TestStoreSaveListGet(t *testing.T) {
	s := openTemp(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(result("b", base.Add(time.Second))))
	require.NoError(t, s.Emit(result("a", base)))

	items, err := s.List()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID, "oldest first")
	assert.Equal(t, "b", items[1].ID)

	got, err := s.Get("b")
	require.NoError(t, err)
	assert.Equal(t, 123.456789, got.RPS)
	assert.Equal(t, 0.1+0.2, got.P99LatencyMs)
	assert.Equal(t, uint64(1<<40), got.NetworkBytesRecv)
	assert.True(t, got.Timestamp.Equal(base.Add(time.Second)))

	_, err = s.Get("missing")
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}

func TestStoreRejectsResultWithoutID(t *testing.T) {
	s := openTemp(t)
	assert.Error(t, s.Save(metrics.RunResult{}))
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(result("x", time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	items, err := s.List()
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, path, s.Path())
}

func TestStoreSessions(t *testing.T) {
	s := openTemp(t)
	base := time.Now()

	cfg := config.Config{Iterations: 3}
	_, err := s.SaveSession(Session{Timestamp: base, Config: cfg, Summary: SessionSummary{Complete: 1}})
	require.NoError(t, err)
	id, err := s.SaveSession(Session{Timestamp: base.Add(time.Minute), Summary: SessionSummary{Skipped: 2}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	sessions, err := s.Sessions(0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, id, sessions[0].ID, "newest first")
	assert.Equal(t, 3, sessions[1].Config.Iterations)

	limited, err := s.Sessions(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
