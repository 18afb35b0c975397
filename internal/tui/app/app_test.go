package app

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchq/internal/config"
	"benchq/internal/metrics"
	"benchq/internal/runner"
)

func testModel(t *testing.T) Model {
	cfg := &config.Config{
		Environments:       []config.Environment{{Name: "docker", BaseAddress: "localhost:8000"}},
		Endpoints:          []config.Endpoint{{Name: "fast", Path: "/fast", RequestCount: 50}},
		Iterations:         2,
		ConcurrencyLimit:   5,
		RequestTimeoutMs:   1000,
		SamplingIntervalMs: 500,
	}
	require.NoError(t, cfg.Validate())
	return NewModel(cfg, nil, nil, nil, nil)
}

func TestModelTracksRunEvents(t *testing.T) {
	m := testModel(t)
	key := metrics.RunKey{Environment: "docker", Endpoint: "fast", Iteration: 1}

	m.handleEvent(runner.Event{Key: key, State: runner.StateDispatching})
	assert.Equal(t, 50, m.Live.Expected)
	assert.Equal(t, 0, m.Finished)

	res := metrics.RunResult{Environment: "docker", Endpoint: "fast", RPS: 123.45, ErrorRatePercent: 2}
	m.handleEvent(runner.Event{Key: key, State: runner.StateComplete, Result: &res})
	key.Iteration = 2
	m.handleEvent(runner.Event{Key: key, State: runner.StateFailed})

	assert.Equal(t, 2, m.Finished)
	assert.Equal(t, 1, m.Failed)
	require.Len(t, m.Results, 1)

	rows := m.Table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "123.5", rows[0][4])
	assert.Equal(t, "FAILED", rows[1][3])
	assert.Equal(t, "-", rows[1][4])

	assert.Contains(t, m.View(), "2/2 runs")
}

func TestModelDoneUsesReportCounts(t *testing.T) {
	m := testModel(t)
	report := &runner.Report{
		Results: []metrics.RunResult{{Endpoint: "fast", Iteration: 1}},
		Counts:  map[runner.RunState]int{runner.StateComplete: 1, runner.StateFailed: 1},
	}

	updated, _ := m.Update(DoneMsg{Report: report})
	m = updated.(Model)

	assert.Equal(t, 2, m.Finished)
	assert.Equal(t, 1, m.Failed)
	assert.Len(t, m.Results, 1)
	assert.Contains(t, m.View(), "2/2 runs")
}

func TestExportResults(t *testing.T) {
	dir := t.TempDir()
	_, err := exportResults(nil, dir, time.Now())
	assert.Error(t, err)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	base, err := exportResults([]metrics.RunResult{{ID: "x", Endpoint: "fast"}}, dir, now)
	require.NoError(t, err)
	assert.Equal(t, dir+"/benchq_report_20240102-030405", base)

	for _, ext := range []string{".csv", ".json"} {
		_, err := os.Stat(base + ext)
		assert.NoError(t, err)
	}
}
