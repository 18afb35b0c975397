package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchq/internal/config"
	"benchq/internal/dispatch"
	"benchq/internal/logging"
	"benchq/internal/metrics"
	"benchq/internal/sampler"
)

type fakeProber struct {
	mu        sync.Mutex
	reachable map[string]bool
	calls     map[string]int
}

func (f *fakeProber) Probe(ctx context.Context, env config.Environment) (bool, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[env.Name]++
	return f.reachable[env.Name], 1
}

type fakeSampler struct {
	starts, stops int
	running       bool
}

func (f *fakeSampler) Start() {
	f.starts++
	f.running = true
}

func (f *fakeSampler) Stop() error {
	f.stops++
	f.running = false
	return nil
}

func (f *fakeSampler) Window(start, end time.Time) []sampler.Sample {
	return []sampler.Sample{{Timestamp: start, HostCPUPercent: 40, HostMemoryMB: 1024}}
}

type fakeDispatcher struct {
	urls    []string
	panicOn string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, url string, count, limit int, timeout time.Duration) []dispatch.Outcome {
	f.urls = append(f.urls, url)
	if f.panicOn != "" && strings.HasSuffix(url, f.panicOn) {
		panic("boom")
	}
	out := make([]dispatch.Outcome, count)
	for i := range out {
		out[i] = dispatch.Outcome{Success: true, LatencyMs: 5, ResponseBytes: 10, StatusCode: 200}
	}
	return out
}

type fakeSink struct {
	results []metrics.RunResult
	err     error
}

func (f *fakeSink) Emit(r metrics.RunResult) error {
	f.results = append(f.results, r)
	return f.err
}

func testConfig(t *testing.T, envs ...config.Environment) *config.Config {
	cfg := &config.Config{
		Environments: envs,
		Endpoints: []config.Endpoint{
			{Name: "fast", Path: "/fast", RequestCount: 4},
			{Name: "slow", Path: "/slow", RequestCount: 2},
		},
		Iterations:         2,
		ConcurrencyLimit:   2,
		RequestTimeoutMs:   1000,
		SamplingIntervalMs: 500,
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func fakeRunner(cfg *config.Config, p *fakeProber, d *fakeDispatcher, s *fakeSampler, sink Sink) *Runner {
	r := &Runner{
		Cfg:        cfg,
		Prober:     p,
		Sampler:    s,
		Dispatcher: d,
		Sink:       sink,
	}
	r.SetLogger(logging.Discard())
	return r
}

func TestRunnerWalksMatrixSequentially(t *testing.T) {
	cfg := testConfig(t, config.Environment{Name: "docker", BaseAddress: "localhost:8000"})
	p := &fakeProber{reachable: map[string]bool{"docker": true}}
	d := &fakeDispatcher{}
	s := &fakeSampler{}
	sink := &fakeSink{}

	report := fakeRunner(cfg, p, d, s, sink).Run(context.Background())

	assert.Equal(t, 4, report.Counts[StateComplete])
	assert.Equal(t, 4, report.Total())
	require.Len(t, sink.results, 4)
	assert.Equal(t, []string{
		"http://localhost:8000/fast", "http://localhost:8000/slow",
		"http://localhost:8000/fast", "http://localhost:8000/slow",
	}, d.urls)
	assert.Equal(t, 1, p.calls["docker"], "probe once per environment")
	assert.Equal(t, 4, s.starts)
	assert.Equal(t, 4, s.stops)
	assert.False(t, s.running)

	first := sink.results[0]
	assert.Equal(t, 1, first.Iteration)
	assert.Equal(t, "fast", first.Endpoint)
	assert.Equal(t, 4, first.TotalRequests)
	assert.Equal(t, 40.0, first.CPUUsagePercent)
	assert.Equal(t, 2, sink.results[2].Iteration)
}

func TestRunnerSkipsUnreachableEnvironment(t *testing.T) {
	cfg := testConfig(t,
		config.Environment{Name: "down", BaseAddress: "10.255.255.1:1"},
		config.Environment{Name: "up", BaseAddress: "localhost:8000"},
	)
	cfg.ProbeRetries = 2
	cfg.ProbeRetryDelayMs = 1

	p := &fakeProber{reachable: map[string]bool{"up": true}}
	d := &fakeDispatcher{}
	events := make(EventChan, 256)

	r := fakeRunner(cfg, p, d, &fakeSampler{}, &fakeSink{})
	r.Events = events
	report := r.Run(context.Background())

	assert.Equal(t, 4, report.Counts[StateSkipped])
	assert.Equal(t, 4, report.Counts[StateComplete])
	assert.Equal(t, 3, p.calls["down"], "one probe plus two retries")
	for _, u := range d.urls {
		assert.NotContains(t, u, "10.255.255.1", "no requests against a skipped environment")
	}

	close(events)
	skipped := 0
	for ev := range events {
		if ev.State == StateSkipped {
			skipped++
			assert.Equal(t, "down", ev.Key.Environment)
		}
	}
	assert.Equal(t, 4, skipped)
}

func TestRunnerPanicFailsOnlyThatRun(t *testing.T) {
	cfg := testConfig(t, config.Environment{Name: "docker", BaseAddress: "localhost:8000"})
	s := &fakeSampler{}
	sink := &fakeSink{}

	report := fakeRunner(cfg, &fakeProber{reachable: map[string]bool{"docker": true}},
		&fakeDispatcher{panicOn: "/slow"}, s, sink).Run(context.Background())

	assert.Equal(t, 2, report.Counts[StateFailed])
	assert.Equal(t, 2, report.Counts[StateComplete])
	assert.Len(t, sink.results, 2)
	assert.False(t, s.running, "sampler stopped after a panic")
	assert.Equal(t, s.starts, s.stops)
}

func TestRunnerSinkErrorKeepsRunComplete(t *testing.T) {
	cfg := testConfig(t, config.Environment{Name: "docker", BaseAddress: "localhost:8000"})
	sink := &fakeSink{err: errors.New("disk full")}

	report := fakeRunner(cfg, &fakeProber{reachable: map[string]bool{"docker": true}},
		&fakeDispatcher{}, &fakeSampler{}, sink).Run(context.Background())

	assert.Equal(t, 4, report.Counts[StateComplete])
	assert.Len(t, report.Results, 4)
}

type panickingSink struct{}

func (panickingSink) Emit(metrics.RunResult) error { panic("sink exploded") }

func TestRunnerSinkPanicKeepsRunComplete(t *testing.T) {
	cfg := testConfig(t, config.Environment{Name: "docker", BaseAddress: "localhost:8000"})

	report := fakeRunner(cfg, &fakeProber{reachable: map[string]bool{"docker": true}},
		&fakeDispatcher{}, &fakeSampler{}, panickingSink{}).Run(context.Background())

	assert.Equal(t, 4, report.Counts[StateComplete])
	assert.Equal(t, 0, report.Counts[StateFailed])
}

type explodingObserver struct{}

func (explodingObserver) RequestStarted()              {}
func (explodingObserver) RequestDone(dispatch.Outcome) { panic("observer boom") }

func TestRunnerRequestGoroutinePanicFailsRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cfg := &config.Config{
		Environments:       []config.Environment{{Name: "local", BaseAddress: srv.URL}},
		Endpoints:          []config.Endpoint{{Name: "root", Path: "/", RequestCount: 8}},
		Iterations:         1,
		ConcurrencyLimit:   4,
		RequestTimeoutMs:   2000,
		SamplingIntervalMs: 500,
	}
	require.NoError(t, cfg.Validate())

	sink := &fakeSink{}
	r := NewRunner(cfg, sink, logging.Discard())
	r.Dispatcher.(*dispatch.Dispatcher).Observer = explodingObserver{}

	events := make(EventChan, 64)
	r.Events = events
	report := r.Run(context.Background())

	assert.Equal(t, 1, report.Counts[StateFailed])
	assert.Equal(t, 0, report.Counts[StateComplete])
	assert.Empty(t, sink.results)

	close(events)
	var failure error
	for ev := range events {
		if ev.State == StateFailed {
			failure = ev.Err
		}
	}
	require.Error(t, failure)
	assert.Contains(t, failure.Error(), "observer boom")
}

func TestRunnerStopsOnCancel(t *testing.T) {
	cfg := testConfig(t, config.Environment{Name: "docker", BaseAddress: "localhost:8000"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &fakeDispatcher{}
	report := fakeRunner(cfg, &fakeProber{reachable: map[string]bool{"docker": true}},
		d, &fakeSampler{}, &fakeSink{}).Run(ctx)

	assert.Empty(t, d.urls)
	assert.Equal(t, 0, report.Total())
}

func TestBatchDeadline(t *testing.T) {
	cfg := testConfig(t, config.Environment{Name: "docker", BaseAddress: "localhost:8000"})
	r := fakeRunner(cfg, nil, nil, nil, nil)

	// 5 requests at limit 2 is three waves of 1s * 2.0
	assert.Equal(t, 6*time.Second, r.batchDeadline(config.Endpoint{RequestCount: 5}))
	assert.Equal(t, 2*time.Second, r.batchDeadline(config.Endpoint{RequestCount: 1}))
}

func TestMultiSink(t *testing.T) {
	a := &fakeSink{err: errors.New("a failed")}
	b := &fakeSink{}

	err := MultiSink{a, nil, b}.Emit(metrics.RunResult{Endpoint: "x"})
	assert.EqualError(t, err, "a failed")
	assert.Len(t, a.results, 1)
	assert.Len(t, b.results, 1, "later sinks still receive the result")
	assert.NoError(t, MultiSink{a, b}.Close())
}

func TestRunnerEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	cfg := &config.Config{
		Environments:       []config.Environment{{Name: "local", BaseAddress: srv.URL}},
		Endpoints:          []config.Endpoint{{Name: "root", Path: "/", RequestCount: 50}},
		Iterations:         1,
		ConcurrencyLimit:   10,
		RequestTimeoutMs:   2000,
		SamplingIntervalMs: 500,
	}
	require.NoError(t, cfg.Validate())

	sink := &fakeSink{}
	report := NewRunner(cfg, sink, logging.Discard()).Run(context.Background())

	require.Equal(t, 1, report.Counts[StateComplete])
	res := report.Results[0]
	assert.Equal(t, 50, res.TotalRequests)
	assert.Equal(t, 50, res.SuccessfulRequests)
	assert.Equal(t, 0.0, res.ErrorRatePercent)
	assert.Equal(t, 0, res.SampleCount, "a run shorter than one interval has no samples")
	assert.Equal(t, 0.0, res.CPUUsagePercent)
	assert.Equal(t, 0.0, res.MemoryUsageMB)
	assert.Greater(t, res.ThroughputMbps, 0.0)
	assert.Len(t, sink.results, 1)
}
