package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"benchq/internal/config"
	"benchq/internal/logging"
)

// DefaultInterval is used when Options.Interval is not set.
const DefaultInterval = 500 * time.Millisecond

// DefaultStopTimeout bounds how long Stop waits for the loop to exit.
const DefaultStopTimeout = 2 * time.Second

// ErrStopTimeout is returned by Stop when the loop did not exit in time.
// The sampler is still stopped: nothing is appended afterwards.
var ErrStopTimeout = errors.New("sampler loop did not exit before stop timeout")

// Sample is one reading of host and target-process resources.
type Sample struct {
	Timestamp         time.Time `json:"timestamp"`
	HostCPUPercent    float64   `json:"host_cpu_percent"`
	HostMemoryMB      float64   `json:"host_memory_mb"`
	ProcessCPUPercent float64   `json:"process_cpu_percent"`
	ProcessMemoryMB   float64   `json:"process_memory_mb"`
	NetBytesSent      uint64    `json:"net_bytes_sent"`
	NetBytesRecv      uint64    `json:"net_bytes_recv"`
}

// Options configures a Sampler.
type Options struct {
	Interval    time.Duration
	Target      config.TargetProcess
	MaxSamples  int
	StopTimeout time.Duration
}

// Sampler reads resources on a fixed cadence in its own goroutine.
// One Start/Stop cycle covers one run; History and Window are snapshots.
type Sampler struct {
	collector Collector
	opts      Options
	log       *logrus.Entry

	mu      sync.Mutex
	samples []Sample
	running bool
	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns a stopped Sampler.
func New(c Collector, opts Options, log logrus.FieldLogger) *Sampler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = config.DefaultMaxSamples
	}
	return &Sampler{
		collector: c,
		opts:      opts,
		log:       logging.For(log, logging.CategorySample),
	}
}

// Start begins a fresh history and launches the sampling loop. It is a
// no-op while already running.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.gen++
	s.samples = make([]Sample, 0, 64)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.gen, s.done)
}

// Stop ends the loop and waits for it to exit, at most StopTimeout.
// No sample is appended once Stop has returned.
func (s *Sampler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.gen++
	s.cancel()
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-time.After(s.opts.StopTimeout):
		return ErrStopTimeout
	}
}

// Running reports whether a loop is active.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// History returns a copy of every sample of the current (or last) run.
func (s *Sampler) History() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Window returns the samples with start <= Timestamp <= end.
func (s *Sampler) Window(start, end time.Time) []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Sample
	for _, smp := range s.samples {
		if smp.Timestamp.Before(start) || smp.Timestamp.After(end) {
			continue
		}
		out = append(out, smp)
	}
	return out
}

func (s *Sampler) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	w := &warnOnce{log: s.log}
	proc := s.prepare(ctx, w)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			smp := s.read(ctx, proc, w)
			if !s.append(gen, smp, w) {
				return
			}
		}
	}
}

// prepare primes the cpu baseline and locates the target process. A
// collector panic leaves the sampler running on host counters only.
func (s *Sampler) prepare(ctx context.Context, w *warnOnce) (proc ProcessReader) {
	defer func() {
		if p := recover(); p != nil {
			w.warn("panic", errors.Errorf("%v", p), "collector panicked, reporting zeros")
			proc = nil
		}
	}()

	// first cpu reading is a baseline for the next delta
	if _, err := s.collector.Host(ctx); err != nil {
		w.warn("host", err, "host counters unavailable, reporting zeros")
	}

	if s.opts.Target.PID > 0 || s.opts.Target.Name != "" {
		p, err := s.collector.Locate(ctx, s.opts.Target)
		if err != nil {
			w.warn("process", err, "target process not available, sampling host only")
			return nil
		}
		return p
	}
	return nil
}

func (s *Sampler) read(ctx context.Context, proc ProcessReader, w *warnOnce) (smp Sample) {
	smp = Sample{Timestamp: time.Now()}
	defer func() {
		if p := recover(); p != nil {
			w.warn("panic", errors.Errorf("%v", p), "collector panicked, reporting zeros")
			smp = Sample{Timestamp: smp.Timestamp}
		}
	}()

	hs, err := s.collector.Host(ctx)
	if err != nil {
		w.warn("host", err, "host counters unavailable, reporting zeros")
	} else {
		smp.HostCPUPercent = hs.CPUPercent
		smp.HostMemoryMB = hs.MemoryMB
		smp.NetBytesSent = hs.NetBytesSent
		smp.NetBytesRecv = hs.NetBytesRecv
	}

	if proc != nil {
		ps, err := proc.Read(ctx)
		if err != nil {
			w.warn("process", err, "target process counters unavailable, reporting zeros")
		} else {
			smp.ProcessCPUPercent = ps.CPUPercent
			smp.ProcessMemoryMB = ps.MemoryMB
		}
	}
	return smp
}

// append stores smp if gen is still the live run. It returns false once the
// run has been stopped.
func (s *Sampler) append(gen uint64, smp Sample, w *warnOnce) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || !s.running {
		return false
	}
	if n := len(s.samples); n > 0 && !smp.Timestamp.After(s.samples[n-1].Timestamp) {
		return true
	}
	if len(s.samples) >= s.opts.MaxSamples {
		w.warn("capacity", nil, "sample history full, dropping new samples")
		return true
	}
	s.samples = append(s.samples, smp)
	return true
}

// warnOnce logs each failure key at most once per run.
type warnOnce struct {
	log  *logrus.Entry
	seen map[string]bool
}

func (w *warnOnce) warn(key string, err error, msg string) {
	if w.seen == nil {
		w.seen = make(map[string]bool)
	}
	if w.seen[key] {
		return
	}
	w.seen[key] = true

	e := w.log
	if err != nil {
		e = e.WithError(err)
	}
	e.Warn(msg)
}
