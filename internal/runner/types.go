package runner

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"benchq/internal/dispatch"
	"benchq/internal/metrics"
	"benchq/internal/sampler"
)

// RunState is the lifecycle position of one run.
type RunState int

const (
	StatePending RunState = iota
	StateProbed
	StateSampling
	StateDispatching
	StateAggregated
	StateComplete
	StateSkipped
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateProbed:
		return "PROBED"
	case StateSampling:
		return "SAMPLING"
	case StateDispatching:
		return "DISPATCHING"
	case StateAggregated:
		return "AGGREGATED"
	case StateComplete:
		return "COMPLETE"
	case StateSkipped:
		return "SKIPPED"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Terminal reports whether no further transition follows s.
func (s RunState) Terminal() bool {
	return s == StateComplete || s == StateSkipped || s == StateFailed
}

// Sink consumes finished results: stores, exporters, printers.
type Sink interface {
	Emit(metrics.RunResult) error
}

// MultiSink fans a result out to every sink. A failing sink does not keep
// the result from the others.
type MultiSink []Sink

func (m MultiSink) Emit(r metrics.RunResult) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink that is an io.Closer.
func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		c, ok := s.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close %T", s)
		}
	}
	return first
}

// Event is published on every state transition. See Runner.Events for
// delivery guarantees.
type Event struct {
	Key    metrics.RunKey
	State  RunState
	Result *metrics.RunResult
	Err    error
}

type EventChan chan Event

// Report is what a whole matrix produced.
type Report struct {
	Results []metrics.RunResult
	Counts  map[RunState]int
	Elapsed time.Duration
}

func (r *Report) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Dispatcher is the slice of dispatch.Dispatcher the runner drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, url string, count, limit int, timeout time.Duration) []dispatch.Outcome
}

// ResourceSampler is the slice of sampler.Sampler the runner drives.
type ResourceSampler interface {
	Start()
	Stop() error
	Window(start, end time.Time) []sampler.Sample
}
