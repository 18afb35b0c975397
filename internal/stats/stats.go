package stats

import (
	"context"
	"sync/atomic"
	"time"

	"benchq/internal/dispatch"
)

// Snapshot is a cheap copy of the live counters, sent to the UI.
type Snapshot struct {
	Requests uint64
	Success  uint64
	Fail     uint64
	Bytes    uint64
	Inflight int64

	P50Ms  float64
	P90Ms  float64
	P99Ms  float64
	MaxMs  float64
	MeanMs float64
}

// ErrorRate is the failed share of resolved requests, in percent.
func (s Snapshot) ErrorRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Fail) / float64(s.Requests) * 100
}

// Live holds real-time counters for the batch currently being dispatched.
// It is a dispatch.Observer; the exact per-run numbers come from metrics.
type Live struct {
	requests uint64
	success  uint64
	fail     uint64
	bytes    uint64
	inflight int64

	// successful latencies only
	Latency *SafeHistogram
}

func NewLive() *Live {
	return &Live{Latency: NewSafeHistogram()}
}

func (l *Live) RequestStarted() {
	atomic.AddInt64(&l.inflight, 1)
}

func (l *Live) RequestDone(o dispatch.Outcome) {
	atomic.AddInt64(&l.inflight, -1)
	atomic.AddUint64(&l.requests, 1)
	if !o.Success {
		atomic.AddUint64(&l.fail, 1)
		return
	}
	atomic.AddUint64(&l.success, 1)
	atomic.AddUint64(&l.bytes, uint64(o.ResponseBytes))
	l.Latency.RecordMs(o.LatencyMs)
}

// Reset zeroes the counters between runs.
func (l *Live) Reset() {
	atomic.StoreUint64(&l.requests, 0)
	atomic.StoreUint64(&l.success, 0)
	atomic.StoreUint64(&l.fail, 0)
	atomic.StoreUint64(&l.bytes, 0)
	atomic.StoreInt64(&l.inflight, 0)
	l.Latency.Reset()
}

func (l *Live) Snapshot() Snapshot {
	return Snapshot{
		Requests: atomic.LoadUint64(&l.requests),
		Success:  atomic.LoadUint64(&l.success),
		Fail:     atomic.LoadUint64(&l.fail),
		Bytes:    atomic.LoadUint64(&l.bytes),
		Inflight: atomic.LoadInt64(&l.inflight),
		P50Ms:    l.Latency.QuantileMs(50),
		P90Ms:    l.Latency.QuantileMs(90),
		P99Ms:    l.Latency.QuantileMs(99),
		MaxMs:    l.Latency.MaxMs(),
		MeanMs:   l.Latency.MeanMs(),
	}
}

// Stream pushes a Snapshot every interval until ctx is done. Sends never
// block: a slow reader just misses updates.
func (l *Live) Stream(ctx context.Context, interval time.Duration, out chan<- Snapshot) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case out <- l.Snapshot():
			default:
			}
		}
	}
}
