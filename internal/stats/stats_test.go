package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchq/internal/dispatch"
)

func TestLiveCounters(t *testing.T) {
	l := NewLive()
	for i := 1; i <= 10; i++ {
		l.RequestStarted()
		l.RequestDone(dispatch.Outcome{Success: true, LatencyMs: float64(i * 10), ResponseBytes: 100})
	}
	l.RequestStarted()
	l.RequestDone(dispatch.Outcome{Failure: dispatch.FailureTimeout, LatencyMs: 5000})
	l.RequestStarted()

	s := l.Snapshot()
	assert.Equal(t, uint64(11), s.Requests)
	assert.Equal(t, uint64(10), s.Success)
	assert.Equal(t, uint64(1), s.Fail)
	assert.Equal(t, uint64(1000), s.Bytes)
	assert.Equal(t, int64(1), s.Inflight)
	assert.InDelta(t, 50, s.P50Ms, 0.5)
	assert.InDelta(t, 100, s.MaxMs, 0.5)
	assert.InDelta(t, 100.0/11, s.ErrorRate(), 1e-9)

	l.Reset()
	assert.Equal(t, Snapshot{}, l.Snapshot())
}

func TestLiveStreamDoesNotBlock(t *testing.T) {
	l := NewLive()
	out := make(chan Snapshot, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		l.Stream(ctx, 5*time.Millisecond, out)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop with its context")
	}
	require.Len(t, out, 1)
}
