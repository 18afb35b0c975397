package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"benchq/internal/dispatch"
	"benchq/internal/sampler"
)

// Aggregate reduces one batch of outcomes and the resource samples taken
// during its dispatch window into a RunResult. Latency statistics cover
// successful outcomes only.
func Aggregate(key RunKey, outcomes []dispatch.Outcome, samples []sampler.Sample, elapsed time.Duration) RunResult {
	r := RunResult{
		ID:             uuid.New().String(),
		Timestamp:      key.Timestamp,
		Iteration:      key.Iteration,
		Environment:    key.Environment,
		Endpoint:       key.Endpoint,
		URL:            key.URL,
		ElapsedSeconds: elapsed.Seconds(),
		TotalRequests:  len(outcomes),
	}

	latencies := make([]float64, 0, len(outcomes))
	var successBytes int64
	for _, o := range outcomes {
		if !o.Success {
			continue
		}
		latencies = append(latencies, o.LatencyMs)
		successBytes += o.ResponseBytes
	}
	r.SuccessfulRequests = len(latencies)
	r.FailedRequests = r.TotalRequests - r.SuccessfulRequests

	if r.TotalRequests > 0 {
		r.ErrorRatePercent = float64(r.FailedRequests) / float64(r.TotalRequests) * 100
	}
	if secs := r.ElapsedSeconds; secs > 0 {
		r.RPS = float64(r.TotalRequests) / secs
		r.ThroughputMbps = float64(successBytes) * 8 / (secs * 1_000_000)
	}

	if len(latencies) > 0 {
		sort.Float64s(latencies)
		r.MinLatencyMs = latencies[0]
		r.MaxLatencyMs = latencies[len(latencies)-1]
		r.AvgLatencyMs = mean(latencies)
		r.P50LatencyMs = Percentile(latencies, 0.50)
		r.P95LatencyMs = Percentile(latencies, 0.95)
		r.P99LatencyMs = Percentile(latencies, 0.99)
		r.JitterMs = StdDev(latencies)
	}

	applySamples(&r, samples)
	return r
}

// Percentile returns sorted[floor(p*(n-1))]. sorted must be ascending.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Floor(p * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// StdDev is the sample standard deviation; 0 for fewer than two values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sq float64
	for _, v := range values {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)-1))
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// applySamples averages CPU and memory over the window. Network counters
// are cumulative, so the window's traffic is max minus min.
func applySamples(r *RunResult, samples []sampler.Sample) {
	r.SampleCount = len(samples)
	if len(samples) == 0 {
		return
	}

	var cpu, memory, pcpu, pmem float64
	minSent, maxSent := samples[0].NetBytesSent, samples[0].NetBytesSent
	minRecv, maxRecv := samples[0].NetBytesRecv, samples[0].NetBytesRecv
	for _, s := range samples {
		cpu += s.HostCPUPercent
		memory += s.HostMemoryMB
		pcpu += s.ProcessCPUPercent
		pmem += s.ProcessMemoryMB
		minSent, maxSent = min(minSent, s.NetBytesSent), max(maxSent, s.NetBytesSent)
		minRecv, maxRecv = min(minRecv, s.NetBytesRecv), max(maxRecv, s.NetBytesRecv)
	}

	n := float64(len(samples))
	r.CPUUsagePercent = cpu / n
	r.MemoryUsageMB = memory / n
	r.ProcessCPUPercent = pcpu / n
	r.ProcessMemoryMB = pmem / n
	r.NetworkBytesSent = maxSent - minSent
	r.NetworkBytesRecv = maxRecv - minRecv
}
