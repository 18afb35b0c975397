package metrics

import "time"

// RunKey identifies one (environment, endpoint, iteration) execution.
type RunKey struct {
	Timestamp   time.Time
	Iteration   int
	Environment string
	Endpoint    string
	URL         string
}

// RunResult is the only externally visible artifact of a run. It is built
// once by Aggregate and never modified.
type RunResult struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Iteration   int       `json:"iteration"`
	Environment string    `json:"environment"`
	Endpoint    string    `json:"endpoint"`
	URL         string    `json:"url"`

	ElapsedSeconds float64 `json:"elapsedSeconds"`
	RPS            float64 `json:"rps"`

	AvgLatencyMs float64 `json:"avgLatencyMs"`
	MinLatencyMs float64 `json:"minLatencyMs"`
	MaxLatencyMs float64 `json:"maxLatencyMs"`
	P50LatencyMs float64 `json:"p50LatencyMs"`
	P95LatencyMs float64 `json:"p95LatencyMs"`
	P99LatencyMs float64 `json:"p99LatencyMs"`
	JitterMs     float64 `json:"jitterMs"`

	TotalRequests      int     `json:"totalRequests"`
	SuccessfulRequests int     `json:"successfulRequests"`
	FailedRequests     int     `json:"failedRequests"`
	ErrorRatePercent   float64 `json:"errorRatePercent"`
	ThroughputMbps     float64 `json:"throughputMbps"`

	CPUUsagePercent   float64 `json:"cpuUsagePercent"`
	MemoryUsageMB     float64 `json:"memoryUsageMb"`
	ProcessCPUPercent float64 `json:"processCpuPercent"`
	ProcessMemoryMB   float64 `json:"processMemoryMb"`
	NetworkBytesSent  uint64  `json:"networkBytesSent"`
	NetworkBytesRecv  uint64  `json:"networkBytesRecv"`
	SampleCount       int     `json:"sampleCount"`
}
