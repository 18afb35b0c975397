package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"benchq/internal/metrics"
)

// Columns is the CSV header, one column per RunResult field.
var Columns = []string{
	"id", "timestamp", "iteration", "environment", "endpoint", "url",
	"elapsed_seconds", "rps",
	"avg_latency_ms", "min_latency_ms", "max_latency_ms",
	"p50_latency_ms", "p95_latency_ms", "p99_latency_ms", "jitter_ms",
	"total_requests", "successful_requests", "failed_requests",
	"error_rate_percent", "throughput_mbps",
	"cpu_usage_percent", "memory_usage_mb",
	"process_cpu_percent", "process_memory_mb",
	"network_bytes_sent", "network_bytes_recv", "sample_count",
}

// CSVWriter streams results as CSV rows, header first.
type CSVWriter struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	header bool
}

// NewCSVWriter writes to w. If w is an io.Closer, Close closes it.
func NewCSVWriter(w io.Writer) *CSVWriter {
	c := &CSVWriter{w: csv.NewWriter(w)}
	if cl, ok := w.(io.Closer); ok {
		c.closer = cl
	}
	return c
}

func (c *CSVWriter) Emit(r metrics.RunResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.header {
		if err := c.w.Write(Columns); err != nil {
			return errors.Wrap(err, "write csv header")
		}
		c.header = true
	}
	if err := c.w.Write(record(r)); err != nil {
		return errors.Wrap(err, "write csv row")
	}
	c.w.Flush()
	return errors.Wrap(c.w.Error(), "flush csv")
}

// WriteAll emits every result.
func (c *CSVWriter) WriteAll(results []metrics.RunResult) error {
	for _, r := range results {
		if err := c.Emit(r); err != nil {
			return err
		}
	}
	return nil
}

func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.w.Flush()
	err := c.w.Error()
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func record(r metrics.RunResult) []string {
	return []string{
		r.ID,
		r.Timestamp.Format(time.RFC3339Nano),
		strconv.Itoa(r.Iteration),
		r.Environment,
		r.Endpoint,
		r.URL,
		ftoa(r.ElapsedSeconds),
		ftoa(r.RPS),
		ftoa(r.AvgLatencyMs),
		ftoa(r.MinLatencyMs),
		ftoa(r.MaxLatencyMs),
		ftoa(r.P50LatencyMs),
		ftoa(r.P95LatencyMs),
		ftoa(r.P99LatencyMs),
		ftoa(r.JitterMs),
		strconv.Itoa(r.TotalRequests),
		strconv.Itoa(r.SuccessfulRequests),
		strconv.Itoa(r.FailedRequests),
		ftoa(r.ErrorRatePercent),
		ftoa(r.ThroughputMbps),
		ftoa(r.CPUUsagePercent),
		ftoa(r.MemoryUsageMB),
		ftoa(r.ProcessCPUPercent),
		ftoa(r.ProcessMemoryMB),
		strconv.FormatUint(r.NetworkBytesSent, 10),
		strconv.FormatUint(r.NetworkBytesRecv, 10),
		strconv.Itoa(r.SampleCount),
	}
}

// ftoa uses the shortest representation that parses back to the same value.
func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadCSV parses what CSVWriter wrote.
func ReadCSV(r io.Reader) ([]metrics.RunResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read csv")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	for i, col := range Columns {
		if rows[0][i] != col {
			return nil, errors.Errorf("unexpected csv column %d: %q, want %q", i, rows[0][i], col)
		}
	}

	out := make([]metrics.RunResult, 0, len(rows)-1)
	for n, row := range rows[1:] {
		res, err := parseRecord(row)
		if err != nil {
			return nil, errors.Wrapf(err, "csv row %d", n+2)
		}
		out = append(out, res)
	}
	return out, nil
}

func parseRecord(row []string) (metrics.RunResult, error) {
	p := &fieldParser{row: row}
	r := metrics.RunResult{
		ID:                 p.str(),
		Timestamp:          p.stamp(),
		Iteration:          p.integer(),
		Environment:        p.str(),
		Endpoint:           p.str(),
		URL:                p.str(),
		ElapsedSeconds:     p.number(),
		RPS:                p.number(),
		AvgLatencyMs:       p.number(),
		MinLatencyMs:       p.number(),
		MaxLatencyMs:       p.number(),
		P50LatencyMs:       p.number(),
		P95LatencyMs:       p.number(),
		P99LatencyMs:       p.number(),
		JitterMs:           p.number(),
		TotalRequests:      p.integer(),
		SuccessfulRequests: p.integer(),
		FailedRequests:     p.integer(),
		ErrorRatePercent:   p.number(),
		ThroughputMbps:     p.number(),
		CPUUsagePercent:    p.number(),
		MemoryUsageMB:      p.number(),
		ProcessCPUPercent:  p.number(),
		ProcessMemoryMB:    p.number(),
		NetworkBytesSent:   p.unsigned(),
		NetworkBytesRecv:   p.unsigned(),
		SampleCount:        p.integer(),
	}
	return r, p.err
}

// fieldParser consumes a row left to right and keeps the first error.
type fieldParser struct {
	row []string
	i   int
	err error
}

func (p *fieldParser) next() string {
	v := p.row[p.i]
	p.i++
	return v
}

func (p *fieldParser) fail(err error) {
	if p.err == nil {
		p.err = errors.Wrapf(err, "column %s", Columns[p.i-1])
	}
}

func (p *fieldParser) str() string { return p.next() }

func (p *fieldParser) integer() int {
	v, err := strconv.Atoi(p.next())
	if err != nil {
		p.fail(err)
	}
	return v
}

func (p *fieldParser) unsigned() uint64 {
	v, err := strconv.ParseUint(p.next(), 10, 64)
	if err != nil {
		p.fail(err)
	}
	return v
}

func (p *fieldParser) number() float64 {
	v, err := strconv.ParseFloat(p.next(), 64)
	if err != nil {
		p.fail(err)
	}
	return v
}

func (p *fieldParser) stamp() time.Time {
	v, err := time.Parse(time.RFC3339Nano, p.next())
	if err != nil {
		p.fail(err)
	}
	return v
}
