// Prometheus view of finished runs.
package promexport

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"benchq/internal/logging"
	"benchq/internal/metrics"
)

const namespace = "benchq"

var runLabels = []string{"environment", "endpoint"}

// Exporter holds the last result of every (environment, endpoint) pair as
// gauges on its own registry.
type Exporter struct {
	Registry *prometheus.Registry

	rps        *prometheus.GaugeVec
	latency    *prometheus.GaugeVec
	jitter     *prometheus.GaugeVec
	errorRate  *prometheus.GaugeVec
	throughput *prometheus.GaugeVec
	cpu        *prometheus.GaugeVec
	memory     *prometheus.GaugeVec
	network    *prometheus.GaugeVec
	requests   *prometheus.CounterVec
	runs       *prometheus.CounterVec

	log *logrus.Entry
}

func New(log logrus.FieldLogger) *Exporter {
	gauge := func(name, help string, extra ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
			append(append([]string{}, runLabels...), extra...),
		)
	}

	e := &Exporter{
		Registry:   prometheus.NewRegistry(),
		rps:        gauge("run_requests_per_second", "Requests per second of the last run"),
		latency:    gauge("run_latency_ms", "Latency of successful requests in the last run", "stat"),
		jitter:     gauge("run_jitter_ms", "Standard deviation of successful latencies in the last run"),
		errorRate:  gauge("run_error_rate_percent", "Failed share of requests in the last run"),
		throughput: gauge("run_throughput_mbps", "Successful response throughput in the last run"),
		cpu:        gauge("run_cpu_usage_percent", "Mean CPU usage during the last run", "scope"),
		memory:     gauge("run_memory_usage_mb", "Mean memory usage during the last run", "scope"),
		network:    gauge("run_network_bytes", "Host network bytes during the last run", "direction"),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "requests_total", Help: "Requests dispatched"},
			append(append([]string{}, runLabels...), "result"),
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "runs_total", Help: "Runs by final state"},
			[]string{"state"},
		),
		log: logging.For(log, logging.CategorySummary),
	}

	e.Registry.MustRegister(e.rps, e.latency, e.jitter, e.errorRate, e.throughput,
		e.cpu, e.memory, e.network, e.requests, e.runs)
	return e
}

// Emit publishes r; it never fails.
func (e *Exporter) Emit(r metrics.RunResult) error {
	env, ep := r.Environment, r.Endpoint

	e.rps.WithLabelValues(env, ep).Set(r.RPS)
	for stat, v := range map[string]float64{
		"avg": r.AvgLatencyMs,
		"min": r.MinLatencyMs,
		"max": r.MaxLatencyMs,
		"p50": r.P50LatencyMs,
		"p95": r.P95LatencyMs,
		"p99": r.P99LatencyMs,
	} {
		e.latency.WithLabelValues(env, ep, stat).Set(v)
	}
	e.jitter.WithLabelValues(env, ep).Set(r.JitterMs)
	e.errorRate.WithLabelValues(env, ep).Set(r.ErrorRatePercent)
	e.throughput.WithLabelValues(env, ep).Set(r.ThroughputMbps)
	e.cpu.WithLabelValues(env, ep, "host").Set(r.CPUUsagePercent)
	e.cpu.WithLabelValues(env, ep, "process").Set(r.ProcessCPUPercent)
	e.memory.WithLabelValues(env, ep, "host").Set(r.MemoryUsageMB)
	e.memory.WithLabelValues(env, ep, "process").Set(r.ProcessMemoryMB)
	e.network.WithLabelValues(env, ep, "sent").Set(float64(r.NetworkBytesSent))
	e.network.WithLabelValues(env, ep, "recv").Set(float64(r.NetworkBytesRecv))
	e.requests.WithLabelValues(env, ep, "success").Add(float64(r.SuccessfulRequests))
	e.requests.WithLabelValues(env, ep, "failure").Add(float64(r.FailedRequests))
	e.runs.WithLabelValues("COMPLETE").Inc()
	return nil
}

// RecordState counts n runs that ended in a state other than COMPLETE,
// which Emit already counts.
func (e *Exporter) RecordState(state string, n int) {
	if n <= 0 {
		return
	}
	e.runs.WithLabelValues(state).Add(float64(n))
}

func (e *Exporter) Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(e.Registry, promhttp.HandlerOpts{}))
	return r
}

// Serve exposes /metrics on addr until ctx is done.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           e.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.WithField("addr", addr).Info("serving prometheus metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrapf(err, "metrics server on %s", addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
