package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"benchq/internal/config"
	"benchq/internal/metrics"
	"benchq/internal/runner"
	"benchq/internal/stats"
)

// Start runs the matrix headless, drawing a progress line on w, and
// returns the report once every run has finished or ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, r *runner.Runner, w io.Writer) *runner.Report {
	printHeader(w, cfg)

	events := make(runner.EventChan, 256)
	r.Events = events

	done := make(chan *runner.Report, 1)
	go func() {
		done <- r.Run(ctx)
	}()

	p := &progress{w: w, total: cfg.TotalRuns(), live: r.Live}
	report := p.watch(events, done)

	PrintSummary(w, report)
	return report
}

type progress struct {
	w        io.Writer
	total    int
	finished int
	current  string
	live     *stats.Live
	started  time.Time
}

func (p *progress) watch(events <-chan runner.Event, done <-chan *runner.Report) *runner.Report {
	p.started = time.Now()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			p.handle(ev)
		case report := <-done:
			// drain what the runner published before returning
			for drained := false; !drained; {
				select {
				case ev := <-events:
					p.handle(ev)
				default:
					drained = true
				}
			}
			// events are best-effort, the report is not
			p.finished = report.Total()
			fmt.Fprint(p.w, "\r"+strings.Repeat(" ", 100)+"\r")
			return report
		case <-ticker.C:
			p.draw()
		}
	}
}

func (p *progress) handle(ev runner.Event) {
	name := fmt.Sprintf("%s/%s #%d", ev.Key.Environment, ev.Key.Endpoint, ev.Key.Iteration)
	switch ev.State {
	case runner.StateDispatching:
		p.current = name
	case runner.StateComplete:
		p.finished++
		res := ev.Result
		fmt.Fprintf(p.w, "\r✅ %-40s RPS: %8.1f | Avg: %7.2fms | P99: %7.2fms | Err: %5.1f%% | CPU: %5.1f%%\n",
			name, res.RPS, res.AvgLatencyMs, res.P99LatencyMs, res.ErrorRatePercent, res.CPUUsagePercent)
	case runner.StateSkipped:
		p.finished++
		fmt.Fprintf(p.w, "\r⏭️  %-40s skipped (environment unreachable)\n", name)
	case runner.StateFailed:
		p.finished++
		fmt.Fprintf(p.w, "\r❌ %-40s failed: %v\n", name, ev.Err)
	}
}

func (p *progress) draw() {
	pct := 0.0
	if p.total > 0 {
		pct = float64(p.finished) / float64(p.total)
	}

	line := fmt.Sprintf("\r%s %3.0f%% | %d/%d runs | %s",
		progressBar(pct, 20), pct*100, p.finished, p.total,
		time.Since(p.started).Round(time.Second))
	if p.live != nil && p.current != "" {
		s := p.live.Snapshot()
		line += fmt.Sprintf(" | %s Inf: %3d | OK: %d | Err: %d", p.current, s.Inflight, s.Success, s.Fail)
	}
	fmt.Fprint(p.w, line)
}

func printHeader(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "\n🚀 STARTING BENCHQ MATRIX\n")
	fmt.Fprintf(w, "======================================================================\n")
	for _, env := range cfg.Environments {
		fmt.Fprintf(w, "Environment : %-16s %s\n", env.Label, env.BaseAddress)
	}
	for _, ep := range cfg.Endpoints {
		fmt.Fprintf(w, "Endpoint    : %-16s %s x%d\n", ep.Name, ep.Path, ep.RequestCount)
	}
	fmt.Fprintf(w, "Iterations  : %d (%d runs)\n", cfg.Iterations, cfg.TotalRuns())
	fmt.Fprintf(w, "Concurrency : %d\n", cfg.ConcurrencyLimit)
	fmt.Fprintf(w, "Timeout     : %dms\n", cfg.RequestTimeoutMs)
	fmt.Fprintf(w, "======================================================================\n\n")
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

// PrintSummary writes the final matrix table, grouped per environment and
// endpoint across iterations.
func PrintSummary(w io.Writer, report *runner.Report) {
	fmt.Fprintf(w, "\n📊 BENCHMARK RESULTS\n")
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Total Duration : %s\n", report.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Runs           : %d complete, %d skipped, %d failed\n",
		report.Counts[runner.StateComplete], report.Counts[runner.StateSkipped], report.Counts[runner.StateFailed])

	groups := metrics.Summarize(report.Results)
	if len(groups) > 0 {
		fmt.Fprintf(w, "\n%-16s %-14s %4s %12s %10s %10s %8s %8s\n",
			"ENVIRONMENT", "ENDPOINT", "RUNS", "RPS", "AVG(ms)", "P99(ms)", "ERR%", "CPU%")
		for _, g := range groups {
			fmt.Fprintf(w, "%-16s %-14s %4d %12.2f %10.2f %10.2f %8.2f %8.2f\n",
				g.Environment, g.Endpoint, g.Runs,
				g.RPS.Mean, g.AvgLatencyMs.Mean, g.P99LatencyMs.Mean, g.ErrorRate.Mean, g.CPUPercent.Mean)
		}

		fmt.Fprintf(w, "\n📈 STABILITY (coefficient of variation across iterations)\n")
		for _, g := range groups {
			if g.Runs < 2 {
				continue
			}
			fmt.Fprintf(w, "   %s/%s : RPS %.2f%% | Avg latency %.2f%%\n",
				g.Environment, g.Endpoint, g.RPS.CV(), g.AvgLatencyMs.CV())
		}
	}
	fmt.Fprintf(w, "======================================================================\n")
}

// PrintResults lists stored results, one line each.
func PrintResults(w io.Writer, results []metrics.RunResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No stored results.")
		return
	}
	fmt.Fprintf(w, "%-20s %-16s %-14s %4s %10s %10s %8s\n",
		"TIMESTAMP", "ENVIRONMENT", "ENDPOINT", "IT", "RPS", "P99(ms)", "ERR%")
	for _, r := range results {
		fmt.Fprintf(w, "%-20s %-16s %-14s %4d %10.2f %10.2f %8.2f\n",
			r.Timestamp.Format("2006-01-02 15:04:05"), r.Environment, r.Endpoint, r.Iteration,
			r.RPS, r.P99LatencyMs, r.ErrorRatePercent)
	}
}
