package runner

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"benchq/internal/config"
	"benchq/internal/dispatch"
	"benchq/internal/logging"
	"benchq/internal/metrics"
	"benchq/internal/probe"
	"benchq/internal/sampler"
	"benchq/internal/stats"
)

// Runner walks the environment x iteration x endpoint matrix, one run at a
// time, so that each run's resource window belongs to it alone.
type Runner struct {
	Cfg        *config.Config
	Prober     probe.Prober
	Sampler    ResourceSampler
	Dispatcher Dispatcher
	Sink       Sink

	// Live is reset before each dispatch; nil disables live counters.
	Live *stats.Live

	// Events receives state transitions when set. Delivery is best-effort:
	// a full channel drops the event rather than stall the matrix, so
	// consumers take final counts from the Report.
	Events EventChan

	log     *logrus.Entry
	summary *logrus.Entry
}

// NewRunner wires the real probe, sampler and dispatcher for cfg.
// cfg must already be validated.
func NewRunner(cfg *config.Config, sink Sink, log logrus.FieldLogger) *Runner {
	live := stats.NewLive()

	d := dispatch.New(cfg.ConcurrencyLimit, log)
	d.Observer = live

	s := sampler.New(sampler.SystemCollector{}, sampler.Options{
		Interval:   cfg.SamplingInterval(),
		Target:     cfg.TargetProcess,
		MaxSamples: cfg.MaxSamples,
	}, log)

	return &Runner{
		Cfg:        cfg,
		Prober:     probe.New(cfg.ProbeTimeout(), log),
		Sampler:    s,
		Dispatcher: d,
		Sink:       sink,
		Live:       live,
		log:        logging.For(log, logging.CategoryGeneral),
		summary:    logging.For(log, logging.CategorySummary),
	}
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(log logrus.FieldLogger) {
	r.log = logging.For(log, logging.CategoryGeneral)
	r.summary = logging.For(log, logging.CategorySummary)
}

// Run executes the whole matrix and returns what happened. One unreachable
// environment or one failing run never stops the rest; cancelling ctx stops
// the matrix before the next run.
func (r *Runner) Run(ctx context.Context) *Report {
	if r.log == nil {
		r.SetLogger(nil)
	}

	started := time.Now()
	report := &Report{Counts: make(map[RunState]int)}

	for _, env := range r.Cfg.Environments {
		if ctx.Err() != nil {
			break
		}

		if !r.reachable(ctx, env) {
			if ctx.Err() != nil {
				break
			}
			r.skipEnvironment(env, report)
			continue
		}

		r.runEnvironment(ctx, env, report)
	}

	if c, ok := r.Dispatcher.(interface{ Close() }); ok {
		c.Close()
	}

	report.Elapsed = time.Since(started)
	r.summary.WithFields(logrus.Fields{
		"complete": report.Counts[StateComplete],
		"skipped":  report.Counts[StateSkipped],
		"failed":   report.Counts[StateFailed],
		"elapsed":  report.Elapsed.Round(time.Millisecond).String(),
	}).Info("matrix finished")
	return report
}

func (r *Runner) runEnvironment(ctx context.Context, env config.Environment, report *Report) {
	for it := 1; it <= r.Cfg.Iterations; it++ {
		for _, ep := range r.Cfg.Endpoints {
			if ctx.Err() != nil {
				return
			}

			key := r.key(env, ep, it)
			r.publish(Event{Key: key, State: StatePending})
			r.publish(Event{Key: key, State: StateProbed})

			res, err := r.runOne(ctx, key, ep)
			if err != nil {
				report.Counts[StateFailed]++
				r.log.WithFields(runFields(key)).WithError(err).Error("run failed")
				r.publish(Event{Key: key, State: StateFailed, Err: err})
				continue
			}

			if err := r.emit(res); err != nil {
				r.log.WithFields(runFields(key)).WithError(err).Warn("result sink failed")
			}

			report.Counts[StateComplete]++
			report.Results = append(report.Results, res)
			r.summary.WithFields(runFields(key)).WithFields(logrus.Fields{
				"rps":            round2(res.RPS),
				"avg_latency_ms": round2(res.AvgLatencyMs),
				"p99_latency_ms": round2(res.P99LatencyMs),
				"error_rate":     round2(res.ErrorRatePercent),
				"cpu_percent":    round2(res.CPUUsagePercent),
			}).Info("run complete")
			r.publish(Event{Key: key, State: StateComplete, Result: &res})
		}
	}
}

// runOne takes a probed run through sampling, dispatch and aggregation.
// A panic anywhere in between fails the run, not the matrix.
func (r *Runner) runOne(ctx context.Context, key metrics.RunKey, ep config.Endpoint) (res metrics.RunResult, err error) {
	sampling := false
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic during run: %v", p)
		}
		if sampling {
			if stopErr := r.Sampler.Stop(); stopErr != nil {
				r.log.WithFields(runFields(key)).WithError(stopErr).Warn("sampler did not stop cleanly")
			}
		}
	}()

	r.publish(Event{Key: key, State: StateSampling})
	r.Sampler.Start()
	sampling = true

	r.publish(Event{Key: key, State: StateDispatching})
	if r.Live != nil {
		r.Live.Reset()
	}

	dctx, cancel := context.WithTimeout(ctx, r.batchDeadline(ep))
	defer cancel()

	start := time.Now()
	outcomes := r.Dispatcher.Dispatch(dctx, key.URL, ep.RequestCount, r.Cfg.ConcurrencyLimit, r.Cfg.RequestTimeout())
	end := time.Now()

	sampling = false
	if stopErr := r.Sampler.Stop(); stopErr != nil {
		r.log.WithFields(runFields(key)).WithError(stopErr).Warn("sampler did not stop cleanly")
	}

	if ctx.Err() != nil {
		return res, errors.Wrap(ctx.Err(), "run interrupted")
	}
	if len(outcomes) != ep.RequestCount {
		return res, errors.Errorf("dispatcher returned %d outcomes for %d requests", len(outcomes), ep.RequestCount)
	}

	samples := r.Sampler.Window(start, end)
	res = metrics.Aggregate(key, outcomes, samples, end.Sub(start))
	r.publish(Event{Key: key, State: StateAggregated, Result: &res})
	return res, nil
}

// reachable probes env, retrying up to ProbeRetries more times.
func (r *Runner) reachable(ctx context.Context, env config.Environment) bool {
	attempts := 1 + r.Cfg.ProbeRetries
	for i := 1; i <= attempts; i++ {
		ok, latency := r.Prober.Probe(ctx, env)
		if ok {
			r.log.WithFields(logrus.Fields{"environment": env.Name, "latency_ms": round2(latency)}).
				Debug("environment reachable")
			return true
		}
		if i == attempts {
			break
		}

		r.log.WithFields(logrus.Fields{"environment": env.Name, "attempt": i, "of": attempts}).
			Info("environment not ready, retrying")
		select {
		case <-ctx.Done():
			return false
		case <-time.After(r.Cfg.ProbeRetryDelay()):
		}
	}
	return false
}

func (r *Runner) skipEnvironment(env config.Environment, report *Report) {
	r.log.WithFields(logrus.Fields{"environment": env.Name, "address": env.BaseAddress}).
		Warn("environment unreachable, skipping its runs")

	for it := 1; it <= r.Cfg.Iterations; it++ {
		for _, ep := range r.Cfg.Endpoints {
			report.Counts[StateSkipped]++
			r.publish(Event{Key: r.key(env, ep, it), State: StateSkipped})
		}
	}
}

// batchDeadline bounds one dispatch: timeout * safety factor per wave of
// concurrencyLimit requests.
func (r *Runner) batchDeadline(ep config.Endpoint) time.Duration {
	limit := r.Cfg.ConcurrencyLimit
	if limit < 1 {
		limit = 1
	}
	waves := (ep.RequestCount + limit - 1) / limit
	if waves < 1 {
		waves = 1
	}
	return time.Duration(float64(r.Cfg.RequestTimeout()) * r.Cfg.BatchSafetyFactor * float64(waves))
}

func (r *Runner) key(env config.Environment, ep config.Endpoint, iteration int) metrics.RunKey {
	return metrics.RunKey{
		Timestamp:   time.Now(),
		Iteration:   iteration,
		Environment: env.Label,
		Endpoint:    ep.Name,
		URL:         probe.BaseURL(env.BaseAddress) + ep.Path,
	}
}

// emit hands res to the sink. A panicking sink is reported like a failing
// one; the run itself already completed.
func (r *Runner) emit(res metrics.RunResult) (err error) {
	if r.Sink == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("sink panicked: %v", p)
		}
	}()
	return r.Sink.Emit(res)
}

// publish never blocks: the matrix does not wait on a slow UI.
func (r *Runner) publish(ev Event) {
	if r.Events == nil {
		return
	}
	select {
	case r.Events <- ev:
	default:
	}
}

func runFields(key metrics.RunKey) logrus.Fields {
	return logrus.Fields{
		"environment": key.Environment,
		"endpoint":    key.Endpoint,
		"iteration":   key.Iteration,
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
