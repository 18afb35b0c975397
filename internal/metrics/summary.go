package metrics

import "sort"

// GroupSummary is the spread of one (environment, endpoint) pair across
// iterations.
type GroupSummary struct {
	Environment string
	Endpoint    string
	Runs        int

	RPS          Spread
	AvgLatencyMs Spread
	P99LatencyMs Spread
	ErrorRate    Spread
	CPUPercent   Spread
	MemoryMB     Spread
}

// Spread describes a set of per-run values.
type Spread struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// CV is the coefficient of variation in percent; 0 when the mean is 0.
func (s Spread) CV() float64 {
	if s.Mean == 0 {
		return 0
	}
	return s.StdDev / s.Mean * 100
}

// Summarize groups results by environment and endpoint, in order of first
// appearance.
func Summarize(results []RunResult) []GroupSummary {
	type group struct {
		env, ep string
		runs    []RunResult
	}
	var order []*group
	byKey := map[[2]string]*group{}

	for _, r := range results {
		k := [2]string{r.Environment, r.Endpoint}
		g, ok := byKey[k]
		if !ok {
			g = &group{env: r.Environment, ep: r.Endpoint}
			byKey[k] = g
			order = append(order, g)
		}
		g.runs = append(g.runs, r)
	}

	out := make([]GroupSummary, 0, len(order))
	for _, g := range order {
		pick := func(f func(RunResult) float64) Spread {
			vals := make([]float64, len(g.runs))
			for i, r := range g.runs {
				vals[i] = f(r)
			}
			return spread(vals)
		}
		out = append(out, GroupSummary{
			Environment:  g.env,
			Endpoint:     g.ep,
			Runs:         len(g.runs),
			RPS:          pick(func(r RunResult) float64 { return r.RPS }),
			AvgLatencyMs: pick(func(r RunResult) float64 { return r.AvgLatencyMs }),
			P99LatencyMs: pick(func(r RunResult) float64 { return r.P99LatencyMs }),
			ErrorRate:    pick(func(r RunResult) float64 { return r.ErrorRatePercent }),
			CPUPercent:   pick(func(r RunResult) float64 { return r.CPUUsagePercent }),
			MemoryMB:     pick(func(r RunResult) float64 { return r.MemoryUsageMB }),
		})
	}
	return out
}

func spread(vals []float64) Spread {
	if len(vals) == 0 {
		return Spread{}
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	return Spread{
		Mean:   mean(sorted),
		StdDev: StdDev(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}
