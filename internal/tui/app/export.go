package app

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"benchq/internal/export"
	"benchq/internal/metrics"
)

// exportResults writes results to <dir>/benchq_report_<ts>.{csv,json} and
// returns the prefix used.
func exportResults(results []metrics.RunResult, dir string, now time.Time) (string, error) {
	if len(results) == 0 {
		return "", errors.New("no results to export yet")
	}

	base := fmt.Sprintf("benchq_report_%s", now.Format("20060102-150405"))
	if dir != "" {
		base = dir + "/" + base
	}

	f, err := export.Create(base)
	if err != nil {
		return "", err
	}
	for _, r := range results {
		if err := f.Emit(r); err != nil {
			f.Close()
			return "", err
		}
	}
	return base, f.Close()
}
