package export

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"benchq/internal/metrics"
)

// Files is the CSV and JSON pair written for one matrix invocation.
type Files struct {
	CSV  *CSVWriter
	JSON *JSONWriter

	CSVPath  string
	JSONPath string
}

// Create opens prefix.csv and prefix.json, creating parent directories.
func Create(prefix string) (*Files, error) {
	if dir := filepath.Dir(prefix); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}

	f := &Files{CSVPath: prefix + ".csv", JSONPath: prefix + ".json"}

	cf, err := os.Create(f.CSVPath)
	if err != nil {
		return nil, errors.Wrap(err, "create csv export")
	}
	jf, err := os.Create(f.JSONPath)
	if err != nil {
		cf.Close()
		return nil, errors.Wrap(err, "create json export")
	}

	f.CSV = NewCSVWriter(cf)
	f.JSON = NewJSONWriter(jf)
	return f, nil
}

func (f *Files) Emit(r metrics.RunResult) error {
	if err := f.CSV.Emit(r); err != nil {
		return err
	}
	return f.JSON.Emit(r)
}

func (f *Files) Close() error {
	cerr := f.CSV.Close()
	jerr := f.JSON.Close()
	if cerr != nil {
		return cerr
	}
	return jerr
}
