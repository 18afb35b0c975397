package export

import (
	"bytes"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"benchq/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONWriter writes results as one indented JSON array. The closing
// bracket is written by Close.
type JSONWriter struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	n      int
	closed bool
}

// NewJSONWriter writes to w. If w is an io.Closer, Close closes it.
func NewJSONWriter(w io.Writer) *JSONWriter {
	j := &JSONWriter{w: w}
	if cl, ok := w.(io.Closer); ok {
		j.closer = cl
	}
	return j
}

func (j *JSONWriter) Emit(r metrics.RunResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return errors.New("json writer is closed")
	}

	// jsoniter rejects a non-empty prefix, so nest the element by hand
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode run result")
	}
	data = bytes.ReplaceAll(data, []byte("\n"), []byte("\n  "))

	sep := ",\n  "
	if j.n == 0 {
		sep = "[\n  "
	}
	if _, err := io.WriteString(j.w, sep); err != nil {
		return errors.Wrap(err, "write json")
	}
	if _, err := j.w.Write(data); err != nil {
		return errors.Wrap(err, "write json")
	}
	j.n++
	return nil
}

func (j *JSONWriter) WriteAll(results []metrics.RunResult) error {
	for _, r := range results {
		if err := j.Emit(r); err != nil {
			return err
		}
	}
	return nil
}

// Close terminates the array; an empty writer produces "[]".
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	tail := "\n]\n"
	if j.n == 0 {
		tail = "[]\n"
	}
	_, err := io.WriteString(j.w, tail)
	if j.closer != nil {
		if cerr := j.closer.Close(); err == nil {
			err = cerr
		}
	}
	return errors.Wrap(err, "close json")
}

// ReadJSON parses what JSONWriter wrote.
func ReadJSON(r io.Reader) ([]metrics.RunResult, error) {
	var out []metrics.RunResult
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "read json")
	}
	return out, nil
}
