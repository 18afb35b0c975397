package cmd

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchq/internal/config"
	"benchq/internal/export"
)

func writeMatrix(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matrix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestRunRejectsInvalidMatrix(t *testing.T) {
	path := writeMatrix(t, `
environments: []
endpoints:
  - name: fast
    requestCount: 5
iterations: 1
concurrencyLimit: 2
requestTimeoutMs: 1000
samplingIntervalMs: 100
`)

	rootCmd.SetArgs([]string{"run", "--config", path, "--no-store"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, config.ErrInvalid, errors.Cause(err))
}

func TestRunWritesExports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	path := writeMatrix(t, fmt.Sprintf(`
environments:
  - name: local
    baseAddress: %s
endpoints:
  - name: root
    path: /
    requestCount: 10
iterations: 2
concurrencyLimit: 4
requestTimeoutMs: 1000
samplingIntervalMs: 50
`, strings.TrimPrefix(srv.URL, "http://")))

	prefix := filepath.Join(t.TempDir(), "out", "results")
	rootCmd.SetArgs([]string{"run", "--config", path, "--no-store", "--out", prefix, "--log-level", "error"})
	require.NoError(t, rootCmd.Execute())

	f, err := os.Open(prefix + ".csv")
	require.NoError(t, err)
	defer f.Close()

	results, err := export.ReadCSV(f)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for i, r := range results {
		assert.Equal(t, i+1, r.Iteration)
		assert.Equal(t, "local", r.Environment)
		assert.Equal(t, 10, r.SuccessfulRequests)
	}

	_, err = os.Stat(prefix + ".json")
	assert.NoError(t, err)
}
