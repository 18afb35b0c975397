package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
environments:
  - name: local
    label: Local
    baseAddress: localhost:8000
  - name: docker
    baseAddress: http://10.0.0.2:8000/
endpoints:
  - name: root
    path: /
    requestCount: 100
  - name: heavy
    path: heavy
    requestCount: 1000
iterations: 3
concurrencyLimit: 50
requestTimeoutMs: 30000
samplingIntervalMs: 500
`

func validConfig() *Config {
	return &Config{
		Environments:       []Environment{{Name: "local", BaseAddress: "localhost:8000"}},
		Endpoints:          []Endpoint{{Name: "root", Path: "/", RequestCount: 10}},
		Iterations:         1,
		ConcurrencyLimit:   5,
		RequestTimeoutMs:   1000,
		SamplingIntervalMs: 500,
	}
}

func TestLoadConfig_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Environments, 2)
	assert.Equal(t, "Local", cfg.Environments[0].Label)
	assert.Equal(t, "docker", cfg.Environments[1].Label, "label defaults to name")
	assert.Equal(t, "http://10.0.0.2:8000", cfg.Environments[1].BaseAddress)
	assert.Equal(t, "/heavy", cfg.Endpoints[1].Path)
	assert.Equal(t, 12, cfg.TotalRuns())
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.SamplingInterval())

	assert.Equal(t, DefaultProbeTimeoutMs, cfg.ProbeTimeoutMs)
	assert.Equal(t, DefaultBatchSafetyFactor, cfg.BatchSafetyFactor)
	assert.Equal(t, DefaultMaxSamples, cfg.MaxSamples)
}

func TestLoadConfig_ZeroRequestCountIsFatal(t *testing.T) {
	yaml := `
environments:
  - name: local
    baseAddress: localhost:8000
endpoints:
  - name: root
    path: /
    requestCount: 0
iterations: 1
concurrencyLimit: 1
requestTimeoutMs: 1000
samplingIntervalMs: 500
`
	_, err := Parse("zero.yaml", []byte(yaml))
	require.Error(t, err)
	assert.Equal(t, ErrInvalid, errors.Cause(err))
}

func TestLoadConfig_MissingRequiredField(t *testing.T) {
	yaml := `
environments:
  - name: local
    baseAddress: localhost:8000
endpoints:
  - name: root
    requestCount: 5
iterations: 1
requestTimeoutMs: 1000
samplingIntervalMs: 500
`
	_, err := Parse("missing.yaml", []byte(yaml))
	require.Error(t, err)
	assert.Equal(t, ErrInvalid, errors.Cause(err))
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no environments", func(c *Config) { c.Environments = nil }},
		{"no endpoints", func(c *Config) { c.Endpoints = nil }},
		{"zero request count", func(c *Config) { c.Endpoints[0].RequestCount = 0 }},
		{"negative request count", func(c *Config) { c.Endpoints[0].RequestCount = -1 }},
		{"zero iterations", func(c *Config) { c.Iterations = 0 }},
		{"zero concurrency", func(c *Config) { c.ConcurrencyLimit = 0 }},
		{"zero timeout", func(c *Config) { c.RequestTimeoutMs = 0 }},
		{"zero sampling interval", func(c *Config) { c.SamplingIntervalMs = 0 }},
		{"missing base address", func(c *Config) { c.Environments[0].BaseAddress = "" }},
		{"duplicate endpoint", func(c *Config) { c.Endpoints = append(c.Endpoints, c.Endpoints[0]) }},
		{"low safety factor", func(c *Config) { c.BatchSafetyFactor = 0.5 }},
		{"negative pid", func(c *Config) { c.TargetProcess.PID = -4 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, ErrInvalid, errors.Cause(err))
		})
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	first := *cfg
	require.NoError(t, cfg.Validate())
	assert.Equal(t, first.ProbeTimeoutMs, cfg.ProbeTimeoutMs)
	assert.Equal(t, first.Environments[0].Label, cfg.Environments[0].Label)
}

func TestExampleMatrixLoads(t *testing.T) {
	cfg, err := Load("../../matrix.yaml")
	require.NoError(t, err)
	assert.Equal(t, 2*3*3, cfg.TotalRuns())
	assert.Equal(t, "local", cfg.Environments[0].Label)
	assert.Equal(t, "uvicorn", cfg.TargetProcess.Name)
}
