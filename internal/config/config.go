// Matrix configuration: YAML loader with CUE schema validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is the cause of every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Defaults for the optional fields.
const (
	DefaultProbeTimeoutMs    = 3000
	DefaultProbeRetries      = 0
	DefaultProbeRetryDelayMs = 1000
	DefaultBatchSafetyFactor = 2.0
	DefaultMaxSamples        = 7200
)

// Environment is one target deployment of the service under test.
type Environment struct {
	Name        string `yaml:"name" json:"name"`
	Label       string `yaml:"label" json:"label"`
	BaseAddress string `yaml:"baseAddress" json:"baseAddress"`
}

// Endpoint is one path exercised on every environment.
type Endpoint struct {
	Name         string `yaml:"name" json:"name"`
	Path         string `yaml:"path" json:"path"`
	RequestCount int    `yaml:"requestCount" json:"requestCount"`
}

// TargetProcess identifies the process whose CPU and memory are sampled
// alongside the host. Both fields empty means host-only sampling.
type TargetProcess struct {
	PID  int32  `yaml:"pid" json:"pid"`
	Name string `yaml:"name" json:"name"`
}

// Config is the root matrix configuration.
type Config struct {
	Environments       []Environment `yaml:"environments" json:"environments"`
	Endpoints          []Endpoint    `yaml:"endpoints" json:"endpoints"`
	Iterations         int           `yaml:"iterations" json:"iterations"`
	ConcurrencyLimit   int           `yaml:"concurrencyLimit" json:"concurrencyLimit"`
	RequestTimeoutMs   int           `yaml:"requestTimeoutMs" json:"requestTimeoutMs"`
	SamplingIntervalMs int           `yaml:"samplingIntervalMs" json:"samplingIntervalMs"`

	ProbeTimeoutMs    int           `yaml:"probeTimeoutMs" json:"probeTimeoutMs"`
	ProbeRetries      int           `yaml:"probeRetries" json:"probeRetries"`
	ProbeRetryDelayMs int           `yaml:"probeRetryDelayMs" json:"probeRetryDelayMs"`
	BatchSafetyFactor float64       `yaml:"batchSafetyFactor" json:"batchSafetyFactor"`
	MaxSamples        int           `yaml:"maxSamples" json:"maxSamples"`
	TargetProcess     TargetProcess `yaml:"targetProcess" json:"targetProcess"`
}

// Load reads a YAML matrix file, checks it against the embedded CUE schema,
// decodes it and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read config")
	}
	return Parse(path, data)
}

// Parse is Load for in-memory YAML. name is only used in error messages.
func Parse(name string, data []byte) (*Config, error) {
	if err := ValidateSchema(name, data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal YAML config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies defaults to optional fields and rejects a matrix that
// cannot be run. It is idempotent.
func (c *Config) Validate() error {
	if len(c.Environments) == 0 {
		return invalid("at least one environment is required")
	}
	if len(c.Endpoints) == 0 {
		return invalid("at least one endpoint is required")
	}

	seen := make(map[string]bool)
	for i := range c.Environments {
		env := &c.Environments[i]
		env.Name = strings.TrimSpace(env.Name)
		env.BaseAddress = strings.TrimRight(strings.TrimSpace(env.BaseAddress), "/")
		if env.Name == "" {
			return invalid("environment #%d: name is required", i)
		}
		if seen[env.Name] {
			return invalid("environment %q: duplicate name", env.Name)
		}
		seen[env.Name] = true
		if env.BaseAddress == "" {
			return invalid("environment %q: baseAddress is required", env.Name)
		}
		if env.Label == "" {
			env.Label = env.Name
		}
	}

	seen = make(map[string]bool)
	for i := range c.Endpoints {
		ep := &c.Endpoints[i]
		ep.Name = strings.TrimSpace(ep.Name)
		if ep.Name == "" {
			return invalid("endpoint #%d: name is required", i)
		}
		if seen[ep.Name] {
			return invalid("endpoint %q: duplicate name", ep.Name)
		}
		seen[ep.Name] = true
		if ep.RequestCount <= 0 {
			return invalid("endpoint %q: requestCount must be greater than 0", ep.Name)
		}
		if ep.Path == "" {
			ep.Path = "/"
		} else if !strings.HasPrefix(ep.Path, "/") {
			ep.Path = "/" + ep.Path
		}
	}

	if c.Iterations <= 0 {
		return invalid("iterations must be greater than 0")
	}
	if c.ConcurrencyLimit <= 0 {
		return invalid("concurrencyLimit must be greater than 0")
	}
	if c.RequestTimeoutMs <= 0 {
		return invalid("requestTimeoutMs must be greater than 0")
	}
	if c.SamplingIntervalMs <= 0 {
		return invalid("samplingIntervalMs must be greater than 0")
	}

	if c.ProbeTimeoutMs == 0 {
		c.ProbeTimeoutMs = DefaultProbeTimeoutMs
	} else if c.ProbeTimeoutMs < 0 {
		return invalid("probeTimeoutMs cannot be negative")
	}
	if c.ProbeRetries < 0 {
		return invalid("probeRetries cannot be negative")
	}
	if c.ProbeRetryDelayMs == 0 {
		c.ProbeRetryDelayMs = DefaultProbeRetryDelayMs
	} else if c.ProbeRetryDelayMs < 0 {
		return invalid("probeRetryDelayMs cannot be negative")
	}
	if c.BatchSafetyFactor == 0 {
		c.BatchSafetyFactor = DefaultBatchSafetyFactor
	} else if c.BatchSafetyFactor < 1 {
		return invalid("batchSafetyFactor must be at least 1")
	}
	if c.MaxSamples == 0 {
		c.MaxSamples = DefaultMaxSamples
	} else if c.MaxSamples < 0 {
		return invalid("maxSamples cannot be negative")
	}
	if c.TargetProcess.PID < 0 {
		return invalid("targetProcess.pid cannot be negative")
	}
	return nil
}

// TotalRuns is the size of the environment x endpoint x iteration matrix.
func (c *Config) TotalRuns() int {
	return len(c.Environments) * len(c.Endpoints) * c.Iterations
}

// RequestTimeout returns the per-request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// SamplingInterval returns the resource sampling cadence.
func (c *Config) SamplingInterval() time.Duration {
	return time.Duration(c.SamplingIntervalMs) * time.Millisecond
}

// ProbeTimeout returns the connectivity probe timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

// ProbeRetryDelay returns the pause between probe attempts.
func (c *Config) ProbeRetryDelay() time.Duration {
	return time.Duration(c.ProbeRetryDelayMs) * time.Millisecond
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrap(ErrInvalid, fmt.Sprintf(format, args...))
}
