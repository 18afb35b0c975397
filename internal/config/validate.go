// CUE schema validation code
package config

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/pkg/errors"
)

// Schema is the CUE description of a matrix file. Optional fields get their
// defaults in Validate, not here.
const Schema = `
#Environment: {
	name:        string & !=""
	label?:      string
	baseAddress: string & !=""
}

#Endpoint: {
	name:         string & !=""
	path?:        string
	requestCount: int & >0
}

environments: [...#Environment]
endpoints: [...#Endpoint]
iterations:         int & >0
concurrencyLimit:   int & >0
requestTimeoutMs:   int & >0
samplingIntervalMs: int & >0

probeTimeoutMs?:    int & >=0
probeRetries?:      int & >=0
probeRetryDelayMs?: int & >=0
batchSafetyFactor?: number & >=1
maxSamples?:        int & >=0
targetProcess?: {
	pid?:  int & >=0
	name?: string
}
`

// ValidateSchema checks raw YAML against Schema.
func ValidateSchema(name string, yamlBytes []byte) error {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileString(Schema)
	if schemaVal.Err() != nil {
		return errors.Wrap(schemaVal.Err(), "cannot compile CUE schema")
	}

	file, err := cueyaml.Extract(name, yamlBytes)
	if err != nil {
		return errors.Wrapf(ErrInvalid, "cannot parse YAML config: %v", err)
	}
	configVal := ctx.BuildFile(file)
	if configVal.Err() != nil {
		return errors.Wrapf(ErrInvalid, "cannot build config value: %v", configVal.Err())
	}

	final := schemaVal.Unify(configVal)
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return errors.Wrapf(ErrInvalid, "schema validation failed: %v", err)
	}
	return nil
}
