package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/friggog/tree-gen/internal/params"
)

const (
	envParamsJSON    = "TREEGEN_PARAMS_JSON"
	envParamsYAMLB64 = "TREEGEN_PARAMS_YAML_B64"
)

// paramsFromEnv decodes a parameter set handed over through the environment,
// as done by orchestrators that cannot mount files. JSON wins when both
// variables are set.
func paramsFromEnv() (*params.ParameterSet, bool, error) {
	jsonPayload := os.Getenv(envParamsJSON)
	yamlPayload := os.Getenv(envParamsYAMLB64)

	if jsonPayload == "" && yamlPayload == "" {
		return nil, false, nil
	}

	var data []byte
	if jsonPayload != "" {
		data = []byte(jsonPayload)
	} else {
		decoded, err := base64.StdEncoding.DecodeString(yamlPayload)
		if err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", envParamsYAMLB64, err)
		}
		data = decoded
	}

	p, err := params.Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("environment parameters: %w", err)
	}
	if p.Name == "" {
		p.Name = "env"
	}
	return p, true, nil
}
