// Copyright 2026 NVIDIA CORPORATION & AFFILIATES
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/ishandhanani/infbench/pkg/logging"
)

// Load reads a user config, applies cluster defaults from clusterPath (empty
// string skips them), validates, and returns the typed, fully resolved
// config. Validation failures come back as a single *InvalidConfigError
// carrying every problem found.
func Load(fs afero.Fs, path, clusterPath string) (*JobConfig, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	return Parse(fs, data, path, clusterPath)
}

// Parse resolves and validates an in-memory config document. The path is
// only used in error messages.
func Parse(fs afero.Fs, data []byte, path, clusterPath string) (*JobConfig, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if raw == nil {
		return nil, errors.Errorf("empty config: %s", path)
	}

	var cluster *ClusterConfig
	if clusterPath != "" {
		cluster = LoadClusterConfig(fs, clusterPath)
	}
	resolved := Resolve(raw, cluster)

	if errs := Validate(resolved); len(errs) > 0 {
		return nil, &InvalidConfigError{Path: path, Errors: errs}
	}

	cfg, err := decode(resolved)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config in %s", path)
	}
	cfg.ApplyDefaults()
	logging.Info("Loaded config: %s", cfg.Name)
	return cfg, nil
}

// decode converts the validated raw document into the typed JobConfig. The
// round trip through YAML runs every field's unmarshal validation (enums,
// flag map shape).
func decode(raw map[string]any) (*JobConfig, error) {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var cfg JobConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
