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
	"os"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/ishandhanani/infbench/pkg/logging"
)

// DefaultClusterConfigFile is the conventional cluster defaults file name,
// looked up in the working directory by the CLI. Library callers pass an
// explicit path instead.
const DefaultClusterConfigFile = "srtslurm.yaml"

// ClusterConfig holds cluster-wide defaults and aliases shared by every job
// submitted from a given cluster.
type ClusterConfig struct {
	DefaultAccount   string `yaml:"default_account,omitempty"`
	DefaultPartition string `yaml:"default_partition,omitempty"`
	DefaultTimeLimit string `yaml:"default_time_limit,omitempty"`
	DefaultContainer string `yaml:"default_container,omitempty"`

	// Symbolic name -> concrete path/image reference.
	ModelPaths map[string]string `yaml:"model_paths,omitempty"`
	Containers map[string]string `yaml:"containers,omitempty"`

	GpusPerNode      *int   `yaml:"gpus_per_node,omitempty"`
	NetworkInterface string `yaml:"network_interface,omitempty"`
}

// LoadClusterConfig reads the cluster defaults file. A missing file is not
// an error; a malformed file logs a warning and is ignored. Either way the
// submission path proceeds as if no defaults existed.
func LoadClusterConfig(fs afero.Fs, path string) *ClusterConfig {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Debug("No cluster config at %s - using config as-is", path)
		} else {
			logging.Warn("Failed to read cluster config %s: %v", path, err)
		}
		return nil
	}

	var cluster ClusterConfig
	if err := yaml.Unmarshal(data, &cluster); err != nil {
		logging.Warn("Failed to parse cluster config %s: %v - proceeding without defaults", path, err)
		return nil
	}
	logging.Debug("Loaded cluster config from %s", path)
	return &cluster
}

// Resolve applies cluster defaults and aliases to a raw user config. The
// input is never mutated; the result is a deep copy. With no cluster config
// the copy is returned unchanged.
//
// Defaults only fill absent fields. Alias resolution is different: model
// path and container are rewritten even when present, because the field may
// hold a symbolic name that needs expansion.
func Resolve(userConfig map[string]any, cluster *ClusterConfig) map[string]any {
	resolved := deepCopyMap(userConfig)
	if cluster == nil {
		return resolved
	}

	slurm, ok := section(resolved, "slurm")
	if !ok {
		slurm = map[string]any{}
		resolved["slurm"] = slurm
	}
	fillDefault(slurm, "account", cluster.DefaultAccount)
	fillDefault(slurm, "partition", cluster.DefaultPartition)
	fillDefault(slurm, "time_limit", cluster.DefaultTimeLimit)

	if cluster.GpusPerNode != nil {
		resources, ok := section(resolved, "resources")
		if !ok {
			resources = map[string]any{}
			resolved["resources"] = resources
		}
		if _, ok := resources["gpus_per_node"]; !ok {
			resources["gpus_per_node"] = *cluster.GpusPerNode
			logging.Debug("Applied cluster gpus_per_node: %d", *cluster.GpusPerNode)
		}
	}

	model, ok := section(resolved, "model")
	if !ok {
		return resolved
	}

	if path, ok := model["path"].(string); ok {
		if resolvedPath, ok := cluster.ModelPaths[path]; ok {
			model["path"] = resolvedPath
			logging.Debug("Resolved model alias %q -> %q", path, resolvedPath)
		}
	}

	if container, ok := model["container"].(string); ok {
		if resolvedContainer, ok := cluster.Containers[container]; ok {
			model["container"] = resolvedContainer
			logging.Debug("Resolved container alias %q -> %q", container, resolvedContainer)
		}
	} else if _, present := model["container"]; !present && cluster.DefaultContainer != "" {
		model["container"] = cluster.DefaultContainer
		logging.Debug("Applied default container: %s", cluster.DefaultContainer)
	}

	checkContainerReference(model)
	return resolved
}

// checkContainerReference warns when a resolved container does not parse as
// an image reference. Squashfs paths are also legal, so this never fails
// resolution.
func checkContainerReference(model map[string]any) {
	container, ok := model["container"].(string)
	if !ok || container == "" {
		return
	}
	if container[0] == '/' || container[0] == '.' {
		return // filesystem path, not a registry reference
	}
	if _, err := name.ParseReference(container); err != nil {
		logging.Warn("Container %q does not look like a valid image reference: %v", container, err)
	}
}

func fillDefault(m map[string]any, key, value string) {
	if value == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = value
		logging.Debug("Applied default %s: %s", key, value)
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return val
	}
}
