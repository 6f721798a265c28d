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

// Package config defines the job configuration schema, validates user
// configs, and resolves cluster-wide defaults and aliases.
//
// A JobConfig is a value object: the loader produces it once, fully resolved
// and validated, and downstream stages (sweep expansion, command rendering,
// submission) only read it.
package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Precision is a model precision/quantization format.
type Precision string

const (
	PrecisionFP4  Precision = "fp4"
	PrecisionFP8  Precision = "fp8"
	PrecisionFP16 Precision = "fp16"
	PrecisionBF16 Precision = "bf16"
)

// UnmarshalYAML rejects precisions outside the closed set.
func (p *Precision) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch Precision(s) {
	case PrecisionFP4, PrecisionFP8, PrecisionFP16, PrecisionBF16:
		*p = Precision(s)
		return nil
	}
	return fmt.Errorf("invalid model precision %q (expected fp4, fp8, fp16, or bf16)", s)
}

// GpuType is a supported GPU type.
type GpuType string

const (
	GpuTypeGB200 GpuType = "gb200"
	GpuTypeH100  GpuType = "h100"
)

// UnmarshalYAML rejects GPU types outside the closed set.
func (g *GpuType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch GpuType(s) {
	case GpuTypeGB200, GpuTypeH100:
		*g = GpuType(s)
		return nil
	}
	return fmt.Errorf("invalid gpu_type %q (expected gb200 or h100)", s)
}

// BenchmarkType selects how the benchmark phase is driven.
type BenchmarkType string

const (
	BenchmarkManual  BenchmarkType = "manual"
	BenchmarkSABench BenchmarkType = "sa-bench"
	BenchmarkMMLU    BenchmarkType = "mmlu"
	BenchmarkGPQA    BenchmarkType = "gpqa"
)

// DeploymentMode distinguishes the two resource topologies. Exactly one
// applies to a config; the validator rejects configs that declare both.
type DeploymentMode int

const (
	ModeDisaggregated DeploymentMode = iota
	ModeAggregated
)

func (m DeploymentMode) String() string {
	if m == ModeAggregated {
		return "aggregated"
	}
	return "disaggregated"
}

// DefaultTimeLimit is applied when slurm.time_limit is absent.
const DefaultTimeLimit = "04:00:00"

// DefaultGpusPerNode is assumed when resources.gpus_per_node is absent.
const DefaultGpusPerNode = 4

// defaultAdditionalFrontends matches the worker launch scripts.
const defaultAdditionalFrontends = 9

// JobConfig is the resolved, validated description of one benchmark job.
type JobConfig struct {
	Name            string          `yaml:"name"`
	Model           ModelConfig     `yaml:"model"`
	Resources       ResourceConfig  `yaml:"resources"`
	Slurm           SlurmConfig     `yaml:"slurm"`
	Backend         BackendConfig   `yaml:"backend"`
	Benchmark       BenchmarkConfig `yaml:"benchmark"`
	UseInitLocation bool            `yaml:"use_init_location,omitempty"`
	EnableConfigDump *bool          `yaml:"enable_config_dump,omitempty"`
}

// ModelConfig identifies the model to serve.
type ModelConfig struct {
	Path      string    `yaml:"path"`
	Container string    `yaml:"container"`
	Precision Precision `yaml:"precision"`
}

// ResourceConfig holds the node/worker geometry. The aggregated and
// disaggregated shapes are mutually exclusive; Mode() branches on the
// presence of agg_nodes and the validator guarantees no config carrying
// both shapes gets this far.
type ResourceConfig struct {
	GpuType     GpuType `yaml:"gpu_type"`
	GpusPerNode *int    `yaml:"gpus_per_node,omitempty"`

	// Disaggregated shape
	PrefillNodes   *int `yaml:"prefill_nodes,omitempty"`
	DecodeNodes    *int `yaml:"decode_nodes,omitempty"`
	PrefillWorkers *int `yaml:"prefill_workers,omitempty"`
	DecodeWorkers  *int `yaml:"decode_workers,omitempty"`

	// Aggregated shape
	AggNodes   *int `yaml:"agg_nodes,omitempty"`
	AggWorkers *int `yaml:"agg_workers,omitempty"`
}

// Mode reports the deployment mode, keyed on the presence of agg_nodes.
func (r *ResourceConfig) Mode() DeploymentMode {
	if r.AggNodes != nil {
		return ModeAggregated
	}
	return ModeDisaggregated
}

// ModeConflict reports whether both resource shapes are populated.
func (r *ResourceConfig) ModeConflict() bool {
	hasAgg := r.AggNodes != nil || r.AggWorkers != nil
	hasDisagg := r.PrefillNodes != nil || r.DecodeNodes != nil ||
		r.PrefillWorkers != nil || r.DecodeWorkers != nil
	return hasAgg && hasDisagg
}

// GpusPerNodeOrDefault returns gpus_per_node, defaulting to 4.
func (r *ResourceConfig) GpusPerNodeOrDefault() int {
	if r.GpusPerNode != nil {
		return *r.GpusPerNode
	}
	return DefaultGpusPerNode
}

// TotalNodes is the node count requested from the scheduler: agg_nodes in
// aggregated mode, prefill_nodes + decode_nodes in disaggregated mode.
func (r *ResourceConfig) TotalNodes() int {
	if r.Mode() == ModeAggregated {
		return intOrZero(r.AggNodes)
	}
	return intOrZero(r.PrefillNodes) + intOrZero(r.DecodeNodes)
}

func intOrZero(p *int) int {
	if p != nil {
		return *p
	}
	return 0
}

// SlurmConfig holds scheduler settings for the job.
type SlurmConfig struct {
	Account   string `yaml:"account"`
	Partition string `yaml:"partition"`
	TimeLimit string `yaml:"time_limit,omitempty"`
}

// BackendConfig configures the inference backend. GpuType is derived from
// resources.gpu_type and model.precision, never set by the user.
type BackendConfig struct {
	Type    string `yaml:"type"`
	GpuType string `yaml:"gpu_type,omitempty"`

	// Environment is shared across modes; the per-mode maps overlay it.
	Environment           map[string]string `yaml:"environment,omitempty"`
	PrefillEnvironment    map[string]string `yaml:"prefill_environment,omitempty"`
	DecodeEnvironment     map[string]string `yaml:"decode_environment,omitempty"`
	AggregatedEnvironment map[string]string `yaml:"aggregated_environment,omitempty"`

	SGLangConfig *SGLangConfig `yaml:"sglang_config,omitempty"`

	EnableMultipleFrontends *bool `yaml:"enable_multiple_frontends,omitempty"`
	NumAdditionalFrontends  *int  `yaml:"num_additional_frontends,omitempty"`
	EnableProfiling         bool  `yaml:"enable_profiling,omitempty"`
}

// MultipleFrontends reports enable_multiple_frontends, defaulting to true.
func (b *BackendConfig) MultipleFrontends() bool {
	if b.EnableMultipleFrontends != nil {
		return *b.EnableMultipleFrontends
	}
	return true
}

// AdditionalFrontends reports num_additional_frontends, defaulting to 9.
func (b *BackendConfig) AdditionalFrontends() int {
	if b.NumAdditionalFrontends != nil {
		return *b.NumAdditionalFrontends
	}
	return defaultAdditionalFrontends
}

// SGLangConfig holds per-mode backend flag maps. Sections are never merged
// across modes: an aggregated deployment reads only the aggregated section,
// a disaggregated one only prefill and decode.
type SGLangConfig struct {
	Prefill    FlagMap `yaml:"prefill,omitempty"`
	Decode     FlagMap `yaml:"decode,omitempty"`
	Aggregated FlagMap `yaml:"aggregated,omitempty"`
}

// Section returns the flag map for a mode name.
func (s *SGLangConfig) Section(mode string) FlagMap {
	switch mode {
	case "prefill":
		return s.Prefill
	case "decode":
		return s.Decode
	case "aggregated":
		return s.Aggregated
	}
	return nil
}

// FlagMap is an open-ended mapping of backend flag name to value. The flag
// set is large and versioned externally, so values stay a small closed
// variant (bool, number, string, or list of scalars) instead of a fixed
// record. Nested mappings are rejected at decode time.
type FlagMap map[string]any

// UnmarshalYAML decodes a flag map, rejecting nested mapping values.
func (f *FlagMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("backend flag section must be a mapping, got %s", value.Tag)
	}
	m := make(map[string]any, len(value.Content)/2)
	for i := 0; i < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]
		if valNode.Kind == yaml.MappingNode {
			return fmt.Errorf("backend flag %q must be a scalar or list, not a mapping", keyNode.Value)
		}
		var v any
		if err := valNode.Decode(&v); err != nil {
			return err
		}
		m[keyNode.Value] = v
	}
	*f = m
	return nil
}

// BenchmarkConfig describes the benchmark phase. Type manual requires no
// further fields; sa-bench requires isl, osl, and concurrencies.
type BenchmarkConfig struct {
	Type          BenchmarkType `yaml:"type,omitempty"`
	ISL           *int          `yaml:"isl,omitempty"`
	OSL           *int          `yaml:"osl,omitempty"`
	Concurrencies []int         `yaml:"concurrencies,omitempty"`
	ReqRate       string        `yaml:"req_rate,omitempty"`
}

// Arg renders the benchmark parameters as the single argument string the
// launch script passes to the benchmark driver: "isl osl c1xc2x... rate".
// Empty for manual benchmarks.
func (b *BenchmarkConfig) Arg() string {
	if b.Type != BenchmarkSABench {
		return ""
	}
	concurrency := make([]string, len(b.Concurrencies))
	for i, c := range b.Concurrencies {
		concurrency[i] = fmt.Sprintf("%d", c)
	}
	reqRate := b.ReqRate
	if reqRate == "" {
		reqRate = "inf"
	}
	return fmt.Sprintf("%d %d %s %s", intOrZero(b.ISL), intOrZero(b.OSL),
		strings.Join(concurrency, "x"), reqRate)
}

// String describes the benchmark phase for logs and summaries.
func (b *BenchmarkConfig) String() string {
	if b.Type == "" || b.Type == BenchmarkManual {
		return "type=manual"
	}
	if b.Type != BenchmarkSABench {
		return fmt.Sprintf("type=%s", b.Type)
	}
	concurrency := make([]string, len(b.Concurrencies))
	for i, c := range b.Concurrencies {
		concurrency[i] = fmt.Sprintf("%d", c)
	}
	reqRate := b.ReqRate
	if reqRate == "" {
		reqRate = "inf"
	}
	return fmt.Sprintf("type=%s; isl=%d; osl=%d; concurrencies=%s; req-rate=%s",
		b.Type, intOrZero(b.ISL), intOrZero(b.OSL), strings.Join(concurrency, "x"), reqRate)
}

// ApplyDefaults fills derived and defaulted fields on a validated config:
// slurm.time_limit, benchmark type, and the backend gpu_type which is always
// "{resources.gpu_type}-{model.precision}".
func (c *JobConfig) ApplyDefaults() {
	if c.Slurm.TimeLimit == "" {
		c.Slurm.TimeLimit = DefaultTimeLimit
	}
	if c.Benchmark.Type == "" {
		c.Benchmark.Type = BenchmarkManual
	}
	if c.Benchmark.ReqRate == "" {
		c.Benchmark.ReqRate = "inf"
	}
	if c.Backend.GpuType == "" {
		c.Backend.GpuType = fmt.Sprintf("%s-%s", c.Resources.GpuType, c.Model.Precision)
	}
}

// ConfigDump reports enable_config_dump, defaulting to true.
func (c *JobConfig) ConfigDump() bool {
	if c.EnableConfigDump != nil {
		return *c.EnableConfigDump
	}
	return true
}

// Clone returns a deep copy via a YAML round trip. JobConfig carries nested
// maps, so a field-by-field copy would silently alias them.
func (c *JobConfig) Clone() (*JobConfig, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config for copy: %w", err)
	}
	var out JobConfig
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config copy: %w", err)
	}
	return &out, nil
}
