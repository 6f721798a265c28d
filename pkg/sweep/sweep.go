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

// Package sweep expands a parameter sweep specification into the cartesian
// product of concrete job configurations.
package sweep

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ishandhanani/infbench/pkg/config"
)

// Param is one swept parameter with its candidate values. Bare scalars in
// the spec are normalized to single-element value lists before expansion.
type Param struct {
	Name   string
	Values []any
}

// Section is an ordered list of parameters. Order matters: combinations are
// enumerated in declaration order with the rightmost-declared parameter
// varying fastest, so output is reproducible run to run.
type Section []Param

// UnmarshalYAML decodes a section from a YAML mapping, preserving key order.
func (s *Section) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("sweep section must be a mapping of parameter to value(s)")
	}
	out := make(Section, 0, len(value.Content)/2)
	for i := 0; i < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]
		var v any
		if err := valNode.Decode(&v); err != nil {
			return err
		}
		values, ok := v.([]any)
		if !ok {
			values = []any{v}
		}
		if len(values) == 0 {
			return fmt.Errorf("sweep parameter %q has no values", keyNode.Value)
		}
		out = append(out, Param{Name: keyNode.Value, Values: values})
	}
	*s = out
	return nil
}

// Spec is the sweep block of a job config: per-section parameter value
// lists. The slurm and sglang sections expand independently of each other.
type Spec struct {
	Slurm  Section
	SGLang Section
}

// UnmarshalYAML decodes a sweep spec, rejecting unknown sections.
func (s *Spec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("sweep spec must be a mapping with slurm and/or sglang sections")
	}
	for i := 0; i < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]
		switch keyNode.Value {
		case "slurm":
			if err := valNode.Decode(&s.Slurm); err != nil {
				return err
			}
		case "sglang":
			if err := valNode.Decode(&s.SGLang); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid sweep section %q (must be slurm or sglang)", keyNode.Value)
		}
	}
	return nil
}

// Combination is one element of the cartesian product. Flat is the
// originating parameter assignment used for template substitution,
// preserved so manifests can record per-job provenance.
type Combination struct {
	Slurm  map[string]any
	SGLang map[string]any
	Flat   map[string]any
}

// Combinations enumerates the full product: the slurm section's product set
// crossed with the sglang section's product set. The two sections are
// independent; no zipping or correlation between them.
func Combinations(spec Spec) []Combination {
	slurmCombos := sectionCombos(spec.Slurm)
	sglangCombos := sectionCombos(spec.SGLang)

	out := make([]Combination, 0, len(slurmCombos)*len(sglangCombos))
	for _, slurm := range slurmCombos {
		for _, sglang := range sglangCombos {
			flat := make(map[string]any, len(slurm)+len(sglang))
			for k, v := range slurm {
				flat[k] = v
			}
			for k, v := range sglang {
				flat[k] = v
			}
			out = append(out, Combination{Slurm: slurm, SGLang: sglang, Flat: flat})
		}
	}
	return out
}

// sectionCombos builds the odometer product of one section, rightmost
// parameter varying fastest.
func sectionCombos(sec Section) []map[string]any {
	combos := []map[string]any{{}}
	for _, param := range sec {
		next := make([]map[string]any, 0, len(combos)*len(param.Values))
		for _, combo := range combos {
			for _, value := range param.Values {
				m := make(map[string]any, len(combo)+1)
				for k, v := range combo {
					m[k] = v
				}
				m[param.Name] = value
				next = append(next, m)
			}
		}
		combos = next
	}
	return combos
}

// Job pairs an expanded configuration with the parameter assignment that
// produced it.
type Job struct {
	Config *config.JobConfig
	Params map[string]any
}

// Expand produces one fully resolved job config per combination. Each job
// is an independent deep copy: slurm-section parameters override the
// resources/slurm fields they name, sglang-section parameters substitute
// into {param} placeholders inside the backend flag maps, and the job name
// gets a deterministic per-combination suffix.
func Expand(base *config.JobConfig, spec Spec) ([]Job, error) {
	combos := Combinations(spec)
	jobs := make([]Job, 0, len(combos))

	for i, combo := range combos {
		cfg, err := base.Clone()
		if err != nil {
			return nil, err
		}
		cfg.Name = fmt.Sprintf("%s-sweep%03d", base.Name, i+1)

		if err := applySlurmParams(cfg, combo.Slurm); err != nil {
			return nil, fmt.Errorf("combination %d: %w", i+1, err)
		}
		if cfg.Resources.ModeConflict() {
			return nil, fmt.Errorf("combination %d: sweep overrides mix aggregated and disaggregated resource keys", i+1)
		}

		if cfg.Backend.SGLangConfig != nil && len(combo.Flat) > 0 {
			if err := expandSGLangConfig(cfg.Backend.SGLangConfig, combo.Flat); err != nil {
				return nil, fmt.Errorf("combination %d: %w", i+1, err)
			}
		}

		jobs = append(jobs, Job{Config: cfg, Params: combo.Flat})
	}
	return jobs, nil
}

// applySlurmParams writes slurm-section sweep values into the config fields
// they name. Only schema keys are accepted.
func applySlurmParams(cfg *config.JobConfig, params map[string]any) error {
	for key, value := range params {
		switch key {
		case "account":
			cfg.Slurm.Account = fmt.Sprintf("%v", value)
		case "partition":
			cfg.Slurm.Partition = fmt.Sprintf("%v", value)
		case "time_limit":
			cfg.Slurm.TimeLimit = fmt.Sprintf("%v", value)
		case "gpus_per_node", "prefill_nodes", "decode_nodes", "prefill_workers",
			"decode_workers", "agg_nodes", "agg_workers":
			n, ok := value.(int)
			if !ok {
				return fmt.Errorf("sweep parameter %q must be an integer, got %v", key, value)
			}
			setResourceField(&cfg.Resources, key, n)
		default:
			return fmt.Errorf("unknown sweep parameter %q in slurm section", key)
		}
	}
	return nil
}

func setResourceField(r *config.ResourceConfig, key string, n int) {
	v := n
	switch key {
	case "gpus_per_node":
		r.GpusPerNode = &v
	case "prefill_nodes":
		r.PrefillNodes = &v
	case "decode_nodes":
		r.DecodeNodes = &v
	case "prefill_workers":
		r.PrefillWorkers = &v
	case "decode_workers":
		r.DecodeWorkers = &v
	case "agg_nodes":
		r.AggNodes = &v
	case "agg_workers":
		r.AggWorkers = &v
	}
}

func expandSGLangConfig(sc *config.SGLangConfig, params map[string]any) error {
	sections := []*config.FlagMap{&sc.Prefill, &sc.Decode, &sc.Aggregated}
	for _, sec := range sections {
		if *sec == nil {
			continue
		}
		expanded, err := ExpandTemplate(*sec, params)
		if err != nil {
			return err
		}
		*sec = expanded.(config.FlagMap)
	}
	return nil
}
