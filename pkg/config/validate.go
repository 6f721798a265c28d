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
	"fmt"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// resourceKeys is the full set of keys accepted under resources, used for
// "did you mean" hints on unknown keys.
var resourceKeys = []string{
	"gpu_type", "gpus_per_node",
	"prefill_nodes", "decode_nodes", "prefill_workers", "decode_workers",
	"agg_nodes", "agg_workers",
}

var aggregatedRequired = []string{"agg_nodes", "agg_workers", "gpus_per_node"}

var disaggregatedRequired = []string{
	"prefill_nodes", "decode_nodes", "prefill_workers", "decode_workers", "gpus_per_node",
}

// Validate checks a resolved config and returns every problem found, in
// schema order. An empty slice means the config is submittable. Errors are
// collected rather than short-circuited so the user sees all of them in one
// pass.
//
// The config is the raw decoded YAML document: presence checks here are
// about what the user actually wrote, which a typed struct can no longer
// distinguish from zero values.
func Validate(raw map[string]any) []string {
	var errs []string

	for _, key := range []string{"name", "slurm", "resources", "model", "backend"} {
		if _, ok := raw[key]; !ok {
			errs = append(errs, fmt.Sprintf("missing required top-level key: %q", key))
		}
	}
	if name, ok := raw["name"]; ok && name == "" {
		errs = append(errs, "name must not be empty")
	}

	if slurm, ok := section(raw, "slurm"); ok {
		for _, key := range []string{"account", "partition"} {
			if _, ok := slurm[key]; !ok {
				errs = append(errs, fmt.Sprintf("missing required slurm.%s", key))
			}
		}
	}

	isAggregated := false
	if resources, ok := section(raw, "resources"); ok {
		errs = append(errs, validateResources(resources)...)
		_, isAggregated = resources["agg_nodes"]
	}

	if model, ok := section(raw, "model"); ok {
		for _, key := range []string{"path", "container"} {
			if _, ok := model[key]; !ok {
				errs = append(errs, fmt.Sprintf("missing required model.%s", key))
			}
		}
	}

	if benchmark, ok := section(raw, "benchmark"); ok {
		if benchmark["type"] == "sa-bench" {
			for _, key := range []string{"isl", "osl", "concurrencies"} {
				if _, ok := benchmark[key]; !ok {
					errs = append(errs, fmt.Sprintf("sa-bench benchmark requires benchmark.%s", key))
				}
			}
		}
	}

	if backend, ok := section(raw, "backend"); ok {
		backendType, hasType := backend["type"]
		if !hasType {
			errs = append(errs, "missing required backend.type")
		}
		if sglangCfg, ok := section(backend, "sglang_config"); ok && backendType == "sglang" {
			errs = append(errs, validateSGLangSections(sglangCfg, isAggregated)...)
		}
	}

	return errs
}

func validateResources(resources map[string]any) []string {
	var errs []string

	// Mode is inferred from the shape of the section, so a config carrying
	// both shapes is ambiguous and must be rejected, never resolved by
	// picking one.
	_, hasAgg := resources["agg_nodes"]
	hasDisagg := false
	for _, key := range []string{"prefill_nodes", "decode_nodes", "prefill_workers", "decode_workers"} {
		if _, ok := resources[key]; ok {
			hasDisagg = true
		}
	}
	if _, ok := resources["agg_workers"]; ok {
		hasAgg = true
	}
	if hasAgg && hasDisagg {
		errs = append(errs,
			"resources declares both aggregated (agg_*) and disaggregated (prefill_*/decode_*) keys; exactly one deployment mode is allowed")
	}

	_, isAggregated := resources["agg_nodes"]
	required := disaggregatedRequired
	mode := "disaggregated"
	if isAggregated {
		required = aggregatedRequired
		mode = "aggregated"
	}
	for _, key := range required {
		if _, ok := resources[key]; !ok {
			errs = append(errs, fmt.Sprintf("%s mode requires resources.%s", mode, key))
		}
	}

	errs = append(errs, unknownKeyHints(resources)...)
	return errs
}

// unknownKeyHints flags resource keys outside the schema, suggesting the
// closest known key when one is a plausible misspelling.
func unknownKeyHints(resources map[string]any) []string {
	var unknown []string
	for key := range resources {
		known := false
		for _, k := range resourceKeys {
			if key == k {
				known = true
				break
			}
		}
		if !known {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	var errs []string
	for _, key := range unknown {
		msg := fmt.Sprintf("unknown resources key %q", key)
		if hint := closestKey(key, resourceKeys); hint != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", hint)
		}
		errs = append(errs, msg)
	}
	return errs
}

func closestKey(key string, candidates []string) string {
	best, bestDist := "", 3
	for _, candidate := range candidates {
		if d := levenshtein.Distance(key, candidate, nil); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

func validateSGLangSections(sglangCfg map[string]any, isAggregated bool) []string {
	var errs []string
	if isAggregated {
		if _, ok := sglangCfg["aggregated"]; !ok {
			errs = append(errs, "aggregated mode requires backend.sglang_config.aggregated")
		}
	} else {
		for _, mode := range []string{"prefill", "decode"} {
			if _, ok := sglangCfg[mode]; !ok {
				errs = append(errs, fmt.Sprintf("disaggregated mode requires backend.sglang_config.%s", mode))
			}
		}
	}
	return errs
}

func section(raw map[string]any, key string) (map[string]any, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// InvalidConfigError aggregates every validation failure for one config so
// the user never has to fix problems one invocation at a time.
type InvalidConfigError struct {
	Path   string
	Errors []string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config in %s:\n  %s", e.Path, strings.Join(e.Errors, "\n  "))
}
