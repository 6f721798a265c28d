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

package sweep

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/ishandhanani/infbench/pkg/config"
)

func intp(n int) *int { return &n }

func mustSpec(t *testing.T, doc string) Spec {
	t.Helper()
	var spec Spec
	if err := yaml.Unmarshal([]byte(doc), &spec); err != nil {
		t.Fatalf("failed to parse sweep spec: %v", err)
	}
	return spec
}

func TestSpecRejectsUnknownSection(t *testing.T) {
	var spec Spec
	err := yaml.Unmarshal([]byte("vllm:\n  x: 1\n"), &spec)
	if err == nil || !strings.Contains(err.Error(), `invalid sweep section "vllm"`) {
		t.Errorf("expected unknown section rejection, got %v", err)
	}
}

func TestSectionNormalizesScalars(t *testing.T) {
	spec := mustSpec(t, `
slurm:
  gpus_per_node: 4
sglang:
  tp_size: [2, 4]
`)
	if len(spec.Slurm) != 1 || len(spec.Slurm[0].Values) != 1 {
		t.Fatalf("scalar not normalized to one-element list: %+v", spec.Slurm)
	}
	if spec.Slurm[0].Values[0] != 4 {
		t.Errorf("scalar value = %v, want 4", spec.Slurm[0].Values[0])
	}
	if len(spec.SGLang[0].Values) != 2 {
		t.Errorf("list values = %v", spec.SGLang[0].Values)
	}
}

func TestSectionRejectsEmptyValueList(t *testing.T) {
	var spec Spec
	err := yaml.Unmarshal([]byte("sglang:\n  tp_size: []\n"), &spec)
	if err == nil || !strings.Contains(err.Error(), "has no values") {
		t.Errorf("expected empty value list rejection, got %v", err)
	}
}

func TestCombinationsCount(t *testing.T) {
	spec := mustSpec(t, `
slurm:
  prefill_workers: [1, 2]
sglang:
  mem_fraction: [0.8]
  tp_size: [2, 4, 8]
`)
	combos := Combinations(spec)
	if len(combos) != 6 {
		t.Fatalf("got %d combinations, want 2*1*3 = 6", len(combos))
	}
}

func TestCombinationsOrdering(t *testing.T) {
	spec := mustSpec(t, `
slurm:
  prefill_workers: [1, 2]
sglang:
  tp_size: [2, 4]
`)
	combos := Combinations(spec)

	// Slurm section is the outer loop, sglang the inner; within a section
	// the rightmost-declared parameter varies fastest.
	want := [][2]any{
		{1, 2}, {1, 4}, {2, 2}, {2, 4},
	}
	for i, w := range want {
		if combos[i].Slurm["prefill_workers"] != w[0] || combos[i].SGLang["tp_size"] != w[1] {
			t.Errorf("combo %d = (%v, %v), want (%v, %v)", i,
				combos[i].Slurm["prefill_workers"], combos[i].SGLang["tp_size"], w[0], w[1])
		}
	}
}

func TestCombinationsFlatMergesSections(t *testing.T) {
	spec := mustSpec(t, `
slurm:
  gpus_per_node: [4]
sglang:
  tp_size: [8]
`)
	combos := Combinations(spec)
	want := map[string]any{"gpus_per_node": 4, "tp_size": 8}
	if diff := cmp.Diff(want, combos[0].Flat); diff != "" {
		t.Errorf("flat params mismatch (-want +got):\n%s", diff)
	}
}

func TestCombinationsEmptySpec(t *testing.T) {
	combos := Combinations(Spec{})
	if len(combos) != 1 {
		t.Fatalf("empty spec should yield exactly the base combination, got %d", len(combos))
	}
	if len(combos[0].Flat) != 0 {
		t.Errorf("base combination should carry no parameters: %v", combos[0].Flat)
	}
}

func baseConfig() *config.JobConfig {
	return &config.JobConfig{
		Name: "bench",
		Model: config.ModelConfig{
			Path:      "/models/llama",
			Container: "nvcr.io/nvidia/sglang:latest",
			Precision: config.PrecisionFP8,
		},
		Resources: config.ResourceConfig{
			GpuType:        config.GpuTypeGB200,
			GpusPerNode:    intp(4),
			PrefillNodes:   intp(4),
			DecodeNodes:    intp(2),
			PrefillWorkers: intp(1),
			DecodeWorkers:  intp(1),
		},
		Slurm: config.SlurmConfig{Account: "a", Partition: "p", TimeLimit: "04:00:00"},
		Backend: config.BackendConfig{
			Type: "sglang",
			SGLangConfig: &config.SGLangConfig{
				Prefill: config.FlagMap{"mem_fraction_static": "{mem_fraction}"},
				Decode:  config.FlagMap{"mem_fraction_static": "{mem_fraction}"},
			},
		},
	}
}

func TestExpand(t *testing.T) {
	spec := mustSpec(t, `
slurm:
  prefill_workers: [1, 2]
sglang:
  mem_fraction: [0.8, 0.9]
`)
	jobs, err := Expand(baseConfig(), spec)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(jobs) != 4 {
		t.Fatalf("got %d jobs, want 4", len(jobs))
	}

	if jobs[0].Config.Name != "bench-sweep001" || jobs[3].Config.Name != "bench-sweep004" {
		t.Errorf("job names = %q ... %q", jobs[0].Config.Name, jobs[3].Config.Name)
	}

	// Slurm parameters land in the typed resource fields.
	if got := *jobs[2].Config.Resources.PrefillWorkers; got != 2 {
		t.Errorf("job 3 prefill_workers = %d, want 2", got)
	}
	// SGLang parameters substitute into the flag map templates.
	if got := jobs[1].Config.Backend.SGLangConfig.Prefill["mem_fraction_static"]; got != "0.9" {
		t.Errorf("job 2 mem_fraction_static = %v, want \"0.9\"", got)
	}
	// Provenance carries the full flat assignment.
	want := map[string]any{"prefill_workers": 2, "mem_fraction": 0.9}
	if diff := cmp.Diff(want, jobs[3].Params); diff != "" {
		t.Errorf("job 4 params mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandIsolatesJobs(t *testing.T) {
	spec := mustSpec(t, `
sglang:
  mem_fraction: [0.8, 0.9]
`)
	jobs, err := Expand(baseConfig(), spec)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	jobs[0].Config.Backend.SGLangConfig.Prefill["mem_fraction_static"] = "mutated"
	if jobs[1].Config.Backend.SGLangConfig.Prefill["mem_fraction_static"] == "mutated" {
		t.Error("jobs share flag maps")
	}
}

func TestExpandSlurmOverridesAccount(t *testing.T) {
	// No sglang placeholders here: a slurm-only sweep must not need any.
	cfg := baseConfig()
	cfg.Backend.SGLangConfig.Prefill = config.FlagMap{"mem_fraction_static": 0.8}
	cfg.Backend.SGLangConfig.Decode = config.FlagMap{"mem_fraction_static": 0.8}

	spec := mustSpec(t, `
slurm:
  time_limit: ["01:00:00", "02:00:00"]
`)
	jobs, err := Expand(cfg, spec)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if jobs[0].Config.Slurm.TimeLimit != "01:00:00" || jobs[1].Config.Slurm.TimeLimit != "02:00:00" {
		t.Errorf("time limits = %q, %q", jobs[0].Config.Slurm.TimeLimit, jobs[1].Config.Slurm.TimeLimit)
	}
}

func TestExpandRejectsUnknownSlurmParameter(t *testing.T) {
	spec := mustSpec(t, `
slurm:
  partitoin: [batch]
`)
	_, err := Expand(baseConfig(), spec)
	if err == nil || !strings.Contains(err.Error(), `unknown sweep parameter "partitoin"`) {
		t.Errorf("expected unknown parameter error, got %v", err)
	}
}

func TestExpandRejectsModeMixing(t *testing.T) {
	spec := mustSpec(t, `
slurm:
  agg_nodes: [4]
`)
	_, err := Expand(baseConfig(), spec)
	if err == nil || !strings.Contains(err.Error(), "mix aggregated and disaggregated") {
		t.Errorf("expected mode mixing rejection, got %v", err)
	}
}

func TestExpandRejectsUnresolvedPlaceholder(t *testing.T) {
	cfg := baseConfig()
	cfg.Backend.SGLangConfig.Decode["log_dir"] = "{undci_dir}"
	spec := mustSpec(t, `
sglang:
  mem_fraction: [0.8]
`)
	_, err := Expand(cfg, spec)
	if err == nil || !strings.Contains(err.Error(), "unresolved placeholder") {
		t.Errorf("expected unresolved placeholder error, got %v", err)
	}
}
