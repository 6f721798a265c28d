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
	"strings"
	"testing"

	"github.com/spf13/afero"
)

const clusterDoc = `
default_account: benchmarking
default_partition: batch
model_paths:
  llama70b: /lustre/models/llama-3.3-70b
containers:
  sglang-latest: nvcr.io/nvidia/sglang:v0.4.9
gpus_per_node: 8
`

const jobDoc = `
name: deepseek-disagg
slurm: {}
resources:
  gpu_type: gb200
  prefill_nodes: 4
  decode_nodes: 2
  prefill_workers: 2
  decode_workers: 1
  gpus_per_node: 4
model:
  path: llama70b
  container: sglang-latest
  precision: fp8
backend:
  type: sglang
  sglang_config:
    prefill:
      mem_fraction_static: 0.85
    decode:
      disable_radix_cache: true
`

func writeFiles(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func TestLoadEndToEnd(t *testing.T) {
	fs := writeFiles(t, map[string]string{
		"job.yaml":      jobDoc,
		"srtslurm.yaml": clusterDoc,
	})

	cfg, err := Load(fs, "job.yaml", "srtslurm.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Name != "deepseek-disagg" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.Slurm.Account != "benchmarking" || cfg.Slurm.Partition != "batch" {
		t.Errorf("cluster slurm defaults not applied: %+v", cfg.Slurm)
	}
	if cfg.Slurm.TimeLimit != DefaultTimeLimit {
		t.Errorf("TimeLimit = %q, want default %q", cfg.Slurm.TimeLimit, DefaultTimeLimit)
	}
	if cfg.Model.Path != "/lustre/models/llama-3.3-70b" {
		t.Errorf("model alias not resolved: %q", cfg.Model.Path)
	}
	if cfg.Model.Container != "nvcr.io/nvidia/sglang:v0.4.9" {
		t.Errorf("container alias not resolved: %q", cfg.Model.Container)
	}
	if cfg.Backend.GpuType != "gb200-fp8" {
		t.Errorf("derived backend gpu_type = %q, want gb200-fp8", cfg.Backend.GpuType)
	}
	if cfg.Benchmark.Type != BenchmarkManual {
		t.Errorf("Benchmark.Type = %q, want manual default", cfg.Benchmark.Type)
	}
	// Job-level gpus_per_node wins over the cluster-wide value.
	if cfg.Resources.GpusPerNode == nil || *cfg.Resources.GpusPerNode != 4 {
		t.Errorf("GpusPerNode = %v, want 4", cfg.Resources.GpusPerNode)
	}
	if cfg.Resources.Mode() != ModeDisaggregated {
		t.Errorf("Mode = %v, want disaggregated", cfg.Resources.Mode())
	}
}

func TestLoadClusterGpusPerNodeFillsAbsentField(t *testing.T) {
	// The job omits gpus_per_node entirely; the cluster config supplies it
	// during resolution, so validation still passes.
	doc := `
name: agg-job
slurm: {}
resources:
  gpu_type: gb200
  agg_nodes: 8
  agg_workers: 2
model:
  path: llama70b
  container: sglang-latest
  precision: fp4
backend:
  type: sglang
  sglang_config:
    aggregated:
      mem_fraction_static: 0.9
`
	fs := writeFiles(t, map[string]string{
		"job.yaml":      doc,
		"srtslurm.yaml": clusterDoc,
	})
	cfg, err := Load(fs, "job.yaml", "srtslurm.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Resources.GpusPerNode == nil || *cfg.Resources.GpusPerNode != 8 {
		t.Errorf("GpusPerNode = %v, want 8", cfg.Resources.GpusPerNode)
	}
	if cfg.Resources.Mode() != ModeAggregated {
		t.Errorf("Mode = %v, want aggregated", cfg.Resources.Mode())
	}
}

func TestLoadWithoutClusterConfig(t *testing.T) {
	doc := strings.Replace(jobDoc, "slurm: {}", "slurm:\n  account: a\n  partition: p", 1)
	fs := writeFiles(t, map[string]string{"job.yaml": doc})

	cfg, err := Load(fs, "job.yaml", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	// Aliases stay symbolic with no cluster config; validation only checks
	// presence.
	if cfg.Model.Path != "llama70b" {
		t.Errorf("Model.Path = %q, want unresolved alias", cfg.Model.Path)
	}
}

func TestLoadInvalidConfigCollectsErrors(t *testing.T) {
	fs := writeFiles(t, map[string]string{"job.yaml": "name: incomplete\n"})

	_, err := Load(fs, "job.yaml", "")
	if err == nil {
		t.Fatal("expected validation error")
	}
	invalid, ok := err.(*InvalidConfigError)
	if !ok {
		t.Fatalf("expected *InvalidConfigError, got %T: %v", err, err)
	}
	if len(invalid.Errors) < 4 {
		t.Errorf("expected all missing sections reported, got %v", invalid.Errors)
	}
}

func TestLoadRejectsBadEnums(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
		want string
	}{
		{"precision", "precision: fp8", "precision: int8", "invalid model precision"},
		{"gpu_type", "gpu_type: gb200", "gpu_type: mi300", "invalid gpu_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := strings.Replace(jobDoc, tt.old, tt.new, 1)
			fs := writeFiles(t, map[string]string{"job.yaml": doc})
			_, err := Load(fs, "job.yaml", "")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadRejectsNestedFlagMapValues(t *testing.T) {
	doc := strings.Replace(jobDoc, "      disable_radix_cache: true",
		"      nested:\n        oops: true", 1)
	fs := writeFiles(t, map[string]string{"job.yaml": doc})
	_, err := Load(fs, "job.yaml", "")
	if err == nil || !strings.Contains(err.Error(), "must be a scalar or list") {
		t.Errorf("expected nested flag value rejection, got %v", err)
	}
}

func TestLoadEmptyConfig(t *testing.T) {
	fs := writeFiles(t, map[string]string{"job.yaml": ""})
	if _, err := Load(fs, "job.yaml", ""); err == nil {
		t.Error("expected error for empty config")
	}
}

func TestLoadMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := Load(fs, "nope.yaml", ""); err == nil {
		t.Error("expected error for missing config file")
	}
}
