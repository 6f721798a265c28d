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

package sglang

import (
	"strings"
	"testing"

	"github.com/ishandhanani/infbench/pkg/backend"
	"github.com/ishandhanani/infbench/pkg/config"
)

func assertScriptContains(t *testing.T, script string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}
}

func TestGenerateBatchScriptDisaggregated(t *testing.T) {
	script, err := New(disaggConfig()).GenerateBatchScript(backend.ScriptOptions{
		Timestamp:        "20250102_030405",
		ConfigPath:       "logs/deepseek-disagg_20250102_030405_sglang_config.yaml",
		NetworkInterface: "enP6p9s0np0",
		LogDir:           "logs",
	})
	if err != nil {
		t.Fatalf("GenerateBatchScript failed: %v", err)
	}

	assertScriptContains(t, script,
		"#SBATCH --job-name=deepseek-disagg",
		"#SBATCH --account=acct",
		"#SBATCH --partition=batch",
		"#SBATCH --time=04:00:00",
		"#SBATCH --nodes=6", // prefill 4 + decode 2
		"#SBATCH --output=logs/deepseek-disagg_20250102_030405/%j.out",
		"export MODEL_DIR=/models/deepseek",
		"export CONTAINER_IMAGE=nvcr.io/nvidia/sglang:latest",
		"export GPU_TYPE=gb200-fp8",
		"export GPUS_PER_NODE=4",
		"export NETWORK_INTERFACE=enP6p9s0np0",
		"export SGLANG_CONFIG_PATH=logs/deepseek-disagg_20250102_030405_sglang_config.yaml",
		"PREFILL_NODES=4",
		"DECODE_NODES=2",
		"PREFILL_WORKERS=2",
		"DECODE_WORKERS=1",
	)
	if strings.Contains(script, "benchmark.py") {
		t.Error("manual benchmark config should not produce a benchmark stanza")
	}
}

func TestGenerateBatchScriptAggregatedWithBenchmark(t *testing.T) {
	cfg := aggConfig()
	cfg.Benchmark = config.BenchmarkConfig{
		Type:          config.BenchmarkSABench,
		ISL:           intp(1024),
		OSL:           intp(1024),
		Concurrencies: []int{8, 16},
		ReqRate:       "inf",
	}

	script, err := New(cfg).GenerateBatchScript(backend.ScriptOptions{Timestamp: "20250102_030405"})
	if err != nil {
		t.Fatalf("GenerateBatchScript failed: %v", err)
	}

	assertScriptContains(t, script,
		"#SBATCH --nodes=8",
		"AGG_NODES=8",
		"AGG_WORKERS=2",
		"--type sa-bench 1024 1024 8x16 inf",
	)
	// LogDir defaults when unset.
	assertScriptContains(t, script, "#SBATCH --output=logs/llama-agg_20250102_030405/%j.out")
	if strings.Contains(script, "PREFILL_NODES") {
		t.Error("aggregated script should not carry disaggregated worker pools")
	}
}

func TestGenerateBatchScriptOmitsOptionalExports(t *testing.T) {
	script, err := New(disaggConfig()).GenerateBatchScript(backend.ScriptOptions{Timestamp: "ts"})
	if err != nil {
		t.Fatalf("GenerateBatchScript failed: %v", err)
	}
	if strings.Contains(script, "NETWORK_INTERFACE") {
		t.Error("NETWORK_INTERFACE exported without a configured interface")
	}
	if strings.Contains(script, "SGLANG_CONFIG_PATH") {
		t.Error("SGLANG_CONFIG_PATH exported without a config path")
	}
}

func TestGenerateBatchScriptIncompleteShape(t *testing.T) {
	cfg := disaggConfig()
	cfg.Resources.DecodeWorkers = nil
	if _, err := New(cfg).GenerateBatchScript(backend.ScriptOptions{Timestamp: "ts"}); err == nil {
		t.Error("expected error for incomplete disaggregated resource shape")
	}
}

func TestGenerateBatchScriptFrontendExports(t *testing.T) {
	cfg := aggConfig()
	off := false
	cfg.Backend.EnableMultipleFrontends = &off
	cfg.Backend.NumAdditionalFrontends = intp(3)

	script, err := New(cfg).GenerateBatchScript(backend.ScriptOptions{Timestamp: "ts"})
	if err != nil {
		t.Fatalf("GenerateBatchScript failed: %v", err)
	}
	assertScriptContains(t, script,
		"export ENABLE_MULTIPLE_FRONTENDS=false",
		"export NUM_ADDITIONAL_FRONTENDS=3",
	)
}
