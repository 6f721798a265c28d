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

// Package sglang renders launch artifacts for the SGLang inference backend:
// the per-mode flag config file, shell-ready worker commands, and the sbatch
// script handed to the cluster scheduler.
package sglang

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"

	"github.com/ishandhanani/infbench/pkg/backend"
	"github.com/ishandhanani/infbench/pkg/config"
)

// workerModule is the entrypoint workers run. Profiling mode swaps in the
// bare server so the torch profiler can attach.
const (
	workerModule    = "dynamo.sglang"
	profilingModule = "sglang.launch_server"
)

// SGLang implements backend.Backend for SGLang deployments.
type SGLang struct {
	cfg *config.JobConfig
}

// New creates an SGLang backend over a resolved config.
func New(cfg *config.JobConfig) *SGLang {
	return &SGLang{cfg: cfg}
}

// activeModes are the config file sections this deployment uses: prefill and
// decode for disaggregated, aggregated otherwise. Sections are never merged
// across modes.
func (s *SGLang) activeModes() []backend.Mode {
	if s.cfg.Resources.Mode() == config.ModeAggregated {
		return []backend.Mode{backend.ModeAggregated}
	}
	return []backend.Mode{backend.ModePrefill, backend.ModeDecode}
}

// GenerateConfigFile emits the SGLang config file: a YAML document whose
// top-level keys are restricted to the active mode set. Returns nil when
// the job has no sglang_config.
func (s *SGLang) GenerateConfigFile() ([]byte, error) {
	sc := s.cfg.Backend.SGLangConfig
	if sc == nil {
		return nil, nil
	}

	doc := map[string]config.FlagMap{}
	for _, mode := range s.activeModes() {
		if section := sc.Section(string(mode)); section != nil {
			doc[string(mode)] = section
		}
	}
	if len(doc) == 0 {
		return nil, nil
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sglang config: %w", err)
	}
	return data, nil
}

// RenderCommand renders the full worker command for one mode. Steps are in
// fixed order so output diffs cleanly between runs: environment, invocation
// prefix, backend flags, coordination flags, parallelism flags.
func (s *SGLang) RenderCommand(mode backend.Mode) (string, error) {
	nnodes, err := s.nodesForMode(mode)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, env := range s.environmentFor(mode) {
		lines = append(lines, env+" \\")
	}

	module := workerModule
	if s.cfg.Backend.EnableProfiling {
		module = profilingModule
	}
	lines = append(lines, fmt.Sprintf("python3 -m %s \\", module))

	if sc := s.cfg.Backend.SGLangConfig; sc != nil {
		lines = append(lines, flagLines(sc.Section(string(mode)))...)
	}

	// Host and port are resolved by the launch environment, not here.
	lines = append(lines, "    --dist-init-addr $HOST_IP_MACHINE:$PORT \\")
	lines = append(lines, fmt.Sprintf("    --nnodes %d \\", nnodes))
	lines = append(lines, "    --node-rank $RANK \\")

	// Expert, tensor, and data parallel degree are always equal; there is
	// no independent knob for them.
	gpus := s.cfg.Resources.GpusPerNodeOrDefault()
	lines = append(lines, fmt.Sprintf("    --ep-size %d \\", gpus))
	lines = append(lines, fmt.Sprintf("    --tp-size %d \\", gpus))
	lines = append(lines, fmt.Sprintf("    --dp-size %d", gpus))

	return strings.Join(lines, "\n"), nil
}

// nodesForMode returns the node count for a worker mode, rejecting
// mode/shape mismatches loudly: that is a caller bug, not user input.
func (s *SGLang) nodesForMode(mode backend.Mode) (int, error) {
	r := &s.cfg.Resources
	switch mode {
	case backend.ModePrefill:
		if r.Mode() != config.ModeDisaggregated || r.PrefillNodes == nil {
			return 0, fmt.Errorf("cannot render prefill command for %s config %q", r.Mode(), s.cfg.Name)
		}
		return *r.PrefillNodes, nil
	case backend.ModeDecode:
		if r.Mode() != config.ModeDisaggregated || r.DecodeNodes == nil {
			return 0, fmt.Errorf("cannot render decode command for %s config %q", r.Mode(), s.cfg.Name)
		}
		return *r.DecodeNodes, nil
	case backend.ModeAggregated:
		if r.Mode() != config.ModeAggregated {
			return 0, fmt.Errorf("cannot render aggregated command for %s config %q", r.Mode(), s.cfg.Name)
		}
		return *r.AggNodes, nil
	}
	return 0, fmt.Errorf("unknown worker mode %q", mode)
}

// environmentFor merges the shared environment with the mode's overlay and
// returns sorted KEY=VALUE assignments.
func (s *SGLang) environmentFor(mode backend.Mode) []string {
	merged := map[string]string{}
	for k, v := range s.cfg.Backend.Environment {
		merged[k] = v
	}
	var overlay map[string]string
	switch mode {
	case backend.ModePrefill:
		overlay = s.cfg.Backend.PrefillEnvironment
	case backend.ModeDecode:
		overlay = s.cfg.Backend.DecodeEnvironment
	case backend.ModeAggregated:
		overlay = s.cfg.Backend.AggregatedEnvironment
	}
	for k, v := range overlay {
		merged[k] = v
	}

	keys := maps.Keys(merged)
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = fmt.Sprintf("%s=%s", k, merged[k])
	}
	return out
}

// flagLines converts one mode's flag map to CLI flag lines. Keys are sorted
// before emission so output does not depend on map iteration order.
// Underscores become hyphens; a true boolean is a bare flag, a false one is
// omitted; list values join with single spaces.
func flagLines(section config.FlagMap) []string {
	keys := maps.Keys(section)
	sort.Strings(keys)

	var lines []string
	for _, key := range keys {
		flagName := strings.ReplaceAll(key, "_", "-")
		switch value := section[key].(type) {
		case bool:
			if value {
				lines = append(lines, fmt.Sprintf("    --%s \\", flagName))
			}
		case []any:
			parts := make([]string, len(value))
			for i, v := range value {
				parts[i] = fmt.Sprintf("%v", v)
			}
			lines = append(lines, fmt.Sprintf("    --%s %s \\", flagName, strings.Join(parts, " ")))
		default:
			lines = append(lines, fmt.Sprintf("    --%s %v \\", flagName, value))
		}
	}
	return lines
}
