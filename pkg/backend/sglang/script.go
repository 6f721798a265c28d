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
	"bytes"
	"fmt"
	"text/template"

	"github.com/ishandhanani/infbench/pkg/backend"
	"github.com/ishandhanani/infbench/pkg/config"
)

// DisaggScriptTemplate is the sbatch script for prefill/decode-disaggregated
// deployments. Prefill and decode worker pools get separate node sets from
// the one allocation.
const DisaggScriptTemplate = `#!/bin/bash
#SBATCH --job-name={{.JobName}}
#SBATCH --account={{.Account}}
#SBATCH --partition={{.Partition}}
#SBATCH --time={{.TimeLimit}}
#SBATCH --nodes={{.TotalNodes}}
#SBATCH --output={{.LogDir}}/{{.JobName}}_{{.Timestamp}}/%j.out
#SBATCH --error={{.LogDir}}/{{.JobName}}_{{.Timestamp}}/%j.err

set -euo pipefail

export MODEL_DIR={{.ModelDir}}
export CONTAINER_IMAGE={{.ContainerImage}}
export GPU_TYPE={{.GpuType}}
export GPUS_PER_NODE={{.GpusPerNode}}
{{- if .NetworkInterface}}
export NETWORK_INTERFACE={{.NetworkInterface}}
{{- end}}
{{- if .SGLangConfigPath}}
export SGLANG_CONFIG_PATH={{.SGLangConfigPath}}
{{- end}}
export ENABLE_MULTIPLE_FRONTENDS={{.EnableMultipleFrontends}}
export NUM_ADDITIONAL_FRONTENDS={{.NumAdditionalFrontends}}

NODES=($(scontrol show hostnames "$SLURM_JOB_NODELIST"))
MASTER_IP=$(getent hosts "${NODES[0]}" | awk '{print $1}')
export MASTER_IP

PREFILL_NODES={{.PrefillNodes}}
DECODE_NODES={{.DecodeNodes}}
PREFILL_WORKERS={{.PrefillWorkers}}
DECODE_WORKERS={{.DecodeWorkers}}

NODES_PER_PREFILL=$((PREFILL_NODES / PREFILL_WORKERS))
NODES_PER_DECODE=$((DECODE_NODES / DECODE_WORKERS))

for ((w = 0; w < PREFILL_WORKERS; w++)); do
    offset=$((w * NODES_PER_PREFILL))
    nodelist=$(IFS=,; echo "${NODES[*]:offset:NODES_PER_PREFILL}")
    srun --nodes="$NODES_PER_PREFILL" --nodelist="$nodelist" \
        --container-image="$CONTAINER_IMAGE" --container-mounts="$MODEL_DIR:/model/" \
        python3 worker.py --worker-type prefill --worker-idx "$w" \
        --nodes-per-worker "$NODES_PER_PREFILL" --gpu-type "$GPU_TYPE" &
done

for ((w = 0; w < DECODE_WORKERS; w++)); do
    offset=$((PREFILL_NODES + w * NODES_PER_DECODE))
    nodelist=$(IFS=,; echo "${NODES[*]:offset:NODES_PER_DECODE}")
    srun --nodes="$NODES_PER_DECODE" --nodelist="$nodelist" \
        --container-image="$CONTAINER_IMAGE" --container-mounts="$MODEL_DIR:/model/" \
        python3 worker.py --worker-type decode --worker-idx "$w" \
        --nodes-per-worker "$NODES_PER_DECODE" --gpu-type "$GPU_TYPE" &
done
{{- if .DoBenchmark}}

srun --nodes=1 --nodelist="${NODES[0]}" --overlap \
    python3 benchmark.py --type {{.BenchmarkType}} {{.BenchmarkArg}} &
{{- end}}

wait
`

// AggScriptTemplate is the sbatch script for aggregated deployments: one
// worker pool serves both phases.
const AggScriptTemplate = `#!/bin/bash
#SBATCH --job-name={{.JobName}}
#SBATCH --account={{.Account}}
#SBATCH --partition={{.Partition}}
#SBATCH --time={{.TimeLimit}}
#SBATCH --nodes={{.TotalNodes}}
#SBATCH --output={{.LogDir}}/{{.JobName}}_{{.Timestamp}}/%j.out
#SBATCH --error={{.LogDir}}/{{.JobName}}_{{.Timestamp}}/%j.err

set -euo pipefail

export MODEL_DIR={{.ModelDir}}
export CONTAINER_IMAGE={{.ContainerImage}}
export GPU_TYPE={{.GpuType}}
export GPUS_PER_NODE={{.GpusPerNode}}
{{- if .NetworkInterface}}
export NETWORK_INTERFACE={{.NetworkInterface}}
{{- end}}
{{- if .SGLangConfigPath}}
export SGLANG_CONFIG_PATH={{.SGLangConfigPath}}
{{- end}}
export ENABLE_MULTIPLE_FRONTENDS={{.EnableMultipleFrontends}}
export NUM_ADDITIONAL_FRONTENDS={{.NumAdditionalFrontends}}

NODES=($(scontrol show hostnames "$SLURM_JOB_NODELIST"))
MASTER_IP=$(getent hosts "${NODES[0]}" | awk '{print $1}')
export MASTER_IP

AGG_NODES={{.AggNodes}}
AGG_WORKERS={{.AggWorkers}}
NODES_PER_WORKER=$((AGG_NODES / AGG_WORKERS))

for ((w = 0; w < AGG_WORKERS; w++)); do
    offset=$((w * NODES_PER_WORKER))
    nodelist=$(IFS=,; echo "${NODES[*]:offset:NODES_PER_WORKER}")
    srun --nodes="$NODES_PER_WORKER" --nodelist="$nodelist" \
        --container-image="$CONTAINER_IMAGE" --container-mounts="$MODEL_DIR:/model/" \
        python3 worker.py --worker-type aggregated --worker-idx "$w" \
        --nodes-per-worker "$NODES_PER_WORKER" --gpu-type "$GPU_TYPE" &
done
{{- if .DoBenchmark}}

srun --nodes=1 --nodelist="${NODES[0]}" --overlap \
    python3 benchmark.py --type {{.BenchmarkType}} {{.BenchmarkArg}} &
{{- end}}

wait
`

// scriptVars feeds both batch script templates.
type scriptVars struct {
	JobName   string
	Account   string
	Partition string
	TimeLimit string
	Timestamp string
	LogDir    string

	TotalNodes     int
	PrefillNodes   int
	DecodeNodes    int
	PrefillWorkers int
	DecodeWorkers  int
	AggNodes       int
	AggWorkers     int

	ModelDir         string
	ContainerImage   string
	GpuType          string
	GpusPerNode      int
	NetworkInterface string
	SGLangConfigPath string

	EnableMultipleFrontends bool
	NumAdditionalFrontends  int

	DoBenchmark   bool
	BenchmarkType string
	BenchmarkArg  string
}

// GenerateBatchScript renders the sbatch script for the job's deployment
// mode. Template choice follows the same mode detection as validation, and
// total_nodes is agg_nodes or prefill_nodes + decode_nodes accordingly.
func (s *SGLang) GenerateBatchScript(opts backend.ScriptOptions) (string, error) {
	cfg := s.cfg
	r := &cfg.Resources

	vars := scriptVars{
		JobName:   cfg.Name,
		Account:   cfg.Slurm.Account,
		Partition: cfg.Slurm.Partition,
		TimeLimit: cfg.Slurm.TimeLimit,
		Timestamp: opts.Timestamp,
		LogDir:    opts.LogDir,

		TotalNodes: r.TotalNodes(),

		ModelDir:         cfg.Model.Path,
		ContainerImage:   cfg.Model.Container,
		GpuType:          cfg.Backend.GpuType,
		GpusPerNode:      r.GpusPerNodeOrDefault(),
		NetworkInterface: opts.NetworkInterface,
		SGLangConfigPath: opts.ConfigPath,

		EnableMultipleFrontends: cfg.Backend.MultipleFrontends(),
		NumAdditionalFrontends:  cfg.Backend.AdditionalFrontends(),

		DoBenchmark:   cfg.Benchmark.Type != "" && cfg.Benchmark.Type != config.BenchmarkManual,
		BenchmarkType: string(cfg.Benchmark.Type),
		BenchmarkArg:  cfg.Benchmark.Arg(),
	}
	if vars.LogDir == "" {
		vars.LogDir = "logs"
	}

	var tmplText string
	if r.Mode() == config.ModeAggregated {
		tmplText = AggScriptTemplate
		vars.AggNodes = *r.AggNodes
		if r.AggWorkers != nil {
			vars.AggWorkers = *r.AggWorkers
		}
	} else {
		tmplText = DisaggScriptTemplate
		if r.PrefillNodes == nil || r.DecodeNodes == nil || r.PrefillWorkers == nil || r.DecodeWorkers == nil {
			return "", fmt.Errorf("cannot generate disaggregated batch script for config %q: incomplete resource shape", cfg.Name)
		}
		vars.PrefillNodes = *r.PrefillNodes
		vars.DecodeNodes = *r.DecodeNodes
		vars.PrefillWorkers = *r.PrefillWorkers
		vars.DecodeWorkers = *r.DecodeWorkers
	}

	tmpl, err := template.New("batchScript").Parse(tmplText)
	if err != nil {
		return "", fmt.Errorf("failed to parse batch script template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute batch script template: %w", err)
	}
	return buf.String(), nil
}
