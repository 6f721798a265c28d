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

// Package slurm is the thin seam to the external batch scheduler. The core
// produces a script; everything past sbatch is the scheduler's problem.
package slurm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/ishandhanani/infbench/pkg/config"
	"github.com/ishandhanani/infbench/pkg/logging"
	"github.com/ishandhanani/infbench/pkg/shell"
)

// Scheduler submits batch scripts to the cluster.
type Scheduler interface {
	// Submit hands a script to the scheduler and returns the job ID it
	// assigned. Scheduler diagnostics are attached to any error.
	Submit(script string) (string, error)
}

// Sbatch submits through the sbatch binary.
type Sbatch struct {
	fs afero.Fs
}

// NewSbatch creates a Scheduler shelling out to sbatch.
func NewSbatch(fs afero.Fs) *Sbatch {
	return &Sbatch{fs: fs}
}

// Submit writes the script to a temp file, runs sbatch on it, and parses the
// assigned job ID from the trailing field of sbatch's stdout
// ("Submitted batch job 12345").
func (s *Sbatch) Submit(script string) (string, error) {
	tmpFile, err := afero.TempFile(s.fs, "", "infbench_job_*.sh")
	if err != nil {
		return "", errors.Wrap(err, "failed to create batch script file")
	}
	scriptPath := tmpFile.Name()
	defer s.fs.Remove(scriptPath)

	if _, err := tmpFile.WriteString(script); err != nil {
		tmpFile.Close()
		return "", errors.Wrap(err, "failed to write batch script")
	}
	if err := tmpFile.Close(); err != nil {
		return "", errors.Wrap(err, "failed to write batch script")
	}

	logging.Info("Submitting batch script %s", scriptPath)
	res := shell.ExecuteCommand("sbatch", scriptPath)
	if res.ExitCode != 0 {
		return "", fmt.Errorf("sbatch failed with exit code %d: %s\n%s", res.ExitCode, res.Stderr, res.Stdout)
	}

	jobID := parseJobID(res.Stdout)
	if jobID == "" {
		return "", fmt.Errorf("could not parse job ID from sbatch output: %q", res.Stdout)
	}
	logging.Info("Job submitted successfully with ID: %s", jobID)
	return jobID, nil
}

func parseJobID(stdout string) string {
	fields := strings.Fields(strings.TrimSpace(stdout))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// LogDirName builds the per-job log directory name:
// {id}_{W}A_{ts} for aggregated jobs, {id}_{P}P_{D}D_{ts} otherwise.
func LogDirName(jobID string, cfg *config.JobConfig, timestamp string) string {
	r := &cfg.Resources
	if r.Mode() == config.ModeAggregated {
		workers := 0
		if r.AggWorkers != nil {
			workers = *r.AggWorkers
		}
		return fmt.Sprintf("%s_%dA_%s", jobID, workers, timestamp)
	}
	prefill, decode := 0, 0
	if r.PrefillWorkers != nil {
		prefill = *r.PrefillWorkers
	}
	if r.DecodeWorkers != nil {
		decode = *r.DecodeWorkers
	}
	return fmt.Sprintf("%s_%dP_%dD_%s", jobID, prefill, decode, timestamp)
}
