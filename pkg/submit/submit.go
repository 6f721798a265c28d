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

// Package submit sequences the submission pipeline: load and resolve the
// config, validate, optionally expand a sweep, render launch artifacts, and
// hand them to the external scheduler.
package submit

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/ishandhanani/infbench/pkg/backend"
	"github.com/ishandhanani/infbench/pkg/backend/sglang"
	"github.com/ishandhanani/infbench/pkg/config"
	"github.com/ishandhanani/infbench/pkg/logging"
	"github.com/ishandhanani/infbench/pkg/rendezvous"
	"github.com/ishandhanani/infbench/pkg/slurm"
	"github.com/ishandhanani/infbench/pkg/sweep"
)

const timestampFormat = "20060102_150405"

// Options configures one submission run.
type Options struct {
	ConfigPath        string
	ClusterConfigPath string
	DryRun            bool
	OutputDir         string // dry-run and sweep artifacts; defaults to "dry-runs"
	LogDir            string // batch log artifacts; defaults to "logs"

	// RendezvousURL, when set, gates real submission on the coordination
	// service answering within RendezvousTimeout.
	RendezvousURL     string
	RendezvousTimeout time.Duration

	Fs        afero.Fs
	Scheduler slurm.Scheduler

	// now is overridable in tests for stable artifact names.
	now func() time.Time
}

func (o *Options) defaults() {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Scheduler == nil {
		o.Scheduler = slurm.NewSbatch(o.Fs)
	}
	if o.OutputDir == "" {
		o.OutputDir = "dry-runs"
	}
	if o.LogDir == "" {
		o.LogDir = "logs"
	}
	if o.RendezvousTimeout == 0 {
		o.RendezvousTimeout = 2 * time.Minute
	}
	if o.now == nil {
		o.now = time.Now
	}
}

// newBackend constructs the backend implementation for a config.
func newBackend(cfg *config.JobConfig) (backend.Backend, error) {
	switch cfg.Backend.Type {
	case "sglang":
		return sglang.New(cfg), nil
	default:
		return nil, errors.Errorf("unknown backend type: %q", cfg.Backend.Type)
	}
}

// workerModes are the command modes rendered for a config's deployment.
func workerModes(cfg *config.JobConfig) []backend.Mode {
	if cfg.Resources.Mode() == config.ModeAggregated {
		return []backend.Mode{backend.ModeAggregated}
	}
	return []backend.Mode{backend.ModePrefill, backend.ModeDecode}
}

// Single submits one job from a YAML config, or saves its artifacts under
// the output directory in dry-run mode.
func Single(opts Options) error {
	opts.defaults()
	cfg, err := config.Load(opts.Fs, opts.ConfigPath, opts.ClusterConfigPath)
	if err != nil {
		return err
	}
	if opts.DryRun {
		return dryRunSingle(&opts, cfg, nil)
	}
	_, err = submitOne(&opts, cfg)
	return err
}

func dryRunSingle(opts *Options, cfg *config.JobConfig, params map[string]any) error {
	logging.Info("DRY-RUN MODE: %s", cfg.Name)
	ctx, err := newDryRunContext(opts.Fs, opts.OutputDir, cfg.Name, opts.now().Format(timestampFormat))
	if err != nil {
		return err
	}
	if err := ctx.saveConfig(cfg); err != nil {
		return err
	}

	b, err := newBackend(cfg)
	if err != nil {
		return err
	}
	backendCfg, err := b.GenerateConfigFile()
	if err != nil {
		return err
	}
	if err := ctx.saveBackendConfig(backendCfg); err != nil {
		return err
	}
	if err := ctx.saveCommands(b, workerModes(cfg)); err != nil {
		return err
	}
	if err := ctx.saveMetadata(cfg, params); err != nil {
		return err
	}
	ctx.printSummary(cfg.Name)
	return nil
}

// submitOne renders the batch script for one resolved config, hands it to
// the scheduler, and returns the scheduler's job ID. Submission artifacts are
// recorded in the log directory.
func submitOne(opts *Options, cfg *config.JobConfig) (string, error) {
	logging.Info("Submitting job: %s", cfg.Name)
	logging.Info("Benchmark: %s", cfg.Benchmark.String())
	timestamp := opts.now().Format(timestampFormat)

	b, err := newBackend(cfg)
	if err != nil {
		return "", err
	}
	backendCfg, err := b.GenerateConfigFile()
	if err != nil {
		return "", err
	}

	scriptOpts := backend.ScriptOptions{
		Timestamp:        timestamp,
		NetworkInterface: networkInterface(opts),
		LogDir:           opts.LogDir,
	}
	if backendCfg != nil {
		if err := opts.Fs.MkdirAll(opts.LogDir, 0o755); err != nil {
			return "", errors.Wrapf(err, "failed to create log directory %s", opts.LogDir)
		}
		cfgPath := filepath.Join(opts.LogDir, fmt.Sprintf("%s_%s_sglang_config.yaml", cfg.Name, timestamp))
		if err := afero.WriteFile(opts.Fs, cfgPath, backendCfg, 0o644); err != nil {
			return "", errors.Wrapf(err, "failed to write backend config %s", cfgPath)
		}
		scriptOpts.ConfigPath = cfgPath
	}

	script, err := b.GenerateBatchScript(scriptOpts)
	if err != nil {
		return "", err
	}

	if opts.RendezvousURL != "" {
		waitCtx, cancel := context.WithTimeout(context.Background(), opts.RendezvousTimeout)
		defer cancel()
		if err := rendezvous.WaitReady(waitCtx, opts.RendezvousURL); err != nil {
			return "", err
		}
	}

	jobID, err := opts.Scheduler.Submit(script)
	if err != nil {
		return "", errors.Wrapf(err, "failed to submit job %q", cfg.Name)
	}

	logDir := filepath.Join(opts.LogDir, slurm.LogDirName(jobID, cfg, timestamp))
	if err := saveSubmissionArtifacts(opts.Fs, logDir, cfg, script, backendCfg); err != nil {
		// Artifacts are a convenience; the job is already running.
		logging.Warn("Failed to save submission artifacts: %v", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("\nJob %s submitted!\n", jobID)
	fmt.Printf("Logs: %s\n\n", logDir)
	return jobID, nil
}

func saveSubmissionArtifacts(fs afero.Fs, logDir string, cfg *config.JobConfig, script string, backendCfg []byte) error {
	if err := fs.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	if err := afero.WriteFile(fs, filepath.Join(logDir, "sbatch_script.sh"), []byte(script), 0o755); err != nil {
		return err
	}
	if cfg.ConfigDump() {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		if err := afero.WriteFile(fs, filepath.Join(logDir, "config.yaml"), data, 0o644); err != nil {
			return err
		}
	}
	if backendCfg != nil {
		if err := afero.WriteFile(fs, filepath.Join(logDir, "sglang_config.yaml"), backendCfg, 0o644); err != nil {
			return err
		}
	}
	logging.Info("Logs directory: %s", logDir)
	return nil
}

func networkInterface(opts *Options) string {
	if opts.ClusterConfigPath == "" {
		return ""
	}
	cluster := config.LoadClusterConfig(opts.Fs, opts.ClusterConfigPath)
	if cluster == nil {
		return ""
	}
	return cluster.NetworkInterface
}

// Manifest records every job a sweep produced, its parameter assignment,
// and the scheduler's job ID or a failure marker.
type Manifest struct {
	SweepTimestamp string        `json:"sweep_timestamp"`
	TotalJobs      int           `json:"total_jobs"`
	Jobs           []ManifestJob `json:"jobs"`
}

// ManifestJob is one sweep job's provenance entry.
type ManifestJob struct {
	JobID      string         `json:"job_id"`
	Parameters map[string]any `json:"parameters"`
}

// Sweep expands the config's sweep block into the full cartesian product
// and submits every combination. Failures are isolated per combination: a
// failing job is marked in the manifest and the rest still submit.
func Sweep(opts Options) error {
	opts.defaults()
	cfg, err := config.Load(opts.Fs, opts.ConfigPath, opts.ClusterConfigPath)
	if err != nil {
		return err
	}
	spec, err := loadSweepSpec(opts.Fs, opts.ConfigPath)
	if err != nil {
		return err
	}

	jobs, err := sweep.Expand(cfg, *spec)
	if err != nil {
		return err
	}
	logging.Info("Generated %d configurations for sweep", len(jobs))

	timestamp := opts.now().Format(timestampFormat)
	sweepDir := filepath.Join(opts.OutputDir, fmt.Sprintf("%s_sweep_%s", cfg.Name, timestamp))

	if opts.DryRun {
		return dryRunSweep(&opts, cfg.Name, sweepDir, jobs)
	}

	manifest := Manifest{
		SweepTimestamp: opts.now().Format("2006-01-02 15:04:05"),
		TotalJobs:      len(jobs),
	}
	failed := 0
	for i, job := range jobs {
		logging.Info("[%d/%d] Submitting: %s", i+1, len(jobs), job.Config.Name)
		logging.Info("  Parameters: %v", job.Params)

		jobID, err := submitOne(&opts, job.Config)
		if err != nil {
			logging.Error("Failed to submit job %d: %v", i+1, err)
			jobID = fmt.Sprintf("failed_%d", i)
			failed++
		}
		manifest.Jobs = append(manifest.Jobs, ManifestJob{JobID: jobID, Parameters: job.Params})
	}

	if err := writeManifest(opts.Fs, sweepDir, manifest); err != nil {
		return err
	}
	printSweepSummary(cfg.Name, sweepDir, len(jobs), failed)
	return nil
}

func dryRunSweep(opts *Options, sweepName, sweepDir string, jobs []sweep.Job) error {
	logging.Info("DRY-RUN MODE: Sweep with %d jobs", len(jobs))
	for i, job := range jobs {
		logging.Info("[%d/%d] %s", i+1, len(jobs), job.Config.Name)
		logging.Info("  Parameters: %v", job.Params)

		jobOpts := *opts
		jobOpts.OutputDir = sweepDir
		if err := dryRunSingle(&jobOpts, job.Config, job.Params); err != nil {
			return err
		}
	}
	printSweepSummary(sweepName, sweepDir, len(jobs), 0)
	return nil
}

func writeManifest(fs afero.Fs, sweepDir string, manifest Manifest) error {
	if err := fs.MkdirAll(sweepDir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create sweep directory %s", sweepDir)
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal sweep manifest")
	}
	path := filepath.Join(sweepDir, "sweep_manifest.json")
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write sweep manifest %s", path)
	}
	logging.Info("Saved sweep manifest to %s", path)
	return nil
}

func printSweepSummary(name, dir string, total, failed int) {
	bold := color.New(color.Bold)
	rule := strings.Repeat("=", 60)

	fmt.Println()
	fmt.Println(rule)
	bold.Println("SWEEP SUMMARY")
	fmt.Println(rule)
	fmt.Printf("\nSweep: %s\n", name)
	fmt.Printf("Jobs: %d\n", total)
	if failed > 0 {
		color.New(color.FgRed).Printf("Failed submissions: %d\n", failed)
	}
	fmt.Printf("Output: %s\n", dir)
	fmt.Println("\n" + rule)
}

// loadSweepSpec extracts the sweep block from the config file.
func loadSweepSpec(fs afero.Fs, path string) (*sweep.Spec, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sweep config %s", path)
	}
	var doc struct {
		Sweep *sweep.Spec `yaml:"sweep"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "failed to parse sweep config %s", path)
	}
	if doc.Sweep == nil {
		return nil, errors.Errorf("config %s has no sweep section", path)
	}
	return doc.Sweep, nil
}
