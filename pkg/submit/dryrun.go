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

package submit

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/ishandhanani/infbench/pkg/backend"
	"github.com/ishandhanani/infbench/pkg/config"
	"github.com/ishandhanani/infbench/pkg/logging"
)

// dryRunContext collects the artifacts a dry run produces in place of an
// actual submission: the resolved config, the generated backend config, the
// rendered worker commands, and submission metadata.
type dryRunContext struct {
	fs        afero.Fs
	dir       string
	timestamp string

	hasBackendConfig bool
}

func newDryRunContext(fs afero.Fs, baseDir, jobName, timestamp string) (*dryRunContext, error) {
	dir := filepath.Join(baseDir, fmt.Sprintf("%s_%s", jobName, timestamp))
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create dry-run directory %s", dir)
	}
	logging.Info("Dry-run output directory: %s", dir)
	return &dryRunContext{fs: fs, dir: dir, timestamp: timestamp}, nil
}

func (ctx *dryRunContext) saveConfig(cfg *config.JobConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal resolved config")
	}
	return ctx.write("config.yaml", data)
}

func (ctx *dryRunContext) saveBackendConfig(data []byte) error {
	if data == nil {
		return nil
	}
	ctx.hasBackendConfig = true
	return ctx.write("sglang_config.yaml", data)
}

// saveCommands renders every worker command for the config's deployment
// mode into one annotated shell fragment.
func (ctx *dryRunContext) saveCommands(b backend.Backend, modes []backend.Mode) error {
	var sb strings.Builder
	sb.WriteString("#!/bin/bash\n")
	sb.WriteString("# Generated SGLang commands\n\n")
	for _, mode := range modes {
		cmd, err := b.RenderCommand(mode)
		if err != nil {
			return err
		}
		sb.WriteString("# ============================================================\n")
		sb.WriteString(fmt.Sprintf("# %s WORKER COMMAND\n", strings.ToUpper(string(mode))))
		sb.WriteString("# ============================================================\n\n")
		sb.WriteString(cmd)
		sb.WriteString("\n\n")
	}
	return ctx.write("commands.sh", []byte(sb.String()))
}

func (ctx *dryRunContext) saveMetadata(cfg *config.JobConfig, params map[string]any) error {
	metadata := map[string]any{
		"job_name":  cfg.Name,
		"timestamp": ctx.timestamp,
		"mode":      "dry-run",
	}
	if len(params) > 0 {
		metadata["parameters"] = params
	}
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal metadata")
	}
	return ctx.write("metadata.json", data)
}

func (ctx *dryRunContext) write(name string, data []byte) error {
	path := filepath.Join(ctx.dir, name)
	if err := afero.WriteFile(ctx.fs, path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	logging.Info("  Saved %s", name)
	return nil
}

func (ctx *dryRunContext) printSummary(jobName string) {
	bold := color.New(color.Bold)
	rule := strings.Repeat("=", 60)

	fmt.Println()
	fmt.Println(rule)
	bold.Println("DRY-RUN SUMMARY")
	fmt.Println(rule)
	fmt.Printf("\nJob Name: %s\n", jobName)
	fmt.Printf("Output Directory: %s\n", ctx.dir)
	fmt.Println("\nGenerated Files:")
	fmt.Println("  - config.yaml          (resolved config with defaults)")
	if ctx.hasBackendConfig {
		fmt.Println("  - sglang_config.yaml   (SGLang flags)")
	}
	fmt.Println("  - commands.sh          (full bash commands)")
	fmt.Println("  - metadata.json        (submission info)")
	fmt.Printf("\nTo see what commands would run:\n  cat %s\n", filepath.Join(ctx.dir, "commands.sh"))
	fmt.Println("\n" + rule)
}
