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

package backend

// Mode identifies which worker pool a command is rendered for.
type Mode string

const (
	ModePrefill    Mode = "prefill"
	ModeDecode     Mode = "decode"
	ModeAggregated Mode = "aggregated"
)

// ScriptOptions carries launch-time parameters for batch script generation
// that are not part of the job config itself.
type ScriptOptions struct {
	// Timestamp names the log directory for this submission.
	Timestamp string
	// ConfigPath is where the generated backend config file will live on the
	// cluster filesystem.
	ConfigPath string
	// NetworkInterface pins worker traffic to one interface, from the
	// cluster config. Empty lets the worker pick.
	NetworkInterface string
	// LogDir is the directory batch output is written under.
	LogDir string
}

// Backend renders launch artifacts for one inference backend. Each backend
// is responsible for generating its config file, rendering per-mode worker
// commands, and generating the batch submission script.
//
// Implementations read the resolved JobConfig but never mutate it.
type Backend interface {
	// GenerateConfigFile returns the backend config file content, or nil
	// when the job declares no backend flag sections.
	GenerateConfigFile() ([]byte, error)

	// RenderCommand renders the full worker command for a mode: environment
	// assignments, invocation prefix, backend flags, coordination flags,
	// and parallelism flags. Rendering a mode against a config of the other
	// deployment shape is a caller bug and fails.
	RenderCommand(mode Mode) (string, error)

	// GenerateBatchScript renders the full cluster batch script for the
	// job's deployment mode.
	GenerateBatchScript(opts ScriptOptions) (string, error)
}
