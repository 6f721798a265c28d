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

// Package cmd defines the infbench command line interface.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ishandhanani/infbench/pkg/logging"
)

var debugLogging bool

var rootCmd = &cobra.Command{
	Use:   "infbench",
	Short: "Submits inference serving benchmarks to Slurm clusters.",
	Long: `infbench turns declarative YAML benchmark configurations into Slurm batch
jobs. A configuration names the model, the cluster resources, and the serving
backend; infbench resolves cluster defaults and model aliases, validates the
result, renders the worker launch commands and sbatch script, and hands the
script to sbatch. Parameter sweeps expand one configuration into the full
cartesian product of its sweep values.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.SetDebug(debugLogging)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Enable debug logging.")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.Fatal("%v", err)
	}
}
