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

package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ishandhanani/infbench/pkg/config"
	"github.com/ishandhanani/infbench/pkg/logging"
	"github.com/ishandhanani/infbench/pkg/submit"
)

var (
	clusterConfigPath string
	dryRun            bool
	runSweep          bool
	outputDir         string
	logDir            string
	rendezvousURL     string
	rendezvousTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&clusterConfigPath, "cluster-config", "", "Path to the cluster defaults file. Defaults to ./srtslurm.yaml when present.")
	submitCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render all launch artifacts without submitting to sbatch.")
	submitCmd.Flags().BoolVar(&runSweep, "sweep", false, "Expand the config's sweep section and submit every combination.")
	submitCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "dry-runs", "Directory for dry-run and sweep artifacts.")
	submitCmd.Flags().StringVar(&logDir, "log-dir", "logs", "Directory for batch job logs and submission artifacts.")
	submitCmd.Flags().StringVar(&rendezvousURL, "rendezvous-url", "", "Coordination service base URL to wait on before submitting.")
	submitCmd.Flags().DurationVar(&rendezvousTimeout, "rendezvous-timeout", 2*time.Minute, "How long to wait for the coordination service.")
}

var submitCmd = &cobra.Command{
	Use:   "submit CONFIG_FILE",
	Short: "Submits a benchmark job, or a sweep of jobs, to Slurm.",
	Long: `The 'submit' command loads a YAML benchmark configuration, resolves cluster
defaults and model aliases, validates it, and submits the rendered sbatch
script. With --sweep, the config's sweep section is expanded into the full
cartesian product and every combination is submitted. With --dry-run, all
artifacts are written to the output directory and nothing reaches sbatch.`,
	Args:         cobra.ExactArgs(1),
	Run:          runSubmitCmd,
	SilenceUsage: true,
}

func runSubmitCmd(cmd *cobra.Command, args []string) {
	opts := submit.Options{
		ConfigPath:        args[0],
		ClusterConfigPath: resolveClusterConfigPath(),
		DryRun:            dryRun,
		OutputDir:         outputDir,
		LogDir:            logDir,
		RendezvousURL:     rendezvousURL,
		RendezvousTimeout: rendezvousTimeout,
	}

	var err error
	if runSweep {
		err = submit.Sweep(opts)
	} else {
		err = submit.Single(opts)
	}
	if err != nil {
		logging.Fatal("submit failed: %v", err)
	}
}

// resolveClusterConfigPath falls back to the conventional srtslurm.yaml in
// the working directory when --cluster-config was not given.
func resolveClusterConfigPath() string {
	if clusterConfigPath != "" {
		return clusterConfigPath
	}
	if _, err := os.Stat(config.DefaultClusterConfigFile); err == nil {
		return config.DefaultClusterConfigFile
	}
	return ""
}
