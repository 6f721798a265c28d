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

// Package shell wraps external command execution for the submission path.
// The cluster scheduler (sbatch) is an external collaborator; everything it
// tells us comes back through a Result.
package shell

import (
	"bytes"
	"math/rand"
	"os/exec"
	"strings"
	"time"
)

// Result captures the outcome of an executed command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Command is an external command with optional stdin input.
type Command struct {
	name  string
	args  []string
	input string
}

// NewCommand creates a Command for later execution.
func NewCommand(name string, args ...string) *Command {
	return &Command{name: name, args: args}
}

// SetInput sets the string piped to the command's stdin.
func (c *Command) SetInput(input string) {
	c.input = input
}

// Execute runs the command and collects its output. A failure to start the
// process is reported as exit code -1 with the error text in Stderr.
func (c *Command) Execute() Result {
	cmd := exec.Command(c.name, c.args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.input != "" {
		cmd.Stdin = strings.NewReader(c.input)
	}

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			if res.Stderr == "" {
				res.Stderr = err.Error()
			}
		}
	}
	return res
}

// ExecuteCommand runs a command and waits for it to finish.
func ExecuteCommand(name string, args ...string) Result {
	return NewCommand(name, args...).Execute()
}

// RandomString returns a random lowercase string of the given length, used to
// uniquify generated artifact names.
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz"
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[seededRand.Intn(len(charset))]
	}
	return string(b)
}
