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

// Package rendezvous checks reachability of the worker coordination service
// (etcd). Workers use it to discover each other at startup; the submission
// path only cares whether it answers before handing work to the scheduler.
package rendezvous

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ishandhanani/infbench/pkg/logging"
)

const pollInterval = 2 * time.Second

// WaitReady polls the coordination service's health endpoint until it
// responds OK or the context is done. The service itself is an external
// collaborator; this is purely a reachability gate.
func WaitReady(ctx context.Context, baseURL string) error {
	healthURL := baseURL + "/health"
	client := &http.Client{Timeout: pollInterval}

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
		if err != nil {
			return fmt.Errorf("invalid coordination service URL %q: %w", baseURL, err)
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				logging.Debug("Coordination service ready at %s", baseURL)
				return nil
			}
			logging.Debug("Coordination service at %s returned status %d", baseURL, resp.StatusCode)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("coordination service at %s not reachable: %w", baseURL, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}
