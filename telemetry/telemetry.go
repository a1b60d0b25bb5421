// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package telemetry sends a single anonymous usage event per command
// invocation. Reporting is strictly best-effort: failures are logged at
// debug level and never affect the command's outcome or exit code.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/spawnhq/spawn/logging"
)

// DefaultEndpoint receives usage events.
const DefaultEndpoint = "https://telemetry.spawn.dev/event"

const reportTimeout = 3 * time.Second

// Reporter posts usage events for one process.
type Reporter struct {
	projectID string
	endpoint  string
	enabled   bool
	logger    logging.Logger
	client    *http.Client
}

// New returns a Reporter. A disabled Reporter is valid and discards every
// event.
func New(projectID string, enabled bool, logger logging.Logger) *Reporter {
	return &Reporter{
		projectID: projectID,
		endpoint:  DefaultEndpoint,
		enabled:   enabled,
		logger:    logger,
		client:    &http.Client{Timeout: reportTimeout},
	}
}

type event struct {
	ProjectID string `json:"project_id"`
	Command   string `json:"command"`
	Version   string `json:"version"`
}

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

// Record posts one event naming the command that ran. It blocks for at
// most the report timeout.
func (r *Reporter) Record(ctx context.Context, command string) {
	if r == nil || !r.enabled {
		return
	}

	bs, err := json.Marshal(event{ProjectID: r.projectID, Command: command, Version: Version})
	if err != nil {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, r.endpoint, bytes.NewReader(bs))
	if err != nil {
		r.logger.Debug("telemetry: building request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("telemetry: %v", err)
		return
	}
	resp.Body.Close()
}
