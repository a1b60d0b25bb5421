// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pgpsql

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	pkgerrors "github.com/pkg/errors"

	"github.com/spawnhq/spawn/config"
	"github.com/spawnhq/spawn/logging"
	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/util"
)

// ProviderTimeout bounds one provider command execution.
const ProviderTimeout = 30 * time.Second

// providerRetries is how many times a failed provider run is retried
// before giving up. Transient failures (a credential helper waiting on a
// network hiccup) get exactly one more chance.
const providerRetries = 1

const providerMinRetryDelay = float64(100 * time.Millisecond)

// Resolver turns a command config into the argv the engine executes. A
// provider command runs at most once per Resolver lifetime; its parsed
// output is cached for every subsequent execution.
type Resolver struct {
	cmd    config.CommandConfig
	logger logging.Logger

	mu     sync.Mutex
	cached []string
}

// NewResolver returns a Resolver over cmd.
func NewResolver(cmd config.CommandConfig, logger logging.Logger) *Resolver {
	return &Resolver{cmd: cmd, logger: logger}
}

// Argv returns the argv to execute. The returned slice is a copy; callers
// may append psql flags to it freely.
func (r *Resolver) Argv(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached == nil {
		argv, err := r.resolve(ctx)
		if err != nil {
			return nil, err
		}
		r.cached = argv
	}

	out := make([]string, len(r.cached))
	copy(out, r.cached)
	return out, nil
}

func (r *Resolver) resolve(ctx context.Context) ([]string, error) {
	if r.cmd.Kind == "direct" {
		if len(r.cmd.Direct) == 0 {
			return nil, spawnerr.New(spawnerr.ConfigError, "command.direct is empty")
		}
		return r.cmd.Direct, nil
	}

	line, err := r.runProvider(ctx)
	if err != nil {
		return nil, err
	}

	argv, err := shlex.Split(line)
	if err != nil {
		return nil, spawnerr.Wrap(spawnerr.ConfigError, err, "provider output is not a valid shell argv: %q", line)
	}
	if len(argv) == 0 {
		return nil, spawnerr.New(spawnerr.ConfigError, "provider output is empty")
	}
	return append(argv, r.cmd.Append...), nil
}

// runProvider executes the provider command, retrying once on failure,
// and returns its single line of stdout.
func (r *Resolver) runProvider(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= providerRetries; attempt++ {
		if attempt > 0 {
			delay := util.DefaultBackoff(providerMinRetryDelay, float64(ProviderTimeout), attempt-1)
			r.logger.Debug("provider command failed, retrying in %v: %v", delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", spawnerr.Wrap(spawnerr.IOError, ctx.Err(), "resolving provider command")
			}
		}

		line, err := r.runProviderOnce(ctx)
		if err == nil {
			return line, nil
		}
		lastErr = err
	}
	return "", spawnerr.Wrap(spawnerr.ConfigError, lastErr, "provider command failed")
}

func (r *Resolver) runProviderOnce(ctx context.Context) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, ProviderTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cmd.Provider[0], r.cmd.Provider[1:]...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return "", pkgerrors.Wrapf(err, "exit %d: %s", ee.ExitCode(), strings.TrimSpace(string(ee.Stderr)))
		}
		return "", pkgerrors.Wrap(err, "starting provider")
	}

	line := strings.TrimRight(string(out), "\r\n")
	if strings.ContainsAny(line, "\r\n") {
		return "", spawnerr.New(spawnerr.ConfigError, "provider printed more than one line of output")
	}
	return line, nil
}
