// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spawnhq/spawn/cmd"
	"github.com/spawnhq/spawn/logging"
	"github.com/spawnhq/spawn/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New()
	shutdown, err := tracing.Init(ctx, logger)
	if err != nil {
		logger.Warn("tracing disabled: %v", err)
		shutdown = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdown(context.Background()) }()

	if err := cmd.RootCommand.ExecuteContext(ctx); err != nil {
		// Subcommands exit themselves; reaching here means cobra rejected
		// the invocation (unknown command or flag), a user-input error.
		os.Exit(2)
	}
}
