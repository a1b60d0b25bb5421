// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package cmd wires spawn's CLI: one file per command group, each command
// delegating to a testable function that takes explicit writers and
// returns the process exit code.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spawnhq/spawn/config"
	"github.com/spawnhq/spawn/engine/pgpsql"
	"github.com/spawnhq/spawn/logging"
	"github.com/spawnhq/spawn/migration"
	"github.com/spawnhq/spawn/objstore"
	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/storage"
	"github.com/spawnhq/spawn/storage/fsstore"
	"github.com/spawnhq/spawn/telemetry"
)

// RootCommand is the base CLI command every subcommand attaches to.
var RootCommand = &cobra.Command{
	Use:           path.Base(os.Args[0]),
	Short:         "Spawn is a database build system for PostgreSQL",
	Long:          "Spawn treats SQL as a versioned codebase: components are composed into migrations with a template language and pinned into content-addressed snapshots for deterministic rebuilds.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

var rootParams = struct {
	configFile  string
	debug       bool
	database    string
	environment string
}{}

func init() {
	RootCommand.PersistentFlags().StringVar(&rootParams.configFile, "config-file", config.DefaultFileName, "path to the project config file")
	RootCommand.PersistentFlags().BoolVarP(&rootParams.debug, "debug", "d", false, "enable debug logging")
	RootCommand.PersistentFlags().StringVar(&rootParams.database, "database", "", "database key from the config file (overrides the default)")
	RootCommand.PersistentFlags().StringVarP(&rootParams.environment, "environment", "e", "", "environment name bound into templates as `env`")
}

func newLogger() logging.Logger {
	logger := logging.New()
	if rootParams.debug {
		logger.SetLevel(logging.Debug)
	}
	return logger
}

// project is everything a command needs once the config is loaded.
type project struct {
	cfg      *config.Config
	logger   logging.Logger
	root     storage.Store
	blobs    *objstore.BlobStore
	builder  *migration.Builder
	reporter *telemetry.Reporter
}

// loadProject loads the config file and opens the project's stores. index
// may be nil; pin passes an existence cache to speed repeated pinning.
func loadProject(index objstore.ExistsIndex) (*project, error) {
	logger := newLogger()

	cfg, err := config.Load(rootParams.configFile)
	if err != nil {
		return nil, err
	}

	folder := cfg.SpawnFolder
	if !filepath.IsAbs(folder) {
		folder = filepath.Join(filepath.Dir(rootParams.configFile), folder)
	}

	root, err := fsstore.New(folder)
	if err != nil {
		return nil, err
	}
	pinned, err := fsstore.New(filepath.Join(folder, "pinned"))
	if err != nil {
		return nil, err
	}

	blobs := objstore.NewBlobStore(pinned, index)
	return &project{
		cfg:      cfg,
		logger:   logger,
		root:     root,
		blobs:    blobs,
		builder:  migration.NewBuilder(root, blobs),
		reporter: telemetry.New(cfg.ProjectID, cfg.TelemetryEnabled(), logger),
	}, nil
}

// database resolves the selected database config, schema defaulted.
func (p *project) database() (string, config.DatabaseConfig, error) {
	return p.cfg.SelectDatabase(rootParams.database)
}

// engine returns the psql engine for the selected database.
func (p *project) engine() (*pgpsql.Engine, config.DatabaseConfig, error) {
	_, db, err := p.database()
	if err != nil {
		return nil, config.DatabaseConfig{}, err
	}
	return pgpsql.New(db, p.logger), db, nil
}

// environment resolves the env string for the selected database; commands
// that render without a database pass the zero config.
func (p *project) environment(db config.DatabaseConfig) string {
	return p.cfg.SelectEnvironment(rootParams.environment, db)
}

// exitCode maps an error to the documented process exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var serr *spawnerr.Error
	if errors.As(err, &serr) {
		return serr.Code.ExitCode()
	}
	return 1
}

// reportError prints err to stderr: the short message by default, the
// full cause chain under --debug.
func reportError(stderr io.Writer, err error) {
	if err == nil {
		return
	}
	if rootParams.debug {
		fmt.Fprintf(stderr, "error: %+v\n", err)
		for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
			fmt.Fprintf(stderr, "  caused by: %v\n", cause)
		}
		return
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
}

// finish maps err to an exit code, reporting it first, and records the
// telemetry event for the command on the way out.
func finish(p *project, command string, err error, stderr io.Writer) int {
	if p != nil {
		p.reporter.Record(RootCommand.Context(), command)
	}
	reportError(stderr, err)
	return exitCode(err)
}
