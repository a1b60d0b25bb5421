// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spawnhq/spawn/spawnerr"
)

var initCommand = &cobra.Command{
	Use:   "init",
	Short: "Scaffold spawn.toml and the project directory layout",
	Run: func(_ *cobra.Command, _ []string) {
		os.Exit(initProject(os.Stdout, os.Stderr))
	},
}

const configTemplate = `spawn_folder = "db"
database = "main"
project_id = "%s"
telemetry = false

[databases.main]
engine = "postgres-psql"
spawn_database = "postgres"
spawn_schema = "_spawn"
environment = "dev"

[databases.main.command]
kind = "direct"
direct = ["psql", "--dbname", "postgres"]
`

func initProject(stdout, stderr io.Writer) int {
	path := rootParams.configFile
	if _, err := os.Stat(path); err == nil {
		err = spawnerr.New(spawnerr.ConfigError, "%s already exists", path)
		reportError(stderr, err)
		return exitCode(err)
	}

	content := fmt.Sprintf(configTemplate, uuid.NewString())
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		werr := spawnerr.Wrap(spawnerr.IOError, err, "writing %s", path)
		reportError(stderr, werr)
		return exitCode(werr)
	}

	base := filepath.Join(filepath.Dir(path), "db")
	for _, dir := range []string{"components", "migrations", "tests"} {
		if err := os.MkdirAll(filepath.Join(base, dir), 0o755); err != nil {
			werr := spawnerr.Wrap(spawnerr.IOError, err, "creating %s", dir)
			reportError(stderr, werr)
			return exitCode(werr)
		}
	}

	fmt.Fprintf(stdout, "created %s and %s/{components,migrations,tests}\n", path, base)
	return 0
}

func init() {
	RootCommand.AddCommand(initCommand)
}
