// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package config loads and validates spawn.toml, the project manifest
// that names the spawn folder, the configured databases, and how to reach
// each one.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/spawnhq/spawn/spawnerr"
)

// DefaultFileName is the config file looked up when --config-file is not
// given.
const DefaultFileName = "spawn.toml"

// DefaultSchema is the per-project schema the engine keeps its state
// tables under when spawn_schema is not configured.
const DefaultSchema = "_spawn"

// EnginePostgresPsql is the only engine kind this build understands.
const EnginePostgresPsql = "postgres-psql"

// Config is the parsed spawn.toml.
type Config struct {
	SpawnFolder string                    `toml:"spawn_folder"`
	Database    string                    `toml:"database"`
	Environment string                    `toml:"environment"`
	ProjectID   string                    `toml:"project_id"`
	Telemetry   *bool                     `toml:"telemetry"`
	Databases   map[string]DatabaseConfig `toml:"databases"`
}

// DatabaseConfig is one [databases.<name>] table.
type DatabaseConfig struct {
	Engine        string        `toml:"engine"`
	SpawnDatabase string        `toml:"spawn_database"`
	SpawnSchema   string        `toml:"spawn_schema"`
	Environment   string        `toml:"environment"`
	Command       CommandConfig `toml:"command"`
}

// CommandConfig describes how the engine obtains the argv it executes:
// either a literal argv (kind = "direct") or a provider command whose
// single line of stdout is tokenized into the argv (kind = "provider"),
// with Append tacked onto the end in both cases.
type CommandConfig struct {
	Kind     string   `toml:"kind"`
	Direct   []string `toml:"direct"`
	Provider []string `toml:"provider"`
	Append   []string `toml:"append"`
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, spawnerr.New(spawnerr.ConfigError, "config file %s not found; run `spawn init` to create one", path)
		}
		return nil, spawnerr.Wrap(spawnerr.IOError, err, "reading %s", path)
	}
	var cfg Config
	if err := toml.Unmarshal(bs, &cfg); err != nil {
		return nil, spawnerr.Wrap(spawnerr.ConfigError, err, "parsing %s", path)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate(path string) error {
	if c.SpawnFolder == "" {
		return spawnerr.New(spawnerr.ConfigError, "%s: spawn_folder is required", path)
	}
	for name, db := range c.Databases {
		if db.Engine != EnginePostgresPsql {
			return spawnerr.New(spawnerr.ConfigError, "%s: databases.%s: unsupported engine %q (only %q)", path, name, db.Engine, EnginePostgresPsql)
		}
		if db.SpawnDatabase == "" {
			return spawnerr.New(spawnerr.ConfigError, "%s: databases.%s: spawn_database is required", path, name)
		}
		switch db.Command.Kind {
		case "direct":
			if len(db.Command.Direct) == 0 {
				return spawnerr.New(spawnerr.ConfigError, "%s: databases.%s: command.direct must not be empty", path, name)
			}
		case "provider":
			if len(db.Command.Provider) == 0 {
				return spawnerr.New(spawnerr.ConfigError, "%s: databases.%s: command.provider must not be empty", path, name)
			}
		default:
			return spawnerr.New(spawnerr.ConfigError, "%s: databases.%s: command.kind must be \"direct\" or \"provider\", got %q", path, name, db.Command.Kind)
		}
	}
	return nil
}

// SelectDatabase resolves the database to operate on. Precedence, highest
// first: the --database flag, the SPAWN_DATABASE environment variable,
// the top-level `database` key. The returned config has SpawnSchema
// defaulted.
func (c *Config) SelectDatabase(flagName string) (string, DatabaseConfig, error) {
	name := flagName
	if name == "" {
		name = os.Getenv("SPAWN_DATABASE")
	}
	if name == "" {
		name = c.Database
	}
	if name == "" {
		return "", DatabaseConfig{}, spawnerr.New(spawnerr.ConfigError, "no database selected: set `database` in spawn.toml, SPAWN_DATABASE, or --database")
	}
	db, ok := c.Databases[name]
	if !ok {
		return "", DatabaseConfig{}, spawnerr.New(spawnerr.ConfigError, "unknown database %q: no [databases.%s] table", name, name)
	}
	if db.SpawnSchema == "" {
		db.SpawnSchema = DefaultSchema
	}
	return name, db, nil
}

// SelectEnvironment resolves the environment string bound into the
// template context as `env`. Precedence, highest first: the --environment
// flag, SPAWN_ENVIRONMENT, the database's `environment`, the top-level
// `environment`.
func (c *Config) SelectEnvironment(flagEnv string, db DatabaseConfig) string {
	if flagEnv != "" {
		return flagEnv
	}
	if env := os.Getenv("SPAWN_ENVIRONMENT"); env != "" {
		return env
	}
	if db.Environment != "" {
		return db.Environment
	}
	return c.Environment
}

// TelemetryEnabled reports whether anonymous telemetry should be sent:
// the `telemetry` key must be true (it defaults to false) and DO_NOT_TRACK
// must be unset.
func (c *Config) TelemetryEnabled() bool {
	if os.Getenv("DO_NOT_TRACK") != "" {
		return false
	}
	return c.Telemetry != nil && *c.Telemetry
}
