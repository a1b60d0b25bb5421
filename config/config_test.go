// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/util/test"
)

const validConfig = `
spawn_folder = "db"
database = "main"

[databases.main]
engine = "postgres-psql"
spawn_database = "app"
environment = "dev"

[databases.main.command]
kind = "direct"
direct = ["psql", "service=app"]

[databases.ci]
engine = "postgres-psql"
spawn_database = "app"
spawn_schema = "ci_spawn"

[databases.ci.command]
kind = "provider"
provider = ["resolve-psql", "--env", "ci"]
append = ["-v", "ON_ERROR_STOP=1"]
`

func load(t *testing.T, content string) (*Config, error) {
	t.Helper()
	var cfg *Config
	var err error
	test.WithTempFS(map[string]string{"spawn.toml": content}, func(dir string) {
		cfg, err = Load(filepath.Join(dir, "spawn.toml"))
	})
	return cfg, err
}

func TestLoadValid(t *testing.T) {
	cfg, err := load(t, validConfig)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	name, db, err := cfg.SelectDatabase("")
	if err != nil {
		t.Fatalf("SelectDatabase: %v", err)
	}
	if name != "main" {
		t.Fatalf("selected %q, want default database", name)
	}
	if db.SpawnSchema != DefaultSchema {
		t.Fatalf("schema %q, want defaulted %q", db.SpawnSchema, DefaultSchema)
	}
	want := CommandConfig{Kind: "direct", Direct: []string{"psql", "service=app"}}
	if diff := cmp.Diff(want, db.Command); diff != "" {
		t.Fatalf("command config mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectDatabaseFlagWins(t *testing.T) {
	cfg, err := load(t, validConfig)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	name, db, err := cfg.SelectDatabase("ci")
	if err != nil {
		t.Fatalf("SelectDatabase: %v", err)
	}
	if name != "ci" || db.SpawnSchema != "ci_spawn" {
		t.Fatalf("got %q schema %q", name, db.SpawnSchema)
	}
}

func TestSelectDatabaseEnvOverride(t *testing.T) {
	cfg, err := load(t, validConfig)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Setenv("SPAWN_DATABASE", "ci")
	name, _, err := cfg.SelectDatabase("")
	if err != nil {
		t.Fatalf("SelectDatabase: %v", err)
	}
	if name != "ci" {
		t.Fatalf("got %q, want env override", name)
	}
}

func TestSelectEnvironmentPrecedence(t *testing.T) {
	cfg, err := load(t, validConfig)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, db, err := cfg.SelectDatabase("main")
	if err != nil {
		t.Fatalf("SelectDatabase: %v", err)
	}
	if env := cfg.SelectEnvironment("", db); env != "dev" {
		t.Fatalf("got %q, want database environment", env)
	}
	if env := cfg.SelectEnvironment("prod", db); env != "prod" {
		t.Fatalf("got %q, want flag to win", env)
	}
	t.Setenv("SPAWN_ENVIRONMENT", "staging")
	if env := cfg.SelectEnvironment("", db); env != "staging" {
		t.Fatalf("got %q, want SPAWN_ENVIRONMENT to win over config", env)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		note    string
		content string
	}{
		{"missing spawn_folder", `database = "main"`},
		{"unknown engine", `
spawn_folder = "db"
[databases.main]
engine = "mysql"
spawn_database = "app"
[databases.main.command]
kind = "direct"
direct = ["mysql"]
`},
		{"bad command kind", `
spawn_folder = "db"
[databases.main]
engine = "postgres-psql"
spawn_database = "app"
[databases.main.command]
kind = "shell"
`},
		{"empty direct argv", `
spawn_folder = "db"
[databases.main]
engine = "postgres-psql"
spawn_database = "app"
[databases.main.command]
kind = "direct"
`},
	}
	for _, tc := range tests {
		_, err := load(t, tc.content)
		assertCode(t, tc.note, err, spawnerr.ConfigError)
	}
}

func TestLoadVariablesFormats(t *testing.T) {
	files := map[string]string{
		"v.json": `{"app": {"name": "spawn", "replicas": 3}, "flags": [true, false]}`,
		"v.toml": "[app]\nname = \"spawn\"\nreplicas = 3\n",
		"v.yaml": "app:\n  name: spawn\n  replicas: 3\n",
	}
	test.WithTempFS(files, func(dir string) {
		for _, f := range []string{"v.json", "v.toml", "v.yaml"} {
			vars, err := LoadVariables(filepath.Join(dir, f))
			if err != nil {
				t.Fatalf("%s: %v", f, err)
			}
			app, ok := vars["app"].(map[string]interface{})
			if !ok {
				t.Fatalf("%s: app is %T", f, vars["app"])
			}
			if app["name"] != "spawn" {
				t.Errorf("%s: name = %v", f, app["name"])
			}
			if n, ok := app["replicas"].(int64); !ok || n != 3 {
				t.Errorf("%s: replicas = %v (%T), want int64 3", f, app["replicas"], app["replicas"])
			}
		}
	})
}

func TestLoadVariablesUnknownExtension(t *testing.T) {
	test.WithTempFS(map[string]string{"v.ini": "a=1"}, func(dir string) {
		_, err := LoadVariables(filepath.Join(dir, "v.ini"))
		assertCode(t, "ini", err, spawnerr.ConfigError)
	})
}

func assertCode(t *testing.T, note string, err error, want spawnerr.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected error", note)
	}
	var serr *spawnerr.Error
	if !errors.As(err, &serr) {
		t.Fatalf("%s: got %T: %v", note, err, err)
	}
	if serr.Code != want {
		t.Fatalf("%s: code %v, want %v", note, serr.Code, want)
	}
}
