// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pgpsql

import (
	"bytes"
	"io/fs"
	"strings"
	"testing"

	"github.com/spawnhq/spawn/tmpl"
)

func TestEngineMigrationRenders(t *testing.T) {
	entries, err := engineMigrations.ReadDir(engineMigrationsRoot)
	if err != nil {
		t.Fatalf("reading embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded engine migrations")
	}

	for _, entry := range entries {
		dir := engineMigrationsRoot + "/" + entry.Name()
		up, err := engineMigrations.ReadFile(dir + "/up.sql")
		if err != nil {
			t.Fatalf("%s: %v", entry.Name(), err)
		}
		sub, err := fs.Sub(engineMigrations, dir)
		if err != nil {
			t.Fatalf("%s: %v", entry.Name(), err)
		}

		var out bytes.Buffer
		err = tmpl.Render(embedSource{fsys: sub}, "", map[string]interface{}{"schema": "_spawn"},
			entry.Name()+"/up.sql", up, &out)
		if err != nil {
			t.Fatalf("rendering %s: %v", entry.Name(), err)
		}

		sql := out.String()
		for _, want := range []string{
			`CREATE SCHEMA IF NOT EXISTS "_spawn";`,
			`"_spawn".migration_history`,
			`'APPLY'`,
			`'SUCCESS'`,
		} {
			if !strings.Contains(sql, want) {
				t.Errorf("%s: rendered SQL missing %q:\n%s", entry.Name(), want, sql)
			}
		}
	}
}

func TestEngineMigrationSchemaIsEscaped(t *testing.T) {
	dir := engineMigrationsRoot + "/00000000000001-install-history"
	up, err := engineMigrations.ReadFile(dir + "/up.sql")
	if err != nil {
		t.Fatal(err)
	}
	sub, err := fs.Sub(engineMigrations, dir)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err = tmpl.Render(embedSource{fsys: sub}, "", map[string]interface{}{"schema": `odd"schema`},
		"up.sql", up, &out)
	if err != nil {
		t.Fatalf("rendering: %v", err)
	}
	if !strings.Contains(out.String(), `"odd""schema".migration`) {
		t.Fatalf("schema identifier not escaped:\n%s", out.String())
	}
}
