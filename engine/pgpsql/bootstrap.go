// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pgpsql

import (
	"bytes"
	"context"
	"embed"
	"io/fs"
	"path"
	"sort"

	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/tmpl"
)

//go:embed static/engine-migrations/postgres-psql
var engineMigrations embed.FS

const engineMigrationsRoot = "static/engine-migrations/postgres-psql"

// applyArgs are the psql flags used when executing rendered SQL: no rc
// files, quiet, stop on the first error so the exit code is trustworthy.
var applyArgs = []string{"-X", "-q", "-v", "ON_ERROR_STOP=1"}

// embedSource presents one embedded engine-migration directory as a
// template source, so engine migrations render through the same pipeline
// as user migrations.
type embedSource struct {
	fsys fs.FS
}

func (s embedSource) Open(p string) ([]byte, error) {
	clean := path.Clean(p)
	if clean == ".." || len(clean) > 2 && clean[:3] == "../" || path.IsAbs(clean) {
		return nil, spawnerr.New(spawnerr.TemplateError, "security violation: path %q escapes the components root", p)
	}
	return fs.ReadFile(s.fsys, clean)
}

func (s embedSource) List() ([]string, error) {
	var out []string
	err := fs.WalkDir(s.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			out = append(out, p)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// Bootstrap installs the engine's state tables on first contact. It runs
// at most once per Engine; every entry point that touches history calls
// it first.
func (e *Engine) Bootstrap(ctx context.Context) error {
	e.bootstrapOnce.Do(func() {
		e.bootstrapErr = e.bootstrap(ctx)
	})
	return e.bootstrapErr
}

func (e *Engine) bootstrap(ctx context.Context) error {
	entries, err := engineMigrations.ReadDir(engineMigrationsRoot)
	if err != nil {
		return spawnerr.Wrap(spawnerr.IOError, err, "reading embedded engine migrations")
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	vars := map[string]interface{}{"schema": e.db.SpawnSchema}
	for _, name := range names {
		dir := engineMigrationsRoot + "/" + name
		up, err := engineMigrations.ReadFile(dir + "/up.sql")
		if err != nil {
			return spawnerr.Wrap(spawnerr.IOError, err, "reading embedded engine migration %s", name)
		}

		sub, err := fs.Sub(engineMigrations, dir)
		if err != nil {
			return spawnerr.Wrap(spawnerr.IOError, err, "scoping embedded engine migration %s", name)
		}

		var rendered bytes.Buffer
		if err := tmpl.Render(embedSource{fsys: sub}, "", vars, name+"/up.sql", up, &rendered); err != nil {
			return err
		}

		e.logger.Debug("bootstrap: applying engine migration %s", name)
		_, res, err := e.exec(ctx, applyArgs, rendered.String())
		if err != nil {
			return err
		}
		if res.exit != 0 {
			return engineExitError(res)
		}
	}
	return nil
}
