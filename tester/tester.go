// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package tester builds and runs SQL tests: each directory under tests/
// holds a test.sql template and an optional expected baseline, and a run
// is a render, a psql execution, and a line diff against the baseline.
package tester

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/andreyvit/diff"

	"github.com/spawnhq/spawn/loader"
	"github.com/spawnhq/spawn/pin"
	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/storage"
	"github.com/spawnhq/spawn/tmpl"
)

// DirPrefix is the project-relative root test directories live under.
const DirPrefix = "tests/"

// TemplateFile is the template every test directory must contain.
const TemplateFile = "test.sql"

// ExpectedFile is the baseline a run compares captured output against.
const ExpectedFile = "expected"

// SQLRunner executes rendered SQL and captures its stdout; it is the one
// capability the runner needs from the engine.
type SQLRunner interface {
	RunTest(ctx context.Context, feed func(io.Writer) error, stdout io.Writer) error
}

// Runner builds, runs, and re-baselines tests.
type Runner struct {
	root      storage.Store
	engine    SQLRunner
	env       string
	variables map[string]interface{}
}

// New returns a Runner over the project rooted at root. engine may be nil
// when only Build is used.
func New(root storage.Store, engine SQLRunner, env string, variables map[string]interface{}) *Runner {
	return &Runner{root: root, engine: engine, env: env, variables: variables}
}

// List returns every test name under tests/, sorted.
func (r *Runner) List() ([]string, error) {
	paths, err := r.root.List(DirPrefix)
	if err != nil {
		return nil, spawnerr.Wrap(spawnerr.IOError, err, "listing tests")
	}
	seen := map[string]bool{}
	for _, p := range paths {
		rel := strings.TrimPrefix(p, DirPrefix)
		slash := strings.IndexByte(rel, '/')
		if slash < 0 {
			continue
		}
		seen[rel[:slash]] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (r *Runner) dir(name string) (storage.Store, error) {
	d := storage.Scoped(r.root, DirPrefix+name+"/")
	ok, err := d.Exists(TemplateFile)
	if err != nil {
		return nil, spawnerr.Wrap(spawnerr.IOError, err, "checking test %s", name)
	}
	if !ok {
		return nil, spawnerr.New(spawnerr.ConfigError, "no test named %q (missing %s%s/%s)", name, DirPrefix, name, TemplateFile)
	}
	return d, nil
}

// Build renders the test template into w, resolving includes against the
// live components/ directory.
func (r *Runner) Build(name string, w io.Writer) error {
	dir, err := r.dir(name)
	if err != nil {
		return err
	}
	entry, err := dir.Read(TemplateFile)
	if err != nil {
		return spawnerr.Wrap(spawnerr.IOError, err, "reading test template for %s", name)
	}
	src := loader.NewLive(storage.Scoped(r.root, pin.ComponentsPrefix))
	return tmpl.Render(src, r.env, r.variables, DirPrefix+name+"/"+TemplateFile, entry, w)
}

// Run executes the test and compares captured output against the
// baseline. A missing baseline fails; run Expect first to create one.
func (r *Runner) Run(ctx context.Context, name string) error {
	dir, err := r.dir(name)
	if err != nil {
		return err
	}

	actual, err := r.capture(ctx, name)
	if err != nil {
		return err
	}

	expected, err := dir.Read(ExpectedFile)
	if err != nil {
		if storage.IsNotFound(err) {
			return spawnerr.New(spawnerr.TestDiff, "test %s has no %s baseline; run `spawn test expect %s` to record one", name, ExpectedFile, name)
		}
		return spawnerr.Wrap(spawnerr.IOError, err, "reading baseline for %s", name)
	}

	want := normalize(expected)
	got := normalize(actual)
	if want == got {
		return nil
	}
	return spawnerr.New(spawnerr.TestDiff, "test %s output differs from baseline:\n%s", name, diff.LineDiff(got, want))
}

// Expect runs the test and overwrites the baseline with the captured
// output.
func (r *Runner) Expect(ctx context.Context, name string) error {
	dir, err := r.dir(name)
	if err != nil {
		return err
	}
	actual, err := r.capture(ctx, name)
	if err != nil {
		return err
	}
	if err := dir.Write(ExpectedFile, actual); err != nil {
		return spawnerr.Wrap(spawnerr.IOError, err, "writing baseline for %s", name)
	}
	return nil
}

// Result is one test's outcome in a Compare sweep.
type Result struct {
	Name string
	Err  error
}

// Compare runs every test and collects per-test results; callers fail the
// sweep when any result carries an error.
func (r *Runner) Compare(ctx context.Context) ([]Result, error) {
	names, err := r.List()
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(names))
	for _, name := range names {
		out = append(out, Result{Name: name, Err: r.Run(ctx, name)})
	}
	return out, nil
}

// capture renders the test and pipes it through the engine, returning the
// engine session's stdout.
func (r *Runner) capture(ctx context.Context, name string) ([]byte, error) {
	if r.engine == nil {
		return nil, spawnerr.New(spawnerr.ConfigError, "no database engine configured for running tests")
	}
	var out bytes.Buffer
	err := r.engine.RunTest(ctx, func(w io.Writer) error {
		return r.Build(name, w)
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// normalize maps CRLF to LF and strips trailing newlines so baseline
// comparisons never fail on line-ending or final-newline noise.
func normalize(bs []byte) string {
	s := strings.ReplaceAll(string(bs), "\r\n", "\n")
	return strings.TrimRight(s, "\n")
}
