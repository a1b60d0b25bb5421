// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package tester

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/storage"
	"github.com/spawnhq/spawn/storage/memstore"
)

// echoEngine replays the rendered SQL as the captured output, so tests can
// assert on the compare machinery without a live database.
type echoEngine struct{}

func (echoEngine) RunTest(_ context.Context, feed func(io.Writer) error, stdout io.Writer) error {
	return feed(stdout)
}

// failEngine simulates a psql failure.
type failEngine struct{}

func (failEngine) RunTest(context.Context, func(io.Writer) error, io.Writer) error {
	return spawnerr.New(spawnerr.EngineError, "psql exited 2: boom")
}

func newFixture(t *testing.T, files map[string]string) storage.Store {
	t.Helper()
	root := memstore.New()
	for p, c := range files {
		if err := root.Write(p, []byte(c)); err != nil {
			t.Fatalf("seeding %s: %v", p, err)
		}
	}
	return root
}

func TestRunMatchingBaseline(t *testing.T) {
	root := newFixture(t, map[string]string{
		"tests/counts/test.sql": "SELECT {{ 1 }};\n",
		"tests/counts/expected": "SELECT 1;\n",
	})
	r := New(root, echoEngine{}, "dev", nil)
	if err := r.Run(context.Background(), "counts"); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunTrailingNewlineIsNotADiff(t *testing.T) {
	root := newFixture(t, map[string]string{
		"tests/counts/test.sql": "SELECT {{ 1 }};",
		"tests/counts/expected": "SELECT 1;\n\n",
	})
	r := New(root, echoEngine{}, "dev", nil)
	if err := r.Run(context.Background(), "counts"); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunDiffFails(t *testing.T) {
	root := newFixture(t, map[string]string{
		"tests/counts/test.sql": " a\n b\n",
		"tests/counts/expected": " a\n c\n",
	})
	r := New(root, echoEngine{}, "dev", nil)
	err := r.Run(context.Background(), "counts")
	assertCode(t, err, spawnerr.TestDiff)
	if !strings.Contains(err.Error(), "b") || !strings.Contains(err.Error(), "c") {
		t.Fatalf("diff missing changed lines: %v", err)
	}
	if !strings.Contains(err.Error(), "-") || !strings.Contains(err.Error(), "+") {
		t.Fatalf("diff missing +/- markers: %v", err)
	}
}

func TestRunMissingBaseline(t *testing.T) {
	root := newFixture(t, map[string]string{
		"tests/counts/test.sql": "SELECT 1;",
	})
	r := New(root, echoEngine{}, "dev", nil)
	assertCode(t, r.Run(context.Background(), "counts"), spawnerr.TestDiff)
}

func TestExpectWritesBaseline(t *testing.T) {
	root := newFixture(t, map[string]string{
		"tests/counts/test.sql": "SELECT {{ 2 }};",
	})
	r := New(root, echoEngine{}, "dev", nil)
	if err := r.Expect(context.Background(), "counts"); err != nil {
		t.Fatalf("Expect: %v", err)
	}
	bs, err := root.Read("tests/counts/expected")
	if err != nil {
		t.Fatalf("reading baseline: %v", err)
	}
	if string(bs) != "SELECT 2;" {
		t.Fatalf("baseline %q", bs)
	}
	if err := r.Run(context.Background(), "counts"); err != nil {
		t.Fatalf("Run after Expect: %v", err)
	}
}

func TestCompareCollectsAllResults(t *testing.T) {
	root := newFixture(t, map[string]string{
		"tests/good/test.sql": "SELECT 1;",
		"tests/good/expected": "SELECT 1;",
		"tests/bad/test.sql":  "SELECT 1;",
		"tests/bad/expected":  "SELECT 2;",
	})
	r := New(root, echoEngine{}, "dev", nil)
	results, err := r.Compare(context.Background())
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Name != "bad" || results[0].Err == nil {
		t.Fatalf("bad: %+v", results[0])
	}
	if results[1].Name != "good" || results[1].Err != nil {
		t.Fatalf("good: %+v", results[1])
	}
}

func TestBuildUsesComponents(t *testing.T) {
	root := newFixture(t, map[string]string{
		"tests/inc/test.sql": `{% include "frag.sql" %}`,
		"components/frag.sql": "SELECT 3;",
	})
	r := New(root, nil, "dev", nil)
	var out strings.Builder
	if err := r.Build("inc", &out); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if out.String() != "SELECT 3;" {
		t.Fatalf("got %q", out.String())
	}
}

func TestRunEngineFailurePropagates(t *testing.T) {
	root := newFixture(t, map[string]string{
		"tests/counts/test.sql": "SELECT 1;",
		"tests/counts/expected": "SELECT 1;",
	})
	r := New(root, failEngine{}, "dev", nil)
	assertCode(t, r.Run(context.Background(), "counts"), spawnerr.EngineError)
}

func TestUnknownTest(t *testing.T) {
	r := New(memstore.New(), echoEngine{}, "dev", nil)
	assertCode(t, r.Run(context.Background(), "nope"), spawnerr.ConfigError)
}

func assertCode(t *testing.T, err error, want spawnerr.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %v", want)
	}
	var serr *spawnerr.Error
	if !errors.As(err, &serr) {
		t.Fatalf("got %T: %v", err, err)
	}
	if serr.Code != want {
		t.Fatalf("got code %v (%v), want %v", serr.Code, err, want)
	}
}
