// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pgpsql

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/spawnhq/spawn/config"
	"github.com/spawnhq/spawn/logging"
	"github.com/spawnhq/spawn/spawnerr"
)

func TestResolverDirect(t *testing.T) {
	r := NewResolver(config.CommandConfig{
		Kind:   "direct",
		Direct: []string{"psql", "service=app"},
	}, logging.New())

	argv, err := r.Argv(context.Background())
	if err != nil {
		t.Fatalf("Argv: %v", err)
	}
	if diff := cmp.Diff([]string{"psql", "service=app"}, argv); diff != "" {
		t.Fatalf("argv mismatch (-want +got):\n%s", diff)
	}

	// The returned slice is a copy; appending flags must not poison the
	// cache.
	_ = append(argv, "-X")
	argv2, err := r.Argv(context.Background())
	if err != nil {
		t.Fatalf("Argv: %v", err)
	}
	if len(argv2) != 2 {
		t.Fatalf("cached argv mutated: %v", argv2)
	}
}

func TestResolverProviderParsesShellQuoting(t *testing.T) {
	r := NewResolver(config.CommandConfig{
		Kind:     "provider",
		Provider: []string{"echo", `psql "host=db example" -U 'spawn user'`},
		Append:   []string{"-w"},
	}, logging.New())

	argv, err := r.Argv(context.Background())
	if err != nil {
		t.Fatalf("Argv: %v", err)
	}
	want := []string{"psql", "host=db example", "-U", "spawn user", "-w"}
	if diff := cmp.Diff(want, argv); diff != "" {
		t.Fatalf("argv mismatch (-want +got):\n%s", diff)
	}
}

func TestResolverProviderRunsOnce(t *testing.T) {
	// A provider that appends to a temp file would be stateful; instead
	// rely on the cache contract: mutate the config after the first call
	// and observe the cached result.
	r := NewResolver(config.CommandConfig{
		Kind:     "provider",
		Provider: []string{"echo", "psql one"},
	}, logging.New())

	first, err := r.Argv(context.Background())
	if err != nil {
		t.Fatalf("Argv: %v", err)
	}
	r.cmd.Provider = []string{"echo", "psql two"}
	second, err := r.Argv(context.Background())
	if err != nil {
		t.Fatalf("Argv: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("provider re-ran instead of using the cache:\n%s", diff)
	}
}

func TestResolverProviderInvalidQuoting(t *testing.T) {
	r := NewResolver(config.CommandConfig{
		Kind:     "provider",
		Provider: []string{"echo", `psql "unterminated`},
	}, logging.New())

	_, err := r.Argv(context.Background())
	assertCode(t, err, spawnerr.ConfigError)
}

func TestResolverProviderEmptyOutput(t *testing.T) {
	r := NewResolver(config.CommandConfig{
		Kind:     "provider",
		Provider: []string{"true"},
	}, logging.New())

	_, err := r.Argv(context.Background())
	assertCode(t, err, spawnerr.ConfigError)
}

func TestResolverProviderFailureIsConfigError(t *testing.T) {
	r := NewResolver(config.CommandConfig{
		Kind:     "provider",
		Provider: []string{"false"},
	}, logging.New())

	_, err := r.Argv(context.Background())
	assertCode(t, err, spawnerr.ConfigError)
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
