// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"testing"

	"github.com/spawnhq/spawn/spawnerr"
)

func TestKebabName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"create users", "create-users"},
		{"Create_Users", "create-users"},
		{"add  index!!", "add-index"},
		{"-already-kebab-", "already-kebab"},
		{"___", ""},
	}
	for _, tc := range tests {
		if got := kebabName(tc.in); got != tc.want {
			t.Errorf("kebabName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExitCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{spawnerr.New(spawnerr.ConfigError, "x"), 2},
		{spawnerr.New(spawnerr.MigrationNotFound, "x"), 2},
		{spawnerr.New(spawnerr.EngineError, "x"), 3},
		{spawnerr.New(spawnerr.Contended, "x"), 4},
		{spawnerr.New(spawnerr.TestDiff, "x"), 5},
		{spawnerr.New(spawnerr.TemplateError, "x"), 1},
		{spawnerr.Wrap(spawnerr.IOError, spawnerr.New(spawnerr.Contended, "inner"), "outer"), 1},
	}
	for _, tc := range tests {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestShortDigest(t *testing.T) {
	if got := shortDigest("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("got %q", got)
	}
	if got := shortDigest("abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
