// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package test provides small filesystem fixtures for table-driven tests.
package test

import (
	"os"
	"path/filepath"
)

// WithTempFS materializes files (relative path -> contents) under a fresh
// temporary directory, invokes f with that directory's path, and removes
// the directory afterward.
func WithTempFS(files map[string]string, f func(rootDir string)) {
	dir, err := os.MkdirTemp("", "spawn-test")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	for relPath, content := range files {
		path := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			panic(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			panic(err)
		}
	}

	f(dir)
}
