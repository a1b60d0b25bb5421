// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package migration resolves a migration by name, selects its live or
// pinned component source, and drives the template engine into a
// checksum-tracked sink.
package migration

import (
	"sort"
	"strings"

	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/storage"
)

// DirPrefix is the project-relative root every migration directory lives
// under.
const DirPrefix = "migrations/"

// UpFile is the template every migration directory must contain.
const UpFile = "up.sql"

// ListNames returns every migration directory name under migrations/,
// sorted by name -- which, because directories are named
// "YYYYMMDDHHMMSS-kebab-name", is also timestamp order.
func ListNames(root storage.Store) ([]string, error) {
	paths, err := root.List(DirPrefix)
	if err != nil {
		return nil, spawnerr.Wrap(spawnerr.IOError, err, "listing migrations")
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

// ResolveName resolves namePrefix against every migration directory
// name: an exact match always wins; otherwise a unique prefix match
// succeeds, zero matches is MigrationNotFound, and more than one is
// MigrationAmbiguous.
func ResolveName(root storage.Store, namePrefix string) (string, error) {
	names, err := ListNames(root)
	if err != nil {
		return "", err
	}

	for _, n := range names {
		if n == namePrefix {
			return n, nil
		}
	}

	var matches []string
	for _, n := range names {
		if strings.HasPrefix(n, namePrefix) {
			matches = append(matches, n)
		}
	}
	switch len(matches) {
	case 0:
		return "", spawnerr.New(spawnerr.MigrationNotFound, "no migration matches %q", namePrefix)
	case 1:
		return matches[0], nil
	default:
		return "", spawnerr.New(spawnerr.MigrationAmbiguous, "%q matches multiple migrations: %s", namePrefix, strings.Join(matches, ", "))
	}
}

// Dir returns a Store scoped to the resolved migration's directory.
func Dir(root storage.Store, name string) storage.Store {
	return storage.Scoped(root, DirPrefix+name+"/")
}
