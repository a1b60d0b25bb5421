// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package loader defines the single capability the template engine uses
// to resolve `include`/`import` and the read_file family of filters, so
// templates can never read arbitrary filesystem paths outside
// components/.
package loader

import (
	"sort"

	"github.com/spawnhq/spawn/storage"
)

// Source is the read-through capability a migration build resolves to
// before rendering: either the live components/ directory or a pinned
// tree view (pin.View). Both satisfy this interface structurally -- the
// template engine imports only this package, never pin or storage
// directly.
type Source interface {
	Open(path string) ([]byte, error)
	List() ([]string, error)
}

// Live presents a storage.Store (typically fsstore rooted at
// <spawn_folder>/components) as a Source.
type Live struct {
	store storage.Store
}

// NewLive returns a Source backed directly by store.
func NewLive(store storage.Store) *Live {
	return &Live{store: store}
}

// Open implements Source.
func (l *Live) Open(path string) ([]byte, error) {
	return l.store.Read(path)
}

// List implements Source.
func (l *Live) List() ([]string, error) {
	paths, err := l.store.List("")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
