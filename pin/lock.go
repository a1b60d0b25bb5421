// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package pin walks a migration's component tree into the
// content-addressed store, and resolves a previously written lock.toml
// back into a read-through view of that snapshot.
package pin

import (
	"github.com/pelletier/go-toml/v2"

	"github.com/spawnhq/spawn/objstore"
	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/storage"
)

// LockFileName is the name of the per-migration pin manifest.
const LockFileName = "lock.toml"

// CurrentRendererVersion is stamped into every lock.toml this version of
// spawn writes, reserved for future renderer compatibility gates.
const CurrentRendererVersion = "1"

// LockFile is the lock.toml manifest: the tree digest pinned into a
// migration, plus a renderer compatibility tag.
type LockFile struct {
	Pin      string `toml:"pin"`
	Renderer string `toml:"renderer,omitempty"`
}

// TreeDigest returns the lock's pin field as an objstore.Digest.
func (l LockFile) TreeDigest() objstore.Digest {
	return objstore.Digest(l.Pin)
}

// ReadLockFile loads lock.toml from migrationDir.
func ReadLockFile(migrationDir storage.Store) (LockFile, error) {
	bs, err := migrationDir.Read(LockFileName)
	if err != nil {
		if storage.IsNotFound(err) {
			return LockFile{}, spawnerr.New(spawnerr.LockMissing, "no lock.toml in migration")
		}
		return LockFile{}, spawnerr.Wrap(spawnerr.IOError, err, "reading lock.toml")
	}
	var lf LockFile
	if err := toml.Unmarshal(bs, &lf); err != nil {
		return LockFile{}, spawnerr.Wrap(spawnerr.PinCorrupt, err, "parsing lock.toml")
	}
	if err := lf.TreeDigest().Validate(); err != nil {
		return LockFile{}, spawnerr.Wrap(spawnerr.PinCorrupt, err, "lock.toml pin field")
	}
	return lf, nil
}

// WriteLockFile serializes lock into migrationDir's lock.toml. Repeated
// calls with the same tree digest produce byte-identical output:
// go-toml/v2 marshals struct fields in declaration order with no
// map-iteration nondeterminism involved.
func WriteLockFile(migrationDir storage.Store, lock LockFile) error {
	bs, err := toml.Marshal(lock)
	if err != nil {
		return spawnerr.Wrap(spawnerr.IOError, err, "marshaling lock.toml")
	}
	if err := migrationDir.Write(LockFileName, bs); err != nil {
		return spawnerr.Wrap(spawnerr.IOError, err, "writing lock.toml")
	}
	return nil
}
