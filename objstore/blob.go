// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package objstore

import (
	"fmt"

	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/storage"
)

// blobPath returns the fan-out path blobs/<aa>/<digest> a blob is stored
// under.
func blobPath(d Digest) string {
	return fmt.Sprintf("blobs/%s/%s", d.ShardPrefix(), d)
}

// BlobStore is the content-addressed byte store, layered directly on top
// of a storage.Store so it works identically against a real directory or
// an in-memory fixture.
type BlobStore struct {
	backing storage.Store
	index   ExistsIndex
}

// ExistsIndex is an optional accelerator for Exists checks; NopIndex is
// used when none is configured.
type ExistsIndex interface {
	Has(d Digest) (bool, error)
	Mark(d Digest) error
}

// NopIndex implements ExistsIndex by always reporting a miss, forcing a
// storage-layer Exists check.
type NopIndex struct{}

func (NopIndex) Has(Digest) (bool, error) { return false, nil }
func (NopIndex) Mark(Digest) error        { return nil }

// NewBlobStore returns a BlobStore writing blobs into backing. index may be
// nil, in which case existence checks always fall through to backing.
func NewBlobStore(backing storage.Store, index ExistsIndex) *BlobStore {
	if index == nil {
		index = NopIndex{}
	}
	return &BlobStore{backing: backing, index: index}
}

// Put writes bs to the store if its digest is not already present and
// returns the digest. Writes are idempotent: re-putting identical bytes is
// a cheap no-op once the index (or a direct Exists check) confirms the
// blob is already there.
func (b *BlobStore) Put(bs []byte) (Digest, error) {
	d := Hash(bs)

	if ok, _ := b.index.Has(d); ok {
		return d, nil
	}

	exists, err := b.backing.Exists(blobPath(d))
	if err != nil {
		return "", spawnerr.Wrap(spawnerr.IOError, err, "checking blob %s", d)
	}
	if exists {
		_ = b.index.Mark(d)
		return d, nil
	}

	if err := b.backing.Write(blobPath(d), bs); err != nil {
		// Two processes racing to put the same content-identical blob is
		// safe: re-check existence instead of failing.
		if exists, rerr := b.backing.Exists(blobPath(d)); rerr == nil && exists {
			_ = b.index.Mark(d)
			return d, nil
		}
		return "", spawnerr.Wrap(spawnerr.IOError, err, "writing blob %s", d)
	}

	_ = b.index.Mark(d)
	return d, nil
}

// Get reads the blob for digest d, failing with spawnerr.PinCorrupt if it
// is missing from the store.
func (b *BlobStore) Get(d Digest) ([]byte, error) {
	bs, err := b.backing.Read(blobPath(d))
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, spawnerr.New(spawnerr.PinCorrupt, "blob %s missing from store", d)
		}
		return nil, spawnerr.Wrap(spawnerr.IOError, err, "reading blob %s", d)
	}
	return bs, nil
}

// Exists reports whether digest d is present in the store.
func (b *BlobStore) Exists(d Digest) (bool, error) {
	if ok, _ := b.index.Has(d); ok {
		return true, nil
	}
	exists, err := b.backing.Exists(blobPath(d))
	if err != nil {
		return false, spawnerr.Wrap(spawnerr.IOError, err, "checking blob %s", d)
	}
	if exists {
		_ = b.index.Mark(d)
	}
	return exists, nil
}

// Iter returns every blob digest currently in the store, in lexicographic
// order.
func (b *BlobStore) Iter() ([]Digest, error) {
	paths, err := b.backing.List("blobs/")
	if err != nil {
		return nil, spawnerr.Wrap(spawnerr.IOError, err, "listing blobs")
	}
	out := make([]Digest, 0, len(paths))
	for _, p := range paths {
		// blobs/<aa>/<digest>
		if len(p) < len("blobs/aa/") {
			continue
		}
		d := Digest(p[len("blobs/aa/"):])
		if d.Validate() == nil {
			out = append(out, d)
		}
	}
	return out, nil
}
