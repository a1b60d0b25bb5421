// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pin

import (
	"github.com/spawnhq/spawn/objstore"
	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/storage"
)

// ComponentsPrefix is the root under which every pinnable component
// lives.
const ComponentsPrefix = "components/"

// Pinner walks a project's components/ directory into the content-addressed
// blob store and writes the resulting tree digest into a migration's
// lock.toml.
type Pinner struct {
	blobs      *objstore.BlobStore
	components storage.Store
}

// New returns a Pinner that reads components from components and writes
// blobs into blobs.
func New(blobs *objstore.BlobStore, components storage.Store) *Pinner {
	return &Pinner{blobs: blobs, components: components}
}

// Pin enumerates every file under components/ in lexicographic order,
// idempotently blob-stores each one, stores the resulting tree, and writes
// lock.toml into migrationDir. It returns the pinned tree digest.
func (p *Pinner) Pin(migrationDir storage.Store) (objstore.Digest, error) {
	paths, err := p.components.List("")
	if err != nil {
		return "", spawnerr.Wrap(spawnerr.IOError, err, "listing components")
	}

	entries := make([]objstore.Entry, 0, len(paths))
	for _, rel := range paths {
		bs, err := p.components.Read(rel)
		if err != nil {
			return "", spawnerr.Wrap(spawnerr.IOError, err, "reading component %s", rel)
		}
		digest, err := p.blobs.Put(bs)
		if err != nil {
			return "", spawnerr.Wrap(spawnerr.IOError, err, "storing blob for %s", rel)
		}
		entries = append(entries, objstore.Entry{Path: rel, Digest: digest})
	}

	tree := objstore.NewTree(entries)
	treeDigest, err := objstore.PutTree(p.blobs, tree)
	if err != nil {
		return "", spawnerr.Wrap(spawnerr.IOError, err, "storing tree")
	}

	lock := LockFile{Pin: treeDigest.String(), Renderer: CurrentRendererVersion}
	if err := WriteLockFile(migrationDir, lock); err != nil {
		return "", err
	}

	return treeDigest, nil
}

// View is a read-through projection of a pinned tree: Open resolves a
// component path to the blob stored at its digest, and List enumerates
// every pinned path. It satisfies the same structural Source capability
// the template loader and engine consume for live reads.
type View struct {
	blobs  *objstore.BlobStore
	tree   objstore.Tree
	byPath map[string]objstore.Digest
}

// Resolve builds a read-through View over the tree pinned in lock. A
// tree whose canonical encoding is missing from the store is PinCorrupt,
// even when the blobs it names are all present.
func Resolve(blobs *objstore.BlobStore, lock LockFile) (*View, error) {
	treeDigest := lock.TreeDigest()
	tree, err := objstore.GetTree(blobs, treeDigest)
	if err != nil {
		return nil, spawnerr.Wrap(spawnerr.PinCorrupt, err, "resolving pinned tree %s", treeDigest)
	}

	byPath := make(map[string]objstore.Digest, len(tree.Entries))
	for _, e := range tree.Entries {
		byPath[e.Path] = e.Digest
	}

	return &View{blobs: blobs, tree: tree, byPath: byPath}, nil
}

// Open implements the Source capability, reading the blob pinned at path.
func (v *View) Open(path string) ([]byte, error) {
	digest, ok := v.byPath[path]
	if !ok {
		return nil, spawnerr.New(spawnerr.PinMissing, "component %q not present in pinned tree", path)
	}
	bs, err := v.blobs.Get(digest)
	if err != nil {
		return nil, spawnerr.Wrap(spawnerr.PinCorrupt, err, "reading pinned blob for %q", path)
	}
	return bs, nil
}

// List implements the Source capability, returning every path recorded in
// the pinned tree.
func (v *View) List() ([]string, error) {
	out := make([]string, len(v.tree.Entries))
	for i, e := range v.tree.Entries {
		out[i] = e.Path
	}
	return out, nil
}
