// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package migration

import (
	"io"

	"github.com/spawnhq/spawn/loader"
	"github.com/spawnhq/spawn/objstore"
	"github.com/spawnhq/spawn/pin"
	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/storage"
	"github.com/spawnhq/spawn/teewriter"
	"github.com/spawnhq/spawn/tmpl"
)

// Options configures a single Build call.
type Options struct {
	// Pinned selects the frozen component snapshot recorded in the
	// migration's lock.toml; otherwise the live components/ directory is
	// used. The CLI's `build` and `apply` commands default to Pinned:
	// true.
	Pinned    bool
	Variables map[string]interface{}
	Env       string
}

// Builder resolves a migration by name and renders its up.sql template,
// selecting live or pinned components per Options.
type Builder struct {
	root  storage.Store
	blobs *objstore.BlobStore
}

// NewBuilder returns a Builder rooted at the project's spawn_folder, with
// blobs as its content-addressed store for pinned reads.
func NewBuilder(root storage.Store, blobs *objstore.BlobStore) *Builder {
	return &Builder{root: root, blobs: blobs}
}

// Build resolves namePrefix, renders its up.sql into sink through the tee
// checksum writer, and returns the checksum of the bytes actually
// written.
func (b *Builder) Build(namePrefix string, opts Options, sink io.Writer) (objstore.Digest, error) {
	name, err := ResolveName(b.root, namePrefix)
	if err != nil {
		return "", err
	}

	src, err := b.source(name, opts.Pinned)
	if err != nil {
		return "", err
	}

	// The up.sql template is part of the migration directory, not the
	// component tree, so it is read live in both modes; the pin freezes
	// what the template pulls in, not the template itself.
	entry, err := Dir(b.root, name).Read(UpFile)
	if err != nil {
		return "", spawnerr.Wrap(spawnerr.IOError, err, "reading %s for migration %s", UpFile, name)
	}

	tee := teewriter.New(sink)
	if err := tmpl.Render(src, opts.Env, opts.Variables, DirPrefix+name+"/"+UpFile, entry, tee); err != nil {
		return "", err
	}
	return tee.Finish(), nil
}

// source selects the live components/ directory or a read-through view
// over the migration's pinned tree.
func (b *Builder) source(name string, pinned bool) (loader.Source, error) {
	if !pinned {
		return loader.NewLive(storage.Scoped(b.root, pin.ComponentsPrefix)), nil
	}

	migDir := Dir(b.root, name)
	lock, err := pin.ReadLockFile(migDir)
	if err != nil {
		return nil, err
	}
	return pin.Resolve(b.blobs, lock)
}

// Pin snapshots components/ for the migration named name, writing
// lock.toml into its directory.
func (b *Builder) Pin(namePrefix string) (objstore.Digest, error) {
	name, err := ResolveName(b.root, namePrefix)
	if err != nil {
		return "", err
	}
	pinner := pin.New(b.blobs, storage.Scoped(b.root, pin.ComponentsPrefix))
	return pinner.Pin(Dir(b.root, name))
}
