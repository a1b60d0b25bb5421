// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package fsstore implements a storage.Store rooted at a directory on
// disk, the on-disk counterpart to memstore's in-memory fixture.
package fsstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spawnhq/spawn/storage"
)

// Store is a storage.Store rooted at Dir.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir. The directory is created if absent.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &storage.Error{Code: storage.Io, Message: "creating store root", Cause: err}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, &storage.Error{Code: storage.Io, Message: "resolving store root", Cause: err}
	}
	return &Store{Dir: abs}, nil
}

func (s *Store) resolve(p string) (string, error) {
	if err := storage.ValidatePath(p); err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, filepath.FromSlash(p)), nil
}

// Read implements storage.Store.
func (s *Store) Read(p string) ([]byte, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	bs, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &storage.Error{Code: storage.NotFound, Message: p}
		}
		return nil, &storage.Error{Code: storage.Io, Message: p, Cause: err}
	}
	return bs, nil
}

// Write implements storage.Store. It writes through a temporary file in
// the same directory, syncs, then renames -- so a crash mid-write never
// leaves a partial blob visible at its final path.
func (s *Store) Write(p string, data []byte) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &storage.Error{Code: storage.Io, Message: p, Cause: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return &storage.Error{Code: storage.Io, Message: p, Cause: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &storage.Error{Code: storage.Io, Message: p, Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &storage.Error{Code: storage.Io, Message: p, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &storage.Error{Code: storage.Io, Message: p, Cause: err}
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return &storage.Error{Code: storage.Io, Message: p, Cause: err}
	}
	return nil
}

// Exists implements storage.Store.
func (s *Store) Exists(p string) (bool, error) {
	full, err := s.resolve(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &storage.Error{Code: storage.Io, Message: p, Cause: err}
}

// List implements storage.Store, walking the directory tree under prefix
// and returning slash-relative paths, symlinks dereferenced exactly once.
func (s *Store) List(prefix string) ([]string, error) {
	root := s.Dir
	if prefix != "" {
		full, err := s.resolve(prefix)
		if err != nil {
			return nil, err
		}
		root = full
	}

	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			resolved, rerr := filepath.EvalSymlinks(path)
			if rerr != nil {
				return fmt.Errorf("resolving symlink %s: %w", path, rerr)
			}
			target, terr := os.Stat(resolved)
			if terr != nil {
				return terr
			}
			if target.IsDir() {
				return nil
			}
		} else if info.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(s.Dir, path)
		if rerr != nil {
			return rerr
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &storage.Error{Code: storage.Io, Message: prefix, Cause: err}
	}
	return out, nil
}
