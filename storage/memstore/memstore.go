// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package memstore implements an in-memory storage.Store, used by tests
// that would otherwise need a real filesystem fixture.
package memstore

import (
	"sort"
	"strings"
	"sync"

	"github.com/spawnhq/spawn/storage"
)

// Store is a goroutine-safe, in-memory storage.Store.
type Store struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{files: map[string][]byte{}}
}

func (s *Store) Read(p string) ([]byte, error) {
	if err := storage.ValidatePath(p); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	bs, ok := s.files[p]
	if !ok {
		return nil, &storage.Error{Code: storage.NotFound, Message: p}
	}
	out := make([]byte, len(bs))
	copy(out, bs)
	return out, nil
}

func (s *Store) Write(p string, data []byte) error {
	if err := storage.ValidatePath(p); err != nil {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = cp
	return nil
}

func (s *Store) Exists(p string) (bool, error) {
	if err := storage.ValidatePath(p); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[p]
	return ok, nil
}

func (s *Store) List(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for p := range s.files {
		if prefix == "" || strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}
