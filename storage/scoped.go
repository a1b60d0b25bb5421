// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package storage

import "strings"

// scoped rebases every path through a Store under a fixed prefix, so
// callers like the pinner or migration builder can work with
// project-relative paths ("a.sql") while the underlying Store is rooted
// at the whole project ("components/a.sql").
type scoped struct {
	inner  Store
	prefix string
}

// Scoped returns a Store that prepends prefix to every operation against
// inner, stripping it back off again in List results. prefix should end
// in "/" (e.g. "components/", "migrations/20260101000000-one/").
func Scoped(inner Store, prefix string) Store {
	return &scoped{inner: inner, prefix: prefix}
}

func (s *scoped) full(p string) string {
	if p == "" {
		return strings.TrimSuffix(s.prefix, "/")
	}
	return s.prefix + p
}

func (s *scoped) Read(p string) ([]byte, error) {
	if err := ValidatePath(p); err != nil {
		return nil, err
	}
	return s.inner.Read(s.full(p))
}

func (s *scoped) Write(p string, data []byte) error {
	if err := ValidatePath(p); err != nil {
		return err
	}
	return s.inner.Write(s.full(p), data)
}

func (s *scoped) Exists(p string) (bool, error) {
	if err := ValidatePath(p); err != nil {
		return false, err
	}
	return s.inner.Exists(s.full(p))
}

func (s *scoped) List(prefix string) ([]string, error) {
	paths, err := s.inner.List(s.full(prefix))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if rel := strings.TrimPrefix(p, s.prefix); rel != p {
			out = append(out, rel)
		}
	}
	return out, nil
}
