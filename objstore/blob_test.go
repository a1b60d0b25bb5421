// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package objstore

import (
	"testing"

	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/storage/memstore"
)

func TestBlobPutGetExists(t *testing.T) {
	store := NewBlobStore(memstore.New(), nil)

	d, err := store.Put([]byte("hello"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err := store.Exists(d)
	if err != nil || !ok {
		t.Fatalf("Exists(%s) = %v, %v; want true, nil", d, ok, err)
	}

	bs, err := store.Get(d)
	if err != nil || string(bs) != "hello" {
		t.Fatalf("Get(%s) = %q, %v; want %q, nil", d, bs, err, "hello")
	}

	// Putting identical bytes again must be a no-op that returns the same
	// digest.
	d2, err := store.Put([]byte("hello"))
	if err != nil || d2 != d {
		t.Fatalf("second Put = %s, %v; want %s, nil", d2, err, d)
	}
}

func TestBlobGetMissingIsPinCorrupt(t *testing.T) {
	store := NewBlobStore(memstore.New(), nil)
	_, err := store.Get(Hash([]byte("never written")))
	if err == nil {
		t.Fatalf("expected error reading a digest never written")
	}
	if !spawnerr.IsCode(err, spawnerr.PinCorrupt) {
		t.Fatalf("expected PinCorrupt, got %v", err)
	}
}

func TestBlobIterLexicographic(t *testing.T) {
	store := NewBlobStore(memstore.New(), nil)
	for _, s := range []string{"a", "bb", "ccc"} {
		if _, err := store.Put([]byte(s)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	digests, err := store.Iter()
	if err != nil {
		t.Fatalf("Iter: %v", err)
	}
	if len(digests) != 3 {
		t.Fatalf("expected 3 digests, got %d", len(digests))
	}
	for i := 1; i < len(digests); i++ {
		if digests[i-1] >= digests[i] {
			t.Fatalf("digests not in lexicographic order: %s before %s", digests[i-1], digests[i])
		}
	}
}
