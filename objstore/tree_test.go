// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package objstore

import (
	"testing"

	"github.com/spawnhq/spawn/storage/memstore"
)

func TestTreeEncodeDecodeRoundTrip(t *testing.T) {
	tr := NewTree([]Entry{
		{Path: "b.sql", Digest: Hash([]byte("b"))},
		{Path: "a.sql", Digest: Hash([]byte("a"))},
	})

	encoded := tr.Encode()
	decoded, err := DecodeTree(encoded)
	if err != nil {
		t.Fatalf("DecodeTree: %v", err)
	}

	if len(decoded.Entries) != 2 || decoded.Entries[0].Path != "a.sql" || decoded.Entries[1].Path != "b.sql" {
		t.Fatalf("unexpected decoded order: %+v", decoded.Entries)
	}
	if decoded.Digest() != tr.Digest() {
		t.Fatalf("digest changed across round trip")
	}
}

func TestEmptyTreeDigestIsStable(t *testing.T) {
	empty := NewTree(nil)
	if len(empty.Encode()) != 0 {
		t.Fatalf("expected empty tree to encode to zero bytes, got %q", empty.Encode())
	}
	if empty.Digest() != Hash(nil) {
		t.Fatalf("empty tree digest must equal hash of empty bytes")
	}
}

func TestDecodeTreeRejectsTraversal(t *testing.T) {
	bad := Hash([]byte("x")).String() + " ../escape.sql\n"
	if _, err := DecodeTree([]byte(bad)); err == nil {
		t.Fatalf("expected error decoding a tree entry with a traversal path")
	}
}

func TestDecodeTreeRejectsDuplicatePath(t *testing.T) {
	d := Hash([]byte("x")).String()
	bad := d + " a.sql\n" + d + " a.sql\n"
	if _, err := DecodeTree([]byte(bad)); err == nil {
		t.Fatalf("expected error decoding a tree with duplicate paths")
	}
}

func TestPinDeterminism(t *testing.T) {
	// Pinning the same byte-identical component must produce the same
	// tree digest every time.
	store := NewBlobStore(memstore.New(), nil)

	build := func() Digest {
		h, err := store.Put([]byte("SELECT 1;\n"))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		tr := NewTree([]Entry{{Path: "a.sql", Digest: h}})
		d, err := PutTree(store, tr)
		if err != nil {
			t.Fatalf("PutTree: %v", err)
		}
		return d
	}

	first := build()
	second := build()
	if first != second {
		t.Fatalf("pin not deterministic: %s != %s", first, second)
	}
}
