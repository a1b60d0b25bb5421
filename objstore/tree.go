// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package objstore

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/spawnhq/spawn/spawnerr"
)

// Entry is one path -> blob digest mapping in a Tree.
type Entry struct {
	Path   string
	Digest Digest
}

// Tree is an ordered, content-addressed directory snapshot:
// relative_path -> blob_digest. The canonical in-memory
// representation is always sorted by path; Encode relies on that
// invariant instead of re-sorting so repeated encodes of the same Tree
// value are trivially identical.
type Tree struct {
	Entries []Entry
}

// NewTree builds a Tree from entries, sorting them byte-wise by path,
// the canonical entry order.
func NewTree(entries []Entry) Tree {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return Tree{Entries: out}
}

// Encode renders t as its canonical byte form: UTF-8, one line per entry,
// "<digest><SP><path><LF>", sorted by path. The empty tree encodes to zero
// bytes.
func (t Tree) Encode() []byte {
	var buf bytes.Buffer
	for _, e := range t.Entries {
		fmt.Fprintf(&buf, "%s %s\n", e.Digest, e.Path)
	}
	return buf.Bytes()
}

// Digest returns the content hash of t's canonical encoding, the tree
// digest recorded in lock files.
func (t Tree) Digest() Digest {
	return Hash(t.Encode())
}

// DecodeTree parses the canonical encoding back into a Tree, validating
// every line: well-formed "<digest> <path>", digest shape, and path
// invariants (forward-slash relative, no "..", no leading "/", unique).
func DecodeTree(bs []byte) (Tree, error) {
	seen := map[string]bool{}
	var entries []Entry

	scanner := bufio.NewScanner(bytes.NewReader(bs))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return Tree{}, spawnerr.New(spawnerr.PinCorrupt, "tree line %d: missing separator", lineNo)
		}
		digest := Digest(line[:sp])
		p := line[sp+1:]

		if err := digest.Validate(); err != nil {
			return Tree{}, spawnerr.Wrap(spawnerr.PinCorrupt, err, "tree line %d: bad digest", lineNo)
		}
		if err := validateTreePath(p); err != nil {
			return Tree{}, spawnerr.Wrap(spawnerr.PinCorrupt, err, "tree line %d: bad path", lineNo)
		}
		if seen[p] {
			return Tree{}, spawnerr.New(spawnerr.PinCorrupt, "tree line %d: duplicate path %q", lineNo, p)
		}
		seen[p] = true
		entries = append(entries, Entry{Path: p, Digest: digest})
	}
	if err := scanner.Err(); err != nil {
		return Tree{}, spawnerr.Wrap(spawnerr.PinCorrupt, err, "scanning tree")
	}

	return NewTree(entries), nil
}

func validateTreePath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("path %q must not be absolute", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return fmt.Errorf("path %q contains '..'", p)
		}
	}
	return nil
}

// PutTree stores t's canonical encoding as a blob and returns the
// resulting tree digest.
func PutTree(b *BlobStore, t Tree) (Digest, error) {
	return b.Put(t.Encode())
}

// GetTree reads and decodes the tree stored at digest d.
func GetTree(b *BlobStore, d Digest) (Tree, error) {
	bs, err := b.Get(d)
	if err != nil {
		return Tree{}, err
	}
	return DecodeTree(bs)
}
