// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package objstore implements spawn's content-addressed object database:
// a blob store keyed by a 128-bit content hash and the tree encoding used
// to snapshot a directory of components.
package objstore

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/xxh3"
)

// DigestSize is the width, in bytes, of every digest this package produces.
const DigestSize = 16

// Digest is a 128-bit content hash rendered as lower-case hex.
//
// A hand-rolled type rather than github.com/opencontainers/go-digest is
// used deliberately here -- see DESIGN.md for why go-digest's Algorithm
// registry cannot represent a non-SHA-2 hash without forking it.
type Digest string

// Hash computes the digest of bs.
func Hash(bs []byte) Digest {
	sum := xxh3.Hash128(bs).Bytes()
	return Digest(hex.EncodeToString(sum[:]))
}

// Validate reports whether d has the expected hex shape for this package's
// digest algorithm.
func (d Digest) Validate() error {
	if len(d) != DigestSize*2 {
		return fmt.Errorf("digest %q: want %d hex chars, got %d", d, DigestSize*2, len(d))
	}
	if _, err := hex.DecodeString(string(d)); err != nil {
		return fmt.Errorf("digest %q: not hex: %w", d, err)
	}
	return nil
}

// ShardPrefix returns the first two hex characters, used as the blob
// store's fan-out directory (blobs/<aa>/<digest>).
func (d Digest) ShardPrefix() string {
	if len(d) < 2 {
		return string(d)
	}
	return string(d[:2])
}

func (d Digest) String() string { return string(d) }
