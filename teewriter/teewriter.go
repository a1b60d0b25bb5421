// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package teewriter implements a writer that forwards every byte to an
// inner sink while accumulating a running xxh3-128 checksum of the full
// stream, so a migration build can report the checksum of exactly what it
// sent downstream.
package teewriter

import (
	"io"

	"github.com/zeebo/xxh3"

	"github.com/spawnhq/spawn/objstore"
)

// Writer wraps an io.Writer, hashing every byte written to it.
type Writer struct {
	inner  io.Writer
	hasher *xxh3.Hasher
}

// New returns a Writer forwarding to inner.
func New(inner io.Writer) *Writer {
	return &Writer{inner: inner, hasher: xxh3.New()}
}

// Write implements io.Writer: it forwards bs to the inner sink and feeds
// it to the checksum hasher. A short write from the inner sink is
// surfaced verbatim; the hasher only accounts for bytes the inner sink
// actually accepted.
func (w *Writer) Write(bs []byte) (int, error) {
	n, err := w.inner.Write(bs)
	if n > 0 {
		w.hasher.Write(bs[:n])
	}
	return n, err
}

// Finish returns the 128-bit checksum of every byte written so far,
// rendered the same way objstore.Digest renders a content hash.
func (w *Writer) Finish() objstore.Digest {
	sum := w.hasher.Sum128().Bytes()
	return objstore.Digest(hexEncode(sum[:]))
}

func hexEncode(bs []byte) string {
	const hex = "0123456789abcdef"
	out := make([]byte, len(bs)*2)
	for i, b := range bs {
		out[i*2] = hex[b>>4]
		out[i*2+1] = hex[b&0xf]
	}
	return string(out)
}
