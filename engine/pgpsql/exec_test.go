// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pgpsql

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/spawnhq/spawn/spawnerr"
)

func TestCappedBufferTruncates(t *testing.T) {
	b := newCappedBuffer(8)
	if _, err := b.Write([]byte("12345")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Write([]byte("67890")); err != nil {
		t.Fatal(err)
	}
	got := string(b.Bytes())
	if !strings.HasPrefix(got, "12345678") {
		t.Fatalf("got %q", got)
	}
	if !strings.HasSuffix(got, truncationMarker) {
		t.Fatalf("missing truncation marker: %q", got)
	}
}

func TestCappedBufferExact(t *testing.T) {
	b := newCappedBuffer(5)
	if _, err := b.Write([]byte("12345")); err != nil {
		t.Fatal(err)
	}
	if got := string(b.Bytes()); got != "12345" {
		t.Fatalf("got %q, want no marker at exactly the cap", got)
	}
}

func TestRunCommandPipesStdinToStdout(t *testing.T) {
	var out bytes.Buffer
	res, err := runCommand(context.Background(), []string{"cat"}, func(w io.Writer) error {
		_, werr := io.WriteString(w, "SELECT 1;\n")
		return werr
	}, &out)
	if err != nil {
		t.Fatalf("runCommand: %v", err)
	}
	if res.exit != 0 {
		t.Fatalf("exit %d, stderr %s", res.exit, res.stderr)
	}
	if out.String() != "SELECT 1;\n" {
		t.Fatalf("stdout %q", out.String())
	}
}

func TestRunCommandReportsNonZeroExit(t *testing.T) {
	var out bytes.Buffer
	res, err := runCommand(context.Background(), []string{"false"}, func(io.Writer) error {
		return nil
	}, &out)
	if err != nil {
		t.Fatalf("runCommand: %v", err)
	}
	if res.exit == 0 {
		t.Fatal("expected non-zero exit")
	}
}

func TestRunCommandSurfacesFeedError(t *testing.T) {
	var out bytes.Buffer
	renderErr := spawnerr.New(spawnerr.TemplateError, "boom")
	_, err := runCommand(context.Background(), []string{"cat"}, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return renderErr
	}, &out)
	if err == nil {
		t.Fatal("expected feed error to surface")
	}
	var serr *spawnerr.Error
	if !errors.As(err, &serr) || serr.Code != spawnerr.TemplateError {
		t.Fatalf("got %v", err)
	}
	// Bytes written before the failure still reached the child.
	if out.String() != "partial" {
		t.Fatalf("stdout %q", out.String())
	}
}

func TestRunCommandCancelClosesStdin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	feeding := make(chan struct{})
	var out bytes.Buffer

	done := make(chan error, 1)
	go func() {
		// cat exits when stdin closes, so a cancelled run finishes well
		// inside the grace period.
		_, err := runCommand(ctx, []string{"cat"}, func(w io.Writer) error {
			io.WriteString(w, "head\n")
			close(feeding)
			<-ctx.Done()
			return ctx.Err()
		}, &out)
		done <- err
	}()

	<-feeding
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected cancellation error")
		}
	case <-time.After(killGracePeriod + 2*time.Second):
		t.Fatal("runCommand did not return after cancellation")
	}
}

func TestParseTuples(t *testing.T) {
	out := []byte("APPLY\x1fSUCCESS\n20260101000000-one\x1f\x1fABC\n\n")
	got := parseTuples(out)
	want := [][]string{
		{"APPLY", "SUCCESS"},
		{"20260101000000-one", "", "ABC"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("parseTuples mismatch (-want +got):\n%s", diff)
	}
}

func TestLockKeysStable(t *testing.T) {
	h1a, h2a := lockKeys()
	h1b, h2b := lockKeys()
	if h1a != h1b || h2a != h2b {
		t.Fatal("lock keys must be deterministic")
	}
}

func TestBuildSQLEscapesValues(t *testing.T) {
	sql, err := buildSQL(rawSQL("SELECT "), "O'Reilly", rawSQL(", "), int64(7), rawSQL(", "), nil, rawSQL(";"))
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT 'O''Reilly', 7, NULL;"
	if sql != want {
		t.Fatalf("got %q, want %q", sql, want)
	}
}
