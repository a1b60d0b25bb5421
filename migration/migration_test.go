// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package migration

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spawnhq/spawn/objstore"
	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/storage"
	"github.com/spawnhq/spawn/storage/memstore"
)

func newProject(t *testing.T, migrations map[string]string, components map[string]string) storage.Store {
	t.Helper()
	root := memstore.New()
	for name, upSQL := range migrations {
		if err := root.Write(DirPrefix+name+"/"+UpFile, []byte(upSQL)); err != nil {
			t.Fatalf("seeding migration %s: %v", name, err)
		}
	}
	for path, content := range components {
		if err := root.Write("components/"+path, []byte(content)); err != nil {
			t.Fatalf("seeding component %s: %v", path, err)
		}
	}
	return root
}

func TestResolveNameExactMatchWins(t *testing.T) {
	root := newProject(t, map[string]string{
		"20260101000000-one":   "",
		"20260101000000-one-x": "",
	}, nil)

	got, err := ResolveName(root, "20260101000000-one")
	if err != nil {
		t.Fatalf("ResolveName: %v", err)
	}
	if got != "20260101000000-one" {
		t.Fatalf("got %q, want exact match", got)
	}
}

func TestResolveNameUniquePrefix(t *testing.T) {
	root := newProject(t, map[string]string{
		"20260101000000-create-users": "",
	}, nil)

	got, err := ResolveName(root, "2026010100")
	if err != nil {
		t.Fatalf("ResolveName: %v", err)
	}
	if got != "20260101000000-create-users" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveNameAmbiguous(t *testing.T) {
	root := newProject(t, map[string]string{
		"20260101000000-create-users": "",
		"20260101000001-create-orgs":  "",
	}, nil)

	_, err := ResolveName(root, "202601010000")
	assertCode(t, err, spawnerr.MigrationAmbiguous)
}

func TestResolveNameNotFound(t *testing.T) {
	root := newProject(t, map[string]string{
		"20260101000000-create-users": "",
	}, nil)

	_, err := ResolveName(root, "nope")
	assertCode(t, err, spawnerr.MigrationNotFound)
}

func TestBuilderBuildLive(t *testing.T) {
	root := newProject(t, map[string]string{
		"20260101000000-create-users": "CREATE TABLE {{ 'users' | escape_identifier }} ({{ read_file('columns.sql') | to_string_lossy | safe }});",
	}, map[string]string{
		"columns.sql": "id int",
	})

	blobs := objstore.NewBlobStore(memstore.New(), nil)
	b := NewBuilder(root, blobs)

	var out bytes.Buffer
	digest, err := b.Build("20260101000000-create-users", Options{Env: "dev"}, &out)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if digest == "" {
		t.Fatal("expected non-empty checksum")
	}
	want := `CREATE TABLE "users" (id int);`
	if got := out.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuilderPinThenBuildPinned(t *testing.T) {
	root := newProject(t, map[string]string{
		"20260101000000-create-users": "SELECT {{ read_file('value.sql') | to_string_lossy | safe }};",
	}, map[string]string{
		"value.sql": "1",
	})

	blobs := objstore.NewBlobStore(memstore.New(), nil)
	b := NewBuilder(root, blobs)

	if _, err := b.Pin("20260101000000-create-users"); err != nil {
		t.Fatalf("Pin: %v", err)
	}

	// Mutate the live component after pinning; the pinned build must not
	// observe the change.
	if err := root.Write("components/value.sql", []byte("2")); err != nil {
		t.Fatalf("mutating live component: %v", err)
	}

	var out bytes.Buffer
	if _, err := b.Build("20260101000000-create-users", Options{Pinned: true, Env: "dev"}, &out); err != nil {
		t.Fatalf("Build pinned: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "SELECT 1;" {
		t.Fatalf("got %q, want pinned value", got)
	}
}

func TestBuilderBuildMissingLockIsLockMissing(t *testing.T) {
	root := newProject(t, map[string]string{
		"20260101000000-create-users": "SELECT 1;",
	}, nil)
	blobs := objstore.NewBlobStore(memstore.New(), nil)
	b := NewBuilder(root, blobs)

	_, err := b.Build("20260101000000-create-users", Options{Pinned: true}, &bytes.Buffer{})
	assertCode(t, err, spawnerr.LockMissing)
}

func assertCode(t *testing.T, err error, want spawnerr.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %v, got nil", want)
	}
	serr, ok := err.(*spawnerr.Error)
	if !ok {
		t.Fatalf("expected *spawnerr.Error, got %T: %v", err, err)
	}
	if serr.Code != want {
		t.Fatalf("got code %v, want %v", serr.Code, want)
	}
}
