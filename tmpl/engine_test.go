// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package tmpl

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spawnhq/spawn/loader"
	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/storage/memstore"
)

func render(t *testing.T, entry string, components map[string]string, variables map[string]interface{}) (string, error) {
	t.Helper()
	store := memstore.New()
	for p, c := range components {
		if err := store.Write(p, []byte(c)); err != nil {
			t.Fatalf("seeding component %s: %v", p, err)
		}
	}
	var out bytes.Buffer
	err := Render(loader.NewLive(store), "dev", variables, "up.sql", []byte(entry), &out)
	return out.String(), err
}

func mustRender(t *testing.T, entry string, components map[string]string, variables map[string]interface{}) string {
	t.Helper()
	out, err := render(t, entry, components, variables)
	if err != nil {
		t.Fatalf("render %q: %v", entry, err)
	}
	return out
}

func TestRenderAutoEscapesLiterals(t *testing.T) {
	tests := []struct {
		note     string
		entry    string
		vars     map[string]interface{}
		expected string
	}{
		{
			note:     "string with embedded quote and injection attempt",
			entry:    "INSERT INTO t VALUES ({{ variables.v }});",
			vars:     map[string]interface{}{"v": "O'Reilly; DROP TABLE t;--"},
			expected: "INSERT INTO t VALUES ('O''Reilly; DROP TABLE t;--');",
		},
		{
			note:     "integer",
			entry:    "SELECT {{ variables.n }};",
			vars:     map[string]interface{}{"n": int64(42)},
			expected: "SELECT 42;",
		},
		{
			note:     "boolean",
			entry:    "SELECT {{ variables.b }};",
			vars:     map[string]interface{}{"b": true},
			expected: "SELECT TRUE;",
		},
		{
			note:     "null",
			entry:    "SELECT {{ variables.x }};",
			vars:     map[string]interface{}{"x": nil},
			expected: "SELECT NULL;",
		},
		{
			note:     "list",
			entry:    "SELECT {{ variables.xs }};",
			vars:     map[string]interface{}{"xs": []interface{}{int64(1), "a"}},
			expected: "SELECT ARRAY[1, 'a'];",
		},
	}
	for _, tc := range tests {
		got := mustRender(t, tc.entry, nil, tc.vars)
		if got != tc.expected {
			t.Errorf("%s: got %q, want %q", tc.note, got, tc.expected)
		}
	}
}

func TestRenderEscapeIdentifierFilter(t *testing.T) {
	got := mustRender(t, `SELECT * FROM {{ variables.t | escape_identifier }};`, nil,
		map[string]interface{}{"t": `weird"name`})
	want := `SELECT * FROM "weird""name";`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderMapValueIsUnsafe(t *testing.T) {
	_, err := render(t, "SELECT {{ variables.m }};", nil,
		map[string]interface{}{"m": map[string]interface{}{"a": int64(1)}})
	assertCode(t, err, spawnerr.UnsafeValue)
}

func TestRenderUndefinedVariableFails(t *testing.T) {
	_, err := render(t, "SELECT {{ nope }};", nil, nil)
	assertCode(t, err, spawnerr.TemplateError)
}

func TestRenderControlFlow(t *testing.T) {
	entry := strings.Join([]string{
		"{% if variables.on %}A{% else %}B{% endif %}",
		"{% for x in variables.xs %}{{ x }},{% else %}none{% endfor %}",
		"{% set y = 2 %}{{ y }}",
	}, "|")
	got := mustRender(t, entry, nil, map[string]interface{}{
		"on": true,
		"xs": []interface{}{int64(1), int64(2)},
	})
	if got != "A|1,2,|2" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderForElse(t *testing.T) {
	got := mustRender(t, "{% for x in variables.xs %}{{ x }}{% else %}none{% endfor %}", nil,
		map[string]interface{}{"xs": []interface{}{}})
	if got != "none" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderInclude(t *testing.T) {
	got := mustRender(t, `{% include "shared/cols.sql" %}`, map[string]string{
		"shared/cols.sql": "id int",
	}, nil)
	if got != "id int" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderIncludeCycleFails(t *testing.T) {
	_, err := render(t, `{% include "a.sql" %}`, map[string]string{
		"a.sql": `{% include "b.sql" %}`,
		"b.sql": `{% include "a.sql" %}`,
	}, nil)
	assertCode(t, err, spawnerr.TemplateError)
}

func TestRenderIncludeOutsideComponentsFails(t *testing.T) {
	_, err := render(t, `{% include "../secrets" %}`, nil, nil)
	assertCode(t, err, spawnerr.TemplateError)
}

func TestRenderImportMacro(t *testing.T) {
	got := mustRender(t, strings.Join([]string{
		`{% from "macros.sql" import col %}`,
		`CREATE TABLE t ({{ col('id') }});`,
	}, ""), map[string]string{
		"macros.sql": `{% macro col(name, type='int') %}{{ name | escape_identifier }} {{ type | safe }}{% endmacro %}`,
	}, nil)
	want := `CREATE TABLE t ("id" int);`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderMacroOutputNotDoubleEscaped(t *testing.T) {
	got := mustRender(t, strings.Join([]string{
		`{% macro one() %}{{ 1 }}{% endmacro %}`,
		`SELECT {{ one() }};`,
	}, ""), nil, nil)
	if got != "SELECT 1;" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderReadFileFilters(t *testing.T) {
	got := mustRender(t, `{{ read_file('conf.json') | to_string_lossy | parse_json | length }}`, map[string]string{
		"conf.json": `{"a": 1, "b": 2}`,
	}, nil)
	if got != "2" {
		t.Fatalf("got %q", got)
	}

	got = mustRender(t, `{{ read_yaml('conf.yaml').name }}`, map[string]string{
		"conf.yaml": "name: alpha\n",
	}, nil)
	if got != "'alpha'" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderSafeSkipsEscaping(t *testing.T) {
	got := mustRender(t, `{{ variables.frag | safe }}`, nil,
		map[string]interface{}{"frag": "now()"})
	if got != "now()" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderWhitespaceTrim(t *testing.T) {
	got := mustRender(t, "a\n{%- if true -%}\nb\n{%- endif -%}\nc", nil, nil)
	if got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderStreamsPartialOutputBeforeFailure(t *testing.T) {
	var out bytes.Buffer
	err := Render(loader.NewLive(memstore.New()), "dev", nil, "up.sql",
		[]byte("BEGIN;{{ missing }}"), &out)
	if err == nil {
		t.Fatal("expected error")
	}
	if out.String() != "BEGIN;" {
		t.Fatalf("partial output %q, want bytes up to the failure point", out.String())
	}
}

func assertCode(t *testing.T, err error, want spawnerr.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %v, got nil", want)
	}
	var serr *spawnerr.Error
	if !errors.As(err, &serr) {
		t.Fatalf("expected *spawnerr.Error, got %T: %v", err, err)
	}
	if serr.Code != want {
		t.Fatalf("got code %v (%v), want %v", serr.Code, err, want)
	}
}
