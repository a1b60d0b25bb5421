// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package sqlval

import "testing"

func TestEscapeLiteralString(t *testing.T) {
	got, err := EscapeLiteral("O'Reilly; DROP TABLE t;--")
	if err != nil {
		t.Fatalf("EscapeLiteral: %v", err)
	}
	want := Safe(`'O''Reilly; DROP TABLE t;--'`)
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestEscapeLiteralScalarKinds(t *testing.T) {
	cases := []struct {
		in   interface{}
		want Safe
	}{
		{nil, "NULL"},
		{true, "TRUE"},
		{false, "FALSE"},
		{int64(42), "42"},
		{3, "3"},
		{[]byte{0xde, 0xad}, `'\xdead'`},
	}
	for _, c := range cases {
		got, err := EscapeLiteral(c.in)
		if err != nil {
			t.Fatalf("EscapeLiteral(%v): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("EscapeLiteral(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEscapeLiteralRejectsNaN(t *testing.T) {
	if _, err := EscapeLiteral(nan()); err == nil {
		t.Fatalf("expected UnsafeValue error for NaN")
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestEscapeLiteralRejectsMap(t *testing.T) {
	if _, err := EscapeLiteral(map[string]interface{}{"a": 1}); err == nil {
		t.Fatalf("expected UnsafeValue error for map")
	}
}

func TestEscapeLiteralArray(t *testing.T) {
	got, err := EscapeLiteral([]interface{}{1, "a", nil})
	if err != nil {
		t.Fatalf("EscapeLiteral: %v", err)
	}
	want := Safe(`ARRAY[1, 'a', NULL]`)
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestEscapeLiteralPassesThroughSafe(t *testing.T) {
	got, err := EscapeLiteral(Safe("NOW()"))
	if err != nil || got != "NOW()" {
		t.Fatalf("Safe value must pass through unescaped, got %q, %v", got, err)
	}
}

func TestEscapeIdentifier(t *testing.T) {
	got, err := EscapeIdentifier(`weird"name`)
	if err != nil {
		t.Fatalf("EscapeIdentifier: %v", err)
	}
	want := Safe(`"weird""name"`)
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestEscapeIdentifierRejectsEmpty(t *testing.T) {
	if _, err := EscapeIdentifier(""); err == nil {
		t.Fatalf("expected error for empty identifier")
	}
}
