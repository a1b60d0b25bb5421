// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package sqlval implements type-directed escaping of Go values into
// PostgreSQL literals and identifiers, plus the Safe wrapper the template
// engine's auto-escape policy keys off of.
package sqlval

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spawnhq/spawn/spawnerr"
)

// Safe is a string already known to be valid, self-contained SQL -- the
// output of an escape call, a `| safe` filter, or string concatenation of
// two Safe values. Interpolating a Safe value a second time must not
// re-escape it.
type Safe string

func (s Safe) String() string { return string(s) }

// ConcatSafe joins Safe fragments without touching their contents, used by
// the renderer when every operand of a template string concatenation is
// already Safe.
func ConcatSafe(parts ...Safe) Safe {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(string(p))
	}
	return Safe(b.String())
}

// EscapeLiteral renders v as a PostgreSQL literal. A Safe value passes
// through untouched; every other Go type is escaped according to its
// kind.
func EscapeLiteral(v interface{}) (Safe, error) {
	switch t := v.(type) {
	case Safe:
		return t, nil
	case nil:
		return "NULL", nil
	case bool:
		if t {
			return "TRUE", nil
		}
		return "FALSE", nil
	case string:
		return escapeStringLiteral(t), nil
	case []byte:
		return escapeBytesLiteral(t), nil
	case int:
		return Safe(fmt.Sprintf("%d", t)), nil
	case int32:
		return Safe(fmt.Sprintf("%d", t)), nil
	case int64:
		return Safe(fmt.Sprintf("%d", t)), nil
	case float32:
		return escapeFloatLiteral(float64(t))
	case float64:
		return escapeFloatLiteral(t)
	case []interface{}:
		return escapeArrayLiteral(t)
	case map[string]interface{}:
		return "", spawnerr.New(spawnerr.UnsafeValue, "cannot escape a map as a SQL literal; use a filter to serialize it explicitly")
	default:
		return "", spawnerr.New(spawnerr.UnsafeValue, "cannot escape Go value of type %T as a SQL literal", v)
	}
}

func escapeStringLiteral(s string) Safe {
	return Safe("'" + strings.ReplaceAll(s, "'", "''") + "'")
}

func escapeFloatLiteral(f float64) (Safe, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", spawnerr.New(spawnerr.UnsafeValue, "cannot escape non-finite float %v as a SQL literal", f)
	}
	return Safe(fmt.Sprintf("%v", f)), nil
}

func escapeBytesLiteral(bs []byte) Safe {
	var b strings.Builder
	b.WriteString("'\\x")
	const hex = "0123456789abcdef"
	for _, c := range bs {
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0xf])
	}
	b.WriteString("'")
	return Safe(b.String())
}

func escapeArrayLiteral(items []interface{}) (Safe, error) {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		s, err := EscapeLiteral(item)
		if err != nil {
			return "", err
		}
		parts = append(parts, string(s))
	}
	return Safe("ARRAY[" + strings.Join(parts, ", ") + "]"), nil
}

// EscapeIdentifier renders s as a double-quoted PostgreSQL identifier,
// doubling any embedded quote. s must be non-empty and must not contain a
// NUL byte.
func EscapeIdentifier(s string) (Safe, error) {
	if s == "" {
		return "", spawnerr.New(spawnerr.UnsafeValue, "identifier must not be empty")
	}
	if strings.IndexByte(s, 0) >= 0 {
		return "", spawnerr.New(spawnerr.UnsafeValue, "identifier must not contain a NUL byte")
	}
	return Safe(`"` + strings.ReplaceAll(s, `"`, `""`) + `"`), nil
}

// SortedMapKeys returns m's keys in sorted order, for rendering a map's
// keys in a stable order; maps themselves remain unescapable as literals
// by EscapeLiteral.
func SortedMapKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
