// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package tmpl

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spawnhq/spawn/sqlval"
)

// truthy implements Jinja-style truthiness: nil, false, zero, and empty
// strings/lists/maps are false; everything else is true.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case undefinedValue:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case sqlval.Safe:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	case []byte:
		return len(t) > 0
	default:
		return true
	}
}

// toDisplayString renders v the way string concatenation and the `upper`/
// `lower`/`replace` filters expect: not SQL-escaped, just a plain string
// form.
func toDisplayString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case undefinedValue:
		return ""
	case string:
		return t
	case sqlval.Safe:
		return string(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

func isIntValue(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	}
	return 0, false
}

// equalValues implements `==`/`!=` across the tagged value model used by
// both template variables and JSON/TOML/YAML-parsed results.
func equalValues(a, b interface{}) bool {
	if _, aUndef := a.(undefinedValue); aUndef {
		a = nil
	}
	if _, bUndef := b.(undefinedValue); bUndef {
		b = nil
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ab, abok := a.(bool)
	bb, bbok := b.(bool)
	if abok && bbok {
		return ab == bb
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// asIterable normalizes v into a slice of values a `for` loop can walk,
// ranging over map values in stable key order when v is a map.
func asIterable(v interface{}) ([]interface{}, []interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, nil, true
	case map[string]interface{}:
		keys := sortedKeys(t)
		keyVals := make([]interface{}, len(keys))
		vals := make([]interface{}, len(keys))
		for i, k := range keys {
			keyVals[i] = k
			vals[i] = t[k]
		}
		return vals, keyVals, true
	case string:
		out := make([]interface{}, 0, len(t))
		for _, r := range t {
			out = append(out, string(r))
		}
		return out, nil, true
	}
	return nil, nil, false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func valueLength(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case string:
		return int64(len([]rune(t))), true
	case sqlval.Safe:
		return int64(len([]rune(string(t)))), true
	case []interface{}:
		return int64(len(t)), true
	case map[string]interface{}:
		return int64(len(t)), true
	case []byte:
		return int64(len(t)), true
	}
	return 0, false
}
