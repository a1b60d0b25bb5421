// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package tmpl

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/sqlval"
)

func registerBuiltinFilters(e *Engine) {
	e.filters["upper"] = filterUpper
	e.filters["lower"] = filterLower
	e.filters["default"] = filterDefault
	e.filters["replace"] = filterReplace
	e.filters["length"] = filterLength
	e.filters["range"] = filterRange
	e.filters["escape_identifier"] = filterEscapeIdentifier
	e.filters["safe"] = filterSafe
	e.filters["read_file"] = filterReadFile
	e.filters["to_string_lossy"] = filterToStringLossy
	e.filters["base64_encode"] = filterBase64Encode
	e.filters["parse_json"] = filterParseJSON
	e.filters["parse_toml"] = filterParseTOML
	e.filters["parse_yaml"] = filterParseYAML
	e.filters["read_json"] = filterReadJSON
	e.filters["read_toml"] = filterReadTOML
	e.filters["read_yaml"] = filterReadYAML
}

// firstArg returns value when it is non-nil (the pipe-call convention),
// otherwise the first explicit argument (the bare function-call
// convention), so every filter that uses it works as both `x | f` and
// `f(x)`. `default` and `replace` do not use it and take their subject
// only through the pipe.
func firstArg(value interface{}, args []interface{}) (interface{}, []interface{}) {
	if value != nil {
		if _, ok := value.(undefinedValue); !ok {
			return value, args
		}
	}
	if len(args) == 0 {
		return nil, nil
	}
	return args[0], args[1:]
}

func filterUpper(_ *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	v, _ := firstArg(value, args)
	return strings.ToUpper(toDisplayString(v)), nil
}

func filterLower(_ *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	v, _ := firstArg(value, args)
	return strings.ToLower(toDisplayString(v)), nil
}

func filterDefault(_ *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	if _, ok := value.(undefinedValue); ok || value == nil {
		if len(args) == 0 {
			return "", nil
		}
		return args[0], nil
	}
	return value, nil
}

func filterReplace(_ *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, spawnerr.New(spawnerr.TemplateError, "replace requires two arguments")
	}
	return strings.ReplaceAll(toDisplayString(value), toDisplayString(args[0]), toDisplayString(args[1])), nil
}

func filterLength(_ *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	v, _ := firstArg(value, args)
	n, ok := valueLength(v)
	if !ok {
		return nil, spawnerr.New(spawnerr.TemplateError, "length: value of type %T has no length", v)
	}
	return n, nil
}

func filterRange(_ *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	nums := args
	if value != nil {
		if _, ok := value.(undefinedValue); !ok {
			nums = append([]interface{}{value}, args...)
		}
	}
	var start, stop, step int64 = 0, 0, 1
	switch len(nums) {
	case 1:
		s, ok := isIntValue(nums[0])
		if !ok {
			return nil, spawnerr.New(spawnerr.TemplateError, "range: arguments must be integers")
		}
		stop = s
	case 2, 3:
		s0, ok0 := isIntValue(nums[0])
		s1, ok1 := isIntValue(nums[1])
		if !ok0 || !ok1 {
			return nil, spawnerr.New(spawnerr.TemplateError, "range: arguments must be integers")
		}
		start, stop = s0, s1
		if len(nums) == 3 {
			s2, ok2 := isIntValue(nums[2])
			if !ok2 || s2 == 0 {
				return nil, spawnerr.New(spawnerr.TemplateError, "range: step must be a non-zero integer")
			}
			step = s2
		}
	default:
		return nil, spawnerr.New(spawnerr.TemplateError, "range expects 1 to 3 arguments")
	}
	var out []interface{}
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	return out, nil
}

func filterEscapeIdentifier(_ *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	v, _ := firstArg(value, args)
	return sqlval.EscapeIdentifier(toDisplayString(v))
}

// filterSafe unconditionally marks value as already-escaped SQL. It
// bypasses auto-escape entirely, so callers own the value's safety;
// prefer escape_identifier for identifiers.
func filterSafe(_ *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	v, _ := firstArg(value, args)
	return sqlval.Safe(toDisplayString(v)), nil
}

func filterReadFile(ctx *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	v, _ := firstArg(value, args)
	path, ok := v.(string)
	if !ok {
		return nil, spawnerr.New(spawnerr.TemplateError, "read_file: path must be a string")
	}
	bs, err := ctx.src.Open(path)
	if err != nil {
		return nil, wrapSourceErr(err, path)
	}
	return bs, nil
}

func filterToStringLossy(_ *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	v, _ := firstArg(value, args)
	switch t := v.(type) {
	case []byte:
		return strings.ToValidUTF8(string(t), "�"), nil
	case string:
		return strings.ToValidUTF8(t, "�"), nil
	default:
		return nil, spawnerr.New(spawnerr.TemplateError, "to_string_lossy: expected bytes or string, got %T", v)
	}
}

func filterBase64Encode(_ *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	v, _ := firstArg(value, args)
	var bs []byte
	switch t := v.(type) {
	case []byte:
		bs = t
	case string:
		bs = []byte(t)
	default:
		return nil, spawnerr.New(spawnerr.TemplateError, "base64_encode: expected bytes or string, got %T", v)
	}
	return base64.StdEncoding.EncodeToString(bs), nil
}

func asParseableString(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return "", spawnerr.New(spawnerr.TemplateError, "expected bytes or string, got %T", v)
	}
}

func filterParseJSON(_ *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	v, _ := firstArg(value, args)
	s, err := asParseableString(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, spawnerr.Wrap(spawnerr.TemplateError, err, "parse_json")
	}
	return out, nil
}

func filterParseTOML(_ *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	v, _ := firstArg(value, args)
	s, err := asParseableString(v)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if err := toml.Unmarshal([]byte(s), &out); err != nil {
		return nil, spawnerr.Wrap(spawnerr.TemplateError, err, "parse_toml")
	}
	return out, nil
}

func filterParseYAML(_ *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	v, _ := firstArg(value, args)
	s, err := asParseableString(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := yaml.Unmarshal([]byte(s), &out); err != nil {
		return nil, spawnerr.Wrap(spawnerr.TemplateError, err, "parse_yaml")
	}
	return out, nil
}

// readAndParse is the shared body of read_json/read_toml/read_yaml: sugar
// for read_file | to_string_lossy | parse_*.
func readAndParse(ctx *execCtx, value interface{}, args []interface{}, parse func(*execCtx, interface{}, []interface{}) (interface{}, error)) (interface{}, error) {
	bs, err := filterReadFile(ctx, value, args)
	if err != nil {
		return nil, err
	}
	s, err := filterToStringLossy(ctx, bs, nil)
	if err != nil {
		return nil, err
	}
	return parse(ctx, s, nil)
}

func filterReadJSON(ctx *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	return readAndParse(ctx, value, args, filterParseJSON)
}

func filterReadTOML(ctx *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	return readAndParse(ctx, value, args, filterParseTOML)
}

func filterReadYAML(ctx *execCtx, value interface{}, args []interface{}) (interface{}, error) {
	return readAndParse(ctx, value, args, filterParseYAML)
}
