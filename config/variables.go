// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/spawnhq/spawn/spawnerr"
)

// LoadVariables reads a variables bundle from path, picking the parser by
// file extension (.json, .toml, .yaml/.yml), and normalizes the result
// into the nested map/list/scalar shape the template engine consumes as
// `variables`.
func LoadVariables(path string) (map[string]interface{}, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, spawnerr.Wrap(spawnerr.IOError, err, "reading variables file %s", path)
	}

	out := map[string]interface{}{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(bs, &out); err != nil {
			return nil, spawnerr.Wrap(spawnerr.ConfigError, err, "parsing variables file %s", path)
		}
	case ".toml":
		if err := toml.Unmarshal(bs, &out); err != nil {
			return nil, spawnerr.Wrap(spawnerr.ConfigError, err, "parsing variables file %s", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(bs, &out); err != nil {
			return nil, spawnerr.Wrap(spawnerr.ConfigError, err, "parsing variables file %s", path)
		}
	default:
		return nil, spawnerr.New(spawnerr.ConfigError, "variables file %s: unsupported extension (want .json, .toml, .yaml)", path)
	}

	normalized, ok := normalizeValue(out).(map[string]interface{})
	if !ok {
		return nil, spawnerr.New(spawnerr.ConfigError, "variables file %s: top level must be a table/object", path)
	}
	return normalized, nil
}

// normalizeValue maps parser-specific Go types onto the template engine's
// tagged value model: nil, bool, int64, float64, string, []byte,
// []interface{}, map[string]interface{}. JSON numbers arrive as float64
// and are narrowed to int64 when they are integral, so they take part in
// integer arithmetic and `range` like TOML and YAML integers do.
func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = normalizeValue(e)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = normalizeValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case float64:
		if t == float64(int64(t)) {
			return int64(t)
		}
		return t
	case float32:
		return normalizeValue(float64(t))
	case int:
		return int64(t)
	case uint64:
		return int64(t)
	default:
		return v
	}
}
