// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package util collects small helpers shared by spawn's CLI and core
// packages: cobra flag types and backoff timing.
package util

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ pflag.Value = (*EnumFlag)(nil)

// EnumFlag implements pflag.Value for a flag restricted to a fixed set of
// string choices.
type EnumFlag struct {
	value   string
	choices []string
}

// NewEnumFlag returns an EnumFlag defaulting to def, validated against
// choices.
func NewEnumFlag(def string, choices []string) *EnumFlag {
	return &EnumFlag{value: def, choices: choices}
}

func (f *EnumFlag) String() string { return f.value }

func (f *EnumFlag) Set(value string) error {
	for _, c := range f.choices {
		if c == value {
			f.value = value
			return nil
		}
	}
	return fmt.Errorf("invalid value %q, must be one of %v", value, f.choices)
}

func (f *EnumFlag) Type() string { return "string" }
