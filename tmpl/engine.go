// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package tmpl implements a Jinja-family template engine that streams
// rendered bytes to a caller-supplied writer, auto-escaping every
// `{{ }}` interpolation through the sqlval package unless the value is
// already marked sqlval.Safe.
package tmpl

import (
	"bytes"
	"errors"
	"io"

	"github.com/spawnhq/spawn/loader"
	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/sqlval"
	"github.com/spawnhq/spawn/storage"
)

// MaxIncludeDepth bounds include/import nesting.
const MaxIncludeDepth = 64

// FilterFunc implements a named filter or builtin function. For a pipe
// call (`value | name(args...)`) value is the piped-in value; for a bare
// function call (`name(args...)`) value is nil and args holds every
// argument.
type FilterFunc func(ctx *execCtx, value interface{}, args []interface{}) (interface{}, error)

// Engine holds the filter/function registry used by a render call. Render
// builds a fresh Engine for each call.
type Engine struct {
	filters map[string]FilterFunc
}

// NewEngine returns an Engine with every standard and custom filter
// registered.
func NewEngine() *Engine {
	e := &Engine{filters: map[string]FilterFunc{}}
	registerBuiltinFilters(e)
	return e
}

// Scope is one lexical level of template variable bindings: for-loop
// bodies, if-branches, and macro calls each get a fresh child Scope so
// their bindings don't leak into the parent.
type Scope struct {
	vars   map[string]interface{}
	parent *Scope
}

func newScope(parent *Scope) *Scope {
	return &Scope{vars: map[string]interface{}{}, parent: parent}
}

func (s *Scope) get(name string) (interface{}, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (s *Scope) set(name string, v interface{}) { s.vars[name] = v }

// macroValue is a macro bound into a scope: its AST plus the scope it was
// defined in, so default-argument expressions and any names it closes
// over resolve lexically rather than at the call site.
type macroValue struct {
	node    *MacroNode
	closure *Scope
}

// undefinedValue is what a missing variable/attribute/index resolves to.
// It is falsy and renders as the empty string when consumed by a filter
// like `default`, but a bare `{{ undefined }}` interpolation is a
// TemplateError.
type undefinedValue struct{ path string }

type renderState struct {
	stack []string
}

func (s *renderState) push(name string) error {
	for _, n := range s.stack {
		if n == name {
			return spawnerr.New(spawnerr.TemplateError, "template cycle: %q includes itself via %v", name, s.stack)
		}
	}
	if len(s.stack) >= MaxIncludeDepth {
		return spawnerr.New(spawnerr.TemplateError, "template include/import nesting exceeds %d", MaxIncludeDepth)
	}
	s.stack = append(s.stack, name)
	return nil
}

func (s *renderState) pop() { s.stack = s.stack[:len(s.stack)-1] }

// execCtx is the state threaded through a single render: the loader, the
// output sink (swapped out for macro-body and import evaluation), and the
// shared include-stack used for cycle/depth detection.
type execCtx struct {
	eng     *Engine
	src     loader.Source
	w       io.Writer
	envName string
	state   *renderState
}

func (ctx *execCtx) withWriter(w io.Writer) *execCtx {
	cp := *ctx
	cp.w = w
	return &cp
}

// Render parses entry (the root template's bytes, labeled entryName in
// error messages and cycle detection) and streams the rendered output to
// w. Every include/import and read_file inside the template resolves
// through src and only through src -- the entry template itself is the
// one piece of template text that arrives as bytes, because it lives in
// the migration directory rather than under components/.
func Render(src loader.Source, envName string, variables map[string]interface{}, entryName string, entry []byte, w io.Writer) error {
	eng := NewEngine()
	ctx := &execCtx{eng: eng, src: src, w: w, envName: envName, state: &renderState{}}
	root := newScope(nil)
	root.set("env", envName)
	root.set("variables", variables)

	if err := ctx.state.push(entryName); err != nil {
		return err
	}
	defer ctx.state.pop()

	nodes, err := parse(string(entry))
	if err != nil {
		return err
	}
	return ctx.execNodes(nodes, root)
}

func (ctx *execCtx) renderTemplate(name string, scope *Scope) error {
	if err := ctx.state.push(name); err != nil {
		return err
	}
	defer ctx.state.pop()

	bs, err := ctx.src.Open(name)
	if err != nil {
		return wrapSourceErr(err, name)
	}
	nodes, err := parse(string(bs))
	if err != nil {
		return err
	}
	return ctx.execNodes(nodes, scope)
}

func wrapSourceErr(err error, path string) error {
	var se *storage.Error
	if errors.As(err, &se) {
		switch se.Code {
		case storage.InvalidPath:
			return spawnerr.New(spawnerr.TemplateError, "security violation: path %q escapes the components root", path)
		case storage.NotFound:
			return spawnerr.New(spawnerr.TemplateError, "component %q not found", path)
		}
	}
	var pe *spawnerr.Error
	if errors.As(err, &pe) {
		return err
	}
	return spawnerr.Wrap(spawnerr.TemplateError, err, "reading component %q", path)
}

func (ctx *execCtx) execNodes(nodes []Node, scope *Scope) error {
	for _, n := range nodes {
		if err := ctx.execNode(n, scope); err != nil {
			return err
		}
	}
	return nil
}

func (ctx *execCtx) execNode(n Node, scope *Scope) error {
	switch t := n.(type) {
	case TextNode:
		_, err := io.WriteString(ctx.w, t.Text)
		return err

	case OutputNode:
		v, err := ctx.eval(t.Expr, scope)
		if err != nil {
			return err
		}
		if u, ok := v.(undefinedValue); ok {
			return spawnerr.New(spawnerr.TemplateError, "undefined variable %q used in output", u.path)
		}
		safe, err := sqlval.EscapeLiteral(v)
		if err != nil {
			return err
		}
		_, err = io.WriteString(ctx.w, string(safe))
		return err

	case IfNode:
		for _, b := range t.Branches {
			if b.Cond == nil {
				return ctx.execNodes(b.Body, newScope(scope))
			}
			v, err := ctx.eval(b.Cond, scope)
			if err != nil {
				return err
			}
			if truthy(v) {
				return ctx.execNodes(b.Body, newScope(scope))
			}
		}
		return nil

	case ForNode:
		return ctx.execFor(t, scope)

	case SetNode:
		v, err := ctx.eval(t.Expr, scope)
		if err != nil {
			return err
		}
		scope.set(t.Name, v)
		return nil

	case MacroNode:
		node := t
		scope.set(t.Name, &macroValue{node: &node, closure: scope})
		return nil

	case IncludeNode:
		v, err := ctx.eval(t.Path, scope)
		if err != nil {
			return err
		}
		path, ok := v.(string)
		if !ok {
			return spawnerr.New(spawnerr.TemplateError, "include path must evaluate to a string")
		}
		return ctx.renderTemplate(path, newScope(scope))

	case ImportNode:
		return ctx.execImport(t, scope)
	}
	return nil
}

func (ctx *execCtx) execFor(f ForNode, scope *Scope) error {
	iterVal, err := ctx.eval(f.Iterable, scope)
	if err != nil {
		return err
	}
	vals, keys, ok := asIterable(iterVal)
	if !ok {
		return spawnerr.New(spawnerr.TemplateError, "cannot iterate over value of type %T", iterVal)
	}
	if len(vals) == 0 {
		return ctx.execNodes(f.ElseBody, newScope(scope))
	}
	for i, v := range vals {
		child := newScope(scope)
		if f.KeyName != "" {
			if keys != nil {
				child.set(f.KeyName, keys[i])
			} else {
				child.set(f.KeyName, int64(i))
			}
		}
		child.set(f.ValName, v)
		child.set("loop", map[string]interface{}{
			"index0": int64(i),
			"index":  int64(i + 1),
			"first":  i == 0,
			"last":   i == len(vals)-1,
		})
		if err := ctx.execNodes(f.Body, child); err != nil {
			return err
		}
	}
	return nil
}

func (ctx *execCtx) execImport(n ImportNode, scope *Scope) error {
	v, err := ctx.eval(n.Path, scope)
	if err != nil {
		return err
	}
	path, ok := v.(string)
	if !ok {
		return spawnerr.New(spawnerr.TemplateError, "import path must evaluate to a string")
	}

	if err := ctx.state.push(path); err != nil {
		return err
	}
	defer ctx.state.pop()

	bs, err := ctx.src.Open(path)
	if err != nil {
		return wrapSourceErr(err, path)
	}
	nodes, err := parse(string(bs))
	if err != nil {
		return err
	}

	importScope := newScope(nil)
	importScope.set("env", ctx.envName)
	if vars, ok := scope.get("variables"); ok {
		importScope.set("variables", vars)
	}

	subCtx := ctx.withWriter(io.Discard)
	if err := subCtx.execNodes(nodes, importScope); err != nil {
		return err
	}

	for _, name := range n.Names {
		val, ok := importScope.get(name.Name)
		if !ok {
			return spawnerr.New(spawnerr.TemplateError, "cannot import %q: not defined in %q", name.Name, path)
		}
		scope.set(name.Alias, val)
	}
	return nil
}

func (ctx *execCtx) callMacro(mv *macroValue, argExprs []Expr, callerScope *Scope) (interface{}, error) {
	args := make([]interface{}, len(argExprs))
	for i, a := range argExprs {
		v, err := ctx.eval(a, callerScope)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	child := newScope(mv.closure)
	for i, p := range mv.node.Params {
		if i < len(args) {
			child.set(p.Name, args[i])
			continue
		}
		if p.Default != nil {
			v, err := ctx.eval(p.Default, mv.closure)
			if err != nil {
				return nil, err
			}
			child.set(p.Name, v)
			continue
		}
		return nil, spawnerr.New(spawnerr.TemplateError, "macro %q missing required argument %q", mv.node.Name, p.Name)
	}

	var buf bytes.Buffer
	subCtx := ctx.withWriter(&buf)
	if err := subCtx.execNodes(mv.node.Body, child); err != nil {
		return nil, err
	}
	// The macro body already auto-escaped every interpolation it contains;
	// its assembled output must not be escaped a second time at the call
	// site.
	return sqlval.Safe(buf.String()), nil
}
