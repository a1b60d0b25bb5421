// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package tmpl

import (
	"strings"

	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/sqlval"
)

func (ctx *execCtx) eval(e Expr, scope *Scope) (interface{}, error) {
	switch t := e.(type) {
	case LiteralExpr:
		return t.Value, nil

	case VarExpr:
		if v, ok := scope.get(t.Name); ok {
			return v, nil
		}
		return undefinedValue{path: t.Name}, nil

	case AttrExpr:
		target, err := ctx.eval(t.Target, scope)
		if err != nil {
			return nil, err
		}
		return attrLookup(target, t.Name), nil

	case IndexExpr:
		target, err := ctx.eval(t.Target, scope)
		if err != nil {
			return nil, err
		}
		idx, err := ctx.eval(t.Index, scope)
		if err != nil {
			return nil, err
		}
		return indexLookup(target, idx), nil

	case UnaryExpr:
		v, err := ctx.eval(t.Operand, scope)
		if err != nil {
			return nil, err
		}
		switch t.Op {
		case "not":
			return !truthy(v), nil
		case "-":
			if i, ok := isIntValue(v); ok {
				return -i, nil
			}
			if f, ok := toFloat(v); ok {
				return -f, nil
			}
			return nil, spawnerr.New(spawnerr.TemplateError, "cannot negate non-numeric value")
		}
		return nil, spawnerr.New(spawnerr.TemplateError, "unknown unary operator %q", t.Op)

	case BinaryExpr:
		return ctx.evalBinary(t, scope)

	case CondExpr:
		cond, err := ctx.eval(t.Cond, scope)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return ctx.eval(t.Then, scope)
		}
		return ctx.eval(t.Else, scope)

	case ListExpr:
		out := make([]interface{}, len(t.Items))
		for i, item := range t.Items {
			v, err := ctx.eval(item, scope)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case MapExpr:
		out := make(map[string]interface{}, len(t.Keys))
		for i := range t.Keys {
			k, err := ctx.eval(t.Keys[i], scope)
			if err != nil {
				return nil, err
			}
			v, err := ctx.eval(t.Values[i], scope)
			if err != nil {
				return nil, err
			}
			out[toDisplayString(k)] = v
		}
		return out, nil

	case FilterExpr:
		v, err := ctx.eval(t.Target, scope)
		if err != nil {
			return nil, err
		}
		args := make([]interface{}, len(t.Args))
		for i, a := range t.Args {
			av, err := ctx.eval(a, scope)
			if err != nil {
				return nil, err
			}
			args[i] = av
		}
		fn, ok := ctx.eng.filters[t.Name]
		if !ok {
			return nil, spawnerr.New(spawnerr.TemplateError, "unknown filter %q", t.Name)
		}
		return fn(ctx, v, args)

	case CallExpr:
		return ctx.evalCall(t, scope)
	}
	return nil, spawnerr.New(spawnerr.TemplateError, "unsupported expression")
}

func (ctx *execCtx) evalCall(t CallExpr, scope *Scope) (interface{}, error) {
	ve, ok := t.Callee.(VarExpr)
	if !ok {
		return nil, spawnerr.New(spawnerr.TemplateError, "expression is not callable")
	}
	if v, ok := scope.get(ve.Name); ok {
		if mv, ok := v.(*macroValue); ok {
			return ctx.callMacro(mv, t.Args, scope)
		}
		return nil, spawnerr.New(spawnerr.TemplateError, "%q is not callable", ve.Name)
	}
	args := make([]interface{}, len(t.Args))
	for i, a := range t.Args {
		v, err := ctx.eval(a, scope)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	fn, ok := ctx.eng.filters[ve.Name]
	if !ok {
		return nil, spawnerr.New(spawnerr.TemplateError, "unknown function %q", ve.Name)
	}
	return fn(ctx, nil, args)
}

func (ctx *execCtx) evalBinary(t BinaryExpr, scope *Scope) (interface{}, error) {
	if t.Op == "and" {
		l, err := ctx.eval(t.Left, scope)
		if err != nil {
			return nil, err
		}
		if !truthy(l) {
			return l, nil
		}
		return ctx.eval(t.Right, scope)
	}
	if t.Op == "or" {
		l, err := ctx.eval(t.Left, scope)
		if err != nil {
			return nil, err
		}
		if truthy(l) {
			return l, nil
		}
		return ctx.eval(t.Right, scope)
	}

	l, err := ctx.eval(t.Left, scope)
	if err != nil {
		return nil, err
	}
	r, err := ctx.eval(t.Right, scope)
	if err != nil {
		return nil, err
	}

	switch t.Op {
	case "==":
		return equalValues(l, r), nil
	case "!=":
		return !equalValues(l, r), nil
	case "<", ">", "<=", ">=":
		return compareOrdered(t.Op, l, r)
	case "+":
		return addOrConcat(l, r)
	case "~":
		return concatAsStrings(l, r)
	case "-", "*", "/", "%":
		return arith(t.Op, l, r)
	}
	return nil, spawnerr.New(spawnerr.TemplateError, "unknown binary operator %q", t.Op)
}

func compareOrdered(op string, l, r interface{}) (interface{}, error) {
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if lok && rok {
		switch op {
		case "<":
			return lf < rf, nil
		case ">":
			return lf > rf, nil
		case "<=":
			return lf <= rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}
	ls, lok2 := l.(string)
	rs, rok2 := r.(string)
	if lok2 && rok2 {
		switch op {
		case "<":
			return ls < rs, nil
		case ">":
			return ls > rs, nil
		case "<=":
			return ls <= rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}
	return nil, spawnerr.New(spawnerr.TemplateError, "cannot compare %T and %T with %q", l, r, op)
}

func arith(op string, l, r interface{}) (interface{}, error) {
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		return nil, spawnerr.New(spawnerr.TemplateError, "operator %q requires numeric operands, got %T and %T", op, l, r)
	}
	li, liok := isIntValue(l)
	ri, riok := isIntValue(r)
	switch op {
	case "-":
		if liok && riok {
			return li - ri, nil
		}
		return lf - rf, nil
	case "*":
		if liok && riok {
			return li * ri, nil
		}
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, spawnerr.New(spawnerr.TemplateError, "division by zero")
		}
		return lf / rf, nil
	case "%":
		if riok && liok {
			if ri == 0 {
				return nil, spawnerr.New(spawnerr.TemplateError, "division by zero")
			}
			return li % ri, nil
		}
		return nil, spawnerr.New(spawnerr.TemplateError, "%% requires integer operands")
	}
	return nil, spawnerr.New(spawnerr.TemplateError, "unknown arithmetic operator %q", op)
}

// addOrConcat implements `+`: numeric addition when both operands are
// numbers, otherwise falls through to the same Safe-aware join as `~`.
func addOrConcat(l, r interface{}) (interface{}, error) {
	if li, lok := isIntValue(l); lok {
		if ri, rok := isIntValue(r); rok {
			return li + ri, nil
		}
	}
	if lf, lok := toFloat(l); lok {
		if rf, rok := toFloat(r); rok {
			return lf + rf, nil
		}
	}
	return concatAsStrings(l, r)
}

// concatAsStrings joins two values: two Safe fragments concatenate to
// Safe; a Safe fragment joined with an unescaped value escapes the
// latter first.
func concatAsStrings(l, r interface{}) (interface{}, error) {
	lSafe, lIsSafe := l.(sqlval.Safe)
	rSafe, rIsSafe := r.(sqlval.Safe)
	if lIsSafe || rIsSafe {
		left := lSafe
		if !lIsSafe {
			s, err := sqlval.EscapeLiteral(l)
			if err != nil {
				return nil, err
			}
			left = s
		}
		right := rSafe
		if !rIsSafe {
			s, err := sqlval.EscapeLiteral(r)
			if err != nil {
				return nil, err
			}
			right = s
		}
		return sqlval.ConcatSafe(left, right), nil
	}
	var b strings.Builder
	b.WriteString(toDisplayString(l))
	b.WriteString(toDisplayString(r))
	return b.String(), nil
}

func attrLookup(v interface{}, name string) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		if val, ok := t[name]; ok {
			return val
		}
		return undefinedValue{path: name}
	case undefinedValue:
		return undefinedValue{path: t.path + "." + name}
	default:
		return undefinedValue{path: name}
	}
}

func indexLookup(target, idx interface{}) interface{} {
	switch t := target.(type) {
	case map[string]interface{}:
		key := toDisplayString(idx)
		if val, ok := t[key]; ok {
			return val
		}
		return undefinedValue{path: key}
	case []interface{}:
		n, ok := isIntValue(idx)
		if !ok {
			return undefinedValue{}
		}
		i := int(n)
		if i < 0 {
			i += len(t)
		}
		if i >= 0 && i < len(t) {
			return t[i]
		}
		return undefinedValue{}
	case string:
		n, ok := isIntValue(idx)
		if !ok {
			return undefinedValue{}
		}
		runes := []rune(t)
		i := int(n)
		if i < 0 {
			i += len(runes)
		}
		if i >= 0 && i < len(runes) {
			return string(runes[i])
		}
		return undefinedValue{}
	}
	return undefinedValue{}
}
