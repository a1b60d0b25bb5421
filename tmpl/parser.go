// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package tmpl

import (
	"github.com/spawnhq/spawn/spawnerr"
)

// parse turns src into the top-level node list for the
// `{{ }}`/`{% %}`/`{# #}` syntax.
func parse(src string) ([]Node, error) {
	segs, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{segs: segs}
	nodes, stop, err := p.parseUntil()
	if err != nil {
		return nil, err
	}
	if stop != "" {
		return nil, spawnerr.New(spawnerr.TemplateError, "unexpected %q with no matching opening tag", stop)
	}
	return nodes, nil
}

type parser struct {
	segs []segment
	pos  int
}

func (p *parser) peek() (segment, bool) {
	if p.pos >= len(p.segs) {
		return segment{}, false
	}
	return p.segs[p.pos], true
}

// parseUntil consumes segments until EOF or a statement tag whose keyword
// is one this call isn't responsible for (elif/else/endif/endfor/
// endmacro), which it returns as `stop` for the caller to interpret.
func (p *parser) parseUntil() ([]Node, string, error) {
	var nodes []Node
	for {
		seg, ok := p.peek()
		if !ok {
			return nodes, "", nil
		}
		switch seg.kind {
		case segText:
			nodes = append(nodes, TextNode{Text: seg.text})
			p.pos++
		case segExpr:
			toks, err := lexExpr(seg.code)
			if err != nil {
				return nil, "", err
			}
			e, err := (&exprParser{toks: toks}).parseExpr()
			if err != nil {
				return nil, "", err
			}
			nodes = append(nodes, OutputNode{Expr: e})
			p.pos++
		case segStmt:
			toks, err := lexExpr(seg.code)
			if err != nil {
				return nil, "", err
			}
			if len(toks) == 0 || toks[0].kind != tokIdent {
				return nil, "", spawnerr.New(spawnerr.TemplateError, "empty statement tag")
			}
			keyword := toks[0].str
			switch keyword {
			case "elif", "else", "endif", "endfor", "endmacro":
				return nodes, keyword, nil
			case "if":
				node, err := p.parseIf(toks)
				if err != nil {
					return nil, "", err
				}
				nodes = append(nodes, node)
			case "for":
				node, err := p.parseFor(toks)
				if err != nil {
					return nil, "", err
				}
				nodes = append(nodes, node)
			case "set":
				node, err := parseSet(toks)
				if err != nil {
					return nil, "", err
				}
				p.pos++
				nodes = append(nodes, node)
				continue
			case "macro":
				p.pos++
				node, err := p.parseMacro(toks)
				if err != nil {
					return nil, "", err
				}
				nodes = append(nodes, node)
				continue
			case "include":
				node, err := parseInclude(toks)
				if err != nil {
					return nil, "", err
				}
				p.pos++
				nodes = append(nodes, node)
				continue
			case "from":
				node, err := parseImport(toks)
				if err != nil {
					return nil, "", err
				}
				p.pos++
				nodes = append(nodes, node)
				continue
			default:
				return nil, "", spawnerr.New(spawnerr.TemplateError, "unknown statement tag %q", keyword)
			}
		}
	}
}

func (p *parser) parseIf(headToks []token) (Node, error) {
	var branches []IfBranch
	cond, err := (&exprParser{toks: headToks[1:]}).parseExpr()
	if err != nil {
		return nil, err
	}
	p.pos++
	body, stop, err := p.parseUntil()
	if err != nil {
		return nil, err
	}
	branches = append(branches, IfBranch{Cond: cond, Body: body})

	for stop == "elif" {
		toks, err := lexExpr(p.segs[p.pos].code)
		if err != nil {
			return nil, err
		}
		cond, err := (&exprParser{toks: toks[1:]}).parseExpr()
		if err != nil {
			return nil, err
		}
		p.pos++
		body, nextStop, err := p.parseUntil()
		if err != nil {
			return nil, err
		}
		branches = append(branches, IfBranch{Cond: cond, Body: body})
		stop = nextStop
	}

	if stop == "else" {
		p.pos++
		body, nextStop, err := p.parseUntil()
		if err != nil {
			return nil, err
		}
		if nextStop != "endif" {
			return nil, spawnerr.New(spawnerr.TemplateError, "expected endif, got %q", nextStop)
		}
		branches = append(branches, IfBranch{Cond: nil, Body: body})
		stop = nextStop
	}

	if stop != "endif" {
		return nil, spawnerr.New(spawnerr.TemplateError, "expected endif, got %q", stop)
	}
	p.pos++
	return IfNode{Branches: branches}, nil
}

func (p *parser) parseFor(headToks []token) (Node, error) {
	rest := headToks[1:]
	if len(rest) == 0 || rest[0].kind != tokIdent {
		return nil, spawnerr.New(spawnerr.TemplateError, "malformed for loop")
	}
	var keyName, valName string
	idx := 0
	first := rest[idx].str
	idx++
	if idx < len(rest) && rest[idx].kind == tokOp && rest[idx].str == "," {
		idx++
		if idx >= len(rest) || rest[idx].kind != tokIdent {
			return nil, spawnerr.New(spawnerr.TemplateError, "malformed for loop")
		}
		keyName = first
		valName = rest[idx].str
		idx++
	} else {
		valName = first
	}
	if idx >= len(rest) || rest[idx].kind != tokIdent || rest[idx].str != "in" {
		return nil, spawnerr.New(spawnerr.TemplateError, "expected 'in' in for loop")
	}
	idx++
	iterable, err := (&exprParser{toks: rest[idx:]}).parseExpr()
	if err != nil {
		return nil, err
	}

	p.pos++
	body, stop, err := p.parseUntil()
	if err != nil {
		return nil, err
	}
	var elseBody []Node
	if stop == "else" {
		p.pos++
		elseBody, stop, err = p.parseUntil()
		if err != nil {
			return nil, err
		}
	}
	if stop != "endfor" {
		return nil, spawnerr.New(spawnerr.TemplateError, "expected endfor, got %q", stop)
	}
	p.pos++

	return ForNode{KeyName: keyName, ValName: valName, Iterable: iterable, Body: body, ElseBody: elseBody}, nil
}

func parseSet(headToks []token) (Node, error) {
	rest := headToks[1:]
	if len(rest) == 0 || rest[0].kind != tokIdent {
		return nil, spawnerr.New(spawnerr.TemplateError, "malformed set statement")
	}
	name := rest[0].str
	if len(rest) < 2 || rest[1].kind != tokOp || rest[1].str != "=" {
		return nil, spawnerr.New(spawnerr.TemplateError, "expected '=' in set statement")
	}
	e, err := (&exprParser{toks: rest[2:]}).parseExpr()
	if err != nil {
		return nil, err
	}
	return SetNode{Name: name, Expr: e}, nil
}

func (p *parser) parseMacro(headToks []token) (Node, error) {
	rest := headToks[1:]
	if len(rest) == 0 || rest[0].kind != tokIdent {
		return nil, spawnerr.New(spawnerr.TemplateError, "malformed macro declaration")
	}
	name := rest[0].str
	ep := &exprParser{toks: rest[1:]}
	if err := ep.expectOp("("); err != nil {
		return nil, err
	}
	var params []MacroParam
	for {
		if ep.atOp(")") {
			ep.pos++
			break
		}
		if len(params) > 0 {
			if err := ep.expectOp(","); err != nil {
				return nil, err
			}
		}
		if ep.pos >= len(ep.toks) || ep.toks[ep.pos].kind != tokIdent {
			return nil, spawnerr.New(spawnerr.TemplateError, "expected parameter name in macro declaration")
		}
		pname := ep.toks[ep.pos].str
		ep.pos++
		var def Expr
		if ep.atOp("=") {
			ep.pos++
			d, err := ep.parseOr()
			if err != nil {
				return nil, err
			}
			def = d
		}
		params = append(params, MacroParam{Name: pname, Default: def})
	}

	body, stop, err := p.parseUntil()
	if err != nil {
		return nil, err
	}
	if stop != "endmacro" {
		return nil, spawnerr.New(spawnerr.TemplateError, "expected endmacro, got %q", stop)
	}
	p.pos++
	return MacroNode{Name: name, Params: params, Body: body}, nil
}

func parseInclude(headToks []token) (Node, error) {
	e, err := (&exprParser{toks: headToks[1:]}).parseExpr()
	if err != nil {
		return nil, err
	}
	return IncludeNode{Path: e}, nil
}

func parseImport(headToks []token) (Node, error) {
	rest := headToks[1:]
	ep := &exprParser{toks: rest}
	pathExpr, err := ep.parsePostfix()
	if err != nil {
		return nil, err
	}
	if ep.pos >= len(ep.toks) || ep.toks[ep.pos].kind != tokIdent || ep.toks[ep.pos].str != "import" {
		return nil, spawnerr.New(spawnerr.TemplateError, "expected 'import' in from statement")
	}
	ep.pos++

	var names []ImportName
	for ep.pos < len(ep.toks) {
		if ep.toks[ep.pos].kind != tokIdent {
			return nil, spawnerr.New(spawnerr.TemplateError, "expected identifier in import list")
		}
		name := ep.toks[ep.pos].str
		ep.pos++
		alias := name
		if ep.pos < len(ep.toks) && ep.toks[ep.pos].kind == tokIdent && ep.toks[ep.pos].str == "as" {
			ep.pos++
			if ep.pos >= len(ep.toks) || ep.toks[ep.pos].kind != tokIdent {
				return nil, spawnerr.New(spawnerr.TemplateError, "expected alias after 'as'")
			}
			alias = ep.toks[ep.pos].str
			ep.pos++
		}
		names = append(names, ImportName{Name: name, Alias: alias})
		if ep.atOp(",") {
			ep.pos++
			continue
		}
		break
	}

	return ImportNode{Path: pathExpr, Names: names}, nil
}

// --- expression parsing (precedence-climbing recursive descent) ---

type exprParser struct {
	toks []token
	pos  int
}

func (ep *exprParser) atOp(op string) bool {
	return ep.pos < len(ep.toks) && ep.toks[ep.pos].kind == tokOp && ep.toks[ep.pos].str == op
}

func (ep *exprParser) atKeyword(kw string) bool {
	return ep.pos < len(ep.toks) && ep.toks[ep.pos].kind == tokIdent && ep.toks[ep.pos].str == kw
}

func (ep *exprParser) expectOp(op string) error {
	if !ep.atOp(op) {
		return spawnerr.New(spawnerr.TemplateError, "expected %q in template expression", op)
	}
	ep.pos++
	return nil
}

func (ep *exprParser) parseExpr() (Expr, error) {
	lhs, err := ep.parseOr()
	if err != nil {
		return nil, err
	}
	if ep.atKeyword("if") {
		ep.pos++
		cond, err := ep.parseOr()
		if err != nil {
			return nil, err
		}
		if !ep.atKeyword("else") {
			return nil, spawnerr.New(spawnerr.TemplateError, "expected 'else' in inline conditional")
		}
		ep.pos++
		elseExpr, err := ep.parseOr()
		if err != nil {
			return nil, err
		}
		return CondExpr{Cond: cond, Then: lhs, Else: elseExpr}, nil
	}
	return lhs, nil
}

func (ep *exprParser) parseOr() (Expr, error) {
	lhs, err := ep.parseAnd()
	if err != nil {
		return nil, err
	}
	for ep.atKeyword("or") {
		ep.pos++
		rhs, err := ep.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = BinaryExpr{Op: "or", Left: lhs, Right: rhs}
	}
	return lhs, nil
}

func (ep *exprParser) parseAnd() (Expr, error) {
	lhs, err := ep.parseNot()
	if err != nil {
		return nil, err
	}
	for ep.atKeyword("and") {
		ep.pos++
		rhs, err := ep.parseNot()
		if err != nil {
			return nil, err
		}
		lhs = BinaryExpr{Op: "and", Left: lhs, Right: rhs}
	}
	return lhs, nil
}

func (ep *exprParser) parseNot() (Expr, error) {
	if ep.atKeyword("not") {
		ep.pos++
		operand, err := ep.parseNot()
		if err != nil {
			return nil, err
		}
		return UnaryExpr{Op: "not", Operand: operand}, nil
	}
	return ep.parseComparison()
}

var comparisonOps = map[string]bool{"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true}

func (ep *exprParser) parseComparison() (Expr, error) {
	lhs, err := ep.parseAdditive()
	if err != nil {
		return nil, err
	}
	for ep.pos < len(ep.toks) && ep.toks[ep.pos].kind == tokOp && comparisonOps[ep.toks[ep.pos].str] {
		op := ep.toks[ep.pos].str
		ep.pos++
		rhs, err := ep.parseAdditive()
		if err != nil {
			return nil, err
		}
		lhs = BinaryExpr{Op: op, Left: lhs, Right: rhs}
	}
	return lhs, nil
}

func (ep *exprParser) parseAdditive() (Expr, error) {
	lhs, err := ep.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for ep.pos < len(ep.toks) && ep.toks[ep.pos].kind == tokOp && (ep.toks[ep.pos].str == "+" || ep.toks[ep.pos].str == "-" || ep.toks[ep.pos].str == "~") {
		op := ep.toks[ep.pos].str
		ep.pos++
		rhs, err := ep.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		lhs = BinaryExpr{Op: op, Left: lhs, Right: rhs}
	}
	return lhs, nil
}

func (ep *exprParser) parseMultiplicative() (Expr, error) {
	lhs, err := ep.parseUnary()
	if err != nil {
		return nil, err
	}
	for ep.pos < len(ep.toks) && ep.toks[ep.pos].kind == tokOp && (ep.toks[ep.pos].str == "*" || ep.toks[ep.pos].str == "/" || ep.toks[ep.pos].str == "%") {
		op := ep.toks[ep.pos].str
		ep.pos++
		rhs, err := ep.parseUnary()
		if err != nil {
			return nil, err
		}
		lhs = BinaryExpr{Op: op, Left: lhs, Right: rhs}
	}
	return lhs, nil
}

func (ep *exprParser) parseUnary() (Expr, error) {
	if ep.atOp("-") {
		ep.pos++
		operand, err := ep.parseUnary()
		if err != nil {
			return nil, err
		}
		return UnaryExpr{Op: "-", Operand: operand}, nil
	}
	return ep.parsePostfix()
}

func (ep *exprParser) parsePostfix() (Expr, error) {
	e, err := ep.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case ep.atOp("."):
			ep.pos++
			if ep.pos >= len(ep.toks) || ep.toks[ep.pos].kind != tokIdent {
				return nil, spawnerr.New(spawnerr.TemplateError, "expected attribute name after '.'")
			}
			e = AttrExpr{Target: e, Name: ep.toks[ep.pos].str}
			ep.pos++
		case ep.atOp("["):
			ep.pos++
			idx, err := ep.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := ep.expectOp("]"); err != nil {
				return nil, err
			}
			e = IndexExpr{Target: e, Index: idx}
		case ep.atOp("("):
			ep.pos++
			args, err := ep.parseArgs()
			if err != nil {
				return nil, err
			}
			e = CallExpr{Callee: e, Args: args}
		case ep.atOp("|"):
			ep.pos++
			if ep.pos >= len(ep.toks) || ep.toks[ep.pos].kind != tokIdent {
				return nil, spawnerr.New(spawnerr.TemplateError, "expected filter name after '|'")
			}
			name := ep.toks[ep.pos].str
			ep.pos++
			var args []Expr
			if ep.atOp("(") {
				ep.pos++
				args, err = ep.parseArgs()
				if err != nil {
					return nil, err
				}
			}
			e = FilterExpr{Target: e, Name: name, Args: args}
		default:
			return e, nil
		}
	}
}

func (ep *exprParser) parseArgs() ([]Expr, error) {
	var args []Expr
	for {
		if ep.atOp(")") {
			ep.pos++
			return args, nil
		}
		if len(args) > 0 {
			if err := ep.expectOp(","); err != nil {
				return nil, err
			}
		}
		e, err := ep.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
}

func (ep *exprParser) parsePrimary() (Expr, error) {
	if ep.pos >= len(ep.toks) {
		return nil, spawnerr.New(spawnerr.TemplateError, "unexpected end of expression")
	}
	t := ep.toks[ep.pos]
	switch t.kind {
	case tokString:
		ep.pos++
		return LiteralExpr{Value: t.str}, nil
	case tokNumber:
		ep.pos++
		if t.isInt {
			return LiteralExpr{Value: int64(t.num)}, nil
		}
		return LiteralExpr{Value: t.num}, nil
	case tokIdent:
		switch t.str {
		case "true":
			ep.pos++
			return LiteralExpr{Value: true}, nil
		case "false":
			ep.pos++
			return LiteralExpr{Value: false}, nil
		case "none", "null":
			ep.pos++
			return LiteralExpr{Value: nil}, nil
		}
		ep.pos++
		return VarExpr{Name: t.str}, nil
	case tokOp:
		switch t.str {
		case "(":
			ep.pos++
			e, err := ep.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := ep.expectOp(")"); err != nil {
				return nil, err
			}
			return e, nil
		case "[":
			ep.pos++
			var items []Expr
			for !ep.atOp("]") {
				if len(items) > 0 {
					if err := ep.expectOp(","); err != nil {
						return nil, err
					}
				}
				e, err := ep.parseExpr()
				if err != nil {
					return nil, err
				}
				items = append(items, e)
			}
			ep.pos++
			return ListExpr{Items: items}, nil
		case "{":
			ep.pos++
			var keys, vals []Expr
			for !ep.atOp("}") {
				if len(keys) > 0 {
					if err := ep.expectOp(","); err != nil {
						return nil, err
					}
				}
				k, err := ep.parseExpr()
				if err != nil {
					return nil, err
				}
				if err := ep.expectOp(":"); err != nil {
					return nil, err
				}
				v, err := ep.parseExpr()
				if err != nil {
					return nil, err
				}
				keys = append(keys, k)
				vals = append(vals, v)
			}
			ep.pos++
			return MapExpr{Keys: keys, Values: vals}, nil
		}
	}
	return nil, spawnerr.New(spawnerr.TemplateError, "unexpected token in template expression")
}
