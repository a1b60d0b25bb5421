// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package tmpl

import (
	"strings"

	"github.com/spawnhq/spawn/spawnerr"
)

// segmentKind distinguishes the three block shapes the lexer splits a
// template into: raw text, `{{ }}` output, `{% %}` statement. `{# #}`
// comments are recognized but dropped before a Segment is ever produced.
type segmentKind int

const (
	segText segmentKind = iota
	segExpr
	segStmt
)

type segment struct {
	kind segmentKind
	text string // segText
	code string // segExpr / segStmt: the raw code between the delimiters
}

// lex splits src into segments, honoring `-` whitespace-trim modifiers on
// every delimiter (`{{-`, `-}}`, `{%-`, `-%}`, `{#-`, `-#}`).
func lex(src string) ([]segment, error) {
	var out []segment
	i := 0
	for i < len(src) {
		next, kind := findNextDelim(src, i)
		if next < 0 {
			out = append(out, segment{kind: segText, text: src[i:]})
			break
		}

		trimLeft := next+2 < len(src) && src[next+2] == '-'
		openLen := 2
		if trimLeft {
			openLen = 3
		}

		text := src[i:next]
		if trimLeft {
			text = strings.TrimRight(text, " \t\r\n")
		}
		if text != "" {
			out = append(out, segment{kind: segText, text: text})
		}

		bodyStart := next + openLen
		closer, trimClose := closerFor(kind)
		closeIdx, trimRight, err := findCloser(src, bodyStart, closer, trimClose)
		if err != nil {
			return nil, err
		}

		code := src[bodyStart:closeIdx]
		code = strings.TrimSpace(code)

		if kind != segComment {
			out = append(out, segment{kind: segmentKind(kind), code: code})
		}

		afterLen := len(closer)
		if trimRight {
			afterLen++
		}
		i = closeIdx + afterLen
		if trimRight {
			i = skipLeadingSpace(src, i)
		}
	}
	return out, nil
}

// delimKind mirrors segmentKind but adds the comment case, which never
// survives into a segment.
type delimKind int

const (
	delimExpr delimKind = delimKind(segExpr)
	delimStmt delimKind = delimKind(segStmt)
	segComment delimKind = 99
)

func findNextDelim(src string, from int) (int, delimKind) {
	best := -1
	var bestKind delimKind
	for _, c := range []struct {
		marker string
		kind   delimKind
	}{
		{"{{", delimExpr},
		{"{%", delimStmt},
		{"{#", segComment},
	} {
		if idx := strings.Index(src[from:], c.marker); idx >= 0 {
			abs := from + idx
			if best < 0 || abs < best {
				best = abs
				bestKind = c.kind
			}
		}
	}
	return best, bestKind
}

func closerFor(kind delimKind) (marker string, trimMarker string) {
	switch kind {
	case delimExpr:
		return "}}", "-}}"
	case delimStmt:
		return "%}", "-%}"
	default:
		return "#}", "-#}"
	}
}

// findCloser scans from `from` for the closing marker, tracking quote
// state so a string literal containing "}}"-like text inside a `{{ }}`
// block does not terminate the block early.
func findCloser(src string, from int, marker, trimMarker string) (idx int, trimmed bool, err error) {
	var quote byte
	for i := from; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		if strings.HasPrefix(src[i:], trimMarker) {
			return i, true, nil
		}
		if strings.HasPrefix(src[i:], marker) {
			return i, false, nil
		}
	}
	return 0, false, spawnerr.New(spawnerr.TemplateError, "unterminated %q block", marker)
}

func skipLeadingSpace(src string, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\r' || src[i] == '\n') {
		i++
	}
	return i
}

// --- expression tokenizer, used on segment.code for segExpr/segStmt ---

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
)

type token struct {
	kind  tokKind
	str   string
	num   float64
	isInt bool
}

// lexExpr tokenizes the code inside a single `{{ }}` or `{% %}` block.
func lexExpr(code string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(code) {
		c := code[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'' || c == '"':
			s, n, err := scanString(code, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, str: s})
			i = n
		case isDigit(c):
			s, n := scanNumber(code, i)
			f, isInt := parseNumberLiteral(s)
			toks = append(toks, token{kind: tokNumber, num: f, isInt: isInt})
			i = n
		case isIdentStart(c):
			n := i
			for n < len(code) && isIdentPart(code[n]) {
				n++
			}
			toks = append(toks, token{kind: tokIdent, str: code[i:n]})
			i = n
		default:
			op, n, ok := scanOp(code, i)
			if !ok {
				return nil, spawnerr.New(spawnerr.TemplateError, "unexpected character %q in template expression", c)
			}
			toks = append(toks, token{kind: tokOp, str: op})
			i = n
		}
	}
	return toks, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func scanString(code string, i int) (string, int, error) {
	quote := code[i]
	var b strings.Builder
	i++
	for i < len(code) {
		c := code[i]
		if c == quote {
			return b.String(), i + 1, nil
		}
		if c == '\\' && i+1 < len(code) {
			i++
			switch code[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '\'', '"':
				b.WriteByte(code[i])
			default:
				b.WriteByte(code[i])
			}
			i++
			continue
		}
		b.WriteByte(c)
		i++
	}
	return "", 0, spawnerr.New(spawnerr.TemplateError, "unterminated string literal")
}

func scanNumber(code string, i int) (string, int) {
	n := i
	for n < len(code) && isDigit(code[n]) {
		n++
	}
	if n < len(code) && code[n] == '.' {
		n++
		for n < len(code) && isDigit(code[n]) {
			n++
		}
	}
	return code[i:n], n
}

func parseNumberLiteral(s string) (float64, bool) {
	if !strings.Contains(s, ".") {
		var v float64
		for _, r := range s {
			v = v*10 + float64(r-'0')
		}
		return v, true
	}
	var whole, frac float64
	var fracDiv float64 = 1
	seenDot := false
	for _, r := range s {
		if r == '.' {
			seenDot = true
			continue
		}
		d := float64(r - '0')
		if !seenDot {
			whole = whole*10 + d
		} else {
			frac = frac*10 + d
			fracDiv *= 10
		}
	}
	return whole + frac/fracDiv, false
}

var multiCharOps = []string{"==", "!=", "<=", ">=", "~"}

func scanOp(code string, i int) (string, int, bool) {
	for _, op := range multiCharOps {
		if strings.HasPrefix(code[i:], op) {
			return op, i + len(op), true
		}
	}
	switch code[i] {
	case '(', ')', '[', ']', '{', '}', ',', '.', '|', '+', '-', '*', '/', '%', '<', '>', '=', ':':
		return string(code[i]), i + 1, true
	}
	return "", i, false
}
