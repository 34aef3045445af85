// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package toolcall

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// parseArguments parses a comma-separated argument list of Python-style
// literals: strings (single, double, or triple quoted), numbers, True/False,
// None/null, lists, and dicts. name=value pairs become keyword arguments.
func parseArguments(src string) ([]any, map[string]any, error) {
	p := &litParser{src: src}
	var args []any
	kwargs := make(map[string]any)

	p.skipSpace()
	for !p.eof() {
		if name, ok := p.tryKeyword(); ok {
			v, err := p.parseValue()
			if err != nil {
				return nil, nil, err
			}
			kwargs[name] = v
		} else {
			v, err := p.parseValue()
			if err != nil {
				return nil, nil, err
			}
			args = append(args, v)
		}

		p.skipSpace()
		if p.eof() {
			break
		}
		if p.src[p.pos] != ',' {
			return nil, nil, fmt.Errorf("unexpected character %q at offset %d", p.src[p.pos], p.pos)
		}
		p.pos++
		p.skipSpace()
	}
	if len(kwargs) == 0 {
		kwargs = nil
	}
	return args, kwargs, nil
}

type litParser struct {
	src string
	pos int
}

func (p *litParser) eof() bool { return p.pos >= len(p.src) }

func (p *litParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

// tryKeyword consumes "ident =" when it is not part of "==", leaving the
// cursor on the value. On no match the cursor is unchanged.
func (p *litParser) tryKeyword() (string, bool) {
	save := p.pos
	start := p.pos
	for p.pos < len(p.src) && (isIdentChar(p.src[p.pos]) || (p.pos > start && p.src[p.pos] >= '0' && p.src[p.pos] <= '9')) {
		p.pos++
	}
	if p.pos == start {
		return "", false
	}
	name := p.src[start:p.pos]
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '=' && (p.pos+1 >= len(p.src) || p.src[p.pos+1] != '=') {
		p.pos++
		p.skipSpace()
		return name, true
	}
	p.pos = save
	return "", false
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func (p *litParser) parseValue() (any, error) {
	p.skipSpace()
	if p.eof() {
		return nil, fmt.Errorf("unexpected end of arguments")
	}
	c := p.src[p.pos]
	switch {
	case c == '\'' || c == '"':
		return p.parseString()
	case c == '[':
		return p.parseList()
	case c == '{':
		return p.parseDict()
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return p.parseIdentLiteral()
	}
}

func (p *litParser) parseString() (string, error) {
	q := p.src[p.pos]
	if strings.HasPrefix(p.src[p.pos:], string([]byte{q, q, q})) {
		return p.parseTripleString(q)
	}
	p.pos++

	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '\\':
			if p.pos+1 >= len(p.src) {
				return "", fmt.Errorf("dangling escape at end of string")
			}
			b.WriteString(unescape(p.src[p.pos+1]))
			p.pos += 2
		case q:
			p.pos++
			return b.String(), nil
		case '\n':
			return "", fmt.Errorf("newline in single-quoted string at offset %d", p.pos)
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *litParser) parseTripleString(q byte) (string, error) {
	delim := string([]byte{q, q, q})
	p.pos += 3

	var b strings.Builder
	for p.pos < len(p.src) {
		if p.src[p.pos] == '\\' && p.pos+1 < len(p.src) {
			b.WriteString(unescape(p.src[p.pos+1]))
			p.pos += 2
			continue
		}
		if strings.HasPrefix(p.src[p.pos:], delim) {
			p.pos += 3
			return b.String(), nil
		}
		b.WriteByte(p.src[p.pos])
		p.pos++
	}
	return "", fmt.Errorf("unterminated triple-quoted string")
}

// unescape expands a backslash escape. Unknown escapes keep the backslash,
// matching Python's lenient string semantics.
func unescape(c byte) string {
	switch c {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '0':
		return "\x00"
	case '\\', '\'', '"':
		return string(c)
	default:
		return "\\" + string(c)
	}
}

func (p *litParser) parseNumber() (any, error) {
	start := p.pos
	if p.src[p.pos] == '-' || p.src[p.pos] == '+' {
		p.pos++
	}
	isFloat := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		if c == '.' || c == 'e' || c == 'E' {
			isFloat = true
			p.pos++
			if (c == 'e' || c == 'E') && p.pos < len(p.src) && (p.src[p.pos] == '-' || p.src[p.pos] == '+') {
				p.pos++
			}
			continue
		}
		break
	}
	text := p.src[start:p.pos]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", text)
		}
		return f, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", text)
	}
	return n, nil
}

func (p *litParser) parseList() (any, error) {
	p.pos++ // consume '['
	var items []any
	p.skipSpace()
	for {
		if p.eof() {
			return nil, fmt.Errorf("unterminated list")
		}
		if p.src[p.pos] == ']' {
			p.pos++
			return items, nil
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		p.skipSpace()
		if !p.eof() && p.src[p.pos] == ',' {
			p.pos++
			p.skipSpace()
		}
	}
}

func (p *litParser) parseDict() (any, error) {
	p.pos++ // consume '{'
	items := make(map[string]any)
	p.skipSpace()
	for {
		if p.eof() {
			return nil, fmt.Errorf("unterminated dict")
		}
		if p.src[p.pos] == '}' {
			p.pos++
			return items, nil
		}
		key, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		keyStr, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("dict key must be a string, got %T", key)
		}
		p.skipSpace()
		if p.eof() || p.src[p.pos] != ':' {
			return nil, fmt.Errorf("expected ':' after dict key %q", keyStr)
		}
		p.pos++
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items[keyStr] = v
		p.skipSpace()
		if !p.eof() && p.src[p.pos] == ',' {
			p.pos++
			p.skipSpace()
		}
	}
}

func (p *litParser) parseIdentLiteral() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && isIdentChar(p.src[p.pos]) {
		p.pos++
	}
	word := p.src[start:p.pos]
	switch word {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	case "None", "null":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported literal %q at offset %d", word, start)
	}
}
