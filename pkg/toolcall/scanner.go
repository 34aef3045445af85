// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package toolcall extracts embedded tool invocations of the form
// category.fn(args) from model output, executes them, and appends their
// results to the text. Argument spans are bounded by a character state
// machine because arguments may contain nested parentheses, escapes, and
// triple-quoted multi-line bodies.
package toolcall

// argSpan bounds the argument span of a call whose opening parenthesis sits
// at open. It returns the index just past the matching close parenthesis.
// Parenthesis depth only counts outside string literals; quotes inside a
// triple-quoted string do not open or close single-quoted strings.
func argSpan(src string, open int) (int, bool) {
	depth := 1
	escaped := false
	var single byte // active one-character quote, 0 if none
	var triple byte // active triple-quote character, 0 if none

	for i := open + 1; i < len(src); i++ {
		c := src[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}

		if triple != 0 {
			if c == triple && i+2 < len(src) && src[i+1] == triple && src[i+2] == triple {
				triple = 0
				i += 2
			}
			continue
		}
		if single != 0 {
			if c == single {
				single = 0
			}
			continue
		}

		switch c {
		case '\'', '"':
			if i+2 < len(src) && src[i+1] == c && src[i+2] == c {
				triple = c
				i += 2
			} else {
				single = c
			}
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// topLevelComma returns the index of the first comma that sits outside any
// string literal and outside any nested brackets, or -1.
func topLevelComma(src string) int {
	depth := 0
	escaped := false
	var single byte
	var triple byte

	for i := 0; i < len(src); i++ {
		c := src[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}

		if triple != 0 {
			if c == triple && i+2 < len(src) && src[i+1] == triple && src[i+2] == triple {
				triple = 0
				i += 2
			}
			continue
		}
		if single != 0 {
			if c == single {
				single = 0
			}
			continue
		}

		switch c {
		case '\'', '"':
			if i+2 < len(src) && src[i+1] == c && src[i+2] == c {
				triple = c
				i += 2
			} else {
				single = c
			}
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
