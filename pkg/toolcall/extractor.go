// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package toolcall

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jcanyelles/weft/pkg/mcp"
)

const (
	codeFence    = "```tool_code"
	outputsFence = "```tool_outputs"
)

var callHead = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// Runner executes discovered tool calls and exposes their schemas.
// *mcp.Manager satisfies it.
type Runner interface {
	ExecuteTool(ctx context.Context, name string, args map[string]any) (string, error)
	Schema(name string) (mcp.ToolSchema, bool)
}

// Call is one extracted invocation.
type Call struct {
	Category string
	Function string
	Args     map[string]any
}

// Extractor scans model output for embedded tool calls.
type Extractor struct {
	runner Runner
	logger *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithExtractorLogger sets the diagnostics logger.
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Extractor backed by the given runner.
func New(runner Runner, opts ...ExtractorOption) *Extractor {
	e := &Extractor{runner: runner, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process finds tool calls in text, executes those whose category is in
// permitted, and returns the text with a results block appended. Calls for
// other categories are skipped silently. Parse and execution failures
// become inline result lines; Process itself never fails.
func (e *Extractor) Process(ctx context.Context, text string, permitted []string) string {
	blocks := findBlocks(text)
	if len(blocks) == 0 {
		return text
	}

	allowed := make(map[string]bool, len(permitted))
	for _, c := range permitted {
		allowed[c] = true
	}

	var lines []string
	for _, block := range blocks {
		calls, failures := e.extract(block, allowed)
		for _, call := range calls {
			out, err := e.runner.ExecuteTool(ctx, call.Function, call.Args)
			label := call.Category + "." + call.Function
			if err != nil {
				lines = append(lines, fmt.Sprintf("%s: [error: %v]", label, err))
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %s", label, out))
		}
		lines = append(lines, failures...)
	}
	if len(lines) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n")
	b.WriteString(outputsFence)
	b.WriteString("\n")
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("```")
	return b.String()
}

// extract returns the permitted, successfully parsed calls of one block,
// plus inline report lines for calls whose arguments could not be parsed.
func (e *Extractor) extract(block string, allowed map[string]bool) ([]Call, []string) {
	var calls []Call
	var failures []string
	cursor := 0
	for _, m := range callHead.FindAllStringSubmatchIndex(block, -1) {
		if m[0] < cursor {
			continue // head inside a previous call's arguments
		}
		open := m[1] - 1
		end, ok := argSpan(block, open)
		if !ok {
			e.logger.Warn("unterminated tool call, skipping",
				"head", block[m[0]:m[1]])
			cursor = m[1]
			continue
		}
		cursor = end

		category := block[m[2]:m[3]]
		function := block[m[4]:m[5]]
		if !allowed[category] {
			continue
		}

		raw := block[open+1 : end-1]
		named, err := e.bindArguments(function, raw)
		if err != nil {
			failures = append(failures,
				fmt.Sprintf("%s.%s: [error parsing arguments: %v]", category, function, err))
			continue
		}
		calls = append(calls, Call{Category: category, Function: function, Args: named})
	}
	return calls, failures
}

// bindArguments parses the raw argument text and maps positional values to
// parameter names using the tool's declared schema order.
func (e *Extractor) bindArguments(function, raw string) (map[string]any, error) {
	args, kwargs, err := parseArguments(raw)
	if err != nil {
		// Embedded source code defeats the literal parser; calls shaped as
		// fn(path, """body""") get a manual split at the first top-level
		// comma with the body taken verbatim.
		if strings.Contains(raw, `"""`) || strings.Contains(raw, "'''") {
			args, kwargs, err = splitPathAndBody(raw)
		}
		if err != nil {
			return nil, err
		}
	}

	named := make(map[string]any, len(args)+len(kwargs))
	if len(args) > 0 {
		order := e.paramOrder(function)
		for i, a := range args {
			if i >= len(order) {
				e.logger.Warn("positional argument has no declared parameter, dropping",
					"function", function, "index", i)
				break
			}
			named[order[i]] = a
		}
	}
	for k, v := range kwargs {
		named[k] = v
	}
	return named, nil
}

func (e *Extractor) paramOrder(function string) []string {
	if e.runner == nil {
		return nil
	}
	schema, ok := e.runner.Schema(function)
	if !ok {
		return nil
	}
	if len(schema.ParamOrder) > 0 {
		return schema.ParamOrder
	}
	return schema.Tool.InputSchema.Required
}

// splitPathAndBody recovers a two-argument call whose second argument is a
// triple-quoted block the literal parser rejected.
func splitPathAndBody(raw string) ([]any, map[string]any, error) {
	comma := topLevelComma(raw)
	if comma < 0 {
		return nil, nil, fmt.Errorf("no top-level comma in arguments")
	}
	first := strings.TrimSpace(raw[:comma])
	rest := strings.TrimSpace(raw[comma+1:])

	p := &litParser{src: first}
	path, err := p.parseString()
	if err != nil {
		path = strings.Trim(first, `'"`)
	}
	body, ok := stripTriple(rest)
	if !ok {
		return nil, nil, fmt.Errorf("second argument is not a triple-quoted block")
	}
	return []any{path, body}, nil, nil
}

func stripTriple(s string) (string, bool) {
	for _, delim := range []string{`"""`, "'''"} {
		if len(s) >= 6 && strings.HasPrefix(s, delim) && strings.HasSuffix(s, delim) {
			return s[3 : len(s)-3], true
		}
	}
	return "", false
}

// findBlocks returns the contents of every fenced tool_code block.
// A block without a closing fence is dropped.
func findBlocks(text string) []string {
	var blocks []string
	rest := text
	for {
		start := strings.Index(rest, codeFence)
		if start < 0 {
			return blocks
		}
		rest = rest[start+len(codeFence):]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		end := strings.Index(rest, "```")
		if end < 0 {
			return blocks
		}
		blocks = append(blocks, rest[:end])
		rest = rest[end+3:]
	}
}
