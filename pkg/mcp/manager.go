// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp manages tool-server child processes for a workflow run. Each
// tool category maps to one MCP server spoken to over line-delimited
// JSON-RPC on stdio. Tool schemas are discovered once at initialization and
// are read-only afterwards.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/jcanyelles/weft/pkg/errors"
	"github.com/jcanyelles/weft/pkg/telemetry"
	"github.com/jcanyelles/weft/pkg/workflow"
)

const (
	defaultCallTimeout = 60 * time.Second
	defaultGracePeriod = 2 * time.Second
	handshakeTimeout   = 15 * time.Second
)

// ToolSchema describes one discovered tool and the category that owns it.
type ToolSchema struct {
	Tool     mcpgo.Tool
	Category string
	// ParamOrder preserves the declared property order of the tool's input
	// schema, used to bind positional arguments to parameter names.
	ParamOrder []string
}

// Manager owns the tool-server processes of a single run. It is constructed
// per run; there is no process-wide singleton.
type Manager struct {
	callTimeout time.Duration
	grace       time.Duration
	logger      *slog.Logger
	metrics     *telemetry.RunMetrics

	mu       sync.Mutex
	procs    map[string]*serverProc
	schemas  map[string]ToolSchema
	shutdown bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCallTimeout bounds each tool call. Zero disables the bound.
func WithCallTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d >= 0 {
			m.callTimeout = d
		}
	}
}

// WithGracePeriod sets how long a child may take to exit after a
// termination request before it is killed.
func WithGracePeriod(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.grace = d
		}
	}
}

// WithManagerLogger sets the diagnostics logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithManagerMetrics enables tool-call metrics.
func WithManagerMetrics(metrics *telemetry.RunMetrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates an empty manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		callTimeout: defaultCallTimeout,
		grace:       defaultGracePeriod,
		logger:      slog.Default(),
		procs:       make(map[string]*serverProc),
		schemas:     make(map[string]ToolSchema),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize starts every configured tool server and records its tool
// schemas. A single category's failure is logged and skipped; the remaining
// categories still come up, so callers must treat any tool as possibly
// absent.
func (m *Manager) Initialize(ctx context.Context, specs map[string]workflow.ToolServerSpec) {
	if len(specs) == 0 {
		return
	}

	categories := make([]string, 0, len(specs))
	for category := range specs {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		if err := m.startCategory(ctx, category, specs[category]); err != nil {
			m.logger.WarnContext(ctx, "tool server failed to initialize, continuing without it",
				"category", category, "err", err)
		}
	}
}

func (m *Manager) startCategory(ctx context.Context, category string, spec workflow.ToolServerSpec) error {
	proc, err := startProc(category, spec, m.grace, m.logger)
	if err != nil {
		return err
	}

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	tools, err := handshake(hctx, proc)
	if err != nil {
		proc.close()
		return err
	}

	m.mu.Lock()
	m.procs[category] = proc
	for _, schema := range tools {
		schema.Category = category
		m.schemas[schema.Tool.Name] = schema
	}
	m.mu.Unlock()

	names := make([]string, 0, len(tools))
	for _, schema := range tools {
		names = append(names, schema.Tool.Name)
	}
	m.logger.InfoContext(ctx, "tool server ready", "category", category, "tools", names)
	return nil
}

// handshake performs initialize + initialized + tools/list on a fresh
// session and returns the advertised tool schemas.
func handshake(ctx context.Context, proc *serverProc) ([]ToolSchema, error) {
	initParams := struct {
		ProtocolVersion string               `json:"protocolVersion"`
		Capabilities    struct{}             `json:"capabilities"`
		ClientInfo      mcpgo.Implementation `json:"clientInfo"`
	}{
		ProtocolVersion: mcpgo.LATEST_PROTOCOL_VERSION,
		ClientInfo:      mcpgo.Implementation{Name: "weft", Version: "0.1.0"},
	}
	raw, err := proc.call(ctx, "initialize", initParams)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	var initResult mcpgo.InitializeResult
	if err := json.Unmarshal(raw, &initResult); err != nil {
		return nil, fmt.Errorf("decode initialize result: %w", err)
	}
	if err := proc.notify(ctx, "notifications/initialized", struct{}{}); err != nil {
		return nil, fmt.Errorf("initialized notification: %w", err)
	}

	raw, err = proc.call(ctx, "tools/list", struct{}{})
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	var listResult struct {
		Tools []json.RawMessage `json:"tools"`
	}
	if err := json.Unmarshal(raw, &listResult); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}

	schemas := make([]ToolSchema, 0, len(listResult.Tools))
	for _, rawTool := range listResult.Tools {
		var tool mcpgo.Tool
		if err := json.Unmarshal(rawTool, &tool); err != nil {
			return nil, fmt.Errorf("decode tool: %w", err)
		}
		if tool.Name == "" {
			continue
		}
		schemas = append(schemas, ToolSchema{
			Tool:       tool,
			ParamOrder: propertyOrder(rawTool),
		})
	}
	return schemas, nil
}

// SchemasForCategories returns the schemas owned by the given categories in
// deterministic (name) order. Unknown or unavailable categories contribute
// nothing; this never fails.
func (m *Manager) SchemasForCategories(categories []string) []ToolSchema {
	allowed := make(map[string]bool, len(categories))
	for _, c := range categories {
		allowed[c] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ToolSchema
	for _, schema := range m.schemas {
		if allowed[schema.Category] {
			out = append(out, schema)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool.Name < out[j].Tool.Name })
	return out
}

// Schema looks up a tool schema using the same matching rules as
// ExecuteTool.
func (m *Manager) Schema(name string) (ToolSchema, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	schema, _, err := m.lookupLocked(name)
	if err != nil {
		return ToolSchema{}, false
	}
	return schema, true
}

// lookupLocked resolves a tool by exact name, then by case-insensitive
// substring. With multiple substring matches the lexicographically first
// tool wins and a warning is logged.
func (m *Manager) lookupLocked(name string) (ToolSchema, string, error) {
	if schema, ok := m.schemas[name]; ok {
		return schema, name, nil
	}

	lower := strings.ToLower(name)
	var matches []string
	for candidate := range m.schemas {
		if strings.Contains(strings.ToLower(candidate), lower) {
			matches = append(matches, candidate)
		}
	}
	if len(matches) == 0 {
		return ToolSchema{}, "", errors.New(errors.CodeToolNotFound,
			fmt.Sprintf("tool %q not found", name), nil)
	}
	sort.Strings(matches)
	if len(matches) > 1 {
		m.logger.Warn("ambiguous fuzzy tool match, using first",
			"requested", name, "matches", matches)
	}
	return m.schemas[matches[0]], matches[0], nil
}

// ExecuteTool runs a tool call on the owning category's session and returns
// the concatenated text content of the result. Execution errors propagate;
// this layer does not swallow them.
func (m *Manager) ExecuteTool(ctx context.Context, name string, args map[string]any) (string, error) {
	start := time.Now()
	out, err := m.executeTool(ctx, name, args)
	m.metrics.RecordToolCall(ctx, name, time.Since(start), err != nil)
	return out, err
}

func (m *Manager) executeTool(ctx context.Context, name string, args map[string]any) (string, error) {
	m.mu.Lock()
	schema, resolved, err := m.lookupLocked(name)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	proc := m.procs[schema.Category]
	m.mu.Unlock()

	if proc == nil {
		return "", errors.New(errors.CodeToolNotFound,
			fmt.Sprintf("tool %q has no live server", resolved), nil).
			WithContext("category", schema.Category)
	}

	if m.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.callTimeout)
		defer cancel()
	}

	params := struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}{Name: resolved, Arguments: args}

	raw, err := proc.call(ctx, "tools/call", params)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.New(errors.CodeTimeout,
				fmt.Sprintf("tool %q timed out after %s", resolved, m.callTimeout), err)
		}
		return "", err
	}

	result, err := mcpgo.ParseCallToolResult(&raw)
	if err != nil {
		return "", errors.New(errors.CodeToolFailure, "decode tool result", err)
	}
	text := textContent(result)
	if result.IsError {
		return "", errors.New(errors.CodeToolFailure, text, nil).
			WithContext("tool", resolved)
	}
	return text, nil
}

// Shutdown tears down every tool server. It is idempotent and each
// category's teardown is isolated, so one stuck child cannot block the rest
// beyond its grace period.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true
	procs := m.procs
	m.procs = make(map[string]*serverProc)
	m.schemas = make(map[string]ToolSchema)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for category, proc := range procs {
		wg.Add(1)
		go func(category string, proc *serverProc) {
			defer wg.Done()
			proc.close()
			m.logger.DebugContext(ctx, "tool server closed", "category", category)
		}(category, proc)
	}
	wg.Wait()
}

// textContent concatenates all text-typed content items of a result.
func textContent(result *mcpgo.CallToolResult) string {
	var b strings.Builder
	for _, item := range result.Content {
		switch content := item.(type) {
		case mcpgo.TextContent:
			b.WriteString(content.Text)
		case *mcpgo.TextContent:
			b.WriteString(content.Text)
		}
	}
	return b.String()
}

// propertyOrder extracts the declared key order of inputSchema.properties
// from the raw tool JSON. Encoding loses map order, so the raw document is
// walked token by token.
func propertyOrder(rawTool json.RawMessage) []string {
	var shell struct {
		InputSchema struct {
			Properties json.RawMessage `json:"properties"`
			Required   []string        `json:"required"`
		} `json:"inputSchema"`
	}
	if err := json.Unmarshal(rawTool, &shell); err != nil {
		return nil
	}
	if len(shell.InputSchema.Properties) == 0 {
		return nil
	}

	dec := json.NewDecoder(strings.NewReader(string(shell.InputSchema.Properties)))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}

	var order []string
	depth := 0
	for dec.More() || depth > 0 {
		tok, err = dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		case string:
			if depth == 0 {
				order = append(order, t)
				// Skip the property's schema value.
				var skip json.RawMessage
				if err := dec.Decode(&skip); err != nil {
					return order
				}
			}
		}
	}
	return order
}
