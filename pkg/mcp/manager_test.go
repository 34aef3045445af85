package mcp

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/jcanyelles/weft/pkg/errors"
	"github.com/jcanyelles/weft/pkg/workflow"
)

const mcpStdioHelperEnv = "WEFT_MCP_STDIO_HELPER"

func TestHelperMCPStdioServer(t *testing.T) {
	if os.Getenv(mcpStdioHelperEnv) != "1" {
		return
	}

	server := mcpserver.NewMCPServer("test-stdio", "1.0.0")
	server.AddTool(
		mcpgo.NewTool("read_file",
			mcpgo.WithDescription("Read a file"),
			mcpgo.WithString("path", mcpgo.Required()),
		),
		func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			args := req.GetArguments()
			path, _ := args["path"].(string)
			return mcpgo.NewToolResultText("contents of " + path), nil
		},
	)
	server.AddTool(
		mcpgo.NewTool("write_file",
			mcpgo.WithString("path", mcpgo.Required()),
			mcpgo.WithString("content", mcpgo.Required()),
		),
		func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			args := req.GetArguments()
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)
			return mcpgo.NewToolResultText("wrote " + path + ": " + content), nil
		},
	)
	server.AddTool(
		mcpgo.NewTool("always_fails"),
		func(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			return &mcpgo.CallToolResult{
				IsError: true,
				Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: "boom"}},
			}, nil
		},
	)

	if err := mcpserver.ServeStdio(server); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

func helperSpec(t *testing.T) workflow.ToolServerSpec {
	t.Helper()
	t.Setenv(mcpStdioHelperEnv, "1")
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	return workflow.ToolServerSpec{
		Command: exe,
		Args:    []string{"-test.run", "TestHelperMCPStdioServer"},
	}
}

func TestManager_InitializeAndExecute(t *testing.T) {
	m := NewManager(WithCallTimeout(20 * time.Second))
	ctx := context.Background()
	m.Initialize(ctx, map[string]workflow.ToolServerSpec{"fs": helperSpec(t)})
	defer m.Shutdown(ctx)

	schemas := m.SchemasForCategories([]string{"fs"})
	if len(schemas) != 3 {
		t.Fatalf("expected 3 schemas, got %d", len(schemas))
	}
	// Deterministic name order.
	if schemas[0].Tool.Name != "always_fails" || schemas[2].Tool.Name != "write_file" {
		t.Fatalf("unexpected schema order: %q, %q, %q",
			schemas[0].Tool.Name, schemas[1].Tool.Name, schemas[2].Tool.Name)
	}

	out, err := m.ExecuteTool(ctx, "read_file", map[string]any{"path": "/tmp/x"})
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	if out != "contents of /tmp/x" {
		t.Fatalf("unexpected result: %q", out)
	}

	// Fuzzy match by case-insensitive substring.
	out, err = m.ExecuteTool(ctx, "READ", map[string]any{"path": "/tmp/y"})
	if err != nil {
		t.Fatalf("fuzzy ExecuteTool: %v", err)
	}
	if out != "contents of /tmp/y" {
		t.Fatalf("unexpected fuzzy result: %q", out)
	}
}

func TestManager_ToolErrorAndNotFound(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	m.Initialize(ctx, map[string]workflow.ToolServerSpec{"fs": helperSpec(t)})
	defer m.Shutdown(ctx)

	_, err := m.ExecuteTool(ctx, "always_fails", nil)
	if !errors.HasCode(err, errors.CodeToolFailure) {
		t.Fatalf("expected CodeToolFailure, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected tool error text, got %v", err)
	}

	_, err = m.ExecuteTool(ctx, "no_such_tool", nil)
	if !errors.HasCode(err, errors.CodeToolNotFound) {
		t.Fatalf("expected CodeToolNotFound, got %v", err)
	}
}

func TestManager_FailedCategoryIsSkipped(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	m.Initialize(ctx, map[string]workflow.ToolServerSpec{
		"broken": {Command: "/nonexistent/weft-tool-server"},
	})
	defer m.Shutdown(ctx)

	if schemas := m.SchemasForCategories([]string{"broken"}); len(schemas) != 0 {
		t.Fatalf("expected no schemas for failed category, got %d", len(schemas))
	}
	_, err := m.ExecuteTool(ctx, "anything", nil)
	if !errors.HasCode(err, errors.CodeToolNotFound) {
		t.Fatalf("expected CodeToolNotFound, got %v", err)
	}
}

func TestManager_ShutdownIsIdempotent(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	m.Initialize(ctx, map[string]workflow.ToolServerSpec{"fs": helperSpec(t)})

	m.Shutdown(ctx)
	m.Shutdown(ctx)

	_, err := m.ExecuteTool(ctx, "read_file", map[string]any{"path": "/tmp/x"})
	if !errors.HasCode(err, errors.CodeToolNotFound) {
		t.Fatalf("expected CodeToolNotFound after shutdown, got %v", err)
	}
}

func TestManager_FuzzyLookupPrefersFirstByName(t *testing.T) {
	m := NewManager()
	m.schemas = map[string]ToolSchema{
		"fs_read":  {Tool: mcpgo.Tool{Name: "fs_read"}, Category: "fs"},
		"db_read":  {Tool: mcpgo.Tool{Name: "db_read"}, Category: "db"},
		"fs_write": {Tool: mcpgo.Tool{Name: "fs_write"}, Category: "fs"},
	}

	schema, resolved, err := m.lookupLocked("read")
	if err != nil {
		t.Fatalf("lookupLocked: %v", err)
	}
	if resolved != "db_read" || schema.Category != "db" {
		t.Fatalf("expected db_read, got %q (%q)", resolved, schema.Category)
	}
}

func TestPropertyOrder(t *testing.T) {
	raw := json.RawMessage(`{
		"name": "write_file",
		"inputSchema": {
			"type": "object",
			"properties": {
				"path": {"type": "string", "enum": ["a", "b"]},
				"content": {"type": "string"},
				"mode": {"type": "object", "properties": {"nested": {"type": "string"}}}
			},
			"required": ["path", "content"]
		}
	}`)

	order := propertyOrder(raw)
	want := []string{"path", "content", "mode"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}

	if order := propertyOrder(json.RawMessage(`{"name":"bare"}`)); order != nil {
		t.Fatalf("expected nil order for schema without properties, got %v", order)
	}
}
