// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Command weft runs declarative multi-agent workflows from the terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jcanyelles/weft/pkg/audit"
	"github.com/jcanyelles/weft/pkg/config"
	"github.com/jcanyelles/weft/pkg/engine"
	"github.com/jcanyelles/weft/pkg/llm"
	"github.com/jcanyelles/weft/pkg/mcp"
	"github.com/jcanyelles/weft/pkg/memory"
	ollamamem "github.com/jcanyelles/weft/pkg/memory/ollama"
	"github.com/jcanyelles/weft/pkg/memory/qdrant"
	"github.com/jcanyelles/weft/pkg/telemetry"
	"github.com/jcanyelles/weft/pkg/workflow"
	"github.com/jcanyelles/weft/providers/anthropic"
	"github.com/jcanyelles/weft/providers/gemini"
	"github.com/jcanyelles/weft/providers/ollama"
	"github.com/jcanyelles/weft/providers/openai"
)

const version = "0.1.0"

type globalFlags struct {
	ConfigPath string
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		runWorkflow(ctx, global, args[1:])
	case "validate":
		validateWorkflow(global, args[1:])
	case "version":
		fmt.Println("weft " + version)
	case "help":
		printUsage()
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{
		ConfigPath: getenv("WEFT_CONFIG", ""),
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func runWorkflow(ctx context.Context, global globalFlags, args []string) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: weft run <workflow.yaml>"))
	}

	cfg, err := config.Load(global.ConfigPath)
	if err != nil {
		fatal(err)
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitWithConfig("weft", version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			fatal(err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(flushCtx)
		}()
	}

	wf, err := workflow.Load(args[0])
	if err != nil {
		fatal(err)
	}
	warnings, err := wf.Validate()
	if err != nil {
		fatal(err)
	}
	for _, w := range warnings {
		logger.Warn("workflow validation", "warning", w)
	}

	gateway := buildGateway(ctx, cfg, logger)

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		fatal(err)
	}

	auditor, closeAudit, err := buildAuditStore(cfg)
	if err != nil {
		fatal(err)
	}
	defer closeAudit()

	metrics, err := telemetry.NewRunMetrics()
	if err != nil {
		fatal(err)
	}

	manager := mcp.NewManager(
		mcp.WithCallTimeout(time.Duration(cfg.Tools.CallTimeoutSeconds)*time.Second),
		mcp.WithGracePeriod(time.Duration(cfg.Tools.GraceSeconds)*time.Second),
		mcp.WithManagerLogger(logger),
		mcp.WithManagerMetrics(metrics),
	)

	run := engine.NewRun(store, gateway,
		engine.WithToolManager(manager),
		engine.WithAuditStore(auditor),
		engine.WithMetrics(metrics),
		engine.WithRunLogger(logger),
	)

	logger.Info("starting workflow", "run_id", run.ID(), "type", wf.Workflow.Type, "agents", len(wf.Agents))

	if err := run.Execute(ctx, wf); err != nil {
		fatal(err)
	}

	printTranscript(store.Entries(), global.JSON)
}

func validateWorkflow(global globalFlags, args []string) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: weft validate <workflow.yaml>"))
	}
	wf, err := workflow.Load(args[0])
	if err != nil {
		fatal(err)
	}
	warnings, err := wf.Validate()
	if err != nil {
		fatal(err)
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning: "+w)
	}
	fmt.Printf("ok: %d agents, %s workflow\n", len(wf.Agents), wf.Workflow.Type)
}

// buildGateway registers one provider per model-name prefix. Cloud providers
// are registered only when a key is configured or present in the environment;
// ollama is always available for local models.
func buildGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) *llm.Gateway {
	gateway := llm.NewGateway(llm.WithGatewayLogger(logger))

	if key := firstNonEmpty(cfg.Providers.Gemini.APIKey, os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")); key != "" {
		p, err := gemini.NewWithAPIKey(ctx, key)
		if err != nil {
			logger.Warn("gemini provider unavailable", "error", err)
		} else {
			gateway.Register("gemini", p)
		}
	}
	if key := firstNonEmpty(cfg.Providers.OpenAI.APIKey, os.Getenv("OPENAI_API_KEY")); key != "" {
		opts := []openai.Option{}
		if cfg.Providers.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Providers.OpenAI.BaseURL))
		}
		p := openai.NewWithAPIKey(key, opts...)
		gateway.Register("gpt", p)
		gateway.Register("o1", p)
		gateway.Register("o3", p)
	}
	if key := firstNonEmpty(cfg.Providers.Anthropic.APIKey, os.Getenv("ANTHROPIC_API_KEY")); key != "" {
		opts := []anthropic.Option{}
		if cfg.Providers.Anthropic.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.Providers.Anthropic.BaseURL))
		}
		gateway.Register("claude", anthropic.NewWithAPIKey(key, opts...))
	}

	local := ollama.New()
	gateway.Register("llama", local)
	gateway.Register("qwen", local)
	gateway.Register("mistral", local)

	// Dry runs: any model named mock-* answers with a canned response.
	gateway.Register("mock", &llm.MockProvider{Response: "mock response"})

	return gateway
}

func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*memory.ContextStore, error) {
	opts := []memory.StoreOption{memory.WithLogger(logger)}

	if cfg.Memory.BackupPath != "" {
		backup, err := memory.OpenBackupLog(cfg.Memory.BackupPath)
		if err != nil {
			return nil, fmt.Errorf("open backup log: %w", err)
		}
		opts = append(opts, memory.WithBackup(backup))
	}

	switch cfg.Memory.Backend {
	case "vector":
		vs, err := qdrant.New(cfg.Memory.QdrantAddr)
		if err != nil {
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		embedder := ollamamem.NewEmbedder(cfg.Memory.EmbedderBaseURL, cfg.Memory.EmbedderModel)
		sem := memory.NewVectorSemantic(vs, embedder, cfg.Memory.Collection,
			memory.WithScoreThreshold(float32(cfg.Memory.ScoreThreshold)))
		if err := sem.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("initialize semantic index: %w", err)
		}
		opts = append(opts, memory.WithSemantic(sem))
	default:
		opts = append(opts, memory.WithSemantic(memory.NewLexical()))
	}

	return memory.NewContextStore(opts...), nil
}

func buildAuditStore(cfg *config.Config) (audit.Store, func(), error) {
	if cfg.Audit.Backend == "sqlite" {
		store, err := audit.OpenSQLiteStore(cfg.Audit.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open audit store: %w", err)
		}
		return store, func() { store.Close() }, nil
	}
	return audit.NewMemoryStore(), func() {}, nil
}

func printTranscript(entries []memory.ContextEntry, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(entries)
		return
	}
	for _, e := range entries {
		fmt.Printf("--- %s ---\n%s\n\n", e.Role, e.Text)
	}
}

func printUsage() {
	fmt.Println(`Weft - declarative multi-agent workflows

Usage:
  weft [global flags] <command> [args]

Global flags:
  --config <path>   Path to weft.yaml (default $WEFT_CONFIG)
  --json            JSON transcript output

Commands:
  run <workflow.yaml>        Execute a workflow
  validate <workflow.yaml>   Check a workflow without running it
  version
  help`)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
