// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine drives workflow runs: it resolves agents, sequences or
// parallelizes their turns, routes prompts through the model gateway, and
// records every turn in the shared context store.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcanyelles/weft/pkg/audit"
	"github.com/jcanyelles/weft/pkg/errors"
	"github.com/jcanyelles/weft/pkg/llm"
	"github.com/jcanyelles/weft/pkg/mcp"
	"github.com/jcanyelles/weft/pkg/memory"
	"github.com/jcanyelles/weft/pkg/telemetry"
	"github.com/jcanyelles/weft/pkg/toolcall"
	"github.com/jcanyelles/weft/pkg/workflow"
)

// State is the lifecycle of a run.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// retrievalDepth caps how many prior entries a sequential step may recall.
const retrievalDepth = 5

// ToolManager is the tool subsystem contract consumed by the engine.
// *mcp.Manager satisfies it.
type ToolManager interface {
	Initialize(ctx context.Context, specs map[string]workflow.ToolServerSpec)
	SchemasForCategories(categories []string) []mcp.ToolSchema
	ExecuteTool(ctx context.Context, name string, args map[string]any) (string, error)
	Schema(name string) (mcp.ToolSchema, bool)
	Shutdown(ctx context.Context)
}

// Run owns the moving parts of one workflow execution: context store, tool
// manager, gateway, extractor, and audit trail. Runs are constructed per
// execution; several may coexist in one process.
type Run struct {
	id      string
	store   *memory.ContextStore
	gateway *llm.Gateway
	tools   ToolManager
	extract *toolcall.Extractor
	auditor audit.Store
	metrics *telemetry.RunMetrics
	logger  *slog.Logger
	tracer  trace.Tracer
	state   atomic.Int32
}

// RunOption configures a Run.
type RunOption func(*Run)

// WithToolManager replaces the default empty tool manager.
func WithToolManager(tools ToolManager) RunOption {
	return func(r *Run) {
		if tools != nil {
			r.tools = tools
		}
	}
}

// WithAuditStore records turn events into the given store.
func WithAuditStore(store audit.Store) RunOption {
	return func(r *Run) {
		if store != nil {
			r.auditor = store
		}
	}
}

// WithMetrics enables turn metrics on the run.
func WithMetrics(metrics *telemetry.RunMetrics) RunOption {
	return func(r *Run) {
		r.metrics = metrics
	}
}

// WithRunLogger sets the diagnostics logger.
func WithRunLogger(logger *slog.Logger) RunOption {
	return func(r *Run) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRun assembles a run over the given context store and model gateway.
func NewRun(store *memory.ContextStore, gateway *llm.Gateway, opts ...RunOption) *Run {
	r := &Run{
		id:      uuid.NewString(),
		store:   store,
		gateway: gateway,
		tools:   mcp.NewManager(),
		auditor: audit.NewMemoryStore(),
		logger:  slog.Default(),
		tracer:  otel.Tracer("weft/engine"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.extract = toolcall.New(r.tools, toolcall.WithExtractorLogger(r.logger))
	return r
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Status reports the run's current lifecycle state.
func (r *Run) Status() State { return State(r.state.Load()) }

// Execute runs the workflow to completion. A malformed workflow type is the
// only fatal configuration error; unresolved agents are skipped and provider
// failures surface as degraded turn text. Tool servers are torn down on
// every exit path.
func (r *Run) Execute(ctx context.Context, cfg *workflow.Config) error {
	ctx = telemetry.ContextWithRunID(ctx, r.id)
	ctx, span := r.tracer.Start(ctx, "Workflow.Run",
		trace.WithAttributes(telemetry.RunAttributes(r.id, string(cfg.Workflow.Type))...))
	defer span.End()

	if _, err := workflow.ParseType(string(cfg.Workflow.Type)); err != nil {
		r.state.Store(int32(StateFailed))
		r.recordEvent(ctx, "", audit.PhaseRun, audit.StatusFailed, err.Error())
		return errors.New(errors.CodeInvalidInput, "malformed workflow descriptor", err)
	}

	r.state.Store(int32(StateInitializing))
	r.recordEvent(ctx, "", audit.PhaseRun, audit.StatusStarted, string(cfg.Workflow.Type))

	if err := r.store.Clear(ctx); err != nil {
		r.state.Store(int32(StateFailed))
		return err
	}
	r.tools.Initialize(ctx, cfg.ToolServers)
	defer r.tools.Shutdown(context.WithoutCancel(ctx))

	r.state.Store(int32(StateRunning))
	index := workflow.IndexAgents(cfg.Agents)

	switch cfg.Workflow.Type {
	case workflow.TypeSequential:
		r.runSequential(ctx, cfg, index)
	case workflow.TypeParallel:
		r.runParallel(ctx, cfg, index)
	}

	r.state.Store(int32(StateCompleted))
	r.recordEvent(ctx, "", audit.PhaseRun, audit.StatusCompleted, "")
	return nil
}

// runSequential executes steps strictly in order. Step 0 gets no retrieved
// context; later steps recall up to retrievalDepth prior entries using the
// agent's role and goal as the query.
func (r *Run) runSequential(ctx context.Context, cfg *workflow.Config, index workflow.AgentIndex) {
	for i, id := range cfg.Workflow.Steps {
		agent, ok := index.Resolve(id)
		if !ok {
			r.logger.WarnContext(ctx, "step references unknown agent, skipping",
				"step", i, "agent", id)
			r.recordEvent(ctx, id, audit.PhaseTurn, audit.StatusSkipped, "unresolved agent id")
			continue
		}
		var retrieved string
		if i > 0 {
			retrieved = r.store.Retrieve(ctx, agent.Role+" "+agent.Goal, retrievalDepth)
		}
		r.turn(ctx, cfg, agent, retrieved)
	}
}

// runParallel executes all resolvable branches concurrently, then feeds
// their responses, in declared order, to the consolidation agent if one is
// configured. Branches never retrieve context.
func (r *Run) runParallel(ctx context.Context, cfg *workflow.Config, index workflow.AgentIndex) {
	type branch struct {
		agent    workflow.AgentSpec
		response string
	}
	var branches []*branch
	for i, id := range cfg.Workflow.Branches {
		agent, ok := index.Resolve(id)
		if !ok {
			r.logger.WarnContext(ctx, "branch references unknown agent, skipping",
				"branch", i, "agent", id)
			r.recordEvent(ctx, id, audit.PhaseTurn, audit.StatusSkipped, "unresolved agent id")
			continue
		}
		branches = append(branches, &branch{agent: agent})
	}

	var wg sync.WaitGroup
	for _, b := range branches {
		wg.Add(1)
		go func(b *branch) {
			defer wg.Done()
			b.response = r.turn(ctx, cfg, b.agent, "")
		}(b)
	}
	wg.Wait()

	if cfg.Workflow.Then == "" {
		return
	}
	then, ok := index.Resolve(cfg.Workflow.Then)
	if !ok {
		r.logger.WarnContext(ctx, "consolidation references unknown agent, skipping",
			"agent", cfg.Workflow.Then)
		r.recordEvent(ctx, cfg.Workflow.Then, audit.PhaseTurn, audit.StatusSkipped, "unresolved agent id")
		return
	}

	var agg strings.Builder
	for i, b := range branches {
		fmt.Fprintf(&agg, "Branch Response %d:\n%s\n\n", i+1, b.response)
	}
	r.turn(ctx, cfg, then, strings.TrimRight(agg.String(), "\n"))
}

// turn runs the per-agent protocol: build prompt, record the user entry,
// call the gateway, post-process tool calls, record the response entry.
func (r *Run) turn(ctx context.Context, cfg *workflow.Config, agent workflow.AgentSpec, extra string) string {
	ctx, span := r.tracer.Start(ctx, "Workflow.Turn",
		trace.WithAttributes(telemetry.TurnAttributes(agent.ID, agent.Role, agent.Model)...))
	defer span.End()
	r.recordEvent(ctx, agent.ID, audit.PhaseTurn, audit.StatusStarted, "")

	prompt := buildPrompt(agent, r.renderSchemas(agent.Tools), extra)
	if err := r.store.Append(ctx, "user", prompt); err != nil {
		r.logger.WarnContext(ctx, "failed to record user turn", "agent", agent.ID, "err", err)
	}

	modelName, modelCfg := resolveModel(cfg, agent)
	response := r.gateway.Call(ctx, prompt, modelName, modelCfg)
	if len(agent.Tools) > 0 {
		response = r.extract.Process(ctx, response, agent.Tools)
	}

	if err := r.store.Append(ctx, agent.Role, response); err != nil {
		r.logger.WarnContext(ctx, "failed to record response turn", "agent", agent.ID, "err", err)
	}
	r.recordEvent(ctx, agent.ID, audit.PhaseTurn, audit.StatusCompleted, "")
	r.metrics.RecordTurn(ctx, agent.ID, audit.StatusCompleted)
	return response
}

// resolveModel maps an agent's model reference through the descriptor's
// model settings table. An unlisted reference passes through unchanged.
func resolveModel(cfg *workflow.Config, agent workflow.AgentSpec) (string, llm.ModelConfig) {
	settings, ok := cfg.Models[agent.Model]
	if !ok {
		return agent.Model, llm.ModelConfig{Model: agent.Model}
	}
	name := settings.Model
	if name == "" {
		name = agent.Model
	}
	return name, llm.ModelConfig{
		Model:       name,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	}
}

func (r *Run) recordEvent(ctx context.Context, agentID, phase, status, detail string) {
	if r.auditor == nil {
		return
	}
	err := r.auditor.Record(ctx, audit.TurnEvent{
		RunID:   r.id,
		AgentID: agentID,
		Phase:   phase,
		Status:  status,
		Detail:  detail,
	})
	if err != nil {
		r.logger.WarnContext(ctx, "failed to record audit event", "err", err)
	}
}
