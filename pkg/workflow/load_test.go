package workflow

import (
	"strings"
	"testing"
)

const sequentialYAML = `
agents:
  - id: researcher
    role: Researcher
    goal: gather facts
    model: gemini-2.5-flash
    tools: [filesystem]
  - id: writer
    role: Writer
    goal: write the report
    instruction: |
      Keep it short.
workflow:
  type: sequential
  steps:
    - researcher
    - agent: writer
models:
  gemini-2.5-flash:
    provider: google
    temperature: 0.7
    max_tokens: 2048
tools:
  filesystem:
    server: python
    args: [servers/fs.py]
`

func TestParseSequential(t *testing.T) {
	cfg, err := Parse([]byte(sequentialYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Workflow.Type != TypeSequential {
		t.Fatalf("unexpected type: %s", cfg.Workflow.Type)
	}
	if got := cfg.Workflow.Steps; len(got) != 2 || got[0] != "researcher" || got[1] != "writer" {
		t.Fatalf("unexpected steps: %v", got)
	}
	if cfg.Agents[1].Instruction != "Keep it short." {
		t.Fatalf("instruction not trimmed: %q", cfg.Agents[1].Instruction)
	}
	if cfg.Models["gemini-2.5-flash"].MaxTokens != 2048 {
		t.Fatalf("unexpected model settings: %+v", cfg.Models)
	}
	spec, ok := cfg.ToolServers["filesystem"]
	if !ok || spec.Command != "python" {
		t.Fatalf("unexpected tool servers: %+v", cfg.ToolServers)
	}
	if warnings, err := cfg.Validate(); err != nil || len(warnings) != 0 {
		t.Fatalf("unexpected validation result: %v %v", warnings, err)
	}
}

func TestParseAgentsAsMap(t *testing.T) {
	cfg, err := Parse([]byte(`
agents:
  alpha:
    role: Analyst
  beta:
    role: Critic
workflow:
  type: parallel
  branches: [alpha, beta]
  then: alpha
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(cfg.Agents))
	}
	if cfg.Agents[0].ID != "alpha" || cfg.Agents[1].ID != "beta" {
		t.Fatalf("map order not preserved: %+v", cfg.Agents)
	}
	if cfg.Workflow.Then != "alpha" {
		t.Fatalf("unexpected then: %q", cfg.Workflow.Then)
	}
}

func TestValidateUnknownType(t *testing.T) {
	cfg := &Config{Workflow: Workflow{Type: "pipeline", Steps: []string{"a"}}}
	if _, err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown workflow type")
	}
}

func TestValidateDuplicateAgentWarns(t *testing.T) {
	cfg := &Config{
		Agents: []AgentSpec{
			{ID: "a", Role: "First"},
			{ID: "a", Role: "Second"},
		},
		Workflow: Workflow{Type: TypeSequential, Steps: []string{"a"}},
	}
	warnings, err := cfg.Validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "duplicate") {
		t.Fatalf("expected duplicate warning, got %v", warnings)
	}

	idx := IndexAgents(cfg.Agents)
	spec, ok := idx.Resolve("a")
	if !ok || spec.Role != "First" {
		t.Fatalf("first match should win, got %+v", spec)
	}
}

func TestValidateMissingSections(t *testing.T) {
	seq := &Config{Workflow: Workflow{Type: TypeSequential}}
	if _, err := seq.Validate(); err == nil {
		t.Fatal("expected error for sequential without steps")
	}
	par := &Config{Workflow: Workflow{Type: TypeParallel}}
	if _, err := par.Validate(); err == nil {
		t.Fatal("expected error for parallel without branches")
	}
}

func TestDefaultsApplied(t *testing.T) {
	cfg, err := Parse([]byte(`
agents:
  - goal: just exist
workflow:
  type: sequential
  steps: [agent_1]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Agents[0].ID != "agent_1" {
		t.Fatalf("expected generated id, got %q", cfg.Agents[0].ID)
	}
	if cfg.Agents[0].Role != "Agent" {
		t.Fatalf("expected default role, got %q", cfg.Agents[0].Role)
	}
}
