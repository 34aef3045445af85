// SPDX-License-Identifier: Apache-2.0

// Package workflow defines the declarative descriptor model for a Weft run:
// agents, the workflow shape, model settings, and tool-server commands.
package workflow

import (
	"fmt"
	"strings"
)

// Type is the closed set of supported workflow shapes.
type Type string

const (
	TypeSequential Type = "sequential"
	TypeParallel   Type = "parallel"
)

// ParseType validates a raw workflow type string.
func ParseType(raw string) (Type, error) {
	switch Type(strings.TrimSpace(raw)) {
	case TypeSequential:
		return TypeSequential, nil
	case TypeParallel:
		return TypeParallel, nil
	default:
		return "", fmt.Errorf("unknown workflow type %q", raw)
	}
}

// AgentSpec describes one named agent. Specs are immutable for the run.
type AgentSpec struct {
	ID          string   `yaml:"id"`
	Role        string   `yaml:"role"`
	Goal        string   `yaml:"goal"`
	Description string   `yaml:"description"`
	Instruction string   `yaml:"instruction"`
	Model       string   `yaml:"model"`
	Tools       []string `yaml:"tools"`
	// SubAgents are declared hierarchies; informational only, never executed.
	SubAgents []string `yaml:"sub_agents"`
}

// Workflow is the control-flow descriptor. Sequential workflows use Steps;
// parallel workflows use Branches plus an optional consolidation agent Then.
type Workflow struct {
	Type     Type     `yaml:"type"`
	Steps    []string `yaml:"steps"`
	Branches []string `yaml:"branches"`
	Then     string   `yaml:"then"`
}

// ModelSettings carries per-model generation parameters.
type ModelSettings struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ToolServerSpec describes how to launch one tool-server child process.
// Exactly one process per category lives for the duration of a run.
type ToolServerSpec struct {
	Command string            `yaml:"server"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// Config is a fully loaded workflow descriptor.
type Config struct {
	Agents      []AgentSpec               `yaml:"agents"`
	Workflow    Workflow                  `yaml:"workflow"`
	Models      map[string]ModelSettings  `yaml:"models"`
	ToolServers map[string]ToolServerSpec `yaml:"tools"`
}

// Validate checks structural rules. It returns non-fatal warnings (duplicate
// agent ids, empty agent references) separately from hard errors.
func (c *Config) Validate() (warnings []string, err error) {
	if _, terr := ParseType(string(c.Workflow.Type)); terr != nil {
		return nil, terr
	}
	switch c.Workflow.Type {
	case TypeSequential:
		if len(c.Workflow.Steps) == 0 {
			return nil, fmt.Errorf("sequential workflow requires steps")
		}
	case TypeParallel:
		if len(c.Workflow.Branches) == 0 {
			return nil, fmt.Errorf("parallel workflow requires branches")
		}
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, agent := range c.Agents {
		if agent.ID == "" {
			warnings = append(warnings, "agent with empty id will be unreachable")
			continue
		}
		if seen[agent.ID] {
			warnings = append(warnings, fmt.Sprintf("duplicate agent id %q: first definition wins", agent.ID))
			continue
		}
		seen[agent.ID] = true
	}
	return warnings, nil
}

// AgentIndex resolves agent ids to specs. When an id is declared more than
// once the first definition wins.
type AgentIndex map[string]AgentSpec

// IndexAgents builds a first-match-wins index over the declared agents.
func IndexAgents(agents []AgentSpec) AgentIndex {
	idx := make(AgentIndex, len(agents))
	for _, agent := range agents {
		if agent.ID == "" {
			continue
		}
		if _, ok := idx[agent.ID]; ok {
			continue
		}
		idx[agent.ID] = agent
	}
	return idx
}

// Resolve looks up an agent spec by id.
func (idx AgentIndex) Resolve(id string) (AgentSpec, bool) {
	spec, ok := idx[id]
	return spec, ok
}
