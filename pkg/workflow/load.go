package workflow

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// agentRef accepts either a bare agent id or a {agent: id} mapping, both of
// which appear in workflow files in the wild.
type agentRef string

func (r *agentRef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*r = agentRef(strings.TrimSpace(node.Value))
		return nil
	case yaml.MappingNode:
		var m struct {
			Agent string `yaml:"agent"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		if m.Agent == "" {
			return fmt.Errorf("step mapping requires an 'agent' key")
		}
		*r = agentRef(m.Agent)
		return nil
	default:
		return fmt.Errorf("unsupported step node kind %d", node.Kind)
	}
}

type rawWorkflow struct {
	Type     string     `yaml:"type"`
	Steps    []agentRef `yaml:"steps"`
	Branches []agentRef `yaml:"branches"`
	Then     *agentRef  `yaml:"then"`
}

type rawConfig struct {
	Agents   yaml.Node                 `yaml:"agents"`
	Workflow rawWorkflow               `yaml:"workflow"`
	Models   map[string]ModelSettings  `yaml:"models"`
	Tools    map[string]ToolServerSpec `yaml:"tools"`
	MCPTools map[string]ToolServerSpec `yaml:"mcp_tools"`
}

// Load reads and parses a workflow descriptor file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML workflow descriptor. Agents may be declared as a list
// of specs or as a map keyed by agent id.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse workflow yaml: %w", err)
	}

	cfg := &Config{
		Models:      raw.Models,
		ToolServers: raw.Tools,
	}
	if cfg.ToolServers == nil {
		cfg.ToolServers = raw.MCPTools
	}

	agents, err := decodeAgents(&raw.Agents)
	if err != nil {
		return nil, err
	}
	cfg.Agents = agents

	cfg.Workflow = Workflow{
		Type:     Type(raw.Workflow.Type),
		Steps:    refStrings(raw.Workflow.Steps),
		Branches: refStrings(raw.Workflow.Branches),
	}
	if raw.Workflow.Then != nil {
		cfg.Workflow.Then = string(*raw.Workflow.Then)
	}

	for i := range cfg.Agents {
		normalizeAgent(&cfg.Agents[i], i)
	}
	return cfg, nil
}

func decodeAgents(node *yaml.Node) ([]AgentSpec, error) {
	switch node.Kind {
	case 0: // absent
		return nil, nil
	case yaml.SequenceNode:
		var agents []AgentSpec
		if err := node.Decode(&agents); err != nil {
			return nil, fmt.Errorf("parse agents: %w", err)
		}
		return agents, nil
	case yaml.MappingNode:
		// Map form: the key is the agent id.
		var byID map[string]AgentSpec
		if err := node.Decode(&byID); err != nil {
			return nil, fmt.Errorf("parse agents: %w", err)
		}
		agents := make([]AgentSpec, 0, len(byID))
		// Preserve document order by walking the mapping nodes.
		for i := 0; i+1 < len(node.Content); i += 2 {
			id := node.Content[i].Value
			spec := byID[id]
			spec.ID = id
			agents = append(agents, spec)
		}
		return agents, nil
	default:
		return nil, fmt.Errorf("'agents' must be a list or a map")
	}
}

func refStrings(refs []agentRef) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = string(r)
	}
	return out
}

func normalizeAgent(spec *AgentSpec, index int) {
	if spec.ID == "" {
		spec.ID = fmt.Sprintf("agent_%d", index+1)
	}
	if spec.Role == "" {
		spec.Role = "Agent"
	}
	spec.Instruction = strings.TrimSpace(spec.Instruction)
}
