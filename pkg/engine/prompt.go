// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"strings"

	"github.com/jcanyelles/weft/pkg/workflow"
)

// buildPrompt assembles an agent's prompt from its spec, the rendered tool
// schemas, and extra context (retrieved memory or aggregated branch
// responses).
func buildPrompt(agent workflow.AgentSpec, schemas, extra string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "you are %s and your motive is %s", agent.Role, agent.Goal)
	if agent.Description != "" {
		b.WriteString(" ")
		b.WriteString(agent.Description)
	}
	if agent.Instruction != "" {
		b.WriteString(" ")
		b.WriteString(agent.Instruction)
	}
	if schemas != "" {
		b.WriteString("\n\nYou may call the following tools inside a ```tool_code fenced block:\n")
		b.WriteString(schemas)
	}
	if extra != "" {
		b.WriteString("\n\n")
		b.WriteString(extra)
	}
	return b.String()
}

// renderSchemas formats the tools available to an agent as one line per
// tool: category.name(params): description.
func (r *Run) renderSchemas(categories []string) string {
	if len(categories) == 0 {
		return ""
	}
	schemas := r.tools.SchemasForCategories(categories)
	if len(schemas) == 0 {
		return ""
	}
	var b strings.Builder
	for _, schema := range schemas {
		params := schema.ParamOrder
		if len(params) == 0 {
			params = schema.Tool.InputSchema.Required
		}
		fmt.Fprintf(&b, "- %s.%s(%s)", schema.Category, schema.Tool.Name, strings.Join(params, ", "))
		if schema.Tool.Description != "" {
			fmt.Fprintf(&b, ": %s", schema.Tool.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
