// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for Weft spans.
const (
	AttrRunID        = "weft.run.id"
	AttrWorkflowType = "weft.workflow.type"

	AttrAgentID    = "weft.agent.id"
	AttrAgentRole  = "weft.agent.role"
	AttrAgentModel = "weft.agent.model"

	AttrMemoryRetrieved = "weft.memory.retrieved"

	AttrToolName     = "weft.tool.name"
	AttrToolCategory = "weft.tool.category"
	AttrToolSuccess  = "weft.tool.success"
)

// RunAttributes returns common attributes for a workflow run span.
func RunAttributes(runID, workflowType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
		attribute.String(AttrWorkflowType, workflowType),
	}
}

// TurnAttributes returns attributes for an agent turn span.
func TurnAttributes(agentID, role, model string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
	}
	if role != "" {
		attrs = append(attrs, attribute.String(AttrAgentRole, role))
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrAgentModel, model))
	}
	return attrs
}

// ToolCallAttributes returns attributes for a tool call span.
func ToolCallAttributes(name, category string, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.String(AttrToolCategory, category),
		attribute.Bool(AttrToolSuccess, success),
	}
}
