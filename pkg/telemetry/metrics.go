// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RunMetrics tracks workflow turn and tool-call activity. A nil *RunMetrics
// is valid and records nothing.
type RunMetrics struct {
	turnCounter      metric.Int64Counter
	toolCallCounter  metric.Int64Counter
	toolCallDuration metric.Float64Histogram
}

// NewRunMetrics creates run metrics on the global meter provider.
func NewRunMetrics() (*RunMetrics, error) {
	meter := otel.Meter("weft/engine")

	turnCounter, err := meter.Int64Counter(
		"weft.turns.total",
		metric.WithDescription("Agent turns by workflow type and status"),
	)
	if err != nil {
		return nil, err
	}

	toolCallCounter, err := meter.Int64Counter(
		"weft.toolcalls.total",
		metric.WithDescription("Tool calls by tool name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	toolCallDuration, err := meter.Float64Histogram(
		"weft.toolcalls.duration",
		metric.WithDescription("Tool call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &RunMetrics{
		turnCounter:      turnCounter,
		toolCallCounter:  toolCallCounter,
		toolCallDuration: toolCallDuration,
	}, nil
}

// RecordTurn counts one agent turn.
func (m *RunMetrics) RecordTurn(ctx context.Context, agentID, status string) {
	if m == nil {
		return
	}
	m.turnCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall counts one tool invocation and its latency.
func (m *RunMetrics) RecordToolCall(ctx context.Context, tool string, elapsed time.Duration, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	)
	m.toolCallCounter.Add(ctx, 1, attrs)
	m.toolCallDuration.Record(ctx, elapsed.Seconds(), attrs)
}
