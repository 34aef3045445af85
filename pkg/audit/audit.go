// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit records per-turn events of a workflow run for later
// inspection.
package audit

import (
	"context"
	"sync"
	"time"
)

// Event phases.
const (
	PhaseRun      = "run"
	PhaseTurn     = "turn"
	PhaseToolCall = "tool_call"
)

// Event statuses.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// TurnEvent is one recorded step of a run.
type TurnEvent struct {
	RunID   string
	AgentID string
	Phase   string
	Status  string
	Detail  string
	At      time.Time
}

// Store persists turn events.
type Store interface {
	Record(ctx context.Context, event TurnEvent) error
	List(ctx context.Context, filter Filter) ([]TurnEvent, error)
}

// Filter limits event queries.
type Filter struct {
	RunID   string
	AgentID string
	Status  string
	Limit   int
}

// MemoryStore keeps events in memory.
type MemoryStore struct {
	mu     sync.Mutex
	events []TurnEvent
}

// NewMemoryStore returns an in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends an event.
func (s *MemoryStore) Record(_ context.Context, event TurnEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	s.events = append(s.events, event)
	return nil
}

// List returns filtered events in record order.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]TurnEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TurnEvent, 0, len(s.events))
	for _, ev := range s.events {
		if filter.RunID != "" && ev.RunID != filter.RunID {
			continue
		}
		if filter.AgentID != "" && ev.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && ev.Status != filter.Status {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
