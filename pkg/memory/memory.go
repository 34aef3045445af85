// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides the shared context store for workflow runs: an
// append-only turn log with a semantic-retrieval facade and a durable
// backup log.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jcanyelles/weft/pkg/errors"
)

// ContextEntry is one recorded conversational turn.
type ContextEntry struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes store contents.
type Stats struct {
	TotalEntries int `json:"total_entries"`
}

// Semantic indexes entries for relevance-ranked retrieval.
type Semantic interface {
	Store(ctx context.Context, entry ContextEntry) error
	Search(ctx context.Context, query string, k int) ([]ContextEntry, error)
	Reset(ctx context.Context) error
}

// ContextStore is the per-run turn log. Writes are mutually exclusive across
// concurrent branch writers; retrieval reads work on a consistent snapshot
// and never block behind a writer beyond the snapshot copy.
type ContextStore struct {
	mu       sync.RWMutex
	entries  []ContextEntry
	backup   *BackupLog
	semantic Semantic
	logger   *slog.Logger
}

// StoreOption configures a ContextStore.
type StoreOption func(*ContextStore)

// WithBackup attaches a durable backup log.
func WithBackup(backup *BackupLog) StoreOption {
	return func(s *ContextStore) { s.backup = backup }
}

// WithSemantic replaces the default lexical index with an external backend.
func WithSemantic(sem Semantic) StoreOption {
	return func(s *ContextStore) {
		if sem != nil {
			s.semantic = sem
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *ContextStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewContextStore creates an empty store. Without options it indexes
// entries with the in-process lexical backend.
func NewContextStore(opts ...StoreOption) *ContextStore {
	s := &ContextStore{
		semantic: NewLexical(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records a turn. The persisted log write is the unit that must
// succeed; backup and semantic indexing degrade to warnings on failure.
func (s *ContextStore) Append(ctx context.Context, role, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	entry := ContextEntry{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	if s.backup != nil {
		if err := s.backup.Append(BackupRecord{Timestamp: entry.CreatedAt, Role: role, Text: text}); err != nil {
			s.logger.WarnContext(ctx, "backup log append failed", "err", err)
		}
	}
	if err := s.semantic.Store(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "semantic index store failed", "err", err)
	}
	return nil
}

// Retrieve returns up to k relevant prior entries formatted as labeled
// memory blocks, or "" when nothing relevant is found. Retrieval failures
// degrade to empty context rather than aborting the caller's turn.
func (s *ContextStore) Retrieve(ctx context.Context, query string, k int) string {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return ""
	}
	matches, err := s.semantic.Search(ctx, query, k)
	if err != nil {
		s.logger.WarnContext(ctx, "semantic search failed", "err", err)
		return ""
	}
	return formatContext(matches)
}

// Clear wipes the turn log, the semantic index, and the backup log. Called
// at the start of every run.
func (s *ContextStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()

	if err := s.semantic.Reset(ctx); err != nil {
		return errors.New(errors.CodeMemoryError, "reset semantic index", err)
	}
	if s.backup != nil {
		if err := s.backup.Reset(); err != nil {
			return errors.New(errors.CodeMemoryError, "reset backup log", err)
		}
	}
	return nil
}

// Entries returns a snapshot of the turn log in write order.
func (s *ContextStore) Entries() []ContextEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ContextEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Stats reports store counters.
func (s *ContextStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{TotalEntries: len(s.entries)}
}

func formatContext(entries []ContextEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for i, entry := range entries {
		fmt.Fprintf(&b, "[Memory %d - %s]\n%s\n\n", i+1, entry.Role, entry.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
