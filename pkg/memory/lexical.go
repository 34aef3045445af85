package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Lexical is the in-process fallback semantic index. It ranks entries by
// token overlap with the query, preferring newer entries on ties, so runs
// work without any vector infrastructure.
type Lexical struct {
	mu      sync.RWMutex
	entries []ContextEntry
}

// NewLexical creates an empty lexical index.
func NewLexical() *Lexical {
	return &Lexical{}
}

// Store indexes an entry.
func (l *Lexical) Store(_ context.Context, entry ContextEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Search returns up to k entries with a positive overlap score.
func (l *Lexical) Search(_ context.Context, query string, k int) ([]ContextEntry, error) {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	l.mu.RLock()
	snapshot := make([]ContextEntry, len(l.entries))
	copy(snapshot, l.entries)
	l.mu.RUnlock()

	type scored struct {
		entry ContextEntry
		score float64
		pos   int
	}
	var ranked []scored
	for i, entry := range snapshot {
		score := overlap(queryTokens, tokenize(entry.Text))
		if score > 0 {
			ranked = append(ranked, scored{entry: entry, score: score, pos: i})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].pos > ranked[j].pos
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]ContextEntry, 0, k)
	for _, s := range ranked[:k] {
		out = append(out, s.entry)
	}
	return out, nil
}

// Reset drops all indexed entries.
func (l *Lexical) Reset(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	return nil
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(field) > 2 {
			tokens[field] = true
		}
	}
	return tokens
}

func overlap(query, doc map[string]bool) float64 {
	if len(doc) == 0 {
		return 0
	}
	hits := 0
	for token := range query {
		if doc[token] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
