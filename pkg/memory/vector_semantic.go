package memory

import (
	"context"
	"fmt"
	"time"
)

// VectorSemantic implements Semantic over an external vector store and
// embedder, giving the context store real similarity-based retrieval.
type VectorSemantic struct {
	store      VectorStore
	embedder   Embedder
	collection string
	threshold  float32
	dimension  uint64
}

// VectorOption configures a VectorSemantic.
type VectorOption func(*VectorSemantic)

// WithScoreThreshold sets the minimum similarity score for retrieval hits.
func WithScoreThreshold(threshold float32) VectorOption {
	return func(v *VectorSemantic) {
		v.threshold = threshold
	}
}

// NewVectorSemantic creates a vector-backed semantic index.
func NewVectorSemantic(store VectorStore, embedder Embedder, collection string, opts ...VectorOption) *VectorSemantic {
	v := &VectorSemantic{
		store:      store,
		embedder:   embedder,
		collection: collection,
		threshold:  0.3,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Initialize probes the embedder for the vector dimension and ensures the
// collection exists. A creation failure is tolerated when the collection is
// already searchable.
func (v *VectorSemantic) Initialize(ctx context.Context) error {
	vec, err := v.embedder.Embed(ctx, "dimension probe")
	if err != nil {
		return fmt.Errorf("probe embedding dimension: %w", err)
	}
	v.dimension = uint64(len(vec))

	if err := v.store.CreateCollection(ctx, v.collection, v.dimension); err != nil {
		if _, searchErr := v.store.Search(ctx, v.collection, vec, 1, 0); searchErr == nil {
			return nil
		}
		return fmt.Errorf("create collection %q: %w", v.collection, err)
	}
	return nil
}

// Store embeds and upserts one entry.
func (v *VectorSemantic) Store(ctx context.Context, entry ContextEntry) error {
	vector, err := v.embedder.Embed(ctx, entry.Text)
	if err != nil {
		return fmt.Errorf("embed text: %w", err)
	}
	point := Point{
		ID:     entry.ID,
		Vector: vector,
		Payload: map[string]interface{}{
			"role":      entry.Role,
			"text":      entry.Text,
			"timestamp": entry.CreatedAt.Unix(),
		},
		Timestamp: entry.CreatedAt.Unix(),
	}
	return v.store.Upsert(ctx, v.collection, []Point{point})
}

// Search embeds the query and maps hits back to entries.
func (v *VectorSemantic) Search(ctx context.Context, query string, k int) ([]ContextEntry, error) {
	vector, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := v.store.Search(ctx, v.collection, vector, k, v.threshold)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	entries := make([]ContextEntry, 0, len(results))
	for _, r := range results {
		entry := ContextEntry{ID: r.ID}
		if text, ok := r.Point.Payload["text"].(string); ok {
			entry.Text = text
		}
		if role, ok := r.Point.Payload["role"].(string); ok {
			entry.Role = role
		}
		if ts, ok := r.Point.Payload["timestamp"].(int64); ok {
			entry.CreatedAt = time.Unix(ts, 0).UTC()
		}
		if entry.Text != "" {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Reset drops and recreates the collection.
func (v *VectorSemantic) Reset(ctx context.Context) error {
	if err := v.store.DeleteCollection(ctx, v.collection); err != nil {
		return fmt.Errorf("delete collection %q: %w", v.collection, err)
	}
	if v.dimension == 0 {
		return nil
	}
	return v.store.CreateCollection(ctx, v.collection, v.dimension)
}
