package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeEmbedder struct {
	dim  int
	err  error
	seen []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.seen = append(f.seen, text)
	return make([]float32, f.dim), nil
}

type fakeVectorStore struct {
	collections map[string]uint64
	points      map[string][]Point
	results     []SearchResult
	createErr   error
	searchErr   error
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{
		collections: make(map[string]uint64),
		points:      make(map[string][]Point),
	}
}

func (f *fakeVectorStore) Upsert(ctx context.Context, collection string, points []Point) error {
	f.points[collection] = append(f.points[collection], points...)
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakeVectorStore) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.collections[name] = vectorSize
	return nil
}

func (f *fakeVectorStore) DeleteCollection(ctx context.Context, name string) error {
	delete(f.collections, name)
	delete(f.points, name)
	return nil
}

func TestInitializeProbesDimension(t *testing.T) {
	store := newFakeVectorStore()
	sem := NewVectorSemantic(store, &fakeEmbedder{dim: 4}, "ctx")

	if err := sem.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if got := store.collections["ctx"]; got != 4 {
		t.Errorf("expected collection created with dimension 4, got %d", got)
	}
}

func TestInitializeToleratesExistingCollection(t *testing.T) {
	store := newFakeVectorStore()
	store.createErr = errors.New("already exists")
	sem := NewVectorSemantic(store, &fakeEmbedder{dim: 4}, "ctx")

	if err := sem.Initialize(context.Background()); err != nil {
		t.Fatalf("expected existing collection to be tolerated, got %v", err)
	}
}

func TestStoreUpsertsPayload(t *testing.T) {
	store := newFakeVectorStore()
	sem := NewVectorSemantic(store, &fakeEmbedder{dim: 2}, "ctx")

	entry := ContextEntry{
		ID:        "e1",
		Role:      "analyst",
		Text:      "currents weaken near the equator",
		CreatedAt: time.Now().UTC(),
	}
	if err := sem.Store(context.Background(), entry); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	points := store.points["ctx"]
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	if points[0].Payload["role"] != "analyst" {
		t.Errorf("expected role payload, got %v", points[0].Payload["role"])
	}
}

func TestSearchMapsHitsToEntries(t *testing.T) {
	store := newFakeVectorStore()
	store.results = []SearchResult{
		{
			ID:    "e1",
			Score: 0.9,
			Point: Point{Payload: map[string]interface{}{"role": "analyst", "text": "hit one", "timestamp": int64(100)}},
		},
		{
			// No text payload: dropped.
			ID:    "e2",
			Score: 0.8,
			Point: Point{Payload: map[string]interface{}{"role": "writer"}},
		},
	}
	sem := NewVectorSemantic(store, &fakeEmbedder{dim: 2}, "ctx")

	entries, err := sem.Search(context.Background(), "currents", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Text != "hit one" || entries[0].Role != "analyst" {
		t.Errorf("unexpected entry mapping: %+v", entries[0])
	}
}

func TestSearchEmbedFailure(t *testing.T) {
	sem := NewVectorSemantic(newFakeVectorStore(), &fakeEmbedder{err: errors.New("down")}, "ctx")
	if _, err := sem.Search(context.Background(), "q", 5); err == nil {
		t.Fatal("expected error when embedder is unavailable")
	}
}

func TestWithScoreThreshold(t *testing.T) {
	sem := NewVectorSemantic(newFakeVectorStore(), &fakeEmbedder{dim: 2}, "ctx", WithScoreThreshold(0.7))
	if sem.threshold != 0.7 {
		t.Errorf("expected threshold 0.7, got %v", sem.threshold)
	}
}
