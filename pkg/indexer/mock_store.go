package indexer

import (
	"context"
	"sync"

	"github.com/wouteroostervld/kgrag/pkg/domain"
	"github.com/wouteroostervld/kgrag/pkg/graph"
)

// MockStore is a graph.Store for testing. It keeps inserted documents in
// memory and records every call.
type MockStore struct {
	mu sync.Mutex

	docs map[string]domain.Document

	// Optional hooks, called before the default behaviour. A non-nil error
	// is returned as is.
	DeleteFunc func(ctx context.Context, source string) error
	InsertFunc func(ctx context.Context, doc domain.Document) error

	// Call tracking
	DeleteCalls []string
	InsertCalls []domain.Document
}

var _ graph.Store = (*MockStore)(nil)

// NewMockStore creates an empty mock store
func NewMockStore() *MockStore {
	return &MockStore{docs: make(map[string]domain.Document)}
}

// DeleteBySource implements graph.Store
func (m *MockStore) DeleteBySource(ctx context.Context, source string) (int64, error) {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, source)
	fn := m.DeleteFunc
	m.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, source); err != nil {
			return 0, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, doc := range m.docs {
		if doc.SourceFile == source {
			delete(m.docs, id)
			deleted++
		}
	}
	return deleted, nil
}

// Insert implements graph.Store
func (m *MockStore) Insert(ctx context.Context, doc domain.Document) error {
	m.mu.Lock()
	m.InsertCalls = append(m.InsertCalls, doc)
	fn := m.InsertFunc
	m.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, doc); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

// Search implements graph.Store. Matches are returned in no particular order.
func (m *MockStore) Search(ctx context.Context, embedding []float32, k int) ([]domain.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Match
	for _, doc := range m.docs {
		if len(out) == k {
			break
		}
		out = append(out, domain.Match{ChunkID: doc.ID, SourceFile: doc.SourceFile, Text: doc.Text, Triples: doc.Triples})
	}
	return out, nil
}

// Stats implements graph.Store
func (m *MockStore) Stats(ctx context.Context) (domain.StoreStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s domain.StoreStats
	s.Chunks = int64(len(m.docs))
	for _, doc := range m.docs {
		s.Relations += int64(len(doc.Triples))
	}
	return s, nil
}

// Close implements graph.Store
func (m *MockStore) Close(ctx context.Context) error {
	return nil
}

// Chunks returns the stored chunks of source
func (m *MockStore) Chunks(source string) []domain.Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Chunk
	for _, doc := range m.docs {
		if doc.SourceFile == source {
			out = append(out, doc.Chunk)
		}
	}
	return out
}

// Reset clears recorded calls but keeps stored documents
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls = nil
	m.InsertCalls = nil
}
