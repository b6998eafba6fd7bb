package graph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/wouteroostervld/kgrag/pkg/domain"
)

// MemoryStore keeps everything in process memory. Entities are scoped to the
// source file that mentions them, like the persistent stores.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string]domain.Document
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. dimension 0 accepts any vector size
// but requires all vectors to match the first one inserted.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{dimension: dimension, docs: make(map[string]domain.Document)}
}

// DeleteBySource implements Store. The count includes chunk and entity nodes.
func (m *MemoryStore) DeleteBySource(ctx context.Context, source string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	entities := make(map[string]struct{})
	for id, doc := range m.docs {
		if doc.SourceFile != source {
			continue
		}
		for _, t := range doc.Triples {
			entities[t.Subject] = struct{}{}
			entities[t.Object] = struct{}{}
		}
		delete(m.docs, id)
		deleted++
	}
	return deleted + int64(len(entities)), nil
}

// Insert implements Store
func (m *MemoryStore) Insert(ctx context.Context, doc domain.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}
	if doc.SourceFile == "" {
		return fmt.Errorf("chunk %s has no source file", doc.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dimension == 0 {
		m.dimension = len(doc.Embedding)
	}
	if len(doc.Embedding) != m.dimension {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(doc.Embedding), m.dimension)
	}

	doc.Embedding = append([]float32(nil), doc.Embedding...)
	doc.Triples = append([]domain.Triple(nil), doc.Triples...)
	m.docs[doc.ID] = doc
	return nil
}

// Search implements Store
func (m *MemoryStore) Search(ctx context.Context, embedding []float32, k int) ([]domain.Match, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dimension != 0 && len(embedding) != m.dimension {
		return nil, fmt.Errorf("query dimension mismatch: got %d, want %d", len(embedding), m.dimension)
	}

	matches := make([]domain.Match, 0, len(m.docs))
	for _, doc := range m.docs {
		matches = append(matches, domain.Match{
			ChunkID:    doc.ID,
			SourceFile: doc.SourceFile,
			Text:       doc.Text,
			Score:      CosineSimilarity(embedding, doc.Embedding),
			Triples:    append([]domain.Triple(nil), doc.Triples...),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Stats implements Store
func (m *MemoryStore) Stats(ctx context.Context) (domain.StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats domain.StoreStats
	entities := make(map[[2]string]struct{})
	for _, doc := range m.docs {
		stats.Chunks++
		stats.Relations += int64(len(doc.Triples))
		for _, t := range doc.Triples {
			entities[[2]string{doc.SourceFile, t.Subject}] = struct{}{}
			entities[[2]string{doc.SourceFile, t.Object}] = struct{}{}
		}
	}
	stats.Entities = int64(len(entities))
	return stats, nil
}

// Close implements Store
func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is a zero vector or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
