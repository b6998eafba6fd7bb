package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wouteroostervld/kgrag/pkg/domain"
)

func doc(id, source, text string, emb []float32, triples ...domain.Triple) domain.Document {
	return domain.Document{
		Chunk:     domain.Chunk{ID: id, SourceFile: source, Text: text},
		Embedding: emb,
		Triples:   triples,
	}
}

func TestMemoryStore_SearchRanksByCosine(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, doc("a", "a.json", "east", []float32{1, 0})))
	require.NoError(t, s.Insert(ctx, doc("b", "b.json", "north", []float32{0, 1})))
	require.NoError(t, s.Insert(ctx, doc("c", "c.json", "north-east", []float32{1, 1})))

	matches, err := s.Search(ctx, []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ChunkID)
	assert.Equal(t, "c", matches[1].ChunkID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestMemoryStore_DeleteBySource(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, doc("a0", "a.json", "x", []float32{1, 0},
		domain.Triple{Subject: "X", Relation: "r", Object: "Y"})))
	require.NoError(t, s.Insert(ctx, doc("a1", "a.json", "y", []float32{1, 0},
		domain.Triple{Subject: "X", Relation: "s", Object: "Z"})))
	require.NoError(t, s.Insert(ctx, doc("b0", "b.json", "z", []float32{0, 1})))

	deleted, err := s.DeleteBySource(ctx, "a.json")
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StoreStats{Chunks: 1}, stats)

	deleted, err = s.DeleteBySource(ctx, "a.json")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestMemoryStore_InsertValidation(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()

	assert.Error(t, s.Insert(ctx, doc("", "a.json", "x", []float32{1, 2, 3})))
	assert.Error(t, s.Insert(ctx, doc("a", "", "x", []float32{1, 2, 3})))
	assert.Error(t, s.Insert(ctx, doc("a", "a.json", "x", []float32{1, 2})))

	_, err := s.Search(ctx, []float32{1}, 3)
	assert.Error(t, err)
}

func TestMemoryStore_InsertReplaces(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, doc("a", "a.json", "old", []float32{1, 0})))
	require.NoError(t, s.Insert(ctx, doc("a", "a.json", "new", []float32{1, 0})))

	matches, err := s.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "new", matches[0].Text)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 1}))
}
