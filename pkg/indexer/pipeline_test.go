package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wouteroostervld/kgrag/pkg/domain"
	"github.com/wouteroostervld/kgrag/pkg/graph"
	"github.com/wouteroostervld/kgrag/pkg/llm"
)

func TestPipeline_Insert(t *testing.T) {
	gen := llm.NewMockGenerator(
		`{"subject":"Rollo","subject_type":"person","relation":"founded","object":"Normandy","object_type":"place"}`)
	emb := llm.NewMockEmbedder("test-embed", 16)
	store := graph.NewMemoryStore(16)
	p := NewPipeline(llm.NewExtractor(gen, llm.DefaultMaxTriplesPerChunk), emb, store)

	chunk := domain.Chunk{ID: "c1", SourceFile: "normans.json", Index: 0, Text: "Rollo founded Normandy in 911."}
	require.NoError(t, p.Insert(context.Background(), chunk))

	assert.Equal(t, 1, gen.CallCount())
	assert.Equal(t, 1, emb.CallCount())

	matches, err := store.Search(context.Background(), llm.HashVector("Rollo Normandy", 16), 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].ChunkID)
	require.Len(t, matches[0].Triples, 1)
	assert.Equal(t, "PERSON", matches[0].Triples[0].SubjectType)
}

func TestPipeline_WithoutExtractor(t *testing.T) {
	store := NewMockStore()
	p := NewPipeline(nil, llm.NewMockEmbedder("test-embed", 4), store)

	require.NoError(t, p.Insert(context.Background(), domain.Chunk{ID: "c1", SourceFile: "a.json", Text: "text"}))
	require.Len(t, store.InsertCalls, 1)
	assert.Empty(t, store.InsertCalls[0].Triples)
	assert.Len(t, store.InsertCalls[0].Embedding, 4)
}

func TestPipeline_Errors(t *testing.T) {
	chunk := domain.Chunk{ID: "c1", SourceFile: "a.json", Text: "text"}

	t.Run("extraction", func(t *testing.T) {
		gen := llm.NewMockGenerator("")
		gen.SetError(llm.ErrMockGenerate)
		store := NewMockStore()
		p := NewPipeline(llm.NewExtractor(gen, 5), llm.NewMockEmbedder("m", 4), store)

		err := p.Insert(context.Background(), chunk)
		assert.ErrorIs(t, err, llm.ErrMockGenerate)
		assert.Empty(t, store.InsertCalls)
	})

	t.Run("embedding", func(t *testing.T) {
		emb := llm.NewMockEmbedder("m", 4)
		emb.SetError(llm.ErrMockEmbed)
		store := NewMockStore()
		p := NewPipeline(nil, emb, store)

		err := p.Insert(context.Background(), chunk)
		assert.ErrorIs(t, err, llm.ErrMockEmbed)
		assert.Empty(t, store.InsertCalls)
	})
}
