package indexer

import (
	"context"
	"fmt"

	"github.com/wouteroostervld/kgrag/pkg/domain"
	"github.com/wouteroostervld/kgrag/pkg/graph"
	"github.com/wouteroostervld/kgrag/pkg/llm"
)

// Inserter stores a single chunk with whatever it derives from it
type Inserter interface {
	Insert(ctx context.Context, chunk domain.Chunk) error
}

// Pipeline extracts triples, embeds and stores one chunk
type Pipeline struct {
	extractor *llm.Extractor // nil disables graph extraction
	embedder  llm.Embedder
	store     graph.Store
}

// NewPipeline creates an insertion pipeline
func NewPipeline(extractor *llm.Extractor, embedder llm.Embedder, store graph.Store) *Pipeline {
	return &Pipeline{extractor: extractor, embedder: embedder, store: store}
}

// Insert implements Inserter
func (p *Pipeline) Insert(ctx context.Context, chunk domain.Chunk) error {
	var triples []domain.Triple
	if p.extractor != nil {
		var err error
		triples, err = p.extractor.Extract(ctx, chunk.Text)
		if err != nil {
			return fmt.Errorf("failed to extract triples: %w", err)
		}
	}

	embeddings, err := p.embedder.Embed(ctx, []string{chunk.Text})
	if err != nil {
		return fmt.Errorf("failed to embed chunk: %w", err)
	}
	if len(embeddings) != 1 {
		return fmt.Errorf("expected 1 embedding, got %d", len(embeddings))
	}

	return p.store.Insert(ctx, domain.Document{
		Chunk:     chunk,
		Embedding: embeddings[0],
		Triples:   triples,
	})
}
