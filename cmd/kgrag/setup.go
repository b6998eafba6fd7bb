package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wouteroostervld/kgrag/pkg/chunker"
	"github.com/wouteroostervld/kgrag/pkg/config"
	"github.com/wouteroostervld/kgrag/pkg/filter"
	"github.com/wouteroostervld/kgrag/pkg/graph"
	"github.com/wouteroostervld/kgrag/pkg/indexer"
	"github.com/wouteroostervld/kgrag/pkg/llm"
	"github.com/wouteroostervld/kgrag/pkg/llm/cache"
	"github.com/wouteroostervld/kgrag/pkg/llm/ollama"
	"github.com/wouteroostervld/kgrag/pkg/llm/openai"
	"github.com/wouteroostervld/kgrag/pkg/query"
	"github.com/wouteroostervld/kgrag/pkg/state"
)

// app holds the components built from one profile
type app struct {
	profile   *config.Profile
	states    *state.FileStore
	store     graph.Store
	embedder  llm.Embedder
	generator llm.Generator
	closers   []func() error
}

// newApp opens the store and creates the model clients for p
func newApp(ctx context.Context, p *config.Profile) (*app, error) {
	a := &app{profile: p, states: state.NewFileStore(p.StateFile)}

	generator, err := newGenerator(p)
	if err != nil {
		return nil, err
	}
	a.generator = generator

	embedder, err := newEmbedder(p)
	if err != nil {
		return nil, err
	}
	if p.Cache.RedisAddr != "" {
		cached := cache.New(embedder, cache.Options{
			Addr:     p.Cache.RedisAddr,
			Password: p.Cache.Password,
			DB:       p.Cache.DB,
			Prefix:   p.Cache.Prefix,
			TTL:      p.CacheTTL(),
		})
		a.closers = append(a.closers, cached.Close)
		embedder = cached
		slog.Debug("Embedding cache enabled", "addr", p.Cache.RedisAddr)
	}
	a.embedder = embedder

	store, err := graph.Open(ctx, graph.Options{
		URI:       p.Store.URI,
		Username:  p.Store.Username,
		Password:  p.Store.Password,
		Database:  p.Store.Database,
		IndexName: p.Store.IndexName,
		Dimension: p.Embedding.Dimension,
	})
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to open store %s: %w", p.Store.URI, err)
	}
	a.store = store
	return a, nil
}

// Close releases the store and the cache connection
func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			slog.Warn("Failed to close store", "error", err)
		}
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("Failed to close connection", "error", err)
		}
	}
}

// syncer builds the ingestion sync controller. inputDir overrides the
// profile when set.
func (a *app) syncer(inputDir string, prune bool) (*indexer.Syncer, error) {
	p := a.profile
	splitter, err := chunker.New(chunker.Config{
		Strategy: p.Chunk.Strategy,
		Size:     p.Chunk.Size,
		Overlap:  p.Chunk.Overlap,
	})
	if err != nil {
		return nil, err
	}

	rules := filter.Rules{Extension: p.Extension, Blacklist: p.Blacklist, Whitelist: p.Whitelist}
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	var extractor *llm.Extractor
	if p.ShouldExtractTriples() {
		extractor = llm.NewExtractor(a.generator, p.LLM.MaxTriplesPerChunk)
	}

	if inputDir == "" {
		inputDir = p.InputDir
	}
	cfg := indexer.Config{
		InputDir:       inputDir,
		Rules:          rules,
		PruneMissing:   prune || p.PruneMissing,
		CreateDir:      p.ShouldCreateInputDir(),
		EmbeddingModel: a.embedder.Model(),
	}
	return indexer.New(cfg, a.states, a.store, splitter, indexer.NewPipeline(extractor, a.embedder, a.store)), nil
}

// facade builds the query facade, validating the configured embedding
// model against the one recorded in the sync state.
func (a *app) facade() (*query.Facade, error) {
	st, err := a.states.Load()
	if err != nil {
		return nil, err
	}
	cfg := query.Config{
		TopK:          a.profile.Query.TopK,
		SnippetLength: a.profile.Query.SnippetLength,
		OmitText:      !a.profile.ShouldIncludeText(),
	}
	return query.New(cfg, a.store, a.embedder, a.generator, st.EmbeddingModel)
}

func newGenerator(p *config.Profile) (llm.Generator, error) {
	provider, err := p.LLMProvider()
	if err != nil {
		return nil, err
	}
	slog.Debug("Using generation provider", "provider", provider, "model", p.LLM.Model)

	if provider == config.ProviderOpenAI {
		return openai.NewClient(&openai.Config{
			BaseURL:     p.LLM.BaseURL,
			APIKey:      p.LLM.APIKey,
			Timeout:     p.LLMTimeout(),
			Model:       p.LLM.Model,
			Temperature: float32(p.LLM.Temperature),
		}), nil
	}
	return ollama.NewClient(&ollama.Config{
		BaseURL:     p.LLM.BaseURL,
		Timeout:     p.LLMTimeout(),
		MaxRetries:  p.LLM.MaxRetries,
		APIKey:      p.LLM.APIKey,
		Model:       p.LLM.Model,
		Temperature: p.LLM.Temperature,
	}), nil
}

func newEmbedder(p *config.Profile) (llm.Embedder, error) {
	provider, err := p.EmbeddingProvider()
	if err != nil {
		return nil, err
	}
	slog.Debug("Using embedding provider", "provider", provider, "model", p.Embedding.Model)

	if provider == config.ProviderOpenAI {
		return openai.NewClient(&openai.Config{
			BaseURL:    p.EmbeddingBaseURL(),
			APIKey:     p.EmbeddingAPIKey(),
			Timeout:    p.LLMTimeout(),
			EmbedModel: p.Embedding.Model,
		}), nil
	}
	return ollama.NewClient(&ollama.Config{
		BaseURL:    p.EmbeddingBaseURL(),
		Timeout:    p.LLMTimeout(),
		MaxRetries: p.LLM.MaxRetries,
		APIKey:     p.EmbeddingAPIKey(),
		EmbedModel: p.Embedding.Model,
	}), nil
}
