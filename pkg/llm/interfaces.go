package llm

import "context"

// Embedder generates vector embeddings from text
type Embedder interface {
	// Embed returns one embedding per input text, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Model identifies the embedding model; persisted with the sync state
	Model() string
}

// Generator produces text completions
type Generator interface {
	Generate(ctx context.Context, prompt, system string) (string, error)
}
