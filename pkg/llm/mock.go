package llm

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
)

// Common mock errors
var (
	ErrMockEmbed    = errors.New("mock embed error")
	ErrMockGenerate = errors.New("mock generate error")
)

// MockEmbedder is a deterministic Embedder for testing
type MockEmbedder struct {
	mu sync.Mutex

	ModelName string
	Dimension int

	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// Call tracking
	EmbedCalls [][]string
}

// NewMockEmbedder creates a mock embedder producing vectors of the given dimension
func NewMockEmbedder(model string, dim int) *MockEmbedder {
	return &MockEmbedder{ModelName: model, Dimension: dim}
}

// Embed implements Embedder
func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.EmbedCalls = append(m.EmbedCalls, append([]string(nil), texts...))
	fn := m.EmbedFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = HashVector(text, m.Dimension)
	}
	return out, nil
}

// Model implements Embedder
func (m *MockEmbedder) Model() string {
	return m.ModelName
}

// CallCount returns the number of Embed calls
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.EmbedCalls)
}

// SetError makes every Embed call fail with err
func (m *MockEmbedder) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmbedFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, err
	}
}

// HashVector builds a deterministic bag-of-words vector: texts sharing words
// get similar vectors, which is enough for retrieval tests.
func HashVector(text string, dim int) []float32 {
	if dim <= 0 {
		dim = 8
	}
	vec := make([]float32, dim)
	word := make([]byte, 0, 32)
	flush := func() {
		if len(word) == 0 {
			return
		}
		h := fnv.New32a()
		h.Write(word)
		vec[h.Sum32()%uint32(dim)]++
		word = word[:0]
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c >= 'A' && c <= 'Z':
			word = append(word, c+'a'-'A')
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c >= 0x80:
			word = append(word, c)
		default:
			flush()
		}
	}
	flush()
	return vec
}

// GenerateCall records one Generate invocation
type GenerateCall struct {
	Prompt string
	System string
}

// MockGenerator is a mock Generator for testing
type MockGenerator struct {
	mu sync.Mutex

	GenerateFunc func(ctx context.Context, prompt, system string) (string, error)

	// Call tracking
	GenerateCalls []GenerateCall
}

// NewMockGenerator creates a mock generator returning response for every prompt
func NewMockGenerator(response string) *MockGenerator {
	return &MockGenerator{
		GenerateFunc: func(ctx context.Context, prompt, system string) (string, error) {
			return response, nil
		},
	}
}

// Generate implements Generator
func (m *MockGenerator) Generate(ctx context.Context, prompt, system string) (string, error) {
	m.mu.Lock()
	m.GenerateCalls = append(m.GenerateCalls, GenerateCall{Prompt: prompt, System: system})
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn == nil {
		return "", nil
	}
	return fn(ctx, prompt, system)
}

// CallCount returns the number of Generate calls
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.GenerateCalls)
}

// LastCall returns the most recent call, if any
func (m *MockGenerator) LastCall() (GenerateCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.GenerateCalls) == 0 {
		return GenerateCall{}, false
	}
	return m.GenerateCalls[len(m.GenerateCalls)-1], true
}

// SetError makes every Generate call fail with err
func (m *MockGenerator) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateFunc = func(ctx context.Context, prompt, system string) (string, error) {
		return "", err
	}
}

// Reset clears call history
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateCalls = nil
}
