package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/wouteroostervld/kgrag/pkg/llm"
)

// Config for OpenAI-compatible API client
type Config struct {
	BaseURL     string        // API base URL (e.g., "https://openrouter.ai/api/v1")
	APIKey      string        // API key for authentication
	Timeout     time.Duration // HTTP timeout
	Model       string        // chat model
	EmbedModel  string
	Temperature float32
}

// Client wraps an OpenAI-compatible API
type Client struct {
	api         *goopenai.Client
	model       string
	embedModel  string
	temperature float32
}

var (
	_ llm.Embedder  = (*Client)(nil)
	_ llm.Generator = (*Client)(nil)
)

// NewClient creates a new OpenAI API client
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	apiCfg := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		apiCfg.BaseURL = config.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		api:         goopenai.NewClientWithConfig(apiCfg),
		model:       config.Model,
		embedModel:  config.EmbedModel,
		temperature: config.Temperature,
	}
}

// Model returns the embedding model name
func (c *Client) Model() string {
	return c.embedModel
}

// Generate produces a chat completion for prompt
func (c *Client) Generate(ctx context.Context, prompt, system string) (string, error) {
	var messages []goopenai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: prompt})

	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from API")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed generates embeddings for texts in a single request
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequestStrings{
		Input: texts,
		Model: goopenai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, emb := range out {
		if len(emb) == 0 {
			return nil, fmt.Errorf("empty embedding for text %d", i)
		}
	}
	return out, nil
}
