package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wouteroostervld/kgrag/pkg/llm"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 60 * time.Second
)

// Config for Ollama client
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	APIKey      string // Optional, for proxies that require a bearer token
	Model       string // generation model
	EmbedModel  string
	Temperature float64
}

// Client wraps the Ollama HTTP API
type Client struct {
	baseURL     string
	httpClient  *http.Client
	apiKey      string
	maxRetries  int
	retryDelay  time.Duration
	model       string
	embedModel  string
	temperature float64
}

var (
	_ llm.Embedder  = (*Client)(nil)
	_ llm.Generator = (*Client)(nil)
)

// NewClient creates a new Ollama API client
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		apiKey:      cfg.APIKey,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		model:       cfg.Model,
		embedModel:  cfg.EmbedModel,
		temperature: cfg.Temperature,
	}
}

// Model returns the embedding model name
func (c *Client) Model() string {
	return c.embedModel
}

// Embed generates embeddings for texts in a single request
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := EmbedRequest{Model: c.embedModel, Input: texts}
	var resp EmbedResponse
	if err := c.doRequestWithRetry(ctx, "/api/embed", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to embed: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(texts))
	}
	for i, emb := range resp.Embeddings {
		if len(emb) == 0 {
			return nil, fmt.Errorf("empty embedding for text %d", i)
		}
	}
	return resp.Embeddings, nil
}

// Generate produces text completions
func (c *Client) Generate(ctx context.Context, prompt, system string) (string, error) {
	req := GenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		System:  system,
		Options: &Options{Temperature: c.temperature},
	}
	var resp GenerateResponse
	if err := c.doRequestWithRetry(ctx, "/api/generate", req, &resp); err != nil {
		return "", fmt.Errorf("failed to generate: %w", err)
	}
	return resp.Response, nil
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status: %d", resp.StatusCode)
	}
	return nil
}

// statusError is a non-200 response
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	if e.msg != "" {
		return fmt.Sprintf("status %d: %s", e.code, e.msg)
	}
	return fmt.Sprintf("status %d", e.code)
}

// retryable reports whether another attempt may succeed
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return true
}

// doRequestWithRetry executes HTTP requests with retry logic
func (c *Client) doRequestWithRetry(ctx context.Context, path string, reqBody interface{}, respBody interface{}) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	var lastErr error
	delay := c.retryDelay
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		lastErr = c.doRequest(ctx, path, data, respBody)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(lastErr) || attempt == c.maxRetries {
			break
		}

		slog.Debug("Retrying Ollama request", "path", path, "attempt", attempt, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

func (c *Client) doRequest(ctx context.Context, path string, data []byte, respBody interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var er errorResponse
		_ = json.Unmarshal(body, &er)
		return &statusError{code: resp.StatusCode, msg: er.Error}
	}

	return json.NewDecoder(resp.Body).Decode(respBody)
}
