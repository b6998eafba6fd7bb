package ollama

import "time"

// EmbedRequest represents a request to the /api/embed endpoint
type EmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbedResponse represents the response from the /api/embed endpoint
type EmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Options carries model parameters
type Options struct {
	Temperature float64 `json:"temperature"`
}

// GenerateRequest represents a request to generate text
type GenerateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	System  string   `json:"system,omitempty"`
	Options *Options `json:"options,omitempty"`
}

// GenerateResponse represents the response from Ollama generate API
type GenerateResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Response  string    `json:"response"`
	Done      bool      `json:"done"`
}

// errorResponse is returned by Ollama on failure
type errorResponse struct {
	Error string `json:"error"`
}
