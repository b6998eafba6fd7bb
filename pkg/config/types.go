package config

import (
	"fmt"
	"strings"
	"time"
)

// GlobalConfig represents the configuration file at ~/.kgrag/config.yaml
type GlobalConfig struct {
	Version       string              `yaml:"version" toml:"version"`
	ActiveProfile string              `yaml:"active_profile" toml:"active_profile"`
	Profiles      map[string]*Profile `yaml:"profiles" toml:"profiles"`
}

// Profile holds every setting of one pipeline: where documents come from,
// how they are chunked and embedded, and which store holds the graph.
type Profile struct {
	// Ingestion
	InputDir       string   `yaml:"input_dir" toml:"input_dir"`
	StateFile      string   `yaml:"state_file" toml:"state_file"`
	Extension      string   `yaml:"extension" toml:"extension"`
	Blacklist      []string `yaml:"blacklist,omitempty" toml:"blacklist,omitempty"` // Reject patterns (applied first)
	Whitelist      []string `yaml:"whitelist,omitempty" toml:"whitelist,omitempty"` // Exception patterns (override blacklist)
	PruneMissing   bool     `yaml:"prune_missing" toml:"prune_missing"`
	CreateInputDir *bool    `yaml:"create_input_dir,omitempty" toml:"create_input_dir,omitempty"`

	Chunk     ChunkConfig     `yaml:"chunk" toml:"chunk"`
	LLM       LLMConfig       `yaml:"llm" toml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Query     QueryConfig     `yaml:"query" toml:"query"`
	Cache     CacheConfig     `yaml:"cache,omitempty" toml:"cache,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty" toml:"metrics,omitempty"`

	// Metadata for tracking
	Name       string `yaml:"-" toml:"-"` // Name of the active profile
	ConfigPath string `yaml:"-" toml:"-"` // File the profile was loaded from (empty for defaults)
}

// ChunkConfig configures document splitting
type ChunkConfig struct {
	Strategy string `yaml:"strategy" toml:"strategy"` // "recursive" or "lines"
	Size     int    `yaml:"size" toml:"size"`
	Overlap  int    `yaml:"overlap" toml:"overlap"`
}

// LLMConfig configures the model used for triple extraction and answers
type LLMConfig struct {
	Provider           string  `yaml:"provider,omitempty" toml:"provider,omitempty"` // "ollama" or "openai" (optional: auto-detect from URL)
	BaseURL            string  `yaml:"base_url" toml:"base_url"`
	Model              string  `yaml:"model" toml:"model"`
	APIKey             string  `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
	Timeout            string  `yaml:"timeout" toml:"timeout"` // Go duration, e.g. "50m"
	Temperature        float64 `yaml:"temperature" toml:"temperature"`
	MaxRetries         int     `yaml:"max_retries" toml:"max_retries"`
	ExtractTriples     *bool   `yaml:"extract_triples,omitempty" toml:"extract_triples,omitempty"`
	MaxTriplesPerChunk int     `yaml:"max_triples_per_chunk" toml:"max_triples_per_chunk"`
}

// EmbeddingConfig configures the embedding model. Empty provider and base URL
// fall back to the LLM settings.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider,omitempty" toml:"provider,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	Model     string `yaml:"model" toml:"model"`
	Dimension int    `yaml:"dimension" toml:"dimension"`
	APIKey    string `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
}

// StoreConfig selects the graph store by URI scheme
type StoreConfig struct {
	URI       string `yaml:"uri" toml:"uri"` // bolt://, neo4j://, sqlite://, memory://
	Username  string `yaml:"username,omitempty" toml:"username,omitempty"`
	Password  string `yaml:"password,omitempty" toml:"password,omitempty"`
	Database  string `yaml:"database,omitempty" toml:"database,omitempty"`
	IndexName string `yaml:"index_name,omitempty" toml:"index_name,omitempty"`
}

// QueryConfig configures the question answering facade
type QueryConfig struct {
	TopK          int   `yaml:"top_k" toml:"top_k"`
	SnippetLength int   `yaml:"snippet_length" toml:"snippet_length"`
	IncludeText   *bool `yaml:"include_text,omitempty" toml:"include_text,omitempty"`
}

// CacheConfig enables the Redis embedding cache when RedisAddr is set
type CacheConfig struct {
	RedisAddr string `yaml:"redis_addr,omitempty" toml:"redis_addr,omitempty"`
	Password  string `yaml:"password,omitempty" toml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty" toml:"db,omitempty"`
	Prefix    string `yaml:"prefix,omitempty" toml:"prefix,omitempty"`
	TTL       string `yaml:"ttl,omitempty" toml:"ttl,omitempty"` // Go duration, empty keeps entries forever
}

// MetricsConfig enables the Prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" toml:"addr,omitempty"`
}

// Providers
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Defaults
const (
	DefaultProfileName    = "default"
	DefaultInputDir       = "./database"
	DefaultStateFile      = "./file_state.json"
	DefaultExtension      = ".json"
	DefaultChunkStrategy  = "recursive"
	DefaultChunkSize      = 1024
	DefaultChunkOverlap   = 50
	DefaultLLMBaseURL     = "http://localhost:11434"
	DefaultLLMModel       = "gemma3:27b"
	DefaultLLMTimeout     = "50m"
	DefaultTemperature    = 0.1
	DefaultMaxRetries     = 3
	DefaultMaxTriples     = 10
	DefaultEmbeddingModel = "paraphrase-multilingual"
	DefaultDimension      = 768
	DefaultStoreURI       = "bolt://localhost:7687"
	DefaultStoreUsername  = "neo4j"
	DefaultIndexName      = "chunk_embedding"
	DefaultTopK           = 3
	DefaultSnippetLength  = 100
)

// DefaultProfile returns a profile with every default applied
func DefaultProfile() *Profile {
	p := &Profile{}
	p.ApplyDefaults()
	return p
}

// ApplyDefaults fills unset fields
func (p *Profile) ApplyDefaults() {
	setString(&p.InputDir, DefaultInputDir)
	setString(&p.StateFile, DefaultStateFile)
	setString(&p.Extension, DefaultExtension)
	setBool(&p.CreateInputDir, true)

	setString(&p.Chunk.Strategy, DefaultChunkStrategy)
	setInt(&p.Chunk.Size, DefaultChunkSize)
	if p.Chunk.Overlap == 0 && p.Chunk.Size == DefaultChunkSize {
		p.Chunk.Overlap = DefaultChunkOverlap
	}

	setString(&p.LLM.BaseURL, DefaultLLMBaseURL)
	setString(&p.LLM.Model, DefaultLLMModel)
	setString(&p.LLM.Timeout, DefaultLLMTimeout)
	if p.LLM.Temperature == 0 {
		p.LLM.Temperature = DefaultTemperature
	}
	setInt(&p.LLM.MaxRetries, DefaultMaxRetries)
	setBool(&p.LLM.ExtractTriples, true)
	setInt(&p.LLM.MaxTriplesPerChunk, DefaultMaxTriples)

	setString(&p.Embedding.Model, DefaultEmbeddingModel)
	setInt(&p.Embedding.Dimension, DefaultDimension)

	setString(&p.Store.URI, DefaultStoreURI)
	setString(&p.Store.Username, DefaultStoreUsername)
	setString(&p.Store.IndexName, DefaultIndexName)

	setInt(&p.Query.TopK, DefaultTopK)
	setInt(&p.Query.SnippetLength, DefaultSnippetLength)
	setBool(&p.Query.IncludeText, true)
}

// Validate checks the profile for values no component can work with
func (p *Profile) Validate() error {
	if p.Chunk.Size <= 0 {
		return fmt.Errorf("chunk.size must be positive, got %d", p.Chunk.Size)
	}
	if p.Chunk.Overlap < 0 || p.Chunk.Overlap >= p.Chunk.Size {
		return fmt.Errorf("chunk.overlap must be in [0, %d), got %d", p.Chunk.Size, p.Chunk.Overlap)
	}
	switch strings.ToLower(p.Chunk.Strategy) {
	case "recursive", "lines":
	default:
		return fmt.Errorf("unknown chunk.strategy: %s", p.Chunk.Strategy)
	}

	if _, err := p.LLMProvider(); err != nil {
		return err
	}
	if _, err := p.EmbeddingProvider(); err != nil {
		return err
	}
	if _, err := time.ParseDuration(p.LLM.Timeout); err != nil {
		return fmt.Errorf("invalid llm.timeout %q: %w", p.LLM.Timeout, err)
	}
	if p.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must not be negative, got %d", p.LLM.MaxRetries)
	}
	if p.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if p.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", p.Embedding.Dimension)
	}

	if p.Query.TopK <= 0 {
		return fmt.Errorf("query.top_k must be positive, got %d", p.Query.TopK)
	}
	if p.Query.SnippetLength <= 0 {
		return fmt.Errorf("query.snippet_length must be positive, got %d", p.Query.SnippetLength)
	}

	if p.Cache.TTL != "" {
		if _, err := time.ParseDuration(p.Cache.TTL); err != nil {
			return fmt.Errorf("invalid cache.ttl %q: %w", p.Cache.TTL, err)
		}
	}
	return nil
}

// LLMProvider returns the configured provider, detecting it from the base URL
// when unset
func (p *Profile) LLMProvider() (string, error) {
	return resolveProvider(p.LLM.Provider, p.LLM.BaseURL, "llm.provider")
}

// EmbeddingProvider returns the embedding provider, inheriting the LLM
// provider when neither provider nor base URL is set
func (p *Profile) EmbeddingProvider() (string, error) {
	if p.Embedding.Provider == "" && p.Embedding.BaseURL == "" {
		return p.LLMProvider()
	}
	return resolveProvider(p.Embedding.Provider, p.EmbeddingBaseURL(), "embedding.provider")
}

// EmbeddingBaseURL returns the embedding endpoint
func (p *Profile) EmbeddingBaseURL() string {
	if p.Embedding.BaseURL != "" {
		return p.Embedding.BaseURL
	}
	return p.LLM.BaseURL
}

// EmbeddingAPIKey returns the embedding API key
func (p *Profile) EmbeddingAPIKey() string {
	if p.Embedding.APIKey != "" {
		return p.Embedding.APIKey
	}
	return p.LLM.APIKey
}

// LLMTimeout returns the parsed LLM request timeout
func (p *Profile) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(p.LLM.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// CacheTTL returns the parsed embedding cache TTL, zero for none
func (p *Profile) CacheTTL() time.Duration {
	d, _ := time.ParseDuration(p.Cache.TTL)
	return d
}

// ShouldCreateInputDir reports whether a missing input directory is created
func (p *Profile) ShouldCreateInputDir() bool {
	return p.CreateInputDir == nil || *p.CreateInputDir
}

// ShouldExtractTriples reports whether chunks go through graph extraction
func (p *Profile) ShouldExtractTriples() bool {
	return p.LLM.ExtractTriples == nil || *p.LLM.ExtractTriples
}

// ShouldIncludeText reports whether chunk text is part of the answer context
func (p *Profile) ShouldIncludeText() bool {
	return p.Query.IncludeText == nil || *p.Query.IncludeText
}

// DetectProvider guesses the provider from a base URL. Hosted
// OpenAI-compatible endpoints are recognized; everything else is Ollama.
func DetectProvider(baseURL string) string {
	u := strings.ToLower(baseURL)
	for _, hint := range []string{"openai", "openrouter", "/v1"} {
		if strings.Contains(u, hint) {
			return ProviderOpenAI
		}
	}
	return ProviderOllama
}

func resolveProvider(provider, baseURL, field string) (string, error) {
	switch strings.ToLower(provider) {
	case "":
		return DetectProvider(baseURL), nil
	case ProviderOllama:
		return ProviderOllama, nil
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("unknown %s: %s", field, provider)
	}
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setBool(dst **bool, def bool) {
	if *dst == nil {
		*dst = &def
	}
}
