// Package cache provides a Redis-backed embedding cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wouteroostervld/kgrag/pkg/llm"
)

// Options configuration for the Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "kgrag:emb:"
	TTL      time.Duration // Expiration for cached vectors, default 0 (no expiration)
}

// CachedEmbedder wraps an Embedder and stores vectors in Redis keyed by
// model and text digest. Redis failures degrade to uncached embedding.
type CachedEmbedder struct {
	next   llm.Embedder
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ llm.Embedder = (*CachedEmbedder)(nil)

// New creates a cached embedder
func New(next llm.Embedder, opts Options) *CachedEmbedder {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "kgrag:emb:"
	}

	return &CachedEmbedder{next: next, client: client, prefix: prefix, ttl: opts.TTL}
}

// Model implements llm.Embedder
func (c *CachedEmbedder) Model() string {
	return c.next.Model()
}

// Close releases the Redis connection
func (c *CachedEmbedder) Close() error {
	return c.client.Close()
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s%s:%s", c.prefix, c.next.Model(), hex.EncodeToString(sum[:]))
}

// Embed implements llm.Embedder
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	var missIdx []int

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		slog.Warn("Embedding cache unavailable", "error", err)
		vals = make([]interface{}, len(texts))
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missIdx = append(missIdx, i)
			continue
		}
		vec, ok := decodeVector([]byte(s))
		if !ok {
			missIdx = append(missIdx, i)
			continue
		}
		out[i] = vec
	}

	if len(missIdx) == 0 {
		return out, nil
	}

	missing := make([]string, len(missIdx))
	for j, i := range missIdx {
		missing[j] = texts[i]
	}
	fresh, err := c.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missing) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(fresh), len(missing))
	}

	pipe := c.client.Pipeline()
	for j, i := range missIdx {
		out[i] = fresh[j]
		pipe.Set(ctx, keys[i], encodeVector(fresh[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("Failed to store embeddings in cache", "error", err)
	}

	slog.Debug("Embedding cache", "hits", len(texts)-len(missIdx), "misses", len(missIdx))
	return out, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, true
}
