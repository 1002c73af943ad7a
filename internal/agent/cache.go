package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/havenos/haven/internal/storage"
)

// EmbeddingCache persists embeddings keyed by a hash of model and text.
type EmbeddingCache struct {
	storage storage.Storage
	ttl     time.Duration
	logger  *slog.Logger
}

type cachedEmbedding struct {
	Vector    []float32 `json:"vector"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEmbeddingCache(storage storage.Storage, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{
		storage: storage,
		ttl:     ttl,
		logger:  slog.Default().With("component", "embedding_cache"),
	}
}

func (c *EmbeddingCache) Get(ctx context.Context, model, text string) ([]float32, bool) {
	key := c.hashKey(model, text)

	data, err := c.storage.Load(ctx, c.path(key))
	if err != nil {
		c.logger.DebugContext(ctx, "cache miss - not found",
			"key", key)
		return nil, false
	}

	var cached cachedEmbedding
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.ErrorContext(ctx, "cache miss - invalid data",
			"key", key,
			"error", err)
		return nil, false
	}

	age := time.Since(cached.Timestamp)
	if c.ttl > 0 && age > c.ttl {
		c.logger.DebugContext(ctx, "cache miss - expired",
			"key", key,
			"age", age,
			"ttl", c.ttl)
		return nil, false
	}

	c.logger.DebugContext(ctx, "cache hit",
		"key", key,
		"age", age,
		"dimensions", len(cached.Vector))

	return cached.Vector, true
}

func (c *EmbeddingCache) Set(ctx context.Context, model, text string, vec []float32) error {
	key := c.hashKey(model, text)

	data, err := json.Marshal(cachedEmbedding{Vector: vec, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("marshaling cached embedding: %w", err)
	}

	if err := c.storage.Save(ctx, c.path(key), data); err != nil {
		c.logger.ErrorContext(ctx, "failed to save cache entry",
			"key", key,
			"error", err)
		return err
	}
	return nil
}

func (c *EmbeddingCache) path(key string) string {
	return fmt.Sprintf("cache/embeddings/%s.json", key)
}

func (c *EmbeddingCache) hashKey(model, text string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(hash[:])
}

// CachedEmbedder serves repeated texts (typically search queries) from the
// cache instead of the model.
type CachedEmbedder struct {
	Embedder
	model  string
	cache  *EmbeddingCache
	logger *slog.Logger
}

func WithEmbeddingCache(embedder Embedder, model string, cache *EmbeddingCache) *CachedEmbedder {
	return &CachedEmbedder{
		Embedder: embedder,
		model:    model,
		cache:    cache,
		logger:   slog.Default().With("component", "cached_embedder"),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, found := c.cache.Get(ctx, c.model, text); found {
		return vec, nil
	}

	vec, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if cacheErr := c.cache.Set(ctx, c.model, text, vec); cacheErr != nil {
		c.logger.WarnContext(ctx, "failed to cache embedding",
			"error", cacheErr)
	}
	return vec, nil
}
