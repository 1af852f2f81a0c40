package embedmodel

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds explicit embedder construction parameters, mirroring the
// env-driven Config/NewFromEnv split used elsewhere in this codebase so
// callers can either let the process environment decide or wire values
// directly in tests.
type Config struct {
	ModelPath     string
	TokenizerPath string
	Dimension     int
	CacheSize     int
}

// NewFromEnv builds an Embedder from MCP_MEMORY_MODEL_PATH and
// MCP_MEMORY_EMBED_DIM. ModelPath defaults to "model.onnx" and
// TokenizerPath to "tokenizer.json" alongside it when unset.
func NewFromEnv() (*CachedEmbedder, error) {
	cfg := Config{
		ModelPath: os.Getenv("MCP_MEMORY_MODEL_PATH"),
		CacheSize: 1024,
	}
	if cfg.ModelPath == "" {
		cfg.ModelPath = "model.onnx"
	}
	if dimStr := os.Getenv("MCP_MEMORY_EMBED_DIM"); dimStr != "" {
		if d, err := strconv.Atoi(dimStr); err == nil {
			cfg.Dimension = d
		}
	}
	return New(cfg)
}

// New constructs a CachedEmbedder from explicit configuration.
func New(cfg Config) (*CachedEmbedder, error) {
	if cfg.TokenizerPath == "" && cfg.ModelPath != "" {
		cfg.TokenizerPath = filepath.Join(filepath.Dir(cfg.ModelPath), "tokenizer.json")
	}
	inner, err := newONNXEmbedder(cfg.ModelPath, cfg.TokenizerPath, cfg.Dimension)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: NewCache(cfg.CacheSize)}, nil
}

// CachedEmbedder wraps an Embedder with a content-hash LRU, so repeated
// saves or searches of near-identical text skip inference entirely.
type CachedEmbedder struct {
	inner Embedder
	cache *Cache
}

// Embed looks up each text in the cache first, batching only the misses
// through the underlying runtime.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		hash := ComputeHash(t)
		if v, ok := c.cache.Get(hash); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	for start := 0; start < len(missTexts); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(missTexts) {
			end = len(missTexts)
		}
		vecs, err := c.inner.Embed(ctx, missTexts[start:end])
		if err != nil {
			return nil, err
		}
		for j, vec := range vecs {
			idx := missIdx[start+j]
			out[idx] = vec
			c.cache.Set(ComputeHash(missTexts[start+j]), vec)
		}
	}

	return out, nil
}

// Dimension returns the underlying encoder's vector size.
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

// Close releases the underlying runtime session.
func (c *CachedEmbedder) Close() error { return c.inner.Close() }
