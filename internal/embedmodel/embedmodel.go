// Package embedmodel turns memory text into unit-norm dense vectors using
// a locally resident ONNX sentence encoder, with an in-memory LRU cache
// keyed by content hash in front of inference.
package embedmodel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/mcp-memoria/internal/memerr"
)

// Common errors, all classifiable via errors.Is(err, memerr.ErrEmbed) or
// errors.Is(err, memerr.ErrInvalidInput).
var (
	ErrEmptyText    = fmt.Errorf("%w: text cannot be empty", memerr.ErrInvalidInput)
	ErrModelMissing = fmt.Errorf("%w: model file not found", memerr.ErrEmbed)
	ErrRuntime      = fmt.Errorf("%w: inference runtime failure", memerr.ErrEmbed)
	ErrBatchTooLarge = fmt.Errorf("%w: batch exceeds limit", memerr.ErrInvalidInput)
)

// DefaultDimension is the vector size produced by the bundled sentence
// encoder (a MiniLM-class model) absent an MCP_MEMORY_EMBED_DIM override.
const DefaultDimension = 384

// MaxBatchSize caps how many texts a single inference call accepts;
// CachedEmbedder.Embed splits larger requests into batches of this size.
const MaxBatchSize = 32

// Embedder encodes text into unit-norm dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Close() error
}

// Cache is an LRU of content-hash to vector, consulted before inference.
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a Cache holding up to maxLen vectors.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 1024
	}
	c, err := lru.New[string, []float32](maxLen)
	if err != nil {
		c, _ = lru.New[string, []float32](1024)
	}
	return &Cache{cache: c}
}

// Get returns a defensive copy of a cached vector.
func (c *Cache) Get(hash string) ([]float32, bool) {
	v, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Set stores a vector under hash, evicting the least recently used entry
// if the cache is at capacity.
func (c *Cache) Set(hash string, vector []float32) {
	c.cache.Add(hash, vector)
}

// ComputeHash returns the SHA-256 hex digest of text, used as the cache
// key and as the dedup shingle cache key's sibling concern.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Validate rejects an empty batch, or a batch containing an empty text,
// before it reaches the runtime. Batch size is not checked here.
func Validate(texts []string) error {
	if len(texts) == 0 {
		return errors.New("no texts provided")
	}
	for i, t := range texts {
		if t == "" {
			return fmt.Errorf("%w: text at index %d is empty", memerr.ErrInvalidInput, i)
		}
	}
	return nil
}
