// Package embedder generates vector embeddings for chunk text. It
// supports hosted providers over HTTP and a deterministic local
// provider, with content-hash LRU caching so unchanged chunks are
// never re-embedded.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnknownProvider   = errors.New("unknown embedding provider")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedding is a vector with its provenance and the content hash of
// the text it was computed from.
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string
}

// Embedder generates embeddings for batches of text.
type Embedder interface {
	// EmbedBatch embeds each text in order. Inputs must be non-empty
	// and the batch must fit within MaxBatchSize.
	EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error)

	// Dimension is the vector length this provider produces.
	Dimension() int

	// Provider is the provider name ("openai", "jina", "local").
	Provider() string

	// Model is the model identifier sent to the provider.
	Model() string

	// Close releases provider resources.
	Close() error
}

// Cache is an LRU cache of embeddings keyed by content hash.
type Cache struct {
	entries *lru.Cache[string, *Embedding]
}

const defaultCacheSize = 10000

// NewCache creates a cache holding at most maxEntries embeddings.
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheSize
	}
	entries, err := lru.New[string, *Embedding](maxEntries)
	if err != nil {
		entries, _ = lru.New[string, *Embedding](defaultCacheSize)
	}
	return &Cache{entries: entries}
}

// Get returns a copy of the cached embedding for hash. The copy keeps
// caller mutations out of the cache.
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.entries.Get(hash)
	if !ok {
		return nil, false
	}
	vector := make([]float32, len(emb.Vector))
	copy(vector, emb.Vector)
	out := *emb
	out.Vector = vector
	return &out, true
}

// Set stores an embedding under hash.
func (c *Cache) Set(hash string, emb *Embedding) {
	c.entries.Add(hash, emb)
}

// Len returns the number of cached embeddings.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// ComputeHash returns the hex SHA-256 of text.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func validateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	if len(texts) > MaxBatchSize {
		return fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}
