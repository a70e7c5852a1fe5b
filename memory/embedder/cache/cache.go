// Package cache wraps an embedder with an in-process ristretto cache, so a
// text repeated across memories and queries is embedded once.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/cogbase/memory"
)

// Config configures the cache.
type Config struct {
	// Namespace prefixes cache keys, typically the embedding model name.
	Namespace string

	// MaxEntries bounds the number of cached vectors.
	// Default: 10000
	MaxEntries int64
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	MaxEntries: 10000,
}

// Embedder is a memory.Embedder decorator backed by ristretto.
type Embedder struct {
	next      memory.Embedder
	cache     *ristretto.Cache
	namespace string
}

var _ memory.Embedder = (*Embedder)(nil)

// New wraps next with a cache.
func New(next memory.Embedder, cfg Config) (*Embedder, error) {
	if next == nil {
		return nil, fmt.Errorf("%w: cache needs an embedder to wrap", memory.ErrConfiguration)
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig.MaxEntries
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{next: next, cache: c, namespace: cfg.Namespace}, nil
}

// Embed returns the cached vector for text, computing it on a miss.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.namespace + "\x00" + text
	if v, ok := e.cache.Get(key); ok {
		return clone(v.([]float32)), nil
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, clone(vec), 1)
	e.cache.Wait()
	return vec, nil
}

// Dimensions returns the wrapped embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.next.Dimensions()
}

// Close stops the cache's background goroutines.
func (e *Embedder) Close() {
	e.cache.Close()
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
