package memory

import (
	"context"
)

// Document is a unit of stored text.
// Content is immutable once written except through an upsert with the same ID.
type Document struct {
	ID       string         `json:"id,omitempty"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result pairs a document with its distance to the query.
// Lower scores are more similar.
type Result struct {
	Document
	Score float64 `json:"score"`
}

// Store is a named, durable vector collection.
// Implementations: chromem.Store.
type Store interface {
	// Name returns the logical store name.
	Name() string

	// Upsert writes text with metadata and returns its id.
	// An empty id makes the store generate one; a known id replaces the
	// previous content and metadata. The write is durable on return.
	Upsert(ctx context.Context, text string, metadata map[string]any, id string) (string, error)

	// Query returns at most min(k, Count()) documents nearest to text,
	// ordered by ascending distance. where is an optional exact-match
	// metadata filter.
	Query(ctx context.Context, text string, k int, where map[string]string) ([]Result, error)

	// Count returns the number of stored documents.
	Count() int
}

// Embedder converts text to embedding vectors.
// Implementations: mock.Embedder (testing), openai.Embedder, onnx.Embedder,
// cache.Embedder (decorator).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Opener opens (or creates) the store registered under name.
type Opener func(name string) (Store, error)
