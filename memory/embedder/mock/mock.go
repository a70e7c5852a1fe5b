package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions matches all-MiniLM-L6-v2.
const DefaultDimensions = 384

// Embedder is a deterministic embedder for testing.
// Each word is hashed into one signed bucket, so texts that share words have
// a positive cosine similarity and identical texts have similarity 1.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with DefaultDimensions.
func New() *Embedder {
	return NewWithDimensions(DefaultDimensions)
}

// NewWithDimensions creates a mock embedder producing vectors of size dims.
func NewWithDimensions(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dimensions: dims}
}

// Embed creates a deterministic unit vector from text.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embedding := make([]float32, m.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		// No word characters; fall back to the whole text so the vector is
		// never zero.
		words = []string{text}
	}
	for _, w := range words {
		bucket, sign := hashWord(w, m.dimensions)
		embedding[bucket] += sign
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

func hashWord(w string, dims int) (int, float32) {
	h := fnv.New64a()
	h.Write([]byte(w))
	sum := h.Sum64()
	sign := float32(1)
	if sum&1 == 1 {
		sign = -1
	}
	return int((sum >> 1) % uint64(dims)), sign
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		vec[0] = 1
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
