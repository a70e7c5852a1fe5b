// Package openai embeds text with the OpenAI embeddings API.
package openai

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// Config configures the OpenAI embedder.
type Config struct {
	// APIKey authenticates requests. Required.
	APIKey string

	// BaseURL overrides the API endpoint (proxies, compatible servers, tests).
	BaseURL string

	// Model is the embedding model.
	// Default: text-embedding-3-small
	Model string

	// Dimensions is the embedding vector size.
	// Default: 1536
	Dimensions int

	Logger logrus.FieldLogger
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	Model:      string(goopenai.SmallEmbedding3),
	Dimensions: 1536,
}

// Embedder calls the embeddings endpoint once per text.
type Embedder struct {
	client     *goopenai.Client
	model      goopenai.EmbeddingModel
	dimensions int
	logger     logrus.FieldLogger
}

// New creates an OpenAI embedder.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig.Model
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultConfig.Dimensions
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Embedder{
		client:     goopenai.NewClientWithConfig(clientCfg),
		model:      goopenai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		logger:     cfg.Logger.WithField("component", "openai-embedder"),
	}, nil
}

// Embed converts text to an embedding vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("create embeddings: empty response")
	}

	embedding := resp.Data[0].Embedding
	if len(embedding) != e.dimensions {
		return nil, fmt.Errorf("dimension mismatch: got %d, expected %d", len(embedding), e.dimensions)
	}
	e.logger.Debugf("embedded %d chars with %s", len(text), e.model)
	return embedding, nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
