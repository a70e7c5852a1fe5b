package main

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/becomeliminal/cogbase/config"
	"github.com/becomeliminal/cogbase/llm"
	"github.com/becomeliminal/cogbase/memory"
	"github.com/becomeliminal/cogbase/memory/embedder/cache"
	"github.com/becomeliminal/cogbase/memory/embedder/mock"
	"github.com/becomeliminal/cogbase/memory/embedder/openai"
)

// embedderFactory builds an embedder. The returned close function may be nil.
type embedderFactory func(cfg config.EmbedderConfig, logger logrus.FieldLogger) (memory.Embedder, func(), error)

type generatorFactory func(cfg config.GeneratorConfig, logger logrus.FieldLogger) (llm.Generator, error)

var embedderFactories = map[string]embedderFactory{
	"mock": func(cfg config.EmbedderConfig, _ logrus.FieldLogger) (memory.Embedder, func(), error) {
		if cfg.Dimensions > 0 {
			return mock.NewWithDimensions(cfg.Dimensions), nil, nil
		}
		return mock.New(), nil, nil
	},
	"openai": func(cfg config.EmbedderConfig, logger logrus.FieldLogger) (memory.Embedder, func(), error) {
		emb, err := openai.New(openai.Config{
			APIKey:     config.APIKey("openai"),
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Logger:     logger,
		})
		return emb, nil, err
	},
}

var generatorFactories = map[string]generatorFactory{
	"anthropic": func(cfg config.GeneratorConfig, logger logrus.FieldLogger) (llm.Generator, error) {
		return llm.NewAnthropicGenerator(llm.AnthropicConfig{
			APIKey:    config.APIKey("anthropic"),
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Logger:    logger,
		})
	},
	"openai": func(cfg config.GeneratorConfig, logger logrus.FieldLogger) (llm.Generator, error) {
		return llm.NewOpenAIGenerator(llm.OpenAIConfig{
			APIKey:      config.APIKey("openai"),
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   int(cfg.MaxTokens),
			Temperature: cfg.Temperature,
			JSONMode:    cfg.JSONMode,
			Logger:      logger,
		})
	},
}

// newEmbedder resolves the configured provider and wraps it in a cache when
// cache_entries is set.
func newEmbedder(cfg config.EmbedderConfig, logger logrus.FieldLogger) (memory.Embedder, func(), error) {
	factory, ok := embedderFactories[cfg.Provider]
	if !ok {
		return nil, nil, fmt.Errorf("%w: embedder %q not available in this build (have %v)",
			memory.ErrConfiguration, cfg.Provider, names(embedderFactories))
	}
	emb, closeFn, err := factory(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.CacheEntries <= 0 {
		return emb, closeFn, nil
	}

	cached, err := cache.New(emb, cache.Config{
		Namespace:  cfg.Provider + "/" + cfg.Model,
		MaxEntries: cfg.CacheEntries,
	})
	if err != nil {
		if closeFn != nil {
			closeFn()
		}
		return nil, nil, err
	}
	return cached, func() {
		cached.Close()
		if closeFn != nil {
			closeFn()
		}
	}, nil
}

func newGenerator(cfg config.GeneratorConfig, logger logrus.FieldLogger) (llm.Generator, error) {
	factory, ok := generatorFactories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: generator %q not available (have %v)",
			memory.ErrConfiguration, cfg.Provider, names(generatorFactories))
	}
	return factory(cfg, logger)
}

func names[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
