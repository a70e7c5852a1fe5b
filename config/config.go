// Package config loads the cogbase YAML configuration and maps it onto the
// option structs of the memory, retry and engine packages.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/cogbase/engine"
	"github.com/becomeliminal/cogbase/memory"
	"github.com/becomeliminal/cogbase/memory/procedural"
	"github.com/becomeliminal/cogbase/retry"
)

// ErrInvalid is returned by Validate and Load for unusable configurations.
var ErrInvalid = errors.New("config: invalid configuration")

// Environment variables holding provider credentials.
const (
	AnthropicKeyEnv = "ANTHROPIC_API_KEY"
	OpenAIKeyEnv    = "OPENAI_API_KEY"
)

// Config is the top-level configuration file.
type Config struct {
	// CkptDir is the memory checkpoint root.
	// Default: "ckpt"
	CkptDir string `yaml:"ckpt_dir"`

	// ResultDir receives task outputs and training checkpoints.
	// Default: "results"
	ResultDir string `yaml:"result_dir"`

	// Resume loads persisted memory state at startup.
	// Default: true
	Resume bool `yaml:"resume"`

	// TopK is the retrieval top-k for every memory.
	// Default: 5
	TopK int `yaml:"retrieval_top_k"`

	Memory    MemoryConfig    `yaml:"memory"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Generator GeneratorConfig `yaml:"generator"`
	Retry     RetryConfig     `yaml:"retry"`
	Agent     AgentConfig     `yaml:"agent"`
	Log       LogConfig       `yaml:"log"`
}

// MemoryConfig holds the ablation switches and the rule scoring strategy.
type MemoryConfig struct {
	DisableEpisodic   bool `yaml:"disable_episodic,omitempty"`
	DisableProcedural bool `yaml:"disable_procedural,omitempty"`
	DisableSemantic   bool `yaml:"disable_semantic,omitempty"`

	// Strategy names the procedural scoring strategy.
	// Default: "jaccard"
	Strategy string `yaml:"strategy"`

	// HybridWeights are the jaccard and embedding weights of the hybrid
	// strategy. Empty means 0.5 each.
	HybridWeights []float64 `yaml:"hybrid_weights,omitempty"`
}

// EmbedderConfig selects the text embedder.
type EmbedderConfig struct {
	// Provider is one of "mock", "openai" or "onnx".
	// Default: "mock"
	Provider string `yaml:"provider"`

	Model      string `yaml:"model,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty"`

	// CacheEntries bounds the embedding cache. Zero disables caching.
	CacheEntries int64 `yaml:"cache_entries,omitempty"`

	// ONNX runtime settings, used by the onnx provider.
	LibraryPath   string `yaml:"library_path,omitempty"`
	ModelPath     string `yaml:"model_path,omitempty"`
	TokenizerPath string `yaml:"tokenizer_path,omitempty"`
}

// GeneratorConfig selects the generation provider.
type GeneratorConfig struct {
	// Provider is one of "anthropic" or "openai".
	// Default: "anthropic"
	Provider string `yaml:"provider"`

	Model       string  `yaml:"model,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	MaxTokens   int64   `yaml:"max_tokens,omitempty"`
	Temperature float32 `yaml:"temperature,omitempty"`
	JSONMode    bool    `yaml:"json_mode,omitempty"`
}

// RetryConfig configures the parse-retry protocol.
type RetryConfig struct {
	// MaxTries is the number of generate-and-parse attempts.
	// Default: 3
	MaxTries int `yaml:"max_tries"`

	// Backoff is the wait after a failed generation call.
	// Format: Go duration string (e.g., "5s", "500ms")
	// Default: "5s"
	Backoff string `yaml:"backoff"`

	// Concurrency bounds batch mode. Zero means unbounded.
	Concurrency int `yaml:"concurrency,omitempty"`
}

// AgentConfig configures the rollout and training loop.
type AgentConfig struct {
	MaxAttempts  int  `yaml:"max_attempts_per_task"`
	MaxTrainIter int  `yaml:"max_train_iter"`
	SaveEvery    int  `yaml:"save_every"`
	NoRetrieval  bool `yaml:"no_retrieval,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is a logrus level name.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "text" or "json".
	// Default: "text"
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CkptDir:   "ckpt",
		ResultDir: "results",
		Resume:    true,
		TopK:      5,
		Memory:    MemoryConfig{Strategy: procedural.StrategyJaccard},
		Embedder:  EmbedderConfig{Provider: "mock"},
		Generator: GeneratorConfig{Provider: "anthropic"},
		Retry:     RetryConfig{MaxTries: 3, Backoff: "5s"},
		Agent: AgentConfig{
			MaxAttempts:  3,
			MaxTrainIter: 10,
			SaveEvery:    1,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path over Default and validates the result.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values no component can use.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.CkptDir == "" {
		invalid("ckpt_dir must be set")
	}
	if c.TopK <= 0 {
		invalid("retrieval_top_k must be positive, got %d", c.TopK)
	}

	switch c.Memory.Strategy {
	case procedural.StrategyExact, procedural.StrategyJaccard, procedural.StrategyWeighted,
		procedural.StrategyPercent, procedural.StrategyEmbedding, procedural.StrategyHybrid:
	default:
		invalid("unknown memory.strategy %q", c.Memory.Strategy)
	}
	if n := len(c.Memory.HybridWeights); n != 0 && n != 2 {
		invalid("memory.hybrid_weights takes 2 values, got %d", n)
	}

	switch c.Embedder.Provider {
	case "mock", "openai", "onnx":
	default:
		invalid("unknown embedder.provider %q", c.Embedder.Provider)
	}
	if c.Embedder.Dimensions < 0 {
		invalid("embedder.dimensions must not be negative")
	}

	switch c.Generator.Provider {
	case "anthropic", "openai":
	default:
		invalid("unknown generator.provider %q", c.Generator.Provider)
	}

	if c.Retry.MaxTries <= 0 {
		invalid("retry.max_tries must be positive, got %d", c.Retry.MaxTries)
	}
	if d, err := time.ParseDuration(c.Retry.Backoff); err != nil {
		invalid("retry.backoff: %v", err)
	} else if d < 0 {
		invalid("retry.backoff must not be negative")
	}

	if c.Agent.MaxAttempts <= 0 {
		invalid("agent.max_attempts_per_task must be positive, got %d", c.Agent.MaxAttempts)
	}
	if c.Agent.SaveEvery <= 0 {
		invalid("agent.save_every must be positive, got %d", c.Agent.SaveEvery)
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		invalid("log.level: %v", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		invalid("unknown log.format %q", c.Log.Format)
	}
	return errors.Join(errs...)
}

// APIKey returns the credential for a generation or embedding provider from
// the environment.
func APIKey(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv(AnthropicKeyEnv)
	case "openai":
		return os.Getenv(OpenAIKeyEnv)
	default:
		return ""
	}
}

// BackoffDuration parses Retry.Backoff, falling back to 5s.
func (c *Config) BackoffDuration() time.Duration {
	d, err := time.ParseDuration(c.Retry.Backoff)
	if err != nil || d < 0 {
		return 5 * time.Second
	}
	return d
}

// Logger builds a logger from the log settings.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// MemoryConfig returns the shared memory options. disabled is the ablation
// switch of the memory being built.
func (c *Config) MemoryConfig(disabled bool, logger logrus.FieldLogger) *memory.Config {
	return &memory.Config{
		Disabled: disabled,
		TopK:     c.TopK,
		CkptDir:  c.CkptDir,
		Resume:   c.Resume,
		Logger:   logger,
	}
}

// RetryConfig returns parse-retry options for the reasoning step name.
func (c *Config) RetryConfig(name string, logger logrus.FieldLogger) *retry.Config {
	return &retry.Config{
		MaxTries: c.Retry.MaxTries,
		Backoff:  c.BackoffDuration(),
		Name:     name,
		Logger:   logger,
	}
}

// EngineConfig returns the rollout and training options.
func (c *Config) EngineConfig() *engine.Config {
	return &engine.Config{
		MaxAttempts:  c.Agent.MaxAttempts,
		TopK:         c.TopK,
		ResultDir:    c.ResultDir,
		CkptDir:      c.CkptDir,
		MaxTrainIter: c.Agent.MaxTrainIter,
		SaveEvery:    c.Agent.SaveEvery,
		NoRetrieval:  c.Agent.NoRetrieval,
	}
}
