package memory

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Config holds settings shared by every memory kind.
type Config struct {
	// Disabled switches the memory off (ablation).
	// Disabled memories accept learning calls as no-ops and retrieve nothing.
	Disabled bool

	// TopK is the default number of results per retrieval.
	// Default: 5
	TopK int

	// CkptDir is the checkpoint root; stores and state files live under
	// CkptDir/<store_name>/.
	// Default: "ckpt"
	CkptDir string

	// Resume loads persisted state at construction.
	// Default: true
	Resume bool

	// Logger receives structured log entries. Nil uses logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	TopK:    5,
	CkptDir: "ckpt",
	Resume:  true,
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	if c == nil {
		cp := *DefaultConfig
		return &cp
	}
	cp := *c
	if cp.TopK <= 0 {
		cp.TopK = DefaultConfig.TopK
	}
	if cp.CkptDir == "" {
		cp.CkptDir = DefaultConfig.CkptDir
	}
	return &cp
}

// Base is the skeleton every memory kind embeds: a registry with one
// default store, the retrieval top-k, the ablation switch and a logger.
type Base struct {
	Registry  *Registry
	StoreName string
	config    *Config
	logger    logrus.FieldLogger
}

// NewBase creates a Base and registers its default store through opener.
func NewBase(opener Opener, storeName string, config *Config) (*Base, error) {
	config = config.withDefaults()
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	reg := NewRegistry(opener, config.TopK, logger)
	if _, err := reg.RegisterStore(storeName); err != nil {
		return nil, fmt.Errorf("register store %s: %w", storeName, err)
	}
	return &Base{
		Registry:  reg,
		StoreName: storeName,
		config:    config,
		logger:    logger,
	}, nil
}

// Config returns the effective configuration.
func (b *Base) Config() Config {
	return *b.config
}

// Enabled reports whether the memory is switched on.
func (b *Base) Enabled() bool {
	return !b.config.Disabled
}

// Logger returns the injected logger.
func (b *Base) Logger() logrus.FieldLogger {
	return b.logger
}

// Retrieve queries the default store by embedding similarity.
func (b *Base) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	if !b.Enabled() {
		return nil, nil
	}
	ret, err := b.Registry.Retriever(b.StoreName)
	if err != nil {
		return nil, err
	}
	return ret.Retrieve(ctx, query, k, nil)
}

// Update writes text to the default store.
func (b *Base) Update(ctx context.Context, text string, metadata map[string]any, id string) (string, error) {
	u, err := b.Registry.Updater(b.StoreName)
	if err != nil {
		return "", err
	}
	return u.Update(ctx, text, metadata, id)
}

// RetrieveAndFormat is Registry.RetrieveAndFormat gated by the ablation switch.
func (b *Base) RetrieveAndFormat(ctx context.Context, query, storeName, tag string, opts ...RetrieveOption) ([]Formatted, error) {
	if !b.Enabled() {
		return nil, nil
	}
	return b.Registry.RetrieveAndFormat(ctx, query, storeName, tag, opts...)
}

// LogCounts logs the document count of every registered store.
func (b *Base) LogCounts() {
	for _, name := range b.Registry.Names() {
		s, _ := b.Registry.Store(name)
		b.logger.WithField("store", name).Infof("store %s doc count: %d", name, s.Count())
	}
}
