// Package semantic holds general knowledge: loaded knowledge sources
// (textbooks, documentation), summaries and reflections over past work.
package semantic

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/becomeliminal/cogbase/memory"
)

// Store names.
const (
	StoreName       = "semantic"
	SummaryStore    = "summaries"
	ReflectionStore = "reflections"
)

// Retrieval tags.
const (
	KnowledgeTag  = "Textbook"
	SummaryTag    = "Summary"
	ReflectionTag = "Reflection"
)

const sourceField = "source"

// Memory is semantic memory over three stores.
type Memory struct {
	*memory.Base

	sources []string
	logger  logrus.FieldLogger
}

// New opens the semantic, summaries and reflections stores.
func New(opener memory.Opener, config *memory.Config) (*Memory, error) {
	base, err := memory.NewBase(opener, StoreName, config)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{SummaryStore, ReflectionStore} {
		if _, err := base.Registry.RegisterStore(name); err != nil {
			return nil, fmt.Errorf("register store %s: %w", name, err)
		}
	}
	return &Memory{
		Base:   base,
		logger: base.Logger().WithField("component", "semantic"),
	}, nil
}

func (m *Memory) update(ctx context.Context, store, text string, metadata map[string]any) (string, error) {
	if !m.Enabled() {
		return "", nil
	}
	u, err := m.Registry.Updater(store)
	if err != nil {
		return "", err
	}
	return u.Update(ctx, text, metadata, "")
}

// UpdateKnowledge stores a passage from a knowledge source. The source is
// recorded the first time it is seen.
func (m *Memory) UpdateKnowledge(ctx context.Context, source, text string, metadata map[string]any) (string, error) {
	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	if source != "" {
		meta[sourceField] = source
	}
	id, err := m.update(ctx, StoreName, text, meta)
	if err != nil || id == "" {
		return id, err
	}
	if source != "" && !m.hasSource(source) {
		m.sources = append(m.sources, source)
		m.logger.WithField("source", source).Info("added knowledge source")
	}
	return id, nil
}

// UpdateSummaries stores a summary.
func (m *Memory) UpdateSummaries(ctx context.Context, text string, metadata map[string]any) (string, error) {
	return m.update(ctx, SummaryStore, text, metadata)
}

// UpdateReflections stores a reflection.
func (m *Memory) UpdateReflections(ctx context.Context, text string, metadata map[string]any) (string, error) {
	return m.update(ctx, ReflectionStore, text, metadata)
}

// RetrieveKnowledge returns passages similar to query.
func (m *Memory) RetrieveKnowledge(ctx context.Context, query string, opts ...memory.RetrieveOption) ([]memory.Formatted, error) {
	return m.RetrieveAndFormat(ctx, query, StoreName, KnowledgeTag, opts...)
}

// RetrieveSummaries returns summaries similar to query.
func (m *Memory) RetrieveSummaries(ctx context.Context, query string, opts ...memory.RetrieveOption) ([]memory.Formatted, error) {
	return m.RetrieveAndFormat(ctx, query, SummaryStore, SummaryTag, opts...)
}

// RetrieveReflections returns reflections similar to query.
func (m *Memory) RetrieveReflections(ctx context.Context, query string, opts ...memory.RetrieveOption) ([]memory.Formatted, error) {
	return m.RetrieveAndFormat(ctx, query, ReflectionStore, ReflectionTag, opts...)
}

// KnowledgeSources lists the sources seen so far, in order.
func (m *Memory) KnowledgeSources() []string {
	out := make([]string, len(m.sources))
	copy(out, m.sources)
	return out
}

func (m *Memory) hasSource(source string) bool {
	for _, s := range m.sources {
		if s == source {
			return true
		}
	}
	return false
}
