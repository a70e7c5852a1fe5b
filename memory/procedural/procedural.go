// Package procedural holds rule-based procedural memory and the skill
// library of learned code.
//
// Rules are an append-only list persisted at
// <ckpt_dir>/procedural/rules.json. They can be matched exactly by priority
// or scored against a cue with a pluggable Strategy.
package procedural

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/becomeliminal/cogbase/memory"
)

const (
	// StoreName is the default store and checkpoint subdirectory.
	StoreName = "procedural"

	// RuleTag wraps rules retrieved by similarity.
	RuleTag = "Rule"

	rulesFile = "rules.json"
)

// Match is a rule with its score and position in the rule list.
type Match struct {
	Rule  Rule
	Score float64
	Index int
}

// Option configures a Memory.
type Option func(*Memory)

// WithStrategy sets the scoring strategy. Default: Jaccard.
func WithStrategy(s Strategy) Option {
	return func(m *Memory) {
		if s != nil {
			m.strategy = s
		}
	}
}

// Memory is procedural memory over a flat rule list.
type Memory struct {
	*memory.Base

	rules     []Rule
	rulesPath string
	strategy  Strategy
	logger    logrus.FieldLogger
}

// New creates procedural memory, loading rules.json when config.Resume is set.
func New(opener memory.Opener, config *memory.Config, opts ...Option) (*Memory, error) {
	base, err := memory.NewBase(opener, StoreName, config)
	if err != nil {
		return nil, err
	}
	cfg := base.Config()

	m := &Memory{
		Base:      base,
		rulesPath: filepath.Join(cfg.CkptDir, StoreName, rulesFile),
		strategy:  Jaccard{},
		logger:    base.Logger().WithField("component", "procedural"),
	}
	for _, opt := range opts {
		opt(m)
	}

	if cfg.Resume {
		var rules []Rule
		if _, err := memory.LoadJSON(m.rulesPath, &rules); err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
		for i, r := range rules {
			if err := r.Validate(); err != nil {
				return nil, fmt.Errorf("%w: rule %d in %s: %v", memory.ErrConfiguration, i, m.rulesPath, err)
			}
		}
		m.rules = rules
		m.logger.Infof("loaded %d rules", len(rules))
	}
	return m, nil
}

// Strategy returns the scoring strategy in use.
func (m *Memory) Strategy() Strategy { return m.strategy }

// Rules returns a copy of the rule list in insertion order.
func (m *Memory) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// AddRule validates and appends a rule, rewrites rules.json and indexes the
// rule's description in the vector store for similarity lookup.
func (m *Memory) AddRule(ctx context.Context, r Rule) error {
	if !m.Enabled() {
		return nil
	}
	if err := r.Validate(); err != nil {
		return err
	}

	idx := len(m.rules)
	m.rules = append(m.rules, r)
	if err := memory.SaveJSON(m.rulesPath, m.rules); err != nil {
		m.rules = m.rules[:idx]
		return fmt.Errorf("save rules: %w", err)
	}

	// The rule stays in the list if indexing fails; rules.json is the
	// source of truth.
	if text := ruleText(r); text != "" {
		if _, err := m.Update(ctx, text, map[string]any{"index": idx}, fmt.Sprintf("rule-%d", idx)); err != nil {
			return fmt.Errorf("index rule %d: %w", idx, err)
		}
	}
	m.logger.WithField("index", idx).Debug("added rule")
	return nil
}

// MatchByPriority returns the highest-priority rule whose rigid conditions
// are all contained in the cue, or nil. Rules of equal priority keep their
// insertion order. The stored list is never reordered.
func (m *Memory) MatchByPriority(cue Cue) *Rule {
	if !m.Enabled() {
		return nil
	}
	order := make([]int, len(m.rules))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return m.rules[order[a]].Priority > m.rules[order[b]].Priority
	})
	for _, i := range order {
		if m.rules[i].Matches(cue) {
			r := m.rules[i]
			return &r
		}
	}
	return nil
}

// RetrieveByScore returns the best rule under the strategy, or nil. A rule
// replaces the running best only with a strictly greater score that is at
// least threshold, so on ties the earliest rule wins.
func (m *Memory) RetrieveByScore(ctx context.Context, cue Cue, threshold float64) (*Match, error) {
	if !m.Enabled() {
		return nil, nil
	}
	var best *Match
	bestScore := 0.0
	for i, r := range m.rules {
		score, err := m.strategy.Score(ctx, r, cue)
		if err != nil {
			return nil, fmt.Errorf("score rule %d: %w", i, err)
		}
		if score > bestScore && score >= threshold {
			best = &Match{Rule: r, Score: score, Index: i}
			bestScore = score
		}
	}
	return best, nil
}

// Rank scores every rule and returns them by descending score.
func (m *Memory) Rank(ctx context.Context, cue Cue) ([]Match, error) {
	out := make([]Match, 0, len(m.rules))
	for i, r := range m.rules {
		score, err := m.strategy.Score(ctx, r, cue)
		if err != nil {
			return nil, fmt.Errorf("score rule %d: %w", i, err)
		}
		out = append(out, Match{Rule: r, Score: score, Index: i})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out, nil
}

// RetrieveRules returns rules whose description is similar to query.
func (m *Memory) RetrieveRules(ctx context.Context, query string, opts ...memory.RetrieveOption) ([]memory.Formatted, error) {
	return m.RetrieveAndFormat(ctx, query, StoreName, RuleTag, opts...)
}

func ruleText(r Rule) string {
	var b strings.Builder
	b.WriteString(r.Describe())
	if len(r.Actions) > 0 {
		fmt.Fprintf(&b, "actions: %s\n", strings.Join(r.Actions, "; "))
	}
	return b.String()
}
