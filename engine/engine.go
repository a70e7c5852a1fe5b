// Package engine drives an agent over tasks: it retrieves from long-term
// memory, runs a caller-supplied step per attempt, records transitions in
// episodic memory and checkpoints training progress.
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/becomeliminal/cogbase/core"
	"github.com/becomeliminal/cogbase/memory"
	"github.com/becomeliminal/cogbase/memory/episodic"
	"github.com/becomeliminal/cogbase/memory/procedural"
	"github.com/becomeliminal/cogbase/memory/semantic"
)

// Config configures an Engine.
type Config struct {
	// MaxAttempts is the number of steps per rollout.
	// Default: 3
	MaxAttempts int

	// TopK is the number of merged retrieval results handed to a step.
	// Default: 5
	TopK int

	// ResultDir receives task outputs, the error log and training checkpoints.
	// Default: "results"
	ResultDir string

	// CkptDir is the memory checkpoint root copied by training snapshots.
	// Default: "ckpt"
	CkptDir string

	// MaxTrainIter bounds the training loop.
	// Default: 10
	MaxTrainIter int

	// SaveEvery snapshots CkptDir every SaveEvery training iterations.
	// Default: 1
	SaveEvery int

	// NoRetrieval disables memory retrieval (the ReAct ablation).
	NoRetrieval bool
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	MaxAttempts:  3,
	TopK:         5,
	ResultDir:    "results",
	CkptDir:      "ckpt",
	MaxTrainIter: 10,
	SaveEvery:    1,
}

// Engine is the agent loop around the memory modules.
// It is owned by one agent and is not safe for concurrent use.
type Engine struct {
	config   Config
	episodic *episodic.Memory
	skills   *procedural.SkillLibrary
	semantic *semantic.Memory
	learner  Learner
	logger   logrus.FieldLogger

	train     bool
	trainIter int
	task      Task
}

// Option configures the engine.
type Option func(*Engine)

// WithEpisodic records rollout transitions in m and retrieves from it.
func WithEpisodic(m *episodic.Memory) Option {
	return func(e *Engine) {
		e.episodic = m
	}
}

// WithSkills retrieves callable and reference code from l.
func WithSkills(l *procedural.SkillLibrary) Option {
	return func(e *Engine) {
		e.skills = l
	}
}

// WithSemantic retrieves textbook knowledge, summaries and reflections from m.
func WithSemantic(m *semantic.Memory) Option {
	return func(e *Engine) {
		e.semantic = m
	}
}

// WithLearner runs l after every training rollout.
func WithLearner(l Learner) Option {
	return func(e *Engine) {
		e.learner = l
	}
}

// WithLogger sets the logger. Default: logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine. A nil config uses DefaultConfig.
func New(config *Config, opts ...Option) *Engine {
	cfg := *DefaultConfig
	if config != nil {
		cfg = *config
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig.TopK
	}
	if cfg.ResultDir == "" {
		cfg.ResultDir = DefaultConfig.ResultDir
	}
	if cfg.CkptDir == "" {
		cfg.CkptDir = DefaultConfig.CkptDir
	}
	if cfg.SaveEvery <= 0 {
		cfg.SaveEvery = DefaultConfig.SaveEvery
	}

	e := &Engine{
		config: cfg,
		train:  true,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithField("component", "engine")
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// TrainIter returns the current training iteration.
func (e *Engine) TrainIter() int {
	return e.trainIter
}

// SetTrain switches between training and evaluation. Evaluation rollouts do
// not record transitions.
func (e *Engine) SetTrain(train bool) {
	e.train = train
}

// Retrieve queries every configured memory with cue, merges the scored
// results and returns the TopK best texts, ascending by distance.
func (e *Engine) Retrieve(ctx context.Context, cue string) ([]string, error) {
	if e.config.NoRetrieval {
		return nil, nil
	}

	type source func(context.Context, string, ...memory.RetrieveOption) ([]memory.Formatted, error)
	var sources []source
	if e.episodic != nil {
		sources = append(sources, e.episodic.RetrieveTransitions)
	}
	if e.semantic != nil {
		sources = append(sources, e.semantic.RetrieveKnowledge, e.semantic.RetrieveReflections, e.semantic.RetrieveSummaries)
	}
	if e.skills != nil {
		sources = append(sources, e.skills.RetrieveCode, e.skills.RetrieveNonFunc)
	}

	var all []memory.Formatted
	for _, retrieve := range sources {
		res, err := retrieve(ctx, cue, memory.WithScores())
		if err != nil {
			return nil, fmt.Errorf("retrieve: %w", err)
		}
		all = append(all, res...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Score < all[j].Score
	})
	if len(all) > e.config.TopK {
		all = all[:e.config.TopK]
	}
	for _, f := range all {
		e.logger.Infof("retrieved (score=%.4f): %s", f.Score, memory.Truncate(f.Text, 100))
	}
	return memory.Texts(all), nil
}

// processTransition stamps t with the rollout bookkeeping and records it.
func (e *Engine) processTransition(ctx context.Context, t *core.Transition, attempt int) error {
	t.TransitionID = attempt
	t.Task = e.task.Task
	t.TaskID = e.task.ID
	if !e.train || e.episodic == nil {
		return nil
	}
	return e.episodic.AddTransition(ctx, *t)
}
