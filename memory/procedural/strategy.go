package procedural

import (
	"context"
	"fmt"
	"math"

	"github.com/viterin/vek/vek32"

	"github.com/becomeliminal/cogbase/memory"
)

// Strategy scores how well a rule applies to a cue, in [0, 1].
type Strategy interface {
	Name() string
	Score(ctx context.Context, rule Rule, cue Cue) (float64, error)
}

// Strategy names accepted by NewStrategy.
const (
	StrategyExact     = "exact"
	StrategyJaccard   = "jaccard"
	StrategyWeighted  = "weighted"
	StrategyPercent   = "percent"
	StrategyEmbedding = "embedding"
	StrategyHybrid    = "hybrid"
)

// NewStrategy resolves a strategy by name. embedder is required by the
// embedding and hybrid strategies; hybridWeights optionally sets the
// jaccard and embedding weights of the hybrid strategy.
func NewStrategy(name string, embedder memory.Embedder, hybridWeights ...float64) (Strategy, error) {
	switch name {
	case StrategyExact:
		return Exact{}, nil
	case StrategyJaccard, "":
		return Jaccard{}, nil
	case StrategyWeighted:
		return Weighted{}, nil
	case StrategyPercent:
		return Percent{}, nil
	case StrategyEmbedding:
		if embedder == nil {
			return nil, fmt.Errorf("%w: %s strategy needs an embedder", memory.ErrConfiguration, name)
		}
		return &EmbeddingSimilarity{Embedder: embedder}, nil
	case StrategyHybrid:
		if embedder == nil {
			return nil, fmt.Errorf("%w: %s strategy needs an embedder", memory.ErrConfiguration, name)
		}
		h := NewHybrid(embedder)
		switch len(hybridWeights) {
		case 0:
		case 2:
			h.JaccardWeight, h.EmbeddingWeight = hybridWeights[0], hybridWeights[1]
		default:
			return nil, fmt.Errorf("%w: hybrid takes 2 weights, got %d", memory.ErrConfiguration, len(hybridWeights))
		}
		return h, nil
	default:
		return nil, fmt.Errorf("%w: unknown scoring strategy %q", memory.ErrConfiguration, name)
	}
}

// Exact scores 1 when every rigid condition is met, else 0.
type Exact struct{}

func (Exact) Name() string { return StrategyExact }

func (Exact) Score(_ context.Context, rule Rule, cue Cue) (float64, error) {
	if rule.Matches(cue) {
		return 1, nil
	}
	return 0, nil
}

// Jaccard compares the rule's rigid conditions and the cue as sets of
// (key, value set) pairs: |A∩B| / |A∪B|, 0 when both are empty.
type Jaccard struct{}

func (Jaccard) Name() string { return StrategyJaccard }

func (Jaccard) Score(_ context.Context, rule Rule, cue Cue) (float64, error) {
	return JaccardSimilarity(rule.RigidConditions, cue), nil
}

// JaccardSimilarity is symmetric and 1 iff a and b are equal as sets.
func JaccardSimilarity(a, b Conditions) float64 {
	inter := 0
	for k, av := range a {
		if bv, ok := b[k]; ok && av.key() == bv.key() {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Weighted is the weight of the met rigid conditions over the total weight.
type Weighted struct{}

func (Weighted) Name() string { return StrategyWeighted }

func (Weighted) Score(_ context.Context, rule Rule, cue Cue) (float64, error) {
	if err := rule.Validate(); err != nil {
		return 0, err
	}
	var matched, total float64
	for i, k := range rule.RigidConditions.Keys() {
		w := rule.weight(i)
		total += w
		if conditionMet(k, rule.RigidConditions[k], cue) {
			matched += w
		}
	}
	if total == 0 {
		return 0, nil
	}
	return matched / total, nil
}

// Percent is the fraction of rigid conditions the cue meets.
type Percent struct{}

func (Percent) Name() string { return StrategyPercent }

func (Percent) Score(_ context.Context, rule Rule, cue Cue) (float64, error) {
	if len(rule.RigidConditions) == 0 {
		return 0, nil
	}
	matched := 0
	for k, v := range rule.RigidConditions {
		if conditionMet(k, v, cue) {
			matched++
		}
	}
	return float64(matched) / float64(len(rule.RigidConditions)), nil
}

// EmbeddingSimilarity is the cosine similarity between embeddings of the
// rule's conditions and the cue, clamped to [0, 1].
type EmbeddingSimilarity struct {
	Embedder memory.Embedder
}

func (*EmbeddingSimilarity) Name() string { return StrategyEmbedding }

func (e *EmbeddingSimilarity) Score(ctx context.Context, rule Rule, cue Cue) (float64, error) {
	ruleText, cueText := rule.Describe(), renderConditions(cue)
	if ruleText == "" || cueText == "" {
		return 0, nil
	}
	a, err := e.Embedder.Embed(ctx, ruleText)
	if err != nil {
		return 0, fmt.Errorf("embed rule: %w", err)
	}
	b, err := e.Embedder.Embed(ctx, cueText)
	if err != nil {
		return 0, fmt.Errorf("embed cue: %w", err)
	}
	return clamp01(cosine(a, b)), nil
}

// Hybrid is JaccardWeight*jaccard + EmbeddingWeight*embedding.
type Hybrid struct {
	JaccardWeight   float64
	EmbeddingWeight float64
	embedding       *EmbeddingSimilarity
}

// NewHybrid returns a hybrid strategy weighted 0.5/0.5.
func NewHybrid(embedder memory.Embedder) *Hybrid {
	return &Hybrid{
		JaccardWeight:   0.5,
		EmbeddingWeight: 0.5,
		embedding:       &EmbeddingSimilarity{Embedder: embedder},
	}
}

func (*Hybrid) Name() string { return StrategyHybrid }

func (h *Hybrid) Score(ctx context.Context, rule Rule, cue Cue) (float64, error) {
	emb, err := h.embedding.Score(ctx, rule, cue)
	if err != nil {
		return 0, err
	}
	return h.JaccardWeight*JaccardSimilarity(rule.RigidConditions, cue) + h.EmbeddingWeight*emb, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := vek32.Dot(a, a), vek32.Dot(b, b)
	if na == 0 || nb == 0 {
		return 0
	}
	return float64(vek32.Dot(a, b)) / math.Sqrt(float64(na)*float64(nb))
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
