package procedural_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/cogbase/memory"
	"github.com/becomeliminal/cogbase/memory/embedder/mock"
	"github.com/becomeliminal/cogbase/memory/procedural"
)

var (
	pyRule = procedural.Rule{
		RigidConditions: procedural.Conditions{"lang": procedural.String("py")},
		Actions:         []string{"use sorted()"},
		Priority:        1,
	}
	pySortCue = procedural.Cue{
		"lang":  procedural.String("py"),
		"topic": procedural.String("sort"),
	}
)

func TestJaccard_SingleConditionAgainstWiderCue(t *testing.T) {
	score, err := procedural.Jaccard{}.Score(context.Background(), pyRule, pySortCue)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestJaccardSimilarity_Properties(t *testing.T) {
	sets := []procedural.Conditions{
		{},
		{"lang": procedural.String("py")},
		{"lang": procedural.List("py", "go")},
		{"lang": procedural.List("go", "py"), "topic": procedural.String("sort")},
		{"topic": procedural.String("sort"), "level": procedural.List("easy")},
	}
	for _, a := range sets {
		for _, b := range sets {
			ab := procedural.JaccardSimilarity(a, b)
			ba := procedural.JaccardSimilarity(b, a)
			assert.Equal(t, ab, ba)
			assert.GreaterOrEqual(t, ab, 0.0)
			assert.LessOrEqual(t, ab, 1.0)
		}
		if len(a) > 0 {
			assert.Equal(t, 1.0, procedural.JaccardSimilarity(a, a))
		}
	}

	assert.Equal(t, 0.0, procedural.JaccardSimilarity(nil, nil))
	// Value sets compare regardless of order; a one-element list equals a string.
	assert.Equal(t, 1.0, procedural.JaccardSimilarity(
		procedural.Conditions{"lang": procedural.List("py", "go")},
		procedural.Conditions{"lang": procedural.List("go", "py")},
	))
	assert.Equal(t, 1.0, procedural.JaccardSimilarity(
		procedural.Conditions{"lang": procedural.List("py")},
		procedural.Conditions{"lang": procedural.String("py")},
	))
}

func TestRule_Matches(t *testing.T) {
	listRule := procedural.Rule{RigidConditions: procedural.Conditions{
		"lang": procedural.List("py", "go"),
	}}

	assert.True(t, pyRule.Matches(pySortCue))
	assert.False(t, pyRule.Matches(procedural.Cue{"lang": procedural.String("go")}))
	assert.False(t, pyRule.Matches(procedural.Cue{"topic": procedural.String("sort")}))
	assert.True(t, listRule.Matches(procedural.Cue{"lang": procedural.String("go")}))
	assert.False(t, listRule.Matches(procedural.Cue{"lang": procedural.String("rust")}))
	assert.True(t, procedural.Rule{}.Matches(pySortCue))
}

func TestPercent(t *testing.T) {
	rule := procedural.Rule{RigidConditions: procedural.Conditions{
		"lang":  procedural.String("py"),
		"topic": procedural.String("graphs"),
	}}
	score, err := procedural.Percent{}.Score(context.Background(), rule, pySortCue)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)

	score, err = procedural.Percent{}.Score(context.Background(), procedural.Rule{}, pySortCue)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestWeighted(t *testing.T) {
	// Weights align with sorted keys: lang, topic.
	rule := procedural.Rule{
		RigidConditions: procedural.Conditions{
			"topic": procedural.String("graphs"),
			"lang":  procedural.String("py"),
		},
		Weights: []float64{3, 1},
	}
	score, err := procedural.Weighted{}.Score(context.Background(), rule, pySortCue)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, score, 1e-9)

	rule.Weights = nil
	score, err = procedural.Weighted{}.Score(context.Background(), rule, pySortCue)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)

	rule.Weights = []float64{1}
	_, err = procedural.Weighted{}.Score(context.Background(), rule, pySortCue)
	assert.ErrorIs(t, err, memory.ErrValidation)
}

func TestExact(t *testing.T) {
	score, err := procedural.Exact{}.Score(context.Background(), pyRule, pySortCue)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestEmbeddingAndHybrid(t *testing.T) {
	ctx := context.Background()
	embedder := mock.New()

	emb := &procedural.EmbeddingSimilarity{Embedder: embedder}
	same, err := emb.Score(ctx, pyRule, procedural.Cue{"lang": procedural.String("py")})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, same, 1e-5)

	partial, err := emb.Score(ctx, pyRule, pySortCue)
	require.NoError(t, err)
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)

	h := procedural.NewHybrid(embedder)
	score, err := h.Score(ctx, pyRule, pySortCue)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*0.5+0.5*partial, score, 1e-9)
}

func TestNewStrategy(t *testing.T) {
	for _, name := range []string{"exact", "jaccard", "weighted", "percent"} {
		s, err := procedural.NewStrategy(name, nil)
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name())
	}

	_, err := procedural.NewStrategy("embedding", nil)
	assert.ErrorIs(t, err, memory.ErrConfiguration)

	s, err := procedural.NewStrategy("hybrid", mock.New(), 0.2, 0.8)
	require.NoError(t, err)
	h := s.(*procedural.Hybrid)
	assert.Equal(t, 0.2, h.JaccardWeight)
	assert.Equal(t, 0.8, h.EmbeddingWeight)

	_, err = procedural.NewStrategy("hybrid", mock.New(), 1)
	assert.ErrorIs(t, err, memory.ErrConfiguration)

	_, err = procedural.NewStrategy("bogus", nil)
	assert.ErrorIs(t, err, memory.ErrConfiguration)
}

func TestNormalizeValue(t *testing.T) {
	v, err := procedural.NormalizeValue([]any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v.Items())
	assert.True(t, v.IsList())

	_, err = procedural.NormalizeValue(42)
	assert.ErrorIs(t, err, memory.ErrValidation)

	_, err = procedural.NormalizeValue([]any{"a", 1})
	assert.ErrorIs(t, err, memory.ErrValidation)

	_, err = procedural.ConditionsFrom(map[string]any{"lang": map[string]any{}})
	assert.ErrorIs(t, err, memory.ErrValidation)
}

func TestRule_JSON(t *testing.T) {
	data := []byte(`{"rigid_conditions":{"lang":"py","tags":["a","b"]},"actions":["x"],"priority":2}`)
	var r procedural.Rule
	require.NoError(t, json.Unmarshal(data, &r))
	assert.Equal(t, procedural.String("py"), r.RigidConditions["lang"])
	assert.Equal(t, procedural.List("a", "b"), r.RigidConditions["tags"])
	assert.Equal(t, 2, r.Priority)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(out))

	bad := []byte(`{"rigid_conditions":{"lang":3}}`)
	err = json.Unmarshal(bad, &r)
	assert.ErrorIs(t, err, memory.ErrValidation)
}
