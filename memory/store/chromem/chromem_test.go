package chromem_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/cogbase/memory"
	"github.com/becomeliminal/cogbase/memory/embedder/mock"
	"github.com/becomeliminal/cogbase/memory/store/chromem"
)

func newStore(t *testing.T) *chromem.Store {
	t.Helper()
	s, err := chromem.Open(t.TempDir(), "episodic", mock.New(), nil)
	require.NoError(t, err)
	return s
}

func TestStore_UpsertGeneratesID(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	id, err := s.Upsert(ctx, "check the balance first", nil, "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, "episodic", s.Name())
}

func TestStore_UpsertSameIDIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	id1, err := s.Upsert(ctx, "first version", map[string]any{"v": "1"}, "doc-1")
	require.NoError(t, err)
	id2, err := s.Upsert(ctx, "second version", map[string]any{"v": "2"}, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, "doc-1", id1)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, s.Count())

	results, err := s.Query(ctx, "second version", 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "second version", results[0].Content)
	assert.Equal(t, "2", results[0].Metadata["v"])
}

func TestStore_EmptyContent(t *testing.T) {
	s := newStore(t)

	_, err := s.Upsert(context.Background(), "   ", nil, "")
	assert.ErrorIs(t, err, memory.ErrEmptyContent)
	assert.Equal(t, 0, s.Count())
}

func TestStore_QueryClampsAndSorts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	texts := []string{
		"sort a list in python",
		"python list comprehension",
		"bake sourdough bread",
	}
	for _, text := range texts {
		_, err := s.Upsert(ctx, text, nil, "")
		require.NoError(t, err)
	}

	results, err := s.Query(ctx, "sort a list in python", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "sort a list in python", results[0].Content)
	assert.InDelta(t, 0.0, results[0].Score, 1e-5)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Score, results[i].Score)
	}

	results, err = s.Query(ctx, "python", 2, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestStore_QueryEmpty(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	results, err := s.Query(ctx, "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = s.Upsert(ctx, "something", nil, "")
	require.NoError(t, err)

	results, err = s.Query(ctx, "something", 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_MetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	meta := map[string]any{
		"task":          "sort numbers",
		"episode_id":    3,
		"reward":        true,
		"tags":          []string{"py", "sort"},
		"transition_id": 2.0,
	}
	_, err := s.Upsert(ctx, "sorted the numbers", meta, "t-1")
	require.NoError(t, err)

	results, err := s.Query(ctx, "sorted the numbers", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0].Metadata
	assert.Equal(t, "sort numbers", got["task"])
	assert.Equal(t, float64(3), got["episode_id"])
	assert.Equal(t, true, got["reward"])
	assert.Equal(t, []any{"py", "sort"}, got["tags"])
	assert.Equal(t, float64(2), got["transition_id"])
}

func TestStore_QueryWhere(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Upsert(ctx, "python sort", map[string]any{"lang": "py"}, "")
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "go sort", map[string]any{"lang": "go"}, "")
	require.NoError(t, err)

	results, err := s.Query(ctx, "sort", 5, map[string]string{"lang": "go"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "go sort", results[0].Content)
}

func TestStore_ReservedMetadataKey(t *testing.T) {
	s := newStore(t)

	_, err := s.Upsert(context.Background(), "text", map[string]any{"_json_keys": "x"}, "")
	assert.ErrorIs(t, err, memory.ErrValidation)
}

func TestStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	embedder := mock.New()

	s, err := chromem.Open(dir, "semantic", embedder, nil)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "a durable fact", map[string]any{"n": 1}, "fact-1")
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(dir, "semantic", "vectordb"))

	reopened, err := chromem.Open(dir, "semantic", embedder, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())

	results, err := reopened.Query(ctx, "a durable fact", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fact-1", results[0].ID)
	assert.Equal(t, float64(1), results[0].Metadata["n"])
}

func TestOpen_Unavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0o644))

	_, err := chromem.Open(blocker, "episodic", mock.New(), nil)
	assert.ErrorIs(t, err, memory.ErrStoreUnavailable)
}

func TestOpener(t *testing.T) {
	open := chromem.Opener(t.TempDir(), mock.New(), nil)
	reg := memory.NewRegistry(open, 3, nil)

	s, err := reg.RegisterStore("skill")
	require.NoError(t, err)
	assert.Equal(t, "skill", s.Name())
	assert.Equal(t, []string{"skill"}, reg.Names())
}

func TestNewInMemory_RequiresEmbedder(t *testing.T) {
	_, err := chromem.NewInMemory("x", nil, nil)
	assert.ErrorIs(t, err, memory.ErrConfiguration)
}
