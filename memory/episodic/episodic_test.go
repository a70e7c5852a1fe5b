package episodic_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/cogbase/core"
	"github.com/becomeliminal/cogbase/internal/memtest"
	"github.com/becomeliminal/cogbase/memory"
	"github.com/becomeliminal/cogbase/memory/embedder/mock"
	"github.com/becomeliminal/cogbase/memory/episodic"
	"github.com/becomeliminal/cogbase/memory/store/chromem"
)

func newMemory(t *testing.T, dir string) (*episodic.Memory, *memtest.Store) {
	t.Helper()
	opened := map[string]*memtest.Store{}
	m, err := episodic.New(memtest.Opener(opened), &memory.Config{CkptDir: dir, Resume: true})
	require.NoError(t, err)
	return m, opened[episodic.StoreName]
}

func transition(id int, task string) core.Transition {
	return core.Transition{
		Task:         task,
		RawMsg:       "def f(): pass",
		Obs:          "ok",
		Reward:       core.Bool(id%2 == 1),
		TransitionID: id,
		TaskID:       "task-1",
	}
}

func TestFinishEpisode_FlushesBuffer(t *testing.T) {
	ctx := context.Background()
	m, store := newMemory(t, t.TempDir())

	require.NoError(t, m.AddTransition(ctx, transition(0, "sort a list")))
	require.NoError(t, m.AddTransition(ctx, transition(1, "sort a list")))
	assert.Equal(t, 2, m.Pending())
	assert.Empty(t, store.Upserts, "transitions are not stored before the episode ends")

	require.NoError(t, m.FinishEpisode(ctx))

	require.Len(t, store.Upserts, 2)
	for _, u := range store.Upserts {
		assert.Equal(t, float64(0), u.Metadata["episode_id"])
		assert.Equal(t, "task-1", u.Metadata["task_id"])
		assert.NotContains(t, u.Text, "task-1")
	}
	assert.Equal(t, float64(0), store.Upserts[0].Metadata["transition_id"])
	assert.Equal(t, float64(1), store.Upserts[1].Metadata["transition_id"])
	assert.Equal(t, 0, m.Pending())
	assert.Equal(t, 1, m.EpisodeID())
	assert.Equal(t, 0, m.TransitionID())
}

func TestFinishEpisode_Empty(t *testing.T) {
	ctx := context.Background()
	m, store := newMemory(t, t.TempDir())

	require.NoError(t, m.FinishEpisode(ctx))
	assert.Equal(t, 1, m.EpisodeID())
	assert.Empty(t, store.Upserts)
}

func TestAddTransition_ResumeYieldsIdenticalBuffer(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m, _ := newMemory(t, dir)

	require.NoError(t, m.AddTransition(ctx, transition(0, "parse csv")))
	require.NoError(t, m.AddTransition(ctx, transition(3, "parse csv")))
	assert.FileExists(t, filepath.Join(dir, "episodic", "episode_state.json"))

	reloaded, _ := newMemory(t, dir)
	assert.Equal(t, m.State(), reloaded.State())
	assert.Equal(t, 3, reloaded.TransitionID())
}

func TestAddTransition_DecreasingIDRejected(t *testing.T) {
	ctx := context.Background()
	m, _ := newMemory(t, t.TempDir())

	require.NoError(t, m.AddTransition(ctx, transition(2, "x")))
	err := m.AddTransition(ctx, transition(1, "x"))
	assert.ErrorIs(t, err, memory.ErrValidation)
	assert.Equal(t, 1, m.Pending())

	// Equal ids are allowed.
	require.NoError(t, m.AddTransition(ctx, transition(2, "x")))
}

func TestFinishEpisode_PartialFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m, store := newMemory(t, dir)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.AddTransition(ctx, transition(i, "retry me")))
	}
	ids := make([]string, 0, 3)
	for _, e := range m.State().Buffer {
		ids = append(ids, e.ID)
	}

	store.FailAt = 2
	err := m.FinishEpisode(ctx)
	require.ErrorIs(t, err, memory.ErrStoreUnavailable)

	assert.Len(t, store.Upserts, 1)
	assert.Equal(t, 2, m.Pending())
	assert.Equal(t, 0, m.EpisodeID())
	assert.Equal(t, 2, m.TransitionID())

	// The trimmed buffer survives a restart.
	reloaded, _ := newMemory(t, dir)
	assert.Equal(t, 2, reloaded.Pending())

	require.NoError(t, m.FinishEpisode(ctx))
	require.Len(t, store.Upserts, 3)
	for i, u := range store.Upserts {
		assert.Equal(t, ids[i], u.ID)
	}
	assert.Equal(t, 3, store.Count())
	assert.Equal(t, 1, m.EpisodeID())
}

func TestNew_NoResumeStartsFresh(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m, _ := newMemory(t, dir)
	require.NoError(t, m.AddTransition(ctx, transition(0, "x")))

	fresh, err := episodic.New(memtest.Opener(map[string]*memtest.Store{}), &memory.Config{CkptDir: dir})
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.Pending())
}

func TestNew_CorruptState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "episodic", "episode_state.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := episodic.New(memtest.Opener(map[string]*memtest.Store{}), &memory.Config{CkptDir: dir, Resume: true})
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	ctx := context.Background()
	opened := map[string]*memtest.Store{}
	m, err := episodic.New(memtest.Opener(opened), &memory.Config{CkptDir: t.TempDir(), Disabled: true})
	require.NoError(t, err)

	require.NoError(t, m.AddTransition(ctx, transition(0, "x")))
	assert.Equal(t, 0, m.Pending())

	got, err := m.RetrieveTransitions(ctx, "x")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDefaultFormatter(t *testing.T) {
	text := episodic.DefaultFormatter(core.Transition{
		Task:         "sort a list",
		Reward:       core.Bool(true),
		TransitionID: 4,
		TaskID:       "hidden-id",
	})

	assert.Contains(t, text, "\n[Task]:\n    sort a list\n[/Task]\n")
	assert.Contains(t, text, "\n[Previous Critique]:\n    None\n[/Previous Critique]\n")
	assert.Contains(t, text, "\n[Environment Feedback]:\n    None\n[/Environment Feedback]\n")
	assert.Contains(t, text, "\n[Result]:\n    Success\n[/Result]\n")
	assert.NotContains(t, text, "hidden-id")

	failed := episodic.DefaultFormatter(core.Transition{})
	assert.Contains(t, failed, "Failure")
}

func TestWithFormatter(t *testing.T) {
	ctx := context.Background()
	opened := map[string]*memtest.Store{}
	m, err := episodic.New(memtest.Opener(opened), &memory.Config{CkptDir: t.TempDir()},
		episodic.WithFormatter(func(tr core.Transition) string { return "custom: " + tr.Task }))
	require.NoError(t, err)

	require.NoError(t, m.AddTransition(ctx, transition(0, "sort")))
	assert.Equal(t, "custom: sort", m.State().Buffer[0].Text)
}

func TestRetrieveTransitions_Chromem(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	open := chromem.Opener(dir, mock.New(), nil)

	m, err := episodic.New(open, &memory.Config{CkptDir: dir, Resume: true})
	require.NoError(t, err)

	require.NoError(t, m.AddTransition(ctx, transition(0, "sort a list of numbers")))
	got, err := m.RetrieveTransitions(ctx, "sort a list of numbers")
	require.NoError(t, err)
	assert.Empty(t, got, "pending transitions are not retrievable")

	require.NoError(t, m.FinishEpisode(ctx))
	require.NoError(t, m.AddTransition(ctx, transition(0, "bake bread")))
	require.NoError(t, m.FinishEpisode(ctx))

	got, err = m.RetrieveTransitions(ctx, "sort a list of numbers", memory.WithK(1), memory.WithScores())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Text, "[Past Memory]:")
	assert.Contains(t, got[0].Text, "sort a list of numbers")
	assert.True(t, got[0].Scored)

	got, err = m.RetrieveEpisode(ctx, "sort", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Text, "bake bread")
}
