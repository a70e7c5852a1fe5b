package semantic_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/cogbase/internal/memtest"
	"github.com/becomeliminal/cogbase/memory"
	"github.com/becomeliminal/cogbase/memory/semantic"
)

func TestMemory_StoresAndTags(t *testing.T) {
	ctx := context.Background()
	opened := map[string]*memtest.Store{}
	m, err := semantic.New(memtest.Opener(opened), &memory.Config{CkptDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, []string{"semantic", "summaries", "reflections"}, m.Registry.Names())

	_, err = m.UpdateKnowledge(ctx, "clrs", "quicksort partitions around a pivot", map[string]any{"chapter": 7})
	require.NoError(t, err)
	_, err = m.UpdateKnowledge(ctx, "clrs", "heapsort builds a max heap", nil)
	require.NoError(t, err)
	_, err = m.UpdateSummaries(ctx, "solved three sorting tasks", nil)
	require.NoError(t, err)
	_, err = m.UpdateReflections(ctx, "check empty input before sorting", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"clrs"}, m.KnowledgeSources())
	assert.Equal(t, "clrs", opened["semantic"].Upserts[0].Metadata["source"])
	assert.Equal(t, 7, opened["semantic"].Upserts[0].Metadata["chapter"])

	got, err := m.RetrieveKnowledge(ctx, "quicksort pivot", memory.WithK(1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Text, "[Textbook]:")
	assert.Contains(t, got[0].Text, "quicksort")

	got, err = m.RetrieveSummaries(ctx, "sorting tasks")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Text, "[Summary]:")

	got, err = m.RetrieveReflections(ctx, "empty input")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Text, "[Reflection]:")
}

func TestMemory_EmptyContent(t *testing.T) {
	m, err := semantic.New(memtest.Opener(map[string]*memtest.Store{}), nil)
	require.NoError(t, err)

	_, err = m.UpdateSummaries(context.Background(), "", nil)
	assert.ErrorIs(t, err, memory.ErrEmptyContent)
}

func TestMemory_Disabled(t *testing.T) {
	ctx := context.Background()
	opened := map[string]*memtest.Store{}
	m, err := semantic.New(memtest.Opener(opened), &memory.Config{Disabled: true})
	require.NoError(t, err)

	_, err = m.UpdateKnowledge(ctx, "src", "text", nil)
	require.NoError(t, err)
	assert.Empty(t, opened["semantic"].Upserts)
	assert.Empty(t, m.KnowledgeSources())
}
