package procedural_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/cogbase/internal/memtest"
	"github.com/becomeliminal/cogbase/memory"
	"github.com/becomeliminal/cogbase/memory/procedural"
)

func newLibrary(t *testing.T, dir string, opened map[string]*memtest.Store, opts ...procedural.SkillOption) *procedural.SkillLibrary {
	t.Helper()
	l, err := procedural.NewSkillLibrary(memtest.Opener(opened), &memory.Config{CkptDir: dir, Resume: true}, opts...)
	require.NoError(t, err)
	return l
}

var sortSkill = procedural.SkillRecord{
	ProgramName:  "sort_numbers",
	ProgramCode:  "def sort_numbers(xs):\n    return sorted(xs)",
	Dependencies: []string{"sorted"},
	NoParent:     true,
}

func TestAddSkill_Callable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opened := map[string]*memtest.Store{}
	l := newLibrary(t, dir, opened)

	name, err := l.AddSkill(ctx, sortSkill, "sorts a list of numbers", "sort numbers", "")
	require.NoError(t, err)
	assert.Equal(t, "sort_numbers", name)

	store := opened[procedural.SkillStoreName]
	require.Len(t, store.Upserts, 1)
	assert.Equal(t, "sort_numbers", store.Upserts[0].ID)
	assert.Equal(t, "sort numbers", store.Upserts[0].Metadata["task"])

	assert.FileExists(t, filepath.Join(dir, "skill", "entries.json"))
	assert.FileExists(t, filepath.Join(dir, "skill", "code", "sort_numbers.py"))
	assert.FileExists(t, filepath.Join(dir, "skill", "description", "sort_numbers.txt"))

	got, err := l.RetrieveCode(ctx, "sorts numbers")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Text, "[Callable Code]:")
	assert.Contains(t, got[0].Text, "    sorts a list of numbers\n\n    def sort_numbers(xs):")

	s, ok := l.Skill("sort_numbers")
	require.True(t, ok)
	assert.Equal(t, []string{"sorted"}, s.Dependencies)
}

func TestAddSkill_Reference(t *testing.T) {
	ctx := context.Background()
	opened := map[string]*memtest.Store{}
	l := newLibrary(t, t.TempDir(), opened, procedural.WithoutSkillFiles())

	rec := sortSkill
	rec.NoParent = false
	name, err := l.AddSkill(ctx, rec, "inline sorting snippet", "sort numbers", "task-7")
	require.NoError(t, err)
	assert.Empty(t, name)

	assert.Empty(t, opened[procedural.SkillStoreName].Upserts)
	nonFunc := opened[procedural.NonFuncStoreName]
	require.Len(t, nonFunc.Upserts, 1)
	assert.Equal(t, "task-7", nonFunc.Upserts[0].Metadata["task"])

	got, err := l.RetrieveNonFunc(ctx, "sorting snippet")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Text, "[Reference Code (Not callable)]:")
	assert.Contains(t, got[0].Text, "return sorted(xs)")
	assert.Empty(t, l.Skills())
}

func TestAddSkill_MissingCode(t *testing.T) {
	l := newLibrary(t, t.TempDir(), map[string]*memtest.Store{})

	_, err := l.AddSkill(context.Background(), procedural.SkillRecord{ProgramName: "x", NoParent: true}, "d", "t", "")
	assert.ErrorIs(t, err, memory.ErrConfiguration)
}

func TestSkillLibrary_Resume(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opened := map[string]*memtest.Store{}
	l := newLibrary(t, dir, opened)

	_, err := l.AddSkill(ctx, sortSkill, "sorts a list of numbers", "sort numbers", "")
	require.NoError(t, err)
	// Re-adding the same name overwrites.
	_, err = l.AddSkill(ctx, sortSkill, "sorts numbers ascending", "sort numbers", "")
	require.NoError(t, err)
	assert.Len(t, l.Skills(), 1)

	// Same stores, reloaded entries: in sync.
	reloaded := newLibrary(t, dir, opened)
	s, ok := reloaded.Skill("sort_numbers")
	require.True(t, ok)
	assert.Equal(t, "sorts numbers ascending", s.Description)

	// Populated store without entries.json is out of sync.
	_, err = procedural.NewSkillLibrary(memtest.Opener(opened), &memory.Config{CkptDir: t.TempDir(), Resume: true})
	assert.ErrorIs(t, err, memory.ErrConfiguration)
}
