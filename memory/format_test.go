package memory_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/cogbase/memory"
)

func TestTagIndent(t *testing.T) {
	assert.Equal(t, "\n[Task]:\n    line one\n\n    line two\n[/Task]\n",
		memory.TagIndent("Task", "line one\n\nline two"))
	assert.Equal(t, "\n[A]:\n    x\n[/A]\n\n[A]:\n    y\n[/A]\n", memory.TagIndent("A", "x", "y"))
	assert.Empty(t, memory.TagIndent("A"))
}

func TestTagIndentLabeled(t *testing.T) {
	got := memory.TagIndentLabeled("Textbook", "Document", 1, "a", "b")
	assert.Contains(t, got, "[Textbook (Document 1)]:")
	assert.Contains(t, got, "[/Textbook (Document 2)]")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", memory.Truncate("short", 10))
	assert.Equal(t, "abcd...", memory.Truncate("abcdefghij", 7))
	assert.Equal(t, "...", memory.Truncate("abcdef", 2))
}

func TestJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	var v map[string]int
	found, err := memory.LoadJSON(path, &v)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, memory.SaveJSON(path, map[string]int{"episode_id": 2}))
	found, err = memory.LoadJSON(path, &v)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, map[string]int{"episode_id": 2}, v)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files are cleaned up")
}
