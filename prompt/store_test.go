package prompt_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c360studio/agentbus/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_BuiltinFallback(t *testing.T) {
	store := prompt.NewStore("", nil)

	text, err := store.Get("clarification_system")
	require.NoError(t, err)
	assert.Contains(t, text, "GATHERING_COMPETITORS")
}

func TestGet_UnknownPrompt(t *testing.T) {
	store := prompt.NewStore("", nil)

	_, err := store.Get("no-such-prompt")
	assert.Error(t, err)
}

func TestGet_DiskOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	custom := "Custom system prompt for {description}"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clarification_system.tmpl"), []byte(custom), 0644))

	store := prompt.NewStore(dir, nil)
	text, err := store.Get("clarification_system")
	require.NoError(t, err)
	assert.Equal(t, custom, text)
}

func TestGet_CachesAfterFirstLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greeting.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	store := prompt.NewStore(dir, nil)
	text, err := store.Get("greeting")
	require.NoError(t, err)
	assert.Equal(t, "v1", text)

	// Without watching, a change on disk is not observed.
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0644))
	text, err = store.Get("greeting")
	require.NoError(t, err)
	assert.Equal(t, "v1", text)
}

func TestFormat_DottedPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.tmpl"),
		[]byte("Task {task.id} for {task.owner.name}, budget {budget}"), 0644))

	store := prompt.NewStore(dir, nil)
	out, err := store.Format("demo", map[string]any{
		"task": map[string]any{
			"id":    "t-1",
			"owner": map[string]any{"name": "u1"},
		},
		"budget": 250,
	})
	require.NoError(t, err)
	assert.Equal(t, "Task t-1 for u1, budget 250", out)
}

func TestFormat_JSONRendering(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.tmpl"),
		[]byte("Spec: {spec_json}\nTags: {tags}"), 0644))

	store := prompt.NewStore(dir, nil)
	out, err := store.Format("demo", map[string]any{
		"spec_json": map[string]any{"description": "summarise"},
		"tags":      []any{"pdf", "summary"},
	})
	require.NoError(t, err)
	// Structured values render as indented JSON.
	assert.Contains(t, out, "\"description\": \"summarise\"")
	assert.Contains(t, out, "[\n  \"pdf\",\n  \"summary\"\n]")
}

func TestFormat_MissingPathLeftLiteral(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.tmpl"),
		[]byte("Hello {missing.path}"), 0644))

	store := prompt.NewStore(dir, nil)
	out, err := store.Format("demo", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Hello {missing.path}", out)
}

func TestNames_MergesDiskAndBuiltin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.tmpl"), []byte("x"), 0644))

	store := prompt.NewStore(dir, nil)
	names := store.Names()
	assert.Contains(t, names, "custom")
	assert.Contains(t, names, "clarification_system")
	assert.Contains(t, names, "rerank_candidates")
}
