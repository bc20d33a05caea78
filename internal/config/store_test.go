package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, path string, m map[string]string) {
	t.Helper()
	data, err := json.MarshalIndent(m, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(data, '\n'), 0o600))
}

func TestStore_LayerPrecedence(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "config.json")
	projectPath := filepath.Join(dir, ".buddy-cli.json")

	writeJSON(t, userPath, map[string]string{
		"workspace": "user-ws",
		"project":   "user-proj",
		"token":     "user-token",
	})
	writeJSON(t, projectPath, map[string]string{
		"workspace": "proj-ws",
	})

	t.Setenv("BUDDY_WORKSPACE", "env-ws")
	t.Setenv("BUDDY_TOKEN", "")
	t.Setenv("BUDDY_CLIENT_ID", "")

	s := NewStoreAt(userPath, projectPath, nil)

	// env > project > user, falling through per key
	assert.Equal(t, "env-ws", s.Get(KeyWorkspace))
	assert.Equal(t, "user-proj", s.Get(KeyProject))
	assert.Equal(t, "user-token", s.Get(KeyToken))
	assert.Equal(t, "", s.Get(KeyClientID))
}

func TestStore_EmptyEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "config.json")
	writeJSON(t, userPath, map[string]string{"workspace": "stored"})

	t.Setenv("BUDDY_WORKSPACE", "")

	s := NewStoreAt(userPath, "", nil)
	assert.Equal(t, "stored", s.Get(KeyWorkspace))
}

func TestStore_SetPersistsWholeMap(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "sub", "config.json")

	s := NewStoreAt(userPath, "", nil)
	s.Set(KeyWorkspace, "alpha")
	s.Set(KeyProject, "web")

	data, err := os.ReadFile(userPath)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]string{"workspace": "alpha", "project": "web"}, got)

	// pretty-printed with trailing newline
	assert.Equal(t, byte('\n'), data[len(data)-1])
	assert.Contains(t, string(data), "\n  \"workspace\"")
}

func TestStore_SetIsByteStableAcrossReloads(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "config.json")

	s := NewStoreAt(userPath, "", nil)
	s.Set(KeyWorkspace, "alpha")
	s.Set(KeyToken, "tok")
	first, err := os.ReadFile(userPath)
	require.NoError(t, err)

	// A reload followed by rewriting the same value must reproduce the
	// file byte for byte.
	s2 := NewStoreAt(userPath, "", nil)
	s2.Set(KeyToken, "tok")
	second, err := os.ReadFile(userPath)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestStore_RemoveAndClear(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "config.json")

	s := NewStoreAt(userPath, "", nil)
	s.Set(KeyToken, "tok")
	s.Set(KeyWorkspace, "alpha")

	s.Remove(KeyToken)
	assert.Equal(t, "", s.Get(KeyToken))

	var got map[string]string
	data, err := os.ReadFile(userPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.NotContains(t, got, "token")

	s.Clear()
	data, err = os.ReadFile(userPath)
	require.NoError(t, err)
	got = nil
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Empty(t, got)
}

func TestStore_CorruptFilesAreIgnored(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "config.json")
	projectPath := filepath.Join(dir, ".buddy-cli.json")

	require.NoError(t, os.WriteFile(userPath, []byte("{not json"), 0o600))
	writeJSON(t, projectPath, map[string]string{"workspace": "beta"})

	s := NewStoreAt(userPath, projectPath, nil)
	assert.Equal(t, "beta", s.Get(KeyWorkspace))
	assert.Equal(t, "", s.Get(KeyToken))
}

func TestStore_NoUserPathIsReadOnly(t *testing.T) {
	// With no home directory there is nowhere to persist; mutations must
	// still work in memory without error.
	s := NewStoreAt("", "", nil)
	s.Set(KeyWorkspace, "alpha")
	assert.Equal(t, "alpha", s.Get(KeyWorkspace))
	assert.Equal(t, "", s.Path())
}

func TestStore_AllAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "config.json")
	writeJSON(t, userPath, map[string]string{
		"workspace": "stored",
		"project":   "web",
	})

	t.Setenv("BUDDY_WORKSPACE", "env-ws")

	s := NewStoreAt(userPath, "", nil)
	all := s.All()
	assert.Equal(t, "env-ws", all["workspace"])
	assert.Equal(t, "web", all["project"])
}

func TestStore_AllWithSources(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "config.json")
	projectPath := filepath.Join(dir, ".buddy-cli.json")
	writeJSON(t, userPath, map[string]string{"project": "web"})
	writeJSON(t, projectPath, map[string]string{"workspace": "beta"})

	t.Setenv("BUDDY_TOKEN", "env-token")

	env := NewEnvLoader()
	env.sources["BUDDY_TOKEN"] = filepath.Join(dir, ".env")

	s := NewStoreAt(userPath, projectPath, env)
	entries := s.AllWithSources()

	assert.Equal(t, Entry{Value: "web", Source: SourceUser}, entries["project"])
	assert.Equal(t, Entry{Value: "beta", Source: SourceProject}, entries["workspace"])
	assert.Equal(t, Entry{
		Value:  "env-token",
		Source: SourceEnv,
		Path:   filepath.Join(dir, ".env"),
	}, entries["token"])
}
