package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestEnvLoader_ChildWinsOverParent(t *testing.T) {
	parent := t.TempDir()
	child := filepath.Join(parent, "app")
	require.NoError(t, os.Mkdir(child, 0o755))

	writeEnv(t, parent, "SHARED_VAR=from-parent\nPARENT_ONLY=yes\n")
	childPath := writeEnv(t, child, "SHARED_VAR=from-child\n")

	t.Setenv("SHARED_VAR", "")
	t.Setenv("PARENT_ONLY", "")
	os.Unsetenv("SHARED_VAR")
	os.Unsetenv("PARENT_ONLY")

	l := NewEnvLoader()
	l.LoadRecursive(child)

	assert.Equal(t, "from-child", os.Getenv("SHARED_VAR"))
	assert.Equal(t, "yes", os.Getenv("PARENT_ONLY"))
	assert.Equal(t, childPath, l.Source("SHARED_VAR"))
}

func TestEnvLoader_DoesNotOverrideProcessEnv(t *testing.T) {
	dir := t.TempDir()
	writeEnv(t, dir, "PRESET_VAR=from-file\n")

	t.Setenv("PRESET_VAR", "from-process")

	l := NewEnvLoader()
	l.LoadRecursive(dir)

	assert.Equal(t, "from-process", os.Getenv("PRESET_VAR"))
	assert.Equal(t, "", l.Source("PRESET_VAR"))
}

func TestEnvLoader_SourceAttribution(t *testing.T) {
	dir := t.TempDir()
	path := writeEnv(t, dir, "ATTRIBUTED_VAR=v\n# comment line\n\nexport EXPORTED_VAR=w\n")

	t.Setenv("ATTRIBUTED_VAR", "")
	t.Setenv("EXPORTED_VAR", "")
	os.Unsetenv("ATTRIBUTED_VAR")
	os.Unsetenv("EXPORTED_VAR")

	l := NewEnvLoader()
	l.LoadRecursive(dir)

	sources := l.Sources()
	assert.Equal(t, path, sources["ATTRIBUTED_VAR"])
	assert.Equal(t, path, sources["EXPORTED_VAR"])
	assert.Equal(t, "w", os.Getenv("EXPORTED_VAR"))
}

func TestEnvLoader_MissingFilesAreSkipped(t *testing.T) {
	dir := t.TempDir()

	l := NewEnvLoader()
	l.LoadRecursive(dir)

	assert.Empty(t, l.Sources())
}
