package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Storage.Root)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, []string{"*.blend", "*.json"}, cfg.Watch.Patterns)
	assert.Equal(t, filepath.Join(".", ".meta", "database.db"), cfg.DatabasePath())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	yaml := `
storage:
  root: /assets/library
  database_path: /assets/meta.db
log:
  level: debug
watch:
  patterns:
    - "*.blend"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assetvault.yml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/assets/library", cfg.Storage.Root)
	assert.Equal(t, "/assets/meta.db", cfg.DatabasePath())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"*.blend"}, cfg.Watch.Patterns)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	yaml := "log:\n  level: verbose\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assetvault.yml"), []byte(yaml), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestFindStorageRootWalksUp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "assetvault.yml"), []byte("{}"), 0o644))

	nested := filepath.Join(root, "library", "meshes", "Sword")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	restore := chdir(t, nested)
	defer restore()

	found, err := FindStorageRoot()
	require.NoError(t, err)

	// TempDir may sit behind a symlink, so compare resolved paths.
	wantResolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	foundResolved, err := filepath.EvalSymlinks(found)
	require.NoError(t, err)
	assert.Equal(t, wantResolved, foundResolved)
}

func TestFindStorageRootNotFound(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	_, err := FindStorageRoot()
	assert.Error(t, err)
}

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(prev) }
}
