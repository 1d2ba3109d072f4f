package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/trajectory/engine/assets/loaders"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newManager(t *testing.T, dir string) *AssetManager {
	t.Helper()
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(dir))
	t.Cleanup(func() { _ = am.Shutdown() })
	return am
}

func TestAssetManagerIndexesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "shaders", "cube.vert.spv"), []byte{3, 2, 35, 7, 0, 0, 1, 0})
	writeFile(t, filepath.Join(dir, "shaders", "cube.vert"), []byte("#version 450"))
	writeFile(t, filepath.Join(dir, "data.bin"), []byte{1, 0, 0, 0})

	am := newManager(t, dir)

	assert.Equal(t, 2, am.Len())
	info, ok := am.Lookup("shaders/cube.vert.spv")
	require.True(t, ok)
	assert.Equal(t, loaders.ResourceTypeShader, info.Type)

	_, ok = am.Lookup("shaders/cube.vert")
	assert.False(t, ok)
}

func TestLoadShaderByName(t *testing.T) {
	dir := t.TempDir()
	blob := []byte{3, 2, 35, 7, 0, 0, 1, 0}
	writeFile(t, filepath.Join(dir, "shaders", "cube.vert.spv"), blob)
	writeFile(t, filepath.Join(dir, "cube.frag.spv"), blob)
	writeFile(t, filepath.Join(dir, "broken.frag.spv"), []byte{1, 2, 3})

	am := newManager(t, dir)

	data, err := am.LoadShader("cube.vert")
	require.NoError(t, err)
	assert.Equal(t, blob, data)

	data, err = am.LoadShader("cube.frag.spv")
	require.NoError(t, err)
	assert.Equal(t, blob, data)

	data, err = am.LoadShader(filepath.Join("shaders", "cube.vert"))
	require.NoError(t, err)
	assert.Equal(t, blob, data)

	_, err = am.LoadShader("missing.vert")
	assert.ErrorIs(t, err, ErrAssetNotFound)

	_, err = am.LoadShader("broken.frag")
	assert.ErrorIs(t, err, loaders.ErrUnalignedShader)
}

func TestShaderKeysUseForwardSlashes(t *testing.T) {
	assert.Equal(t, []string{"cube.vert.spv", "shaders/cube.vert.spv"}, shaderKeys("cube.vert"))
	assert.Equal(t, []string{"cube.frag.spv", "shaders/cube.frag.spv"}, shaderKeys("cube.frag.spv"))
	assert.Equal(t, []string{"fx/glow.frag.spv", "shaders/fx/glow.frag.spv"},
		shaderKeys(filepath.Join("fx", "glow.frag")))
}

func TestAssetManagerPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	am := newManager(t, dir)
	require.Equal(t, 0, am.Len())

	writeFile(t, filepath.Join(dir, "late.frag.spv"), []byte{3, 2, 35, 7})
	require.Eventually(t, func() bool {
		_, ok := am.Lookup("late.frag.spv")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "late.frag.spv")))
	require.Eventually(t, func() bool {
		_, ok := am.Lookup("late.frag.spv")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownIsIdempotent(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Shutdown())
	require.NoError(t, am.Shutdown())
}
