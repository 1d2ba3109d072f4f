package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint32(1280), cfg.Window.Width)
	assert.Equal(t, uint32(720), cfg.Window.Height)
	assert.False(t, cfg.Window.Fullscreen)
	assert.False(t, cfg.Renderer.VSync)
	assert.Equal(t, 3, cfg.Renderer.BufferCount)
	assert.Equal(t, int64(10000), cfg.FenceTimeout().Milliseconds())
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
name = "cube"

[window]
width = 800
height = 600

[renderer]
backend = "headless"
vsync = true
buffer_count = 2
fence_timeout_ms = 250
clear_color = [1.0, 0.0, 0.0, 1.0]
max_frames = 10

[log]
level = "debug"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "cube", cfg.Name)
	assert.Equal(t, uint32(800), cfg.Window.Width)
	assert.Equal(t, "headless", cfg.Renderer.Backend)
	assert.True(t, cfg.Renderer.VSync)
	assert.Equal(t, 2, cfg.Renderer.BufferCount)
	assert.Equal(t, int64(250), cfg.FenceTimeout().Milliseconds())
	assert.Equal(t, [4]float32{1, 0, 0, 1}, cfg.Renderer.ClearColor)
	assert.Equal(t, uint64(10), cfg.Renderer.MaxFrames)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, "assets", cfg.Renderer.ShaderDir)
}

func TestLoadConfigClampsBufferCount(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "[renderer]\nbuffer_count = 8\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Renderer.BufferCount)

	cfg, err = LoadConfig(writeConfig(t, "[renderer]\nbuffer_count = 1\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Renderer.BufferCount)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "[window]\nwidth = 0\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "[renderer]\nbackend = \"metal\"\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "[renderer]\nbuffer_count = 0\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "[renderer]\nunknown_key = 1\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "name = \n"))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, os.IsNotExist(err))
}

func headlessConfig(t *testing.T, maxFrames uint64) *ApplicationConfig {
	t.Helper()
	dir := t.TempDir()
	blob := []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cube.vert.spv"), blob, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cube.frag.spv"), blob, 0o644))

	cfg := DefaultConfig()
	cfg.Renderer.Backend = "headless"
	cfg.Renderer.ShaderDir = dir
	cfg.Renderer.MaxFrames = maxFrames
	cfg.Log.Level = "error"
	return cfg
}

func renderGame(cfg *ApplicationConfig) *Game {
	return &Game{
		ApplicationConfig: cfg,
		FnRender: func(r *renderer.Renderer, _ float64) error {
			return r.Render()
		},
	}
}

func TestHeadlessRunStopsAtFrameLimit(t *testing.T) {
	g := renderGame(headlessConfig(t, 5))
	var updates int
	g.FnUpdate = func(float64) error {
		updates++
		return nil
	}

	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Run())

	assert.Equal(t, 5, updates)
	stats := e.Renderer().Stats()
	assert.Equal(t, uint64(5), stats.Frame)
	assert.Equal(t, uint64(5), stats.Presents)

	require.NoError(t, e.Shutdown())
	require.NoError(t, e.Shutdown())
}

func TestEscapeStopsTheLoop(t *testing.T) {
	g := renderGame(headlessConfig(t, 0))
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())

	frames := 0
	g.FnUpdate = func(float64) error {
		frames++
		if frames == 3 {
			g.Input.ProcessKey(core.KEY_ESCAPE, true)
		}
		return nil
	}
	require.NoError(t, e.Run())
	assert.Equal(t, 3, frames)
	require.NoError(t, e.Shutdown())
}

func TestFatalRenderErrorEndsRun(t *testing.T) {
	g := renderGame(headlessConfig(t, 0))
	boom := core.Fail(core.ErrGPUHang, "WaitForSlot", errors.New("stuck"))
	g.FnRender = func(*renderer.Renderer, float64) error { return boom }

	shutdown := false
	g.FnShutdown = func() error {
		shutdown = true
		return nil
	}

	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	err = e.Run()
	assert.ErrorIs(t, err, core.ErrGPUHang)
	require.NoError(t, e.Shutdown())
	assert.True(t, shutdown)
	assert.Zero(t, e.Renderer().Stats().Frame)
}

func TestUpdateErrorEndsRunAndAllowsShutdown(t *testing.T) {
	g := renderGame(headlessConfig(t, 0))
	boom := errors.New("update failed")
	g.FnUpdate = func(float64) error { return boom }

	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.ErrorIs(t, e.Run(), boom)
	require.NoError(t, e.Shutdown())
}

func TestInitializeFailsWithoutShaders(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Renderer.Backend = "headless"
	cfg.Renderer.ShaderDir = t.TempDir()
	cfg.Log.Level = "error"

	e, err := New(renderGame(cfg))
	require.NoError(t, err)
	err = e.Initialize()
	assert.ErrorIs(t, err, core.ErrInitialization)
	assert.NoError(t, e.Shutdown())
}

func TestRunRequiresInitialize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Renderer.Backend = "headless"
	e, err := New(renderGame(cfg))
	require.NoError(t, err)
	assert.ErrorIs(t, e.Run(), core.ErrInitialization)
	assert.NoError(t, e.Shutdown())
}
