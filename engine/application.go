package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer"
)

const (
	minBufferCount = 2
	maxBufferCount = 3
)

type WindowConfig struct {
	Width      uint32 `toml:"width"`
	Height     uint32 `toml:"height"`
	Fullscreen bool   `toml:"fullscreen"`
	// Window starting position; 0,0 centers the window.
	PosX int `toml:"pos_x"`
	PosY int `toml:"pos_y"`
}

type RendererConfig struct {
	Backend        string     `toml:"backend"` // vulkan or headless
	VSync          bool       `toml:"vsync"`
	BufferCount    int        `toml:"buffer_count"`
	FenceTimeoutMS int        `toml:"fence_timeout_ms"`
	ClearColor     [4]float32 `toml:"clear_color"`
	ShaderDir      string     `toml:"shader_dir"`
	Validation     bool       `toml:"validation"`
	// Stop after this many frames. 0 runs until quit.
	MaxFrames uint64 `toml:"max_frames"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type ApplicationConfig struct {
	// The application name used in windowing.
	Name     string         `toml:"name"`
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Log      LogConfig      `toml:"log"`
}

func DefaultConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name: "Landing Trajectory",
		Window: WindowConfig{
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			Backend:        "vulkan",
			BufferCount:    3,
			FenceTimeoutMS: 10000,
			ClearColor:     [4]float32{0.0, 0.2, 0.4, 1.0},
			ShaderDir:      "assets",
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads path over the defaults. Unknown keys are rejected.
func LoadConfig(path string) (*ApplicationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("%s:%d:%d: %w", path, row, col, err)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Clamp()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Clamp pulls the buffer count into the supported range.
func (c *ApplicationConfig) Clamp() {
	if c.Renderer.BufferCount == 0 {
		return
	}
	n := core.Clamp(c.Renderer.BufferCount, minBufferCount, maxBufferCount)
	if n != c.Renderer.BufferCount {
		core.LogWarn("buffer_count %d is out of range, using %d", c.Renderer.BufferCount, n)
		c.Renderer.BufferCount = n
	}
}

func (c *ApplicationConfig) Validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return fmt.Errorf("window size %dx%d is invalid", c.Window.Width, c.Window.Height)
	}
	if c.Renderer.BufferCount < minBufferCount || c.Renderer.BufferCount > maxBufferCount {
		return fmt.Errorf("buffer_count must be between %d and %d, got %d", minBufferCount, maxBufferCount, c.Renderer.BufferCount)
	}
	if _, err := renderer.ParseRendererType(c.Renderer.Backend); err != nil {
		return err
	}
	if c.Renderer.FenceTimeoutMS < 0 {
		return fmt.Errorf("fence_timeout_ms must not be negative")
	}
	return nil
}

func (c *ApplicationConfig) FenceTimeout() time.Duration {
	return time.Duration(c.Renderer.FenceTimeoutMS) * time.Millisecond
}
