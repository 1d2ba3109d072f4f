package engine

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/trajectory/engine/assets"
	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/platform"
	"github.com/spaghettifunk/trajectory/engine/renderer"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu/headless"
	"github.com/spaghettifunk/trajectory/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Frame pacing for backends without vertical sync.
const targetFrameSeconds float64 = 1.0 / 60.0

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *ApplicationConfig
	backend      renderer.RendererType

	isRunning atomic.Bool

	platform     *platform.Platform
	input        *core.Input
	assetManager *assets.AssetManager
	factory      gpu.Factory
	renderer     *renderer.Renderer

	clock    *core.Clock
	metrics  *core.FrameMetrics
	lastTime float64
	lastLog  float64
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = DefaultConfig()
	}
	cfg := g.ApplicationConfig
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := renderer.ParseRendererType(cfg.Renderer.Backend)
	if err != nil {
		return nil, err
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		backend:      backend,
		input:        core.NewInput(),
		assetManager: am,
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
	}
	e.input.OnKey(e.onKey)
	if backend == renderer.Vulkan {
		e.platform = platform.New(e.input.ProcessKey)
	}
	g.Input = e.input
	return e, nil
}

func (e *Engine) Initialize() error {
	cfg := e.config
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogWarn("unknown log level %q, keeping %s", cfg.Log.Level, core.GetLogLevel())
	}

	e.currentStage = EngineStageBooting
	if e.gameInstance.FnBoot != nil {
		if err := e.gameInstance.FnBoot(); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageBootComplete

	e.currentStage = EngineStageInitializing
	if e.platform != nil {
		if err := e.platform.Startup(platform.WindowConfig{
			Title:      cfg.Name,
			Width:      cfg.Window.Width,
			Height:     cfg.Window.Height,
			PosX:       cfg.Window.PosX,
			PosY:       cfg.Window.PosY,
			Fullscreen: cfg.Window.Fullscreen,
		}); err != nil {
			return core.Fail(core.ErrInitialization, "PlatformStartup", err)
		}
	}

	if err := e.assetManager.Initialize(cfg.Renderer.ShaderDir); err != nil {
		return core.Fail(core.ErrInitialization, "AssetManagerInitialize", err)
	}

	var window gpu.WindowHandle
	switch e.backend {
	case renderer.Vulkan:
		f, err := vulkan.NewFactory(vulkan.Options{
			AppName:    cfg.Name,
			Window:     e.platform.Window,
			Validation: cfg.Renderer.Validation,
		})
		if err != nil {
			return core.Fail(core.ErrInitialization, "CreateFactory", err)
		}
		e.factory = f
		window = e.platform.Window
	case renderer.Headless:
		e.factory = headless.NewFactory(headless.Options{})
	}

	e.renderer = renderer.New(e.factory, e.assetManager, renderer.Config{
		Width:        cfg.Window.Width,
		Height:       cfg.Window.Height,
		Window:       window,
		Fullscreen:   cfg.Window.Fullscreen,
		VSync:        cfg.Renderer.VSync,
		BufferCount:  cfg.Renderer.BufferCount,
		FenceTimeout: cfg.FenceTimeout(),
		ClearColor:   cfg.Renderer.ClearColor,
	})
	if err := e.renderer.Initialize(); err != nil {
		return err
	}
	e.gameInstance.Renderer = e.renderer

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized with the %s backend", e.backend)
	return nil
}

// Run drives frames until the window closes, Stop is called or the frame
// limit is reached. Only fatal render errors are returned.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return core.Fail(core.ErrInitialization, "Run", errors.New("engine is not initialized"))
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	maxFrames := e.config.Renderer.MaxFrames
	for e.isRunning.Load() {
		if e.platform != nil && !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStart := time.Now()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err)
				return err
			}
		}

		// Call the game's render routine.
		if err := e.gameInstance.FnRender(e.renderer, delta); err != nil {
			if renderer.IsFatal(err) {
				core.LogError("Game render failed, shutting down: %s", err)
				return err
			}
			core.LogWarn("frame dropped: %s", err)
		}

		frameElapsed := time.Since(frameStart).Seconds()
		e.metrics.Update(frameElapsed)
		if currentTime-e.lastLog >= 1 {
			fps, ms := e.metrics.Frame()
			core.LogDebug("FPS: %5.1f (%4.1fms)", fps, ms)
			e.lastLog = currentTime
		}

		// Give the rest of the frame back to the OS when nothing waits for vblank.
		if e.backend == renderer.Headless {
			if remaining := targetFrameSeconds - frameElapsed; remaining > 0 {
				time.Sleep(time.Duration(remaining * float64(time.Second)))
			}
		}

		// Input state copying happens after every input of this frame was recorded.
		e.input.Update()
		e.lastTime = currentTime

		if maxFrames > 0 && e.renderer.Stats().Frame >= maxFrames {
			core.LogInfo("frame limit of %d reached", maxFrames)
			e.isRunning.Store(false)
		}
	}
	return nil
}

// Stop makes Run return after the current frame. Safe to call from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

// Shutdown releases everything Initialize created, in reverse order. It is
// safe after a failed Initialize.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.renderer != nil {
		errs = append(errs, e.renderer.Shutdown())
	}
	if e.factory != nil {
		e.factory.Release()
	}
	errs = append(errs, e.assetManager.Shutdown())
	if e.platform != nil {
		errs = append(errs, e.platform.Shutdown())
	}
	return errors.Join(errs...)
}

func (e *Engine) Renderer() *renderer.Renderer { return e.renderer }

func (e *Engine) onKey(key core.KeyCode, pressed bool) {
	if !pressed {
		return
	}
	if key == core.KEY_ESCAPE {
		core.LogInfo("ESC pressed, shutting down.")
		e.Stop()
		if e.platform != nil {
			e.platform.RequestClose()
		}
	}
}
