package testbed

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/trajectory/engine"
	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer"
)

// Radians per second.
const rotationSpeed = 0.8

type TestGame struct {
	*engine.Game
}

type gameState struct {
	angle  float32
	paused bool
	frames uint64
}

func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State:             &gameState{},
		},
	}

	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Boot() error {
	core.LogInfo("booting testbed...")
	return nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")
	g.Input.OnKey(g.onKey)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	if !state.paused {
		state.angle += float32(rotationSpeed * deltaTime)
	}

	cam := g.Renderer.Camera()
	if cam == nil {
		return nil
	}
	if g.Input.IsKeyDown(core.KEY_UP) && cam.Eye.Len() > 1.5 {
		cam.Eye = cam.Eye.Mul(1 - float32(deltaTime))
	}
	if g.Input.IsKeyDown(core.KEY_DOWN) {
		cam.Eye = cam.Eye.Mul(1 + float32(deltaTime))
	}
	return nil
}

func (g *TestGame) Render(r *renderer.Renderer, deltaTime float64) error {
	state := g.State.(*gameState)
	r.SetModel(Model(state.angle))
	state.frames++
	return r.Render()
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	core.LogInfo("testbed rendered %d frames", state.frames)
	return nil
}

// Model spins the cube around Y, with a slower tumble around X.
func Model(angle float32) mgl32.Mat4 {
	return mgl32.HomogRotate3DY(angle).Mul4(mgl32.HomogRotate3DX(angle * 0.5))
}

func (g *TestGame) onKey(key core.KeyCode, pressed bool) {
	if !pressed {
		return
	}
	state := g.State.(*gameState)
	switch key {
	case core.KEY_P:
		state.paused = !state.paused
		core.LogDebug("rotation paused: %t", state.paused)
	case core.KEY_A:
		// Example on checking for a key
		core.LogDebug("Explicit - A key pressed!")
	}
}
