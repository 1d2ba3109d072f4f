package engine

import (
	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	// Set by the engine before FnInitialize.
	Renderer *renderer.Renderer
	Input    *core.Input
	State    interface{}

	FnBoot       Boot
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnShutdown   Shutdown
}

type Boot func() error
type Initialize func() error
type Update func(deltaTime float64) error
type Render func(r *renderer.Renderer, deltaTime float64) error
type Shutdown func() error
