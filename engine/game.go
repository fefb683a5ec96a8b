package engine

import (
	"github.com/spaghettifunk/meed/engine/renderer"
)

// Game is the application the engine drives. Any callback may be nil.
type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnShaderChange  OnShaderChange
	FnShutdown        Shutdown
}

// Initialize runs once the renderer is up; GPU resources are created here.
type Initialize func(r *renderer.Renderer) error
type Update func(deltaTime float64) error

// Render records the draws of one open frame.
type Render func(frame renderer.Frame, deltaTime float64) error

// OnShaderChange runs between frames after the device went idle.
type OnShaderChange func(path string) error

// Shutdown runs before the renderer is torn down. The device is idle.
type Shutdown func() error
