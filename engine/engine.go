package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/meed/engine/assets"
	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/platform"
	"github.com/spaghettifunk/meed/engine/renderer"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it created
	EngineStageShutdown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	case EngineStageShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("Stage(%d)", uint8(s))
	}
}

// metricsInterval is how often, in seconds, frame metrics are logged.
const metricsInterval = 1.0

type Engine struct {
	currentStage Stage
	gameInstance *Game
	stopRequest  atomic.Bool

	window   *platform.Window
	renderer *renderer.Renderer
	watcher  *assets.ShaderWatcher

	clock       *core.Clock
	lastTime    float64
	lastMetrics float64
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil || g.ApplicationConfig.Config == nil || g.ApplicationConfig.Backend == nil {
		return nil, fmt.Errorf("%w: game needs an application config with a config and a backend", core.ErrPrecondition)
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		clock:        core.NewClock(),
	}, nil
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("%w: engine initialize while %s", core.ErrPrecondition, e.currentStage)
	}
	e.currentStage = EngineStageInitializing
	app := e.gameInstance.ApplicationConfig
	cfg := app.Config

	if err := platform.Initialize(); err != nil {
		return err
	}

	w, err := platform.WindowCreate(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, app.ClientAPI)
	if err != nil {
		return err
	}
	e.window = w

	e.renderer = renderer.New(app.Backend)
	if err := e.renderer.Initialize(e.window, cfg); err != nil {
		return err
	}

	if cfg.Shaders.Watch {
		watcher, err := assets.NewShaderWatcher(cfg.Shaders.Dir)
		if err != nil {
			return err
		}
		e.watcher = watcher
		core.LogInfo("Watching %s for shader changes.", cfg.Shaders.Dir)
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.renderer); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// Stop asks Run to return after the current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	e.stopRequest.Store(true)
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("%w: engine run while %s", core.ErrPrecondition, e.currentStage)
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()
	e.lastMetrics = e.lastTime

	for !e.stopRequest.Load() {
		if ev := e.window.PollEvents(); ev.Type == platform.WindowEventClose {
			core.LogInfo("Window close requested.")
			break
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if err := e.reloadShaders(); err != nil {
			return err
		}

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				return fmt.Errorf("game update failed: %w", err)
			}
		}

		if err := e.renderer.DrawFrame(func(frame renderer.Frame) error {
			if e.gameInstance.FnRender == nil {
				return nil
			}
			return e.gameInstance.FnRender(frame, delta)
		}); err != nil {
			return fmt.Errorf("game render failed: %w", err)
		}

		if currentTime-e.lastMetrics >= metricsInterval {
			m := e.renderer.Metrics()
			core.LogInfo("FPS: %.0f, frame time: %.3fms", m.FPS(), m.FrameTime())
			e.lastMetrics = currentTime
		}
		e.lastTime = currentTime
	}
	return nil
}

// reloadShaders hands every pending shader change to the game once the GPU is done with the old pipeline.
func (e *Engine) reloadShaders() error {
	if e.watcher == nil || e.gameInstance.FnOnShaderChange == nil {
		return nil
	}
	changes := e.watcher.Pending()
	if len(changes) == 0 {
		return nil
	}
	if err := e.renderer.WaitIdle(); err != nil {
		return err
	}
	for _, c := range changes {
		core.LogInfo("Shader changed: %s", c.Path)
		if err := e.gameInstance.FnOnShaderChange(c.Path); err != nil {
			return fmt.Errorf("shader reload of %s failed: %w", c.Path, err)
		}
	}
	return nil
}

// Shutdown releases what Initialize created, newest first. It is safe after a
// failed Initialize.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown || e.currentStage == EngineStageShuttingDown {
		return fmt.Errorf("%w: engine shut down twice", core.ErrPrecondition)
	}
	e.currentStage = EngineStageShuttingDown

	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	if e.renderer != nil {
		if err := e.renderer.WaitIdle(); err != nil {
			core.LogWarn("wait idle before shutdown failed: %s", err)
		}
		if e.gameInstance.FnShutdown != nil {
			errs = append(errs, e.gameInstance.FnShutdown())
		}
		errs = append(errs, e.renderer.Shutdown())
	}
	if e.window != nil {
		e.window.Destroy()
	}
	platform.Shutdown()

	e.currentStage = EngineStageShutdown
	core.LogInfo("Engine shut down.")
	return errors.Join(errs...)
}
