/*
MEED draws a colored triangle with either the Vulkan backend (default) or the
OpenGL backend (-tags opengl).
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/meed/engine"
	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/testbed"
)

func main() {
	cfg, err := core.LoadConfig(core.DefaultConfigPath)
	if err != nil {
		core.LogFatal("failed to load config: %s", err)
	}
	core.Must(core.SetLogLevel(cfg.Log.Level))

	app := &engine.ApplicationConfig{
		Config:    cfg,
		ClientAPI: clientAPI,
		Backend:   newBackend(),
	}
	tb, err := testbed.NewTriangleGame(app, func(name string) string {
		return shaderPath(cfg, name)
	})
	if err != nil {
		core.LogFatal("failed to create testbed: %s", err)
	}

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal("failed to create engine: %s", err)
	}

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("failed to initialize engine: %s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		<-sigCh
		core.LogInfo("signal received, stopping...")
		e.Stop()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown failed: %s", err)
	}
	if runErr != nil {
		core.LogFatal("engine stopped: %s", runErr)
	}
}
