//go:build opengl

package main

import (
	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/platform"
	"github.com/spaghettifunk/meed/engine/renderer"
	"github.com/spaghettifunk/meed/engine/renderer/opengl"
)

const clientAPI = platform.ClientAPIOpenGL

func newBackend() renderer.Backend {
	return opengl.New()
}

func shaderPath(cfg *core.Config, name string) string {
	return cfg.ShaderPath(name, "")
}
