//go:build !opengl

package main

import (
	"path/filepath"

	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/platform"
	"github.com/spaghettifunk/meed/engine/renderer"
	"github.com/spaghettifunk/meed/engine/renderer/vulkan"
)

const clientAPI = platform.ClientAPIVulkan

func newBackend() renderer.Backend {
	return vulkan.New()
}

// shaderPath points at the SPIR-V that `mage build:shaders` writes next to the GLSL.
func shaderPath(cfg *core.Config, name string) string {
	return cfg.ShaderPath(filepath.Join("vulkan", name), ".spv")
}
