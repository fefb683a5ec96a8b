//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles every stale Vulkan GLSL shader under shaders/vulkan to SPIR-V.
func (Build) Shaders() error {
	sources, err := vulkanShaderSources()
	if err != nil {
		return err
	}
	return compileShaders(sources)
}

// Builds the binary with the Vulkan backend.
func (Build) Vulkan() error {
	mg.Deps(Build.Shaders)
	return goCmd("build", "-o", filepath.Join("bin", "meed"), ".")
}

// Builds the binary with the OpenGL backend.
func (Build) OpenGL() error {
	return goCmd("build", "-tags", "opengl", "-o", filepath.Join("bin", "meed-gl"), ".")
}
