//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the triangle on Vulkan.
func (Run) Vulkan() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine (vulkan)...")
	return goCmd("run", ".")
}

// Runs the triangle on OpenGL.
func (Run) OpenGL() error {
	fmt.Println("Run engine (opengl)...")
	return goCmd("run", "-tags", "opengl", ".")
}
