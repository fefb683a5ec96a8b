//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/target"
)

const (
	shaderCompiler = "glslc"
	spirvExt       = ".spv"
)

var shaderStages = []string{"*.vert", "*.frag"}

// vulkanShaderSources lists the GLSL stages under shaders/vulkan.
func vulkanShaderSources() ([]string, error) {
	var sources []string
	for _, pattern := range shaderStages {
		matches, err := filepath.Glob(filepath.Join("shaders", "vulkan", pattern))
		if err != nil {
			return nil, err
		}
		sources = append(sources, matches...)
	}
	return sources, nil
}

// compileShaders writes src.spv next to every source older than its output.
func compileShaders(sources []string) error {
	var compiled int
	for _, src := range sources {
		dst := src + spirvExt
		stale, err := target.Path(dst, src)
		if err != nil {
			return fmt.Errorf("shader %s: %w", src, err)
		}
		if !stale {
			continue
		}
		if err := run(true, shaderCompiler, src, "-o", dst); err != nil {
			return fmt.Errorf("shader %s: %w", src, err)
		}
		compiled++
	}
	fmt.Printf("Shaders: %d compiled, %d up to date\n", compiled, len(sources)-compiled)
	return nil
}

// goCmd runs the go tool with its output on the terminal.
func goCmd(args ...string) error {
	return run(true, "go", args...)
}

// run executes name with args. Output goes to the terminal when stream is set
// or mage runs verbose; otherwise it is printed only when the command fails.
func run(stream bool, name string, args ...string) error {
	fmt.Printf("Executing: %s %s\n", name, strings.Join(args, " "))
	cmd := exec.Command(name, args...)

	var out bytes.Buffer
	stream = stream || mg.Verbose()
	if stream {
		cmd.Stdout = io.MultiWriter(&out, os.Stdout)
		cmd.Stderr = io.MultiWriter(&out, os.Stderr)
	} else {
		cmd.Stdout = &out
		cmd.Stderr = &out
	}

	if err := cmd.Run(); err != nil {
		if !stream {
			fmt.Printf("... %s output:\n%s\n", name, out.String())
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
