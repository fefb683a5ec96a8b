// Package opengl renders through an OpenGL 4.1 core context owned by the window.
package opengl

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/platform"
	"github.com/spaghettifunk/meed/engine/releasestack"
	"github.com/spaghettifunk/meed/engine/renderer"
)

// surface is the part of the window the backend draws to.
type surface interface {
	FramebufferSize() (uint32, uint32)
	SwapBuffers()
	GLProcAddress(name string) unsafe.Pointer
}

type Backend struct {
	gl      glFuncs
	surface surface

	releaseStack *releasestack.ReleaseStack
	initialized  bool

	frameIndex uint32
	current    *frame
}

func New() *Backend {
	return &Backend{gl: coreGL{}}
}

func newBackend(g glFuncs, s surface) *Backend {
	return &Backend{gl: g, surface: s}
}

// Initialize loads the GL entry points for the context current on window.
func (b *Backend) Initialize(window *platform.Window, cfg *core.Config) error {
	if b.initialized {
		return fmt.Errorf("%w: opengl backend initialized twice", core.ErrPrecondition)
	}
	if window != nil {
		b.surface = window
	}
	if b.surface == nil {
		return fmt.Errorf("%w: opengl backend needs a window", core.ErrPrecondition)
	}

	if err := b.gl.Init(b.surface.GLProcAddress); err != nil {
		return fmt.Errorf("%w: failed to load OpenGL: %s", core.ErrGPUCall, err)
	}
	core.LogInfo("OpenGL version: %s", b.gl.GetString(gl.VERSION))
	core.LogInfo("OpenGL renderer: %s", b.gl.GetString(gl.RENDERER))

	b.releaseStack = releasestack.New()
	if err := b.releaseStack.PushFunc(func() {
		b.gl.BindVertexArray(0)
		b.gl.UseProgram(0)
		core.LogDebug("OpenGL state unbound.")
	}); err != nil {
		return err
	}

	b.frameIndex = 0
	b.current = nil
	b.initialized = true
	core.LogInfo("OpenGL renderer initialized successfully.")
	return nil
}

func (b *Backend) Shutdown() error {
	if !b.initialized {
		return fmt.Errorf("%w: opengl backend shut down before initialize", core.ErrPrecondition)
	}
	b.initialized = false
	b.current = nil
	return b.releaseStack.Destroy()
}

// ClearScreen clears the default framebuffer right away.
func (b *Backend) ClearScreen(color mgl32.Vec4) {
	if !b.initialized {
		return
	}
	b.gl.ClearColor(color.X(), color.Y(), color.Z(), color.W())
	b.gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

func (b *Backend) StartFrame() (renderer.Frame, error) {
	if !b.initialized {
		return nil, fmt.Errorf("%w: start frame before initialize", core.ErrPrecondition)
	}
	if b.current != nil {
		return nil, fmt.Errorf("%w: frame %d is still open", core.ErrPrecondition, b.current.index)
	}

	width, height := b.surface.FramebufferSize()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: framebuffer is %dx%d", core.ErrSwapchainBooting, width, height)
	}
	b.gl.Viewport(0, 0, int32(width), int32(height))

	b.current = &frame{backend: b, index: b.frameIndex, open: true}
	return b.current, nil
}

func (b *Backend) EndFrame(f renderer.Frame) error {
	fr, err := b.openFrame(f)
	if err != nil {
		return err
	}
	fr.open = false
	b.current = nil
	return checkError(b.gl, "end frame")
}

func (b *Backend) Present() error {
	if !b.initialized {
		return fmt.Errorf("%w: present before initialize", core.ErrPrecondition)
	}
	b.surface.SwapBuffers()
	b.frameIndex = (b.frameIndex + 1) % renderer.FramesInFlight
	return nil
}

// WaitIdle has nothing to wait for; buffer swaps already synchronize with the driver.
func (b *Backend) WaitIdle() error {
	return nil
}

func (b *Backend) Conventions() renderer.Conventions {
	return renderer.Conventions{FlipY: false}
}

// openFrame returns f as this backend's frame when it is the one being recorded.
func (b *Backend) openFrame(f renderer.Frame) (*frame, error) {
	fr, ok := f.(*frame)
	if !ok || fr == nil || fr.backend != b {
		return nil, fmt.Errorf("%w: frame does not belong to the opengl backend", core.ErrPrecondition)
	}
	if !fr.open || b.current != fr {
		return nil, fmt.Errorf("%w: frame %d already ended", core.ErrPrecondition, fr.index)
	}
	return fr, nil
}

type frame struct {
	backend *Backend
	index   uint32
	open    bool
}

func (f *frame) Index() uint32 {
	return f.index
}

func (f *frame) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if _, err := f.backend.openFrame(f); err != nil {
		return err
	}
	if firstInstance != 0 {
		return fmt.Errorf("%w: OpenGL 4.1 cannot offset the first instance", core.ErrPrecondition)
	}
	if instanceCount <= 1 {
		f.backend.gl.DrawArrays(gl.TRIANGLES, int32(firstVertex), int32(vertexCount))
		return nil
	}
	f.backend.gl.DrawArraysInstanced(gl.TRIANGLES, int32(firstVertex), int32(vertexCount), int32(instanceCount))
	return nil
}
