package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/meed/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// ClientAPI selects what the window is created for.
type ClientAPI int

const (
	// ClientAPIVulkan creates a window without a GL context.
	ClientAPIVulkan ClientAPI = iota
	// ClientAPIOpenGL creates a window with a 4.1 core context made current.
	ClientAPIOpenGL
)

type WindowEventType int

const (
	WindowEventNone WindowEventType = iota
	WindowEventClose
)

type WindowEvent struct {
	Type WindowEventType
}

type Window struct {
	Width       uint32
	Height      uint32
	Title       string
	ShouldClose bool

	api    ClientAPI
	handle *glfw.Window
}

var initialized bool

// Initialize starts the windowing system. Call once before WindowCreate.
func Initialize() error {
	if initialized {
		return fmt.Errorf("%w: platform initialized twice", core.ErrPrecondition)
	}
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize glfw: %w", err)
	}
	initialized = true
	return nil
}

func Shutdown() {
	if !initialized {
		return
	}
	glfw.Terminate()
	initialized = false
}

func WindowCreate(width, height uint32, title string, api ClientAPI) (*Window, error) {
	if !initialized {
		return nil, fmt.Errorf("%w: window created before platform initialize", core.ErrPrecondition)
	}

	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.AutoIconify, glfw.False)
	switch api {
	case ClientAPIOpenGL:
		glfw.WindowHint(glfw.ContextVersionMajor, 4)
		glfw.WindowHint(glfw.ContextVersionMinor, 1)
		glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
		glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
		glfw.WindowHint(glfw.DoubleBuffer, glfw.True)
	default:
		glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.
	}

	handle, err := glfw.CreateWindow(int(width), int(height), title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	w := &Window{
		Width:  width,
		Height: height,
		Title:  title,
		api:    api,
		handle: handle,
	}

	if api == ClientAPIOpenGL {
		handle.MakeContextCurrent()
		glfw.SwapInterval(1)
	}

	handle.SetKeyCallback(w.keyCallback)
	handle.SetFramebufferSizeCallback(w.framebufferSizeCallback)

	core.LogInfo("Window '%s' created (%dx%d).", title, width, height)
	return w, nil
}

// PollEvents pumps the OS queue and reports whether the window was asked to close.
func (w *Window) PollEvents() WindowEvent {
	glfw.PollEvents()
	if w.handle.ShouldClose() {
		w.ShouldClose = true
		return WindowEvent{Type: WindowEventClose}
	}
	return WindowEvent{Type: WindowEventNone}
}

func (w *Window) Destroy() {
	if w.handle == nil {
		return
	}
	w.handle.Destroy()
	w.handle = nil
}

// FramebufferSize is the drawable size in pixels. It differs from Width/Height on HiDPI displays.
func (w *Window) FramebufferSize() (uint32, uint32) {
	fw, fh := w.handle.GetFramebufferSize()
	return uint32(fw), uint32(fh)
}

// SwapBuffers presents the back buffer of an OpenGL window.
func (w *Window) SwapBuffers() {
	w.handle.SwapBuffers()
}

// GLProcAddress resolves OpenGL entry points for the current context.
func (w *Window) GLProcAddress(name string) unsafe.Pointer {
	return glfw.GetProcAddress(name)
}

// VulkanProcAddress returns vkGetInstanceProcAddr as loaded by glfw.
func (w *Window) VulkanProcAddress() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

// RequiredInstanceExtensions lists the surface extensions this platform needs.
func (w *Window) RequiredInstanceExtensions() []string {
	return w.handle.GetRequiredInstanceExtensions()
}

// CreateVulkanSurface creates the platform surface for instance and returns the raw handle.
func (w *Window) CreateVulkanSurface(instance interface{}) (uintptr, error) {
	if w.api != ClientAPIVulkan {
		return 0, fmt.Errorf("%w: vulkan surface requested on a non-vulkan window", core.ErrPrecondition)
	}
	surface, err := w.handle.CreateWindowSurface(instance, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: vulkan surface creation failed: %s", core.ErrGPUCall, err)
	}
	return surface, nil
}

func (w *Window) keyCallback(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		w.handle.SetShouldClose(true)
	}
}

func (w *Window) framebufferSizeCallback(_ *glfw.Window, width, height int) {
	core.LogDebug("Framebuffer resized: %dx%d", width, height)
}
