package vulkan

import (
	"fmt"

	vk "github.com/Eiton/vulkan"

	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/platform"
	"github.com/spaghettifunk/meed/engine/releasestack"
)

// Context owns every object the bootstrap creates. It lives from a successful
// Initialize until Shutdown and is torn down through its release stack.
type Context struct {
	Window *platform.Window
	Config *core.Config

	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugCallback vk.DebugReportCallback

	Device *Device

	// Swapchain is replaced on recreation; the release stack always frees the current one.
	Swapchain *Swapchain

	// CommandPools holds one pool per distinct queue family in use.
	CommandPools map[uint32]vk.CommandPool

	GraphicsCommandBuffers []*CommandBuffer
	TransferCommandBuffer  *CommandBuffer

	ImageAvailableSemaphores []vk.Semaphore
	RenderFinishedSemaphores []vk.Semaphore
	InFlightFences           []*Fence

	CurrentFrame uint32

	releaseStack *releasestack.ReleaseStack
}

func newContext(window *platform.Window, cfg *core.Config) *Context {
	return &Context{
		Window:       window,
		Config:       cfg,
		Allocator:    nil,
		CommandPools: map[uint32]vk.CommandPool{},
		releaseStack: releasestack.New(),
	}
}

// deferRelease registers release to run when the context is destroyed.
func (c *Context) deferRelease(release func()) error {
	return c.releaseStack.PushFunc(release)
}

func (c *Context) GraphicsPool() vk.CommandPool {
	return c.CommandPools[c.Device.Families.Graphics]
}

func (c *Context) TransferPool() vk.CommandPool {
	return c.CommandPools[c.Device.Families.Transfer]
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that has
// every bit of propertyFlags.
func (c *Context) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	index, ok := findMemoryType(c.Device.MemoryTypes, typeFilter, propertyFlags)
	if !ok {
		return 0, fmt.Errorf("%w: no memory type matches filter 0x%x with properties 0x%x", core.ErrNotFound, typeFilter, uint32(propertyFlags))
	}
	return index, nil
}

func findMemoryType(types []vk.MemoryType, typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, bool) {
	for i, t := range types {
		if typeFilter&(1<<uint32(i)) != 0 && t.PropertyFlags&propertyFlags == propertyFlags {
			return uint32(i), true
		}
	}
	return 0, false
}
