// Package vulkan renders through Vulkan 1.3 dynamic rendering on a glfw surface.
package vulkan

import (
	"fmt"

	vk "github.com/Eiton/vulkan"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/platform"
	"github.com/spaghettifunk/meed/engine/renderer"
)

type Backend struct {
	context *Context

	current *frame

	clearColor   [4]float32
	clearPending bool

	// the image the last ended frame rendered into, waiting for Present
	pendingImage uint32
	hasPending   bool

	recreatePending bool
	// framebuffer size the current swapchain was created for
	swapchainWidth  uint32
	swapchainHeight uint32
}

func New() *Backend {
	return &Backend{}
}

// Initialize runs the bootstrap in order. When a step fails everything the
// earlier steps created is released and the error is returned.
func (b *Backend) Initialize(window *platform.Window, cfg *core.Config) error {
	if b.context != nil {
		return fmt.Errorf("%w: vulkan backend initialized twice", core.ErrPrecondition)
	}
	if window == nil || cfg == nil {
		return fmt.Errorf("%w: vulkan backend needs a window and a config", core.ErrPrecondition)
	}

	context := newContext(window, cfg)
	for i, step := range bootstrapSteps {
		core.LogDebug("Vulkan bootstrap %d/%d: %s", i+1, len(bootstrapSteps), step.name)
		if err := step.run(context); err != nil {
			if derr := context.releaseStack.Destroy(); derr != nil {
				core.LogWarn("vulkan bootstrap unwind: %s", derr)
			}
			return fmt.Errorf("vulkan bootstrap step %q: %w", step.name, err)
		}
	}

	b.context = context
	b.current = nil
	b.hasPending = false
	b.recreatePending = false
	b.swapchainWidth, b.swapchainHeight = window.FramebufferSize()

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (b *Backend) Shutdown() error {
	if b.context == nil {
		return fmt.Errorf("%w: vulkan backend shut down before initialize", core.ErrPrecondition)
	}
	context := b.context
	b.context = nil
	b.current = nil

	if err := check(vk.DeviceWaitIdle(context.Device.Logical), "vkDeviceWaitIdle"); err != nil {
		core.LogWarn("shutdown: %s", err)
	}
	if err := context.releaseStack.Destroy(); err != nil {
		return err
	}
	core.LogInfo("Vulkan renderer shut down.")
	return nil
}

// ClearScreen sets the clear color of the next StartFrame. A frame started
// without it leaves the color attachment undefined.
func (b *Backend) ClearScreen(color mgl32.Vec4) {
	b.clearColor = [4]float32{color.X(), color.Y(), color.Z(), color.W()}
	b.clearPending = true
}

func (b *Backend) Conventions() renderer.Conventions {
	return renderer.Conventions{FlipY: true}
}

func (b *Backend) WaitIdle() error {
	if b.context == nil {
		return fmt.Errorf("%w: wait idle before initialize", core.ErrPrecondition)
	}
	return check(vk.DeviceWaitIdle(b.context.Device.Logical), "vkDeviceWaitIdle")
}

func booting(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrSwapchainBooting, fmt.Sprintf(format, args...))
}

// recreateSwapchain replaces the swapchain for a width x height framebuffer.
func (b *Backend) recreateSwapchain(width, height uint32) error {
	context := b.context
	if err := check(vk.DeviceWaitIdle(context.Device.Logical), "vkDeviceWaitIdle"); err != nil {
		return err
	}
	if context.Swapchain != nil {
		context.Swapchain.Destroy()
		context.Swapchain = nil
	}

	swapchain, err := SwapchainCreate(context, width, height)
	if err != nil {
		return err
	}
	context.Swapchain = swapchain
	b.swapchainWidth, b.swapchainHeight = width, height
	b.recreatePending = false
	b.hasPending = false
	return nil
}

func (b *Backend) StartFrame() (renderer.Frame, error) {
	if b.context == nil {
		return nil, fmt.Errorf("%w: start frame before initialize", core.ErrPrecondition)
	}
	if b.current != nil {
		return nil, fmt.Errorf("%w: frame %d is still open", core.ErrPrecondition, b.current.index)
	}
	context := b.context

	width, height := context.Window.FramebufferSize()
	if width == 0 || height == 0 {
		return nil, booting("framebuffer is %dx%d", width, height)
	}
	if b.recreatePending || width != b.swapchainWidth || height != b.swapchainHeight {
		if err := b.recreateSwapchain(width, height); err != nil {
			return nil, err
		}
		return nil, booting("swapchain recreated for %dx%d", width, height)
	}

	current := context.CurrentFrame
	fence := context.InFlightFences[current]
	if err := fence.Wait(context, vk.MaxUint64); err != nil {
		return nil, err
	}

	imageIndex, result := context.Swapchain.AcquireNextImage(context, context.ImageAvailableSemaphores[current])
	switch result {
	case vk.Success:
	case vk.Suboptimal:
		// the image is still usable, rebuild after this frame
		b.recreatePending = true
	case vk.ErrorOutOfDate:
		b.recreatePending = true
		return nil, booting("swapchain out of date on acquire")
	default:
		return nil, check(result, "vkAcquireNextImageKHR")
	}

	// only reset once work is certain to be submitted with it
	if err := fence.Reset(context); err != nil {
		return nil, err
	}

	cmd := context.GraphicsCommandBuffers[current]
	if err := cmd.Reset(); err != nil {
		return nil, err
	}
	if err := cmd.Begin(true, false, false); err != nil {
		return nil, err
	}

	transitionImage(cmd, context.Swapchain.Images[imageIndex], imageToColorAttachment)
	b.beginRendering(cmd, imageIndex)

	b.current = &frame{
		backend:       b,
		index:         current,
		imageIndex:    imageIndex,
		commandBuffer: cmd,
		open:          true,
	}
	return b.current, nil
}

func (b *Backend) beginRendering(cmd *CommandBuffer, imageIndex uint32) {
	swapchain := b.context.Swapchain
	extent := swapchain.Extent()

	colorAttachment := vk.RenderingAttachmentInfo{
		SType:       vk.StructureTypeRenderingAttachmentInfo,
		ImageView:   swapchain.Views[imageIndex],
		ImageLayout: vk.ImageLayoutColorAttachmentOptimal,
		LoadOp:      vk.AttachmentLoadOpDontCare,
		StoreOp:     vk.AttachmentStoreOpStore,
	}
	if b.clearPending {
		colorAttachment.LoadOp = vk.AttachmentLoadOpClear
		colorAttachment.ClearValue = vk.NewClearValue(b.clearColor[:])
		b.clearPending = false
	}

	renderArea := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: extent,
	}
	renderingInfo := vk.RenderingInfo{
		SType:                vk.StructureTypeRenderingInfo,
		RenderArea:           renderArea,
		LayerCount:           1,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vk.RenderingAttachmentInfo{colorAttachment},
	}
	vk.CmdBeginRendering(cmd.Handle, &renderingInfo)

	viewport := vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	vk.CmdSetViewport(cmd.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(cmd.Handle, 0, 1, []vk.Rect2D{renderArea})
}

func (b *Backend) EndFrame(f renderer.Frame) error {
	fr, err := b.openFrame(f)
	if err != nil {
		return err
	}
	fr.open = false
	b.current = nil

	context := b.context
	cmd := fr.commandBuffer

	vk.CmdEndRendering(cmd.Handle)
	transitionImage(cmd, context.Swapchain.Images[fr.imageIndex], imageToPresent)
	if err := cmd.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{context.ImageAvailableSemaphores[fr.index]},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cmd.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{context.RenderFinishedSemaphores[fr.index]},
	}
	fence := context.InFlightFences[fr.index]
	if err := check(vk.QueueSubmit(context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle), "vkQueueSubmit"); err != nil {
		return err
	}
	cmd.UpdateSubmitted()

	b.pendingImage = fr.imageIndex
	b.hasPending = true
	return nil
}

// Present hands the last ended frame to the display and moves to the next frame in flight.
func (b *Backend) Present() error {
	if b.context == nil {
		return fmt.Errorf("%w: present before initialize", core.ErrPrecondition)
	}
	if !b.hasPending {
		return fmt.Errorf("%w: present without an ended frame", core.ErrPrecondition)
	}
	context := b.context
	b.hasPending = false

	result := context.Swapchain.Present(context.Device.PresentQueue, context.RenderFinishedSemaphores[context.CurrentFrame], b.pendingImage)
	advance, recreate, err := presentOutcome(result)
	if advance {
		context.CurrentFrame = (context.CurrentFrame + 1) % renderer.FramesInFlight
	}
	if recreate {
		b.recreatePending = true
	}
	return err
}

// presentOutcome reports whether the frame slot advances after a present
// returned result, and whether the swapchain must be recreated. Suboptimal and
// out of date presents advance and recreate. A hard failure does neither.
func presentOutcome(result vk.Result) (advance, recreate bool, err error) {
	switch result {
	case vk.Success:
		return true, false, nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		return true, true, booting("swapchain needs recreation after present (%s)", VulkanResultString(result))
	}
	if err := check(result, "vkQueuePresentKHR"); err != nil {
		return false, false, err
	}
	return true, false, nil
}

// openFrame returns f as this backend's frame when it is the one being recorded.
func (b *Backend) openFrame(f renderer.Frame) (*frame, error) {
	fr, ok := f.(*frame)
	if b == nil || !ok || fr == nil || fr.backend != b {
		return nil, fmt.Errorf("%w: frame does not belong to the vulkan backend", core.ErrPrecondition)
	}
	if !fr.open || b.current != fr {
		return nil, fmt.Errorf("%w: frame %d already ended", core.ErrPrecondition, fr.index)
	}
	return fr, nil
}

type frame struct {
	backend       *Backend
	index         uint32
	imageIndex    uint32
	commandBuffer *CommandBuffer
	open          bool
}

func (f *frame) Index() uint32 {
	return f.index
}

func (f *frame) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if _, err := f.backend.openFrame(f); err != nil {
		return err
	}
	vk.CmdDraw(f.commandBuffer.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
	return nil
}

// imageTransition is one layout change of a swapchain image.
type imageTransition struct {
	oldLayout, newLayout vk.ImageLayout
	srcAccess, dstAccess vk.AccessFlags
	srcStage, dstStage   vk.PipelineStageFlags
}

var (
	imageToColorAttachment = imageTransition{
		oldLayout: vk.ImageLayoutUndefined,
		newLayout: vk.ImageLayoutColorAttachmentOptimal,
		dstAccess: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
	}
	imageToPresent = imageTransition{
		oldLayout: vk.ImageLayoutColorAttachmentOptimal,
		newLayout: vk.ImageLayoutPresentSrc,
		srcAccess: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
	}
)

func transitionImage(cmd *CommandBuffer, image vk.Image, t imageTransition) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       t.srcAccess,
		DstAccessMask:       t.dstAccess,
		OldLayout:           t.oldLayout,
		NewLayout:           t.newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cmd.Handle, t.srcStage, t.dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}
