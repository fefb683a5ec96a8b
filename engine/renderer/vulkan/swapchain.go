package vulkan

import (
	"math"

	vk "github.com/Eiton/vulkan"

	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/releasestack"
)

type SwapchainSupport struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

// SwapchainSettings are the choices made from the surface support before creation.
type SwapchainSettings struct {
	Format      vk.SurfaceFormat
	PresentMode vk.PresentMode
	Extent      vk.Extent2D
	ImageCount  uint32
	Transform   vk.SurfaceTransformFlagBits
}

type Swapchain struct {
	Handle   vk.Swapchain
	Settings SwapchainSettings
	Images   []vk.Image
	Views    []vk.ImageView

	releaseStack *releasestack.ReleaseStack
}

var presentModes = map[string]vk.PresentMode{
	"fifo":      vk.PresentModeFifo,
	"mailbox":   vk.PresentModeMailbox,
	"immediate": vk.PresentModeImmediate,
}

// chooseSurfaceFormat prefers BGRA8 sRGB in the sRGB non-linear color space.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Srgb && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

// choosePresentMode uses the configured mode when the surface offers it and
// FIFO otherwise, which every surface supports.
func choosePresentMode(preferred string, available []vk.PresentMode) vk.PresentMode {
	want, ok := presentModes[preferred]
	if !ok {
		return vk.PresentModeFifo
	}
	for _, m := range available {
		if m == want {
			return m
		}
	}
	return vk.PresentModeFifo
}

// chooseExtent uses the surface's fixed extent when it has one and clamps the
// framebuffer size to the allowed range otherwise.
func chooseExtent(caps vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  Clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: Clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// chooseImageCount asks for one image over the minimum. A zero maximum means unbounded.
func chooseImageCount(caps vk.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func chooseSwapchainSettings(support SwapchainSupport, presentMode string, width, height uint32) SwapchainSettings {
	return SwapchainSettings{
		Format:      chooseSurfaceFormat(support.Formats),
		PresentMode: choosePresentMode(presentMode, support.PresentModes),
		Extent:      chooseExtent(support.Capabilities, width, height),
		ImageCount:  chooseImageCount(support.Capabilities),
		Transform:   support.Capabilities.CurrentTransform,
	}
}

func QuerySwapchainSupport(physical vk.PhysicalDevice, surface vk.Surface) (SwapchainSupport, error) {
	var support SwapchainSupport

	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(physical, surface, &support.Capabilities), "vkGetPhysicalDeviceSurfaceCapabilitiesKHR"); err != nil {
		return support, err
	}

	var formatCount uint32
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
		return support, err
	}
	support.Formats = make([]vk.SurfaceFormat, formatCount)
	if formatCount > 0 {
		if err := check(vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, support.Formats), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
			return support, err
		}
	}

	var modeCount uint32
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, nil), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
		return support, err
	}
	support.PresentModes = make([]vk.PresentMode, modeCount)
	if modeCount > 0 {
		if err := check(vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, support.PresentModes), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
			return support, err
		}
	}

	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return support, notFoundf("surface reports no formats or present modes")
	}
	return support, nil
}

// SwapchainCreate builds a swapchain for the current surface state along with
// one view per image.
func SwapchainCreate(context *Context, width, height uint32) (*Swapchain, error) {
	support, err := QuerySwapchainSupport(context.Device.Physical, context.Surface)
	if err != nil {
		return nil, err
	}
	settings := chooseSwapchainSettings(support, context.Config.Renderer.PresentMode, width, height)

	swapchain := &Swapchain{
		Settings:     settings,
		releaseStack: releasestack.New(),
	}
	if err := swapchain.create(context); err != nil {
		swapchain.Destroy()
		return nil, err
	}

	core.LogInfo("Swapchain created: %dx%d, %d images.", settings.Extent.Width, settings.Extent.Height, len(swapchain.Images))
	return swapchain, nil
}

func (s *Swapchain) create(context *Context) error {
	device := context.Device.Logical
	families := context.Device.Families

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    s.Settings.ImageCount,
		ImageFormat:      s.Settings.Format.Format,
		ImageColorSpace:  s.Settings.Format.ColorSpace,
		ImageExtent:      s.Settings.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     s.Settings.Transform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      s.Settings.PresentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if families.Graphics != families.Present {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{families.Graphics, families.Present}
	}

	var handle vk.Swapchain
	if err := resourceError(vk.CreateSwapchain(device, &createInfo, context.Allocator, &handle), "vkCreateSwapchainKHR"); err != nil {
		return err
	}
	s.Handle = handle
	if err := s.releaseStack.PushFunc(func() {
		vk.DestroySwapchain(device, handle, context.Allocator)
	}); err != nil {
		return err
	}

	var imageCount uint32
	if err := check(vk.GetSwapchainImages(device, handle, &imageCount, nil), "vkGetSwapchainImagesKHR"); err != nil {
		return err
	}
	s.Images = make([]vk.Image, imageCount)
	if err := check(vk.GetSwapchainImages(device, handle, &imageCount, s.Images), "vkGetSwapchainImagesKHR"); err != nil {
		return err
	}

	// the images belong to the swapchain, only the views are ours
	s.Views = make([]vk.ImageView, 0, imageCount)
	for _, image := range s.Images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   s.Settings.Format.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		var view vk.ImageView
		if err := resourceError(vk.CreateImageView(device, &viewInfo, context.Allocator, &view), "vkCreateImageView"); err != nil {
			return err
		}
		s.Views = append(s.Views, view)
		if err := s.releaseStack.PushFunc(func() {
			vk.DestroyImageView(device, view, context.Allocator)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Swapchain) Extent() vk.Extent2D {
	return s.Settings.Extent
}

func (s *Swapchain) ImageFormat() vk.Format {
	return s.Settings.Format.Format
}

// Destroy frees the views and the swapchain. The device must be idle.
func (s *Swapchain) Destroy() {
	if err := s.releaseStack.Destroy(); err != nil {
		core.LogWarn("swapchain: %s", err)
	}
	s.Handle = vk.NullSwapchain
	s.Images, s.Views = nil, nil
}

// AcquireNextImage blocks until an image is available and signals semaphore once it can be written.
func (s *Swapchain) AcquireNextImage(context *Context, semaphore vk.Semaphore) (uint32, vk.Result) {
	var imageIndex uint32
	result := vk.AcquireNextImage(context.Device.Logical, s.Handle, vk.MaxUint64, semaphore, vk.NullFence, &imageIndex)
	return imageIndex, result
}

func (s *Swapchain) Present(queue vk.Queue, renderFinished vk.Semaphore, imageIndex uint32) vk.Result {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.Handle},
		PImageIndices:      []uint32{imageIndex},
	}
	return vk.QueuePresent(queue, &presentInfo)
}
