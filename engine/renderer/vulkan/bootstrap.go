package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/Eiton/vulkan"
	"github.com/charmbracelet/lipgloss"

	"github.com/spaghettifunk/meed/engine/containers"
	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/renderer"
)

const (
	engineName = "MEED Engine"

	validationLayer            = "VK_LAYER_KHRONOS_validation"
	extPhysicalDeviceProps2    = "VK_KHR_get_physical_device_properties2"
	instanceCreatePortability  = vk.InstanceCreateFlags(vk.InstanceCreateEnumeratePortabilityBit)
	debugReportFlags           = vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit | vk.DebugReportInformationBit)
	semaphoreImageAvailable    = "image available"
	semaphoreRenderingFinished = "render finished"
)

// bootstrapStep is one step of Initialize. Every step registers the teardown
// of what it created on the context before returning.
type bootstrapStep struct {
	name string
	run  func(context *Context) error
}

var bootstrapSteps = []bootstrapStep{
	{"instance", createInstance},
	{"debug messenger", createDebugMessenger},
	{"physical device", SelectPhysicalDevice},
	{"surface", createSurface},
	{"queue families", ResolveQueueFamilies},
	{"logical device", DeviceCreate},
	{"queues", RetrieveQueues},
	{"swapchain", createSwapchain},
	{"command pools", CommandPoolsCreate},
	{"command buffers", createCommandBuffers},
	{"sync objects", createSyncObjects},
}

// instanceExtensions adds the platform and debug extensions to the ones the window needs.
func instanceExtensions(window []string, goos string, debug bool) ([]string, vk.InstanceCreateFlags) {
	set := containers.NewSet(window...)
	var flags vk.InstanceCreateFlags
	if goos == "darwin" {
		set.Insert(vk.KhrPortabilityEnumerationExtensionName)
		set.Insert(extPhysicalDeviceProps2)
		flags |= instanceCreatePortability
	}
	if debug {
		set.Insert(vk.ExtDebugReportExtensionName)
	}
	return set.Values(), flags
}

// missingLayers returns the entries of required that are not available, in order.
func missingLayers(required []string, available *containers.Set[string]) []string {
	var missing []string
	for _, layer := range required {
		if !available.Contains(layer) {
			missing = append(missing, layer)
		}
	}
	return missing
}

func availableLayers() (*containers.Set[string], error) {
	var count uint32
	if err := check(vk.EnumerateInstanceLayerProperties(&count, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
		return nil, err
	}
	layers := make([]vk.LayerProperties, count)
	if count > 0 {
		if err := check(vk.EnumerateInstanceLayerProperties(&count, layers), "vkEnumerateInstanceLayerProperties"); err != nil {
			return nil, err
		}
	}
	set := containers.NewSet[string]()
	for i := range layers {
		layers[i].Deref()
		set.Insert(cString(layers[i].LayerName[:]))
	}
	return set, nil
}

func createInstance(context *Context) error {
	procAddr := context.Window.VulkanProcAddress()
	if procAddr == nil {
		return fmt.Errorf("%w: vkGetInstanceProcAddr is not available", core.ErrNotFound)
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return fmt.Errorf("%w: failed to load the Vulkan loader: %s", core.ErrGPUCall, err)
	}

	debug := context.Config.Renderer.Debug
	extensions, flags := instanceExtensions(context.Window.RequiredInstanceExtensions(), runtime.GOOS, debug)
	core.LogDebug("Required extensions: %v", extensions)

	var layers []string
	if debug {
		core.LogInfo("Validation layers enabled. Enumerating...")
		available, err := availableLayers()
		if err != nil {
			return err
		}
		layers = []string{validationLayer}
		if missing := missingLayers(layers, available); len(missing) > 0 {
			return fmt.Errorf("%w: required validation layers are missing: %v", core.ErrNotFound, missing)
		}
		core.LogInfo("All required validation layers are present.")
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 3, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		EngineVersion:      uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(context.Window.Title),
		PEngineName:        VulkanSafeString(engineName),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		Flags:                   flags,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     VulkanSafeStrings(layers),
	}

	var instance vk.Instance
	if err := check(vk.CreateInstance(&createInfo, context.Allocator, &instance), "vkCreateInstance"); err != nil {
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, context.Allocator)
		return fmt.Errorf("%w: failed to load instance functions: %s", core.ErrGPUCall, err)
	}
	context.Instance = instance
	core.LogInfo("Vulkan Instance created.")

	return context.deferRelease(func() {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(instance, context.Allocator)
		context.Instance = nil
	})
}

var (
	debugLabelError = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	debugLabelWarn  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	debugLabelPerf  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("135"))
	debugLabelInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

type debugSeverity int

const (
	debugSeverityInfo debugSeverity = iota
	debugSeverityPerformance
	debugSeverityWarning
	debugSeverityError
)

// classifyDebugReport picks the most severe bit set in flags.
func classifyDebugReport(flags vk.DebugReportFlags) debugSeverity {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		return debugSeverityError
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		return debugSeverityWarning
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		return debugSeverityPerformance
	default:
		return debugSeverityInfo
	}
}

func debugReportCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch classifyDebugReport(flags) {
	case debugSeverityError:
		core.LogError("%s [%s] Code %d : %s", debugLabelError.Render("VALIDATION"), pLayerPrefix, messageCode, pMessage)
	case debugSeverityWarning:
		core.LogWarn("%s [%s] Code %d : %s", debugLabelWarn.Render("VALIDATION"), pLayerPrefix, messageCode, pMessage)
	case debugSeverityPerformance:
		core.LogWarn("%s [%s] Code %d : %s", debugLabelPerf.Render("PERFORMANCE"), pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("%s [%s] Code %d : %s", debugLabelInfo.Render("GENERAL"), pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

func createDebugMessenger(context *Context) error {
	if !context.Config.Renderer.Debug {
		return nil
	}
	core.LogDebug("Creating Vulkan debugger...")

	createInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       debugReportFlags,
		PfnCallback: debugReportCallback,
	}
	var callback vk.DebugReportCallback
	if err := check(vk.CreateDebugReportCallback(context.Instance, &createInfo, context.Allocator, &callback), "vkCreateDebugReportCallbackEXT"); err != nil {
		return err
	}
	context.debugCallback = callback
	core.LogDebug("Vulkan debugger created.")

	return context.deferRelease(func() {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(context.Instance, callback, context.Allocator)
		context.debugCallback = vk.NullDebugReportCallback
	})
}

func createSurface(context *Context) error {
	core.LogDebug("Creating Vulkan surface...")
	raw, err := context.Window.CreateVulkanSurface(context.Instance)
	if err != nil {
		return err
	}
	surface := vk.SurfaceFromPointer(raw)
	context.Surface = surface
	core.LogDebug("Vulkan surface created.")

	return context.deferRelease(func() {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(context.Instance, surface, context.Allocator)
		context.Surface = vk.NullSurface
	})
}

// createSwapchain covers choosing the settings, the swapchain itself and its
// views. Recreation replaces context.Swapchain, so the registered release
// always frees whichever swapchain is current.
func createSwapchain(context *Context) error {
	width, height := context.Window.FramebufferSize()
	if width == 0 || height == 0 {
		width, height = context.Config.Window.Width, context.Config.Window.Height
	}
	swapchain, err := SwapchainCreate(context, width, height)
	if err != nil {
		return err
	}
	context.Swapchain = swapchain

	return context.deferRelease(func() {
		if context.Swapchain != nil {
			core.LogDebug("Destroying swapchain...")
			context.Swapchain.Destroy()
			context.Swapchain = nil
		}
	})
}

func createCommandBuffers(context *Context) error {
	graphicsPool := context.GraphicsPool()
	context.GraphicsCommandBuffers = make([]*CommandBuffer, renderer.FramesInFlight)
	for i := range context.GraphicsCommandBuffers {
		cb, err := NewCommandBuffer(context, graphicsPool, true)
		if err != nil {
			return err
		}
		context.GraphicsCommandBuffers[i] = cb
		if err := context.deferRelease(func() { cb.Free(context, graphicsPool) }); err != nil {
			return err
		}
	}

	transferPool := context.TransferPool()
	cb, err := NewCommandBuffer(context, transferPool, true)
	if err != nil {
		return err
	}
	context.TransferCommandBuffer = cb
	if err := context.deferRelease(func() { cb.Free(context, transferPool) }); err != nil {
		return err
	}

	core.LogDebug("Vulkan command buffers created.")
	return nil
}

func createSemaphore(context *Context, purpose string) (vk.Semaphore, error) {
	createInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := resourceError(vk.CreateSemaphore(context.Device.Logical, &createInfo, context.Allocator, &semaphore), "vkCreateSemaphore ("+purpose+")"); err != nil {
		return vk.NullSemaphore, err
	}
	device := context.Device.Logical
	if err := context.deferRelease(func() {
		vk.DestroySemaphore(device, semaphore, context.Allocator)
	}); err != nil {
		return vk.NullSemaphore, err
	}
	return semaphore, nil
}

func createSyncObjects(context *Context) error {
	context.ImageAvailableSemaphores = make([]vk.Semaphore, renderer.FramesInFlight)
	context.RenderFinishedSemaphores = make([]vk.Semaphore, renderer.FramesInFlight)
	context.InFlightFences = make([]*Fence, renderer.FramesInFlight)

	for i := 0; i < renderer.FramesInFlight; i++ {
		var err error
		if context.ImageAvailableSemaphores[i], err = createSemaphore(context, semaphoreImageAvailable); err != nil {
			return err
		}
		if context.RenderFinishedSemaphores[i], err = createSemaphore(context, semaphoreRenderingFinished); err != nil {
			return err
		}

		// signaled, so the first wait on every frame returns at once
		fence, err := NewFence(context, true)
		if err != nil {
			return err
		}
		context.InFlightFences[i] = fence
		if err := context.deferRelease(func() { fence.Destroy(context) }); err != nil {
			return err
		}
	}

	core.LogDebug("Vulkan sync objects created.")
	return nil
}
