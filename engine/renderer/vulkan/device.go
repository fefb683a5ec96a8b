package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/Eiton/vulkan"

	"github.com/spaghettifunk/meed/engine/containers"
	"github.com/spaghettifunk/meed/engine/core"
)

const (
	extSwapchain         = "VK_KHR_swapchain"
	extSynchronization2  = "VK_KHR_synchronization2"
	extPortabilitySubset = "VK_KHR_portability_subset"
)

// requiredDeviceExtensions must all be present for a device to be picked.
var requiredDeviceExtensions = []string{extSwapchain, extSynchronization2}

type Device struct {
	Physical vk.PhysicalDevice
	Logical  vk.Device

	Name        string
	Properties  vk.PhysicalDeviceProperties
	MemoryTypes []vk.MemoryType
	Families    QueueFamilyIndices

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue
	TransferQueue vk.Queue

	portability bool
}

// deviceInfo is what device selection looks at, decoded from the driver.
type deviceInfo struct {
	Name                string
	Type                vk.PhysicalDeviceType
	GeometryShader      bool
	MaxImageDimension2D uint32
	Extensions          *containers.Set[string]
}

// scoreDevice ranks a device. Zero means it cannot be used.
func scoreDevice(info deviceInfo) uint32 {
	for _, ext := range requiredDeviceExtensions {
		if info.Extensions == nil || !info.Extensions.Contains(ext) {
			return 0
		}
	}

	var score uint32
	switch info.Type {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		score += 1000
	case vk.PhysicalDeviceTypeIntegratedGpu:
		score += 500
	}
	if info.GeometryShader {
		score += 100
	}
	score += info.MaxImageDimension2D
	return score
}

// pickDevice returns the index of the best scoring device. Ties keep the first one.
func pickDevice(infos []deviceInfo) (int, error) {
	if len(infos) == 0 {
		return -1, fmt.Errorf("%w: no devices which support Vulkan were found", core.ErrNotFound)
	}
	best, bestScore := -1, uint32(0)
	for i, info := range infos {
		score := scoreDevice(info)
		core.LogDebug("Device '%s' scored %d", info.Name, score)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return -1, fmt.Errorf("%w: no device supports %v", core.ErrNotFound, requiredDeviceExtensions)
	}
	return best, nil
}

// QueueFamilyIndices are the families the renderer submits to.
type QueueFamilyIndices struct {
	Graphics uint32
	Present  uint32
	Compute  uint32
	Transfer uint32

	HasCompute bool
}

// Unique lists the distinct families in first-seen order, graphics first.
func (q QueueFamilyIndices) Unique() []uint32 {
	set := containers.NewSet(q.Graphics, q.Present, q.Transfer)
	return set.Values()
}

type queueFamily struct {
	Flags   vk.QueueFlags
	Present bool
}

func (f queueFamily) has(bit vk.QueueFlagBits) bool {
	return f.Flags&vk.QueueFlags(bit) != 0
}

// resolveQueueFamilies takes the first family for graphics, compute and
// present. Transfer goes to the first transfer capable family other than
// graphics and falls back to graphics when every transfer family is graphics.
func resolveQueueFamilies(families []queueFamily) (QueueFamilyIndices, error) {
	var (
		out                              QueueFamilyIndices
		hasGraphics, hasPresent, hasXfer bool
	)

	for i, f := range families {
		index := uint32(i)
		if !hasGraphics && f.has(vk.QueueGraphicsBit) {
			out.Graphics, hasGraphics = index, true
		}
		if !out.HasCompute && f.has(vk.QueueComputeBit) {
			out.Compute, out.HasCompute = index, true
		}
		if !hasPresent && f.Present {
			out.Present, hasPresent = index, true
		}
	}

	if !hasGraphics {
		return out, fmt.Errorf("%w: no graphics queue family", core.ErrNotFound)
	}
	if !hasPresent {
		return out, fmt.Errorf("%w: no queue family can present to the surface", core.ErrNotFound)
	}

	for i, f := range families {
		if uint32(i) != out.Graphics && f.has(vk.QueueTransferBit) {
			out.Transfer, hasXfer = uint32(i), true
			break
		}
	}
	if !hasXfer {
		// graphics queues always accept transfers
		out.Transfer = out.Graphics
	}
	return out, nil
}

func queryDeviceInfo(physical vk.PhysicalDevice) (deviceInfo, vk.PhysicalDeviceProperties, error) {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(physical, &properties)
	properties.Deref()

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(physical, &features)

	extensions, err := queryDeviceExtensions(physical)
	if err != nil {
		return deviceInfo{}, properties, err
	}

	return deviceInfo{
		Name:                cString(properties.DeviceName[:]),
		Type:                properties.DeviceType,
		GeometryShader:      features.GeometryShader == vk.True,
		MaxImageDimension2D: properties.Limits.MaxImageDimension2D,
		Extensions:          extensions,
	}, properties, nil
}

func queryDeviceExtensions(physical vk.PhysicalDevice) (*containers.Set[string], error) {
	var count uint32
	if err := check(vk.EnumerateDeviceExtensionProperties(physical, "", &count, nil), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	available := make([]vk.ExtensionProperties, count)
	if err := check(vk.EnumerateDeviceExtensionProperties(physical, "", &count, available), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}

	set := containers.NewSet[string]()
	for i := range available {
		available[i].Deref()
		set.Insert(cString(available[i].ExtensionName[:]))
	}
	return set, nil
}

// SelectPhysicalDevice scores every device of the instance and keeps the best one.
func SelectPhysicalDevice(context *Context) error {
	var count uint32
	if err := check(vk.EnumeratePhysicalDevices(context.Instance, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if count > 0 {
		if err := check(vk.EnumeratePhysicalDevices(context.Instance, &count, physicalDevices), "vkEnumeratePhysicalDevices"); err != nil {
			return err
		}
	}

	infos := make([]deviceInfo, len(physicalDevices))
	properties := make([]vk.PhysicalDeviceProperties, len(physicalDevices))
	for i, pd := range physicalDevices {
		info, props, err := queryDeviceInfo(pd)
		if err != nil {
			return err
		}
		infos[i], properties[i] = info, props
	}

	best, err := pickDevice(infos)
	if err != nil {
		return err
	}

	var memory vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physicalDevices[best], &memory)
	memoryTypes := make([]vk.MemoryType, memory.MemoryTypeCount)
	for i := range memoryTypes {
		memoryTypes[i] = memory.MemoryTypes[i]
	}

	props := properties[best]
	context.Device = &Device{
		Physical:    physicalDevices[best],
		Name:        infos[best].Name,
		Properties:  props,
		MemoryTypes: memoryTypes,
		portability: infos[best].Extensions.Contains(extPortabilitySubset),
	}

	core.LogInfo("Selected device: '%s'.", context.Device.Name)
	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(props.DriverVersion).Major(),
		vk.Version(props.DriverVersion).Minor(),
		vk.Version(props.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(props.ApiVersion).Major(),
		vk.Version(props.ApiVersion).Minor(),
		vk.Version(props.ApiVersion).Patch(),
	)
	return nil
}

// ResolveQueueFamilies reads the queue families of the selected device and
// checks which of them can present to the surface.
func ResolveQueueFamilies(context *Context) error {
	physical := context.Device.Physical

	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &count, nil)
	properties := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &count, properties)

	families := make([]queueFamily, count)
	for i := range properties {
		var supportsPresent vk.Bool32
		if err := check(vk.GetPhysicalDeviceSurfaceSupport(physical, uint32(i), context.Surface, &supportsPresent), "vkGetPhysicalDeviceSurfaceSupportKHR"); err != nil {
			return err
		}
		families[i] = queueFamily{Flags: properties[i].QueueFlags, Present: supportsPresent == vk.True}
	}

	indices, err := resolveQueueFamilies(families)
	if err != nil {
		return err
	}
	context.Device.Families = indices

	core.LogDebug("Graphics Family Index: %d", indices.Graphics)
	core.LogDebug("Present Family Index:  %d", indices.Present)
	core.LogDebug("Transfer Family Index: %d", indices.Transfer)
	if indices.HasCompute {
		core.LogDebug("Compute Family Index:  %d", indices.Compute)
	}
	return nil
}

// DeviceCreate creates the logical device with one queue per distinct family
// and dynamic rendering plus synchronization2 enabled.
func DeviceCreate(context *Context) error {
	core.LogInfo("Creating logical device...")

	families := context.Device.Families.Unique()
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensionNames := append([]string(nil), requiredDeviceExtensions...)
	if context.Device.portability {
		core.LogInfo("Adding required extension '%s'.", extPortabilitySubset)
		extensionNames = append(extensionNames, extPortabilitySubset)
	}

	features13 := vk.PhysicalDeviceVulkan13Features{
		SType:            vk.StructureTypePhysicalDeviceVulkan13Features,
		DynamicRendering: vk.True,
		Synchronization2: vk.True,
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PNext:                   unsafe.Pointer(&features13),
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var logical vk.Device
	if err := check(vk.CreateDevice(context.Device.Physical, &deviceCreateInfo, context.Allocator, &logical), "vkCreateDevice"); err != nil {
		return err
	}
	context.Device.Logical = logical
	core.LogInfo("Logical device created.")

	return context.deferRelease(func() {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(logical, context.Allocator)
		context.Device.Logical = nil
	})
}

// RetrieveQueues fetches queue 0 of every family in use.
func RetrieveQueues(context *Context) error {
	d := context.Device
	vk.GetDeviceQueue(d.Logical, d.Families.Graphics, 0, &d.GraphicsQueue)
	vk.GetDeviceQueue(d.Logical, d.Families.Present, 0, &d.PresentQueue)
	vk.GetDeviceQueue(d.Logical, d.Families.Transfer, 0, &d.TransferQueue)
	if d.GraphicsQueue == nil || d.PresentQueue == nil || d.TransferQueue == nil {
		return fmt.Errorf("%w: device returned a nil queue", core.ErrGPUCall)
	}
	core.LogInfo("Queues obtained.")
	return nil
}

// CommandPoolsCreate creates one resettable pool per distinct family.
func CommandPoolsCreate(context *Context) error {
	for _, family := range context.Device.Families.Unique() {
		poolCreateInfo := vk.CommandPoolCreateInfo{
			SType:            vk.StructureTypeCommandPoolCreateInfo,
			QueueFamilyIndex: family,
			Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		}
		var pool vk.CommandPool
		if err := resourceError(vk.CreateCommandPool(context.Device.Logical, &poolCreateInfo, context.Allocator, &pool), "vkCreateCommandPool"); err != nil {
			return err
		}
		context.CommandPools[family] = pool

		f := family
		if err := context.deferRelease(func() {
			vk.DestroyCommandPool(context.Device.Logical, pool, context.Allocator)
			delete(context.CommandPools, f)
		}); err != nil {
			return err
		}
		core.LogInfo("Command pool created for queue family %d.", family)
	}
	return nil
}
