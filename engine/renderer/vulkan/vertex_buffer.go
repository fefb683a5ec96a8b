package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/Eiton/vulkan"

	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/releasestack"
	"github.com/spaghettifunk/meed/engine/renderer"
)

// hostMemory is the CPU visible memory a buffer's writes land in.
type hostMemory interface {
	Map(offset, size uint64) ([]byte, error)
	Unmap()
}

type mappedMemory struct {
	device vk.Device
	memory vk.DeviceMemory
}

func (m *mappedMemory) Map(offset, size uint64) ([]byte, error) {
	var data unsafe.Pointer
	if err := check(vk.MapMemory(m.device, m.memory, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &data), "vkMapMemory"); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(data), size), nil
}

func (m *mappedMemory) Unmap() {
	vk.UnmapMemory(m.device, m.memory)
}

// vertexInputDescription is what a pipeline needs to read a buffer at binding 0.
type vertexInputDescription struct {
	Binding    vk.VertexInputBindingDescription
	Attributes []vk.VertexInputAttributeDescription
}

var attributeFormats = map[renderer.VertexAttributeType]vk.Format{
	renderer.VertexAttributeFloat:  vk.FormatR32Sfloat,
	renderer.VertexAttributeFloat2: vk.FormatR32g32Sfloat,
	renderer.VertexAttributeFloat3: vk.FormatR32g32b32Sfloat,
	renderer.VertexAttributeFloat4: vk.FormatR32g32b32a32Sfloat,
	renderer.VertexAttributeUint:   vk.FormatR32Uint,
	renderer.VertexAttributeUint2:  vk.FormatR32g32Uint,
	renderer.VertexAttributeUint3:  vk.FormatR32g32b32Uint,
	renderer.VertexAttributeUint4:  vk.FormatR32g32b32a32Uint,
}

func attributeFormat(t renderer.VertexAttributeType) vk.Format {
	if f, ok := attributeFormats[t]; ok {
		return f
	}
	return vk.FormatUndefined
}

// attributeDescriptions places attribute i at location i of binding 0.
func attributeDescriptions(layout renderer.VertexLayout) vertexInputDescription {
	offsets := layout.Offsets()
	attributes := make([]vk.VertexInputAttributeDescription, len(layout))
	for i, attr := range layout {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: uint32(i),
			Binding:  0,
			Format:   attributeFormat(attr),
			Offset:   offsets[i],
		}
	}
	return vertexInputDescription{
		Binding: vk.VertexInputBindingDescription{
			Binding:   0,
			Stride:    layout.Stride(),
			InputRate: vk.VertexInputRateVertex,
		},
		Attributes: attributes,
	}
}

// VertexBuffer is either a staging buffer uploaded to device local memory
// every time the write cursor completes a cycle (static), or a single host
// coherent buffer written in place (dynamic).
type VertexBuffer struct {
	id     core.ResourceID
	layout renderer.VertexLayout
	btype  renderer.BufferType
	count  uint32
	stride uint32
	size   uint64
	pack   renderer.PackFunc
	conv   renderer.Conventions
	cursor *renderer.WriteCursor
	input  vertexInputDescription

	host   hostMemory
	upload func() error

	// Handle is the buffer bound for drawing.
	Handle  vk.Buffer
	staging vk.Buffer

	backend      *Backend
	releaseStack *releasestack.ReleaseStack
	destroyed    bool
}

func newVertexBuffer(cfg renderer.VertexBufferConfig, conv renderer.Conventions) (*VertexBuffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	vb := &VertexBuffer{
		id:           core.NewResourceID(),
		layout:       append(renderer.VertexLayout(nil), cfg.Layout...),
		btype:        cfg.Type,
		count:        cfg.VertexCount,
		stride:       cfg.Layout.Stride(),
		size:         cfg.Layout.BufferSize(cfg.VertexCount),
		pack:         cfg.Pack,
		conv:         conv,
		input:        attributeDescriptions(cfg.Layout),
		releaseStack: releasestack.New(),
	}
	vb.cursor = renderer.NewWriteCursor(vb.stride, vb.size)
	if err := vb.releaseStack.PushFunc(func() {
		core.LogDebug("Vertex buffer %s released.", vb.id.Short())
	}); err != nil {
		return nil, err
	}
	return vb, nil
}

func (b *Backend) CreateVertexBuffer(cfg renderer.VertexBufferConfig) (renderer.VertexBuffer, error) {
	vb, err := newVertexBuffer(cfg, b.Conventions())
	if err != nil {
		return nil, err
	}
	if b.context == nil {
		return nil, fmt.Errorf("%w: create vertex buffer before initialize", core.ErrPrecondition)
	}
	vb.backend = b

	if err := vb.allocate(b.context, &logicalBufferDevice{context: b.context}); err != nil {
		if derr := vb.releaseStack.Destroy(); derr != nil {
			core.LogWarn("vertex buffer unwind: %s", derr)
		}
		return nil, err
	}

	core.LogDebug("Vertex buffer %s created (%s): %d vertices, stride %d, %d bytes", vb.id.Short(), vb.btype, vb.count, vb.stride, vb.size)
	return vb, nil
}

func (vb *VertexBuffer) allocate(context *Context, device bufferDevice) error {
	hostFlags := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	families := context.Device.Families

	if vb.btype == renderer.BufferTypeDynamic {
		buffer, err := vb.createBuffer(device, "vertex",
			vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit), hostFlags, families.Graphics)
		if err != nil {
			return err
		}
		vb.Handle = buffer.Handle
		vb.host = &mappedMemory{device: context.Device.Logical, memory: buffer.Memory}
		return nil
	}

	staging, err := vb.createBuffer(device, "staging",
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), hostFlags, families.Transfer)
	if err != nil {
		return err
	}
	vb.staging = staging.Handle
	vb.host = &mappedMemory{device: context.Device.Logical, memory: staging.Memory}

	buffer, err := vb.createBuffer(device, "device",
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		families.Transfer, families.Graphics)
	if err != nil {
		return err
	}
	vb.Handle = buffer.Handle
	vb.upload = func() error { return vb.uploadStaging(context) }
	return nil
}

// createBuffer creates a buffer of vb.size bytes and registers its teardown:
// the buffer is destroyed before its memory is freed.
func (vb *VertexBuffer) createBuffer(device bufferDevice, role string, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags, families ...uint32) (*deviceBuffer, error) {
	buffer, err := device.CreateBuffer(role, vb.size, usage, properties, families...)
	if err != nil {
		return nil, err
	}
	if err := vb.releaseStack.Push(buffer, func(data any) { device.FreeMemory(data.(*deviceBuffer)) }); err != nil {
		return nil, err
	}
	if err := vb.releaseStack.Push(buffer, func(data any) { device.DestroyBuffer(data.(*deviceBuffer)) }); err != nil {
		return nil, err
	}
	return buffer, nil
}

// deviceBuffer is one buffer and the memory bound to it.
type deviceBuffer struct {
	Role   string
	Handle vk.Buffer
	Memory vk.DeviceMemory
}

// bufferDevice creates and frees buffers on a logical device.
type bufferDevice interface {
	CreateBuffer(role string, size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags, families ...uint32) (*deviceBuffer, error)
	DestroyBuffer(buffer *deviceBuffer)
	FreeMemory(buffer *deviceBuffer)
}

type logicalBufferDevice struct {
	context *Context
}

// CreateBuffer allocates its own memory for the buffer. A buffer used from
// more than one distinct family is shared concurrently.
func (d *logicalBufferDevice) CreateBuffer(role string, size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags, families ...uint32) (*deviceBuffer, error) {
	device := d.context.Device.Logical
	allocator := d.context.Allocator

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	if len(families) > 1 && families[0] != families[1] {
		createInfo.SharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = uint32(len(families))
		createInfo.PQueueFamilyIndices = families
	}

	var buffer vk.Buffer
	if err := resourceError(vk.CreateBuffer(device, &createInfo, allocator, &buffer), "vkCreateBuffer"); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buffer, &requirements)

	memoryIndex, err := d.context.FindMemoryIndex(requirements.MemoryTypeBits, properties)
	if err != nil {
		vk.DestroyBuffer(device, buffer, allocator)
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryIndex,
	}
	var memory vk.DeviceMemory
	if err := resourceError(vk.AllocateMemory(device, &allocateInfo, allocator, &memory), "vkAllocateMemory"); err != nil {
		vk.DestroyBuffer(device, buffer, allocator)
		return nil, err
	}
	if err := check(vk.BindBufferMemory(device, buffer, memory, 0), "vkBindBufferMemory"); err != nil {
		vk.DestroyBuffer(device, buffer, allocator)
		vk.FreeMemory(device, memory, allocator)
		return nil, err
	}
	return &deviceBuffer{Role: role, Handle: buffer, Memory: memory}, nil
}

func (d *logicalBufferDevice) DestroyBuffer(buffer *deviceBuffer) {
	vk.DestroyBuffer(d.context.Device.Logical, buffer.Handle, d.context.Allocator)
	buffer.Handle = vk.NullBuffer
}

func (d *logicalBufferDevice) FreeMemory(buffer *deviceBuffer) {
	vk.FreeMemory(d.context.Device.Logical, buffer.Memory, d.context.Allocator)
	buffer.Memory = vk.NullDeviceMemory
}

// uploadStaging copies the whole staging buffer to the device buffer and waits for it.
func (vb *VertexBuffer) uploadStaging(context *Context) error {
	// frames in flight may still read the device copy
	if err := check(vk.QueueWaitIdle(context.Device.GraphicsQueue), "vkQueueWaitIdle"); err != nil {
		return err
	}

	cmd := context.TransferCommandBuffer
	if err := cmd.Begin(true, false, false); err != nil {
		return err
	}
	vk.CmdCopyBuffer(cmd.Handle, vb.staging, vb.Handle, 1, []vk.BufferCopy{{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(vb.size),
	}})
	if err := cmd.SubmitAndWait(context.Device.TransferQueue); err != nil {
		return err
	}
	core.LogDebug("Vertex buffer %s uploaded %d bytes.", vb.id.Short(), vb.size)
	return nil
}

func (vb *VertexBuffer) ID() core.ResourceID           { return vb.id }
func (vb *VertexBuffer) Layout() renderer.VertexLayout { return vb.layout }
func (vb *VertexBuffer) Type() renderer.BufferType     { return vb.btype }
func (vb *VertexBuffer) Stride() uint32                { return vb.stride }
func (vb *VertexBuffer) VertexCount() uint32           { return vb.count }
func (vb *VertexBuffer) Size() uint64                  { return vb.size }
func (vb *VertexBuffer) Offset() uint64                { return vb.cursor.Offset() }

// Write packs vertex at the cursor. On a static buffer the write that
// completes a cycle uploads the staging copy before the cursor wraps.
func (vb *VertexBuffer) Write(vertex any) (uint64, error) {
	if vb.destroyed {
		return 0, fmt.Errorf("%w: write to destroyed vertex buffer %s", core.ErrPrecondition, vb.id.Short())
	}

	start, _ := vb.cursor.Span()
	dst, err := vb.host.Map(start, uint64(vb.stride))
	if err != nil {
		return 0, err
	}
	vb.pack(dst, vertex, vb.conv)
	vb.host.Unmap()

	if vb.upload != nil && vb.cursor.WillWrap() {
		if err := vb.upload(); err != nil {
			return 0, err
		}
	}
	vb.cursor.Advance()
	return vb.cursor.Offset(), nil
}

// Bind records the buffer into frame's command buffer. It needs an open frame.
func (vb *VertexBuffer) Bind(f renderer.Frame) error {
	if vb.destroyed {
		return fmt.Errorf("%w: bind of destroyed vertex buffer %s", core.ErrPrecondition, vb.id.Short())
	}
	if f == nil {
		return fmt.Errorf("%w: vertex buffer %s bound outside a frame", core.ErrPrecondition, vb.id.Short())
	}
	fr, err := vb.backend.openFrame(f)
	if err != nil {
		return err
	}
	vk.CmdBindVertexBuffers(fr.commandBuffer.Handle, 0, 1, []vk.Buffer{vb.Handle}, []vk.DeviceSize{0})
	return nil
}

// Destroy frees the device buffer and memory, then the staging pair of a static buffer.
func (vb *VertexBuffer) Destroy() error {
	if vb.destroyed {
		return fmt.Errorf("%w: vertex buffer %s destroyed twice", core.ErrPrecondition, vb.id.Short())
	}
	vb.destroyed = true
	return vb.releaseStack.Destroy()
}
