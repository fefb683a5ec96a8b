package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/Eiton/vulkan"

	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/releasestack"
	"github.com/spaghettifunk/meed/engine/renderer"
)

// Pipeline is a graphics pipeline drawn with dynamic rendering into the
// swapchain format. Its fixed function state is compiled in: triangle lists,
// fill mode, back face culling, clockwise front faces, depth test and write
// with LESS, no blending, dynamic viewport and scissor.
type Pipeline struct {
	id           core.ResourceID
	vertexPath   string
	fragmentPath string

	Handle vk.Pipeline
	Layout vk.PipelineLayout

	backend      *Backend
	releaseStack *releasestack.ReleaseStack
	destroyed    bool
}

func (b *Backend) CreatePipeline(cfg renderer.PipelineConfig) (renderer.Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.context == nil {
		return nil, fmt.Errorf("%w: create pipeline before initialize", core.ErrPrecondition)
	}

	var vertexInput *vertexInputDescription
	if cfg.VertexBuffer != nil {
		vb, ok := cfg.VertexBuffer.(*VertexBuffer)
		if !ok {
			return nil, fmt.Errorf("%w: pipeline vertex buffer does not belong to the vulkan backend", core.ErrPrecondition)
		}
		vertexInput = &vb.input
	}

	p, err := newPipeline(b, cfg.VertexShaderPath, cfg.FragmentShaderPath)
	if err != nil {
		return nil, err
	}

	if err := p.build(b.context, vertexInput); err != nil {
		if derr := p.releaseStack.Destroy(); derr != nil {
			core.LogWarn("pipeline unwind: %s", derr)
		}
		return nil, err
	}

	core.LogInfo("Pipeline %s created (%s, %s)", p.id.Short(), p.vertexPath, p.fragmentPath)
	return p, nil
}

func newPipeline(b *Backend, vertexPath, fragmentPath string) (*Pipeline, error) {
	p := &Pipeline{
		id:           core.NewResourceID(),
		vertexPath:   vertexPath,
		fragmentPath: fragmentPath,
		backend:      b,
		releaseStack: releasestack.New(),
	}
	if err := p.releaseStack.PushFunc(func() {
		core.LogDebug("Pipeline %s released.", p.id.Short())
	}); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) build(context *Context, vertexInput *vertexInputDescription) error {
	vs, err := ShaderCreate(context, renderer.ShaderTypeVertex, p.vertexPath)
	if err != nil {
		return err
	}
	defer vs.Destroy(context)

	fs, err := ShaderCreate(context, renderer.ShaderTypeFragment, p.fragmentPath)
	if err != nil {
		return err
	}
	defer fs.Destroy(context)

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if vertexInput != nil {
		vertexInputInfo.VertexBindingDescriptionCount = 1
		vertexInputInfo.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{vertexInput.Binding}
		vertexInputInfo.VertexAttributeDescriptionCount = uint32(len(vertexInput.Attributes))
		vertexInputInfo.PVertexAttributeDescriptions = vertexInput.Attributes
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		CullMode:                vk.CullModeFlags(vk.CullModeBackBit),
		FrontFace:               vk.FrontFaceClockwise,
		DepthBiasEnable:         vk.False,
		LineWidth:               1.0,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		SampleShadingEnable:  vk.False,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vk.True,
		DepthWriteEnable:      vk.True,
		DepthCompareOp:        vk.CompareOpLess,
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
	}

	colorBlendAttachment := vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachment},
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	renderingInfo := vk.PipelineRenderingCreateInfo{
		SType:                   vk.StructureTypePipelineRenderingCreateInfo,
		ColorAttachmentCount:    1,
		PColorAttachmentFormats: []vk.Format{context.Swapchain.ImageFormat()},
	}
	// the chained struct carries a slice, so it goes through the binding's C copy
	renderingRef, _ := renderingInfo.PassRef()
	defer renderingInfo.Free()

	stages := []vk.PipelineShaderStageCreateInfo{vs.stageCreateInfo(), fs.stageCreateInfo()}
	return p.assemble(&logicalPipelineDevice{context: context}, func(layout vk.PipelineLayout) vk.GraphicsPipelineCreateInfo {
		return vk.GraphicsPipelineCreateInfo{
			SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
			PNext:               unsafe.Pointer(renderingRef),
			StageCount:          uint32(len(stages)),
			PStages:             stages,
			PVertexInputState:   &vertexInputInfo,
			PInputAssemblyState: &inputAssembly,
			PViewportState:      &viewportState,
			PRasterizationState: &rasterizer,
			PMultisampleState:   &multisampling,
			PDepthStencilState:  &depthStencil,
			PColorBlendState:    &colorBlend,
			PDynamicState:       &dynamicState,
			Layout:              layout,
			RenderPass:          vk.NullRenderPass,
			BasePipelineHandle:  vk.NullPipeline,
			BasePipelineIndex:   -1,
		}
	})
}

// assemble creates the layout, then the pipeline described for it. The
// release stack destroys the pipeline before its layout.
func (p *Pipeline) assemble(device pipelineDevice, describe func(layout vk.PipelineLayout) vk.GraphicsPipelineCreateInfo) error {
	layout, err := device.CreatePipelineLayout()
	if err != nil {
		return err
	}
	p.Layout = layout
	if err := p.releaseStack.PushFunc(func() { device.DestroyPipelineLayout(layout) }); err != nil {
		return err
	}

	handle, err := device.CreateGraphicsPipeline(describe(layout))
	if err != nil {
		return fmt.Errorf("pipeline (%s, %s): %w", p.vertexPath, p.fragmentPath, err)
	}
	p.Handle = handle
	return p.releaseStack.PushFunc(func() { device.DestroyPipeline(handle) })
}

// pipelineDevice creates and frees pipeline objects on a logical device.
type pipelineDevice interface {
	CreatePipelineLayout() (vk.PipelineLayout, error)
	CreateGraphicsPipeline(info vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error)
	DestroyPipelineLayout(layout vk.PipelineLayout)
	DestroyPipeline(pipeline vk.Pipeline)
}

type logicalPipelineDevice struct {
	context *Context
}

// CreatePipelineLayout creates a layout with no descriptor sets or push constants.
func (d *logicalPipelineDevice) CreatePipelineLayout() (vk.PipelineLayout, error) {
	createInfo := vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}
	var layout vk.PipelineLayout
	if err := resourceError(vk.CreatePipelineLayout(d.context.Device.Logical, &createInfo, d.context.Allocator, &layout), "vkCreatePipelineLayout"); err != nil {
		return vk.NullPipelineLayout, err
	}
	return layout, nil
}

func (d *logicalPipelineDevice) CreateGraphicsPipeline(info vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error) {
	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(d.context.Device.Logical, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{info}, d.context.Allocator, pipelines); !VulkanResultIsSuccess(res) {
		return vk.NullPipeline, fmt.Errorf("%w: vkCreateGraphicsPipelines failed with %s", core.ErrShaderCompile, VulkanResultString(res))
	}
	return pipelines[0], nil
}

func (d *logicalPipelineDevice) DestroyPipelineLayout(layout vk.PipelineLayout) {
	vk.DestroyPipelineLayout(d.context.Device.Logical, layout, d.context.Allocator)
}

func (d *logicalPipelineDevice) DestroyPipeline(pipeline vk.Pipeline) {
	vk.DestroyPipeline(d.context.Device.Logical, pipeline, d.context.Allocator)
}

func (p *Pipeline) ID() core.ResourceID        { return p.id }
func (p *Pipeline) VertexShaderPath() string   { return p.vertexPath }
func (p *Pipeline) FragmentShaderPath() string { return p.fragmentPath }

// Use binds the pipeline into the frame's command buffer.
func (p *Pipeline) Use(f renderer.Frame) error {
	if p.destroyed {
		return fmt.Errorf("%w: use of destroyed pipeline %s", core.ErrPrecondition, p.id.Short())
	}
	fr, err := p.backend.openFrame(f)
	if err != nil {
		return err
	}
	vk.CmdBindPipeline(fr.commandBuffer.Handle, vk.PipelineBindPointGraphics, p.Handle)
	return nil
}

// Destroy frees the pipeline, then its layout. The device must be done with it.
func (p *Pipeline) Destroy() error {
	if p.destroyed {
		return fmt.Errorf("%w: pipeline %s destroyed twice", core.ErrPrecondition, p.id.Short())
	}
	p.destroyed = true
	return p.releaseStack.Destroy()
}
