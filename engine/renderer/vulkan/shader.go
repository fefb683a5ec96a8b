package vulkan

import (
	"fmt"

	vk "github.com/Eiton/vulkan"

	"github.com/spaghettifunk/meed/engine/assets"
	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/renderer"
)

var shaderStages = map[renderer.ShaderType]vk.ShaderStageFlagBits{
	renderer.ShaderTypeVertex:                 vk.ShaderStageVertexBit,
	renderer.ShaderTypeFragment:               vk.ShaderStageFragmentBit,
	renderer.ShaderTypeCompute:                vk.ShaderStageComputeBit,
	renderer.ShaderTypeGeometry:               vk.ShaderStageGeometryBit,
	renderer.ShaderTypeTessellationControl:    vk.ShaderStageTessellationControlBit,
	renderer.ShaderTypeTessellationEvaluation: vk.ShaderStageTessellationEvaluationBit,
}

// Shader wraps a SPIR-V module. The driver copies what it needs at pipeline
// creation, so the module may be destroyed right after.
type Shader struct {
	Type   renderer.ShaderType
	Path   string
	Handle vk.ShaderModule
	Stage  vk.ShaderStageFlagBits
}

func ShaderCreate(context *Context, t renderer.ShaderType, path string) (*Shader, error) {
	stage, ok := shaderStages[t]
	if !ok {
		return nil, fmt.Errorf("%w: unknown shader type %s", core.ErrPrecondition, t)
	}

	code, err := assets.LoadSPIRV(path)
	if err != nil {
		return nil, err
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}

	var handle vk.ShaderModule
	if res := vk.CreateShaderModule(context.Device.Logical, &createInfo, context.Allocator, &handle); !VulkanResultIsSuccess(res) {
		return nil, fmt.Errorf("%w: vkCreateShaderModule(%s) failed with %s", core.ErrShaderCompile, path, VulkanResultString(res))
	}

	core.LogDebug("Created %s shader module from %s", t, path)
	return &Shader{Type: t, Path: path, Handle: handle, Stage: stage}, nil
}

func (s *Shader) stageCreateInfo() vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  s.Stage,
		Module: s.Handle,
		PName:  VulkanSafeString("main"),
	}
}

func (s *Shader) Destroy(context *Context) {
	if s.Handle == vk.NullShaderModule {
		return
	}
	vk.DestroyShaderModule(context.Device.Logical, s.Handle, context.Allocator)
	s.Handle = vk.NullShaderModule
}
