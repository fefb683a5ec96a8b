package renderer

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/platform"
)

// FramesInFlight is how many frames the CPU may record ahead of the GPU.
const FramesInFlight = 3

// Backend is implemented once per graphics API.
type Backend interface {
	Initialize(window *platform.Window, cfg *core.Config) error
	Shutdown() error

	// ClearScreen sets the color the next frame's color attachment is cleared to.
	ClearScreen(color mgl32.Vec4)
	StartFrame() (Frame, error)
	EndFrame(frame Frame) error
	Present() error
	// WaitIdle blocks until every submitted command has completed.
	WaitIdle() error

	CreatePipeline(cfg PipelineConfig) (Pipeline, error)
	CreateVertexBuffer(cfg VertexBufferConfig) (VertexBuffer, error)

	Conventions() Conventions
}

// Frame records commands between StartFrame and EndFrame. A Frame is invalid after EndFrame.
type Frame interface {
	Index() uint32
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error
}

type PipelineConfig struct {
	VertexShaderPath   string
	FragmentShaderPath string
	// VertexBuffer, when set, provides the vertex input layout of the pipeline.
	VertexBuffer VertexBuffer
}

func (c PipelineConfig) Validate() error {
	if c.VertexShaderPath == "" || c.FragmentShaderPath == "" {
		return fmt.Errorf("%w: pipeline needs both a vertex and a fragment shader path", core.ErrPrecondition)
	}
	return nil
}

type Pipeline interface {
	ID() core.ResourceID
	VertexShaderPath() string
	FragmentShaderPath() string
	// Use makes the pipeline the active one for the following draws of frame.
	Use(frame Frame) error
	Destroy() error
}

type BufferType int

const (
	// BufferTypeStatic writes into a staging copy that is uploaded once the buffer is full.
	BufferTypeStatic BufferType = iota
	// BufferTypeDynamic writes straight into host visible memory.
	BufferTypeDynamic
)

func (t BufferType) String() string {
	if t == BufferTypeDynamic {
		return "dynamic"
	}
	return "static"
}

type VertexBufferConfig struct {
	Layout      VertexLayout
	VertexCount uint32
	Pack        PackFunc
	Type        BufferType
}

func (c VertexBufferConfig) Validate() error {
	if c.Pack == nil {
		return fmt.Errorf("%w: vertex buffer needs a pack function", core.ErrPrecondition)
	}
	if c.VertexCount == 0 {
		return fmt.Errorf("%w: vertex buffer needs at least one vertex", core.ErrPrecondition)
	}
	return c.Layout.Validate()
}

type VertexBuffer interface {
	ID() core.ResourceID
	Layout() VertexLayout
	Type() BufferType
	Stride() uint32
	VertexCount() uint32
	Size() uint64
	// Offset is the byte position the next Write lands on.
	Offset() uint64
	// Write packs one vertex at the cursor and returns the advanced cursor.
	Write(vertex any) (uint64, error)
	Bind(frame Frame) error
	Destroy() error
}

type ShaderType int

const (
	ShaderTypeVertex ShaderType = iota
	ShaderTypeFragment
	ShaderTypeCompute
	ShaderTypeGeometry
	ShaderTypeTessellationControl
	ShaderTypeTessellationEvaluation
)

func (t ShaderType) String() string {
	switch t {
	case ShaderTypeVertex:
		return "vertex"
	case ShaderTypeFragment:
		return "fragment"
	case ShaderTypeCompute:
		return "compute"
	case ShaderTypeGeometry:
		return "geometry"
	case ShaderTypeTessellationControl:
		return "tessellation control"
	case ShaderTypeTessellationEvaluation:
		return "tessellation evaluation"
	default:
		return fmt.Sprintf("ShaderType(%d)", int(t))
	}
}
