package opengl

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/spaghettifunk/meed/engine/assets"
	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/renderer"
)

var shaderTypes = map[renderer.ShaderType]uint32{
	renderer.ShaderTypeVertex:                 gl.VERTEX_SHADER,
	renderer.ShaderTypeFragment:               gl.FRAGMENT_SHADER,
	renderer.ShaderTypeGeometry:               gl.GEOMETRY_SHADER,
	renderer.ShaderTypeTessellationControl:    gl.TESS_CONTROL_SHADER,
	renderer.ShaderTypeTessellationEvaluation: gl.TESS_EVALUATION_SHADER,
}

// Shader is one compiled GLSL stage.
type Shader struct {
	Type   renderer.ShaderType
	Path   string
	handle uint32
	gl     glFuncs
}

// ShaderCreate compiles the GLSL source at path as a stage of type t.
func (b *Backend) ShaderCreate(t renderer.ShaderType, path string) (*Shader, error) {
	glType, ok := shaderTypes[t]
	if !ok {
		// compute needs OpenGL 4.3
		return nil, fmt.Errorf("%w: %s shaders are not available on OpenGL 4.1", core.ErrPrecondition, t)
	}

	source, err := assets.LoadShaderSource(path)
	if err != nil {
		return nil, err
	}

	handle := b.gl.CreateShader(glType)
	if handle == 0 {
		return nil, fmt.Errorf("%w: glCreateShader(%s)", core.ErrGPUCall, t)
	}
	b.gl.ShaderSource(handle, source)
	b.gl.CompileShader(handle)

	if b.gl.GetShaderiv(handle, gl.COMPILE_STATUS) == gl.FALSE {
		msg := b.gl.GetShaderInfoLog(handle)
		b.gl.DeleteShader(handle)
		return nil, fmt.Errorf("%w: shader %q compilation failed: %s", core.ErrShaderCompile, path, msg)
	}

	core.LogDebug("Compiled %s shader %s", t, path)
	return &Shader{Type: t, Path: path, handle: handle, gl: b.gl}, nil
}

func (s *Shader) Destroy() {
	if s.handle == 0 {
		return
	}
	s.gl.DeleteShader(s.handle)
	s.handle = 0
}
