package opengl

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/releasestack"
	"github.com/spaghettifunk/meed/engine/renderer"
)

// Pipeline is a linked GL program. Fixed function state stays at the GL defaults.
type Pipeline struct {
	id           core.ResourceID
	vertexPath   string
	fragmentPath string

	program      uint32
	backend      *Backend
	releaseStack *releasestack.ReleaseStack
	destroyed    bool
}

// CreatePipeline links the two stages named by cfg. The vertex input layout
// comes from the VAO bound at draw time, so cfg.VertexBuffer is not read.
func (b *Backend) CreatePipeline(cfg renderer.PipelineConfig) (renderer.Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !b.initialized {
		return nil, fmt.Errorf("%w: create pipeline before initialize", core.ErrPrecondition)
	}

	p := &Pipeline{
		id:           core.NewResourceID(),
		vertexPath:   cfg.VertexShaderPath,
		fragmentPath: cfg.FragmentShaderPath,
		backend:      b,
		releaseStack: releasestack.New(),
	}

	if err := p.link(); err != nil {
		if derr := p.releaseStack.Destroy(); derr != nil {
			core.LogWarn("pipeline unwind: %s", derr)
		}
		return nil, err
	}

	core.LogInfo("Pipeline %s created (%s, %s)", p.id.Short(), p.vertexPath, p.fragmentPath)
	return p, nil
}

func (p *Pipeline) link() error {
	g := p.backend.gl

	p.program = g.CreateProgram()
	if p.program == 0 {
		return fmt.Errorf("%w: glCreateProgram", core.ErrGPUCall)
	}
	program := p.program
	if err := p.releaseStack.PushFunc(func() { g.DeleteProgram(program) }); err != nil {
		return err
	}

	vs, err := p.backend.ShaderCreate(renderer.ShaderTypeVertex, p.vertexPath)
	if err != nil {
		return err
	}
	defer vs.Destroy()

	fs, err := p.backend.ShaderCreate(renderer.ShaderTypeFragment, p.fragmentPath)
	if err != nil {
		return err
	}
	defer fs.Destroy()

	g.AttachShader(program, vs.handle)
	g.AttachShader(program, fs.handle)
	g.LinkProgram(program)
	// the program keeps the linked binaries
	g.DetachShader(program, vs.handle)
	g.DetachShader(program, fs.handle)

	if g.GetProgramiv(program, gl.LINK_STATUS) == gl.FALSE {
		return fmt.Errorf("%w: shader program linking failed: %s", core.ErrShaderCompile, g.GetProgramInfoLog(program))
	}
	return nil
}

func (p *Pipeline) ID() core.ResourceID        { return p.id }
func (p *Pipeline) VertexShaderPath() string   { return p.vertexPath }
func (p *Pipeline) FragmentShaderPath() string { return p.fragmentPath }

func (p *Pipeline) Use(f renderer.Frame) error {
	if p.destroyed {
		return fmt.Errorf("%w: use of destroyed pipeline %s", core.ErrPrecondition, p.id.Short())
	}
	if _, err := p.backend.openFrame(f); err != nil {
		return err
	}
	p.backend.gl.UseProgram(p.program)
	return nil
}

func (p *Pipeline) Destroy() error {
	if p.destroyed {
		return fmt.Errorf("%w: pipeline %s destroyed twice", core.ErrPrecondition, p.id.Short())
	}
	p.destroyed = true
	core.LogDebug("Destroying pipeline %s", p.id.Short())
	return p.releaseStack.Destroy()
}
