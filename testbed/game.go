package testbed

import (
	"fmt"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/meed/engine"
	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/renderer"
)

// ShaderPathFunc maps a shader base name such as "triangle.vert" to the file
// the active backend loads.
type ShaderPathFunc func(name string) string

type Vertex struct {
	Position mgl32.Vec2
	Color    mgl32.Vec3
}

var triangleLayout = renderer.VertexLayout{
	renderer.VertexAttributeFloat2,
	renderer.VertexAttributeFloat3,
}

var triangle = []Vertex{
	{Position: mgl32.Vec2{0.0, 0.5}, Color: mgl32.Vec3{1, 0, 0}},
	{Position: mgl32.Vec2{0.5, -0.5}, Color: mgl32.Vec3{0, 1, 0}},
	{Position: mgl32.Vec2{-0.5, -0.5}, Color: mgl32.Vec3{0, 0, 1}},
}

func packVertex(dst []byte, v any, conv renderer.Conventions) {
	vert := v.(Vertex)
	y := vert.Position.Y()
	if conv.FlipY {
		y = -y
	}
	n := renderer.PutFloat32s(dst, vert.Position.X(), y)
	renderer.PutFloat32s(dst[n:], vert.Color[:]...)
}

type TriangleGame struct {
	*engine.Game
	shaderPath ShaderPathFunc
}

type gameState struct {
	renderer     *renderer.Renderer
	vertexBuffer renderer.VertexBuffer
	pipeline     renderer.Pipeline
	frames       uint64
}

func NewTriangleGame(app *engine.ApplicationConfig, shaderPath ShaderPathFunc) (*TriangleGame, error) {
	if app == nil || app.Config == nil {
		return nil, fmt.Errorf("%w: triangle game needs a config", core.ErrPrecondition)
	}
	if shaderPath == nil {
		return nil, fmt.Errorf("%w: triangle game needs a shader path func", core.ErrPrecondition)
	}
	tg := &TriangleGame{
		Game: &engine.Game{
			ApplicationConfig: app,
			State:             &gameState{},
		},
		shaderPath: shaderPath,
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnShaderChange = tg.OnShaderChange
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TriangleGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TriangleGame) Initialize(r *renderer.Renderer) error {
	core.LogInfo("initializing triangle testbed...")
	s := g.state()
	s.renderer = r

	vb, err := r.Backend().CreateVertexBuffer(renderer.VertexBufferConfig{
		Layout:      triangleLayout,
		VertexCount: uint32(len(triangle)),
		Pack:        packVertex,
		Type:        renderer.BufferTypeStatic,
	})
	if err != nil {
		return err
	}
	s.vertexBuffer = vb

	for _, v := range triangle {
		if _, err := vb.Write(v); err != nil {
			return err
		}
	}
	return g.createPipeline()
}

func (g *TriangleGame) createPipeline() error {
	s := g.state()
	cfg := g.ApplicationConfig.Config
	p, err := s.renderer.Backend().CreatePipeline(renderer.PipelineConfig{
		VertexShaderPath:   g.shaderPath(cfg.Shaders.Vertex),
		FragmentShaderPath: g.shaderPath(cfg.Shaders.Fragment),
		VertexBuffer:       s.vertexBuffer,
	})
	if err != nil {
		return err
	}
	s.pipeline = p
	return nil
}

func (g *TriangleGame) Update(deltaTime float64) error {
	g.state().frames++
	return nil
}

func (g *TriangleGame) Render(frame renderer.Frame, deltaTime float64) error {
	s := g.state()
	if s.pipeline == nil {
		return nil
	}
	if err := s.pipeline.Use(frame); err != nil {
		return err
	}
	if err := s.vertexBuffer.Bind(frame); err != nil {
		return err
	}
	return frame.Draw(s.vertexBuffer.VertexCount(), 1, 0, 0)
}

// OnShaderChange rebuilds the pipeline when one of its shader sources changed.
func (g *TriangleGame) OnShaderChange(path string) error {
	s := g.state()
	if s.pipeline == nil || !g.usesShader(path) {
		return nil
	}
	if err := s.renderer.WaitIdle(); err != nil {
		return err
	}
	if err := s.pipeline.Destroy(); err != nil {
		return err
	}
	s.pipeline = nil
	if err := g.createPipeline(); err != nil {
		// keep running without a pipeline until the shader is fixed
		core.LogError("pipeline rebuild failed: %s", err)
		return nil
	}
	core.LogInfo("pipeline rebuilt after %s changed", filepath.Base(path))
	return nil
}

func (g *TriangleGame) usesShader(path string) bool {
	cfg := g.ApplicationConfig.Config
	base := filepath.Base(path)
	for _, name := range []string{cfg.Shaders.Vertex, cfg.Shaders.Fragment} {
		if base == filepath.Base(g.shaderPath(name)) || base == name {
			return true
		}
	}
	return false
}

func (g *TriangleGame) Shutdown() error {
	core.LogInfo("shutting down triangle testbed...")
	s := g.state()
	if s.pipeline != nil {
		if err := s.pipeline.Destroy(); err != nil {
			return err
		}
		s.pipeline = nil
	}
	if s.vertexBuffer != nil {
		if err := s.vertexBuffer.Destroy(); err != nil {
			return err
		}
		s.vertexBuffer = nil
	}
	return nil
}
