package testbed

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/meed/engine"
	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/platform"
	"github.com/spaghettifunk/meed/engine/renderer"
)

type fakeFrame struct{ draws [][4]uint32 }

func (f *fakeFrame) Index() uint32 { return 0 }
func (f *fakeFrame) Draw(vc, ic, fv, fi uint32) error {
	f.draws = append(f.draws, [4]uint32{vc, ic, fv, fi})
	return nil
}

type fakePipeline struct {
	log        *[]string
	vert, frag string
}

func (p *fakePipeline) ID() core.ResourceID        { return "" }
func (p *fakePipeline) VertexShaderPath() string   { return p.vert }
func (p *fakePipeline) FragmentShaderPath() string { return p.frag }
func (p *fakePipeline) Use(renderer.Frame) error {
	*p.log = append(*p.log, "use")
	return nil
}
func (p *fakePipeline) Destroy() error {
	*p.log = append(*p.log, "destroy pipeline")
	return nil
}

type fakeVertexBuffer struct {
	log    *[]string
	cfg    renderer.VertexBufferConfig
	data   []byte
	cursor *renderer.WriteCursor
}

func (vb *fakeVertexBuffer) ID() core.ResourceID           { return "" }
func (vb *fakeVertexBuffer) Layout() renderer.VertexLayout { return vb.cfg.Layout }
func (vb *fakeVertexBuffer) Type() renderer.BufferType     { return vb.cfg.Type }
func (vb *fakeVertexBuffer) Stride() uint32                { return vb.cfg.Layout.Stride() }
func (vb *fakeVertexBuffer) VertexCount() uint32           { return vb.cfg.VertexCount }
func (vb *fakeVertexBuffer) Size() uint64                  { return uint64(len(vb.data)) }
func (vb *fakeVertexBuffer) Offset() uint64                { return vb.cursor.Offset() }
func (vb *fakeVertexBuffer) Write(v any) (uint64, error) {
	start, end := vb.cursor.Span()
	vb.cfg.Pack(vb.data[start:end], v, renderer.Conventions{FlipY: true})
	vb.cursor.Advance()
	return vb.cursor.Offset(), nil
}
func (vb *fakeVertexBuffer) Bind(renderer.Frame) error {
	*vb.log = append(*vb.log, "bind")
	return nil
}
func (vb *fakeVertexBuffer) Destroy() error {
	*vb.log = append(*vb.log, "destroy buffer")
	return nil
}

type fakeBackend struct {
	log       []string
	pipelines []*fakePipeline
	buffer    *fakeVertexBuffer
}

func (b *fakeBackend) Initialize(*platform.Window, *core.Config) error { return nil }
func (b *fakeBackend) Shutdown() error                                 { return nil }
func (b *fakeBackend) ClearScreen(mgl32.Vec4)                          {}
func (b *fakeBackend) StartFrame() (renderer.Frame, error)             { return &fakeFrame{}, nil }
func (b *fakeBackend) EndFrame(renderer.Frame) error                   { return nil }
func (b *fakeBackend) Present() error                                  { return nil }
func (b *fakeBackend) WaitIdle() error {
	b.log = append(b.log, "idle")
	return nil
}
func (b *fakeBackend) CreatePipeline(cfg renderer.PipelineConfig) (renderer.Pipeline, error) {
	p := &fakePipeline{log: &b.log, vert: cfg.VertexShaderPath, frag: cfg.FragmentShaderPath}
	b.pipelines = append(b.pipelines, p)
	b.log = append(b.log, "create pipeline")
	return p, nil
}
func (b *fakeBackend) CreateVertexBuffer(cfg renderer.VertexBufferConfig) (renderer.VertexBuffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	size := cfg.Layout.BufferSize(cfg.VertexCount)
	b.buffer = &fakeVertexBuffer{
		log:    &b.log,
		cfg:    cfg,
		data:   make([]byte, size),
		cursor: renderer.NewWriteCursor(cfg.Layout.Stride(), size),
	}
	b.log = append(b.log, "create buffer")
	return b.buffer, nil
}
func (b *fakeBackend) Conventions() renderer.Conventions { return renderer.Conventions{FlipY: true} }

func spvPath(cfg *core.Config) ShaderPathFunc {
	return func(name string) string {
		return cfg.ShaderPath(filepath.Join("vulkan", name), ".spv")
	}
}

func newTestGame(t *testing.T) (*TriangleGame, *fakeBackend, *renderer.Renderer) {
	t.Helper()
	cfg := core.DefaultConfig()
	b := &fakeBackend{}
	app := &engine.ApplicationConfig{Config: cfg, Backend: b}
	g, err := NewTriangleGame(app, spvPath(cfg))
	require.NoError(t, err)

	r := renderer.New(b)
	require.NoError(t, r.Initialize(nil, cfg))
	require.NoError(t, g.Initialize(r))
	return g, b, r
}

func float32At(data []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
}

func TestNewTriangleGameRequiresInputs(t *testing.T) {
	_, err := NewTriangleGame(nil, func(string) string { return "" })
	assert.ErrorIs(t, err, core.ErrPrecondition)

	_, err = NewTriangleGame(&engine.ApplicationConfig{Config: core.DefaultConfig()}, nil)
	assert.ErrorIs(t, err, core.ErrPrecondition)
}

func TestInitializeUploadsTriangle(t *testing.T) {
	_, b, _ := newTestGame(t)

	assert.Equal(t, []string{"create buffer", "create pipeline"}, b.log)
	require.NotNil(t, b.buffer)
	assert.Equal(t, uint32(3), b.buffer.VertexCount())
	assert.Equal(t, uint32(20), b.buffer.Stride())
	assert.Equal(t, uint64(0), b.buffer.Offset())

	// first vertex, Y flipped
	assert.Equal(t, float32(0), float32At(b.buffer.data, 0))
	assert.Equal(t, float32(-0.5), float32At(b.buffer.data, 1))
	assert.Equal(t, float32(1), float32At(b.buffer.data, 2))

	require.Len(t, b.pipelines, 1)
	assert.Equal(t, filepath.Join("shaders", "vulkan", "triangle.vert.spv"), b.pipelines[0].vert)
	assert.Equal(t, filepath.Join("shaders", "vulkan", "triangle.frag.spv"), b.pipelines[0].frag)
}

func TestPackVertexKeepsYWithoutFlip(t *testing.T) {
	dst := make([]byte, 20)
	packVertex(dst, triangle[0], renderer.Conventions{})
	assert.Equal(t, float32(0.5), float32At(dst, 1))
}

func TestRenderDrawsThreeVertices(t *testing.T) {
	g, b, r := newTestGame(t)

	var frame *fakeFrame
	require.NoError(t, r.DrawFrame(func(f renderer.Frame) error {
		frame = f.(*fakeFrame)
		return g.Render(f, 0)
	}))
	assert.Equal(t, []string{"use", "bind"}, b.log[2:])
	assert.Equal(t, [][4]uint32{{3, 1, 0, 0}}, frame.draws)
}

func TestOnShaderChangeRebuildsPipeline(t *testing.T) {
	g, b, _ := newTestGame(t)
	b.log = nil

	require.NoError(t, g.OnShaderChange(filepath.Join("shaders", "unrelated.glsl")))
	assert.Empty(t, b.log)

	require.NoError(t, g.OnShaderChange(filepath.Join("shaders", "vulkan", "triangle.frag.spv")))
	assert.Equal(t, []string{"idle", "destroy pipeline", "create pipeline"}, b.log)
	assert.Len(t, b.pipelines, 2)
}

func TestShutdownDestroysPipelineBeforeBuffer(t *testing.T) {
	g, b, _ := newTestGame(t)
	b.log = nil

	require.NoError(t, g.Shutdown())
	assert.Equal(t, []string{"destroy pipeline", "destroy buffer"}, b.log)

	b.log = nil
	require.NoError(t, g.Shutdown())
	assert.Empty(t, b.log)
}
