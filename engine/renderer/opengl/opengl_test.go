package opengl

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/renderer"
)

type drawCall struct {
	mode         uint32
	first, count int32
	instances    int32
	vao          uint32
}

type attribPointer struct {
	index    uint32
	size     int32
	xtype    uint32
	stride   int32
	offset   uintptr
	integral bool
}

// fakeGL keeps just enough state to check what the backend asked for.
type fakeGL struct {
	calls   []string
	next    uint32
	errors  []uint32
	sources map[uint32]string

	failCompile bool
	failLink    bool

	buffers     map[uint32][]byte
	boundBuffer uint32
	boundVAO    uint32
	program     uint32
	attribs     []attribPointer
	draws       []drawCall
	deleted     []string
}

func newFakeGL() *fakeGL {
	return &fakeGL{sources: map[uint32]string{}, buffers: map[uint32][]byte{}}
}

func (f *fakeGL) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}
func (f *fakeGL) handle() uint32 { f.next++; return f.next }

func (f *fakeGL) Init(procAddr func(name string) unsafe.Pointer) error {
	f.record("Init")
	procAddr("glGetString")
	return nil
}
func (f *fakeGL) GetString(name uint32) string { return "fake" }
func (f *fakeGL) GetError() uint32 {
	if len(f.errors) == 0 {
		return gl.NO_ERROR
	}
	e := f.errors[0]
	f.errors = f.errors[1:]
	return e
}
func (f *fakeGL) Viewport(x, y, w, h int32) { f.record("Viewport %d %d", w, h) }
func (f *fakeGL) ClearColor(r, g, b, a float32) {
	f.record("ClearColor %.1f %.1f %.1f %.1f", r, g, b, a)
}
func (f *fakeGL) Clear(mask uint32) { f.record("Clear") }

func (f *fakeGL) CreateShader(xtype uint32) uint32 { return f.handle() }
func (f *fakeGL) ShaderSource(shader uint32, source string) {
	f.sources[shader] = source
}
func (f *fakeGL) CompileShader(shader uint32) {}
func (f *fakeGL) GetShaderiv(shader, pname uint32) int32 {
	if f.failCompile {
		return gl.FALSE
	}
	return gl.TRUE
}
func (f *fakeGL) GetShaderInfoLog(shader uint32) string { return "0:1: syntax error" }
func (f *fakeGL) DeleteShader(shader uint32)            { f.deleted = append(f.deleted, "shader") }

func (f *fakeGL) CreateProgram() uint32               { return f.handle() }
func (f *fakeGL) AttachShader(program, shader uint32) {}
func (f *fakeGL) DetachShader(program, shader uint32) {}
func (f *fakeGL) LinkProgram(program uint32)          {}
func (f *fakeGL) GetProgramiv(program, pname uint32) int32 {
	if f.failLink {
		return gl.FALSE
	}
	return gl.TRUE
}
func (f *fakeGL) GetProgramInfoLog(program uint32) string { return "undefined output" }
func (f *fakeGL) UseProgram(program uint32)               { f.program = program }
func (f *fakeGL) DeleteProgram(program uint32)            { f.deleted = append(f.deleted, "program") }

func (f *fakeGL) GenBuffer() uint32 { return f.handle() }
func (f *fakeGL) BindBuffer(target, buffer uint32) {
	f.boundBuffer = buffer
}
func (f *fakeGL) BufferData(target uint32, size int, usage uint32) {
	f.buffers[f.boundBuffer] = make([]byte, size)
}
func (f *fakeGL) MapBufferRange(target uint32, offset, length int, access uint32) []byte {
	return f.buffers[f.boundBuffer][offset : offset+length]
}
func (f *fakeGL) UnmapBuffer(target uint32) bool { return true }
func (f *fakeGL) DeleteBuffer(buffer uint32)     { f.deleted = append(f.deleted, "buffer") }

func (f *fakeGL) GenVertexArray() uint32               { return f.handle() }
func (f *fakeGL) BindVertexArray(array uint32)         { f.boundVAO = array }
func (f *fakeGL) DeleteVertexArray(array uint32)       { f.deleted = append(f.deleted, "vao") }
func (f *fakeGL) EnableVertexAttribArray(index uint32) {}
func (f *fakeGL) VertexAttribPointer(index uint32, size int32, xtype uint32, normalized bool, stride int32, offset uintptr) {
	f.attribs = append(f.attribs, attribPointer{index, size, xtype, stride, offset, false})
}
func (f *fakeGL) VertexAttribIPointer(index uint32, size int32, xtype uint32, stride int32, offset uintptr) {
	f.attribs = append(f.attribs, attribPointer{index, size, xtype, stride, offset, true})
}
func (f *fakeGL) DrawArrays(mode uint32, first, count int32) {
	f.draws = append(f.draws, drawCall{mode, first, count, 1, f.boundVAO})
}
func (f *fakeGL) DrawArraysInstanced(mode uint32, first, count, instances int32) {
	f.draws = append(f.draws, drawCall{mode, first, count, instances, f.boundVAO})
}

type fakeSurface struct {
	width, height uint32
	swaps         int
	lookups       []string
}

func (s *fakeSurface) FramebufferSize() (uint32, uint32) { return s.width, s.height }
func (s *fakeSurface) SwapBuffers()                      { s.swaps++ }
func (s *fakeSurface) GLProcAddress(name string) unsafe.Pointer {
	s.lookups = append(s.lookups, name)
	return nil
}

func newTestBackend(t *testing.T) (*Backend, *fakeGL, *fakeSurface) {
	t.Helper()
	g := newFakeGL()
	s := &fakeSurface{width: 800, height: 600}
	b := newBackend(g, s)
	require.NoError(t, b.Initialize(nil, core.DefaultConfig()))
	return b, g, s
}

func writeShaders(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	vert := filepath.Join(dir, "triangle.vert")
	frag := filepath.Join(dir, "triangle.frag")
	require.NoError(t, os.WriteFile(vert, []byte("#version 410 core\nvoid main() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(frag, []byte("#version 410 core\nvoid main() {}\n"), 0o644))
	return vert, frag
}

type triangleVertex struct {
	pos   mgl32.Vec2
	color mgl32.Vec3
}

func packTriangleVertex(dst []byte, v any, conv renderer.Conventions) {
	tv := v.(triangleVertex)
	y := tv.pos.Y()
	if conv.FlipY {
		y = -y
	}
	n := renderer.PutFloat32s(dst, tv.pos.X(), y)
	renderer.PutFloat32s(dst[n:], tv.color[:]...)
}

func TestInitializeTwiceAndShutdownBeforeInit(t *testing.T) {
	b, _, _ := newTestBackend(t)
	assert.ErrorIs(t, b.Initialize(nil, core.DefaultConfig()), core.ErrPrecondition)
	require.NoError(t, b.Shutdown())
	assert.ErrorIs(t, b.Shutdown(), core.ErrPrecondition)

	fresh := newBackend(newFakeGL(), &fakeSurface{width: 1, height: 1})
	assert.ErrorIs(t, fresh.Shutdown(), core.ErrPrecondition)
	assert.ErrorIs(t, newBackend(newFakeGL(), nil).Initialize(nil, core.DefaultConfig()), core.ErrPrecondition)
}

func TestInitializeLoadsEntryPointsFromSurface(t *testing.T) {
	_, g, s := newTestBackend(t)
	assert.Equal(t, []string{"glGetString"}, s.lookups)
	assert.Equal(t, "Init", g.calls[0])
}

func TestFrameProtocol(t *testing.T) {
	b, g, s := newTestBackend(t)
	assert.False(t, b.Conventions().FlipY)

	b.ClearScreen(mgl32.Vec4{0.1, 0.2, 0.3, 1})
	f, err := b.StartFrame()
	require.NoError(t, err)
	_, err = b.StartFrame()
	assert.ErrorIs(t, err, core.ErrPrecondition)

	require.NoError(t, f.Draw(3, 1, 0, 0))
	require.NoError(t, b.EndFrame(f))
	require.NoError(t, b.Present())
	require.NoError(t, b.WaitIdle())

	assert.Equal(t, []string{"Init", "ClearColor 0.1 0.2 0.3 1.0", "Clear", "Viewport 800 600"}, g.calls)
	assert.Equal(t, 1, s.swaps)

	// an ended frame records nothing
	assert.ErrorIs(t, f.Draw(3, 1, 0, 0), core.ErrPrecondition)
	assert.ErrorIs(t, b.EndFrame(f), core.ErrPrecondition)
	assert.Len(t, g.draws, 1)

	next, err := b.StartFrame()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), next.Index())
}

func TestFrameSkippedWhenMinimized(t *testing.T) {
	b, _, s := newTestBackend(t)
	s.width, s.height = 0, 0
	_, err := b.StartFrame()
	assert.ErrorIs(t, err, core.ErrSwapchainBooting)
}

func TestEndFrameReportsGLErrors(t *testing.T) {
	b, g, _ := newTestBackend(t)
	f, err := b.StartFrame()
	require.NoError(t, err)
	g.errors = []uint32{gl.INVALID_OPERATION, gl.INVALID_VALUE}
	err = b.EndFrame(f)
	require.ErrorIs(t, err, core.ErrGPUCall)
	assert.Contains(t, err.Error(), "GL_INVALID_OPERATION")
	assert.Empty(t, g.errors)
}

func TestInstancedDraw(t *testing.T) {
	b, g, _ := newTestBackend(t)
	f, err := b.StartFrame()
	require.NoError(t, err)
	require.NoError(t, f.Draw(6, 4, 0, 0))
	assert.ErrorIs(t, f.Draw(6, 4, 0, 1), core.ErrPrecondition)
	require.Len(t, g.draws, 1)
	assert.Equal(t, int32(4), g.draws[0].instances)
}

func TestShaderCompileFailure(t *testing.T) {
	b, g, _ := newTestBackend(t)
	vert, _ := writeShaders(t)

	s, err := b.ShaderCreate(renderer.ShaderTypeVertex, vert)
	require.NoError(t, err)
	assert.Contains(t, g.sources[s.handle], "#version 410 core")
	s.Destroy()
	s.Destroy()
	assert.Equal(t, []string{"shader"}, g.deleted)

	g.failCompile = true
	_, err = b.ShaderCreate(renderer.ShaderTypeFragment, vert)
	require.ErrorIs(t, err, core.ErrShaderCompile)
	assert.Contains(t, err.Error(), "syntax error")
	assert.Contains(t, err.Error(), vert)

	_, err = b.ShaderCreate(renderer.ShaderTypeCompute, vert)
	assert.ErrorIs(t, err, core.ErrPrecondition)
}

func TestPipelineLifecycle(t *testing.T) {
	b, g, _ := newTestBackend(t)
	vert, frag := writeShaders(t)

	p, err := b.CreatePipeline(renderer.PipelineConfig{VertexShaderPath: vert, FragmentShaderPath: frag})
	require.NoError(t, err)
	assert.Equal(t, vert, p.VertexShaderPath())
	assert.Equal(t, frag, p.FragmentShaderPath())
	assert.NotEmpty(t, p.ID())
	// both stages are freed once linked
	assert.Equal(t, []string{"shader", "shader"}, g.deleted)

	f, err := b.StartFrame()
	require.NoError(t, err)
	require.NoError(t, p.Use(f))
	assert.Equal(t, p.(*Pipeline).program, g.program)
	require.NoError(t, b.EndFrame(f))
	assert.ErrorIs(t, p.Use(f), core.ErrPrecondition)

	require.NoError(t, p.Destroy())
	assert.Equal(t, "program", g.deleted[len(g.deleted)-1])
	assert.ErrorIs(t, p.Destroy(), core.ErrPrecondition)
}

func TestPipelineErrors(t *testing.T) {
	b, g, _ := newTestBackend(t)
	vert, frag := writeShaders(t)

	_, err := b.CreatePipeline(renderer.PipelineConfig{VertexShaderPath: vert})
	assert.ErrorIs(t, err, core.ErrPrecondition)

	missing := filepath.Join(t.TempDir(), "missing.frag")
	_, err = b.CreatePipeline(renderer.PipelineConfig{VertexShaderPath: vert, FragmentShaderPath: missing})
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Contains(t, err.Error(), missing)

	g.deleted = nil
	g.failLink = true
	_, err = b.CreatePipeline(renderer.PipelineConfig{VertexShaderPath: vert, FragmentShaderPath: frag})
	require.ErrorIs(t, err, core.ErrShaderCompile)
	assert.Contains(t, err.Error(), "linking failed: undefined output")
	assert.ElementsMatch(t, []string{"shader", "shader", "program"}, g.deleted)
}

func TestVertexBufferLayout(t *testing.T) {
	b, g, _ := newTestBackend(t)
	vb, err := b.CreateVertexBuffer(renderer.VertexBufferConfig{
		Layout:      renderer.VertexLayout{renderer.VertexAttributeFloat3, renderer.VertexAttributeUint, renderer.VertexAttributeFloat2},
		VertexCount: 4,
		Pack:        func([]byte, any, renderer.Conventions) {},
		Type:        renderer.BufferTypeDynamic,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(24), vb.Stride())
	assert.Equal(t, uint64(96), vb.Size())
	assert.Equal(t, []attribPointer{
		{0, 3, gl.FLOAT, 24, 0, false},
		{1, 1, gl.UNSIGNED_INT, 24, 12, true},
		{2, 2, gl.FLOAT, 24, 16, false},
	}, g.attribs)
	assert.Zero(t, g.boundVAO)

	require.NoError(t, vb.Destroy())
	assert.Equal(t, []string{"vao", "buffer"}, g.deleted)
	assert.ErrorIs(t, vb.Destroy(), core.ErrPrecondition)
	_, err = vb.Write(nil)
	assert.ErrorIs(t, err, core.ErrPrecondition)
}

func TestVertexBufferWriteWraps(t *testing.T) {
	b, g, _ := newTestBackend(t)
	vb, err := b.CreateVertexBuffer(renderer.VertexBufferConfig{
		Layout:      renderer.VertexLayout{renderer.VertexAttributeUint},
		VertexCount: 2,
		Pack: func(dst []byte, v any, _ renderer.Conventions) {
			renderer.PutUint32s(dst, v.(uint32))
		},
	})
	require.NoError(t, err)

	off, err := vb.Write(uint32(7))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), off)
	off, err = vb.Write(uint32(8))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), off)
	_, err = vb.Write(uint32(9))
	require.NoError(t, err)

	data := g.buffers[vb.(*VertexBuffer).vbo]
	assert.Equal(t, uint32(9), binary.LittleEndian.Uint32(data[0:]))
	assert.Equal(t, uint32(8), binary.LittleEndian.Uint32(data[4:]))
	assert.Zero(t, g.boundBuffer)
}

func TestTriangleEndToEnd(t *testing.T) {
	b, g, _ := newTestBackend(t)
	vert, frag := writeShaders(t)

	vb, err := b.CreateVertexBuffer(renderer.VertexBufferConfig{
		Layout:      renderer.VertexLayout{renderer.VertexAttributeFloat2, renderer.VertexAttributeFloat3},
		VertexCount: 3,
		Pack:        packTriangleVertex,
		Type:        renderer.BufferTypeStatic,
	})
	require.NoError(t, err)
	vertices := []triangleVertex{
		{mgl32.Vec2{0, 0.5}, mgl32.Vec3{1, 0, 0}},
		{mgl32.Vec2{0.5, -0.5}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec2{-0.5, -0.5}, mgl32.Vec3{0, 0, 1}},
	}
	for _, v := range vertices {
		_, err := vb.Write(v)
		require.NoError(t, err)
	}

	p, err := b.CreatePipeline(renderer.PipelineConfig{VertexShaderPath: vert, FragmentShaderPath: frag, VertexBuffer: vb})
	require.NoError(t, err)

	b.ClearScreen(mgl32.Vec4{0, 0, 0, 1})
	f, err := b.StartFrame()
	require.NoError(t, err)
	require.NoError(t, p.Use(f))
	require.NoError(t, vb.Bind(f))
	require.NoError(t, f.Draw(3, 1, 0, 0))
	require.NoError(t, b.EndFrame(f))
	require.NoError(t, b.Present())

	vao := vb.(*VertexBuffer).vao
	assert.Equal(t, []drawCall{{gl.TRIANGLES, 0, 3, 1, vao}}, g.draws)

	data := g.buffers[vb.(*VertexBuffer).vbo]
	require.Len(t, data, 60)
	floats := make([]float32, 15)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	// no Y flip on OpenGL
	assert.Equal(t, []float32{0, 0.5, 1, 0, 0, 0.5, -0.5, 0, 1, 0, -0.5, -0.5, 0, 0, 1}, floats)

	require.NoError(t, vb.Bind(nil))
	assert.Zero(t, g.boundVAO)

	require.NoError(t, p.Destroy())
	require.NoError(t, vb.Destroy())
	require.NoError(t, b.Shutdown())
}
