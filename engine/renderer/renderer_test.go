package renderer

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/platform"
)

type fakeFrame struct{ index uint32 }

func (f *fakeFrame) Index() uint32 { return f.index }
func (f *fakeFrame) Draw(uint32, uint32, uint32, uint32) error {
	return nil
}

type fakeBackend struct {
	calls      []string
	startErr   error
	presentErr error
	cleared    mgl32.Vec4
}

func (b *fakeBackend) Initialize(*platform.Window, *core.Config) error {
	b.calls = append(b.calls, "init")
	return nil
}
func (b *fakeBackend) Shutdown() error { b.calls = append(b.calls, "shutdown"); return nil }
func (b *fakeBackend) ClearScreen(c mgl32.Vec4) {
	b.cleared = c
	b.calls = append(b.calls, "clear")
}
func (b *fakeBackend) StartFrame() (Frame, error) {
	b.calls = append(b.calls, "start")
	if b.startErr != nil {
		return nil, b.startErr
	}
	return &fakeFrame{}, nil
}
func (b *fakeBackend) EndFrame(Frame) error { b.calls = append(b.calls, "end"); return nil }
func (b *fakeBackend) Present() error {
	b.calls = append(b.calls, "present")
	return b.presentErr
}
func (b *fakeBackend) WaitIdle() error { b.calls = append(b.calls, "idle"); return nil }
func (b *fakeBackend) CreatePipeline(PipelineConfig) (Pipeline, error) {
	return nil, errors.New("unused")
}
func (b *fakeBackend) CreateVertexBuffer(VertexBufferConfig) (VertexBuffer, error) {
	return nil, errors.New("unused")
}
func (b *fakeBackend) Conventions() Conventions { return Conventions{} }

func TestDrawFrameOrder(t *testing.T) {
	b := &fakeBackend{}
	r := New(b)
	cfg := core.DefaultConfig()
	require.NoError(t, r.Initialize(nil, cfg))

	err := r.DrawFrame(func(f Frame) error {
		b.calls = append(b.calls, "record")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"init", "clear", "start", "record", "end", "present"}, b.calls)
	assert.Equal(t, mgl32.Vec4(cfg.Renderer.ClearColor), b.cleared)
	assert.Equal(t, uint64(1), r.FrameNumber)

	require.NoError(t, r.Shutdown())
	assert.Equal(t, []string{"idle", "shutdown"}, b.calls[len(b.calls)-2:])
}

func TestDrawFrameSkipsWhileSwapchainBoots(t *testing.T) {
	b := &fakeBackend{startErr: core.ErrSwapchainBooting}
	r := New(b)

	recorded := false
	require.NoError(t, r.DrawFrame(func(Frame) error { recorded = true; return nil }))
	assert.False(t, recorded)
	assert.Zero(t, r.FrameNumber)
}

func TestDrawFrameSurfacesErrors(t *testing.T) {
	b := &fakeBackend{startErr: core.ErrGPUCall}
	r := New(b)
	assert.ErrorIs(t, r.DrawFrame(func(Frame) error { return nil }), core.ErrGPUCall)

	b = &fakeBackend{}
	r = New(b)
	err := r.DrawFrame(func(Frame) error { return core.ErrPrecondition })
	assert.ErrorIs(t, err, core.ErrPrecondition)
	// the frame is still closed
	assert.Contains(t, b.calls, "end")
	assert.NotContains(t, b.calls, "present")
}
