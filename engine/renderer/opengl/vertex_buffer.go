package opengl

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/releasestack"
	"github.com/spaghettifunk/meed/engine/renderer"
)

// VertexBuffer is a VBO plus the VAO describing its layout. Static and dynamic
// buffers share one GL_DYNAMIC_DRAW store; writes are mapped straight into it.
type VertexBuffer struct {
	id     core.ResourceID
	layout renderer.VertexLayout
	btype  renderer.BufferType
	count  uint32
	stride uint32
	size   uint64
	pack   renderer.PackFunc
	cursor *renderer.WriteCursor

	vbo, vao     uint32
	backend      *Backend
	releaseStack *releasestack.ReleaseStack
	destroyed    bool
}

func (b *Backend) CreateVertexBuffer(cfg renderer.VertexBufferConfig) (renderer.VertexBuffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !b.initialized {
		return nil, fmt.Errorf("%w: create vertex buffer before initialize", core.ErrPrecondition)
	}

	vb := &VertexBuffer{
		id:           core.NewResourceID(),
		layout:       append(renderer.VertexLayout(nil), cfg.Layout...),
		btype:        cfg.Type,
		count:        cfg.VertexCount,
		stride:       cfg.Layout.Stride(),
		size:         cfg.Layout.BufferSize(cfg.VertexCount),
		pack:         cfg.Pack,
		backend:      b,
		releaseStack: releasestack.New(),
	}
	vb.cursor = renderer.NewWriteCursor(vb.stride, vb.size)

	if err := vb.allocate(); err != nil {
		if derr := vb.releaseStack.Destroy(); derr != nil {
			core.LogWarn("vertex buffer unwind: %s", derr)
		}
		return nil, err
	}

	core.LogDebug("Vertex buffer %s created: %d vertices, stride %d, %d bytes", vb.id.Short(), vb.count, vb.stride, vb.size)
	return vb, nil
}

func (vb *VertexBuffer) allocate() error {
	g := vb.backend.gl

	vb.vbo = g.GenBuffer()
	vbo := vb.vbo
	if err := vb.releaseStack.PushFunc(func() { g.DeleteBuffer(vbo) }); err != nil {
		return err
	}
	g.BindBuffer(gl.ARRAY_BUFFER, vbo)
	g.BufferData(gl.ARRAY_BUFFER, int(vb.size), gl.DYNAMIC_DRAW)

	vb.vao = g.GenVertexArray()
	vao := vb.vao
	if err := vb.releaseStack.PushFunc(func() { g.DeleteVertexArray(vao) }); err != nil {
		return err
	}
	g.BindVertexArray(vao)

	offsets := vb.layout.Offsets()
	for i, attr := range vb.layout {
		index := uint32(i)
		g.EnableVertexAttribArray(index)
		if attr.IsFloat() {
			g.VertexAttribPointer(index, int32(attr.Components()), gl.FLOAT, false, int32(vb.stride), uintptr(offsets[i]))
		} else {
			g.VertexAttribIPointer(index, int32(attr.Components()), gl.UNSIGNED_INT, int32(vb.stride), uintptr(offsets[i]))
		}
	}

	g.BindVertexArray(0)
	g.BindBuffer(gl.ARRAY_BUFFER, 0)
	return checkError(g, "vertex buffer create")
}

func (vb *VertexBuffer) ID() core.ResourceID           { return vb.id }
func (vb *VertexBuffer) Layout() renderer.VertexLayout { return vb.layout }
func (vb *VertexBuffer) Type() renderer.BufferType     { return vb.btype }
func (vb *VertexBuffer) Stride() uint32                { return vb.stride }
func (vb *VertexBuffer) VertexCount() uint32           { return vb.count }
func (vb *VertexBuffer) Size() uint64                  { return vb.size }
func (vb *VertexBuffer) Offset() uint64                { return vb.cursor.Offset() }

// Write maps one stride at the cursor and packs vertex into it.
func (vb *VertexBuffer) Write(vertex any) (uint64, error) {
	if vb.destroyed {
		return 0, fmt.Errorf("%w: write to destroyed vertex buffer %s", core.ErrPrecondition, vb.id.Short())
	}
	g := vb.backend.gl

	g.BindBuffer(gl.ARRAY_BUFFER, vb.vbo)
	defer g.BindBuffer(gl.ARRAY_BUFFER, 0)

	dst := g.MapBufferRange(gl.ARRAY_BUFFER, int(vb.cursor.Offset()), int(vb.stride), gl.MAP_WRITE_BIT)
	if dst == nil {
		return 0, fmt.Errorf("%w: failed to map vertex buffer %s", core.ErrGPUCall, vb.id.Short())
	}
	vb.pack(dst, vertex, vb.backend.Conventions())
	if !g.UnmapBuffer(gl.ARRAY_BUFFER) {
		return 0, fmt.Errorf("%w: vertex buffer %s store was corrupted while mapped", core.ErrGPUCall, vb.id.Short())
	}

	vb.cursor.Advance()
	return vb.cursor.Offset(), nil
}

// Bind makes the VAO current. A nil frame unbinds it.
func (vb *VertexBuffer) Bind(f renderer.Frame) error {
	if vb.destroyed {
		return fmt.Errorf("%w: bind of destroyed vertex buffer %s", core.ErrPrecondition, vb.id.Short())
	}
	if f == nil {
		vb.backend.gl.BindVertexArray(0)
		return nil
	}
	if _, err := vb.backend.openFrame(f); err != nil {
		return err
	}
	vb.backend.gl.BindVertexArray(vb.vao)
	return nil
}

func (vb *VertexBuffer) Destroy() error {
	if vb.destroyed {
		return fmt.Errorf("%w: vertex buffer %s destroyed twice", core.ErrPrecondition, vb.id.Short())
	}
	vb.destroyed = true
	return vb.releaseStack.Destroy()
}
