package opengl

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/spaghettifunk/meed/engine/core"
)

// glFuncs is the slice of the GL API the backend calls. coreGL forwards to the
// loaded driver; tests record the calls instead.
type glFuncs interface {
	Init(procAddr func(name string) unsafe.Pointer) error
	GetString(name uint32) string
	GetError() uint32

	Viewport(x, y, width, height int32)
	ClearColor(r, g, b, a float32)
	Clear(mask uint32)

	CreateShader(xtype uint32) uint32
	ShaderSource(shader uint32, source string)
	CompileShader(shader uint32)
	GetShaderiv(shader, pname uint32) int32
	GetShaderInfoLog(shader uint32) string
	DeleteShader(shader uint32)

	CreateProgram() uint32
	AttachShader(program, shader uint32)
	DetachShader(program, shader uint32)
	LinkProgram(program uint32)
	GetProgramiv(program, pname uint32) int32
	GetProgramInfoLog(program uint32) string
	UseProgram(program uint32)
	DeleteProgram(program uint32)

	GenBuffer() uint32
	BindBuffer(target, buffer uint32)
	BufferData(target uint32, size int, usage uint32)
	MapBufferRange(target uint32, offset, length int, access uint32) []byte
	UnmapBuffer(target uint32) bool
	DeleteBuffer(buffer uint32)

	GenVertexArray() uint32
	BindVertexArray(array uint32)
	DeleteVertexArray(array uint32)
	EnableVertexAttribArray(index uint32)
	VertexAttribPointer(index uint32, size int32, xtype uint32, normalized bool, stride int32, offset uintptr)
	VertexAttribIPointer(index uint32, size int32, xtype uint32, stride int32, offset uintptr)

	DrawArrays(mode uint32, first, count int32)
	DrawArraysInstanced(mode uint32, first, count, instances int32)
}

// coreGL calls the OpenGL 4.1 core profile loaded for the current context.
type coreGL struct{}

func (coreGL) Init(procAddr func(name string) unsafe.Pointer) error {
	return gl.InitWithProcAddrFunc(procAddr)
}

func (coreGL) GetString(name uint32) string  { return gl.GoStr(gl.GetString(name)) }
func (coreGL) GetError() uint32              { return gl.GetError() }
func (coreGL) Viewport(x, y, w, h int32)     { gl.Viewport(x, y, w, h) }
func (coreGL) ClearColor(r, g, b, a float32) { gl.ClearColor(r, g, b, a) }
func (coreGL) Clear(mask uint32)             { gl.Clear(mask) }

func (coreGL) CreateShader(xtype uint32) uint32 { return gl.CreateShader(xtype) }

func (coreGL) ShaderSource(shader uint32, source string) {
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
}

func (coreGL) CompileShader(shader uint32) { gl.CompileShader(shader) }

func (coreGL) GetShaderiv(shader, pname uint32) int32 {
	var v int32
	gl.GetShaderiv(shader, pname, &v)
	return v
}

func (g coreGL) GetShaderInfoLog(shader uint32) string {
	logLength := g.GetShaderiv(shader, gl.INFO_LOG_LENGTH)
	if logLength == 0 {
		return ""
	}
	log := strings.Repeat("\x00", int(logLength+1))
	gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
	return strings.TrimRight(log, "\x00")
}

func (coreGL) DeleteShader(shader uint32)          { gl.DeleteShader(shader) }
func (coreGL) CreateProgram() uint32               { return gl.CreateProgram() }
func (coreGL) AttachShader(program, shader uint32) { gl.AttachShader(program, shader) }
func (coreGL) DetachShader(program, shader uint32) { gl.DetachShader(program, shader) }
func (coreGL) LinkProgram(program uint32)          { gl.LinkProgram(program) }

func (coreGL) GetProgramiv(program, pname uint32) int32 {
	var v int32
	gl.GetProgramiv(program, pname, &v)
	return v
}

func (g coreGL) GetProgramInfoLog(program uint32) string {
	logLength := g.GetProgramiv(program, gl.INFO_LOG_LENGTH)
	if logLength == 0 {
		return ""
	}
	log := strings.Repeat("\x00", int(logLength+1))
	gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
	return strings.TrimRight(log, "\x00")
}

func (coreGL) UseProgram(program uint32)    { gl.UseProgram(program) }
func (coreGL) DeleteProgram(program uint32) { gl.DeleteProgram(program) }

func (coreGL) GenBuffer() uint32 {
	var b uint32
	gl.GenBuffers(1, &b)
	return b
}

func (coreGL) BindBuffer(target, buffer uint32) { gl.BindBuffer(target, buffer) }

func (coreGL) BufferData(target uint32, size int, usage uint32) {
	gl.BufferData(target, size, nil, usage)
}

func (coreGL) MapBufferRange(target uint32, offset, length int, access uint32) []byte {
	ptr := gl.MapBufferRange(target, offset, length, access)
	if ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), length)
}

func (coreGL) UnmapBuffer(target uint32) bool { return gl.UnmapBuffer(target) }
func (coreGL) DeleteBuffer(buffer uint32)     { gl.DeleteBuffers(1, &buffer) }

func (coreGL) GenVertexArray() uint32 {
	var a uint32
	gl.GenVertexArrays(1, &a)
	return a
}

func (coreGL) BindVertexArray(array uint32)         { gl.BindVertexArray(array) }
func (coreGL) DeleteVertexArray(array uint32)       { gl.DeleteVertexArrays(1, &array) }
func (coreGL) EnableVertexAttribArray(index uint32) { gl.EnableVertexAttribArray(index) }

func (coreGL) VertexAttribPointer(index uint32, size int32, xtype uint32, normalized bool, stride int32, offset uintptr) {
	gl.VertexAttribPointerWithOffset(index, size, xtype, normalized, stride, offset)
}

func (coreGL) VertexAttribIPointer(index uint32, size int32, xtype uint32, stride int32, offset uintptr) {
	gl.VertexAttribIPointer(index, size, xtype, stride, gl.PtrOffset(int(offset)))
}

func (coreGL) DrawArrays(mode uint32, first, count int32) { gl.DrawArrays(mode, first, count) }

func (coreGL) DrawArraysInstanced(mode uint32, first, count, instances int32) {
	gl.DrawArraysInstanced(mode, first, count, instances)
}

// maxQueuedErrors bounds the drain; without a current context GetError never clears.
const maxQueuedErrors = 32

// checkError drains the GL error queue and reports the first error seen.
func checkError(g glFuncs, op string) error {
	var first uint32
	for i := 0; i < maxQueuedErrors; i++ {
		code := g.GetError()
		if code == gl.NO_ERROR {
			break
		}
		if first == 0 {
			first = code
		}
	}
	if first != 0 {
		return fmt.Errorf("%w: %s: %s", core.ErrGPUCall, op, errorString(first))
	}
	return nil
}

func errorString(code uint32) string {
	switch code {
	case gl.INVALID_ENUM:
		return "GL_INVALID_ENUM"
	case gl.INVALID_VALUE:
		return "GL_INVALID_VALUE"
	case gl.INVALID_OPERATION:
		return "GL_INVALID_OPERATION"
	case gl.INVALID_FRAMEBUFFER_OPERATION:
		return "GL_INVALID_FRAMEBUFFER_OPERATION"
	case gl.OUT_OF_MEMORY:
		return "GL_OUT_OF_MEMORY"
	default:
		return fmt.Sprintf("GL error 0x%04x", code)
	}
}
