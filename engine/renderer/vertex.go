package renderer

import (
	"encoding/binary"
	"math"
)

// Conventions describes the coordinate rules of a backend.
type Conventions struct {
	// FlipY is set when clip space Y points down (Vulkan).
	FlipY bool
}

// PackFunc writes one vertex into dst, which is exactly one stride long.
// A buffer hands its backend's conventions to every call.
type PackFunc func(dst []byte, vertex any, conv Conventions)

// PutFloat32s writes values little-endian starting at dst[0] and returns the bytes written.
func PutFloat32s(dst []byte, values ...float32) int {
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
	return len(values) * 4
}

// PutUint32s writes values little-endian starting at dst[0] and returns the bytes written.
func PutUint32s(dst []byte, values ...uint32) int {
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*4:], v)
	}
	return len(values) * 4
}

// WriteCursor is the ring position of a vertex buffer. The offset is always a
// multiple of stride and below size.
type WriteCursor struct {
	stride uint64
	size   uint64
	offset uint64
}

func NewWriteCursor(stride uint32, size uint64) *WriteCursor {
	return &WriteCursor{stride: uint64(stride), size: size}
}

func (c *WriteCursor) Offset() uint64 {
	return c.offset
}

// Span is the byte range of the next write.
func (c *WriteCursor) Span() (start, end uint64) {
	return c.offset, c.offset + c.stride
}

// WillWrap reports whether the next Advance completes a full cycle of the buffer.
func (c *WriteCursor) WillWrap() bool {
	return c.offset+c.stride >= c.size
}

// Advance moves past one vertex and reports whether the cursor wrapped to zero.
func (c *WriteCursor) Advance() bool {
	wrapped := c.WillWrap()
	c.offset = (c.offset + c.stride) % c.size
	return wrapped
}
