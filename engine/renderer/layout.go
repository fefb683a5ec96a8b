package renderer

import (
	"fmt"

	"github.com/spaghettifunk/meed/engine/core"
)

// MaxVertexAttributes bounds the attributes of one vertex layout.
const MaxVertexAttributes = 16

type VertexAttributeType int

const (
	VertexAttributeFloat VertexAttributeType = iota
	VertexAttributeUint
	VertexAttributeFloat2
	VertexAttributeUint2
	VertexAttributeFloat3
	VertexAttributeUint3
	VertexAttributeFloat4
	VertexAttributeUint4
)

func (t VertexAttributeType) String() string {
	switch t {
	case VertexAttributeFloat:
		return "float"
	case VertexAttributeUint:
		return "uint"
	case VertexAttributeFloat2:
		return "float2"
	case VertexAttributeUint2:
		return "uint2"
	case VertexAttributeFloat3:
		return "float3"
	case VertexAttributeUint3:
		return "uint3"
	case VertexAttributeFloat4:
		return "float4"
	case VertexAttributeUint4:
		return "uint4"
	default:
		return fmt.Sprintf("VertexAttributeType(%d)", int(t))
	}
}

// Components is the number of 32-bit scalars in the attribute.
func (t VertexAttributeType) Components() uint32 {
	switch t {
	case VertexAttributeFloat, VertexAttributeUint:
		return 1
	case VertexAttributeFloat2, VertexAttributeUint2:
		return 2
	case VertexAttributeFloat3, VertexAttributeUint3:
		return 3
	case VertexAttributeFloat4, VertexAttributeUint4:
		return 4
	default:
		return 0
	}
}

func (t VertexAttributeType) IsFloat() bool {
	switch t {
	case VertexAttributeFloat, VertexAttributeFloat2, VertexAttributeFloat3, VertexAttributeFloat4:
		return true
	default:
		return false
	}
}

// Size is the attribute's size in bytes.
func (t VertexAttributeType) Size() uint32 {
	return t.Components() * 4
}

// VertexLayout is the ordered list of attributes of a single vertex.
type VertexLayout []VertexAttributeType

func (l VertexLayout) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("%w: vertex layout has no attributes", core.ErrPrecondition)
	}
	if len(l) > MaxVertexAttributes {
		return fmt.Errorf("%w: vertex layout has %d attributes, max is %d", core.ErrPrecondition, len(l), MaxVertexAttributes)
	}
	for i, a := range l {
		if a.Components() == 0 {
			return fmt.Errorf("%w: vertex attribute %d has unknown type %s", core.ErrPrecondition, i, a)
		}
	}
	return nil
}

// Stride is the sum of the attribute sizes.
func (l VertexLayout) Stride() uint32 {
	var stride uint32
	for _, a := range l {
		stride += a.Size()
	}
	return stride
}

// Offsets returns the byte offset of every attribute inside one vertex.
func (l VertexLayout) Offsets() []uint32 {
	offsets := make([]uint32, len(l))
	var offset uint32
	for i, a := range l {
		offsets[i] = offset
		offset += a.Size()
	}
	return offsets
}

// BufferSize is the byte size of vertexCount vertices.
func (l VertexLayout) BufferSize(vertexCount uint32) uint64 {
	return uint64(l.Stride()) * uint64(vertexCount)
}
