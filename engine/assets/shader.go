package assets

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/meed/engine/core"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

// LoadShaderSource returns the text of a GLSL file.
func LoadShaderSource(path string) (string, error) {
	f, err := OpenFile(path, FileModeRead)
	if err != nil {
		return "", err
	}
	defer f.Close()

	core.LogDebug("Loaded shader source %s (%d bytes)", path, f.Size)
	return string(f.Content), nil
}

// LoadSPIRV returns the words of a compiled SPIR-V module.
func LoadSPIRV(path string) ([]uint32, error) {
	f, err := OpenFile(path, FileModeRead)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	code, err := BytesToBytecode(f.Content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	core.LogDebug("Loaded SPIR-V module %s (%d words)", path, len(code))
	return code, nil
}

// BytesToBytecode decodes little-endian SPIR-V words.
func BytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: spir-v size %d is not a positive multiple of 4", core.ErrShaderCompile, len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}

	if byteCode[0] != SPIRVMagic {
		return nil, fmt.Errorf("%w: bad spir-v magic 0x%08x", core.ErrShaderCompile, byteCode[0])
	}
	return byteCode, nil
}
