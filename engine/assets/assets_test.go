package assets

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/meed/engine/core"
)

func spirvBytes(words ...uint32) []byte {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func TestOpenFileMissingPathIsNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.vert.spv")
	_, err := OpenFile(path, FileModeRead)
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Contains(t, err.Error(), path)
}

func TestFileWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.txt")

	w, err := OpenFile(path, FileModeWrite)
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("Hello, ")))
	require.NoError(t, w.Close())

	a, err := OpenFile(path, FileModeAppend)
	require.NoError(t, err)
	require.NoError(t, a.Write([]byte("MEED!\n")))
	require.NoError(t, a.Close())
	assert.False(t, a.IsOpen)
	assert.ErrorIs(t, a.Write([]byte("x")), core.ErrPrecondition)

	r, err := OpenFile(path, FileModeRead)
	require.NoError(t, err)
	defer r.Close()
	assert.True(t, r.IsOpen)
	assert.Equal(t, "Hello, MEED!\n", string(r.Content))
	assert.Equal(t, uint64(13), r.Size)
	assert.ErrorIs(t, r.Write([]byte("x")), core.ErrPrecondition)
}

func TestBytesToBytecode(t *testing.T) {
	code, err := BytesToBytecode(spirvBytes(SPIRVMagic, 0x00010300, 42))
	require.NoError(t, err)
	assert.Equal(t, []uint32{SPIRVMagic, 0x00010300, 42}, code)

	_, err = BytesToBytecode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrShaderCompile)

	_, err = BytesToBytecode(spirvBytes(0xdeadbeef))
	assert.ErrorIs(t, err, core.ErrShaderCompile)
}

func TestLoaders(t *testing.T) {
	dir := t.TempDir()
	spv := filepath.Join(dir, "triangle.vert.spv")
	require.NoError(t, os.WriteFile(spv, spirvBytes(SPIRVMagic, 1), 0o644))
	glsl := filepath.Join(dir, "triangle.vert")
	require.NoError(t, os.WriteFile(glsl, []byte("#version 410 core\n"), 0o644))

	code, err := LoadSPIRV(spv)
	require.NoError(t, err)
	assert.Len(t, code, 2)

	src, err := LoadShaderSource(glsl)
	require.NoError(t, err)
	assert.Equal(t, "#version 410 core\n", src)

	_, err = LoadSPIRV(filepath.Join(dir, "missing.spv"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestIsShaderFile(t *testing.T) {
	assert.True(t, IsShaderFile("shaders/triangle.frag.spv"))
	assert.True(t, IsShaderFile("triangle.vert"))
	assert.False(t, IsShaderFile("notes.txt"))
}

func TestShaderWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	w, err := NewShaderWatcher(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0o644))
	target := filepath.Join(dir, "triangle.frag")
	require.NoError(t, os.WriteFile(target, []byte("void main() {}"), 0o644))

	select {
	case c := <-w.Changes():
		assert.Equal(t, target, c.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no shader change reported")
	}

	require.NoError(t, w.Close())
	assert.Error(t, w.Close())
	// drains buffered changes and ends because the channel is closed
	for range w.Changes() {
	}
	assert.Empty(t, w.Pending())
}
