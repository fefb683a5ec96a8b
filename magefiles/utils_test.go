//go:build mage

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeShader(t *testing.T, withOutput bool) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "triangle.vert")
	require.NoError(t, os.WriteFile(src, []byte("#version 450\nvoid main() {}\n"), 0o644))
	if withOutput {
		require.NoError(t, os.WriteFile(src+spirvExt, []byte{0x03, 0x02, 0x23, 0x07}, 0o644))
		old := time.Now().Add(-time.Hour)
		require.NoError(t, os.Chtimes(src, old, old))
	}
	return src
}

func TestCompileShadersSkipsFreshOutput(t *testing.T) {
	src := writeShader(t, true)
	// nothing to compile, so the missing compiler is never looked up
	t.Setenv("PATH", "")
	assert.NoError(t, compileShaders([]string{src}))
}

func TestCompileShadersNamesFailingSource(t *testing.T) {
	src := writeShader(t, false)
	t.Setenv("PATH", "")
	err := compileShaders([]string{src})
	require.Error(t, err)
	assert.Contains(t, err.Error(), src)
	assert.Contains(t, err.Error(), shaderCompiler)
}
