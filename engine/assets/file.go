package assets

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spaghettifunk/meed/engine/core"
)

type FileMode int

const (
	FileModeRead FileMode = iota
	FileModeWrite
	FileModeAppend
)

// File is an opened file. In read mode Content holds the whole file.
type File struct {
	IsOpen  bool
	Path    string
	Size    uint64
	Content []byte
	Mode    FileMode

	handle *os.File
}

func OpenFile(path string, mode FileMode) (*File, error) {
	var flag int
	switch mode {
	case FileModeRead:
		flag = os.O_RDONLY
	case FileModeWrite:
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case FileModeAppend:
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	default:
		return nil, fmt.Errorf("%w: unknown file mode %d", core.ErrPrecondition, mode)
	}

	h, err := os.OpenFile(path, flag, 0o644)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to open file %q", core.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file %q: %w", path, err)
	}

	f := &File{
		IsOpen: true,
		Path:   path,
		Mode:   mode,
		handle: h,
	}

	if mode == FileModeRead {
		content, err := io.ReadAll(h)
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("failed to read file %q: %w", path, err)
		}
		f.Content = content
		f.Size = uint64(len(content))
	}

	return f, nil
}

func (f *File) Write(data []byte) error {
	if !f.IsOpen {
		return fmt.Errorf("%w: write to closed file %q", core.ErrPrecondition, f.Path)
	}
	if f.Mode == FileModeRead {
		return fmt.Errorf("%w: write to read-only file %q", core.ErrPrecondition, f.Path)
	}
	n, err := f.handle.Write(data)
	f.Size += uint64(n)
	return err
}

func (f *File) Close() error {
	if !f.IsOpen {
		return nil
	}
	f.IsOpen = false
	return f.handle.Close()
}
