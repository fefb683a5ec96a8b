package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/meed/engine/core"
)

// ShaderChange reports a shader file that was written or created.
type ShaderChange struct {
	Path string
	At   time.Time
}

// ShaderWatcher watches a shader directory tree and reports changed shader files.
type ShaderWatcher struct {
	mutex    sync.Mutex
	fsnotify *fsnotify.Watcher
	isClosed bool

	done    chan struct{}
	changes chan ShaderChange
	stopped chan struct{}
}

func NewShaderWatcher(dir string) (*ShaderWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	sw := &ShaderWatcher{
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		changes:  make(chan ShaderChange, 16),
		stopped:  make(chan struct{}),
	}

	if err := sw.watchRecursive(dir); err != nil {
		fsWatch.Close()
		return nil, err
	}

	go sw.start()
	return sw, nil
}

// Changes delivers shader changes. The channel is closed by Close.
func (sw *ShaderWatcher) Changes() <-chan ShaderChange {
	return sw.changes
}

// Pending drains the changes that arrived since the last call without blocking.
func (sw *ShaderWatcher) Pending() []ShaderChange {
	var out []ShaderChange
	for {
		select {
		case c, ok := <-sw.changes:
			if !ok {
				return out
			}
			out = append(out, c)
		default:
			return out
		}
	}
}

func (sw *ShaderWatcher) Close() error {
	sw.mutex.Lock()
	if sw.isClosed {
		sw.mutex.Unlock()
		return errors.New("shader watcher already closed")
	}
	sw.isClosed = true
	sw.mutex.Unlock()

	close(sw.done)
	<-sw.stopped
	return nil
}

func (sw *ShaderWatcher) start() {
	defer func() {
		sw.fsnotify.Close()
		close(sw.changes)
		close(sw.stopped)
	}()
	for {
		select {
		case e, ok := <-sw.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := sw.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 && IsShaderFile(e.Name) {
				sw.emit(ShaderChange{Path: e.Name, At: time.Now()})
			}

		case err, ok := <-sw.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)

		case <-sw.done:
			return
		}
	}
}

// emit drops the change when nobody is draining; the next write reports the file again.
func (sw *ShaderWatcher) emit(c ShaderChange) {
	select {
	case sw.changes <- c:
	default:
		core.LogDebug("shader watcher backlog full, dropping %s", c.Path)
	}
}

// watchRecursive adds dir and all directories below it.
func (sw *ShaderWatcher) watchRecursive(dir string) error {
	return filepath.Walk(dir, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return sw.fsnotify.Add(walkPath)
		}
		return nil
	})
}

func IsShaderFile(path string) bool {
	switch filepath.Ext(path) {
	case ".spv", ".vert", ".frag", ".comp", ".geom", ".tesc", ".tese", ".glsl":
		return true
	default:
		return false
	}
}
